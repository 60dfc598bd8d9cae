package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/gsarma/synthide/internal/api"
	"github.com/gsarma/synthide/internal/assist"
	"github.com/gsarma/synthide/internal/code"
	"github.com/gsarma/synthide/internal/config"
	"github.com/gsarma/synthide/internal/logger"
	"github.com/gsarma/synthide/internal/store"
	"github.com/gsarma/synthide/internal/worker"
)

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log, err := logger.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	defer func() {
		if r := recover(); r != nil {
			log.Fatal("server panic", zap.Any("panic", r), zap.Stack("stack"))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal("server error", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	runs, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	switch cfg.Mode {
	case "worker":
		log.Info("starting in worker-only mode")
		w, err := newWorker(ctx, cfg, runs, log)
		if err != nil {
			return err
		}
		w.Start(ctx) // blocks until ctx cancelled
		return nil
	case "api":
		// API-only: no embedded worker goroutines; scale workers separately.
		log.Info("starting in api-only mode")
		return serve(ctx, cfg, runs, log)
	default:
		// Default: run both API server and worker in the same process.
		w, err := newWorker(ctx, cfg, runs, log)
		if err != nil {
			return err
		}
		go w.Start(ctx)
		return serve(ctx, cfg, runs, log)
	}
}

func openStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (store.RunStore, func(), error) {
	switch cfg.Store {
	case "redis":
		rdb, err := store.DialRedis(ctx, cfg.RedisAddr)
		if err != nil {
			return nil, nil, err
		}
		log.Info("using redis run store", zap.String("addr", cfg.RedisAddr))
		return store.NewRedis(rdb, cfg.RunTTL), func() { rdb.Close() }, nil
	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to database: %w", err)
		}
		pg := store.NewPostgres(pool)
		if err := pg.Migrate(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		log.Info("using postgres run store")
		return pg, pool.Close, nil
	default:
		log.Info("using in-memory run store")
		return store.NewMemory(store.WithTTL(cfg.RunTTL)), func() {}, nil
	}
}

func newWorker(ctx context.Context, cfg *config.Config, runs store.RunStore, log *zap.Logger) (*worker.Worker, error) {
	var provider code.Provider
	switch cfg.Executor {
	case "docker":
		cli, err := code.NewDockerClient(ctx)
		if err != nil {
			return nil, err
		}
		provider = code.NewDockerProvider(cli, code.DockerConfig{}, log.Named("docker"))
	case "judge0":
		provider = code.NewJudge0Provider(code.Judge0Config{URL: cfg.Judge0URL, AuthToken: cfg.Judge0AuthToken})
	default:
		log.Warn("executing runs as local subprocesses without isolation")
		provider = code.NewLocalProvider(code.LocalConfig{})
	}

	return worker.New(runs, provider, worker.Config{
		Concurrency:  cfg.WorkerConcurrency,
		PollInterval: cfg.WorkerPollInterval,
		ExecTimeout:  cfg.ExecTimeout,
	}, log.Named("worker")), nil
}

func serve(ctx context.Context, cfg *config.Config, runs store.RunStore, log *zap.Logger) error {
	gin.SetMode(gin.ReleaseMode)
	if cfg.AssistAPIKey == "" {
		log.Warn("OPENROUTER_API_KEY is not set; explain and generate will return errors")
	}
	assistant := assist.New(assist.Config{
		BaseURL: cfg.AssistBaseURL,
		APIKey:  cfg.AssistAPIKey,
		Model:   cfg.AssistModel,
	}, log.Named("assist"))

	h := api.NewHandler(runs, assistant, log.Named("api"))
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           api.NewRouter(h, cfg.CORSOrigins),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
