// Package config reads the execution service's settings from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gsarma/synthide/internal/logger"
)

// Config holds the execution service settings.
type Config struct {
	Port string
	// Mode is "api", "worker" or "" for both in one process.
	Mode string

	Store       string // memory, redis, postgres
	RedisAddr   string
	DatabaseURL string
	RunTTL      time.Duration

	Executor        string // local, docker, judge0
	Judge0URL       string
	Judge0AuthToken string
	ExecTimeout     time.Duration

	WorkerConcurrency  int
	WorkerPollInterval time.Duration

	AssistBaseURL string
	AssistAPIKey  string
	AssistModel   string

	CORSOrigins []string
	Log         logger.Config
}

// FromEnv loads Config from environment variables, applying defaults.
func FromEnv() (*Config, error) {
	cfg := &Config{
		Port:            getEnv("PORT", "8080"),
		Mode:            os.Getenv("MODE"),
		Store:           getEnv("STORE", "memory"),
		RedisAddr:       getEnv("REDIS_ADDR", "localhost:6379"),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		Executor:        getEnv("EXECUTOR", "local"),
		Judge0URL:       getEnv("JUDGE0_URL", "http://judge0-server:2358"),
		Judge0AuthToken: os.Getenv("JUDGE0_AUTH_TOKEN"),
		AssistBaseURL:   getEnv("OPENROUTER_BASE_URL", "https://openrouter.ai/api/v1"),
		AssistAPIKey:    os.Getenv("OPENROUTER_API_KEY"),
		AssistModel:     getEnv("ASSIST_MODEL", "gpt-3.5-turbo"),
		CORSOrigins:     splitList(getEnv("CORS_ORIGINS", "*")),
		Log: logger.Config{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "console"),
		},
	}

	var err error
	if cfg.RunTTL, err = durationEnv("RUN_TTL", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.ExecTimeout, err = durationEnv("EXEC_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.WorkerPollInterval, err = durationEnv("WORKER_POLL_INTERVAL", 500*time.Millisecond); err != nil {
		return nil, err
	}
	if cfg.WorkerConcurrency, err = intEnv("WORKER_CONCURRENCY", 4); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Mode {
	case "", "api", "worker":
	default:
		return fmt.Errorf("MODE must be api, worker or empty, got %q", c.Mode)
	}
	switch c.Store {
	case "memory":
		if c.Mode != "" {
			return fmt.Errorf("STORE=memory cannot be shared between separate api and worker processes")
		}
	case "redis":
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for STORE=postgres")
		}
	default:
		return fmt.Errorf("unsupported STORE %q", c.Store)
	}
	switch c.Executor {
	case "local", "docker", "judge0":
	default:
		return fmt.Errorf("unsupported EXECUTOR %q", c.Executor)
	}
	if c.WorkerConcurrency < 1 {
		return fmt.Errorf("WORKER_CONCURRENCY must be positive")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return defaultValue
}

func durationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func intEnv(key string, defaultValue int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
