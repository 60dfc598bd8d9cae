package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	cliconfig "github.com/gsarma/synthide/internal/cli/config"
	"github.com/gsarma/synthide/internal/logger"
	synthide "github.com/gsarma/synthide/sdk"
)

// errRunFailed signals a non-zero exit after the failure was already printed.
var errRunFailed = errors.New("run failed")

type globalFlags struct {
	configPath   string
	baseURL      string
	timeout      time.Duration
	pollInterval time.Duration
	maxAttempts  int
	logLevel     string
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		if !errors.Is(err, errRunFailed) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	g := &globalFlags{}
	rootCmd := &cobra.Command{
		Use:           "synthide",
		Short:         "Run, explain and generate code against a SynthIDE execution service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&g.configPath, "config", cliconfig.DefaultPath(), "path to the CLI config file")
	pf.StringVar(&g.baseURL, "base-url", "", "execution service URL (overrides config)")
	pf.DurationVar(&g.timeout, "timeout", 0, "HTTP request timeout (overrides config)")
	pf.DurationVar(&g.pollInterval, "poll-interval", 0, "wait between output polls (overrides config)")
	pf.IntVar(&g.maxAttempts, "max-attempts", 0, "output polls before giving up (overrides config)")
	pf.StringVar(&g.logLevel, "log-level", "", "debug, info, warn or error (overrides config)")

	rootCmd.AddCommand(newRunCommand(g))
	rootCmd.AddCommand(newExplainCommand(g))
	rootCmd.AddCommand(newGenerateCommand(g))
	rootCmd.AddCommand(newTemplateCommand())
	return rootCmd
}

// resolve merges the config file with flags that were set explicitly.
func (g *globalFlags) resolve(cmd *cobra.Command) (cliconfig.Config, error) {
	var (
		cfg cliconfig.Config
		err error
	)
	if cmd.Flags().Changed("config") {
		cfg, err = cliconfig.Load(g.configPath)
	} else {
		cfg, err = cliconfig.LoadOptional(g.configPath)
	}
	if err != nil {
		return cfg, err
	}
	if g.baseURL != "" {
		cfg.BaseURL = g.baseURL
	}
	if g.timeout > 0 {
		cfg.Timeout = g.timeout
	}
	if g.pollInterval > 0 {
		cfg.PollInterval = g.pollInterval
	}
	if g.maxAttempts > 0 {
		cfg.MaxAttempts = g.maxAttempts
	}
	if g.logLevel != "" {
		cfg.LogLevel = g.logLevel
	}
	return cfg, nil
}

func (g *globalFlags) client(cmd *cobra.Command) (*synthide.Client, cliconfig.Config, *zap.Logger, error) {
	cfg, err := g.resolve(cmd)
	if err != nil {
		return nil, cfg, nil, err
	}
	log, err := logger.New(logger.Config{Level: cfg.LogLevel, Format: "console", OutputPath: "stderr"})
	if err != nil {
		return nil, cfg, nil, err
	}
	client := synthide.New(cfg.BaseURL,
		synthide.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
		synthide.WithLogger(log),
	)
	return client, cfg, log, nil
}
