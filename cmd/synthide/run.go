package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	synthide "github.com/gsarma/synthide/sdk"
)

func newRunCommand(g *globalFlags) *cobra.Command {
	var (
		language  string
		input     string
		inputFile string
		verbose   bool
	)
	cmd := &cobra.Command{
		Use:   "run <file|->",
		Short: "Execute a program and print its output",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			source, err := readSource(cmd, args[0])
			if err != nil {
				return err
			}
			lang, err := resolveLanguage(language, args[0])
			if err != nil {
				return err
			}
			if inputFile != "" {
				data, err := os.ReadFile(inputFile)
				if err != nil {
					return fmt.Errorf("read input file: %w", err)
				}
				input = string(data)
			}

			client, cfg, log, err := g.client(cmd)
			if err != nil {
				return err
			}
			defer log.Sync()

			var opts []synthide.ControllerOption
			if verbose {
				errOut := cmd.ErrOrStderr()
				opts = append(opts, synthide.WithObserver(func(s synthide.Snapshot) {
					fmt.Fprintf(errOut, "[%s] %s\n", s.State, s.Handle.RunID)
				}))
			}
			policy := synthide.Policy{Interval: cfg.PollInterval, MaxAttempts: cfg.MaxAttempts}
			ctrl := client.Controller(policy, opts...)
			defer ctrl.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			req := synthide.RunRequest{SourceCode: source, Language: lang, Stdin: input}
			if _, err := ctrl.StartRun(ctx, req); err != nil {
				var subErr *synthide.SubmissionError
				if !errors.As(err, &subErr) {
					return err
				}
				// the outcome below reports submission failures
			}

			outcome, err := ctrl.Wait(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprint(out, outcome.Status())
			if !strings.HasSuffix(outcome.Status(), "\n") && outcome.Status() != "" {
				fmt.Fprintln(out)
			}
			if !outcome.Succeeded() {
				if outcome.Err != nil {
					log.Debug(outcome.Err.Error())
				}
				return errRunFailed
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&language, "language", "l", "", "python, javascript or cpp (default: from file extension)")
	cmd.Flags().StringVarP(&input, "input", "i", "", "text passed to the program's stdin")
	cmd.Flags().StringVar(&inputFile, "input-file", "", "file passed to the program's stdin")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "print lifecycle transitions to stderr")
	return cmd
}

func readSource(cmd *cobra.Command, path string) (string, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("read source: %w", err)
	}
	return string(data), nil
}

// resolveLanguage uses the explicit flag when given and the file extension otherwise.
func resolveLanguage(flag, path string) (synthide.Language, error) {
	if flag != "" {
		return synthide.ParseLanguage(flag)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".py":
		return synthide.LanguagePython, nil
	case ".js", ".mjs", ".cjs":
		return synthide.LanguageJavaScript, nil
	case ".cpp", ".cc", ".cxx":
		return synthide.LanguageCpp, nil
	}
	return "", fmt.Errorf("cannot infer language of %q; pass --language", path)
}
