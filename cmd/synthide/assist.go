package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	synthide "github.com/gsarma/synthide/sdk"
)

func newExplainCommand(g *globalFlags) *cobra.Command {
	var language string
	cmd := &cobra.Command{
		Use:   "explain <file|->",
		Short: "Ask the assistant to explain a program",
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
			client, _, log, err := g.client(cmd)
			if err != nil {
				return err
			}
			defer log.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			resp, err := client.Assist.Explain(ctx, source, lang)
			if err != nil {
				return err
			}
			if resp.Explanation == nil {
				return errors.New("service returned no explanation")
			}
			fmt.Fprintln(cmd.OutOrStdout(), *resp.Explanation)
			return nil
		},
	}
	cmd.Flags().StringVarP(&language, "language", "l", "", "python, javascript or cpp (default: from file extension)")
	return cmd
}

func newGenerateCommand(g *globalFlags) *cobra.Command {
	var language string
	cmd := &cobra.Command{
		Use:   "generate <task...>",
		Short: "Ask the assistant to write a program for a task",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lang, err := synthide.ParseLanguage(language)
			if err != nil {
				return err
			}
			client, _, log, err := g.client(cmd)
			if err != nil {
				return err
			}
			defer log.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			resp, err := client.Assist.Generate(ctx, synthide.GenerateRequest{
				Prompt:   strings.Join(args, " "),
				Language: lang,
			})
			if err != nil {
				return err
			}
			if resp.Code == nil {
				return errors.New("service returned no code")
			}
			fmt.Fprintln(cmd.OutOrStdout(), *resp.Code)
			return nil
		},
	}
	cmd.Flags().StringVarP(&language, "language", "l", string(synthide.LanguagePython), "python, javascript or cpp")
	return cmd
}

func newTemplateCommand() *cobra.Command {
	return &cobra.Command{
		Use:       "template <language>",
		Short:     "Print the starter program for a language",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"python", "javascript", "cpp"},
		RunE: func(cmd *cobra.Command, args []string) error {
			lang, err := synthide.ParseLanguage(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), synthide.Template(lang))
			return nil
		},
	}
}
