package main

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/efebarandurmaz/hrrag/internal/app"
	"github.com/efebarandurmaz/hrrag/internal/observability"
	"github.com/efebarandurmaz/hrrag/internal/rag"
	"github.com/efebarandurmaz/hrrag/internal/tui"
)

func newQueryCmd(configPath *string) *cobra.Command {
	var (
		topK    int
		jsonOut bool
		rawOut  bool
	)
	cmd := &cobra.Command{
		Use:   "query <question>",
		Short: "Answer one question from the command line",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if jsonOut && rawOut {
				return errors.New("--json and --raw are mutually exclusive")
			}
			cfg, err := app.Setup(*configPath)
			if err != nil {
				return err
			}
			rt, err := newRuntime(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer rt.close()

			resp, err := rt.pipeline.Query(cmd.Context(), strings.Join(args, " "), topK)
			if err != nil {
				return err
			}
			mode := outputText
			switch {
			case jsonOut:
				mode = outputJSON
			case rawOut:
				mode = outputRaw
			}
			return printResponse(os.Stdout, resp, mode)
		},
	}
	cmd.Flags().IntVar(&topK, "top-k", rag.DefaultTopK, "Number of sources to cite")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print the response as JSON")
	cmd.Flags().BoolVar(&rawOut, "raw", false, "Pretty-print the response struct")
	return cmd
}

func newTUICmd(configPath *string) *cobra.Command {
	var (
		topK       int
		transcript string
	)
	cmd := &cobra.Command{
		Use:   "tui",
		Short: "Ask questions interactively",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.Setup(*configPath)
			if err != nil {
				return err
			}
			// Log lines would tear the alternate screen.
			slog.SetDefault(observability.NewLogger(io.Discard, cfg.Log.Level, cfg.Log.Format))
			rt, err := newRuntime(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer rt.close()

			session, err := tui.Run(cmd.Context(), rt.pipeline, topK)
			if err != nil {
				return err
			}
			if transcript != "" {
				return tui.SaveTranscript(session, transcript)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&topK, "top-k", rag.DefaultTopK, "Number of sources to cite")
	cmd.Flags().StringVar(&transcript, "transcript", "", "Write the session as JSON to this file")
	return cmd
}
