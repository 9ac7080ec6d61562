package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nugget/thane-voice/internal/dialogue"
	"github.com/nugget/thane-voice/internal/orchestrator"
)

func newAskCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "ask <text>",
		Short: "Answer one request through the full pipeline",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(g.configPath)
			if err != nil {
				return err
			}
			stdout := cmd.OutOrStdout()
			// Logs go to stderr so the reply stays readable on stdout.
			logger := newLogger(cmd.ErrOrStderr(), cfg)

			console := stdout
			if g.output == "json" {
				console = io.Discard
			}
			a, err := orchestrator.New(cmd.Context(), cfg, orchestrator.Options{Console: console}, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			out, err := a.Ask(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			if g.output == "json" {
				return writeOutcome(stdout, out)
			}
			return nil
		},
	}
}

// writeOutcome prints the outcome as indented JSON.
func writeOutcome(w io.Writer, out dialogue.Outcome) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]any{
		"transcript": out.Transcript,
		"language":   out.Language,
		"command":    out.Command,
		"sub":        out.Sub,
		"params":     out.Reply.Params,
		"spoken":     out.Spoken,
		"ok":         out.OK,
		"retried":    out.Retried,
		"degraded":   out.Degraded,
	})
}
