// Thane-voice is a voice assistant: it waits for a wake phrase, turns
// the following speech into text, lets a language model decide what to
// say or which plugin to run, and speaks the answer.
//
// Usage:
//
//	thane-voice serve              Listen for the wake word and serve commands
//	thane-voice ask <text>         Answer one request through the full pipeline
//	thane-voice activate           Start listening without the wake word
//	thane-voice notify-config      Ask a running instance to reload its config
//	thane-voice plugins            List the functions the plugins expose
//	thane-voice init [dir]         Create a working directory with examples
//	thane-voice version            Print version and build information
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/nugget/thane-voice/internal/config"
	"github.com/nugget/thane-voice/internal/ipc"
)

// main only wires the process environment into [run] so the whole
// command surface can be driven from tests.
func main() {
	if err := run(context.Background(), os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// globals are the persistent flags shared by every subcommand.
type globals struct {
	configPath string
	output     string
}

// run builds a fresh command tree per call, so nothing is shared
// between concurrent invocations.
func run(ctx context.Context, stdout, stderr io.Writer, args []string) error {
	g := &globals{}
	root := &cobra.Command{
		Use:           "thane-voice",
		Short:         "Voice assistant with pluggable capabilities",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if g.output != "text" && g.output != "json" {
				return fmt.Errorf("unknown output format: %q (expected text or json)", g.output)
			}
			return nil
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetArgs(args)
	root.PersistentFlags().StringVarP(&g.configPath, "config", "c", "", "path to config file (default: auto-discover)")
	root.PersistentFlags().StringVarP(&g.output, "output", "o", "text", "output format: text or json")

	root.AddCommand(
		newServeCmd(g),
		newAskCmd(g),
		newSendCmd(g, "activate", "Start listening without the wake word", ipc.ActionActivate),
		newSendCmd(g, "notify-config", "Ask a running instance to restart with fresh configuration", ipc.ActionConfigUpdated),
		newPluginsCmd(g),
		newInitCmd(),
		newVersionCmd(g),
	)
	return root.ExecuteContext(ctx)
}

// loadConfig finds and parses the configuration. An explicit path must
// exist; otherwise the default search paths are tried.
func loadConfig(explicit string) (*config.Config, string, error) {
	cfgPath, err := config.FindConfig(explicit)
	if err != nil {
		return nil, "", err
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, cfgPath, fmt.Errorf("load config %s: %w", cfgPath, err)
	}
	return cfg, cfgPath, nil
}

// newLogger builds the configured logger. Load already validated the
// level, so a parse failure cannot happen here.
func newLogger(w io.Writer, cfg *config.Config) *slog.Logger {
	level, _ := config.ParseLogLevel(cfg.LogLevel)
	return config.NewLogger(w, level, cfg.LogFormat)
}
