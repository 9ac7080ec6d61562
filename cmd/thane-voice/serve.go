package main

import (
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nugget/thane-voice/internal/buildinfo"
	"github.com/nugget/thane-voice/internal/orchestrator"
)

func newServeCmd(g *globals) *cobra.Command {
	listen := true
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Listen for the wake word and serve commands",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// SIGINT and SIGTERM cancel the context; every component
			// unwinds from there.
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			stdout := cmd.OutOrStdout()
			for {
				cfg, cfgPath, err := loadConfig(g.configPath)
				if err != nil {
					return err
				}
				logger := newLogger(stdout, cfg)
				logger.Info("starting thane-voice",
					"version", buildinfo.Version,
					"commit", buildinfo.GitCommit,
					"config", cfgPath,
					"providers", cfg.ProviderNames(),
				)

				a, err := orchestrator.New(ctx, cfg, orchestrator.Options{Listen: listen, Console: stdout}, logger)
				if err != nil {
					return err
				}
				err = a.Run(ctx)
				if cerr := a.Close(); cerr != nil {
					logger.Warn("close failed", "error", cerr)
				}
				if errors.Is(err, orchestrator.ErrRestartRequested) && ctx.Err() == nil {
					logger.Info("configuration changed, restarting")
					continue
				}
				if err == nil {
					logger.Info("shutdown complete")
				}
				return err
			}
		},
	}
	cmd.Flags().BoolVar(&listen, "listen", true, "capture audio and watch for the wake word")
	return cmd
}
