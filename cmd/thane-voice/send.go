package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nugget/thane-voice/internal/ipc"
)

const sendTimeout = 5 * time.Second

// newSendCmd builds a command that delivers one action to a running
// instance over its command socket.
func newSendCmd(g *globals, use, short string, action ipc.Action) *cobra.Command {
	var socket string
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if socket == "" {
				cfg, _, err := loadConfig(g.configPath)
				if err != nil {
					return err
				}
				socket = cfg.IPC.Socket
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), sendTimeout)
			defer cancel()

			c := ipc.NewCommand(action)
			if err := ipc.Send(ctx, socket, c); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s acknowledged (%s)\n", action, c.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&socket, "socket", "", "command socket path (default: from config)")
	return cmd
}
