package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nugget/thane-voice/internal/buildinfo"
)

func newVersionCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and build information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			info := buildinfo.Info()
			if g.output == "json" {
				enc := json.NewEncoder(w)
				enc.SetIndent("", "  ")
				return enc.Encode(info)
			}
			fmt.Fprintln(w, buildinfo.String())
			fmt.Fprintf(w, "  %-12s %s\n", "go_version:", info.GoVersion)
			fmt.Fprintf(w, "  %-12s %s/%s\n", "platform:", info.OS, info.Arch)
			return nil
		},
	}
}
