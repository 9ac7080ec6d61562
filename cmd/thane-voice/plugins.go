package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nugget/thane-voice/internal/capability"
)

func newPluginsCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "plugins",
		Short: "List the functions the plugin directory exposes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(g.configPath)
			if err != nil {
				return err
			}
			reg := capability.NewRegistry(capability.Config{
				Dir:         cfg.Plugins.Dir,
				StateFile:   cfg.Plugins.StateFile,
				LoadTimeout: cfg.Executor.Timeout,
			}, newLogger(cmd.ErrOrStderr(), cfg))
			gen, err := reg.Reload(cmd.Context())
			if err != nil {
				return err
			}
			if g.output == "json" {
				return writeSchemasJSON(cmd.OutOrStdout(), gen)
			}
			return writeSchemasText(cmd.OutOrStdout(), gen)
		},
	}
}

func writeSchemasJSON(w io.Writer, gen *capability.Generation) error {
	type fn struct {
		Name        string         `json:"name"`
		Description string         `json:"description"`
		Parameters  map[string]any `json:"parameters"`
	}
	type skipped struct {
		Plugin string `json:"plugin"`
		Source string `json:"source"`
		Reason string `json:"reason"`
	}
	out := struct {
		Functions []fn      `json:"functions"`
		Skipped   []skipped `json:"skipped,omitempty"`
	}{Functions: []fn{}}
	for _, s := range gen.Schemas() {
		out.Functions = append(out.Functions, fn{Name: s.Name, Description: s.Description, Parameters: s.Parameters})
	}
	for _, s := range gen.Skipped() {
		out.Skipped = append(out.Skipped, skipped(s))
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func writeSchemasText(w io.Writer, gen *capability.Generation) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, s := range gen.Schemas() {
		var names []string
		for _, p := range s.Params {
			names = append(names, p.Name)
		}
		fmt.Fprintf(tw, "%s\t%v\t%s\n", s.Name, names, s.Description)
	}
	for _, s := range gen.Skipped() {
		fmt.Fprintf(tw, "skipped %s\t%s\t%s\n", s.Plugin, s.Source, s.Reason)
	}
	return tw.Flush()
}
