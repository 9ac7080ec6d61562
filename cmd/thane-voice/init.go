package main

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nugget/thane-voice/examples"
)

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init [dir]",
		Short: "Create a working directory with example config, persona, and plugins",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}
			return runInit(cmd.OutOrStdout(), dir)
		},
	}
}

// runInit installs the bundled examples into dir. Existing files are
// never overwritten.
func runInit(w io.Writer, dir string) error {
	fmt.Fprintf(w, "Initializing thane-voice workspace in %s\n", dir)

	for _, sub := range []string{"data", "plugins"} {
		p := filepath.Join(dir, sub)
		if err := os.MkdirAll(p, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", p, err)
		}
	}

	files := []struct {
		name    string
		content []byte
	}{
		{"config.yaml", examples.ConfigYAML},
		{"persona.md", examples.PersonaMD},
	}
	for _, f := range files {
		p := filepath.Join(dir, f.name)
		if err := writeIfMissing(w, p, f.content); err != nil {
			return err
		}
	}

	// Plugins are flattened: plugins/core/core.go becomes plugins/core.go.
	err := fs.WalkDir(examples.Plugins, "plugins", func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		content, err := examples.Plugins.ReadFile(p)
		if err != nil {
			return fmt.Errorf("read embedded %s: %w", p, err)
		}
		return writeIfMissing(w, filepath.Join(dir, "plugins", path.Base(p)), content)
	})
	if err != nil {
		return fmt.Errorf("install plugins: %w", err)
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Edit config.yaml and persona.md, then run: thane-voice serve")
	return nil
}

// writeIfMissing writes content to p unless a file is already there.
func writeIfMissing(w io.Writer, p string, content []byte) error {
	if _, err := os.Stat(p); err == nil {
		fmt.Fprintf(w, "  - %s (kept)\n", p)
		return nil
	}
	if err := os.WriteFile(p, content, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", p, err)
	}
	fmt.Fprintf(w, "  ✓ %s\n", p)
	return nil
}
