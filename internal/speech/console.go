package speech

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

// ConsoleSynthesizer prints replies instead of speaking them. Output is
// colored only when w is a terminal.
type ConsoleSynthesizer struct {
	mu     sync.Mutex
	w      io.Writer
	prefix string
	label  *color.Color
}

// NewConsoleSynthesizer writes replies to w prefixed with the
// assistant's name.
func NewConsoleSynthesizer(w io.Writer, name string) *ConsoleSynthesizer {
	label := color.New(color.FgCyan, color.Bold)
	if !IsTerminal(w) {
		label.DisableColor()
	} else {
		label.EnableColor()
	}
	return &ConsoleSynthesizer{w: w, prefix: name + ":", label: label}
}

// Say prints one line.
func (c *ConsoleSynthesizer) Say(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := fmt.Fprintf(c.w, "%s %s\n", c.label.Sprint(c.prefix), text)
	return err
}

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
