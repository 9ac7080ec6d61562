package orchestrator

import (
	"bytes"
	"context"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

const hintTimeout = 2 * time.Second

// commandHinter reports the foreground context by running a command
// such as "xdotool getactivewindow getwindowname".
type commandHinter struct {
	args   []string
	logger *slog.Logger
}

func (h commandHinter) Foreground(ctx context.Context) string {
	if len(h.args) == 0 {
		return ""
	}
	ctx, cancel := context.WithTimeout(ctx, hintTimeout)
	defer cancel()

	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, h.args[0], h.args[1:]...)
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		h.logger.Debug("foreground hint unavailable", "command", h.args[0], "error", err)
		return ""
	}
	return strings.TrimSpace(out.String())
}
