package speech

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// CommandSynthesizer speaks by running an external program (piper,
// espeak-ng, say) once per utterance with the text on stdin.
type CommandSynthesizer struct {
	Args []string
}

// Say runs the command and waits for it. Canceling ctx kills it.
func (c CommandSynthesizer) Say(ctx context.Context, text string) error {
	if len(c.Args) == 0 {
		return errors.New("no speech command configured")
	}
	cmd := exec.CommandContext(ctx, c.Args[0], c.Args[1:]...)
	cmd.Stdin = strings.NewReader(text)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		errOutput := strings.TrimSpace(stderr.String())
		if len(errOutput) > 500 {
			errOutput = errOutput[:500]
		}
		return fmt.Errorf("%s: %w: %s", c.Args[0], err, errOutput)
	}
	return nil
}
