package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"
)

// Source produces frames until ctx ends or the device fails.
type Source interface {
	Stream(ctx context.Context, q *Queue) error
}

// CommandSource reads raw PCM from the stdout of a capture command
// such as arecord or parec.
type CommandSource struct {
	Args       []string
	SampleRate int
	FrameSize  time.Duration
}

// Stream runs the command and pushes fixed-size frames onto q. It
// returns nil when ctx ends and an error if the command exits first.
func (s CommandSource) Stream(ctx context.Context, q *Queue) error {
	if len(s.Args) == 0 {
		return errors.New("audio command not configured")
	}
	size := Bytes(s.FrameSize, s.SampleRate)
	if size <= 0 {
		return fmt.Errorf("invalid frame size %s at %d Hz", s.FrameSize, s.SampleRate)
	}

	cmd := exec.CommandContext(ctx, s.Args[0], s.Args[1:]...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("audio command stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", s.Args[0], err)
	}

	readErr := pump(stdout, size, q)
	waitErr := cmd.Wait()
	if ctx.Err() != nil {
		return nil
	}
	if msg := strings.TrimSpace(stderr.String()); msg != "" {
		return fmt.Errorf("%s exited: %s", s.Args[0], msg)
	}
	if waitErr != nil {
		return fmt.Errorf("%s exited: %w", s.Args[0], waitErr)
	}
	return fmt.Errorf("%s exited: %w", s.Args[0], readErr)
}

// pump copies r onto q in frames of size bytes until r fails.
func pump(r io.Reader, size int, q *Queue) error {
	for {
		buf := make([]byte, size)
		if _, err := io.ReadFull(r, buf); err != nil {
			if errors.Is(err, io.ErrUnexpectedEOF) {
				err = io.EOF
			}
			return err
		}
		q.Push(Frame{PCM: buf, At: time.Now()})
	}
}
