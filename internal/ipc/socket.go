package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/nugget/thane-voice/internal/events"
)

// Server accepts line-delimited JSON commands on a unix socket and
// acknowledges each one.
type Server struct {
	path   string
	queue  *Queue
	bus    *events.Bus
	logger *slog.Logger
}

// NewServer creates a server that pushes commands onto queue.
func NewServer(path string, queue *Queue, bus *events.Bus, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		path:   path,
		queue:  queue,
		bus:    bus,
		logger: logger.With("component", "ipc"),
	}
}

// Serve listens until ctx ends. A stale socket file from a previous run
// is removed first.
func (s *Server) Serve(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create socket dir: %w", err)
	}
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove stale socket: %w", err)
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "unix", s.path)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.path, err)
	}
	defer os.Remove(s.path)

	s.logger.Info("command socket listening", "path", s.path)

	var wg sync.WaitGroup
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				wg.Wait()
				return nil
			}
			s.logger.Warn("accept failed", "error", err)
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.handleConn(ctx, conn)
		}()
	}
}

// handleConn reads commands until the peer disconnects.
func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.SetDeadline(time.Now())
		case <-done:
		}
	}()

	enc := json.NewEncoder(conn)
	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		ack := s.accept(scanner.Bytes(), "socket")
		if err := enc.Encode(ack); err != nil {
			return
		}
	}
}

// accept decodes and enqueues one message, returning its ack.
func (s *Server) accept(line []byte, origin string) Ack {
	cmd, err := s.queue.Submit(line, origin)
	if err != nil {
		s.logger.Warn("rejected command", "action", cmd.Action, "error", err)
		return Ack{ID: cmd.ID, Error: err.Error()}
	}
	s.logger.Debug("command queued", "action", cmd.Action, "id", cmd.ID)
	s.bus.Emit(events.SourceIPC, events.KindCommandReceived, map[string]any{
		"action": string(cmd.Action),
		"origin": origin,
	})
	return Ack{ID: cmd.ID, OK: true}
}

// Send delivers one command to the server at path and waits for its
// ack.
func Send(ctx context.Context, path string, cmd Command) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", path)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", path, err)
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal command: %w", err)
	}
	if _, err := conn.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("send command: %w", err)
	}

	scanner := bufio.NewScanner(conn)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return fmt.Errorf("read ack: %w", err)
		}
		return errors.New("no ack received")
	}
	var ack Ack
	if err := json.Unmarshal(scanner.Bytes(), &ack); err != nil {
		return fmt.Errorf("decode ack: %w", err)
	}
	if !ack.OK {
		return fmt.Errorf("command rejected: %s", ack.Error)
	}
	return nil
}
