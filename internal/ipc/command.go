// Package ipc is the cross-process command channel. Other processes
// (the admin front-end, the CLI, MQTT) send small [Command] messages
// that land on a [Queue] consumed by the orchestrator.
package ipc

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Action is the closed set of commands.
type Action string

const (
	// ActionActivate starts listening without the wake word.
	ActionActivate Action = "activate"
	// ActionConfigUpdated asks the assistant to stop and restart with
	// fresh configuration.
	ActionConfigUpdated Action = "config_updated"
)

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	switch a {
	case ActionActivate, ActionConfigUpdated:
		return true
	}
	return false
}

// Command is one message on the channel.
type Command struct {
	ID      string          `json:"id,omitempty"`
	Action  Action          `json:"action"`
	Payload json.RawMessage `json:"payload,omitempty"`
	// Origin names the transport it arrived on: "socket", "mqtt".
	Origin string    `json:"origin,omitempty"`
	SentAt time.Time `json:"sent_at,omitempty"`
}

// NewCommand builds a command with a fresh ID.
func NewCommand(action Action) Command {
	return Command{ID: uuid.NewString(), Action: action, SentAt: time.Now()}
}

// Decode parses and validates one JSON message.
func Decode(data []byte) (Command, error) {
	var c Command
	if err := json.Unmarshal(data, &c); err != nil {
		return Command{}, fmt.Errorf("decode command: %w", err)
	}
	if !c.Action.Valid() {
		return Command{}, fmt.Errorf("unknown action %q", c.Action)
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return c, nil
}

// Ack is the server's reply to one command.
type Ack struct {
	ID    string `json:"id,omitempty"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}
