package dialogue

import (
	"time"

	"github.com/google/uuid"

	"github.com/nugget/thane-voice/internal/llm"
	"github.com/nugget/thane-voice/pkg/plugin"
)

// Roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Turn is one entry of the conversation.
type Turn struct {
	ID      uuid.UUID
	Role    string
	Content string
	// Intent is the command a turn dispatched, if any.
	Intent string
	At     time.Time
}

// Trim returns the last max turns in their original order. The input
// is not modified. A non-positive max keeps nothing.
func Trim(turns []Turn, max int) []Turn {
	if max <= 0 {
		return nil
	}
	if len(turns) <= max {
		return turns
	}
	return append([]Turn(nil), turns[len(turns)-max:]...)
}

// History is a bounded conversation. It is not safe for concurrent use;
// the pipeline only touches it from the scheduler goroutine.
type History struct {
	max   int
	turns []Turn
}

// NewHistory creates a history holding at most max turns.
func NewHistory(max int) *History {
	if max <= 0 {
		max = 20
	}
	return &History{max: max}
}

// Append adds a turn, filling in ID and time, then evicts the oldest
// turns beyond the maximum.
func (h *History) Append(t Turn) Turn {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.At.IsZero() {
		t.At = time.Now()
	}
	h.turns = Trim(append(h.turns, t), h.max)
	return t
}

// Len returns the number of turns held.
func (h *History) Len() int { return len(h.turns) }

// Turns returns a copy of the turns, oldest first.
func (h *History) Turns() []Turn {
	out := make([]Turn, len(h.turns))
	copy(out, h.turns)
	return out
}

// Reset drops every turn.
func (h *History) Reset() { h.turns = nil }

// Messages renders the history as model messages.
func (h *History) Messages() []llm.Message {
	out := make([]llm.Message, 0, len(h.turns))
	for _, t := range h.turns {
		out = append(out, llm.Message{Role: t.Role, Content: t.Content})
	}
	return out
}

// PluginTurns renders the history for capability handlers.
func (h *History) PluginTurns() []plugin.Turn {
	out := make([]plugin.Turn, 0, len(h.turns))
	for _, t := range h.turns {
		out = append(out, plugin.Turn{Role: t.Role, Content: t.Content, Intent: t.Intent})
	}
	return out
}
