// Package events is the operational event bus. Components publish what
// they are doing (provider attempts, listener state changes, command
// runs) and subscribers such as the MQTT state publisher consume it.
// Publishing on a nil *Bus is a no-op, so components need no guards.
package events

import (
	"sync"
	"time"
)

// Sources.
const (
	SourceGateway  = "gateway"
	SourcePipeline = "pipeline"
	SourceExecutor = "executor"
	SourceListener = "listener"
	SourceRegistry = "registry"
	SourceIPC      = "ipc"
)

// Kinds, with the keys carried in Data.
const (
	// KindProviderAttempt: provider, model.
	KindProviderAttempt = "provider_attempt"
	// KindProviderFailed: provider, stage (ping|chat), error.
	KindProviderFailed = "provider_failed"
	// KindProviderAnswered: provider, model, tool_calls, elapsed_ms.
	KindProviderAnswered = "provider_answered"
	// KindDegraded: attempts.
	KindDegraded = "degraded"

	// KindUtterance: language, corrected.
	KindUtterance = "utterance"
	// KindRetry: command.
	KindRetry = "retry"

	// KindCommandRun: command, sub.
	KindCommandRun = "command_run"
	// KindCommandDone: command, sub, ok, elapsed_ms.
	KindCommandDone = "command_done"

	// KindStateChange: from, to.
	KindStateChange = "state_change"

	// KindReload: generation, capabilities, skipped.
	KindReload = "reload"

	// KindCommandReceived: action, origin.
	KindCommandReceived = "command_received"
)

// Event is one published occurrence.
type Event struct {
	Timestamp time.Time      `json:"ts"`
	Source    string         `json:"source"`
	Kind      string         `json:"kind"`
	Data      map[string]any `json:"data,omitempty"`
}

// Bus broadcasts events to buffered subscriber channels. A full
// subscriber misses events; publishers never block.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]chan Event
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{subs: make(map[int]chan Event)}
}

// Publish delivers e to every subscriber that has room for it.
func (b *Bus) Publish(e Event) {
	if b == nil {
		return
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// Emit is shorthand for publishing an event stamped now.
func (b *Bus) Emit(source, kind string, data map[string]any) {
	b.Publish(Event{Timestamp: time.Now(), Source: source, Kind: kind, Data: data})
}

// Subscribe returns a channel of future events and a function that ends
// the subscription and closes the channel. The cancel function may be
// called more than once.
func (b *Bus) Subscribe(bufSize int) (<-chan Event, func()) {
	ch := make(chan Event, bufSize)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}

// SubscriberCount returns the number of active subscribers.
func (b *Bus) SubscriberCount() int {
	if b == nil {
		return 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
