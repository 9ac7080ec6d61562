package mqtt

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nugget/thane-voice/internal/config"
	"github.com/nugget/thane-voice/internal/events"
	"github.com/nugget/thane-voice/internal/ipc"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recordingSubmitter struct {
	mu      sync.Mutex
	origins []string
	err     error
}

func (r *recordingSubmitter) Submit(data []byte, origin string) (ipc.Command, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return ipc.Command{}, r.err
	}
	cmd, err := ipc.Decode(data)
	if err != nil {
		return ipc.Command{}, err
	}
	r.origins = append(r.origins, origin)
	return cmd, nil
}

func testBridge(q Submitter, bus *events.Bus) *Bridge {
	cfg := config.MQTTConfig{TopicPrefix: "home/voice/", DeviceName: "kitchen"}
	return New(cfg, "kitchen-abc", q, bus, discardLogger())
}

func TestLoadOrCreateInstanceID(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")

	first, err := LoadOrCreateInstanceID(dir)
	if err != nil {
		t.Fatalf("LoadOrCreateInstanceID() error = %v", err)
	}
	if parts := strings.Split(first, "-"); len(parts) != 5 {
		t.Errorf("id %q does not look like a UUID", first)
	}

	data, err := os.ReadFile(filepath.Join(dir, instanceFile))
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if got := strings.TrimSpace(string(data)); got != first {
		t.Errorf("file content = %q, want %q", got, first)
	}

	second, err := LoadOrCreateInstanceID(dir)
	if err != nil {
		t.Fatalf("second call error = %v", err)
	}
	if second != first {
		t.Errorf("second = %q, want %q (should be stable)", second, first)
	}
}

func TestClientID(t *testing.T) {
	tests := []struct {
		device, id, want string
	}{
		{"kitchen", "0190a5b2-7c1d-7e3f-8a9b-0123456789ab", "kitchen-0123456789ab"},
		{"kitchen", "", "kitchen"},
		{"kitchen", "plain", "kitchen-plain"},
	}
	for _, tt := range tests {
		if got := ClientID(tt.device, tt.id); got != tt.want {
			t.Errorf("ClientID(%q, %q) = %q, want %q", tt.device, tt.id, got, tt.want)
		}
	}
}

func TestBridge_Topics(t *testing.T) {
	b := testBridge(&recordingSubmitter{}, nil)
	if got := b.commandTopic(); got != "home/voice/command" {
		t.Errorf("commandTopic() = %q", got)
	}
	if got := b.stateTopic(); got != "home/voice/state" {
		t.Errorf("stateTopic() = %q", got)
	}
	if got := b.availabilityTopic(); got != "home/voice/availability" {
		t.Errorf("availabilityTopic() = %q", got)
	}
}

func TestBridge_HandleMessage(t *testing.T) {
	bus := events.New()
	evs, unsub := bus.Subscribe(4)
	defer unsub()

	sub := &recordingSubmitter{}
	b := testBridge(sub, bus)

	b.handleMessage("home/voice/command", []byte(`{"action": "activate"}`))
	b.handleMessage("home/voice/other", []byte(`{"action": "activate"}`))
	b.handleMessage("home/voice/command", []byte(`{"action": "reboot"}`))

	if len(sub.origins) != 1 || sub.origins[0] != Origin {
		t.Errorf("submitted origins = %v, want [mqtt]", sub.origins)
	}
	ev := <-evs
	if ev.Kind != events.KindCommandReceived || ev.Data["origin"] != Origin {
		t.Errorf("event = %+v", ev)
	}
	select {
	case ev := <-evs:
		t.Errorf("unexpected extra event %+v", ev)
	default:
	}
}

func TestBridge_HandleMessageQueueFull(t *testing.T) {
	sub := &recordingSubmitter{err: ipc.ErrQueueFull}
	b := testBridge(sub, nil)
	b.handleMessage("home/voice/command", []byte(`{"action": "activate"}`))
	if len(sub.origins) != 0 {
		t.Errorf("origins = %v, want none", sub.origins)
	}
}

func TestBridge_ForwardTracksState(t *testing.T) {
	bus := events.New()
	b := testBridge(&recordingSubmitter{}, bus)

	evs, unsub := bus.Subscribe(4)
	defer unsub()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		b.forward(ctx, evs)
		close(done)
	}()

	bus.Emit(events.SourcePipeline, events.KindUtterance, map[string]any{"language": "en"})
	bus.Emit(events.SourceListener, events.KindStateChange, map[string]any{"from": "idle", "to": "wake_word_armed"})

	deadline := time.Now().Add(2 * time.Second)
	for {
		if s, ok := b.lastState(); ok {
			if s.State != "wake_word_armed" || s.Previous != "idle" || s.Device != "kitchen" {
				t.Errorf("lastState() = %+v", s)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("state never recorded")
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	<-done
}

func TestStatePayload(t *testing.T) {
	at := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	tests := []struct {
		name   string
		event  events.Event
		want   string
		wantOK bool
	}{
		{
			name:   "listener state change",
			event:  events.Event{Timestamp: at, Source: events.SourceListener, Kind: events.KindStateChange, Data: map[string]any{"from": "capturing", "to": "processing"}},
			want:   "processing",
			wantOK: true,
		},
		{
			name:  "other kind",
			event: events.Event{Source: events.SourceListener, Kind: events.KindReload},
		},
		{
			name:  "other source",
			event: events.Event{Source: events.SourcePipeline, Kind: events.KindStateChange, Data: map[string]any{"to": "x"}},
		},
		{
			name:  "missing target",
			event: events.Event{Source: events.SourceListener, Kind: events.KindStateChange, Data: map[string]any{"from": "idle"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := statePayload(tt.event, "kitchen")
			if ok != tt.wantOK {
				t.Fatalf("statePayload() ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && got.State != tt.want {
				t.Errorf("State = %q, want %q", got.State, tt.want)
			}
		})
	}
}

func TestStatePayload_Encode(t *testing.T) {
	s := StatePayload{State: "capturing", Previous: "wake_word_armed", Device: "kitchen"}
	var decoded map[string]any
	if err := json.Unmarshal(s.encode(), &decoded); err != nil {
		t.Fatalf("encode() produced invalid JSON: %v", err)
	}
	if decoded["state"] != "capturing" || decoded["device"] != "kitchen" {
		t.Errorf("decoded = %v", decoded)
	}
}

func TestRateLimiter(t *testing.T) {
	rl := newRateLimiter(5, time.Second, discardLogger())
	for i := range 5 {
		if !rl.allow() {
			t.Errorf("message %d should have been allowed", i)
		}
	}
	if rl.allow() {
		t.Error("message 6 should have been rate-limited")
	}
	if dropped := rl.dropped.Load(); dropped != 1 {
		t.Errorf("dropped = %d, want 1", dropped)
	}
}

func TestRateLimiter_ResetsEachInterval(t *testing.T) {
	rl := newRateLimiter(1, 10*time.Millisecond, discardLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go rl.run(ctx)

	rl.allow()
	if rl.allow() {
		t.Fatal("second message in the same interval should be dropped")
	}
	deadline := time.Now().Add(time.Second)
	for rl.count.Load() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("counter never reset")
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestBridge_StopWithoutStart(t *testing.T) {
	b := testBridge(&recordingSubmitter{}, nil)
	if err := b.Stop(context.Background()); err != nil {
		t.Errorf("Stop() = %v", err)
	}
}
