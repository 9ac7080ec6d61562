package events

import (
	"sync"
	"testing"
	"time"
)

func TestNilBus(t *testing.T) {
	var b *Bus
	b.Publish(Event{Source: SourceGateway, Kind: KindDegraded})
	b.Emit(SourceListener, KindStateChange, nil)
	if got := b.SubscriberCount(); got != 0 {
		t.Errorf("SubscriberCount() on nil bus = %d, want 0", got)
	}
}

func TestEmit(t *testing.T) {
	b := New()
	ch, cancel := b.Subscribe(4)
	defer cancel()

	b.Emit(SourceListener, KindStateChange, map[string]any{"from": "idle", "to": "armed"})

	select {
	case got := <-ch:
		if got.Source != SourceListener || got.Kind != KindStateChange {
			t.Errorf("got %s/%s, want %s/%s", got.Source, got.Kind, SourceListener, KindStateChange)
		}
		if got.Data["to"] != "armed" {
			t.Errorf("data[to] = %v, want armed", got.Data["to"])
		}
		if got.Timestamp.IsZero() {
			t.Error("timestamp not set")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestPublish_FullSubscriberDoesNotBlock(t *testing.T) {
	b := New()
	ch, cancel := b.Subscribe(1)
	defer cancel()

	done := make(chan struct{})
	go func() {
		for range 10 {
			b.Emit(SourceGateway, KindProviderAttempt, nil)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full subscriber")
	}
	if len(ch) != 1 {
		t.Errorf("buffered = %d, want 1", len(ch))
	}
}

func TestSubscribe_CancelIsIdempotent(t *testing.T) {
	b := New()
	ch, cancel := b.Subscribe(1)
	if b.SubscriberCount() != 1 {
		t.Fatalf("SubscriberCount() = %d, want 1", b.SubscriberCount())
	}

	cancel()
	cancel()

	if _, ok := <-ch; ok {
		t.Error("channel should be closed after cancel")
	}
	if b.SubscriberCount() != 0 {
		t.Errorf("SubscriberCount() = %d, want 0", b.SubscriberCount())
	}
	b.Emit(SourceIPC, KindCommandReceived, nil)
}

func TestConcurrentPublishAndCancel(t *testing.T) {
	b := New()
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ch, cancel := b.Subscribe(2)
			b.Emit(SourceExecutor, KindCommandRun, nil)
			cancel()
			for range ch {
			}
		}()
	}
	wg.Wait()
}
