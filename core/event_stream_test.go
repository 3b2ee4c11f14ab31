package core

import (
	"context"
	"testing"
	"time"
)

func waitWatchers(t *testing.T, s *EventStream) {
	t.Helper()
	finished := make(chan struct{})
	go func() {
		s.watchers.Wait()
		close(finished)
	}()
	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatalf("subscription watcher still running")
	}
}

func TestEventStreamCancelReleasesWatcher(t *testing.T) {
	stream := NewEventStream(4)
	ctx, cancelCtx := context.WithCancel(context.Background())
	defer cancelCtx()

	updates, cancel, _, err := stream.Subscribe(ctx, "")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	cancel()
	cancel()
	if _, open := <-updates; open {
		t.Fatalf("updates channel should be closed after cancel")
	}
	waitWatchers(t, stream)

	stream.mu.Lock()
	remaining := len(stream.subs)
	stream.mu.Unlock()
	if remaining != 0 {
		t.Fatalf("expected no subscribers, got %d", remaining)
	}
}

func TestEventStreamContextEndsSubscription(t *testing.T) {
	stream := NewEventStream(4)
	ctx, cancelCtx := context.WithCancel(context.Background())
	updates, cancel, _, err := stream.Subscribe(ctx, "")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()
	cancelCtx()
	select {
	case _, open := <-updates:
		if open {
			t.Fatalf("unexpected event on idle stream")
		}
	case <-time.After(time.Second):
		t.Fatalf("context cancellation did not close the subscription")
	}
	waitWatchers(t, stream)

	if _, cancel, _, err := stream.Subscribe(context.Background(), ""); err != nil {
		t.Fatalf("subscribe: %v", err)
	} else {
		cancel()
	}
	waitWatchers(t, stream)
}
