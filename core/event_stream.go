package core

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"dinechain/core/events"
	"dinechain/core/types"
)

const eventStreamHistoryLimit = 2048

// StreamEvent is a committed ledger event tagged with a monotonically
// increasing cursor.
type StreamEvent struct {
	Sequence  uint64
	Cursor    string
	TxHash    []byte
	Timestamp uint64
	Event     *types.Event
}

func cloneStreamEvent(evt StreamEvent) StreamEvent {
	cloned := evt
	if len(evt.TxHash) > 0 {
		cloned.TxHash = append([]byte(nil), evt.TxHash...)
	}
	if evt.Event != nil {
		attrs := make(map[string]string, len(evt.Event.Attributes))
		for k, v := range evt.Event.Attributes {
			attrs[k] = v
		}
		cloned.Event = &types.Event{Type: evt.Event.Type, Attributes: attrs}
	}
	return cloned
}

// EventStream keeps a bounded history of committed events and fans them out
// to live subscribers. Slow subscribers miss events rather than block the
// node; they can resume from their last cursor.
type EventStream struct {
	mu      sync.Mutex
	seq     uint64
	nextID  uint64
	history []StreamEvent
	subs    map[uint64]chan StreamEvent
	limit   int

	watchers sync.WaitGroup
}

// NewEventStream creates a stream retaining up to limit events.
func NewEventStream(limit int) *EventStream {
	if limit <= 0 {
		limit = eventStreamHistoryLimit
	}
	return &EventStream{subs: make(map[uint64]chan StreamEvent), limit: limit}
}

func (s *EventStream) publish(txHash []byte, timestamp uint64, evt *types.Event) {
	if s == nil || evt == nil {
		return
	}
	s.mu.Lock()
	s.seq++
	entry := StreamEvent{
		Sequence:  s.seq,
		Cursor:    strconv.FormatUint(s.seq, 10),
		TxHash:    txHash,
		Timestamp: timestamp,
		Event:     evt,
	}
	s.history = append(s.history, cloneStreamEvent(entry))
	if len(s.history) > s.limit {
		excess := len(s.history) - s.limit
		trimmed := make([]StreamEvent, s.limit)
		copy(trimmed, s.history[excess:])
		s.history = trimmed
	}
	// Sends stay under the lock so cancel cannot close a channel mid-send.
	for _, ch := range s.subs {
		select {
		case ch <- cloneStreamEvent(entry):
		default:
		}
	}
	s.mu.Unlock()
}

// Emitter returns an events.Emitter that publishes into the stream on behalf
// of the transaction identified by txHash.
func (s *EventStream) Emitter(txHash []byte, timestamp uint64) events.Emitter {
	return events.EmitterFunc(func(e events.Event) {
		w, ok := e.(events.Wire)
		if !ok {
			return
		}
		s.publish(txHash, timestamp, w.Event())
	})
}

// Since returns up to limit retained events with a sequence above cursor.
func (s *EventStream) Since(cursor uint64, limit int) []StreamEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]StreamEvent, 0)
	for _, entry := range s.history {
		if entry.Sequence <= cursor {
			continue
		}
		out = append(out, cloneStreamEvent(entry))
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

// Subscribe registers a subscriber for events after the supplied cursor. The
// backlog holds retained events newer than the cursor; live events follow on
// the channel until cancel is called or ctx ends.
func (s *EventStream) Subscribe(ctx context.Context, cursor string) (<-chan StreamEvent, func(), []StreamEvent, error) {
	if s == nil {
		return nil, nil, nil, fmt.Errorf("event stream not initialised")
	}
	var since uint64
	if trimmed := strings.TrimSpace(cursor); trimmed != "" {
		parsed, err := strconv.ParseUint(trimmed, 10, 64)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("invalid cursor %q", trimmed)
		}
		since = parsed
	}
	updates := make(chan StreamEvent, 64)

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = updates
	backlog := make([]StreamEvent, 0, len(s.history))
	for _, entry := range s.history {
		if entry.Sequence > since {
			backlog = append(backlog, cloneStreamEvent(entry))
		}
	}
	s.mu.Unlock()

	var once sync.Once
	done := make(chan struct{})
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			if ch, ok := s.subs[id]; ok {
				delete(s.subs, id)
				close(ch)
			}
			s.mu.Unlock()
			close(done)
		})
	}
	if ctx != nil && ctx.Done() != nil {
		s.watchers.Add(1)
		go func() {
			defer s.watchers.Done()
			select {
			case <-ctx.Done():
				cancel()
			case <-done:
			}
		}()
	}
	return updates, cancel, backlog, nil
}
