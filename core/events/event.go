package events

import "dinechain/core/types"

// Event represents a structured state change emitted by the chain.
type Event interface {
	EventType() string
}

// Wire is implemented by events that can be rendered for RPC subscribers and
// receipts.
type Wire interface {
	Event
	Event() *types.Event
}

// Emitter broadcasts events to downstream subscribers (e.g. RPC, indexers).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter is a helper that satisfies the Emitter interface while discarding
// all events. It is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// EmitterFunc adapts a plain function to the Emitter interface.
type EmitterFunc func(Event)

// Emit implements the Emitter interface.
func (f EmitterFunc) Emit(e Event) {
	if f != nil {
		f(e)
	}
}

// Fanout forwards each event to every registered emitter in order.
type Fanout []Emitter

// Emit implements the Emitter interface.
func (f Fanout) Emit(e Event) {
	for _, em := range f {
		if em != nil {
			em.Emit(e)
		}
	}
}

// Buffer collects events until they are flushed. The node buffers events
// produced during a transaction and only releases them after commit.
type Buffer struct {
	events []Event
}

// Emit implements the Emitter interface.
func (b *Buffer) Emit(e Event) {
	b.events = append(b.events, e)
}

// Events returns the buffered events in emission order.
func (b *Buffer) Events() []Event {
	out := make([]Event, len(b.events))
	copy(out, b.events)
	return out
}

// Flush forwards the buffered events to dst and resets the buffer.
func (b *Buffer) Flush(dst Emitter) {
	if dst != nil {
		for _, e := range b.events {
			dst.Emit(e)
		}
	}
	b.events = nil
}

// ToWire converts events into their wire representation, skipping those that
// cannot be rendered.
func ToWire(list []Event) []*types.Event {
	out := make([]*types.Event, 0, len(list))
	for _, e := range list {
		w, ok := e.(Wire)
		if !ok {
			continue
		}
		if evt := w.Event(); evt != nil {
			out = append(out, evt)
		}
	}
	return out
}
