// Package events carries per-file progress notifications and the
// single terminal batch result from the orchestrator to any number of
// listeners. Delivery is fire-and-forget broadcast: subscribers
// registered after a batch has started simply miss earlier events.
package events

import (
	"sync"

	"bulk-watermark/pkg/types"
)

// Type discriminates the two event kinds on the stream.
type Type string

const (
	// TypeProgress carries a ProgressPayload, at least twice per file.
	TypeProgress Type = "watermark-progress"
	// TypeComplete carries the BatchResult, exactly once per run.
	TypeComplete Type = "watermark-complete"
)

// Event is one notification on the stream. Exactly one of Progress or
// Result is set, matching Type.
type Event struct {
	Type     Type
	Progress *types.ProgressPayload
	Result   *types.BatchResult
}

const defaultBuffer = 64

// Bus is a one-way, many-listener broadcast channel. Publish blocks
// until every live subscriber has accepted the event, so each
// subscriber observes events in exactly the order they were emitted.
type Bus struct {
	mu   sync.RWMutex
	subs map[int]*Subscription
	next int
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]*Subscription)}
}

// Subscription is one listener's registration. Events arrive on
// Events(); Done() is closed once Unsubscribe has been called.
type Subscription struct {
	bus  *Bus
	id   int
	ch   chan Event
	done chan struct{}
	once sync.Once
}

// Subscribe registers a listener and returns its de-registration
// handle. Safe to call while the bus is emitting.
func (b *Bus) Subscribe() *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &Subscription{
		bus:  b,
		id:   b.next,
		ch:   make(chan Event, defaultBuffer),
		done: make(chan struct{}),
	}
	b.subs[sub.id] = sub
	b.next++
	return sub
}

// Publish delivers ev to every currently registered subscriber, in
// registration-independent but per-subscriber emission order. A
// subscriber that unsubscribes mid-delivery is skipped.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	subs := make([]*Subscription, 0, len(b.subs))
	for _, sub := range b.subs {
		subs = append(subs, sub)
	}
	b.mu.RUnlock()

	for _, sub := range subs {
		select {
		case sub.ch <- ev:
		case <-sub.done:
		}
	}
}

// PublishProgress is shorthand for a progress event.
func (b *Bus) PublishProgress(p types.ProgressPayload) {
	b.Publish(Event{Type: TypeProgress, Progress: &p})
}

// PublishComplete is shorthand for the terminal result event.
func (b *Bus) PublishComplete(r *types.BatchResult) {
	b.Publish(Event{Type: TypeComplete, Result: r})
}

// Events is the subscriber's receive channel.
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

// Done is closed when the subscription has been cancelled.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Unsubscribe de-registers the listener. Idempotent; safe against
// in-flight Publish calls. Events already buffered remain readable.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.bus.mu.Lock()
		delete(s.bus.subs, s.id)
		s.bus.mu.Unlock()
		close(s.done)
	})
}
