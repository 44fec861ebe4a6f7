// Package events fans call lifecycle events out to independent subscribers.
package events

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

const DefaultSubscriberBuffer = 256

// Filter selects which events a subscription receives.
type Filter func(Event) bool

func ForCall(callID string) Filter {
	return func(e Event) bool { return e.CallID == callID }
}

func OfType(types ...Type) Filter {
	return func(e Event) bool {
		for _, t := range types {
			if e.Type == t {
				return true
			}
		}
		return false
	}
}

// Handler consumes events delivered to an attached subscription.
type Handler interface {
	HandleEvent(ctx context.Context, e Event)
}

type HandlerFunc func(ctx context.Context, e Event)

func (f HandlerFunc) HandleEvent(ctx context.Context, e Event) { f(ctx, e) }

// Bus delivers each published event to every matching subscriber through its
// own buffered channel. Publishing never blocks; a subscriber whose buffer is
// full misses the event and the drop is counted.
type Bus struct {
	logger *slog.Logger

	mu     sync.RWMutex
	subs   map[uint64]*Subscription
	nextID uint64
	closed bool

	published atomic.Uint64
	dropped   atomic.Uint64
}

func NewBus(logger *slog.Logger) *Bus {
	return &Bus{
		logger: logger.With("component", "event_bus"),
		subs:   make(map[uint64]*Subscription),
	}
}

type Subscription struct {
	id      uint64
	name    string
	ch      chan Event
	filters []Filter
	bus     *Bus
	once    sync.Once
	dropped atomic.Uint64
}

func (s *Subscription) C() <-chan Event { return s.ch }
func (s *Subscription) Name() string    { return s.name }
func (s *Subscription) Dropped() uint64 { return s.dropped.Load() }

// Close detaches the subscription and closes its channel.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.bus.mu.Lock()
		if _, ok := s.bus.subs[s.id]; ok {
			delete(s.bus.subs, s.id)
			close(s.ch)
		}
		s.bus.mu.Unlock()
	})
}

func (s *Subscription) matches(e Event) bool {
	for _, f := range s.filters {
		if !f(e) {
			return false
		}
	}
	return true
}

func (b *Bus) Subscribe(name string, buffer int, filters ...Filter) *Subscription {
	if buffer <= 0 {
		buffer = DefaultSubscriberBuffer
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &Subscription{
		id:      b.nextID,
		name:    name,
		ch:      make(chan Event, buffer),
		filters: filters,
		bus:     b,
	}
	if b.closed {
		close(sub.ch)
		return sub
	}
	b.subs[sub.id] = sub
	return sub
}

// Attach subscribes h and runs it on its own goroutine until ctx ends or the
// bus closes.
func (b *Bus) Attach(ctx context.Context, name string, buffer int, h Handler, filters ...Filter) *Subscription {
	sub := b.Subscribe(name, buffer, filters...)
	go func() {
		defer sub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case e, ok := <-sub.C():
				if !ok {
					return
				}
				b.dispatch(ctx, name, h, e)
			}
		}
	}()
	return sub
}

func (b *Bus) dispatch(ctx context.Context, name string, h Handler, e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked", "subscriber", name, "type", e.Type, "call_id", e.CallID, "panic", r)
		}
	}()
	h.HandleEvent(ctx, e)
}

func (b *Bus) Publish(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	b.published.Add(1)

	for _, sub := range b.subs {
		if !sub.matches(e) {
			continue
		}
		select {
		case sub.ch <- e:
		default:
			sub.dropped.Add(1)
			b.dropped.Add(1)
			b.logger.Warn("event dropped for slow subscriber", "subscriber", sub.name, "type", e.Type, "call_id", e.CallID)
		}
	}
}

func (b *Bus) Published() uint64 { return b.published.Load() }
func (b *Bus) Dropped() uint64   { return b.dropped.Load() }

func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close closes every subscription. Publishing after Close is a no-op.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subs {
		close(sub.ch)
		delete(b.subs, id)
	}
}
