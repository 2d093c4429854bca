// Package bus implements the in-process, single-tenant event fan-out that
// sits between collectors/classifier and the Alert Engine / Investigator.
//
// Grounded on tarsy's pkg/events.ConnectionManager: publish snapshots the
// matching subscriber set under a lock, then releases the lock before
// invoking handlers, so a slow handler never stalls registration or other
// publishers. Each subscriber has its own delivery goroutine that invokes
// its handler in publish order; panics and errors are recovered/logged and
// never fail the publish.
package bus

import (
	"log/slog"
	"sync"

	"github.com/codeready-toolchain/argus/pkg/argusmodel"
)

// Handler processes a single event. Errors are logged by the bus and do
// not affect other subscribers.
type Handler func(argusmodel.Event) error

// Filter restricts which events a subscriber receives. Nil/empty sets
// mean "no restriction" (all sources / all severities).
type Filter struct {
	Sources    map[argusmodel.Source]struct{}
	Severities map[argusmodel.Severity]struct{}
}

func (f Filter) matches(e argusmodel.Event) bool {
	if len(f.Sources) > 0 {
		if _, ok := f.Sources[e.Source]; !ok {
			return false
		}
	}
	if len(f.Severities) > 0 {
		if _, ok := f.Severities[e.Severity]; !ok {
			return false
		}
	}
	return true
}

type subscriber struct {
	id      int
	filter  Filter
	handler Handler
	// queue preserves per-subscriber FIFO delivery: publish appends to the
	// queue and a single dedicated goroutine per subscriber drains it, so
	// two concurrent publishes can never invoke the same subscriber's
	// handler out of order or concurrently.
	queue chan argusmodel.Event
}

const subscriberQueueSize = 256

// Bus is the in-process event bus. Zero value is not usable; use New.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[int]*subscriber
	nextID      int

	ringMu sync.Mutex
	ring   []argusmodel.Event
	ringAt int
	ringSize int
	ringFull bool
}

// New creates a Bus with the given ring buffer capacity. ringSize is
// clamped to at least 1024 per spec's suggested minimum.
func New(ringSize int) *Bus {
	if ringSize < 1024 {
		ringSize = 1024
	}
	return &Bus{
		subscribers: make(map[int]*subscriber),
		ring:        make([]argusmodel.Event, ringSize),
		ringSize:    ringSize,
	}
}

// Subscribe registers handler under filter and starts its delivery
// goroutine. The returned unsubscribe function stops delivery and frees
// the subscriber's queue.
func (b *Bus) Subscribe(filter Filter, handler Handler) (unsubscribe func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	sub := &subscriber{
		id:      id,
		filter:  filter,
		handler: handler,
		queue:   make(chan argusmodel.Event, subscriberQueueSize),
	}
	b.subscribers[id] = sub
	b.mu.Unlock()

	go b.drain(sub)

	return func() {
		b.mu.Lock()
		delete(b.subscribers, id)
		b.mu.Unlock()
		close(sub.queue)
	}
}

// drain is the single goroutine that owns sub's FIFO delivery.
func (b *Bus) drain(sub *subscriber) {
	for e := range sub.queue {
		func() {
			defer func() {
				if r := recover(); r != nil {
					slog.Error("event bus handler panicked", "subscriber_id", sub.id, "panic", r)
				}
			}()
			if err := sub.handler(e); err != nil {
				slog.Warn("event bus handler returned error", "subscriber_id", sub.id, "error", err)
			}
		}()
	}
}

// Publish delivers e to every matching subscriber and retains it in the
// ring buffer. Non-blocking from the caller's perspective: matching is
// done under a read lock and handler invocation happens on each
// subscriber's own queue/goroutine, never inline.
func (b *Bus) Publish(e argusmodel.Event) {
	b.appendRing(e)

	b.mu.RLock()
	matched := make([]*subscriber, 0, len(b.subscribers))
	for _, sub := range b.subscribers {
		if sub.filter.matches(e) {
			matched = append(matched, sub)
		}
	}
	b.mu.RUnlock()

	for _, sub := range matched {
		select {
		case sub.queue <- e:
		default:
			// Subscriber queue full: drop for this subscriber rather than
			// block the publisher. The subscriber's own consumer
			// (investigator queue, etc.) is responsible for backpressure.
			slog.Warn("event bus subscriber queue full, dropping event",
				"subscriber_id", sub.id, "event_type", e.Type)
		}
	}
}

func (b *Bus) appendRing(e argusmodel.Event) {
	b.ringMu.Lock()
	defer b.ringMu.Unlock()
	b.ring[b.ringAt] = e
	b.ringAt = (b.ringAt + 1) % b.ringSize
	if b.ringAt == 0 {
		b.ringFull = true
	}
}

// Recent returns up to n most-recently-published events, newest last.
// Used for diagnostic/startup replay queries.
func (b *Bus) Recent(n int) []argusmodel.Event {
	b.ringMu.Lock()
	defer b.ringMu.Unlock()

	size := b.ringAt
	if b.ringFull {
		size = b.ringSize
	}
	if n <= 0 || n > size {
		n = size
	}

	out := make([]argusmodel.Event, 0, n)
	start := b.ringAt - n
	for i := 0; i < n; i++ {
		idx := (start + i + b.ringSize) % b.ringSize
		out = append(out, b.ring[idx])
	}
	return out
}

// SubscriberCount returns the number of currently registered subscribers.
// Used by tests and the self-metrics exporter.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
