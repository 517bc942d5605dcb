// Package eventbus hands committed marketplace events to in-process consumers
// such as the email notifier. Delivery is best effort: the event log stays the
// source of truth and consumers that fall behind can replay it.
package eventbus

import (
	"sync"

	"github.com/go-pkgz/lgr"
	"github.com/oklog/ulid/v2"

	"campushustle/internal/domain"
)

// Bus fans each published event out to every open Subscription.
type Bus struct {
	Logger lgr.L

	mu   sync.RWMutex
	subs map[string]chan domain.Event
}

// Subscription is one consumer's view of the bus. Events is closed by Close.
type Subscription struct {
	ID     string
	Events <-chan domain.Event
	bus    *Bus
}

func New(logger lgr.L) *Bus {
	if logger == nil {
		logger = lgr.NoOp
	}
	return &Bus{Logger: logger, subs: make(map[string]chan domain.Event)}
}

// Subscribe opens a subscription holding up to backlog undelivered events.
// The name prefixes the subscription ID so drops can be traced in the log.
func (b *Bus) Subscribe(name string, backlog int) Subscription {
	id := name + "-" + ulid.Make().String()
	ch := make(chan domain.Event, backlog)
	b.mu.Lock()
	b.subs[id] = ch
	b.mu.Unlock()
	return Subscription{ID: id, Events: ch, bus: b}
}

// Close detaches the subscription. Closing twice is a no-op.
func (s Subscription) Close() {
	b := s.bus
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subs[s.ID]; ok {
		close(ch)
		delete(b.subs, s.ID)
	}
}

// Publish never blocks the committing request. A subscription whose backlog
// is full misses the event.
func (b *Bus) Publish(evt domain.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for id, ch := range b.subs {
		select {
		case ch <- evt:
		default:
			b.Logger.Logf("[WARN] %s is behind, dropped %s event %d", id, evt.Type, evt.ID)
		}
	}
}
