package kld

import (
	"sync"

	"github.com/kuutamolabs/kld/internal/ldk"
)

// subscriberQueueLen bounds how many unconsumed events a websocket client
// can fall behind by before further events to it are dropped, keeping one
// slow reader from backing up the background processor.
const subscriberQueueLen = 32

// eventBroadcaster fans a single controller event out to every currently
// subscribed GET /v1/ws client (spec 4.H's event stream route). The
// background processor is the only publisher; Subscribe/unsubscribe may
// be called concurrently from handler goroutines.
type eventBroadcaster struct {
	mu     sync.Mutex
	nextID uint64
	subs   map[uint64]chan ldk.Event
}

func newEventBroadcaster() *eventBroadcaster {
	return &eventBroadcaster{subs: make(map[uint64]chan ldk.Event)}
}

// subscribe registers a new listener and returns its event channel plus an
// unsubscribe func the caller must run when done (typically on websocket
// close).
func (b *eventBroadcaster) subscribe() (<-chan ldk.Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan ldk.Event, subscriberQueueLen)
	b.subs[id] = ch

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(ch)
		}
	}
}

// publish hands ev to every current subscriber without blocking; a
// subscriber whose queue is already full is skipped rather than stalling
// the background processor.
func (b *eventBroadcaster) publish(ev ldk.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Subscribe exposes the controller's event stream to API handlers (spec
// 4.H GET /v1/ws). The returned unsubscribe func must be called exactly
// once when the caller stops reading.
func (c *Controller) Subscribe() (<-chan ldk.Event, func()) {
	return c.subs.subscribe()
}
