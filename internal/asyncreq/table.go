// Package asyncreq implements kld's async-request correlator (spec
// section 4.E): a generic K -> (V, one-shot) table that lets an API
// handler register a pending protocol callback and block on its result,
// while the event handler that eventually observes the callback looks the
// entry up by key and delivers the response.
//
// There is no direct teacher equivalent for the generic table itself (the
// LDK-style async callback correlation spec 4.E/4.F describes is specific
// to this system); the register/look-up-once/remove-on-resolve shape is
// grounded on the in-flight-request bookkeeping in the teacher's
// htlcswitch/switch_control.go, generalized from a single forwarding-info
// cache to an arbitrary K/V/R correlator.
package asyncreq

import (
	"fmt"
	"sync"
)

// ErrDropped is returned to a Receiver whose response channel is closed
// without a value. Table has no teardown, and respond always sends before
// it closes, so nothing in this package produces it on its own.
var ErrDropped = fmt.Errorf("async request dropped without a response")

// Receiver is handed back by Insert; exactly one value or error arrives
// on it.
type Receiver[R any] struct {
	ch <-chan result[R]
}

type result[R any] struct {
	val R
	err error
}

// Recv blocks until a response arrives, or returns ErrDropped if the
// channel is closed without one. An entry taken by Get whose respond
// closure is never called leaves Recv blocked.
func (r Receiver[R]) Recv() (R, error) {
	res, ok := <-r.ch
	if !ok {
		var zero R
		return zero, ErrDropped
	}
	return res.val, res.err
}

type entry[V any, R any] struct {
	val V
	ch  chan result[R]
}

// Table is a write-preferred read/write lock around a hash map from K to
// (V, one-shot sender), matching spec section 5's "write-preferred
// rw-lock" requirement for the async-request table.
type Table[K comparable, V any, R any] struct {
	mu      sync.RWMutex
	entries map[K]*entry[V, R]
	warn    func(format string, args ...interface{})
}

// New creates an empty table. warn, if non-nil, is called when respond
// finds the Receiver's one-slot buffer already full. A Receiver that is
// simply no longer read from is not detected: the buffer accepts the send.
func New[K comparable, V any, R any](warn func(format string, args ...interface{})) *Table[K, V, R] {
	if warn == nil {
		warn = func(string, ...interface{}) {}
	}
	return &Table[K, V, R]{entries: make(map[K]*entry[V, R]), warn: warn}
}

// Insert registers v under k and returns the Receiver the caller should
// block on for the eventual response.
func (t *Table[K, V, R]) Insert(k K, v V) Receiver[R] {
	ch := make(chan result[R], 1)

	t.mu.Lock()
	t.entries[k] = &entry[V, R]{val: v, ch: ch}
	t.mu.Unlock()

	return Receiver[R]{ch: ch}
}

// Get atomically removes the entry for k, if any, and returns its stored
// value plus a respond closure that delivers r to the waiting Receiver
// when called. Calling respond more than once is a no-op after the
// first call.
func (t *Table[K, V, R]) Get(k K) (V, func(R, error), bool) {
	t.mu.Lock()
	e, ok := t.entries[k]
	if ok {
		delete(t.entries, k)
	}
	t.mu.Unlock()

	if !ok {
		var zero V
		return zero, nil, false
	}

	var once sync.Once
	respond := func(r R, err error) {
		once.Do(func() {
			select {
			case e.ch <- result[R]{val: r, err: err}:
			default:
				t.warn("async request: receiver for key %v was already dropped", k)
			}
			close(e.ch)
		})
	}
	return e.val, respond, true
}

// Respond is a convenience wrapper: it removes the entry for k (if
// present) and immediately delivers r.
func (t *Table[K, V, R]) Respond(k K, r R, err error) bool {
	_, respond, ok := t.Get(k)
	if !ok {
		return false
	}
	respond(r, err)
	return true
}

// Len reports how many requests are currently pending, for tests and
// metrics.
func (t *Table[K, V, R]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}
