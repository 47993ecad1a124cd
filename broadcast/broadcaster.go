// Package broadcast is a small keyed pub/sub with last-value replay, used
// to push item-state and notification updates to whatever surfaces are
// watching (websocket relay, badge counters).
package broadcast

import (
	"log"
	"reflect"
	"sync"
)

type subscriber struct {
	id int
	cb func(any)
}

// Broadcaster maps string keys to subscriber callbacks. Notify stores the
// value and delivers it synchronously to subscribers in registration
// order; a Notify whose value is structurally equal to the stored one is
// skipped so redundant updates do not fan out. A panicking subscriber is
// recovered and logged without blocking the others.
type Broadcaster struct {
	mu     sync.Mutex
	subs   map[string][]subscriber
	last   map[string]any
	nextID int
}

// New returns an empty broadcaster.
func New() *Broadcaster {
	return &Broadcaster{
		subs: make(map[string][]subscriber),
		last: make(map[string]any),
	}
}

// Subscribe registers cb for key and returns an unsubscribe function. If a
// value has already been published for key, cb is invoked with it
// immediately before Subscribe returns.
func (b *Broadcaster) Subscribe(key string, cb func(any)) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs[key] = append(b.subs[key], subscriber{id: id, cb: cb})
	replay, hasReplay := b.last[key]
	b.mu.Unlock()

	if hasReplay {
		deliver(key, cb, replay)
	}

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		list := b.subs[key]
		for i, s := range list {
			if s.id == id {
				b.subs[key] = append(list[:i], list[i+1:]...)
				break
			}
		}
		if len(b.subs[key]) == 0 {
			delete(b.subs, key)
		}
	}
}

// Notify stores data as key's latest value and delivers it to every
// subscriber, unless data is structurally equal to the stored value, in
// which case nothing is delivered. Returns whether delivery happened.
func (b *Broadcaster) Notify(key string, data any) bool {
	b.mu.Lock()
	if prev, ok := b.last[key]; ok && reflect.DeepEqual(prev, data) {
		b.mu.Unlock()
		return false
	}
	b.last[key] = data
	targets := append([]subscriber(nil), b.subs[key]...)
	b.mu.Unlock()

	for _, s := range targets {
		deliver(key, s.cb, data)
	}
	return true
}

// Last returns the stored value for key, if any.
func (b *Broadcaster) Last(key string) (any, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.last[key]
	return v, ok
}

// Forget drops the stored value for key so the next Notify always
// delivers. Subscriptions are unaffected.
func (b *Broadcaster) Forget(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.last, key)
}

func deliver(key string, cb func(any), data any) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("broadcast: subscriber for %q panicked: %v", key, r)
		}
	}()
	cb(data)
}
