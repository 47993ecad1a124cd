// Package syncutil provides the keyed serialization primitives used by the
// cache and store layers: a keyed mutex, a keyed semaphore, and a request
// deduplicator. They order logical operations sharing a key; they do not
// guard any physical resource.
package syncutil

import "context"

// KeyedMutex serializes functions by string key. For a given key, at most
// one function runs at a time and waiters run in FIFO submission order.
// Different keys are independent.
//
// There is no timeout: a function that never returns stalls its key's
// queue indefinitely. Callers waiting for the lock (not yet running) can
// still bail out through context cancellation.
type KeyedMutex struct {
	reg queueRegistry
}

// NewKeyedMutex returns an empty keyed mutex.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{reg: newQueueRegistry()}
}

// WithLock runs fn while holding the lock for key. If the lock is held,
// the caller queues behind earlier waiters. Returns fn's error, or
// ctx.Err() if the context is cancelled before fn starts.
func (m *KeyedMutex) WithLock(ctx context.Context, key string, fn func() error) error {
	if err := m.reg.acquire(ctx, key, 1); err != nil {
		return err
	}
	defer m.reg.release(key)
	return fn()
}

// KeyedSemaphore allows up to a fixed number of concurrent functions per
// key, queuing the rest FIFO. The limit is set by the first caller for a
// key and persists until the key's queue drains.
type KeyedSemaphore struct {
	reg queueRegistry
}

// NewKeyedSemaphore returns an empty keyed semaphore.
func NewKeyedSemaphore() *KeyedSemaphore {
	return &KeyedSemaphore{reg: newQueueRegistry()}
}

// WithSemaphore runs fn with one of key's n slots held. Callers beyond n
// queue in FIFO order. n < 1 is treated as 1.
func (s *KeyedSemaphore) WithSemaphore(ctx context.Context, key string, n int, fn func() error) error {
	if n < 1 {
		n = 1
	}
	if err := s.reg.acquire(ctx, key, n); err != nil {
		return err
	}
	defer s.reg.release(key)
	return fn()
}
