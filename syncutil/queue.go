package syncutil

import (
	"context"
	"sync"
)

// queueRegistry is the shared FIFO machinery behind KeyedMutex and
// KeyedSemaphore. A keyQueue tracks how many holders are active and the
// ordered list of waiters; a queue is deleted once it is fully idle so the
// map does not grow with the key space.
type queueRegistry struct {
	mu     *sync.Mutex
	queues map[string]*keyQueue
}

type keyQueue struct {
	limit   int
	active  int
	waiters []chan struct{}
}

func newQueueRegistry() queueRegistry {
	return queueRegistry{
		mu:     &sync.Mutex{},
		queues: make(map[string]*keyQueue),
	}
}

// acquire blocks until the caller holds one of key's limit slots, in FIFO
// order behind earlier waiters, or until ctx is cancelled while waiting.
func (r queueRegistry) acquire(ctx context.Context, key string, limit int) error {
	r.mu.Lock()
	q, ok := r.queues[key]
	if !ok {
		q = &keyQueue{limit: limit}
		r.queues[key] = q
	}
	if q.active < q.limit {
		q.active++
		r.mu.Unlock()
		return nil
	}
	ready := make(chan struct{})
	q.waiters = append(q.waiters, ready)
	r.mu.Unlock()

	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		r.mu.Lock()
		for i, w := range q.waiters {
			if w == ready {
				q.waiters = append(q.waiters[:i], q.waiters[i+1:]...)
				r.mu.Unlock()
				return ctx.Err()
			}
		}
		r.mu.Unlock()
		// A release already promoted this waiter to holder; hand the
		// slot on before reporting cancellation.
		r.release(key)
		return ctx.Err()
	}
}

// release frees one slot for key, waking the oldest waiter if any.
func (r queueRegistry) release(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	q, ok := r.queues[key]
	if !ok {
		return
	}
	if len(q.waiters) > 0 {
		ready := q.waiters[0]
		q.waiters = q.waiters[1:]
		close(ready)
		return
	}
	q.active--
	if q.active <= 0 {
		delete(r.queues, key)
	}
}
