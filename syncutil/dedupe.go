package syncutil

import (
	"context"
	"sync"
)

// Deduplicator collapses concurrent operations sharing a key into a single
// execution. While a call for a key is in flight, later callers wait for
// and receive the same result instead of invoking their own op. Once the
// in-flight call settles, the key is freed and a fresh call runs op again.
//
// Used to fold rapid repeated submissions with an identical key, e.g. a
// comment keyed by item, author, and a prefix of the text.
type Deduplicator struct {
	mu       sync.Mutex
	inflight map[string]*inflightCall
}

type inflightCall struct {
	done chan struct{}
	val  any
	err  error
}

// NewDeduplicator returns an empty deduplicator.
func NewDeduplicator() *Deduplicator {
	return &Deduplicator{inflight: make(map[string]*inflightCall)}
}

// Deduplicate runs op for key, or joins the in-flight call for key if one
// exists. All joined callers receive the identical value and error. A
// joined caller whose ctx is cancelled stops waiting and returns ctx.Err();
// the in-flight op itself is not interrupted.
func (d *Deduplicator) Deduplicate(ctx context.Context, key string, op func() (any, error)) (any, error) {
	d.mu.Lock()
	if c, ok := d.inflight[key]; ok {
		d.mu.Unlock()
		select {
		case <-c.done:
			return c.val, c.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	c := &inflightCall{done: make(chan struct{})}
	d.inflight[key] = c
	d.mu.Unlock()

	c.val, c.err = op()

	d.mu.Lock()
	delete(d.inflight, key)
	d.mu.Unlock()
	close(c.done)

	return c.val, c.err
}

// InFlight reports whether a call for key is currently running.
func (d *Deduplicator) InFlight(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.inflight[key]
	return ok
}
