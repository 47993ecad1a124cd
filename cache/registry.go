package cache

import (
	"fmt"
	"sync"
)

// Registry is the structural index of every cache partition in the
// process. The fan-out in Manager iterates the registry, so a surface is
// covered by optimistic updates exactly when its partition is registered;
// there is no name-based matching to drift out of date. Kinds exposes the
// registered set so a missing surface is visible.
type Registry struct {
	mu     sync.RWMutex
	order  []Kind
	parts  map[Kind]*Partition
	likers *LikersCache
}

// NewRegistry returns a registry with an empty likers cache attached.
func NewRegistry() *Registry {
	return &Registry{
		parts:  make(map[Kind]*Partition),
		likers: NewLikersCache(),
	}
}

// Register adds a partition. Registering the same kind twice is a
// programming error and is rejected.
func (r *Registry) Register(p *Partition) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.parts[p.Kind()]; ok {
		return fmt.Errorf("cache: partition kind %q already registered", p.Kind())
	}
	r.parts[p.Kind()] = p
	r.order = append(r.order, p.Kind())
	return nil
}

// Partition returns the partition registered under kind.
func (r *Registry) Partition(kind Kind) (*Partition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.parts[kind]
	return p, ok
}

// Partitions returns all partitions in registration order.
func (r *Registry) Partitions() []*Partition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Partition, 0, len(r.order))
	for _, kind := range r.order {
		out = append(out, r.parts[kind])
	}
	return out
}

// Kinds returns the registered partition kinds in registration order.
func (r *Registry) Kinds() []Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Kind(nil), r.order...)
}

// Likers returns the shared likers cache.
func (r *Registry) Likers() *LikersCache {
	return r.likers
}
