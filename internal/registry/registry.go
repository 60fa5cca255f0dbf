package registry

import (
	"sort"
	"sync/atomic"
	"time"
)

// Registry is one immutable snapshot of all loaded functions, tagged
// with a monotonically increasing epoch. It is fully built before it is
// published and never mutated afterwards.
type Registry struct {
	epoch   uint64
	builtAt time.Time
	funcs   map[string]*Descriptor
}

// NewRegistry assembles a snapshot from the given descriptors.
func NewRegistry(epoch uint64, funcs map[string]*Descriptor) *Registry {
	if funcs == nil {
		funcs = map[string]*Descriptor{}
	}
	return &Registry{
		epoch:   epoch,
		builtAt: time.Now(),
		funcs:   funcs,
	}
}

// Epoch returns the snapshot's build counter.
func (r *Registry) Epoch() uint64 { return r.epoch }

// BuiltAt returns when the snapshot was assembled.
func (r *Registry) BuiltAt() time.Time { return r.builtAt }

// Len returns the number of registered functions.
func (r *Registry) Len() int { return len(r.funcs) }

// Lookup resolves a function name.
func (r *Registry) Lookup(name string) (*Descriptor, bool) {
	d, ok := r.funcs[name]
	return d, ok
}

// Names returns all function names in lexical order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.funcs))
	for name := range r.funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Descriptors returns all descriptors ordered by name.
func (r *Registry) Descriptors() []*Descriptor {
	out := make([]*Descriptor, 0, len(r.funcs))
	for _, name := range r.Names() {
		out = append(out, r.funcs[name])
	}
	return out
}

// Store holds the currently published Registry snapshot.
//
// Single writer (the Builder), many readers. The writer publishes whole
// snapshots with one atomic pointer swap; a reader that picked up epoch N
// keeps working against epoch N even if N+1 is published mid-flight.
type Store struct {
	current atomic.Pointer[Registry]
}

// NewStore creates a store seeded with an empty epoch-zero snapshot, so
// readers never see a nil registry before the first build completes.
func NewStore() *Store {
	s := &Store{}
	s.current.Store(NewRegistry(0, nil))
	return s
}

// Current returns the latest published snapshot.
func (s *Store) Current() *Registry {
	return s.current.Load()
}

func (s *Store) publish(r *Registry) {
	s.current.Store(r)
}
