package resilience

import (
	"slices"
	"strings"
	"sync"
)

// Registry holds one CircuitBreaker per dependency name. It replaces ambient
// global breaker state: callers share a Registry by injection, and tests get
// a fresh one (or Reset it) per case.
type Registry struct {
	opts []BreakerOption

	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
}

// NewRegistry returns an empty registry. opts are applied to every breaker it creates.
func NewRegistry(opts ...BreakerOption) *Registry {
	return &Registry{
		opts:     opts,
		breakers: make(map[string]*CircuitBreaker),
	}
}

// Breaker returns the breaker registered under name, creating it with cfg on
// first use. Later calls ignore cfg.
func (r *Registry) Breaker(name string, cfg BreakerConfig) *CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if b, ok := r.breakers[name]; ok {
		return b
	}
	b := NewCircuitBreaker(name, cfg, r.opts...)
	r.breakers[name] = b
	return b
}

// Lookup returns the breaker registered under name, if any.
func (r *Registry) Lookup(name string) (*CircuitBreaker, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.breakers[name]
	return b, ok
}

// Reset closes the named breaker. Unknown names are ignored.
func (r *Registry) Reset(name string) {
	if b, ok := r.Lookup(name); ok {
		b.Reset()
	}
}

// ResetAll closes every registered breaker.
func (r *Registry) ResetAll() {
	for _, b := range r.all() {
		b.Reset()
	}
}

// Snapshot returns every breaker's counters ordered by name.
func (r *Registry) Snapshot() []BreakerSnapshot {
	breakers := r.all()
	out := make([]BreakerSnapshot, 0, len(breakers))
	for _, b := range breakers {
		out = append(out, b.Snapshot())
	}
	slices.SortFunc(out, func(a, b BreakerSnapshot) int {
		return strings.Compare(a.Name, b.Name)
	})
	return out
}

func (r *Registry) all() []*CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*CircuitBreaker, 0, len(r.breakers))
	for _, b := range r.breakers {
		out = append(out, b)
	}
	return out
}
