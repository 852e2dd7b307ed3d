package sparse

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

var ErrDuplicateCollection = errors.New("sparse collection already registered")

// Tracker is the type-erased face every Collection[K, V] shows the registry.
// Values never cross it.
type Tracker[K Key] interface {
	Name() string
	Len() int
	KeyCount() int
	Capacity() int
	CapacityUsage() float64
	RemoveAll(k K) int
	Clear()
}

// Registry tracks all sparse collections keyed by one key type so an entity
// can be dropped from every collection at once. It is an owned object with
// an explicit lifecycle, not a global.
type Registry[K Key] struct {
	byName map[string]Tracker[K]
	order  []Tracker[K]
}

func NewRegistry[K Key]() *Registry[K] {
	return &Registry[K]{
		byName: make(map[string]Tracker[K], 8),
		order:  make([]Tracker[K], 0, 8),
	}
}

// Register adds a collection.
func (r *Registry[K]) Register(c Tracker[K]) error {
	if _, ok := r.byName[c.Name()]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateCollection, c.Name())
	}
	r.byName[c.Name()] = c
	r.order = append(r.order, c)
	return nil
}

func (r *Registry[K]) Lookup(name string) (Tracker[K], bool) {
	c, ok := r.byName[name]
	return c, ok
}

// Lookup returns the named collection with its concrete value type.
func Lookup[V comparable, K Key](r *Registry[K], name string) (*Collection[K, V], bool) {
	t, ok := r.byName[name]
	if !ok {
		return nil, false
	}
	c, ok := t.(*Collection[K, V])
	return c, ok
}

// Remove drops k from every registered collection.
func (r *Registry[K]) Remove(k K) {
	for _, c := range r.order {
		c.RemoveAll(k)
	}
}

func (r *Registry[K]) Len() int { return len(r.order) }

// Usage is one line of capacity telemetry.
type Usage struct {
	Name     string
	Pairs    int
	Keys     int
	Capacity int
	Ratio    float64
}

// Usage reports every collection sorted by name.
func (r *Registry[K]) Usage() []Usage {
	out := make([]Usage, 0, len(r.order))
	for _, c := range r.order {
		out = append(out, Usage{
			Name:     c.Name(),
			Pairs:    c.Len(),
			Keys:     c.KeyCount(),
			Capacity: c.Capacity(),
			Ratio:    c.CapacityUsage(),
		})
	}
	slices.SortFunc(out, func(a, b Usage) int { return strings.Compare(a.Name, b.Name) })
	return out
}

// Close clears every collection and forgets them.
func (r *Registry[K]) Close() {
	for _, c := range r.order {
		c.Clear()
	}
	clear(r.byName)
	clear(r.order)
	r.order = r.order[:0]
}
