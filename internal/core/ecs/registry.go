package ecs

import (
	"errors"
	"fmt"
)

// Removable is implemented by every per-entity side store (sparse attribute
// registries, history, cold data) so removing an entity cascades to all of
// them.
type Removable interface {
	Remove(id EntityID)
}

var ErrDuplicateStore = errors.New("side store already registered")

// Registry tracks the named side stores of one state core and cascades
// entity removal through them in registration order.
type Registry struct {
	names    []string
	stores   []Removable
	cascaded uint64
}

func NewRegistry() *Registry {
	return &Registry{
		names:  make([]string, 0, 8),
		stores: make([]Removable, 0, 8),
	}
}

// Register adds a side store under a unique name.
func (r *Registry) Register(name string, store Removable) error {
	for _, n := range r.names {
		if n == name {
			return fmt.Errorf("%w: %s", ErrDuplicateStore, name)
		}
	}
	r.names = append(r.names, name)
	r.stores = append(r.stores, store)
	return nil
}

// RemoveAll clears one entity from every registered store.
func (r *Registry) RemoveAll(id EntityID) {
	for _, s := range r.stores {
		s.Remove(id)
	}
	r.cascaded++
}

// RemoveBatch clears ids store by store, so each store's data is walked
// once per flush instead of once per entity.
func (r *Registry) RemoveBatch(ids []EntityID) {
	for _, s := range r.stores {
		for _, id := range ids {
			s.Remove(id)
		}
	}
	r.cascaded += uint64(len(ids))
}

// Names lists the stores in cascade order.
func (r *Registry) Names() []string { return r.names }

// Cascaded is the number of entities removed through the registry.
func (r *Registry) Cascaded() uint64 { return r.cascaded }

func (r *Registry) Len() int { return len(r.stores) }
