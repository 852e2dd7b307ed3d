package ecs

// ColdStore holds rarely-touched per-entity data (display names, tags) that
// does not belong in the dense hot array. Map-backed: storage follows the
// entities that have a value.
type ColdStore[T any] struct {
	data map[EntityID]T
}

func NewColdStore[T any](sizeHint int) *ColdStore[T] {
	return &ColdStore[T]{
		data: make(map[EntityID]T, sizeHint),
	}
}

func (s *ColdStore[T]) Set(id EntityID, v T) {
	s.data[id] = v
}

func (s *ColdStore[T]) Get(id EntityID) (T, bool) {
	v, ok := s.data[id]
	return v, ok
}

func (s *ColdStore[T]) Remove(id EntityID) {
	delete(s.data, id)
}

func (s *ColdStore[T]) Has(id EntityID) bool {
	_, ok := s.data[id]
	return ok
}

func (s *ColdStore[T]) Len() int {
	return len(s.data)
}

// Each visits every entry in unspecified order. Not for anything that feeds
// back into simulation state.
func (s *ColdStore[T]) Each(fn func(EntityID, T)) {
	for id, v := range s.data {
		fn(id, v)
	}
}
