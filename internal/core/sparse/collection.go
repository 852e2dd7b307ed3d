// Package sparse stores optional, multi-valued per-entity attributes
// (buildings, modifiers, claims) in space proportional to what is actually
// attached. An entity with no attributes of a kind costs nothing for it, and
// defining more attribute kinds costs nothing per entity.
package sparse

import (
	"slices"

	"go.uber.org/zap"
)

// Key is the set of small integer key types (entity IDs).
type Key interface {
	~uint8 | ~uint16 | ~uint32 | ~int16 | ~int32
}

const nilNode int32 = -1

type node[V comparable] struct {
	value V
	next  int32
}

type span struct {
	head, tail, count int32
}

// Collection is a pre-sized multimap from K to V. V should be a small plain
// value; it is stored inline in a node arena.
//
// Capacity is an estimate, not a ceiling: past it the arena grows by append
// and pressure is reported through the logger (warn at 80%, error at 95%,
// each once until usage falls back below 80%).
type Collection[K Key, V comparable] struct {
	name     string
	nodes    []node[V]
	free     int32
	spans    map[K]span
	size     int
	estimate int
	warnAt   int
	strongAt int
	warned   bool
	strong   bool
	log      *zap.Logger
}

func New[K Key, V comparable](name string, estimatedCapacity int, log *zap.Logger) *Collection[K, V] {
	if estimatedCapacity < 1 {
		estimatedCapacity = 1
	}
	return &Collection[K, V]{
		name:     name,
		nodes:    make([]node[V], 0, estimatedCapacity),
		free:     nilNode,
		spans:    make(map[K]span, estimatedCapacity),
		estimate: estimatedCapacity,
		warnAt:   ceilPercent(estimatedCapacity, 80),
		strongAt: ceilPercent(estimatedCapacity, 95),
		log:      log.With(zap.String("collection", name)),
	}
}

func ceilPercent(n, pct int) int {
	return (n*pct + 99) / 100
}

func (c *Collection[K, V]) Name() string { return c.name }

// Len is the number of (key, value) pairs.
func (c *Collection[K, V]) Len() int { return c.size }

// KeyCount is the number of keys holding at least one value.
func (c *Collection[K, V]) KeyCount() int { return len(c.spans) }

// Capacity is the configured estimate.
func (c *Collection[K, V]) Capacity() int { return c.estimate }

// CapacityUsage is Len/Capacity; above 1.0 the estimate was too small.
func (c *Collection[K, V]) CapacityUsage() float64 {
	return float64(c.size) / float64(c.estimate)
}

// Add attaches v to k. Duplicate pairs are kept; callers that want set
// semantics check Has first.
func (c *Collection[K, V]) Add(k K, v V) {
	idx := c.alloc(v)
	sp, ok := c.spans[k]
	if !ok {
		sp = span{head: idx, tail: idx}
	} else {
		c.nodes[sp.tail].next = idx
		sp.tail = idx
	}
	sp.count++
	c.spans[k] = sp
	c.size++
	c.checkPressure()
}

// Has is O(values attached to k).
func (c *Collection[K, V]) Has(k K, v V) bool {
	sp, ok := c.spans[k]
	if !ok {
		return false
	}
	for i := sp.head; i != nilNode; i = c.nodes[i].next {
		if c.nodes[i].value == v {
			return true
		}
	}
	return false
}

// HasAny is O(1).
func (c *Collection[K, V]) HasAny(k K) bool {
	_, ok := c.spans[k]
	return ok
}

func (c *Collection[K, V]) Count(k K) int {
	return int(c.spans[k].count)
}

// Remove detaches one occurrence of v from k.
func (c *Collection[K, V]) Remove(k K, v V) bool {
	sp, ok := c.spans[k]
	if !ok {
		return false
	}
	prev := nilNode
	for i := sp.head; i != nilNode; prev, i = i, c.nodes[i].next {
		if c.nodes[i].value != v {
			continue
		}
		next := c.nodes[i].next
		if prev == nilNode {
			sp.head = next
		} else {
			c.nodes[prev].next = next
		}
		if sp.tail == i {
			sp.tail = prev
		}
		sp.count--
		if sp.count == 0 {
			delete(c.spans, k)
		} else {
			c.spans[k] = sp
		}
		c.release(i)
		c.size--
		c.checkPressure()
		return true
	}
	return false
}

// RemoveAll detaches every value from k and returns how many there were.
func (c *Collection[K, V]) RemoveAll(k K) int {
	sp, ok := c.spans[k]
	if !ok {
		return 0
	}
	for i := sp.head; i != nilNode; {
		next := c.nodes[i].next
		c.release(i)
		i = next
	}
	delete(c.spans, k)
	c.size -= int(sp.count)
	c.checkPressure()
	return int(sp.count)
}

// Get appends k's values to dst in insertion order. The caller owns dst.
func (c *Collection[K, V]) Get(k K, dst []V) []V {
	sp, ok := c.spans[k]
	if !ok {
		return dst
	}
	for i := sp.head; i != nilNode; i = c.nodes[i].next {
		dst = append(dst, c.nodes[i].value)
	}
	return dst
}

// ForEach visits k's values in insertion order until fn returns false.
// fn must not modify the collection.
func (c *Collection[K, V]) ForEach(k K, fn func(V) bool) {
	sp, ok := c.spans[k]
	if !ok {
		return
	}
	for i := sp.head; i != nilNode; i = c.nodes[i].next {
		if !fn(c.nodes[i].value) {
			return
		}
	}
}

// AppendKeys appends every key with values to dst in ascending order, so
// callers that serialize or hash the collection get a deterministic order.
func (c *Collection[K, V]) AppendKeys(dst []K) []K {
	start := len(dst)
	for k := range c.spans {
		dst = append(dst, k)
	}
	slices.Sort(dst[start:])
	return dst
}

// Clear drops every pair and keeps the allocated arena.
func (c *Collection[K, V]) Clear() {
	clear(c.nodes)
	c.nodes = c.nodes[:0]
	c.free = nilNode
	clear(c.spans)
	c.size = 0
	c.warned, c.strong = false, false
}

func (c *Collection[K, V]) alloc(v V) int32 {
	if c.free != nilNode {
		idx := c.free
		c.free = c.nodes[idx].next
		c.nodes[idx] = node[V]{value: v, next: nilNode}
		return idx
	}
	c.nodes = append(c.nodes, node[V]{value: v, next: nilNode})
	return int32(len(c.nodes) - 1)
}

func (c *Collection[K, V]) release(idx int32) {
	var zero V
	c.nodes[idx] = node[V]{value: zero, next: c.free}
	c.free = idx
}

func (c *Collection[K, V]) checkPressure() {
	switch {
	case c.size < c.warnAt:
		c.warned, c.strong = false, false
	case c.size >= c.strongAt && !c.strong:
		c.warned, c.strong = true, true
		c.log.Error("sparse collection at 95% of estimated capacity, raise the estimate",
			zap.Int("size", c.size),
			zap.Int("estimate", c.estimate))
	case !c.warned:
		c.warned = true
		c.log.Warn("sparse collection at 80% of estimated capacity",
			zap.Int("size", c.size),
			zap.Int("estimate", c.estimate))
	}
}
