// Package snapshot provides a double buffer whose write/read roles flip in
// O(1). The simulation loop mutates Write() during a cycle; readers only ever
// see Read(), the last completed cycle.
//
// Write returns a slice that aliases the live write buffer. Go slices are
// reference-like, so mutating write[i] mutates the buffer; copying an element
// out (rec := write[i]) and editing rec does NOT, the caller must store it
// back. Never hold either handle across Swap: after the flip the old write
// handle points at what readers now see.
package snapshot

import "sync/atomic"

type Buffer[T any] struct {
	bufs  [2][]T
	write atomic.Uint32 // index into bufs of the write-tagged buffer
	gen   atomic.Uint64
}

// New allocates both buffers once, zero-filled.
func New[T any](capacity int) *Buffer[T] {
	return &Buffer[T]{
		bufs: [2][]T{make([]T, capacity), make([]T, capacity)},
	}
}

// Write returns the mutable handle for the current cycle.
func (b *Buffer[T]) Write() []T {
	return b.bufs[b.write.Load()]
}

// Read returns the immutable handle to the last completed cycle.
func (b *Buffer[T]) Read() ReadOnly[T] {
	return ReadOnly[T]{s: b.bufs[b.write.Load()^1]}
}

// Swap flips the tags. It touches two words and never copies contents.
// Called exactly once per completed cycle by the loop owner.
func (b *Buffer[T]) Swap() {
	b.write.Store(b.write.Load() ^ 1)
	b.gen.Add(1)
}

// Generation is the number of completed swaps.
func (b *Buffer[T]) Generation() uint64 { return b.gen.Load() }

func (b *Buffer[T]) Capacity() int { return len(b.bufs[0]) }

// ReadOnly is a read handle. It copies elements out and exposes no way to
// mutate the underlying buffer.
type ReadOnly[T any] struct {
	s []T
}

func (r ReadOnly[T]) At(i int) T { return r.s[i] }
func (r ReadOnly[T]) Len() int   { return len(r.s) }

// Range calls fn for i in [from, to) until fn returns false.
func (r ReadOnly[T]) Range(from, to int, fn func(i int, v T) bool) {
	if to > len(r.s) {
		to = len(r.s)
	}
	for i := from; i < to; i++ {
		if !fn(i, r.s[i]) {
			return
		}
	}
}
