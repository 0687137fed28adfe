// Package lazy provides a fixed-length buffer that defers allocating its
// backing storage until the first write and shares that storage between
// clones until one of them is written to.
package lazy

import (
	"fmt"
	"iter"
	"sync/atomic"
)

// storage is the reference counted backing array of one or more Buffers.
type storage[T any] struct {
	refs atomic.Int32
	data []T
}

func newStorage[T any](data []T) *storage[T] {
	s := &storage[T]{data: data}
	s.refs.Store(1)
	return s
}

// Buffer is a fixed-length sequence of T. Creating a Buffer allocates
// nothing; until the first write every element reads as the zero value of T.
// Clones share storage until one of them is written to, at which point the
// writer receives a private copy.
//
// Buffers must be duplicated with Clone, never by plain assignment: a plain
// copy shares storage without being counted and breaks copy-on-write. A
// single Buffer is not safe for concurrent use, but clones of it may be used
// from different goroutines.
type Buffer[T any] struct {
	_ noCopy

	s *storage[T]
	n int
}

// New returns a Buffer of n elements without allocating storage. New
// panics if n is not positive.
func New[T any](n int) Buffer[T] {
	if n <= 0 {
		panic(fmt.Sprintf("lazy: invalid buffer length %d", n))
	}
	return Buffer[T]{n: n}
}

// Len returns the number of elements of the buffer. It never changes.
func (b *Buffer[T]) Len() int {
	return b.n
}

// Allocated reports if the buffer holds backing storage.
func (b *Buffer[T]) Allocated() bool {
	return b.s != nil
}

// At returns the element at index i. It never allocates: while the buffer is
// unallocated the zero value of T is returned.
func (b *Buffer[T]) At(i int) T {
	b.check(i)
	if b.s == nil {
		var zero T
		return zero
	}
	return b.s.data[i]
}

// All iterates over the index and value of every element without
// allocating.
func (b *Buffer[T]) All() iter.Seq2[int, T] {
	return func(yield func(int, T) bool) {
		var zero T
		for i := 0; i < b.n; i++ {
			v := zero
			if b.s != nil {
				v = b.s.data[i]
			}
			if !yield(i, v) {
				return
			}
		}
	}
}

// Set stores v at index i, allocating or unsharing the storage first.
func (b *Buffer[T]) Set(i int, v T) {
	b.check(i)
	b.Data()[i] = v
}

// Ptr returns a pointer to the element at index i that may be written
// through. It allocates or unshares the storage first. The pointer is
// invalidated by the next Clone, Move, Swap or Release of b.
func (b *Buffer[T]) Ptr(i int) *T {
	b.check(i)
	return &b.Data()[i]
}

// Fill sets every element to v.
func (b *Buffer[T]) Fill(v T) {
	data := b.Data()
	for i := range data {
		data[i] = v
	}
}

// Data returns the mutable backing slice of the buffer, allocating it filled
// with zero values if absent and copying it if it is shared with a clone.
func (b *Buffer[T]) Data() []T {
	switch {
	case b.s == nil:
		b.s = newStorage(make([]T, b.n))
	case b.s.refs.Load() > 1:
		data := make([]T, b.n)
		copy(data, b.s.data)
		old := b.s
		b.s = newStorage(data)
		// The old storage is only released after the copy completes, so an
		// owner that observes a count of 1 may safely write to it in place.
		old.refs.Add(-1)
	}
	return b.s.data
}

// Clone returns a Buffer sharing the storage of b.
func (b *Buffer[T]) Clone() Buffer[T] {
	if b.s != nil {
		b.s.refs.Add(1)
	}
	return Buffer[T]{s: b.s, n: b.n}
}

// Move returns a Buffer that takes over the storage of b. b is left with the
// same length and no storage.
func (b *Buffer[T]) Move() Buffer[T] {
	s := b.s
	b.s = nil
	return Buffer[T]{s: s, n: b.n}
}

// Swap exchanges the contents of b and other.
func (b *Buffer[T]) Swap(other *Buffer[T]) {
	b.s, other.s = other.s, b.s
	b.n, other.n = other.n, b.n
}

// Release drops the storage held by b, after which b reads as zero values
// again. Releasing lets a remaining clone write in place without copying.
func (b *Buffer[T]) Release() {
	if b.s == nil {
		return
	}
	b.s.refs.Add(-1)
	b.s = nil
}

// Shared reports if the storage of b is currently shared with a clone.
func (b *Buffer[T]) Shared() bool {
	return b.s != nil && b.s.refs.Load() > 1
}

func (b *Buffer[T]) check(i int) {
	if i < 0 || i >= b.n {
		panic(fmt.Sprintf("lazy: index %d out of range [0, %d)", i, b.n))
	}
}

// noCopy lets go vet's copylocks check flag Buffers copied by value.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}
