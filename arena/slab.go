// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package arena

const (
	defaultSlabChunkSize = 64
	maxSlabChunkSize     = 4096
)

// Slab allocates values of type T in chunks and reclaims them all at once with
// Reset. Pointers returned by Alloc stay valid (the chunks are never
// reallocated) until the next Reset. A Slab is not safe for concurrent use.
//
// The zero value is ready to use.
type Slab[T any] struct {
	chunks    [][]T
	cur       int
	n         int
	len       int
	chunkSize int
}

// NewSlab returns a slab whose first chunk holds chunkSize values.
func NewSlab[T any](chunkSize int) *Slab[T] {
	return &Slab[T]{chunkSize: chunkSize}
}

// Alloc returns a pointer to a zero value of T.
func (s *Slab[T]) Alloc() *T {
	if len(s.chunks) == 0 || s.n == len(s.chunks[s.cur]) {
		s.advance()
	}
	v := &s.chunks[s.cur][s.n]
	s.n++
	s.len++
	return v
}

func (s *Slab[T]) advance() {
	if len(s.chunks) > 0 && s.cur+1 < len(s.chunks) {
		// Reuse a chunk retained across a Reset.
		s.cur++
		s.n = 0
		return
	}
	size := s.chunkSize
	if size <= 0 {
		size = defaultSlabChunkSize
	}
	if k := len(s.chunks); k > 0 {
		size = min(2*len(s.chunks[k-1]), max(maxSlabChunkSize, size))
	}
	s.chunks = append(s.chunks, make([]T, size))
	s.cur = len(s.chunks) - 1
	s.n = 0
}

// Len returns the number of values allocated since the last Reset.
func (s *Slab[T]) Len() int {
	return s.len
}

// Reset zeroes every value handed out since the last Reset and makes the
// memory available for reuse. Any pointer obtained before the Reset observes
// a zero value afterwards (until the slot is handed out again).
func (s *Slab[T]) Reset() {
	if len(s.chunks) == 0 {
		return
	}
	for i := 0; i < s.cur; i++ {
		clear(s.chunks[i])
	}
	clear(s.chunks[s.cur][:s.n])
	s.cur = 0
	s.n = 0
	s.len = 0
}
