// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package arena implements region allocators whose allocations are reclaimed
// only as a whole.
//
// An Arena hands out byte slices carved from growable backing blocks. A slice
// returned by an Arena is never relocated, so it stays valid until the arena is
// Reset or dropped. Allocation is safe for concurrent use; Reset is not and
// requires that no reference to a prior allocation survives it.
//
// A Slab is the typed analogue used for batch-scoped nodes that themselves hold
// references (and therefore cannot live in untyped arena memory).
package arena

import (
	"fmt"
	"sync/atomic"

	"github.com/cockroachdb/deltamem/internal/invariants"
)

const (
	// DefaultInitialSize is the size of the first block of an arena created
	// with a non-positive initial size.
	DefaultInitialSize = 4 << 10
	// DefaultMaxBlockSize is the block size an arena stops doubling at when
	// created with a maximum smaller than its initial size.
	DefaultMaxBlockSize = 1 << 20
)

type block struct {
	buf []byte
	// off is the bump pointer. It may run past len(buf) when concurrent
	// allocations race for the tail of the block; those allocations fail over
	// to the next block.
	off atomic.Int64
}

// Arena is a bump allocator. The zero value is not usable; use New.
type Arena struct {
	initialSize  int
	maxBlockSize int
	cur          atomic.Pointer[block]
	// size is the number of bytes handed out, capacity the number of bytes
	// reserved in blocks (including dedicated oversized allocations).
	size     atomic.Int64
	capacity atomic.Int64
}

// New returns an arena whose first block holds initialSize bytes. Subsequent
// blocks double in size until they reach maxBlockSize.
func New(initialSize, maxBlockSize int) *Arena {
	if initialSize <= 0 {
		initialSize = DefaultInitialSize
	}
	if maxBlockSize < initialSize {
		maxBlockSize = max(initialSize, DefaultMaxBlockSize)
	}
	a := &Arena{
		initialSize:  initialSize,
		maxBlockSize: maxBlockSize,
	}
	a.install(initialSize)
	return a
}

func (a *Arena) install(size int) {
	a.cur.Store(&block{buf: make([]byte, size)})
	a.capacity.Add(int64(size))
}

// Size returns the number of bytes handed out since creation or the last
// Reset.
func (a *Arena) Size() int64 {
	return a.size.Load()
}

// Capacity returns the number of bytes reserved by the arena's blocks.
func (a *Arena) Capacity() int64 {
	return a.capacity.Load()
}

// Alloc returns a zeroed slice of n bytes. The slice's capacity is clipped to
// n so that appending to it can never scribble over a neighbouring
// allocation.
func (a *Arena) Alloc(n int) []byte {
	if n < 0 {
		panic(fmt.Sprintf("arena: negative allocation size %d", n))
	}
	if n == 0 {
		return []byte{}
	}
	if n > a.maxBlockSize {
		// Oversized allocations get a dedicated block which is never
		// installed as the current block.
		a.capacity.Add(int64(n))
		a.size.Add(int64(n))
		return make([]byte, n)
	}

	for {
		b := a.cur.Load()
		end := b.off.Add(int64(n))
		if end <= int64(len(b.buf)) {
			a.size.Add(int64(n))
			start := end - int64(n)
			return b.buf[start:end:end]
		}
		// The block is exhausted. Only allocate a replacement if nobody has
		// beaten us to it.
		if a.cur.Load() != b {
			continue
		}
		next := &block{buf: make([]byte, a.nextBlockSize(len(b.buf), n))}
		if a.cur.CompareAndSwap(b, next) {
			a.capacity.Add(int64(len(next.buf)))
		}
	}
}

func (a *Arena) nextBlockSize(prev, n int) int {
	size := min(2*prev, a.maxBlockSize)
	return max(size, n)
}

// Copy returns a copy of b allocated from the arena.
func (a *Arena) Copy(b []byte) []byte {
	dst := a.Alloc(len(b))
	copy(dst, b)
	return dst
}

// Reset discards every allocation at once. The current block is reused so an
// arena that is reset between batches of similar size stops growing. Reset
// must not run concurrently with Alloc, and the caller guarantees that no
// reference to memory handed out before the reset is used afterwards.
//
// In invariant builds the discarded memory is mangled and a fresh block is
// installed, so a stale reference reads garbage instead of data from a later
// batch.
func (a *Arena) Reset() {
	b := a.cur.Load()
	used := b.buf[:min(b.off.Load(), int64(len(b.buf)))]
	a.size.Store(0)
	a.capacity.Store(0)
	if invariants.Enabled {
		invariants.Mangle(used)
		a.install(len(b.buf))
		return
	}
	clear(used)
	b.off.Store(0)
	a.capacity.Store(int64(len(b.buf)))
}
