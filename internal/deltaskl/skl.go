/*
 * Copyright 2017 Dgraph Labs, Inc. and Contributors
 * Modifications copyright (C) 2017 Andy Kimball and Contributors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

/*
Adapted from arenaskl: https://github.com/andy-kimball/arenaskl

Key differences:
- Fixed (row, txn) keys compared numerically, no comparator.
- Nodes are garbage collected objects; values live in an external arena
  owned by the caller.
- Singly linked: forward iteration only.
- No deletion and no overwrites. Duplicate keys are rejected.
*/

package deltaskl

import (
	"fmt"
	"math"
	"math/rand/v2"
	"runtime"
	"sync/atomic"

	"github.com/cockroachdb/deltamem/internal/invariants"
	"github.com/cockroachdb/deltamem/mvcc"
	"github.com/cockroachdb/errors"
)

const (
	maxHeight = 20
	pValue    = 1 / math.E
)

// ErrRecordExists indicates that a record with the same (row, txn) key was
// already added.
var ErrRecordExists = errors.New("record with this key already exists")

// Key orders deltas by row ordinal, then by transaction id.
type Key struct {
	Row uint32
	Txn mvcc.TxnID
}

// Compare returns -1, 0, or +1 depending on whether k is less than, equal to
// or greater than o.
func (k Key) Compare(o Key) int {
	switch {
	case k.Row < o.Row:
		return -1
	case k.Row > o.Row:
		return +1
	case k.Txn < o.Txn:
		return -1
	case k.Txn > o.Txn:
		return +1
	default:
		return 0
	}
}

func (k Key) String() string {
	return fmt.Sprintf("(row=%d,txn=%d)", k.Row, k.Txn)
}

type node struct {
	// Immutable once the node is linked in.
	key   Key
	value []byte

	// tower holds the node's forward links; its length is the node's height.
	// All accesses use atomic operations, with no need to lock.
	tower []atomic.Pointer[node]
}

type splice struct {
	prev *node
	next *node
}

func (s *splice) init(prev, next *node) {
	s.prev = prev
	s.next = next
}

// Skiplist is a lock-free sorted map from Key to an immutable value. Adds may
// run concurrently with each other and with iteration.
type Skiplist struct {
	head   *node
	height atomic.Uint32 // Current height. 1 <= height <= maxHeight. CAS.
	count  atomic.Int64

	// If set to true by tests, then extra delays are added to make it easier to
	// detect unusual race conditions.
	testing bool
}

var (
	probabilities [maxHeight]uint32
)

func init() {
	// Precompute the skiplist probabilities so that only a single random number
	// needs to be generated and so that the optimal pvalue can be used (inverse
	// of Euler's number).
	p := float64(1.0)
	for i := 0; i < maxHeight; i++ {
		probabilities[i] = uint32(float64(math.MaxUint32) * p)
		p *= pValue
	}
}

// NewSkiplist constructs and initializes a new, empty skiplist.
func NewSkiplist() *Skiplist {
	s := &Skiplist{
		head: &node{tower: make([]atomic.Pointer[node], maxHeight)},
	}
	s.height.Store(1)
	return s
}

// Height returns the height of the highest tower within any of the nodes that
// have ever been allocated as part of this skiplist.
func (s *Skiplist) Height() uint32 { return s.height.Load() }

// Len returns the number of records added.
func (s *Skiplist) Len() int { return int(s.count.Load()) }

// Add adds a new record if its key does not yet exist. If the key already
// exists, then Add returns ErrRecordExists. The value is retained as is; the
// caller must not modify it afterwards.
func (s *Skiplist) Add(key Key, value []byte) error {
	var spl [maxHeight]splice
	if s.findSplice(key, &spl) {
		return ErrRecordExists
	}

	if s.testing {
		// Add delay to make it easier to test race between this thread
		// and another thread that sees the intermediate state between
		// finding the splice and using it.
		runtime.Gosched()
	}

	nd, height := s.newNode(key, value)

	// We always insert from the base level and up. After you add a node in base
	// level, we cannot create a node in the level above because it would have
	// discovered the node in the base level.
	for i := 0; i < int(height); i++ {
		prev := spl[i].prev
		next := spl[i].next

		if prev == nil {
			// New node increased the height of the skiplist, so assume that the
			// new level has not yet been populated.
			if next != nil {
				panic("next is expected to be nil, since prev is nil")
			}
			prev = s.head
		}

		for {
			nd.tower[i].Store(next)
			if prev.tower[i].CompareAndSwap(next, nd) {
				break
			}

			// CAS failed. We need to recompute prev and next. It is unlikely to
			// be helpful to try to use a different level as we redo the search,
			// because it is unlikely that lots of nodes are inserted between prev
			// and next.
			var found bool
			prev, next, found = s.findSpliceForLevel(key, i, prev)
			if found {
				if i != 0 {
					panic("how can another thread have inserted a node at a non-base level?")
				}
				return ErrRecordExists
			}
		}

		if invariants.Enabled && i == 0 {
			if next != nil && key.Compare(next.key) >= 0 {
				panic(errors.AssertionFailedf("skiplist: %s linked before %s", key, next.key))
			}
		}
	}

	s.count.Add(1)
	return nil
}

// NewIter returns a new Iterator object. Note that it is safe for an
// iterator to be copied by value.
func (s *Skiplist) NewIter() Iterator {
	return Iterator{list: s}
}

func (s *Skiplist) newNode(key Key, value []byte) (nd *node, height uint32) {
	height = s.randomHeight()
	nd = &node{
		key:   key,
		value: value,
		tower: make([]atomic.Pointer[node], height),
	}

	// Try to increase s.height via CAS.
	listHeight := s.Height()
	for height > listHeight {
		if s.height.CompareAndSwap(listHeight, height) {
			// Successfully increased skiplist.height.
			break
		}

		listHeight = s.Height()
	}

	return nd, height
}

func (s *Skiplist) randomHeight() uint32 {
	rnd := rand.Uint32()
	h := uint32(1)
	for h < maxHeight && rnd <= probabilities[h] {
		h++
	}

	return h
}

func (s *Skiplist) findSplice(key Key, spl *[maxHeight]splice) (found bool) {
	var prev, next *node
	prev = s.head

	for level := int(s.Height() - 1); level >= 0; level-- {
		prev, next, found = s.findSpliceForLevel(key, level, prev)
		spl[level].init(prev, next)
	}

	return
}

func (s *Skiplist) findSpliceForLevel(key Key, level int, start *node) (prev, next *node, found bool) {
	prev = start

	for {
		// Assume prev.key < key.
		next = prev.tower[level].Load()
		if next == nil {
			// End of the level, so done.
			break
		}

		cmp := key.Compare(next.key)
		if cmp == 0 {
			// Equality case.
			found = true
			break
		}

		if cmp < 0 {
			// We are done for this level, since prev.key < key < next.key.
			break
		}

		// Keep moving right on this level.
		prev = next
	}

	return
}
