// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package deltamem

import (
	"fmt"
	"math"
	"strings"

	"github.com/cockroachdb/deltamem/arena"
	"github.com/cockroachdb/deltamem/internal/base"
	"github.com/cockroachdb/deltamem/internal/deltaskl"
	"github.com/cockroachdb/deltamem/internal/invariants"
	"github.com/cockroachdb/deltamem/mvcc"
	"github.com/cockroachdb/deltamem/rowchange"
	"github.com/cockroachdb/deltamem/schema"
	"github.com/cockroachdb/errors"
)

// DeltaIterator scans the deltas of a store in batches of consecutive row
// ordinals. The expected call sequence is:
//
//	Init
//	SeekToOrdinal(row)
//	for {
//	    PrepareBatch(n)
//	    if Exhausted() { break }
//	    ApplyUpdates(...) / CollectMutations(...)
//	}
//	Close
//
// Consecutive batches cover consecutive row ranges. Seeking is only allowed
// forward of the end of the last prepared batch.
type DeltaIterator interface {
	Init() error
	SeekToOrdinal(row uint32) error
	PrepareBatch(n int) error
	ApplyUpdates(projIdx int, block *schema.ColumnBlock) error
	CollectMutations(dst []*Mutation, slab *arena.Slab[Mutation]) error
	Exhausted() bool
	Close() error
}

// DebugIterator is implemented by iterators that can describe their
// prepared batch.
type DebugIterator interface {
	PreparedDeltas() string
}

type iterState int8

const (
	stateCreated iterState = iota
	stateInitialized
	statePositioned
	stateBatchPrepared
	stateExhausted
)

func (s iterState) String() string {
	switch s {
	case stateCreated:
		return "created"
	case stateInitialized:
		return "initialized"
	case statePositioned:
		return "positioned"
	case stateBatchPrepared:
		return "batch-prepared"
	case stateExhausted:
		return "exhausted"
	default:
		return fmt.Sprintf("unknown(%d)", int8(s))
	}
}

type preparedDelta struct {
	key deltaskl.Key
	rcl rowchange.RowChangeList
}

// DMSIterator is a DeltaIterator over a DeltaMemStore. It is not safe for
// concurrent use, but any number of iterators may run concurrently with
// each other and with Update.
type DMSIterator struct {
	dms        *DeltaMemStore
	projection *schema.Schema
	colIDs     []schema.ColumnID
	snap       *mvcc.Snapshot
	iter       deltaskl.Iterator
	state      iterState

	// cursor is the first row of the next batch. Row ordinals are uint32 but
	// a batch may end past math.MaxUint32.
	cursor uint64
	// preparedEnd is the end of the furthest batch prepared so far.
	preparedEnd uint64
	batchStart  uint64
	batchLen    int
	// prepared holds every delta of the current batch in key order,
	// regardless of visibility.
	prepared []preparedDelta

	closeCheck invariants.CloseChecker
}

var _ DeltaIterator = (*DMSIterator)(nil)
var _ DebugIterator = (*DMSIterator)(nil)

// Init prepares the iterator for use. It must be called exactly once.
func (i *DMSIterator) Init() error {
	if i.state != stateCreated {
		return base.InvalidArgumentErrorf("deltamem: iterator already initialized")
	}
	i.iter = i.dms.skl.NewIter()
	i.state = stateInitialized
	return nil
}

// SeekToOrdinal positions the iterator so that the next batch starts at row.
// Seeking to a row before the end of a batch already prepared is an error.
func (i *DMSIterator) SeekToOrdinal(row uint32) error {
	i.closeCheck.AssertNotClosed()
	switch i.state {
	case stateCreated:
		return base.InvalidArgumentErrorf("deltamem: seek on uninitialized iterator")
	case stateExhausted:
		return base.InvalidArgumentErrorf("deltamem: seek on exhausted iterator")
	}
	if uint64(row) < i.preparedEnd {
		return base.InvalidArgumentErrorf("deltamem: cannot seek to row %d before end of prepared rows %d",
			row, i.preparedEnd)
	}
	i.cursor = uint64(row)
	i.prepared = i.prepared[:0]
	i.batchLen = 0
	i.state = statePositioned
	return nil
}

// PrepareBatch buffers every delta for rows [cursor, cursor+n), replacing the
// previous batch, and advances the cursor by n. If the store holds no delta
// at or after the cursor the iterator becomes exhausted.
func (i *DMSIterator) PrepareBatch(n int) error {
	i.closeCheck.AssertNotClosed()
	switch i.state {
	case stateCreated, stateInitialized:
		return base.InvalidArgumentErrorf("deltamem: prepare batch on %s iterator", i.state)
	case stateExhausted:
		return base.InvalidArgumentErrorf("deltamem: prepare batch on exhausted iterator")
	}
	if n <= 0 {
		return base.InvalidArgumentErrorf("deltamem: invalid batch size %d", n)
	}

	start := i.cursor
	end := start + uint64(n)
	i.prepared = i.prepared[:0]
	i.batchStart = start
	i.batchLen = n
	i.cursor = end
	i.preparedEnd = end

	if start > math.MaxUint32 {
		i.state = stateExhausted
		return nil
	}
	// Reseek rather than continue from the previous position so that deltas
	// linked in front of it since the last batch are not skipped.
	i.iter.SeekGE(deltaskl.Key{Row: uint32(start)})
	if !i.iter.Valid() {
		i.state = stateExhausted
		return nil
	}
	for ; i.iter.Valid() && uint64(i.iter.Key().Row) < end; i.iter.Next() {
		i.prepared = append(i.prepared, preparedDelta{
			key: i.iter.Key(),
			rcl: rowchange.RowChangeList(i.iter.Value()),
		})
	}
	i.state = stateBatchPrepared
	i.dms.stats.batchesPrepared.Add(1)
	i.dms.stats.deltasScanned.Add(int64(len(i.prepared)))
	return nil
}

func (i *DMSIterator) checkPrepared(op string) error {
	i.closeCheck.AssertNotClosed()
	switch i.state {
	case stateBatchPrepared:
		return nil
	case stateExhausted:
		return base.InvalidArgumentErrorf("deltamem: %s on exhausted iterator", errors.Safe(op))
	default:
		return base.InvalidArgumentErrorf("deltamem: %s without a prepared batch", errors.Safe(op))
	}
}

// ApplyUpdates writes the visible updates to projected column projIdx into
// block, whose row 0 corresponds to the first row of the batch. Updates are
// applied in ascending transaction order so the last visible writer wins;
// rows without a visible update are left untouched. Variable-width values in
// block reference store memory.
func (i *DMSIterator) ApplyUpdates(projIdx int, block *schema.ColumnBlock) error {
	if err := i.checkPrepared("apply updates"); err != nil {
		return err
	}
	if projIdx < 0 || projIdx >= len(i.colIDs) {
		return base.InvalidArgumentErrorf("deltamem: projection index %d out of range [0,%d)",
			projIdx, len(i.colIDs))
	}
	if block == nil || block.Len() < i.batchLen {
		return base.InvalidArgumentErrorf("deltamem: column block too small for batch of %d rows", i.batchLen)
	}
	if typ := i.projection.Column(projIdx).Type; block.Type() != typ {
		return base.InvalidArgumentErrorf("deltamem: column block of type %s for column of type %s",
			block.Type(), typ)
	}

	id := i.colIDs[projIdx]
	for _, p := range i.prepared {
		if !i.snap.IsCommitted(p.key.Txn) {
			continue
		}
		v, ok, err := rowchange.Lookup(i.dms.schema, p.rcl, id)
		if err != nil {
			i.dms.fatalf(err, "decoding delta %s", p.key)
		}
		if ok {
			block.SetCell(int(uint64(p.key.Row)-i.batchStart), v)
		}
	}
	return nil
}

// CollectMutations sets dst[j] to the list of visible mutations of row
// batchStart+j, in ascending transaction order, or nil if the row has none.
// Mutation nodes are allocated from slab; their Changes reference store
// memory.
func (i *DMSIterator) CollectMutations(dst []*Mutation, slab *arena.Slab[Mutation]) error {
	if err := i.checkPrepared("collect mutations"); err != nil {
		return err
	}
	if len(dst) < i.batchLen {
		return base.InvalidArgumentErrorf("deltamem: mutation slice of length %d too small for batch of %d rows",
			len(dst), i.batchLen)
	}
	if slab == nil {
		return base.InvalidArgumentErrorf("deltamem: nil mutation slab")
	}

	clear(dst[:i.batchLen])
	var tail *Mutation
	lastIdx := -1
	for _, p := range i.prepared {
		if !i.snap.IsCommitted(p.key.Txn) {
			continue
		}
		if err := rowchange.Validate(i.dms.schema, p.rcl); err != nil {
			i.dms.fatalf(err, "decoding delta %s", p.key)
		}
		m := slab.Alloc()
		m.TxnID = p.key.Txn
		m.Changes = p.rcl
		idx := int(uint64(p.key.Row) - i.batchStart)
		if idx != lastIdx {
			dst[idx] = m
		} else {
			tail.next = m
		}
		tail, lastIdx = m, idx
	}
	return nil
}

// Exhausted returns true once a PrepareBatch found no delta at or after the
// cursor.
func (i *DMSIterator) Exhausted() bool {
	return i.state == stateExhausted
}

// PreparedDeltas describes every delta of the current batch, visible or not.
func (i *DMSIterator) PreparedDeltas() string {
	var b strings.Builder
	for _, p := range i.prepared {
		vis := ""
		if !i.snap.IsCommitted(p.key.Txn) {
			vis = " (invisible)"
		}
		fmt.Fprintf(&b, "%s: %s%s\n", p.key, p.rcl.Format(i.dms.schema), vis)
	}
	return b.String()
}

// Close releases the iterator's batch buffer.
func (i *DMSIterator) Close() error {
	i.closeCheck.Close()
	i.prepared = nil
	i.state = stateExhausted
	return nil
}
