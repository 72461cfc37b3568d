// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package deltamem

import (
	"fmt"
	"math"
	"strings"
	"sync/atomic"

	"github.com/cockroachdb/deltamem/arena"
	"github.com/cockroachdb/deltamem/internal/base"
	"github.com/cockroachdb/deltamem/internal/deltaskl"
	"github.com/cockroachdb/deltamem/internal/invariants"
	"github.com/cockroachdb/deltamem/mvcc"
	"github.com/cockroachdb/deltamem/rowchange"
	"github.com/cockroachdb/deltamem/schema"
	"github.com/cockroachdb/errors"
)

var (
	// ErrCorruption is a marker for errors caused by malformed encoded deltas.
	ErrCorruption = base.ErrCorruption
	// ErrInvalidArgument is a marker for errors caused by a caller violating
	// the contract of an operation.
	ErrInvalidArgument = base.ErrInvalidArgument
	// ErrDuplicateDelta is returned by Update when the store already holds a
	// delta for the same row and transaction.
	ErrDuplicateDelta = base.MarkInvalidArgumentError(
		errors.New("deltamem: delta already exists for row and transaction"))
)

// DeltaMemStore is an in-memory store of per-row column updates tagged by the
// transaction that produced them. It is the mutable overlay of a single row
// set: base column data lives elsewhere and readers merge the visible deltas
// on top of it.
//
// Updates and reads may proceed concurrently from any number of goroutines.
// Writers never block each other or readers. The store only grows; deltas
// are immutable once inserted and their memory is released only when the
// store itself is garbage collected.
type DeltaMemStore struct {
	opts   *Options
	schema *schema.Schema
	arena  *arena.Arena
	skl    *deltaskl.Skiplist

	// minRow is math.MaxUint64 until the first update completes. maxRow holds
	// the highest updated row plus one, or zero.
	minRow atomic.Uint64
	maxRow atomic.Uint64

	stats struct {
		iteratorsOpened atomic.Int64
		batchesPrepared atomic.Int64
		deltasScanned   atomic.Int64
	}
}

// New returns an empty store for deltas against rows of the given schema.
// The Options are not retained; a nil *Options is equivalent to the zero
// value.
func New(s *schema.Schema, opts *Options) *DeltaMemStore {
	opts = opts.Clone()
	opts.EnsureDefaults()
	d := &DeltaMemStore{
		opts:   opts,
		schema: s,
		arena:  arena.New(opts.ArenaInitialSize, opts.ArenaMaxBlockSize),
		skl:    deltaskl.NewSkiplist(),
	}
	d.minRow.Store(math.MaxUint64)
	return d
}

// Schema returns the schema the store's deltas are encoded against.
func (d *DeltaMemStore) Schema() *schema.Schema {
	return d.schema
}

// ID returns the row set id given in Options.
func (d *DeltaMemStore) ID() int64 {
	return d.opts.ID
}

// Count returns the number of deltas ever inserted. It never decreases.
func (d *DeltaMemStore) Count() int {
	return d.skl.Len()
}

// Empty returns true if no delta has been inserted.
func (d *DeltaMemStore) Empty() bool {
	return d.Count() == 0
}

// MinRow returns the lowest row ordinal updated by a completed Update call.
func (d *DeltaMemStore) MinRow() (row uint32, ok bool) {
	v := d.minRow.Load()
	if v == math.MaxUint64 {
		return 0, false
	}
	return uint32(v), true
}

// MaxRow returns the highest row ordinal updated by a completed Update call.
func (d *DeltaMemStore) MaxRow() (row uint32, ok bool) {
	v := d.maxRow.Load()
	if v == 0 {
		return 0, false
	}
	return uint32(v - 1), true
}

// Update records that transaction txn applied the changes in rcl to the row
// with ordinal row. The list is copied into the store arena, so the caller
// may reuse rcl once Update returns.
//
// Each (row, txn) pair may be updated at most once. An empty list, or a
// duplicate pair, returns an error marked with ErrInvalidArgument. A list
// that does not decode against the store schema is reported as fatal
// corruption.
func (d *DeltaMemStore) Update(txn mvcc.TxnID, row uint32, rcl rowchange.RowChangeList) error {
	if rcl.IsEmpty() {
		return base.InvalidArgumentErrorf("deltamem: empty change list for row %d by txn %s", row, txn)
	}
	if err := rowchange.Validate(d.schema, rcl); err != nil {
		d.fatalf(err, "update of row %d by txn %s", row, txn)
	}

	key := deltaskl.Key{Row: row, Txn: txn}
	// A rejected duplicate leaves its copy in the arena until the store is
	// dropped.
	if err := d.skl.Add(key, d.arena.Copy(rcl)); err != nil {
		if errors.Is(err, deltaskl.ErrRecordExists) {
			err = errors.Wrapf(ErrDuplicateDelta, "row %d txn %s", row, txn)
			if invariants.Enabled {
				panic(err)
			}
			return err
		}
		return err
	}
	d.noteRow(row)
	return nil
}

func (d *DeltaMemStore) noteRow(row uint32) {
	for v := d.minRow.Load(); uint64(row) < v; v = d.minRow.Load() {
		if d.minRow.CompareAndSwap(v, uint64(row)) {
			break
		}
	}
	for v := d.maxRow.Load(); uint64(row)+1 > v; v = d.maxRow.Load() {
		if d.maxRow.CompareAndSwap(v, uint64(row)+1) {
			break
		}
	}
}

// fatalf reports corruption of an encoded delta. It does not return.
func (d *DeltaMemStore) fatalf(err error, format string, args ...interface{}) {
	err = errors.Wrapf(base.MarkCorruptionError(err), format, args...)
	d.opts.Logger.Fatalf("deltamem %d: %v", d.opts.ID, err)
	// Loggers used in tests may return from Fatalf.
	panic(err)
}

// NewDeltaIterator returns an iterator over the deltas of the columns in
// projection that are visible under snap. Every projected column must exist
// in the store schema with the same type. Construction does not block
// concurrent updates; deltas inserted afterwards may be scanned but are
// filtered by snap like any other.
func (d *DeltaMemStore) NewDeltaIterator(
	projection *schema.Schema, snap *mvcc.Snapshot,
) (*DMSIterator, error) {
	if projection == nil || snap == nil {
		return nil, base.InvalidArgumentErrorf("deltamem: projection and snapshot are required")
	}
	colIDs := make([]schema.ColumnID, projection.NumColumns())
	for i := range colIDs {
		pc := projection.Column(i)
		idx, ok := d.schema.FindColumn(pc.Name)
		if !ok {
			return nil, base.InvalidArgumentErrorf("deltamem: projected column %q not in schema %s",
				errors.Safe(pc.Name), errors.Safe(d.schema.String()))
		}
		sc := d.schema.Column(idx)
		if sc.Type != pc.Type {
			return nil, base.InvalidArgumentErrorf("deltamem: projected column %q has type %s, store has %s",
				errors.Safe(pc.Name), pc.Type, sc.Type)
		}
		colIDs[i] = sc.ID
	}
	d.stats.iteratorsOpened.Add(1)
	return &DMSIterator{
		dms:        d,
		projection: projection,
		colIDs:     colIDs,
		snap:       snap,
	}, nil
}

// Metrics returns a point-in-time view of the store's counters.
func (d *DeltaMemStore) Metrics() Metrics {
	return Metrics{
		Count:           int64(d.Count()),
		ArenaSize:       d.arena.Size(),
		ArenaCapacity:   d.arena.Capacity(),
		IteratorsOpened: d.stats.iteratorsOpened.Load(),
		BatchesPrepared: d.stats.batchesPrepared.Load(),
		DeltasScanned:   d.stats.deltasScanned.Load(),
	}
}

// DebugDump returns every delta in the store in key order, one per line.
func (d *DeltaMemStore) DebugDump() string {
	var b strings.Builder
	fmt.Fprintf(&b, "deltamem %d: %d deltas\n", d.opts.ID, d.Count())
	it := d.skl.NewIter()
	for it.First(); it.Valid(); it.Next() {
		fmt.Fprintf(&b, "  %s: %s\n", it.Key(), rowchange.RowChangeList(it.Value()).Format(d.schema))
	}
	return b.String()
}
