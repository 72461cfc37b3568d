// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package deltamem

import (
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/cockroachdb/deltamem/arena"
	"github.com/cockroachdb/deltamem/internal/base"
	"github.com/cockroachdb/deltamem/internal/invariants"
	"github.com/cockroachdb/deltamem/mvcc"
	"github.com/cockroachdb/deltamem/rowchange"
	"github.com/cockroachdb/deltamem/schema"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
)

const (
	stringColumn schema.ColumnID = 1
	intColumn    schema.ColumnID = 2
)

func testSchema() *schema.Schema {
	return schema.MustNew([]schema.Column{
		{Name: "col1", Type: schema.String},
		{Name: "col2", Type: schema.String},
		{Name: "col3", Type: schema.Uint32},
	}, 1)
}

type testStore struct {
	t      testing.TB
	schema *schema.Schema
	dms    *DeltaMemStore
	mvcc   *mvcc.Manager
	logger *base.InMemLogger
	buf    []byte
	enc    *rowchange.Encoder
}

func newTestStore(t testing.TB) *testStore {
	ts := &testStore{
		t:      t,
		schema: testSchema(),
		mvcc:   mvcc.NewManager(),
		logger: &base.InMemLogger{},
	}
	ts.dms = New(ts.schema, &Options{Logger: ts.logger})
	ts.enc = rowchange.NewEncoder(ts.schema, &ts.buf)
	return ts
}

// updateInts sets col3 of each row to row*10, each in its own transaction.
func (ts *testStore) updateInts(rows ...uint32) {
	for _, row := range rows {
		tx := ts.mvcc.NewScopedTxn()
		ts.enc.Reset()
		require.NoError(ts.t, ts.enc.AddUint32(intColumn, row*10))
		require.NoError(ts.t, ts.dms.Update(tx.ID(), row, ts.enc.RowChangeList()))
		tx.Close()
	}
}

// applyUpdates applies the deltas of column col visible under snap to block,
// starting at row.
func (ts *testStore) applyUpdates(
	snap *mvcc.Snapshot, row uint32, col schema.ColumnID, block *schema.ColumnBlock,
) {
	c, ok := ts.schema.ColumnByID(col)
	require.True(ts.t, ok)
	projection, err := ts.schema.Project(c.Name)
	require.NoError(ts.t, err)

	it, err := ts.dms.NewDeltaIterator(projection, snap)
	require.NoError(ts.t, err)
	defer func() { require.NoError(ts.t, it.Close()) }()
	require.NoError(ts.t, it.Init())
	require.NoError(ts.t, it.SeekToOrdinal(row))
	require.NoError(ts.t, it.PrepareBatch(block.Len()))
	require.False(ts.t, it.Exhausted())
	require.NoError(ts.t, it.ApplyUpdates(0, block))
}

func TestSparseUpdates(t *testing.T) {
	ts := newTestStore(t)
	const numRows = 1000

	rng := rand.New(rand.NewPCG(12345, 0))
	updated := make(map[uint32]bool)
	var rows []uint32
	for len(rows) < 100 {
		row := uint32(rng.IntN(numRows))
		if !updated[row] {
			updated[row] = true
			rows = append(rows, row)
		}
	}
	ts.updateInts(rows...)
	require.Equal(t, 100, ts.dms.Count())

	block := schema.NewColumnBlock(schema.Uint32, numRows)
	for i := 0; i < numRows; i++ {
		block.SetUint32(i, 0xDEADBEEF)
	}
	ts.applyUpdates(ts.mvcc.TakeSnapshot(), 0, intColumn, block)

	for i := 0; i < numRows; i++ {
		if updated[uint32(i)] {
			require.Equal(t, uint32(i*10), block.Uint32(i), "row %d", i)
		} else {
			require.Equal(t, uint32(0xDEADBEEF), block.Uint32(i), "row %d", i)
		}
	}
}

// TestReUpdateSlice checks that string values are copied into the store so
// that clobbering the caller's buffer does not change what readers see.
func TestReUpdateSlice(t *testing.T) {
	ts := newTestStore(t)

	update := func(value string) *mvcc.Snapshot {
		tx := ts.mvcc.NewScopedTxn()
		buf := make([]byte, 256)
		v := buf[:copy(buf, value)]
		ts.enc.Reset()
		require.NoError(t, ts.enc.AddString(0, v))
		require.NoError(t, ts.dms.Update(tx.ID(), 123, ts.enc.RowChangeList()))
		for i := range buf {
			buf[i] = 0xff
		}
		// Clobber the encoded list as well.
		for i := range ts.buf {
			ts.buf[i] = 0xff
		}
		tx.Close()
		return ts.mvcc.TakeSnapshot()
	}
	afterFirst := update("update 1")
	afterSecond := update("update 2")
	require.Equal(t, 2, ts.dms.Count())

	block := schema.NewColumnBlock(schema.String, 1)
	ts.applyUpdates(afterFirst, 123, 0, block)
	require.Equal(t, "update 1", block.StringAt(0))

	ts.applyUpdates(afterSecond, 123, 0, block)
	require.Equal(t, "update 2", block.StringAt(0))
}

// TestOutOfOrderTxns checks that the update with the higher transaction id
// wins even when it was inserted first.
func TestOutOfOrderTxns(t *testing.T) {
	ts := newTestStore(t)

	tx1 := ts.mvcc.NewScopedTxn()
	tx2 := ts.mvcc.NewScopedTxn()

	ts.enc.Reset()
	require.NoError(t, ts.enc.AddString(stringColumn, []byte("update 2")))
	require.NoError(t, ts.dms.Update(tx2.ID(), 123, ts.enc.RowChangeList()))

	ts.enc.Reset()
	require.NoError(t, ts.enc.AddString(stringColumn, []byte("update 1")))
	require.NoError(t, ts.dms.Update(tx1.ID(), 123, ts.enc.RowChangeList()))

	tx2.Close()
	tx1.Close()
	require.Equal(t, 2, ts.dms.Count())

	block := schema.NewColumnBlock(schema.String, 1)
	ts.applyUpdates(ts.mvcc.TakeSnapshot(), 123, stringColumn, block)
	require.Equal(t, "update 2", block.StringAt(0))
}

func TestBasic(t *testing.T) {
	ts := newTestStore(t)
	const numRows = 1000

	for i := uint32(0); i < numRows; i++ {
		tx := ts.mvcc.NewScopedTxn()
		ts.enc.Reset()
		require.NoError(t, ts.enc.AddUint32(intColumn, i*10))
		require.NoError(t, ts.enc.AddString(stringColumn, []byte(fmt.Sprintf("hello %d", i))))
		require.NoError(t, ts.dms.Update(tx.ID(), i, ts.enc.RowChangeList()))
		tx.Close()
	}
	require.Equal(t, numRows, ts.dms.Count())

	snap := ts.mvcc.TakeSnapshot()
	ints := schema.NewColumnBlock(schema.Uint32, numRows)
	strs := schema.NewColumnBlock(schema.String, numRows)
	ts.applyUpdates(snap, 0, intColumn, ints)
	ts.applyUpdates(snap, 0, stringColumn, strs)
	for i := 0; i < numRows; i++ {
		require.Equal(t, uint32(i*10), ints.Uint32(i), "row %d", i)
		require.Equal(t, fmt.Sprintf("hello %d", i), strs.StringAt(i), "row %d", i)
	}

	// Updating the same rows in new transactions adds new entries; the old
	// ones remain for older snapshots.
	for i := uint32(0); i < numRows; i++ {
		tx := ts.mvcc.NewScopedTxn()
		ts.enc.Reset()
		require.NoError(t, ts.enc.AddUint32(intColumn, i*20))
		require.NoError(t, ts.dms.Update(tx.ID(), i, ts.enc.RowChangeList()))
		tx.Close()
	}
	require.Equal(t, 2*numRows, ts.dms.Count())

	ts.applyUpdates(snap, 0, intColumn, ints)
	for i := 0; i < numRows; i++ {
		require.Equal(t, uint32(i*10), ints.Uint32(i), "row %d", i)
	}
	ts.applyUpdates(ts.mvcc.TakeSnapshot(), 0, intColumn, ints)
	for i := 0; i < numRows; i++ {
		require.Equal(t, uint32(i*20), ints.Uint32(i), "row %d", i)
	}
}

func TestIteratorDoesUpdates(t *testing.T) {
	ts := newTestStore(t)
	for i := uint32(0); i < 1000; i++ {
		ts.updateInts(i)
	}
	require.Equal(t, 1000, ts.dms.Count())

	it, err := ts.dms.NewDeltaIterator(ts.schema, ts.mvcc.TakeSnapshot())
	require.NoError(t, err)
	defer func() { require.NoError(t, it.Close()) }()
	require.NoError(t, it.Init())

	block := schema.NewColumnBlock(schema.Uint32, 100)
	start := 50
	require.NoError(t, it.SeekToOrdinal(uint32(start)))
	for batch := 0; batch < 2; batch++ {
		require.NoError(t, it.PrepareBatch(block.Len()))
		require.NoError(t, it.ApplyUpdates(int(intColumn), block))
		for i := 0; i < block.Len(); i++ {
			require.Equal(t, uint32((start+i)*10), block.Uint32(i), "row %d", start+i)
		}
		start += block.Len()
	}
}

func TestCollectMutations(t *testing.T) {
	ts := newTestStore(t)
	ts.updateInts(5, 12)
	require.Equal(t, 2, ts.dms.Count())

	it, err := ts.dms.NewDeltaIterator(ts.schema, ts.mvcc.TakeSnapshot())
	require.NoError(t, err)
	defer func() { require.NoError(t, it.Close()) }()
	require.NoError(t, it.Init())
	require.NoError(t, it.SeekToOrdinal(0))

	const batchSize = 10
	slab := arena.NewSlab[Mutation](16)
	mutations := make([]*Mutation, batchSize)

	collect := func(wantRow int, want string) {
		slab.Reset()
		require.NoError(t, it.PrepareBatch(batchSize))
		require.NoError(t, it.CollectMutations(mutations, slab))
		for i, m := range mutations {
			str := StringifyMutationList(ts.schema, m)
			if i == wantRow {
				require.Equal(t, want, str, "row %d", i)
			} else {
				require.Equal(t, "[]", str, "row %d", i)
			}
		}
	}
	collect(5, "[@0(SET col3=50)]")
	collect(2, "[@1(SET col3=120)]")
}

func TestCollectMutationsOrdering(t *testing.T) {
	ts := newTestStore(t)
	txns := make([]mvcc.TxnID, 4)
	for i := range txns {
		txns[i] = ts.mvcc.Begin()
	}
	// Insert in reverse transaction order; row 3 gets all four.
	for i := len(txns) - 1; i >= 0; i-- {
		ts.enc.Reset()
		require.NoError(t, ts.enc.AddUint32(intColumn, uint32(100+i)))
		require.NoError(t, ts.dms.Update(txns[i], 3, ts.enc.RowChangeList()))
	}
	// Commit all but txns[2].
	ts.mvcc.Commit(txns[3])
	ts.mvcc.Commit(txns[0])
	ts.mvcc.Commit(txns[1])

	it, err := ts.dms.NewDeltaIterator(ts.schema, ts.mvcc.TakeSnapshot())
	require.NoError(t, err)
	require.NoError(t, it.Init())
	require.NoError(t, it.SeekToOrdinal(0))
	require.NoError(t, it.PrepareBatch(5))

	var slab arena.Slab[Mutation]
	mutations := make([]*Mutation, 5)
	require.NoError(t, it.CollectMutations(mutations, &slab))
	require.Equal(t, "[@0(SET col3=100), @1(SET col3=101), @3(SET col3=103)]",
		StringifyMutationList(ts.schema, mutations[3]))
	require.Equal(t, 3, slab.Len())

	require.Equal(t,
		"(row=3,txn=0): SET col3=100\n"+
			"(row=3,txn=1): SET col3=101\n"+
			"(row=3,txn=2): SET col3=102 (invisible)\n"+
			"(row=3,txn=3): SET col3=103\n",
		it.PreparedDeltas())

	block := schema.NewColumnBlock(schema.Uint32, 5)
	require.NoError(t, it.ApplyUpdates(int(intColumn), block))
	require.Equal(t, uint32(103), block.Uint32(3))
	require.NoError(t, it.Close())
}

func TestSnapshotIsolation(t *testing.T) {
	ts := newTestStore(t)
	ts.updateInts(7)
	before := ts.mvcc.TakeSnapshot()

	// An in-flight update is invisible until committed.
	tx := ts.mvcc.Begin()
	ts.enc.Reset()
	require.NoError(t, ts.enc.AddUint32(intColumn, 999))
	require.NoError(t, ts.dms.Update(tx, 7, ts.enc.RowChangeList()))
	during := ts.mvcc.TakeSnapshot()
	ts.mvcc.Commit(tx)
	after := ts.mvcc.TakeSnapshot()

	for _, c := range []struct {
		snap *mvcc.Snapshot
		want uint32
	}{
		{before, 70},
		{during, 70},
		{after, 999},
		{mvcc.NewSnapshotIncludingAll(), 999},
		{mvcc.NewSnapshotIncludingNone(), 0xDEADBEEF},
		{mvcc.NewSnapshotAt(tx), 70},
	} {
		block := schema.NewColumnBlock(schema.Uint32, 1)
		block.SetUint32(0, 0xDEADBEEF)
		ts.applyUpdates(c.snap, 7, intColumn, block)
		require.Equal(t, c.want, block.Uint32(0), "snapshot %s", c.snap)
	}
}

func TestUpdateErrors(t *testing.T) {
	ts := newTestStore(t)

	err := ts.dms.Update(0, 1, nil)
	require.True(t, errors.Is(err, ErrInvalidArgument), "%v", err)
	require.Equal(t, 0, ts.dms.Count())

	ts.updateInts(1)
	ts.enc.Reset()
	require.NoError(t, ts.enc.AddUint32(intColumn, 5))
	arenaSize := ts.dms.Metrics().ArenaSize
	if invariants.Enabled {
		require.Panics(t, func() { _ = ts.dms.Update(0, 1, ts.enc.RowChangeList()) })
	} else {
		err := ts.dms.Update(0, 1, ts.enc.RowChangeList())
		require.True(t, errors.Is(err, ErrDuplicateDelta), "%v", err)
		require.True(t, errors.Is(err, ErrInvalidArgument), "%v", err)
	}
	require.Equal(t, 1, ts.dms.Count())
	// The rejected copy stays in the arena.
	require.Equal(t, arenaSize+int64(len(ts.enc.RowChangeList())), ts.dms.Metrics().ArenaSize)
}

func TestUpdateCorruption(t *testing.T) {
	ts := newTestStore(t)
	// Column 9 does not exist in the schema.
	rcl := rowchange.RowChangeList{byte(rowchange.KindUpdate), 9, 1, 2, 3, 4}
	require.Panics(t, func() { _ = ts.dms.Update(0, 1, rcl) })
	require.Contains(t, ts.logger.String(), "FATAL: deltamem 0: update of row 1 by txn 0")
	require.Equal(t, 0, ts.dms.Count())
}

func TestRowBounds(t *testing.T) {
	ts := newTestStore(t)
	require.True(t, ts.dms.Empty())
	_, ok := ts.dms.MinRow()
	require.False(t, ok)
	_, ok = ts.dms.MaxRow()
	require.False(t, ok)

	ts.updateInts(40, 7, 0, 13)
	require.False(t, ts.dms.Empty())
	minRow, ok := ts.dms.MinRow()
	require.True(t, ok)
	require.Equal(t, uint32(0), minRow)
	maxRow, ok := ts.dms.MaxRow()
	require.True(t, ok)
	require.Equal(t, uint32(40), maxRow)
}

func TestNewDeltaIteratorErrors(t *testing.T) {
	ts := newTestStore(t)
	snap := ts.mvcc.TakeSnapshot()

	_, err := ts.dms.NewDeltaIterator(nil, snap)
	require.True(t, errors.Is(err, ErrInvalidArgument), "%v", err)
	_, err = ts.dms.NewDeltaIterator(ts.schema, nil)
	require.True(t, errors.Is(err, ErrInvalidArgument), "%v", err)

	missing := schema.MustNew([]schema.Column{{Name: "col4", Type: schema.Uint32}}, 0)
	_, err = ts.dms.NewDeltaIterator(missing, snap)
	require.True(t, errors.Is(err, ErrInvalidArgument), "%v", err)

	wrongType := schema.MustNew([]schema.Column{{Name: "col3", Type: schema.Uint64}}, 0)
	_, err = ts.dms.NewDeltaIterator(wrongType, snap)
	require.True(t, errors.Is(err, ErrInvalidArgument), "%v", err)

	// Projections built independently of the store schema are matched by name.
	ok := schema.MustNew([]schema.Column{{Name: "col3", Type: schema.Uint32}}, 0)
	it, err := ts.dms.NewDeltaIterator(ok, snap)
	require.NoError(t, err)
	require.Equal(t, []schema.ColumnID{intColumn}, it.colIDs)
}

func TestIteratorStateMachine(t *testing.T) {
	ts := newTestStore(t)
	ts.updateInts(5, 25)
	newIter := func() *DMSIterator {
		it, err := ts.dms.NewDeltaIterator(ts.schema, ts.mvcc.TakeSnapshot())
		require.NoError(t, err)
		return it
	}
	isInvalid := func(err error) {
		t.Helper()
		require.Error(t, err)
		require.True(t, errors.Is(err, ErrInvalidArgument), "%v", err)
	}
	block := schema.NewColumnBlock(schema.Uint32, 10)
	var slab arena.Slab[Mutation]
	dst := make([]*Mutation, 10)

	t.Run("uninitialized", func(t *testing.T) {
		it := newIter()
		isInvalid(it.SeekToOrdinal(0))
		isInvalid(it.PrepareBatch(10))
		isInvalid(it.ApplyUpdates(2, block))
		isInvalid(it.CollectMutations(dst, &slab))
		require.NoError(t, it.Close())
	})

	t.Run("init-twice", func(t *testing.T) {
		it := newIter()
		require.NoError(t, it.Init())
		isInvalid(it.Init())
		require.NoError(t, it.Close())
	})

	t.Run("not-positioned", func(t *testing.T) {
		it := newIter()
		require.NoError(t, it.Init())
		isInvalid(it.PrepareBatch(10))
		isInvalid(it.ApplyUpdates(2, block))
		require.NoError(t, it.Close())
	})

	t.Run("positioned-without-batch", func(t *testing.T) {
		it := newIter()
		require.NoError(t, it.Init())
		require.NoError(t, it.SeekToOrdinal(0))
		isInvalid(it.ApplyUpdates(2, block))
		isInvalid(it.CollectMutations(dst, &slab))
		isInvalid(it.PrepareBatch(0))
		require.NoError(t, it.Close())
	})

	t.Run("seek", func(t *testing.T) {
		it := newIter()
		require.NoError(t, it.Init())
		require.NoError(t, it.SeekToOrdinal(10))
		// Seeking again before any batch may move backwards.
		require.NoError(t, it.SeekToOrdinal(0))
		require.NoError(t, it.PrepareBatch(10))
		isInvalid(it.SeekToOrdinal(9))
		require.NoError(t, it.SeekToOrdinal(10))
		// The seek discards the prepared batch.
		isInvalid(it.ApplyUpdates(2, block))
		require.NoError(t, it.SeekToOrdinal(20))
		require.NoError(t, it.PrepareBatch(10))
		require.NoError(t, it.ApplyUpdates(2, block))
		require.Equal(t, uint32(250), block.Uint32(5))
		require.NoError(t, it.Close())
	})

	t.Run("bad-arguments", func(t *testing.T) {
		it := newIter()
		require.NoError(t, it.Init())
		require.NoError(t, it.SeekToOrdinal(0))
		require.NoError(t, it.PrepareBatch(10))
		isInvalid(it.ApplyUpdates(3, block))
		isInvalid(it.ApplyUpdates(-1, block))
		isInvalid(it.ApplyUpdates(2, nil))
		isInvalid(it.ApplyUpdates(2, schema.NewColumnBlock(schema.Uint32, 9)))
		isInvalid(it.ApplyUpdates(2, schema.NewColumnBlock(schema.String, 10)))
		isInvalid(it.CollectMutations(dst[:9], &slab))
		isInvalid(it.CollectMutations(dst, nil))
		// Failed calls leave the batch prepared.
		require.NoError(t, it.ApplyUpdates(2, block))
		require.Equal(t, uint32(50), block.Uint32(5))
		require.NoError(t, it.Close())
	})

	t.Run("exhausted", func(t *testing.T) {
		it := newIter()
		require.NoError(t, it.Init())
		require.NoError(t, it.SeekToOrdinal(0))
		require.NoError(t, it.PrepareBatch(10))
		require.False(t, it.Exhausted())
		// Rows [10,20) hold no deltas but row 25 does.
		require.NoError(t, it.PrepareBatch(10))
		require.False(t, it.Exhausted())
		require.Empty(t, it.PreparedDeltas())
		require.NoError(t, it.PrepareBatch(10))
		require.False(t, it.Exhausted())
		require.NoError(t, it.PrepareBatch(10))
		require.True(t, it.Exhausted())
		isInvalid(it.ApplyUpdates(2, block))
		isInvalid(it.CollectMutations(dst, &slab))
		isInvalid(it.PrepareBatch(10))
		isInvalid(it.SeekToOrdinal(100))
		require.NoError(t, it.Close())
	})

	t.Run("empty-store", func(t *testing.T) {
		empty := New(ts.schema, nil)
		it, err := empty.NewDeltaIterator(ts.schema, mvcc.NewSnapshotIncludingAll())
		require.NoError(t, err)
		require.NoError(t, it.Init())
		require.NoError(t, it.SeekToOrdinal(0))
		require.NoError(t, it.PrepareBatch(10))
		require.True(t, it.Exhausted())
		require.NoError(t, it.Close())
	})
}

func TestApplyUpdatesIdempotent(t *testing.T) {
	ts := newTestStore(t)
	ts.updateInts(1, 3)
	it, err := ts.dms.NewDeltaIterator(ts.schema, ts.mvcc.TakeSnapshot())
	require.NoError(t, err)
	require.NoError(t, it.Init())
	require.NoError(t, it.SeekToOrdinal(0))
	require.NoError(t, it.PrepareBatch(4))

	block := schema.NewColumnBlock(schema.Uint32, 4)
	for i := 0; i < 2; i++ {
		require.NoError(t, it.ApplyUpdates(int(intColumn), block))
		require.Equal(t, []uint32{0, 10, 0, 30},
			[]uint32{block.Uint32(0), block.Uint32(1), block.Uint32(2), block.Uint32(3)})
	}
	require.NoError(t, it.Close())
}

func TestDebugDump(t *testing.T) {
	ts := newTestStore(t)
	ts.updateInts(12, 5)
	require.Equal(t,
		"deltamem 0: 2 deltas\n"+
			"  (row=5,txn=1): SET col3=50\n"+
			"  (row=12,txn=0): SET col3=120\n",
		ts.dms.DebugDump())
}

func TestMetrics(t *testing.T) {
	ts := newTestStore(t)
	ts.updateInts(1, 2, 3)
	it, err := ts.dms.NewDeltaIterator(ts.schema, ts.mvcc.TakeSnapshot())
	require.NoError(t, err)
	require.NoError(t, it.Init())
	require.NoError(t, it.SeekToOrdinal(0))
	require.NoError(t, it.PrepareBatch(2))
	require.NoError(t, it.PrepareBatch(2))
	require.NoError(t, it.Close())

	m := ts.dms.Metrics()
	require.Equal(t, int64(3), m.Count)
	require.Equal(t, int64(1), m.IteratorsOpened)
	require.Equal(t, int64(2), m.BatchesPrepared)
	require.Equal(t, int64(3), m.DeltasScanned)
	// Each list is a header, a column id and a 4-byte value.
	require.Equal(t, int64(3*6), m.ArenaSize)
	require.LessOrEqual(t, m.ArenaSize, m.ArenaCapacity)
	require.Contains(t, m.String(), "deltas: 3")
}
