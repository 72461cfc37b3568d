// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package deltamem

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/cockroachdb/datadriven"
	"github.com/cockroachdb/deltamem/arena"
	"github.com/cockroachdb/deltamem/internal/datadrivenutil"
	"github.com/cockroachdb/deltamem/mvcc"
	"github.com/cockroachdb/deltamem/schema"
	"github.com/stretchr/testify/require"
)

func TestIteratorDataDriven(t *testing.T) {
	var ts *testStore
	snaps := make(map[string]*mvcc.Snapshot)

	datadriven.RunTest(t, "testdata/iterator", func(t *testing.T, td *datadriven.TestData) string {
		switch td.Cmd {
		case "reset":
			ts = newTestStore(t)
			clear(snaps)
			return ""

		case "begin":
			var ids []string
			n := 1
			if td.HasArg("n") {
				td.ScanArgs(t, "n", &n)
			}
			for i := 0; i < n; i++ {
				ids = append(ids, ts.mvcc.Begin().String())
			}
			return strings.Join(ids, " ")

		case "commit":
			var ids []string
			td.ScanArgs(t, "txn", &ids)
			for _, id := range ids {
				ts.mvcc.Commit(mvcc.TxnID(datadrivenutil.Value(id).Uint64()))
			}
			return ""

		case "update":
			var txn uint64
			var row int
			td.ScanArgs(t, "txn", &txn)
			td.ScanArgs(t, "row", &row)
			ts.enc.Reset()
			for l := datadrivenutil.Lines(strings.TrimSpace(td.Input)); !l.Done(); {
				name, value, ok := l.Next().Assignment()
				require.True(t, ok)
				i, ok := ts.schema.FindColumn(name)
				require.True(t, ok, "unknown column %q", name)
				col := ts.schema.Column(i)
				v, err := col.Type.ParseValue(value.Str())
				require.NoError(t, err)
				require.NoError(t, ts.enc.AddColumnUpdate(col.ID, v))
			}
			if err := ts.dms.Update(mvcc.TxnID(txn), uint32(row), ts.enc.RowChangeList()); err != nil {
				return fmt.Sprintf("error: %v", err)
			}
			return fmt.Sprintf("count=%d", ts.dms.Count())

		case "snapshot":
			var name string
			td.ScanArgs(t, "name", &name)
			switch {
			case td.HasArg("all"):
				snaps[name] = mvcc.NewSnapshotIncludingAll()
			case td.HasArg("none"):
				snaps[name] = mvcc.NewSnapshotIncludingNone()
			case td.HasArg("at"):
				var at uint64
				td.ScanArgs(t, "at", &at)
				snaps[name] = mvcc.NewSnapshotAt(mvcc.TxnID(at))
			default:
				snaps[name] = ts.mvcc.TakeSnapshot()
			}
			return snaps[name].String()

		case "dump":
			return ts.dms.DebugDump()

		case "iter":
			var snapName string
			td.ScanArgs(t, "snap", &snapName)
			snap, ok := snaps[snapName]
			require.True(t, ok, "unknown snapshot %q", snapName)
			projection := ts.schema
			if td.HasArg("cols") {
				var cols []string
				td.ScanArgs(t, "cols", &cols)
				var err error
				projection, err = ts.schema.Project(cols...)
				require.NoError(t, err)
			}
			it, err := ts.dms.NewDeltaIterator(projection, snap)
			if err != nil {
				return fmt.Sprintf("error: %v", err)
			}
			return runIterOps(t, ts, it, projection, td.Input)

		default:
			return fmt.Sprintf("unknown command: %s", td.Cmd)
		}
	})
}

func runIterOps(
	t *testing.T, ts *testStore, it *DMSIterator, projection *schema.Schema, input string,
) string {
	var buf bytes.Buffer
	var slab arena.Slab[Mutation]
	batchLen := 0
	for l := datadrivenutil.Lines(strings.TrimSpace(input)); !l.Done(); {
		line := l.Next()
		fields := line.Fields()
		// Multi-line results start on the line after the op.
		result := func(s string) { fmt.Fprintf(&buf, "%s: %s\n", line, s) }
		block := func() { fmt.Fprintf(&buf, "%s:\n", line) }
		var err error
		switch op := fields.Index(0).Str(); op {
		case "init":
			err = it.Init()
		case "seek":
			err = it.SeekToOrdinal(fields.Index(1).Uint32())
		case "prepare":
			batchLen = fields.Index(1).Int()
			if err = it.PrepareBatch(batchLen); err == nil && it.Exhausted() {
				result("exhausted")
				continue
			}
		case "apply":
			idx, ok := projection.FindColumn(fields.Index(1).Str())
			require.True(t, ok)
			cb := schema.NewColumnBlock(projection.Column(idx).Type, max(batchLen, 1))
			if err = it.ApplyUpdates(idx, cb); err == nil {
				var cells []string
				for i := 0; i < cb.Len(); i++ {
					if c := cb.Cell(i); c != nil && !bytes.Equal(c, make([]byte, len(c))) {
						cells = append(cells, fmt.Sprintf("%d=%s", i, cb.Format(i)))
					}
				}
				if len(cells) == 0 {
					cells = append(cells, "-")
				}
				result(strings.Join(cells, " "))
				continue
			}
		case "collect":
			slab.Reset()
			dst := make([]*Mutation, max(batchLen, 1))
			if err = it.CollectMutations(dst, &slab); err == nil {
				block()
				for i, m := range dst {
					if m != nil {
						fmt.Fprintf(&buf, "  %d: %s\n", i, StringifyMutationList(ts.schema, m))
					}
				}
				continue
			}
		case "prepared":
			block()
			for _, s := range strings.Split(strings.TrimSuffix(it.PreparedDeltas(), "\n"), "\n") {
				if s != "" {
					fmt.Fprintf(&buf, "  %s\n", s)
				}
			}
			continue
		case "close":
			err = it.Close()
		default:
			t.Fatalf("unknown iterator op %q", op)
		}
		if err != nil {
			result(fmt.Sprintf("error: %v", err))
		} else {
			result("ok")
		}
	}
	return buf.String()
}
