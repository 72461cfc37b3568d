// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package deltamem provides an in-memory, multi-version store of row updates
// for a column-oriented row set.
//
// Each delta records the columns one transaction changed in one row. Deltas
// are keyed by (row ordinal, transaction id) and kept in a lock-free
// skiplist, so writers append concurrently while readers scan. A reader
// reconstructs the row set as of a snapshot by applying the deltas of
// committed transactions, in transaction order, on top of base column data:
//
//	store := deltamem.New(s, nil)
//	_ = store.Update(txn, row, rcl)
//
//	it, _ := store.NewDeltaIterator(projection, mgr.TakeSnapshot())
//	_ = it.Init()
//	_ = it.SeekToOrdinal(0)
//	for {
//		_ = it.PrepareBatch(len(rows))
//		if it.Exhausted() {
//			break
//		}
//		_ = it.ApplyUpdates(0, block)
//	}
//	_ = it.Close()
//
// The store never removes deltas. Memory is reclaimed when the store is
// dropped, typically after its contents have been flushed elsewhere.
package deltamem
