// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package deltamem

import (
	"github.com/cockroachdb/crlib/crhumanize"
	"github.com/cockroachdb/redact"
)

// Metrics holds metrics for a DeltaMemStore.
type Metrics struct {
	// Count is the number of deltas in the store.
	Count int64
	// ArenaSize is the number of bytes handed out by the store arena.
	ArenaSize int64
	// ArenaCapacity is the number of bytes reserved by the store arena.
	ArenaCapacity int64
	// IteratorsOpened is the number of iterators created over the store.
	IteratorsOpened int64
	// BatchesPrepared is the number of non-exhausted PrepareBatch calls.
	BatchesPrepared int64
	// DeltasScanned is the number of deltas buffered by prepared batches,
	// visible or not.
	DeltasScanned int64
}

// String pretty-prints the metrics.
func (m Metrics) String() string {
	return redact.StringWithoutMarkers(m)
}

// SafeFormat implements redact.SafeFormatter.
func (m Metrics) SafeFormat(w redact.SafePrinter, _ rune) {
	w.Printf("deltas: %s  arena: %s of %s\n",
		crhumanize.Count(m.Count, crhumanize.Compact),
		crhumanize.Bytes(m.ArenaSize, crhumanize.Compact, crhumanize.OmitI),
		crhumanize.Bytes(m.ArenaCapacity, crhumanize.Compact, crhumanize.OmitI))
	w.Printf("iterators: %s  batches: %s  scanned: %s\n",
		crhumanize.Count(m.IteratorsOpened, crhumanize.Compact),
		crhumanize.Count(m.BatchesPrepared, crhumanize.Compact),
		crhumanize.Count(m.DeltasScanned, crhumanize.Compact))
}
