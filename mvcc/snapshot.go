// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package mvcc

import (
	"math"
	"slices"

	"github.com/cockroachdb/redact"
)

// Snapshot is an immutable record of which transactions are visible to a
// reader. A transaction is visible iff it had committed when the snapshot was
// taken.
type Snapshot struct {
	// allCommittedBefore is a watermark: every id below it is committed.
	allCommittedBefore TxnID
	// committed holds the committed ids >= allCommittedBefore, sorted.
	committed []TxnID
}

// NewSnapshotIncludingAll returns a snapshot in which every transaction is
// visible.
func NewSnapshotIncludingAll() *Snapshot {
	return &Snapshot{allCommittedBefore: math.MaxUint64}
}

// NewSnapshotIncludingNone returns a snapshot in which no transaction is
// visible.
func NewSnapshotIncludingNone() *Snapshot {
	return &Snapshot{}
}

// NewSnapshotAt returns a snapshot in which exactly the transactions with ids
// below id are visible.
func NewSnapshotAt(id TxnID) *Snapshot {
	return &Snapshot{allCommittedBefore: id}
}

// IsCommitted returns true if the transaction is visible in the snapshot.
func (s *Snapshot) IsCommitted(id TxnID) bool {
	if id < s.allCommittedBefore {
		return true
	}
	_, found := slices.BinarySearch(s.committed, id)
	return found
}

// AllCommittedBefore returns the snapshot's watermark: every id below it is
// visible.
func (s *Snapshot) AllCommittedBefore() TxnID {
	return s.allCommittedBefore
}

// IsVisible returns true if the transaction id is visible in the snapshot.
func IsVisible(s *Snapshot, id TxnID) bool {
	return s.IsCommitted(id)
}

// SafeFormat implements redact.SafeFormatter.
func (s *Snapshot) SafeFormat(w redact.SafePrinter, _ rune) {
	w.Printf("snapshot[committed={T|T < %s", s.allCommittedBefore)
	if len(s.committed) > 0 {
		w.SafeString(" or (T in {")
		for i, id := range s.committed {
			if i > 0 {
				w.SafeRune(',')
			}
			w.Print(id)
		}
		w.SafeString("})")
	}
	w.SafeString("}]")
}

// String implements fmt.Stringer.
func (s *Snapshot) String() string {
	return redact.StringWithoutMarkers(s)
}
