// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package mvcc issues transaction identifiers, tracks which transactions have
// committed and captures immutable visibility snapshots.
//
// Transaction ids are handed out in strictly increasing order by Begin, but
// transactions may commit in any order. A Snapshot records the set of ids that
// had committed when it was taken: every id below a watermark plus an explicit
// list of committed ids at or above it. Snapshots are only used to filter
// reads; they never gate writes.
package mvcc

import (
	"slices"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/redact"
	"github.com/cockroachdb/swiss"
)

// TxnID identifies a transaction. Ids are assigned in strictly increasing
// order starting at zero.
type TxnID uint64

// SafeFormat implements redact.SafeFormatter.
func (id TxnID) SafeFormat(w redact.SafePrinter, _ rune) {
	w.Printf("%d", redact.SafeUint(id))
}

// String implements fmt.Stringer.
func (id TxnID) String() string {
	return redact.StringWithoutMarkers(id)
}

// Manager tracks in-flight and committed transactions. It is safe for
// concurrent use.
type Manager struct {
	mu struct {
		sync.Mutex
		next     TxnID
		inFlight *swiss.Map[TxnID, struct{}]
		// cur is the snapshot a reader would observe right now. Its committed
		// list is never mutated in place once handed out via TakeSnapshot.
		cur Snapshot
	}
}

// NewManager returns a Manager with no transactions.
func NewManager() *Manager {
	m := &Manager{}
	m.mu.inFlight = swiss.New[TxnID, struct{}](16)
	return m
}

// Begin allocates the next unused transaction id and marks it in flight.
func (m *Manager) Begin() TxnID {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.mu.next
	m.mu.next++
	m.mu.inFlight.Put(id, struct{}{})
	return id
}

// Commit marks id as committed. Committing an id that has already committed
// is a no-op. Committing an id that was never begun is a programming error
// and panics.
func (m *Manager) Commit(id TxnID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.mu.inFlight.Get(id); !ok {
		if id < m.mu.next {
			return
		}
		panic(errors.AssertionFailedf("mvcc: commit of txn %s which was never begun", id))
	}
	m.mu.inFlight.Delete(id)

	committed := slices.Clone(m.mu.cur.committed)
	i, _ := slices.BinarySearch(committed, id)
	committed = slices.Insert(committed, i, id)

	// Every id below the earliest in-flight transaction (or below the next id
	// if nothing is in flight) has committed.
	watermark := m.mu.next
	m.mu.inFlight.All(func(k TxnID, _ struct{}) bool {
		watermark = min(watermark, k)
		return true
	})
	j, _ := slices.BinarySearch(committed, watermark)
	m.mu.cur = Snapshot{
		allCommittedBefore: watermark,
		committed:          committed[j:],
	}
}

// TakeSnapshot returns an immutable snapshot of the transactions that are
// committed at this instant.
func (m *Manager) TakeSnapshot() *Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.mu.cur
	return &s
}

// NumInFlight returns the number of transactions begun but not committed.
func (m *Manager) NumInFlight() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mu.inFlight.Len()
}

// NextTxnID returns the id the next call to Begin will allocate.
func (m *Manager) NextTxnID() TxnID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mu.next
}

// ScopedTxn begins a transaction on creation and commits it exactly once when
// closed. Use it with defer so that the commit happens on every exit path:
//
//	tx := m.NewScopedTxn()
//	defer tx.Close()
type ScopedTxn struct {
	m      *Manager
	id     TxnID
	closed bool
}

// NewScopedTxn begins a transaction whose lifetime ends at Close.
func (m *Manager) NewScopedTxn() *ScopedTxn {
	return &ScopedTxn{m: m, id: m.Begin()}
}

// ID returns the transaction's id.
func (t *ScopedTxn) ID() TxnID {
	return t.id
}

// Close commits the transaction. Subsequent calls are no-ops.
func (t *ScopedTxn) Close() {
	if t.closed {
		return
	}
	t.closed = true
	t.m.Commit(t.id)
}

// RunTxn runs fn inside a scoped transaction. The transaction commits when fn
// returns, whether it returns an error or panics.
func (m *Manager) RunTxn(fn func(id TxnID) error) error {
	tx := m.NewScopedTxn()
	defer tx.Close()
	return fn(tx.ID())
}
