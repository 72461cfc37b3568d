// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package deltamem

import (
	"strings"

	"github.com/cockroachdb/deltamem/mvcc"
	"github.com/cockroachdb/deltamem/rowchange"
	"github.com/cockroachdb/deltamem/schema"
)

// Mutation is one transaction's changes to a row. The mutations of a row
// form a singly linked list in ascending transaction order.
type Mutation struct {
	TxnID   mvcc.TxnID
	Changes rowchange.RowChangeList
	next    *Mutation
}

// Next returns the following mutation of the same row, or nil.
func (m *Mutation) Next() *Mutation {
	return m.next
}

// Format renders the mutation as `@txn(SET col=value, ...)`.
func (m *Mutation) Format(s *schema.Schema) string {
	var b strings.Builder
	m.format(&b, s)
	return b.String()
}

func (m *Mutation) format(b *strings.Builder, s *schema.Schema) {
	b.WriteByte('@')
	b.WriteString(m.TxnID.String())
	b.WriteByte('(')
	b.WriteString(m.Changes.Format(s))
	b.WriteByte(')')
}

// StringifyMutationList renders the list starting at head, e.g.
// `[@0(SET col3=50), @4(SET col3=60)]`. A nil head renders as `[]`.
func StringifyMutationList(s *schema.Schema, head *Mutation) string {
	var b strings.Builder
	b.WriteByte('[')
	for m := head; m != nil; m = m.next {
		if m != head {
			b.WriteString(", ")
		}
		m.format(&b, s)
	}
	b.WriteByte(']')
	return b.String()
}
