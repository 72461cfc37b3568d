// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package rowchange provides the encoding of a sparse change to a single row:
// a list of (column, new value) pairs whose field widths are determined by a
// schema.
//
// The encoding is:
//
//	+------+----------------+-------+----------------+-------+-----
//	| kind | uvarint(colID) | value | uvarint(colID) | value | ...
//	+------+----------------+-------+----------------+-------+-----
//
// where kind is a single byte (KindUpdate) and each value is either the
// little-endian fixed-width encoding of a fixed-width type or
// uvarint(len)+bytes for a variable-width type. Variable-width payloads are
// inline, so copying a RowChangeList copies everything it refers to.
//
// The encoding is private to a running process. It is not a persisted or
// network format.
package rowchange

import (
	"encoding/binary"

	"github.com/cockroachdb/deltamem/internal/base"
	"github.com/cockroachdb/deltamem/schema"
)

// Kind is the type of a row change list.
type Kind uint8

// KindUpdate is a list of column updates.
const KindUpdate Kind = 1

func (k Kind) String() string {
	if k == KindUpdate {
		return "UPDATE"
	}
	return "UNKNOWN"
}

// headerLen is the length of the kind header.
const headerLen = 1

// RowChangeList is an encoded change to one row.
type RowChangeList []byte

// IsEmpty returns true if the list holds no column updates.
func (r RowChangeList) IsEmpty() bool {
	return len(r) <= headerLen
}

// Encoder appends column updates to a caller-owned buffer. An Encoder and its
// buffer can be reused across many row changes via Reset, which avoids an
// allocation per update under high write throughput.
type Encoder struct {
	schema *schema.Schema
	buf    *[]byte
}

// NewEncoder returns an encoder writing to *buf, which is truncated.
func NewEncoder(s *schema.Schema, buf *[]byte) *Encoder {
	e := &Encoder{schema: s, buf: buf}
	e.Reset()
	return e
}

// Reset truncates the buffer so a new row change can be encoded.
func (e *Encoder) Reset() {
	*e.buf = (*e.buf)[:0]
}

// IsEmpty returns true if no column update has been added since the last
// Reset.
func (e *Encoder) IsEmpty() bool {
	return len(*e.buf) <= headerLen
}

// RowChangeList returns the encoded change. The returned list aliases the
// encoder's buffer and is invalidated by the next Reset or AddColumnUpdate.
func (e *Encoder) RowChangeList() RowChangeList {
	return RowChangeList(*e.buf)
}

// AddColumnUpdate appends an update setting the column to the encoded value.
// Fixed-width values must have exactly the column type's width.
func (e *Encoder) AddColumnUpdate(id schema.ColumnID, value []byte) error {
	col, ok := e.schema.ColumnByID(id)
	if !ok {
		return base.InvalidArgumentErrorf("rowchange: unknown column id %d", id)
	}
	if w := col.Type.Size(); w != 0 && len(value) != w {
		return base.InvalidArgumentErrorf(
			"rowchange: %d-byte value for column %q of type %s", len(value), col.Name, col.Type)
	}
	buf := *e.buf
	if len(buf) == 0 {
		buf = append(buf, byte(KindUpdate))
	}
	buf = binary.AppendUvarint(buf, uint64(id))
	if col.Type.IsVariableWidth() {
		buf = binary.AppendUvarint(buf, uint64(len(value)))
	}
	*e.buf = append(buf, value...)
	return nil
}

func (e *Encoder) checkType(id schema.ColumnID, t schema.DataType) error {
	col, ok := e.schema.ColumnByID(id)
	if !ok {
		return base.InvalidArgumentErrorf("rowchange: unknown column id %d", id)
	}
	if col.Type != t {
		return base.InvalidArgumentErrorf(
			"rowchange: %s value for column %q of type %s", t, col.Name, col.Type)
	}
	return nil
}

// AddUint32 appends an update to a UINT32 column.
func (e *Encoder) AddUint32(id schema.ColumnID, v uint32) error {
	if err := e.checkType(id, schema.Uint32); err != nil {
		return err
	}
	var tmp [8]byte
	binary.LittleEndian.PutUint32(tmp[:4], v)
	return e.AddColumnUpdate(id, tmp[:4])
}

// AddUint64 appends an update to a UINT64 column.
func (e *Encoder) AddUint64(id schema.ColumnID, v uint64) error {
	if err := e.checkType(id, schema.Uint64); err != nil {
		return err
	}
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	return e.AddColumnUpdate(id, tmp[:])
}

// AddInt64 appends an update to an INT64 column.
func (e *Encoder) AddInt64(id schema.ColumnID, v int64) error {
	if err := e.checkType(id, schema.Int64); err != nil {
		return err
	}
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], uint64(v))
	return e.AddColumnUpdate(id, tmp[:])
}

// AddString appends an update to a STRING column. The bytes are copied into
// the encoder's buffer.
func (e *Encoder) AddString(id schema.ColumnID, v []byte) error {
	if err := e.checkType(id, schema.String); err != nil {
		return err
	}
	return e.AddColumnUpdate(id, v)
}
