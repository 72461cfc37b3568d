// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package schema

import (
	"encoding/binary"
	"fmt"
)

// ColumnBlock is contiguous storage for the values of one column over a run
// of rows. Fixed-width values are stored inline; variable-width cells hold
// references to bytes owned elsewhere (typically a delta store's arena or the
// base data).
type ColumnBlock struct {
	typ   DataType
	nrows int
	fixed []byte
	vars  [][]byte
}

// NewColumnBlock returns a zeroed block of nrows values of type typ.
func NewColumnBlock(typ DataType, nrows int) *ColumnBlock {
	b := &ColumnBlock{typ: typ, nrows: nrows}
	if typ.IsVariableWidth() {
		b.vars = make([][]byte, nrows)
	} else {
		b.fixed = make([]byte, nrows*typ.Size())
	}
	return b
}

// Type returns the type of the block's values.
func (b *ColumnBlock) Type() DataType {
	return b.typ
}

// Len returns the number of rows in the block.
func (b *ColumnBlock) Len() int {
	return b.nrows
}

// Cell returns the encoded value at row i. For fixed-width types the returned
// slice aliases the block.
func (b *ColumnBlock) Cell(i int) []byte {
	if b.typ.IsVariableWidth() {
		return b.vars[i]
	}
	w := b.typ.Size()
	return b.fixed[i*w : (i+1)*w : (i+1)*w]
}

// SetCell sets the encoded value at row i. Fixed-width values are copied and
// must have exactly the type's width. Variable-width values are referenced,
// not copied.
func (b *ColumnBlock) SetCell(i int, v []byte) {
	if b.typ.IsVariableWidth() {
		b.vars[i] = v
		return
	}
	w := b.typ.Size()
	if len(v) != w {
		panic(fmt.Sprintf("schema: %d-byte value for %s cell", len(v), b.typ))
	}
	copy(b.fixed[i*w:], v)
}

// Uint32 returns the value at row i of a UINT32 block.
func (b *ColumnBlock) Uint32(i int) uint32 {
	return binary.LittleEndian.Uint32(b.Cell(i))
}

// SetUint32 sets the value at row i of a UINT32 block.
func (b *ColumnBlock) SetUint32(i int, v uint32) {
	binary.LittleEndian.PutUint32(b.Cell(i), v)
}

// Int64 returns the value at row i of an INT64 block.
func (b *ColumnBlock) Int64(i int) int64 {
	return int64(binary.LittleEndian.Uint64(b.Cell(i)))
}

// SetInt64 sets the value at row i of an INT64 block.
func (b *ColumnBlock) SetInt64(i int, v int64) {
	binary.LittleEndian.PutUint64(b.Cell(i), uint64(v))
}

// Uint64 returns the value at row i of a UINT64 block.
func (b *ColumnBlock) Uint64(i int) uint64 {
	return binary.LittleEndian.Uint64(b.Cell(i))
}

// SetUint64 sets the value at row i of a UINT64 block.
func (b *ColumnBlock) SetUint64(i int, v uint64) {
	binary.LittleEndian.PutUint64(b.Cell(i), v)
}

// StringAt returns the value at row i of a STRING block.
func (b *ColumnBlock) StringAt(i int) string {
	return string(b.vars[i])
}

// SetString sets the value at row i of a STRING block.
func (b *ColumnBlock) SetString(i int, v string) {
	b.vars[i] = []byte(v)
}

// Format renders the value at row i.
func (b *ColumnBlock) Format(i int) string {
	return b.typ.FormatValue(b.Cell(i))
}
