// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package rowchange

import (
	"encoding/binary"
	"strings"

	"github.com/cockroachdb/deltamem/internal/base"
	"github.com/cockroachdb/deltamem/schema"
	"github.com/cockroachdb/errors"
)

// ErrInvalidRowChangeList indicates that a row change list is corrupted.
var ErrInvalidRowChangeList = base.MarkCorruptionError(errors.New("rowchange: invalid row change list"))

// Decoder lazily iterates over the column updates in a row change list. The
// schema must be the one the list was encoded with, or one whose columns
// referenced by the list have the same types.
//
// A Decoder is a small value; copying it (or calling Reset) restarts the
// iteration.
type Decoder struct {
	schema *schema.Schema
	rcl    RowChangeList
	rest   []byte
}

// NewDecoder returns a decoder positioned before the first column update. It
// returns an error marked as corruption if the header is illegible.
func NewDecoder(s *schema.Schema, rcl RowChangeList) (Decoder, error) {
	d := Decoder{schema: s, rcl: rcl}
	if len(rcl) < headerLen {
		return d, errors.Wrapf(ErrInvalidRowChangeList, "missing header")
	}
	if k := Kind(rcl[0]); k != KindUpdate {
		return d, errors.Wrapf(ErrInvalidRowChangeList, "invalid kind 0x%x", rcl[0])
	}
	d.rest = rcl[headerLen:]
	return d, nil
}

// Reset restarts the iteration at the first column update.
func (d *Decoder) Reset() {
	d.rest = d.rcl[min(headerLen, len(d.rcl)):]
}

// Next returns the next column update. When the list is exhausted Next
// returns ok=false and a nil error. If the next update is illegible Next
// returns ok=false and an error marked as corruption. The returned value
// aliases the list.
func (d *Decoder) Next() (id schema.ColumnID, value []byte, ok bool, err error) {
	if len(d.rest) == 0 {
		return 0, nil, false, nil
	}
	v, n := binary.Uvarint(d.rest)
	if n <= 0 {
		return 0, nil, false, errors.Wrapf(ErrInvalidRowChangeList, "decoding column id")
	}
	id = schema.ColumnID(v)
	col, found := d.schema.ColumnByID(id)
	if !found || uint64(id) != v {
		return 0, nil, false, errors.Wrapf(ErrInvalidRowChangeList, "unknown column id %d", v)
	}
	rest := d.rest[n:]
	width := col.Type.Size()
	if col.Type.IsVariableWidth() {
		l, m := binary.Uvarint(rest)
		if m <= 0 {
			return 0, nil, false, errors.Wrapf(ErrInvalidRowChangeList, "decoding length of column %q", col.Name)
		}
		if l > uint64(len(rest)-m) {
			return 0, nil, false, errors.Wrapf(ErrInvalidRowChangeList,
				"truncated value of column %q: %d > %d", col.Name, l, len(rest)-m)
		}
		rest = rest[m:]
		width = int(l)
	} else if width > len(rest) {
		return 0, nil, false, errors.Wrapf(ErrInvalidRowChangeList,
			"truncated value of column %q: %d > %d", col.Name, width, len(rest))
	}
	d.rest = rest[width:]
	return id, rest[:width:width], true, nil
}

// Validate decodes every column update in the list and returns the first
// error encountered.
func Validate(s *schema.Schema, rcl RowChangeList) error {
	d, err := NewDecoder(s, rcl)
	if err != nil {
		return err
	}
	for {
		_, _, ok, err := d.Next()
		if !ok {
			return err
		}
	}
}

// Lookup returns the value the list assigns to the column, or ok=false if it
// does not update the column. If the list updates the column more than once
// the last update wins.
func Lookup(
	s *schema.Schema, rcl RowChangeList, id schema.ColumnID,
) (value []byte, ok bool, err error) {
	d, err := NewDecoder(s, rcl)
	if err != nil {
		return nil, false, err
	}
	for {
		colID, v, more, err := d.Next()
		if err != nil {
			return nil, false, err
		}
		if !more {
			return value, ok, nil
		}
		if colID == id {
			value, ok = v, true
		}
	}
}

// Format returns a human-readable rendering such as
// `SET col3=50, col1="hello"`. Corruption is rendered inline rather than
// returned.
func (r RowChangeList) Format(s *schema.Schema) string {
	d, err := NewDecoder(s, r)
	if err != nil {
		return "<" + err.Error() + ">"
	}
	var b strings.Builder
	b.WriteString("SET ")
	for i := 0; ; i++ {
		id, v, ok, err := d.Next()
		if err != nil {
			b.WriteString("<" + err.Error() + ">")
			break
		}
		if !ok {
			break
		}
		if i > 0 {
			b.WriteString(", ")
		}
		col, _ := s.ColumnByID(id)
		b.WriteString(col.Name)
		b.WriteByte('=')
		b.WriteString(col.Type.FormatValue(v))
	}
	return b.String()
}
