// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package schema describes the shape of the rows a delta store records
// changes for: ordered, named, typed columns with stable identifiers, and the
// column blocks the read path materializes values into.
package schema

import (
	"strconv"
	"strings"

	"github.com/cockroachdb/deltamem/internal/base"
	"github.com/cockroachdb/errors"
)

// ColumnID is the stable identifier of a column. Within a schema created by
// New it is the column's position; projections keep the ids of the schema
// they were projected from.
type ColumnID uint32

// Column describes a single column.
type Column struct {
	ID   ColumnID
	Name string
	Type DataType
}

// Schema is an immutable ordered set of columns. The first NumKeyColumns
// columns form the row key.
type Schema struct {
	cols          []Column
	numKeyColumns int
	byName        map[string]int
	byID          map[ColumnID]int
}

// New returns a schema with the given columns. Column ids are assigned from
// the columns' positions; any ID set by the caller is ignored.
func New(cols []Column, numKeyColumns int) (*Schema, error) {
	if numKeyColumns < 0 || numKeyColumns > len(cols) {
		return nil, base.InvalidArgumentErrorf(
			"schema: %d key columns out of range for %d columns", numKeyColumns, len(cols))
	}
	assigned := make([]Column, len(cols))
	for i, c := range cols {
		c.ID = ColumnID(i)
		assigned[i] = c
	}
	return build(assigned, numKeyColumns)
}

// MustNew is like New but panics on error. It is intended for tests and for
// schemas defined statically.
func MustNew(cols []Column, numKeyColumns int) *Schema {
	s, err := New(cols, numKeyColumns)
	if err != nil {
		panic(err)
	}
	return s
}

func build(cols []Column, numKeyColumns int) (*Schema, error) {
	s := &Schema{
		cols:          cols,
		numKeyColumns: numKeyColumns,
		byName:        make(map[string]int, len(cols)),
		byID:          make(map[ColumnID]int, len(cols)),
	}
	for i, c := range cols {
		if c.Name == "" {
			return nil, base.InvalidArgumentErrorf("schema: column %d has no name", i)
		}
		if !c.Type.Valid() {
			return nil, base.InvalidArgumentErrorf("schema: column %q has invalid type %s", c.Name, c.Type)
		}
		if _, ok := s.byName[c.Name]; ok {
			return nil, base.InvalidArgumentErrorf("schema: duplicate column name %q", c.Name)
		}
		if _, ok := s.byID[c.ID]; ok {
			return nil, base.InvalidArgumentErrorf("schema: duplicate column id %d", c.ID)
		}
		s.byName[c.Name] = i
		s.byID[c.ID] = i
	}
	return s, nil
}

// NumColumns returns the number of columns.
func (s *Schema) NumColumns() int {
	return len(s.cols)
}

// NumKeyColumns returns the number of leading key columns.
func (s *Schema) NumKeyColumns() int {
	return s.numKeyColumns
}

// Column returns the i-th column.
func (s *Schema) Column(i int) Column {
	return s.cols[i]
}

// FindColumn returns the position of the named column.
func (s *Schema) FindColumn(name string) (int, bool) {
	i, ok := s.byName[name]
	return i, ok
}

// ColumnByID returns the column with the given id.
func (s *Schema) ColumnByID(id ColumnID) (Column, bool) {
	i, ok := s.byID[id]
	if !ok {
		return Column{}, false
	}
	return s.cols[i], true
}

// Project returns a schema holding the named columns, in the given order,
// with the ids they have in s. The projection has no key columns.
func (s *Schema) Project(names ...string) (*Schema, error) {
	cols := make([]Column, 0, len(names))
	for _, name := range names {
		i, ok := s.byName[name]
		if !ok {
			return nil, base.InvalidArgumentErrorf("schema: unknown column %q", name)
		}
		cols = append(cols, s.cols[i])
	}
	p, err := build(cols, 0)
	return p, errors.Wrap(err, "projecting")
}

// String returns a description such as
// "(col1 STRING, col2 STRING, col3 UINT32) key=1".
func (s *Schema) String() string {
	var b strings.Builder
	b.WriteByte('(')
	for i, c := range s.cols {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(c.Name)
		b.WriteByte(' ')
		b.WriteString(c.Type.String())
	}
	b.WriteString(") key=")
	b.WriteString(strconv.Itoa(s.numKeyColumns))
	return b.String()
}
