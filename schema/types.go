// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package schema

import (
	"encoding/binary"
	"fmt"
	"strconv"

	"github.com/cockroachdb/errors"
)

// DataType is the physical type of a column. Fixed-width types are stored
// little-endian.
type DataType uint8

// The supported column types.
const (
	Uint8 DataType = iota + 1
	Int8
	Uint16
	Int16
	Uint32
	Int32
	Uint64
	Int64
	String
	numDataTypes
)

var dataTypeInfo = [numDataTypes]struct {
	name string
	size int
}{
	Uint8:  {"UINT8", 1},
	Int8:   {"INT8", 1},
	Uint16: {"UINT16", 2},
	Int16:  {"INT16", 2},
	Uint32: {"UINT32", 4},
	Int32:  {"INT32", 4},
	Uint64: {"UINT64", 8},
	Int64:  {"INT64", 8},
	String: {"STRING", 0},
}

// Valid returns true if t is one of the supported types.
func (t DataType) Valid() bool {
	return t > 0 && t < numDataTypes
}

// Size returns the encoded width of a value of a fixed-width type, and zero
// for variable-width types.
func (t DataType) Size() int {
	if !t.Valid() {
		return 0
	}
	return dataTypeInfo[t].size
}

// IsVariableWidth returns true if values of the type have no fixed width.
func (t DataType) IsVariableWidth() bool {
	return t == String
}

func (t DataType) String() string {
	if !t.Valid() {
		return fmt.Sprintf("UNKNOWN(%d)", uint8(t))
	}
	return dataTypeInfo[t].name
}

// FormatValue renders an encoded value of type t for debugging output.
// Strings are quoted.
func (t DataType) FormatValue(v []byte) string {
	if w := t.Size(); w != 0 && len(v) != w {
		return fmt.Sprintf("<bad %s value %x>", t, v)
	}
	switch t {
	case Uint8:
		return strconv.FormatUint(uint64(v[0]), 10)
	case Int8:
		return strconv.FormatInt(int64(int8(v[0])), 10)
	case Uint16:
		return strconv.FormatUint(uint64(binary.LittleEndian.Uint16(v)), 10)
	case Int16:
		return strconv.FormatInt(int64(int16(binary.LittleEndian.Uint16(v))), 10)
	case Uint32:
		return strconv.FormatUint(uint64(binary.LittleEndian.Uint32(v)), 10)
	case Int32:
		return strconv.FormatInt(int64(int32(binary.LittleEndian.Uint32(v))), 10)
	case Uint64:
		return strconv.FormatUint(binary.LittleEndian.Uint64(v), 10)
	case Int64:
		return strconv.FormatInt(int64(binary.LittleEndian.Uint64(v)), 10)
	case String:
		return strconv.Quote(string(v))
	default:
		return fmt.Sprintf("<%s %x>", t, v)
	}
}

// ParseValue parses the textual form of a value of type t (as accepted by
// strconv, with strings taken verbatim) and returns its encoding.
func (t DataType) ParseValue(s string) ([]byte, error) {
	switch t {
	case Uint8, Uint16, Uint32, Uint64:
		v, err := strconv.ParseUint(s, 0, t.Size()*8)
		if err != nil {
			return nil, err
		}
		return appendFixed(nil, t.Size(), v), nil
	case Int8, Int16, Int32, Int64:
		v, err := strconv.ParseInt(s, 0, t.Size()*8)
		if err != nil {
			return nil, err
		}
		return appendFixed(nil, t.Size(), uint64(v)), nil
	case String:
		return []byte(s), nil
	default:
		return nil, errors.Newf("cannot parse value of type %s", t)
	}
}

func appendFixed(dst []byte, width int, v uint64) []byte {
	switch width {
	case 1:
		return append(dst, byte(v))
	case 2:
		return binary.LittleEndian.AppendUint16(dst, uint16(v))
	case 4:
		return binary.LittleEndian.AppendUint32(dst, uint32(v))
	default:
		return binary.LittleEndian.AppendUint64(dst, v)
	}
}
