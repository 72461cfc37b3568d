// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package datadrivenutil defines facilities to improve ergonomics around
// parsing datadriven test input.
package datadrivenutil

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// Lines wraps a string, providing facilities for parsing individual lines.
type Lines string

// Next returns the string up to the next newline. The receiver is modified to
// point to the string's contents immediately after the newline.
func (l *Lines) Next() (line Line) {
	i := strings.IndexByte(string(*l), '\n')
	if i == -1 {
		line = Line(*l)
		*l = ""
	} else {
		line = Line((*l)[:i])
		*l = (*l)[i+1:]
	}
	return line
}

// Done returns true once every line has been consumed.
func (l *Lines) Done() bool {
	return len(*l) == 0
}

// A Line is a string with no newlines.
type Line string

// Fields breaks the line into fields delimited by whitespace and any runes
// passed into the function.
func (l Line) Fields(delims ...rune) Fields {
	return Fields(strings.FieldsFunc(string(l), func(r rune) bool {
		if unicode.IsSpace(r) {
			return true
		}
		for _, delim := range delims {
			if delim == r {
				return true
			}
		}
		return false
	}))
}

// Assignment splits a `name=value` line at the first '='. Surrounding
// whitespace is trimmed from the name only, so values may contain spaces.
func (l Line) Assignment() (name string, value Value, ok bool) {
	name, v, ok := strings.Cut(string(l), "=")
	return strings.TrimSpace(name), Value(v), ok
}

// Fields wraps a []string with facilities for parsing out values.
type Fields []string

// String implements fmt.Stringer.
func (fs Fields) String() string {
	return strings.Join(fs, " ")
}

// Index returns the field at index i, or the empty string if there are i or
// fewer fields.
func (fs Fields) Index(i int) Value {
	if len(fs) <= i {
		return ""
	}
	return Value(fs[i])
}

// KeyValue looks for a field containing a key=value pair with the provided key.
// If not found, KeyValue returns false for the second return value.
func (fs Fields) KeyValue(key string) (Value, bool) {
	for i := range fs {
		if len(fs[i]) > len(key) && strings.HasPrefix(fs[i], key) && fs[i][len(key)] == '=' {
			return Value(fs[i][len(key)+1:]), true
		}
	}
	return "", false
}

// MustKeyValue is like KeyValue but panics if the field is not found.
func (fs Fields) MustKeyValue(key string) Value {
	f, ok := fs.KeyValue(key)
	if !ok {
		panic(fmt.Sprintf("unable to find required key-value pair %q in %q", key, fs.String()))
	}
	return f
}

// A Value represents a single string of unknown structure, either a whole
// field or the value half of a key=value pair.
type Value string

// Str returns the value as a string.
func (v Value) Str() string { return string(v) }

// Int parses the value as an int. It panics if the value fails to decode as an
// integer.
func (v Value) Int() int {
	vi, err := strconv.Atoi(string(v))
	if err != nil {
		panic(err)
	}
	return vi
}

// Uint32 parses the value as a uint32. It panics if the value fails to decode
// as a uint32.
func (v Value) Uint32() uint32 {
	vi, err := strconv.ParseUint(string(v), 10, 32)
	if err != nil {
		panic(err)
	}
	return uint32(vi)
}

// Uint64 parses the value as an uint64. It panics if the value fails to decode
// as an uint64.
func (v Value) Uint64() uint64 {
	vi, err := strconv.ParseUint(string(v), 10, 64)
	if err != nil {
		panic(err)
	}
	return vi
}

// List splits a comma-separated value. An empty value yields no elements.
func (v Value) List() []string {
	if v == "" {
		return nil
	}
	return strings.Split(string(v), ",")
}
