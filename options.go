// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package deltamem

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/cockroachdb/deltamem/arena"
	"github.com/cockroachdb/deltamem/internal/base"
	"github.com/cockroachdb/errors"
)

// Logger defines an interface for writing log messages.
type Logger = base.Logger

// DefaultLogger logs to the Go stdlib logs.
type DefaultLogger = base.DefaultLogger

// Options holds the optional parameters for configuring a DeltaMemStore.
// These options apply to the store at construction time and cannot be
// changed afterwards.
type Options struct {
	// ArenaInitialSize is the size of the first block allocated by the store
	// arena. Subsequent blocks double in size up to ArenaMaxBlockSize.
	//
	// The default value is 4KB.
	ArenaInitialSize int

	// ArenaMaxBlockSize caps the size of arena blocks. Encoded deltas larger
	// than this are stored in a dedicated block.
	//
	// The default value is 1MB.
	ArenaMaxBlockSize int

	// ID identifies the row set whose deltas the store holds. It is only used
	// in log messages, metrics and debug output.
	ID int64

	// Logger used to write log messages. Fatal corruption is reported through
	// Logger.Fatalf.
	//
	// The default logger uses the Go standard library log package.
	Logger Logger
}

// EnsureDefaults ensures that the default values for all options are set if a
// valid value was not already specified.
func (o *Options) EnsureDefaults() {
	if o.ArenaInitialSize <= 0 {
		o.ArenaInitialSize = arena.DefaultInitialSize
	}
	if o.ArenaMaxBlockSize <= 0 {
		o.ArenaMaxBlockSize = arena.DefaultMaxBlockSize
	}
	if o.ArenaMaxBlockSize < o.ArenaInitialSize {
		o.ArenaMaxBlockSize = o.ArenaInitialSize
	}
	if o.Logger == nil {
		o.Logger = DefaultLogger{}
	}
}

// Clone creates a shallow-copy of the supplied options. A nil receiver yields
// the zero Options.
func (o *Options) Clone() *Options {
	if o == nil {
		return &Options{}
	}
	n := *o
	return &n
}

// String implements fmt.Stringer. The output can be read back with
// Options.Parse.
func (o *Options) String() string {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "[Options]\n")
	fmt.Fprintf(&buf, "  arena_initial_size=%d\n", o.ArenaInitialSize)
	fmt.Fprintf(&buf, "  arena_max_block_size=%d\n", o.ArenaMaxBlockSize)
	fmt.Fprintf(&buf, "  id=%d\n", o.ID)
	return buf.String()
}

func parseOptions(s string, fn func(section, key, value string) error) error {
	var section string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if len(line) == 0 {
			// Skip blank lines.
			continue
		}
		if line[0] == ';' || line[0] == '#' {
			// Skip comments.
			continue
		}
		n := len(line)
		if line[0] == '[' && line[n-1] == ']' {
			// Parse section.
			section = line[1 : n-1]
			continue
		}

		pos := strings.Index(line, "=")
		if pos < 0 {
			const maxSnippetLen = 50
			if len(line) > maxSnippetLen {
				line = line[:maxSnippetLen-3] + "..."
			}
			return base.CorruptionErrorf("invalid key=value syntax: %q", errors.Safe(line))
		}

		key := strings.TrimSpace(line[:pos])
		value := strings.TrimSpace(line[pos+1:])
		if strings.IndexFunc(key, unicode.IsSpace) >= 0 {
			return base.CorruptionErrorf("invalid key: %q", errors.Safe(key))
		}
		if err := fn(section, key, value); err != nil {
			return err
		}
	}
	return nil
}

// Parse parses the options from the specified string. Note that certain
// options cannot be parsed into populated fields. For example, the Logger
// is not serialized and is left untouched.
func (o *Options) Parse(s string) error {
	return parseOptions(s, func(section, key, value string) error {
		// Removing a case makes previously serialized options unparseable.
		var err error
		switch section + "." + key {
		case "Options.arena_initial_size":
			o.ArenaInitialSize, err = strconv.Atoi(value)
		case "Options.arena_max_block_size":
			o.ArenaMaxBlockSize, err = strconv.Atoi(value)
		case "Options.id":
			o.ID, err = strconv.ParseInt(value, 10, 64)
		default:
			return errors.Errorf("deltamem: unknown option: %s.%s",
				errors.Safe(section), errors.Safe(key))
		}
		if err != nil {
			return errors.Wrapf(err, "deltamem: parsing %s.%s", errors.Safe(section), errors.Safe(key))
		}
		return nil
	})
}
