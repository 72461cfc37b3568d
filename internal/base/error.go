// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package base

import "github.com/cockroachdb/errors"

// ErrCorruption is a marker to indicate that data in memory is corrupted.
var ErrCorruption = errors.New("deltamem: corruption")

// ErrInvalidArgument is a marker to indicate that a caller violated the
// contract of an operation.
var ErrInvalidArgument = errors.New("deltamem: invalid argument")

// MarkCorruptionError marks given error as a corruption error.
func MarkCorruptionError(err error) error {
	if errors.Is(err, ErrCorruption) {
		return err
	}
	return errors.Mark(err, ErrCorruption)
}

// IsCorruptionError returns true if the given error indicates corruption.
func IsCorruptionError(err error) bool {
	return errors.Is(err, ErrCorruption)
}

// CorruptionErrorf formats according to a format specifier and returns
// the string as an error value that is marked as a corruption error.
func CorruptionErrorf(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrCorruption)
}

// InvalidArgumentErrorf formats according to a format specifier and returns
// the string as an error value that is marked as an invalid argument error.
func InvalidArgumentErrorf(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrInvalidArgument)
}

// IsInvalidArgumentError returns true if the given error indicates caller
// misuse.
func IsInvalidArgumentError(err error) bool {
	return errors.Is(err, ErrInvalidArgument)
}

// MarkInvalidArgumentError marks given error as an invalid argument error.
func MarkInvalidArgumentError(err error) error {
	if errors.Is(err, ErrInvalidArgument) {
		return err
	}
	return errors.Mark(err, ErrInvalidArgument)
}
