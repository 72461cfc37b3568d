// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package base defines the error taxonomy and logging interface shared by the
// deltamem packages.
//
// # Errors
//
// Two categories of error exist. Corruption errors (see [ErrCorruption])
// indicate that encoded bytes held in memory are illegible; they imply that an
// internal invariant was already violated and are never recoverable. Invalid
// argument errors (see [ErrInvalidArgument]) indicate caller misuse such as an
// out-of-order seek and are surfaced immediately. There is no transient error
// category: every structure is in-memory and single process.
package base
