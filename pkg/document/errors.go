// Copyright 2026 The Acorn Authors.
//
// Use of this software is governed by the Apache License, Version 2.0
// included in the /LICENSE file.

package document

import "github.com/cockroachdb/errors"

// ErrCorrupt marks fatal data inconsistencies: malformed revision strings,
// malformed document fields, or documents that must exist but don't. Errors
// carrying this mark are never retried.
var ErrCorrupt = errors.New("corrupt document data")
