// Copyright 2026 The Acorn Authors.
//
// Use of this software is governed by the Apache License, Version 2.0
// included in the /LICENSE file.

package nodestore

import (
	"fmt"

	"github.com/acornlabs/acorn/pkg/document"
	"github.com/cockroachdb/errors"
)

// ErrConflict marks commit and merge failures caused by a concurrent
// committed change. The caller is expected to rebase and retry; nothing was
// made visible.
var ErrConflict = errors.New("commit conflict")

// ErrLease marks commit failures after the cluster-id lease expired. The
// store can no longer prove its cluster id is exclusively its own, so it
// refuses to write.
var ErrLease = errors.New("cluster-id lease expired")

// ConflictError carries the path and the conflicting revision of a failed
// commit. It matches ErrConflict under errors.Is.
type ConflictError struct {
	Path string
	Rev  document.Revision
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflicting change at %s by %s", e.Path, e.Rev)
}

func newConflictError(path string, rev document.Revision) error {
	return errors.Mark(&ConflictError{Path: path, Rev: rev}, ErrConflict)
}
