// Copyright 2026 The Acorn Authors.
//
// Use of this software is governed by the Apache License, Version 2.0
// included in the /LICENSE file.

// Package docstore defines the ordered document-store protocol the storage
// core runs on, and its adapters. The single concurrency-control primitive
// of the whole system is the per-document atomic conditional update
// (CreateOrUpdate / FindAndUpdate); everything above is built on it.
package docstore

import (
	"context"
	"time"

	"github.com/acornlabs/acorn/pkg/document"
	"github.com/cockroachdb/errors"
)

// Collection names the document collections of the repository.
type Collection string

const (
	// Nodes holds one document per repository path.
	Nodes Collection = "nodes"
	// ClusterNodes holds the cluster-id lease documents.
	ClusterNodes Collection = "clusterNodes"
	// Settings holds singleton documents (checkpoints, format info).
	Settings Collection = "settings"
)

// ErrTransient marks store failures (timeouts, broken connections) that are
// safe to retry. Adapters collapse all backend-specific failure modes into
// this one category; callers only ever see it after the retry budget is
// exhausted.
var ErrTransient = errors.New("transient document store error")

// Store is the protocol against the backing document database.
//
// An absent document is not an error: Find and FindAndUpdate return a nil
// document. All per-document write operations are atomic: conditions and
// changes of one UpdateOp are applied as a unit or not at all, and every
// applied update increments the document's _modCount.
type Store interface {
	// Find returns the document with the given id, or nil if absent. A
	// maxCacheAge > 0 allows the result to be served from a cache no staler
	// than the given age; 0 forces a fresh read.
	Find(ctx context.Context, c Collection, id string, maxCacheAge time.Duration) (*document.Document, error)

	// Query returns documents with fromKey < id < toKey in id order, up to
	// limit. If indexedProperty is non-empty (only document.FieldModified is
	// supported), documents with indexedProperty < startValue are filtered
	// out.
	Query(ctx context.Context, c Collection, fromKey, toKey string,
		indexedProperty string, startValue int64, limit int) ([]*document.Document, error)

	// Create inserts all given documents, or none: it returns false without
	// any change if any of the ids already exists.
	Create(ctx context.Context, c Collection, ops []*UpdateOp) (bool, error)

	// CreateOrUpdate applies op, creating the document if needed, and
	// returns the document as it was before the update (nil if it was
	// created). Conditions are not supported on upserts.
	CreateOrUpdate(ctx context.Context, c Collection, op *UpdateOp) (*document.Document, error)

	// FindAndUpdate atomically applies op if the document exists and all of
	// op's conditions hold, returning the document as it was before the
	// update. It returns nil, nil when the document is absent or a condition
	// failed: that is how write races are detected, not an error.
	FindAndUpdate(ctx context.Context, c Collection, op *UpdateOp) (*document.Document, error)

	// Remove deletes the document with the given id, if present.
	Remove(ctx context.Context, c Collection, id string) error

	// Invalidate drops the given node ids from any read cache, forcing
	// subsequent reads to hit the backend.
	Invalidate(ctx context.Context, ids ...string)

	// InvalidateAll drops the whole read cache.
	InvalidateAll(ctx context.Context)

	// Close releases the adapter's resources.
	Close(ctx context.Context) error
}
