// Copyright 2026 The Acorn Authors.
//
// Use of this software is governed by the Apache License, Version 2.0
// included in the /LICENSE file.

package docstore

import (
	"context"
	"time"

	"github.com/acornlabs/acorn/pkg/document"
	"github.com/acornlabs/acorn/pkg/util/log"
	"github.com/acornlabs/acorn/pkg/util/retry"
	"github.com/cockroachdb/errors"
)

// RetryingStore wraps a Store and retries read operations that fail with
// ErrTransient, using exponential backoff. The transient error is surfaced
// only once the retry budget is exhausted.
//
// Writes are deliberately not retried here: a write whose acknowledgment was
// lost may have been applied, and blindly reissuing it can turn an ambiguous
// result into a wrong one (e.g. Create reporting a conflict against the
// caller's own first attempt). Write retry policy belongs to the commit
// layer, which knows what is idempotent.
type RetryingStore struct {
	inner Store
	opts  retry.Options
}

var _ Store = (*RetryingStore)(nil)

// NewRetryingStore wraps inner with the given retry options.
func NewRetryingStore(inner Store, opts retry.Options) *RetryingStore {
	return &RetryingStore{inner: inner, opts: opts}
}

func (s *RetryingStore) retryRead(
	ctx context.Context, opName string, f func() error,
) error {
	var err error
	for r := retry.StartWithCtx(ctx, s.opts); r.Next(); {
		err = f()
		if err == nil || !errors.Is(err, ErrTransient) {
			return err
		}
		log.Warningf(ctx, "transient error in %s (attempt %d): %v",
			opName, r.CurrentAttempt()+1, err)
	}
	if err == nil {
		err = ctx.Err()
	}
	return err
}

// Find implements Store.
func (s *RetryingStore) Find(
	ctx context.Context, c Collection, id string, maxCacheAge time.Duration,
) (*document.Document, error) {
	var doc *document.Document
	err := s.retryRead(ctx, "find", func() error {
		var err error
		doc, err = s.inner.Find(ctx, c, id, maxCacheAge)
		return err
	})
	return doc, err
}

// Query implements Store.
func (s *RetryingStore) Query(
	ctx context.Context, c Collection, fromKey, toKey string,
	indexedProperty string, startValue int64, limit int,
) ([]*document.Document, error) {
	var docs []*document.Document
	err := s.retryRead(ctx, "query", func() error {
		var err error
		docs, err = s.inner.Query(ctx, c, fromKey, toKey, indexedProperty, startValue, limit)
		return err
	})
	return docs, err
}

// Create implements Store.
func (s *RetryingStore) Create(ctx context.Context, c Collection, ops []*UpdateOp) (bool, error) {
	return s.inner.Create(ctx, c, ops)
}

// CreateOrUpdate implements Store.
func (s *RetryingStore) CreateOrUpdate(
	ctx context.Context, c Collection, op *UpdateOp,
) (*document.Document, error) {
	return s.inner.CreateOrUpdate(ctx, c, op)
}

// FindAndUpdate implements Store.
func (s *RetryingStore) FindAndUpdate(
	ctx context.Context, c Collection, op *UpdateOp,
) (*document.Document, error) {
	return s.inner.FindAndUpdate(ctx, c, op)
}

// Remove implements Store.
func (s *RetryingStore) Remove(ctx context.Context, c Collection, id string) error {
	return s.inner.Remove(ctx, c, id)
}

// Invalidate implements Store.
func (s *RetryingStore) Invalidate(ctx context.Context, ids ...string) {
	s.inner.Invalidate(ctx, ids...)
}

// InvalidateAll implements Store.
func (s *RetryingStore) InvalidateAll(ctx context.Context) {
	s.inner.InvalidateAll(ctx)
}

// Close implements Store.
func (s *RetryingStore) Close(ctx context.Context) error {
	return s.inner.Close(ctx)
}
