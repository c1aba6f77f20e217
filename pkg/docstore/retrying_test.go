// Copyright 2026 The Acorn Authors.
//
// Use of this software is governed by the Apache License, Version 2.0
// included in the /LICENSE file.

package docstore

import (
	"context"
	"testing"
	"time"

	"github.com/acornlabs/acorn/pkg/document"
	"github.com/acornlabs/acorn/pkg/util/retry"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
)

// flakyStore fails the first failures reads with a transient error.
type flakyStore struct {
	*MemoryStore
	failures int
	calls    int
}

func (s *flakyStore) Find(
	ctx context.Context, c Collection, id string, maxCacheAge time.Duration,
) (*document.Document, error) {
	s.calls++
	if s.calls <= s.failures {
		return nil, errors.Mark(errors.New("connection reset"), ErrTransient)
	}
	return s.MemoryStore.Find(ctx, c, id, maxCacheAge)
}

func fastRetryOpts(maxRetries int) retry.Options {
	return retry.Options{
		InitialBackoff: time.Microsecond,
		MaxBackoff:     time.Microsecond,
		Multiplier:     2,
		MaxRetries:     maxRetries,
	}
}

func TestRetryingFindRecovers(t *testing.T) {
	ctx := context.Background()
	flaky := &flakyStore{MemoryStore: NewMemoryStore(), failures: 2}
	_, err := flaky.MemoryStore.Create(ctx, Nodes, []*UpdateOp{NewUpdateOp("1:/a", true)})
	require.NoError(t, err)

	s := NewRetryingStore(flaky, fastRetryOpts(5))
	doc, err := s.Find(ctx, Nodes, "1:/a", 0)
	require.NoError(t, err)
	require.NotNil(t, doc)
	require.Equal(t, 3, flaky.calls)
}

func TestRetryingGivesUp(t *testing.T) {
	ctx := context.Background()
	flaky := &flakyStore{MemoryStore: NewMemoryStore(), failures: 100}
	s := NewRetryingStore(flaky, fastRetryOpts(2))
	_, err := s.Find(ctx, Nodes, "1:/a", 0)
	require.ErrorIs(t, err, ErrTransient)
	require.Equal(t, 3, flaky.calls)
}

func TestRetryingDoesNotRetryOtherErrors(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")
	flaky := &flakyStore{MemoryStore: NewMemoryStore()}
	s := NewRetryingStore(&erroringStore{flaky, boom}, fastRetryOpts(5))
	_, err := s.Find(ctx, Nodes, "1:/a", 0)
	require.ErrorIs(t, err, boom)
}

type erroringStore struct {
	Store
	err error
}

func (s *erroringStore) Find(
	ctx context.Context, c Collection, id string, maxCacheAge time.Duration,
) (*document.Document, error) {
	return nil, s.err
}

func TestRetryingPassesWritesThrough(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryStore()
	s := NewRetryingStore(mem, fastRetryOpts(5))

	ok, err := s.Create(ctx, Nodes, []*UpdateOp{NewUpdateOp("1:/a", true)})
	require.NoError(t, err)
	require.True(t, ok)

	res, err := s.FindAndUpdate(ctx, Nodes,
		NewUpdateOp("1:/a", false).Set("p", document.IntValue(7)))
	require.NoError(t, err)
	require.NotNil(t, res)
}
