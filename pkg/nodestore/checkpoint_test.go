// Copyright 2026 The Acorn Authors.
//
// Use of this software is governed by the Apache License, Version 2.0
// included in the /LICENSE file.

package nodestore

import (
	"context"
	"testing"
	"time"

	"github.com/acornlabs/acorn/pkg/docstore"
	"github.com/acornlabs/acorn/pkg/document"
	"github.com/stretchr/testify/require"
)

func TestCheckpointRetrieve(t *testing.T) {
	ctx := context.Background()
	ns := newTestStore(t, docstore.NewMemoryStore(), testConfig())

	b := ns.NewBuilder(mustRoot(t, ns)).
		AddNode("/doc").
		SetProperty("/doc", "v", document.IntValue(1))
	_, err := ns.Merge(ctx, b, nil)
	require.NoError(t, err)

	token, err := ns.Checkpoint(ctx, time.Hour)
	require.NoError(t, err)

	b = ns.NewBuilder(mustRoot(t, ns)).SetProperty("/doc", "v", document.IntValue(2))
	_, err = ns.Merge(ctx, b, nil)
	require.NoError(t, err)

	// The checkpoint pins the old snapshot.
	snap, err := ns.Retrieve(ctx, token)
	require.NoError(t, err)
	require.NotNil(t, snap)
	doc, err := snap.Child(ctx, "doc")
	require.NoError(t, err)
	requireProp(t, doc, "v", document.IntValue(1))

	require.NoError(t, ns.Release(ctx, token))
	snap, err = ns.Retrieve(ctx, token)
	require.NoError(t, err)
	require.Nil(t, snap)
}

func TestCheckpointUnknownToken(t *testing.T) {
	ctx := context.Background()
	ns := newTestStore(t, docstore.NewMemoryStore(), testConfig())
	snap, err := ns.Retrieve(ctx, "no-such-token")
	require.NoError(t, err)
	require.Nil(t, snap)
}

func TestCheckpointExpiry(t *testing.T) {
	ctx := context.Background()
	ns := newTestStore(t, docstore.NewMemoryStore(), testConfig())

	expired, err := ns.Checkpoint(ctx, -time.Second)
	require.NoError(t, err)
	snap, err := ns.Retrieve(ctx, expired)
	require.NoError(t, err)
	require.Nil(t, snap)

	// The next checkpoint write prunes the expired entry.
	live, err := ns.Checkpoint(ctx, time.Hour)
	require.NoError(t, err)
	doc, err := ns.store.Find(ctx, docstore.Settings, checkpointDocID, 0)
	require.NoError(t, err)
	require.NotNil(t, doc)
	_, hasExpired := doc.Scalars[expired]
	require.False(t, hasExpired)
	_, hasLive := doc.Scalars[live]
	require.True(t, hasLive)
}
