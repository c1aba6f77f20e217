// Copyright 2026 The Acorn Authors.
//
// Use of this software is governed by the Apache License, Version 2.0
// included in the /LICENSE file.

package nodestore

import (
	"context"
	"testing"
	"time"

	"github.com/acornlabs/acorn/pkg/base"
	"github.com/acornlabs/acorn/pkg/docstore"
	"github.com/acornlabs/acorn/pkg/document"
	"github.com/stretchr/testify/require"
)

func leaseConfig() base.Config {
	cfg := base.Config{LeaseDuration: time.Hour}
	cfg.SetDefaults()
	return cfg
}

func TestLeaseAcquireAssignsFreshIDs(t *testing.T) {
	ctx := context.Background()
	mem := docstore.NewMemoryStore()

	lm1, err := acquireLease(ctx, mem, leaseConfig())
	require.NoError(t, err)
	require.Equal(t, document.ClusterID(1), lm1.id)

	lm2, err := acquireLease(ctx, mem, leaseConfig())
	require.NoError(t, err)
	require.Equal(t, document.ClusterID(2), lm2.id)
}

func TestLeaseReleaseAndReuse(t *testing.T) {
	ctx := context.Background()
	mem := docstore.NewMemoryStore()

	lm1, err := acquireLease(ctx, mem, leaseConfig())
	require.NoError(t, err)
	require.NoError(t, lm1.release(ctx))
	require.False(t, lm1.alive())

	lm2, err := acquireLease(ctx, mem, leaseConfig())
	require.NoError(t, err)
	require.Equal(t, lm1.id, lm2.id)
}

func TestLeaseReclaimExpired(t *testing.T) {
	ctx := context.Background()
	mem := docstore.NewMemoryStore()

	lm1, err := acquireLease(ctx, mem, leaseConfig())
	require.NoError(t, err)

	// Simulate an expired lease left behind by a dead process.
	op := docstore.NewUpdateOp(leaseDocID(lm1.id), false).
		Set(leaseEndField, document.IntValue(1))
	_, err = mem.FindAndUpdate(ctx, docstore.ClusterNodes, op)
	require.NoError(t, err)

	lm2, err := acquireLease(ctx, mem, leaseConfig())
	require.NoError(t, err)
	require.Equal(t, lm1.id, lm2.id)
}

func TestLeaseRenewExtends(t *testing.T) {
	ctx := context.Background()
	mem := docstore.NewMemoryStore()

	lm, err := acquireLease(ctx, mem, leaseConfig())
	require.NoError(t, err)
	before := lm.mu.leaseEnd
	require.NoError(t, lm.renew(ctx))
	require.False(t, lm.mu.leaseEnd.Before(before))
	require.True(t, lm.alive())
}

func TestLeaseRenewFailsAfterForeignReclaim(t *testing.T) {
	ctx := context.Background()
	mem := docstore.NewMemoryStore()

	lm1, err := acquireLease(ctx, mem, leaseConfig())
	require.NoError(t, err)

	// The stored lease expires while lm1's own clock still thinks it holds
	// it, and another process reclaims the id. The document is ACTIVE again,
	// but under the new owner's instance.
	op := docstore.NewUpdateOp(leaseDocID(lm1.id), false).
		Set(leaseEndField, document.IntValue(1))
	_, err = mem.FindAndUpdate(ctx, docstore.ClusterNodes, op)
	require.NoError(t, err)
	lm2, err := acquireLease(ctx, mem, leaseConfig())
	require.NoError(t, err)
	require.Equal(t, lm1.id, lm2.id)

	require.True(t, lm1.alive())
	require.ErrorIs(t, lm1.renew(ctx), ErrLease)
	require.False(t, lm1.alive())

	// The new owner's renewals are unaffected.
	require.NoError(t, lm2.renew(ctx))
}

func TestLeaseRenewFailsAfterReclaim(t *testing.T) {
	ctx := context.Background()
	mem := docstore.NewMemoryStore()

	lm, err := acquireLease(ctx, mem, leaseConfig())
	require.NoError(t, err)

	// Another process released the id; the renewal's state condition fails.
	op := docstore.NewUpdateOp(leaseDocID(lm.id), false).
		Set(leaseStateField, document.StringValue(leaseStateInactive))
	_, err = mem.FindAndUpdate(ctx, docstore.ClusterNodes, op)
	require.NoError(t, err)

	require.ErrorIs(t, lm.renew(ctx), ErrLease)
	require.False(t, lm.alive())
}
