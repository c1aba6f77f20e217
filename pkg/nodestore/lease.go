// Copyright 2026 The Acorn Authors.
//
// Use of this software is governed by the Apache License, Version 2.0
// included in the /LICENSE file.

package nodestore

import (
	"context"
	"strconv"
	"time"

	"github.com/acornlabs/acorn/pkg/base"
	"github.com/acornlabs/acorn/pkg/docstore"
	"github.com/acornlabs/acorn/pkg/document"
	"github.com/acornlabs/acorn/pkg/util/log"
	"github.com/acornlabs/acorn/pkg/util/syncutil"
	"github.com/acornlabs/acorn/pkg/util/timeutil"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

// Cluster-node document fields.
const (
	leaseStateField    = "state"
	leaseEndField      = "leaseEnd"
	leaseInstanceField = "instanceId"

	leaseStateActive   = "ACTIVE"
	leaseStateInactive = "NONE"
)

// leaseManager owns one cluster id: a document in the clusterNodes
// collection whose lease this process keeps renewed. Writing with a cluster
// id is only sound while the lease holds, so an expired lease permanently
// fails the manager and with it all further commits of the store.
type leaseManager struct {
	store    docstore.Store
	id       document.ClusterID
	duration time.Duration
	// instance is the owner nonce written to the lease document at acquire
	// time. Renewals are conditional on it, so a process whose expired id was
	// reclaimed elsewhere can never extend the new owner's lease, no matter
	// what its local clock believes.
	instance string

	mu struct {
		syncutil.Mutex
		leaseEnd time.Time
		failed   bool
	}
}

func leaseDocID(id document.ClusterID) string {
	return strconv.Itoa(int(id))
}

// acquireLease claims a cluster id: the lowest id whose lease is expired or
// released, or a fresh id one past the highest in use. Claims race through
// the store's conditional primitives, so two processes can never hold the
// same id.
func acquireLease(
	ctx context.Context, store docstore.Store, cfg base.Config,
) (*leaseManager, error) {
	now := timeutil.Now()
	end := now.Add(cfg.LeaseDuration)
	endMillis := timeutil.ToUnixMillis(end)
	instance := uuid.NewString()

	for id := document.ClusterID(1); ; id++ {
		docID := leaseDocID(id)
		doc, err := store.Find(ctx, docstore.ClusterNodes, docID, 0)
		if err != nil {
			return nil, err
		}
		if doc == nil {
			op := docstore.NewUpdateOp(docID, true).
				Set(leaseStateField, document.StringValue(leaseStateActive)).
				Set(leaseEndField, document.IntValue(endMillis)).
				Set(leaseInstanceField, document.StringValue(instance))
			ok, err := store.Create(ctx, docstore.ClusterNodes, []*docstore.UpdateOp{op})
			if err != nil {
				return nil, err
			}
			if !ok {
				// Raced with another process; re-examine the same id.
				id--
				continue
			}
			return newLeaseManager(store, id, cfg.LeaseDuration, end, instance), nil
		}

		state, _ := doc.Scalars[leaseStateField].AsString()
		leaseEnd, _ := doc.Scalars[leaseEndField].AsInt()
		if state == leaseStateActive && leaseEnd > timeutil.ToUnixMillis(now) {
			continue
		}
		// Expired or released; reclaim with a check-and-set so only one
		// contender wins.
		op := docstore.NewUpdateOp(docID, false).
			EqualsScalar(document.FieldModCount, document.IntValue(doc.ModCount())).
			Set(leaseStateField, document.StringValue(leaseStateActive)).
			Set(leaseEndField, document.IntValue(endMillis)).
			Set(leaseInstanceField, document.StringValue(instance))
		before, err := store.FindAndUpdate(ctx, docstore.ClusterNodes, op)
		if err != nil {
			return nil, err
		}
		if before != nil {
			log.Infof(ctx, "reclaimed expired cluster id %d", id)
			return newLeaseManager(store, id, cfg.LeaseDuration, end, instance), nil
		}
	}
}

func newLeaseManager(
	store docstore.Store,
	id document.ClusterID,
	duration time.Duration,
	end time.Time,
	instance string,
) *leaseManager {
	lm := &leaseManager{store: store, id: id, duration: duration, instance: instance}
	lm.mu.leaseEnd = end
	return lm
}

// alive returns whether the lease still holds. Once false it stays false:
// another process may have reclaimed the id in the meantime.
func (lm *leaseManager) alive() bool {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	if lm.mu.failed {
		return false
	}
	if timeutil.Now().After(lm.mu.leaseEnd) {
		lm.mu.failed = true
		return false
	}
	return true
}

// renew extends the lease. A transient store failure keeps the old expiry
// and is retried at the next tick; the lease only fails when the wall clock
// passes the last acknowledged expiry, or when the instance condition shows
// the document no longer belongs to us.
func (lm *leaseManager) renew(ctx context.Context) error {
	if !lm.alive() {
		return errors.Wrapf(ErrLease, "cluster id %d", lm.id)
	}
	end := timeutil.Now().Add(lm.duration)
	op := docstore.NewUpdateOp(leaseDocID(lm.id), false).
		EqualsScalar(leaseStateField, document.StringValue(leaseStateActive)).
		EqualsScalar(leaseInstanceField, document.StringValue(lm.instance)).
		Set(leaseEndField, document.IntValue(timeutil.ToUnixMillis(end)))
	before, err := lm.store.FindAndUpdate(ctx, docstore.ClusterNodes, op)
	if err != nil {
		log.Warningf(ctx, "lease renewal for cluster id %d: %v", lm.id, err)
		return nil
	}
	if before == nil {
		lm.mu.Lock()
		lm.mu.failed = true
		lm.mu.Unlock()
		return errors.Wrapf(ErrLease, "cluster id %d document reclaimed", lm.id)
	}
	lm.mu.Lock()
	lm.mu.leaseEnd = end
	lm.mu.Unlock()
	return nil
}

// release hands the cluster id back so another process can claim it without
// waiting out the lease.
func (lm *leaseManager) release(ctx context.Context) error {
	lm.mu.Lock()
	lm.mu.failed = true
	lm.mu.Unlock()
	// Conditional on the instance so a release after losing the id cannot
	// clear the new owner's lease.
	op := docstore.NewUpdateOp(leaseDocID(lm.id), false).
		EqualsScalar(leaseInstanceField, document.StringValue(lm.instance)).
		Set(leaseStateField, document.StringValue(leaseStateInactive)).
		Set(leaseEndField, document.IntValue(0))
	_, err := lm.store.FindAndUpdate(ctx, docstore.ClusterNodes, op)
	return err
}
