// Copyright 2026 The Acorn Authors.
//
// Use of this software is governed by the Apache License, Version 2.0
// included in the /LICENSE file.

package nodestore

import (
	"context"
	"time"

	"github.com/acornlabs/acorn/pkg/docstore"
	"github.com/acornlabs/acorn/pkg/document"
	"github.com/acornlabs/acorn/pkg/util/timeutil"
	"github.com/google/uuid"
)

// checkpointDocID is the singleton settings document holding all live
// checkpoints, one scalar field per token.
const checkpointDocID = "checkpoint"

const (
	checkpointRevKey    = "rev"
	checkpointExpiryKey = "expires"
)

// Checkpoint pins the current head revision for at least the given lifetime
// and returns an opaque token for it. Pinned revisions are exempt from
// history splitting considerations by contract of the caller; the storage
// core only records them.
//
// Expired entries found in the checkpoint document are pruned in the same
// write.
func (ns *DocumentNodeStore) Checkpoint(
	ctx context.Context, lifetime time.Duration,
) (string, error) {
	head := ns.Head()
	token := uuid.NewString()
	expires := timeutil.ToUnixMillis(timeutil.Now().Add(lifetime))

	// Entries are stored in their canonical string form; a nested map field
	// would be indistinguishable from a revisioned sub-map on the wire.
	entry := document.EncodeValue(document.MapValue(map[string]document.Value{
		checkpointRevKey:    document.StringValue(head.String()),
		checkpointExpiryKey: document.IntValue(expires),
	}))
	op := docstore.NewUpdateOp(checkpointDocID, false).
		Set(token, document.StringValue(entry))

	doc, err := ns.store.Find(ctx, docstore.Settings, checkpointDocID, 0)
	if err != nil {
		return "", err
	}
	if doc != nil {
		now := timeutil.ToUnixMillis(timeutil.Now())
		for field, v := range doc.Scalars {
			if _, expiry, ok := checkpointEntry(v); ok && expiry < now {
				op.RemoveField(field)
			}
		}
	}
	if _, err := ns.store.CreateOrUpdate(ctx, docstore.Settings, op); err != nil {
		return "", err
	}
	return token, nil
}

// Retrieve returns the snapshot a checkpoint token pins, or nil if the
// token is unknown or expired.
func (ns *DocumentNodeStore) Retrieve(ctx context.Context, token string) (*NodeState, error) {
	doc, err := ns.store.Find(ctx, docstore.Settings, checkpointDocID, 0)
	if err != nil || doc == nil {
		return nil, err
	}
	v, ok := doc.Scalars[token]
	if !ok {
		return nil, nil
	}
	revStr, expiry, ok := checkpointEntry(v)
	if !ok || expiry < timeutil.ToUnixMillis(timeutil.Now()) {
		return nil, nil
	}
	rev, err := document.ParseRevision(revStr)
	if err != nil {
		return nil, err
	}
	return ns.GetNode(ctx, "/", rev)
}

// Release discards a checkpoint token.
func (ns *DocumentNodeStore) Release(ctx context.Context, token string) error {
	op := docstore.NewUpdateOp(checkpointDocID, false).RemoveField(token)
	_, err := ns.store.FindAndUpdate(ctx, docstore.Settings, op)
	return err
}

func checkpointEntry(v document.Value) (rev string, expiry int64, ok bool) {
	s, ok := v.AsString()
	if !ok {
		return "", 0, false
	}
	decoded, err := document.DecodeValue(s)
	if err != nil {
		return "", 0, false
	}
	m, ok := decoded.AsMap()
	if !ok {
		return "", 0, false
	}
	rev, ok = m[checkpointRevKey].AsString()
	if !ok {
		return "", 0, false
	}
	expiry, ok = m[checkpointExpiryKey].AsInt()
	return rev, expiry, ok
}
