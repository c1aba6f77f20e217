// Copyright 2026 The Acorn Authors.
//
// Use of this software is governed by the Apache License, Version 2.0
// included in the /LICENSE file.

package base

import "time"

const (
	// DefaultLeaseDuration is how long a cluster-id lease is valid without
	// renewal.
	DefaultLeaseDuration = 60 * time.Second

	// DefaultLeaseRenewInterval is how often the lease renewal job runs. It
	// must be comfortably below DefaultLeaseDuration; a node that misses its
	// renewal window loses the ability to commit.
	DefaultLeaseRenewInterval = 10 * time.Second

	// DefaultBackgroundReadInterval bounds how stale a node's view of other
	// cluster nodes' changes may be.
	DefaultBackgroundReadInterval = time.Second

	// DefaultBackgroundWriteInterval is how often deferred _lastRev updates
	// and split candidates are flushed.
	DefaultBackgroundWriteInterval = time.Second

	// DefaultNodeCacheSize is the number of node states kept in the
	// per-process node cache.
	DefaultNodeCacheSize = 10000

	// DefaultSplitMaxRevisions is the number of revision entries in a
	// document above which its old committed history is split off.
	DefaultSplitMaxRevisions = 1000

	// DefaultSplitMaxSize is the estimated in-memory document size in bytes
	// above which its old committed history is split off.
	DefaultSplitMaxSize = 256 << 10 // 256 KiB

	// DefaultMergeRetries bounds the optimistic retry loop of a branch merge
	// racing against concurrent head advances.
	DefaultMergeRetries = 10
)
