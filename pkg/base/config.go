// Copyright 2026 The Acorn Authors.
//
// Use of this software is governed by the Apache License, Version 2.0
// included in the /LICENSE file.

// Package base holds configuration shared by the storage packages.
package base

import (
	"time"

	"github.com/acornlabs/acorn/pkg/util/retry"
)

// Config holds the tunables of one cluster node (one process attached to the
// shared backing store). The zero value is usable after SetDefaults.
type Config struct {
	// LeaseDuration is the validity window of the cluster-id lease.
	LeaseDuration time.Duration
	// LeaseRenewInterval is the period of the lease renewal job.
	LeaseRenewInterval time.Duration
	// BackgroundReadInterval is the period of the external-change poll.
	BackgroundReadInterval time.Duration
	// BackgroundWriteInterval is the period of the deferred-write flush.
	BackgroundWriteInterval time.Duration
	// NodeCacheSize caps the per-process node cache.
	NodeCacheSize int
	// SplitMaxRevisions triggers history splitting by entry count.
	SplitMaxRevisions int
	// SplitMaxSize triggers history splitting by estimated byte size.
	SplitMaxSize int
	// MergeRetries bounds the optimistic merge retry loop.
	MergeRetries int
}

// SetDefaults fills in unset fields.
func (cfg *Config) SetDefaults() {
	if cfg.LeaseDuration == 0 {
		cfg.LeaseDuration = DefaultLeaseDuration
	}
	if cfg.LeaseRenewInterval == 0 {
		cfg.LeaseRenewInterval = DefaultLeaseRenewInterval
	}
	if cfg.BackgroundReadInterval == 0 {
		cfg.BackgroundReadInterval = DefaultBackgroundReadInterval
	}
	if cfg.BackgroundWriteInterval == 0 {
		cfg.BackgroundWriteInterval = DefaultBackgroundWriteInterval
	}
	if cfg.NodeCacheSize == 0 {
		cfg.NodeCacheSize = DefaultNodeCacheSize
	}
	if cfg.SplitMaxRevisions == 0 {
		cfg.SplitMaxRevisions = DefaultSplitMaxRevisions
	}
	if cfg.SplitMaxSize == 0 {
		cfg.SplitMaxSize = DefaultSplitMaxSize
	}
	if cfg.MergeRetries == 0 {
		cfg.MergeRetries = DefaultMergeRetries
	}
}

// DefaultRetryOptions should be used for retrying most store-level
// operations.
func DefaultRetryOptions() retry.Options {
	return retry.Options{
		InitialBackoff: 50 * time.Millisecond,
		MaxBackoff:     1 * time.Second,
		Multiplier:     2,
		MaxRetries:     5,
	}
}
