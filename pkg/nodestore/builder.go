// Copyright 2026 The Acorn Authors.
//
// Use of this software is governed by the Apache License, Version 2.0
// included in the /LICENSE file.

package nodestore

import (
	"context"

	"github.com/acornlabs/acorn/pkg/document"
	"github.com/cockroachdb/errors"
)

// stagedNode collects the pending changes of one path inside a Builder.
type stagedNode struct {
	added   bool
	removed bool
	// props maps property names to new values; a nil entry removes the
	// property.
	props map[string]*document.Value
}

// A Builder stages changes against a base snapshot. It is not safe for
// concurrent use; the staged changes become visible atomically on Merge.
type Builder struct {
	ns     *DocumentNodeStore
	branch *Branch
	base   *NodeState
	staged map[string]*stagedNode
}

// NewBuilder returns a builder staging changes on top of the given snapshot.
func (ns *DocumentNodeStore) NewBuilder(base *NodeState) *Builder {
	return &Builder{
		ns:     ns,
		branch: base.branch,
		base:   base,
		staged: make(map[string]*stagedNode),
	}
}

// Base returns the snapshot the builder's changes apply on top of.
func (b *Builder) Base() *NodeState { return b.base }

func (b *Builder) node(path string) *stagedNode {
	sn, ok := b.staged[path]
	if !ok {
		sn = &stagedNode{props: make(map[string]*document.Value)}
		b.staged[path] = sn
	}
	return sn
}

// AddNode stages the creation of a node at path.
func (b *Builder) AddNode(path string) *Builder {
	sn := b.node(path)
	sn.added = true
	sn.removed = false
	return b
}

// RemoveNode stages the removal of the node at path. Descendant removal is
// the caller's responsibility; the storage layer does not cascade.
func (b *Builder) RemoveNode(path string) *Builder {
	sn := b.node(path)
	sn.removed = true
	sn.added = false
	return b
}

// SetProperty stages a property write on path.
func (b *Builder) SetProperty(path, name string, v document.Value) *Builder {
	b.node(path).props[name] = &v
	return b
}

// RemoveProperty stages a property removal on path.
func (b *Builder) RemoveProperty(path, name string) *Builder {
	b.node(path).props[name] = nil
	return b
}

// IsEmpty returns whether the builder stages no changes.
func (b *Builder) IsEmpty() bool { return len(b.staged) == 0 }

// A CommitHook runs inside Merge after staging is final and before the
// changes are applied. Returning an error aborts the merge.
type CommitHook func(ctx context.Context, b *Builder) error

// A PostCommitHook runs after a merge has durably applied, with the
// resulting head snapshot. It cannot fail the merge.
type PostCommitHook func(root *NodeState)

// Merge applies the builder's staged changes as one commit and returns the
// resulting head snapshot. A concurrent committed change to the same
// properties fails with ErrConflict; the caller rebases and retries.
func (ns *DocumentNodeStore) Merge(
	ctx context.Context, b *Builder, hook CommitHook, postHooks ...PostCommitHook,
) (*NodeState, error) {
	if b.branch != nil {
		return nil, errors.AssertionFailedf("branch builders merge through Branch.Commit")
	}
	if hook != nil {
		if err := hook(ctx, b); err != nil {
			return nil, err
		}
	}
	if !b.IsEmpty() {
		if !ns.lease.alive() {
			return nil, errors.Wrap(ErrLease, "merge")
		}
		rev := ns.gen.Next()
		c := newCommit(ns, rev, b.base.Rev, nil)
		c.stage(b.staged)
		if err := c.apply(ctx); err != nil {
			return nil, err
		}
		ns.commitApplied(ctx, rev, c.paths())
	}
	root, err := ns.Root(ctx)
	if err != nil {
		return nil, err
	}
	for _, post := range postHooks {
		post(root)
	}
	return root, nil
}

// Rebase moves the builder's base to the current head, keeping the staged
// changes. Conflicts with changes committed since the old base surface at
// the next Merge.
func (ns *DocumentNodeStore) Rebase(ctx context.Context, b *Builder) error {
	if b.branch != nil {
		return errors.AssertionFailedf("branch builders always commit against the branch head")
	}
	base, err := ns.Root(ctx)
	if err != nil {
		return err
	}
	b.base = base
	return nil
}
