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
	"github.com/acornlabs/acorn/pkg/util/log"
	"github.com/acornlabs/acorn/pkg/util/retry"
	"github.com/acornlabs/acorn/pkg/util/syncutil"
	"github.com/cockroachdb/errors"
)

// A Branch is a private line of commits over one base revision. Its commits
// are written to the shared documents immediately but stay invisible to
// everyone else: their commit tags hold the branch base, which never
// resolves, until Merge rewrites them in a single conditional update on the
// repository root.
type Branch struct {
	ns   *DocumentNodeStore
	base document.Revision

	mu struct {
		syncutil.Mutex
		head    document.Revision
		commits []document.Revision
		// touched lists the changed fields per path, for the merge-time
		// conflict check.
		touched map[string][]string
		merged  bool
	}
}

// NewBranch opens a branch based on the given trunk snapshot.
func (ns *DocumentNodeStore) NewBranch(base *NodeState) (*Branch, error) {
	if base.branch != nil {
		return nil, errors.AssertionFailedf("branches do not nest")
	}
	br := &Branch{ns: ns, base: base.Rev}
	br.mu.head = base.Rev
	br.mu.touched = make(map[string][]string)
	return br, nil
}

func (br *Branch) baseRevision() document.Revision { return br.base }

// contains returns whether rev is one of this branch's commits.
func (br *Branch) contains(rev document.Revision) bool {
	br.mu.Lock()
	defer br.mu.Unlock()
	for _, r := range br.mu.commits {
		if r == rev {
			return true
		}
	}
	return false
}

// Head returns the branch's current snapshot: the base plus all branch
// commits so far.
func (br *Branch) Head(ctx context.Context) (*NodeState, error) {
	br.mu.Lock()
	rev := br.mu.head
	br.mu.Unlock()
	node, err := br.ns.readNode(ctx, "/", rev, br)
	if err != nil {
		return nil, err
	}
	return &NodeState{ns: br.ns, branch: br, Path: "/", Rev: rev, node: node}, nil
}

// NewBuilder returns a builder staging changes on the branch head.
func (br *Branch) NewBuilder(ctx context.Context) (*Builder, error) {
	head, err := br.Head(ctx)
	if err != nil {
		return nil, err
	}
	return br.ns.NewBuilder(head), nil
}

// Commit applies the builder's staged changes as one branch commit. The
// changes become part of the branch head but remain invisible outside the
// branch until Merge.
func (br *Branch) Commit(ctx context.Context, b *Builder) (*NodeState, error) {
	if b.branch != br {
		return nil, errors.AssertionFailedf("builder does not belong to this branch")
	}
	br.mu.Lock()
	if br.mu.merged {
		br.mu.Unlock()
		return nil, errors.AssertionFailedf("branch already merged")
	}
	base := br.mu.head
	br.mu.Unlock()

	if b.IsEmpty() {
		return br.Head(ctx)
	}
	if !br.ns.lease.alive() {
		return nil, errors.Wrap(ErrLease, "branch commit")
	}

	rev := br.ns.gen.NextBranch()
	c := newCommit(br.ns, rev, base, br)
	c.stage(b.staged)
	if err := c.apply(ctx); err != nil {
		return nil, err
	}

	br.mu.Lock()
	br.mu.commits = append(br.mu.commits, rev)
	br.mu.head = rev
	for path, fields := range c.contentFields {
		br.mu.touched[path] = append(br.mu.touched[path], fields...)
	}
	br.mu.Unlock()
	br.ns.commitApplied(ctx, rev, c.paths())
	return br.Head(ctx)
}

// Merge makes the branch's commits visible on trunk. All branch tags on the
// repository root are rewritten to the merge revision in one conditional
// update, so the whole branch becomes visible atomically. The merge runs
// under a per-process lock and retries a bounded number of times against
// concurrent head movement; a committed trunk change on a path the branch
// touched fails with ErrConflict.
func (br *Branch) Merge(ctx context.Context, hook CommitHook) (*NodeState, error) {
	br.ns.mergeMu.Lock()
	defer br.ns.mergeMu.Unlock()

	br.mu.Lock()
	if br.mu.merged {
		br.mu.Unlock()
		return nil, errors.AssertionFailedf("branch already merged")
	}
	commits := append([]document.Revision(nil), br.mu.commits...)
	br.mu.Unlock()

	if hook != nil {
		head, err := br.Head(ctx)
		if err != nil {
			return nil, err
		}
		b := br.ns.NewBuilder(head)
		if err := hook(ctx, b); err != nil {
			return nil, err
		}
		if !b.IsEmpty() {
			if _, err := br.Commit(ctx, b); err != nil {
				return nil, err
			}
			br.mu.Lock()
			commits = append([]document.Revision(nil), br.mu.commits...)
			br.mu.Unlock()
		}
	}
	if len(commits) == 0 {
		br.mu.Lock()
		br.mu.merged = true
		br.mu.Unlock()
		return br.ns.Root(ctx)
	}
	if !br.ns.lease.alive() {
		return nil, errors.Wrap(ErrLease, "merge")
	}

	rootID := document.IDFromPath("/")
	opts := retry.Options{
		InitialBackoff: 5 * time.Millisecond,
		MaxBackoff:     100 * time.Millisecond,
		Multiplier:     2,
		MaxRetries:     br.ns.cfg.MergeRetries,
	}
	for r := retry.StartWithCtx(ctx, opts); r.Next(); {
		// Checked on every attempt: a trunk commit whose commit root is not
		// the repository root lands without moving the root document, so the
		// check-and-set below would not catch it.
		if err := br.checkTrunkConflicts(ctx); err != nil {
			return nil, err
		}
		rootDoc, err := br.ns.store.Find(ctx, docstore.Nodes, rootID, 0)
		if err != nil {
			return nil, err
		}
		if rootDoc == nil {
			return nil, errors.Wrap(document.ErrCorrupt, "repository root document missing")
		}
		mergeRev := br.ns.gen.Next()
		op := docstore.NewUpdateOp(rootID, false).
			SetMapEntry(document.FieldRevisions, mergeRev, document.CommittedTag).
			Max(document.FieldModified, mergeRev.Timestamp/1000).
			EqualsScalar(document.FieldModCount, document.IntValue(rootDoc.ModCount()))
		for _, rev := range commits {
			op.SetMapEntry(document.FieldRevisions, rev, document.MergedTag(mergeRev)).
				ContainsMapEntry(document.FieldRevisions, rev)
		}
		before, err := br.ns.store.FindAndUpdate(ctx, docstore.Nodes, op)
		if err != nil {
			return nil, err
		}
		if before != nil {
			br.mu.Lock()
			br.mu.merged = true
			paths := make([]string, 0, len(br.mu.touched))
			for path := range br.mu.touched {
				paths = append(paths, path)
			}
			br.mu.Unlock()
			br.ns.commitApplied(ctx, mergeRev, paths)
			br.ns.store.Invalidate(ctx, rootID)
			return br.ns.Root(ctx)
		}
		log.VEventf(ctx, 2, "merge of %d branch commits lost the root race, retrying (attempt %d)",
			len(commits), r.CurrentAttempt()+1)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return nil, newConflictError("/", commits[len(commits)-1])
}

// checkTrunkConflicts scans the paths the branch touched for trunk changes
// committed after the branch base.
func (br *Branch) checkTrunkConflicts(ctx context.Context) error {
	br.mu.Lock()
	touched := make(map[string][]string, len(br.mu.touched))
	for path, fields := range br.mu.touched {
		touched[path] = append([]string(nil), fields...)
	}
	br.mu.Unlock()

	// A trunk resolver: the branch's own commits must not count as
	// conflicts, so they are filtered below instead of hidden by the
	// resolver.
	res := br.ns.resolver(nil)
	for path, fields := range touched {
		doc, err := br.ns.store.Find(ctx, docstore.Nodes, document.IDFromPath(path), 0)
		if err != nil {
			return err
		}
		if doc == nil {
			return errors.Wrapf(document.ErrCorrupt, "touched document %s missing", path)
		}
		for _, field := range fields {
			for r := range doc.SubMaps[field] {
				if br.contains(r) {
					continue
				}
				commitRev, err := res.CommitValue(ctx, doc, r)
				if err != nil {
					return err
				}
				if !commitRev.IsZero() && br.base.Less(commitRev) {
					return newConflictError(path, r)
				}
			}
		}
	}
	return nil
}
