// Copyright 2026 The Acorn Authors.
//
// Use of this software is governed by the Apache License, Version 2.0
// included in the /LICENSE file.

package nodestore

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/acornlabs/acorn/pkg/docstore"
	"github.com/acornlabs/acorn/pkg/document"
	"github.com/acornlabs/acorn/pkg/util/log"
	"github.com/acornlabs/acorn/pkg/util/retry"
	"github.com/cockroachdb/errors"
)

// A commit applies one revision's changes across the touched documents. The
// atomic commit point is a single conditional update on the commit root
// document: until its _revisions tag lands, none of the changes resolve to a
// committed revision anywhere.
type commit struct {
	ns     *DocumentNodeStore
	rev    document.Revision
	base   document.Revision
	branch *Branch

	// ops holds the per-path content changes.
	ops map[string]*docstore.UpdateOp
	// contentFields lists the changed sub-map fields per path, for the
	// conflict check.
	contentFields map[string][]string
}

func newCommit(
	ns *DocumentNodeStore, rev, base document.Revision, branch *Branch,
) *commit {
	return &commit{
		ns:            ns,
		rev:           rev,
		base:          base,
		branch:        branch,
		ops:           make(map[string]*docstore.UpdateOp),
		contentFields: make(map[string][]string),
	}
}

// stage translates a builder's staged nodes into document updates.
func (c *commit) stage(staged map[string]*stagedNode) {
	for path, sn := range staged {
		op := docstore.NewUpdateOp(document.IDFromPath(path), sn.added)
		var fields []string
		if sn.added {
			op.SetMapEntry(document.FieldDeleted, c.rev, "false")
			fields = append(fields, document.FieldDeleted)
		}
		if sn.removed {
			op.SetMapEntry(document.FieldDeleted, c.rev, "true")
			fields = append(fields, document.FieldDeleted)
		}
		for name, pv := range sn.props {
			field := document.EscapePropertyName(name)
			if pv == nil {
				op.SetMapEntry(field, c.rev, document.RemovedMarker)
			} else {
				op.SetMapEntry(field, c.rev, document.EncodeValue(*pv))
			}
			fields = append(fields, field)
		}
		op.Max(document.FieldModified, c.rev.Timestamp/1000)
		c.ops[path] = op
		c.contentFields[path] = fields
	}
}

// paths returns the touched paths in sorted order, parents first.
func (c *commit) paths() []string {
	paths := make([]string, 0, len(c.ops))
	for path := range c.ops {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}

// commitRootPath returns the document carrying the commit tag: the nearest
// common ancestor of the touched paths, or the repository root for branch
// commits so that a merge has a single document to rewrite.
func (c *commit) commitRootPath() string {
	if c.branch != nil {
		return "/"
	}
	paths := c.paths()
	root := paths[0]
	for _, p := range paths[1:] {
		for !isAncestorOrSelf(root, p) {
			root = document.ParentPath(root)
		}
	}
	return root
}

func isAncestorOrSelf(a, b string) bool {
	return a == "/" || a == b || strings.HasPrefix(b, a+"/")
}

// commitTagValue is the tag the commit writes to the commit root. Trunk
// commits become visible immediately; branch commits record their base,
// which does not resolve until the merge rewrites it.
func (c *commit) commitTagValue() string {
	if c.branch != nil {
		return c.branch.baseRevision().String()
	}
	return document.CommittedTag
}

// apply runs the commit protocol:
//
//  1. create the documents of added nodes,
//  2. update the other touched documents, pointing each changed revision at
//     the commit root via _commitRoot,
//  3. check every touched document for conflicting committed changes,
//  4. write the commit root's content and its _revisions tag in one
//     conditional update keyed on _modCount.
//
// A crash before step 4 leaves entries that never resolve to a committed
// revision; readers skip them, which is the rollback.
func (c *commit) apply(ctx context.Context) error {
	rootPath := c.commitRootPath()
	if _, ok := c.ops[rootPath]; !ok {
		// The common ancestor itself is unchanged; it still carries the tag.
		c.ops[rootPath] = docstore.NewUpdateOp(document.IDFromPath(rootPath), false).
			Max(document.FieldModified, c.rev.Timestamp/1000)
	}
	rootDepth := document.Depth(rootPath)

	var creates []*docstore.UpdateOp
	var updated []string
	for _, path := range c.paths() {
		if path == rootPath {
			continue
		}
		op := c.ops[path].Clone()
		op.SetMapEntry(document.FieldCommitRoot, c.rev, strconv.Itoa(rootDepth))
		if op.IsNew {
			creates = append(creates, op)
			continue
		}
		before, err := c.ns.store.FindAndUpdate(ctx, docstore.Nodes, op)
		if err != nil {
			c.rollback(ctx, updated)
			return err
		}
		if before == nil {
			// The base snapshot saw this node, the store does not. Someone
			// removed the document; surface it as a conflict.
			c.rollback(ctx, updated)
			return newConflictError(path, c.rev)
		}
		updated = append(updated, path)
		if err := c.checkConflict(ctx, path, before); err != nil {
			c.rollback(ctx, updated)
			return err
		}
	}

	if len(creates) > 0 {
		ok, err := c.ns.store.Create(ctx, docstore.Nodes, creates)
		if err != nil {
			c.rollback(ctx, updated)
			return err
		}
		if !ok {
			// At least one document already exists, e.g. a node re-added
			// after removal. Retry each as a conditional update against a
			// node that must be absent at the base.
			for _, op := range creates {
				if err := c.reviveDocument(ctx, op); err != nil {
					c.rollback(ctx, updated)
					return err
				}
				path, perr := document.PathFromID(op.ID)
				if perr == nil {
					updated = append(updated, path)
				}
			}
		}
	}

	if err := c.applyToCommitRoot(ctx, rootPath); err != nil {
		c.rollback(ctx, updated)
		return err
	}
	return nil
}

// reviveDocument applies a creation op to a document that already exists,
// typically the tombstoned document of a removed node.
func (c *commit) reviveDocument(ctx context.Context, op *docstore.UpdateOp) error {
	path, err := document.PathFromID(op.ID)
	if err != nil {
		return err
	}
	doc, err := c.ns.store.Find(ctx, docstore.Nodes, op.ID, 0)
	if err != nil {
		return err
	}
	if doc != nil {
		node, err := doc.NodeAt(ctx, c.base, c.ns.resolver(c.branch))
		if err != nil {
			return err
		}
		if node != nil {
			// The node exists at the base; adding it again is a conflict.
			return newConflictError(path, c.rev)
		}
		if err := c.checkConflict(ctx, path, doc); err != nil {
			return err
		}
		upd := op.Clone()
		upd.IsNew = false
		before, err := c.ns.store.FindAndUpdate(ctx, docstore.Nodes, upd)
		if err != nil {
			return err
		}
		if before != nil {
			return nil
		}
		// Removed between Find and FindAndUpdate; fall through to create.
	}
	ok, err := c.ns.store.Create(ctx, docstore.Nodes, []*docstore.UpdateOp{op})
	if err != nil {
		return err
	}
	if !ok {
		return newConflictError(path, c.rev)
	}
	return nil
}

// applyToCommitRoot writes the commit root's content change together with
// the _revisions tag, conditional on the document's _modCount. Losing the
// check-and-set means another writer got in between; the op is rebuilt
// against the fresh document and retried a bounded number of times.
func (c *commit) applyToCommitRoot(ctx context.Context, rootPath string) error {
	rootID := document.IDFromPath(rootPath)
	baseOp := c.ops[rootPath]

	if baseOp.IsNew {
		// A commit whose root is itself a new document commits atomically
		// through the creation.
		op := baseOp.Clone().
			SetMapEntry(document.FieldRevisions, c.rev, c.commitTagValue())
		ok, err := c.ns.store.Create(ctx, docstore.Nodes, []*docstore.UpdateOp{op})
		if err != nil {
			return err
		}
		if !ok {
			return c.retryCommitRootAsUpdate(ctx, rootPath, op)
		}
		return nil
	}

	opts := retry.Options{
		InitialBackoff: 5 * time.Millisecond,
		MaxBackoff:     100 * time.Millisecond,
		Multiplier:     2,
		MaxRetries:     c.ns.cfg.MergeRetries,
	}
	for r := retry.StartWithCtx(ctx, opts); r.Next(); {
		rootDoc, err := c.ns.store.Find(ctx, docstore.Nodes, rootID, 0)
		if err != nil {
			return err
		}
		if rootDoc == nil {
			return errors.Wrapf(document.ErrCorrupt, "commit root %s missing", rootPath)
		}
		if err := c.checkConflict(ctx, rootPath, rootDoc); err != nil {
			return err
		}
		op := baseOp.Clone().
			SetMapEntry(document.FieldRevisions, c.rev, c.commitTagValue()).
			EqualsScalar(document.FieldModCount, document.IntValue(rootDoc.ModCount()))
		before, err := c.ns.store.FindAndUpdate(ctx, docstore.Nodes, op)
		if err != nil {
			return err
		}
		if before != nil {
			return nil
		}
		log.VEventf(ctx, 2, "commit root %s moved under %s, retrying (attempt %d)",
			rootPath, c.rev, r.CurrentAttempt()+1)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return newConflictError(rootPath, c.rev)
}

// retryCommitRootAsUpdate handles the rare case of a new commit root whose
// document appeared concurrently.
func (c *commit) retryCommitRootAsUpdate(
	ctx context.Context, rootPath string, op *docstore.UpdateOp,
) error {
	doc, err := c.ns.store.Find(ctx, docstore.Nodes, op.ID, 0)
	if err != nil {
		return err
	}
	if doc == nil {
		return errors.Wrapf(document.ErrCorrupt, "commit root %s vanished", rootPath)
	}
	node, err := doc.NodeAt(ctx, c.base, c.ns.resolver(c.branch))
	if err != nil {
		return err
	}
	if node != nil {
		return newConflictError(rootPath, c.rev)
	}
	if err := c.checkConflict(ctx, rootPath, doc); err != nil {
		return err
	}
	upd := op.Clone()
	upd.IsNew = false
	upd.EqualsScalar(document.FieldModCount, document.IntValue(doc.ModCount()))
	before, err := c.ns.store.FindAndUpdate(ctx, docstore.Nodes, upd)
	if err != nil {
		return err
	}
	if before == nil {
		return newConflictError(rootPath, c.rev)
	}
	return nil
}

// checkConflict scans the fields this commit changes on path for revisions
// committed after the commit's base. A committed newer change is a conflict.
// An uncommitted foreign change is recorded as a collision and otherwise
// ignored: if its commit wins the commit-root race, the loser fails there.
func (c *commit) checkConflict(
	ctx context.Context, path string, doc *document.Document,
) error {
	res := c.ns.resolver(c.branch)
	for _, field := range c.contentFields[path] {
		for r := range doc.SubMaps[field] {
			if r == c.rev {
				continue
			}
			commitRev, err := res.CommitValue(ctx, doc, r)
			if err != nil {
				return err
			}
			if commitRev.IsZero() {
				if r.ClusterID != c.ns.ClusterID() {
					c.ns.collisions.Add(1)
					log.VEventf(ctx, 2, "collision at %s: uncommitted %s on %q", path, r, field)
				}
				continue
			}
			if c.base.Less(commitRev) {
				return newConflictError(path, r)
			}
		}
	}
	return nil
}

// rollback strips the entries already written to updated documents. Best
// effort: entries left behind never resolve to a committed revision, so a
// failed cleanup costs garbage, not correctness.
func (c *commit) rollback(ctx context.Context, updated []string) {
	for _, path := range updated {
		op := docstore.NewUpdateOp(document.IDFromPath(path), false).
			RemoveMapEntry(document.FieldCommitRoot, c.rev)
		for _, field := range c.contentFields[path] {
			op.RemoveMapEntry(field, c.rev)
		}
		if _, err := c.ns.store.FindAndUpdate(ctx, docstore.Nodes, op); err != nil {
			log.Warningf(ctx, "rollback of %s at %s: %v", path, c.rev, err)
		}
	}
}
