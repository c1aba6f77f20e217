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
	"github.com/cockroachdb/errors"
)

// prevDocCacheAge bounds cached reads of previous documents. Previous
// documents are immutable once written, so any cached copy is as good as a
// fresh one.
const prevDocCacheAge = time.Hour

// resolver supplies commit status and split-off history to document reads.
// A nil branch resolves for trunk readers; a non-nil branch additionally
// makes the branch's own unmerged commits visible and hides trunk changes
// committed after the branch base.
type resolver struct {
	ns     *DocumentNodeStore
	branch *Branch
}

var _ document.Resolver = (*resolver)(nil)

func (ns *DocumentNodeStore) resolver(br *Branch) *resolver {
	return &resolver{ns: ns, branch: br}
}

// CommitValue implements document.Resolver.
func (r *resolver) CommitValue(
	ctx context.Context, doc *document.Document, rev document.Revision,
) (document.Revision, error) {
	if rev.Branch && r.branch != nil && r.branch.contains(rev) {
		// The reader's own branch sees its commits at their branch revisions.
		return rev.AsTrunk(), nil
	}

	tag, ok, err := r.commitTag(ctx, doc, rev)
	if err != nil {
		return document.Revision{}, err
	}
	if !ok {
		// Neither a local tag nor a commit-root pointer: the change is
		// in flight or belongs to a crashed commit. Either way it is not
		// visible, which is the implicit rollback.
		return document.Revision{}, nil
	}
	if !document.IsCommitted(tag) {
		// Branch base tag of an unmerged branch commit.
		return document.Revision{}, nil
	}
	commitRev, err := document.ResolveCommitRevision(rev, tag)
	if err != nil {
		return document.Revision{}, err
	}
	if r.branch != nil && r.branch.base.Less(commitRev) {
		// Trunk moved past the branch base; those changes join the branch
		// only through a rebase.
		return document.Revision{}, nil
	}
	return commitRev, nil
}

// commitTag finds the commit tag for rev, looking at doc's own _revisions
// map, at the commit root document recorded under _commitRoot, and at the
// split-off history of whichever document carries the tag.
func (r *resolver) commitTag(
	ctx context.Context, doc *document.Document, rev document.Revision,
) (string, bool, error) {
	if tag, ok, err := r.localOrPrevTag(ctx, doc, rev); err != nil || ok {
		return tag, ok, err
	}
	depth := doc.CommitRootDepth(rev)
	if depth < 0 {
		return "", false, nil
	}
	path, err := doc.Path()
	if err != nil {
		return "", false, err
	}
	rootPath := ancestorAtDepth(path, depth)
	rootDoc, err := r.ns.store.Find(
		ctx, docstore.Nodes, document.IDFromPath(rootPath), r.ns.readMaxAge())
	if err != nil {
		return "", false, err
	}
	if rootDoc == nil {
		return "", false, errors.Wrapf(document.ErrCorrupt,
			"commit root %s of %s missing", rootPath, doc.ID)
	}
	return r.localOrPrevTag(ctx, rootDoc, rev)
}

// localOrPrevTag looks up rev's tag on doc, falling back to the previous
// documents whose range covers rev.
func (r *resolver) localOrPrevTag(
	ctx context.Context, doc *document.Document, rev document.Revision,
) (string, bool, error) {
	if tag, ok := doc.LocalCommitTag(rev); ok {
		return tag, true, nil
	}
	prev := doc.SubMaps[document.FieldPrev]
	for _, high := range prev.SortedDesc() {
		if high.Less(rev) {
			continue
		}
		low, err := document.ParseRevision(prev[high])
		if err != nil {
			return "", false, errors.Wrapf(err, "_prev entry of %s", doc.ID)
		}
		if rev.Less(low) {
			continue
		}
		pd, err := r.Previous(ctx, doc, high)
		if err != nil {
			return "", false, err
		}
		if tag, ok := pd.LocalCommitTag(rev); ok {
			return tag, true, nil
		}
	}
	return "", false, nil
}

// Previous implements document.Resolver. A previous document referenced from
// a _prev entry must exist; its absence is corruption, not a nil result.
func (r *resolver) Previous(
	ctx context.Context, doc *document.Document, high document.Revision,
) (*document.Document, error) {
	path, err := doc.Path()
	if err != nil {
		return nil, err
	}
	id := document.PreviousDocID(path, high)
	pd, err := r.ns.store.Find(ctx, docstore.Nodes, id, prevDocCacheAge)
	if err != nil {
		return nil, err
	}
	if pd == nil {
		return nil, errors.Wrapf(document.ErrCorrupt, "missing previous document %s", id)
	}
	return pd, nil
}

// ancestorAtDepth walks path up to the ancestor with the given depth.
func ancestorAtDepth(path string, depth int) string {
	for document.Depth(path) > depth {
		path = document.ParentPath(path)
	}
	return path
}
