// Copyright 2026 The Acorn Authors.
//
// Use of this software is governed by the Apache License, Version 2.0
// included in the /LICENSE file.

package document

import (
	"context"
	"sort"

	"github.com/cockroachdb/errors"
)

// A Split describes relocating a document's old committed history into one
// immutable previous document. The caller writes Prev first, then in a
// single atomic update strips the moved entries from the main document and
// records the [Low, High] range under _prev.
type Split struct {
	// Prev is the previous document to create. It is self-contained: every
	// moved revision carries a resolved commit tag in its _revisions map.
	Prev *Document
	// Moved lists the entries to strip from the main document, per sub-map.
	Moved map[string][]Revision
	// Low and High bound the moved revision range.
	Low, High Revision
}

// splittable returns whether entries of the named sub-map move to previous
// documents. _lastRev and _prev are current-state bookkeeping and always
// stay on the main document.
func splittable(field string) bool {
	return field != FieldLastRev && field != FieldPrev
}

// PlanSplit decides whether doc's history should be split and, if so,
// returns the plan. History is split when the document exceeds maxRevs
// revision entries or maxSize estimated bytes. Only revisions that are fully
// committed and visible at head move; unmerged branch revisions and the
// newest committed revision always stay on the main document.
func PlanSplit(
	ctx context.Context,
	doc *Document,
	head Revision,
	maxRevs, maxSize int,
	res Resolver,
) (*Split, error) {
	if doc.RevisionEntryCount() <= maxRevs && doc.MemSize() <= maxSize {
		return nil, nil
	}

	// Collect the committed revisions present in any splittable map.
	committed := make(map[Revision]Revision) // rev -> effective commit revision
	var all []Revision
	for field, m := range doc.SubMaps {
		if !splittable(field) {
			continue
		}
		for rev := range m {
			if _, seen := committed[rev]; seen {
				continue
			}
			commitRev, err := res.CommitValue(ctx, doc, rev)
			if err != nil {
				return nil, err
			}
			// A zero commit value covers unmerged branch revisions and
			// in-flight commits; both stay on the main document.
			if commitRev.IsZero() || head.Less(commitRev) {
				continue
			}
			committed[rev] = commitRev
			all = append(all, rev)
		}
	}
	if len(all) < 2 {
		return nil, nil
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Less(all[j]) })

	// Keep the most recent committed revision local so the common case (read
	// at head) never touches a previous document.
	moved := all[:len(all)-1]

	path, err := doc.Path()
	if err != nil {
		return nil, err
	}
	sp := &Split{
		Moved: make(map[string][]Revision),
		Low:   moved[0],
		High:  moved[len(moved)-1],
	}
	movedSet := make(map[Revision]bool, len(moved))
	for _, rev := range moved {
		movedSet[rev] = true
	}

	sp.Prev = NewDocument(PreviousDocID(path, sp.High))
	for field, m := range doc.SubMaps {
		if !splittable(field) {
			continue
		}
		for rev, val := range m {
			if !movedSet[rev] {
				continue
			}
			sp.Prev.SubMap(field)[rev] = val
			sp.Moved[field] = append(sp.Moved[field], rev)
		}
	}
	// Resolved commit tags make the previous document self-contained even
	// for entries whose commit root is another document.
	revs := sp.Prev.SubMap(FieldRevisions)
	for _, rev := range moved {
		commitRev := committed[rev]
		if commitRev == rev.AsTrunk() {
			revs[rev] = CommittedTag
		} else {
			revs[rev] = MergedTag(commitRev)
		}
	}
	return sp, nil
}

// PrevDocResolver resolves reads against a previous document without any
// cross-document context: previous documents are self-contained.
type PrevDocResolver struct{}

// CommitValue implements Resolver using the document's local tags only.
func (PrevDocResolver) CommitValue(
	ctx context.Context, doc *Document, rev Revision,
) (Revision, error) {
	tag, ok := doc.LocalCommitTag(rev)
	if !ok || !IsCommitted(tag) {
		return Revision{}, nil
	}
	return ResolveCommitRevision(rev, tag)
}

// Previous implements Resolver; previous documents of previous documents do
// not occur (splits always run against the main document).
func (PrevDocResolver) Previous(
	ctx context.Context, doc *Document, high Revision,
) (*Document, error) {
	return nil, errors.Wrapf(ErrCorrupt, "previous document %s has a _prev entry", doc.ID)
}
