// Copyright 2026 The Acorn Authors.
//
// Use of this software is governed by the Apache License, Version 2.0
// included in the /LICENSE file.

package document

import (
	"context"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
)

// Well-known document fields. Everything else in a document's sub-maps is an
// escaped property name.
const (
	FieldID         = "_id"
	FieldModified   = "_modified"
	FieldModCount   = "_modCount"
	FieldDeleted    = "_deleted"
	FieldLastRev    = "_lastRev"
	FieldRevisions  = "_revisions"
	FieldCommitRoot = "_commitRoot"
	FieldPrev       = "_prev"
)

// Commit tags stored in the _revisions sub-map.
const (
	// CommittedTag marks a committed trunk revision.
	CommittedTag = "c"
	// mergedTagPrefix prefixes the effective merge revision of a committed
	// branch revision.
	mergedTagPrefix = "c-"
)

// RemovedMarker is the sub-map value recording a property removal. Real
// values are never empty: EncodeValue always produces at least two bytes.
const RemovedMarker = ""

// A RevisionMap holds one versioned document field: values keyed by the
// revision that wrote them.
type RevisionMap map[Revision]string

// Clone returns a copy of the map.
func (m RevisionMap) Clone() RevisionMap {
	c := make(RevisionMap, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}

// SortedDesc returns the map's revisions in descending order.
func (m RevisionMap) SortedDesc() []Revision {
	revs := make([]Revision, 0, len(m))
	for r := range m {
		revs = append(revs, r)
	}
	sort.Slice(revs, func(i, j int) bool { return revs[j].Less(revs[i]) })
	return revs
}

// A Document is one entry of the backing store: a set of scalar fields plus
// revision-keyed sub-maps. Node documents, cluster-node documents and
// settings documents all share this shape.
type Document struct {
	// ID is the document key ("<depth>:<path>" for node documents).
	ID string
	// Scalars holds the unversioned fields (_modified, _modCount, ...).
	Scalars map[string]Value
	// SubMaps holds the versioned fields, including one map per property.
	SubMaps map[string]RevisionMap
}

// NewDocument returns an empty document with the given id.
func NewDocument(id string) *Document {
	return &Document{
		ID:      id,
		Scalars: make(map[string]Value),
		SubMaps: make(map[string]RevisionMap),
	}
}

// Clone returns a deep copy of the document.
func (d *Document) Clone() *Document {
	c := NewDocument(d.ID)
	for k, v := range d.Scalars {
		c.Scalars[k] = v
	}
	for k, m := range d.SubMaps {
		c.SubMaps[k] = m.Clone()
	}
	return c
}

// SubMap returns the named sub-map, creating it if absent.
func (d *Document) SubMap(name string) RevisionMap {
	m, ok := d.SubMaps[name]
	if !ok {
		m = make(RevisionMap)
		d.SubMaps[name] = m
	}
	return m
}

// ModCount returns the document's write counter; every store-level update
// increments it, enabling cheap optimistic check-and-set.
func (d *Document) ModCount() int64 {
	if v, ok := d.Scalars[FieldModCount]; ok {
		if i, ok := v.AsInt(); ok {
			return i
		}
	}
	return 0
}

// Modified returns the document's low-resolution modification timestamp in
// seconds.
func (d *Document) Modified() int64 {
	if v, ok := d.Scalars[FieldModified]; ok {
		if i, ok := v.AsInt(); ok {
			return i
		}
	}
	return 0
}

// Path returns the node path encoded in the document id.
func (d *Document) Path() (string, error) {
	return PathFromID(d.ID)
}

// MemSize estimates the in-memory footprint of the document's maps, in
// bytes. Used to decide when history must be split off.
func (d *Document) MemSize() int {
	size := len(d.ID)
	for k, v := range d.Scalars {
		size += len(k) + len(EncodeValue(v))
	}
	for k, m := range d.SubMaps {
		size += len(k)
		for r, v := range m {
			size += len(r.String()) + len(v)
		}
	}
	return size
}

// RevisionEntryCount returns the total number of entries across all
// versioned sub-maps except the bookkeeping maps that never grow with
// history (_lastRev, _prev).
func (d *Document) RevisionEntryCount() int {
	n := 0
	for name, m := range d.SubMaps {
		if name == FieldLastRev || name == FieldPrev {
			continue
		}
		n += len(m)
	}
	return n
}

// LastRev returns the most recent fully-visible revision written by the
// given cluster node, or a zero revision if none is recorded.
func (d *Document) LastRev(id ClusterID) (Revision, error) {
	v, ok := d.SubMaps[FieldLastRev][LastRevKey(id)]
	if !ok {
		return Revision{}, nil
	}
	r, err := ParseRevision(v)
	if err != nil {
		return Revision{}, errors.Wrapf(err, "document %s", d.ID)
	}
	return r.AsTrunk(), nil
}

// LastRevs returns the full _lastRev vector.
func (d *Document) LastRevs() (map[ClusterID]Revision, error) {
	out := make(map[ClusterID]Revision, len(d.SubMaps[FieldLastRev]))
	for key, v := range d.SubMaps[FieldLastRev] {
		r, err := ParseRevision(v)
		if err != nil {
			return nil, errors.Wrapf(err, "document %s", d.ID)
		}
		out[key.ClusterID] = r.AsTrunk()
	}
	return out, nil
}

// LocalCommitTag returns the commit tag for rev recorded on this document's
// own _revisions map, if any.
func (d *Document) LocalCommitTag(rev Revision) (string, bool) {
	tag, ok := d.SubMaps[FieldRevisions][rev]
	return tag, ok
}

// CommitRootDepth returns the depth of the commit root recorded for rev on
// this document, or -1 if none is recorded.
func (d *Document) CommitRootDepth(rev Revision) int {
	v, ok := d.SubMaps[FieldCommitRoot][rev]
	if !ok {
		return -1
	}
	depth := 0
	for i := 0; i < len(v); i++ {
		if v[i] < '0' || v[i] > '9' {
			return -1
		}
		depth = depth*10 + int(v[i]-'0')
	}
	return depth
}

// IsCommitted returns whether a _revisions tag denotes a committed revision:
// either "c" or "c-<effective merge revision>". A tag holding anything else
// (the branch base revision of an unmerged branch commit) is not committed.
func IsCommitted(tag string) bool {
	return tag == CommittedTag || strings.HasPrefix(tag, mergedTagPrefix)
}

// MergedTag returns the tag recording that a branch revision became visible
// at the given merge revision.
func MergedTag(mergeRev Revision) string {
	return mergedTagPrefix + mergeRev.String()
}

// ResolveCommitRevision maps a revision and its commit tag to the revision
// at which the change became visible: rev itself for a plain commit, the
// encoded merge revision for a merged branch commit.
func ResolveCommitRevision(rev Revision, tag string) (Revision, error) {
	if tag == CommittedTag {
		return rev.AsTrunk(), nil
	}
	if strings.HasPrefix(tag, mergedTagPrefix) {
		r, err := ParseRevision(tag[len(mergedTagPrefix):])
		if err != nil {
			return Revision{}, err
		}
		return r, nil
	}
	return Revision{}, errors.Wrapf(ErrCorrupt, "tag %q does not resolve to a commit", tag)
}

// A Resolver supplies the two pieces of cross-document context a read needs:
// commit status (which may live at another document, the commit root) and
// access to previous documents holding split-off history.
type Resolver interface {
	// CommitValue returns the revision at which rev became visible on doc,
	// or a zero revision if rev is not (yet) committed. For an unmerged
	// branch commit this is the branch revision itself when the reader
	// belongs to the same branch, zero otherwise.
	CommitValue(ctx context.Context, doc *Document, rev Revision) (Revision, error)

	// Previous returns the previous document of doc with the given
	// upper-bound revision. A missing previous document is a fatal
	// inconsistency, not a nil result.
	Previous(ctx context.Context, doc *Document, high Revision) (*Document, error)
}

// A Node is the resolved state of one path at one revision.
type Node struct {
	Path       string
	Revision   Revision
	Properties map[string]Value
}

// NodeAt resolves the document to the node state visible at readRev, or nil
// if the node does not exist at that revision.
func (d *Document) NodeAt(ctx context.Context, readRev Revision, res Resolver) (*Node, error) {
	path, err := d.Path()
	if err != nil {
		return nil, err
	}
	deleted, _, err := d.valueAt(ctx, FieldDeleted, readRev, res)
	if err != nil {
		return nil, err
	}
	if deleted != "false" {
		// No creation marker visible at readRev (or a tombstone is).
		return nil, nil
	}

	node := &Node{Path: path, Revision: readRev, Properties: make(map[string]Value)}
	for field := range d.SubMaps {
		switch field {
		// Escaped property names can start with an underscore too, so the
		// bookkeeping maps are matched by name.
		case FieldDeleted, FieldLastRev, FieldRevisions, FieldCommitRoot, FieldPrev:
			continue
		}
		raw, ok, err := d.valueAt(ctx, field, readRev, res)
		if err != nil {
			return nil, err
		}
		if !ok || raw == RemovedMarker {
			continue
		}
		name, err := UnescapePropertyName(field)
		if err != nil {
			return nil, err
		}
		v, err := DecodeValue(raw)
		if err != nil {
			return nil, errors.Wrapf(err, "property %q of %s", name, d.ID)
		}
		node.Properties[name] = v
	}
	return node, nil
}

// valueAt returns the value of the named sub-map at the nearest visible
// revision <= readRev, consulting previous documents when the local map has
// no visible entry.
func (d *Document) valueAt(
	ctx context.Context, field string, readRev Revision, res Resolver,
) (string, bool, error) {
	if m, ok := d.SubMaps[field]; ok {
		for _, rev := range m.SortedDesc() {
			visible, err := d.visible(ctx, rev, readRev, res)
			if err != nil {
				return "", false, err
			}
			if visible {
				return m[rev], true, nil
			}
		}
	}
	// Nothing visible locally; walk split-off history nearest-first.
	prev := d.SubMaps[FieldPrev]
	if len(prev) == 0 {
		return "", false, nil
	}
	for _, high := range prev.SortedDesc() {
		low, err := ParseRevision(prev[high])
		if err != nil {
			return "", false, errors.Wrapf(err, "_prev entry of %s", d.ID)
		}
		if readRev.Less(low) {
			continue
		}
		pd, err := res.Previous(ctx, d, high)
		if err != nil {
			return "", false, err
		}
		v, ok, err := pd.valueAt(ctx, field, readRev, res)
		if err != nil || ok {
			return v, ok, err
		}
	}
	return "", false, nil
}

// visible returns whether a change at rev is visible to a reader at readRev.
func (d *Document) visible(
	ctx context.Context, rev, readRev Revision, res Resolver,
) (bool, error) {
	commitRev, err := res.CommitValue(ctx, d, rev)
	if err != nil {
		return false, err
	}
	if commitRev.IsZero() {
		return false, nil
	}
	return commitRev.Compare(readRev) <= 0, nil
}
