// Copyright 2026 The Acorn Authors.
//
// Use of this software is governed by the Apache License, Version 2.0
// included in the /LICENSE file.

package document

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
)

// localResolver resolves commit status from each document's own _revisions
// map and previous documents from an in-memory set. Good enough for
// documents acting as their own commit root.
type localResolver struct {
	prevs map[string]*Document
}

func (r *localResolver) CommitValue(
	ctx context.Context, doc *Document, rev Revision,
) (Revision, error) {
	tag, ok := doc.LocalCommitTag(rev)
	if !ok || !IsCommitted(tag) {
		return Revision{}, nil
	}
	return ResolveCommitRevision(rev, tag)
}

func (r *localResolver) Previous(
	ctx context.Context, doc *Document, high Revision,
) (*Document, error) {
	path, err := doc.Path()
	if err != nil {
		return nil, err
	}
	pd, ok := r.prevs[PreviousDocID(path, high)]
	if !ok {
		return nil, errors.Wrapf(ErrCorrupt, "missing previous document of %s", doc.ID)
	}
	return pd, nil
}

func rev(ts int64) Revision {
	return Revision{Timestamp: ts, ClusterID: 1}
}

// commit writes a committed property change (and creation marker on first
// use) directly into the document.
func commit(d *Document, r Revision, prop, encoded string) {
	if _, ok := d.SubMaps[FieldDeleted]; !ok {
		d.SubMap(FieldDeleted)[r] = "false"
	}
	d.SubMap(FieldRevisions)[r] = CommittedTag
	if prop != "" {
		d.SubMap(EscapePropertyName(prop))[r] = encoded
	}
}

func TestNodeAtVisibility(t *testing.T) {
	ctx := context.Background()
	res := &localResolver{}
	d := NewDocument("1:/foo")
	commit(d, rev(10), "p", EncodeValue(IntValue(1)))
	commit(d, rev(20), "p", EncodeValue(IntValue(2)))
	// A revision that is physically present but not committed must stay
	// invisible at any read revision.
	d.SubMap(EscapePropertyName("p"))[rev(30)] = EncodeValue(IntValue(3))

	testCases := []struct {
		readRev  Revision
		exists   bool
		expected int64
	}{
		{rev(5), false, 0},
		{rev(10), true, 1},
		{rev(15), true, 1},
		{rev(20), true, 2},
		{rev(99), true, 2},
	}
	for _, tc := range testCases {
		node, err := d.NodeAt(ctx, tc.readRev, res)
		require.NoError(t, err)
		if !tc.exists {
			require.Nil(t, node, "at %s", tc.readRev)
			continue
		}
		require.NotNil(t, node, "at %s", tc.readRev)
		v, ok := node.Properties["p"].AsInt()
		require.True(t, ok)
		require.Equal(t, tc.expected, v, "at %s", tc.readRev)
	}
}

func TestNodeAtTombstone(t *testing.T) {
	ctx := context.Background()
	res := &localResolver{}
	d := NewDocument("1:/foo")
	commit(d, rev(10), "p", EncodeValue(StringValue("x")))
	// Logical deletion is a tombstone revision, not document removal.
	d.SubMap(FieldDeleted)[rev(20)] = "true"
	d.SubMap(FieldRevisions)[rev(20)] = CommittedTag

	node, err := d.NodeAt(ctx, rev(15), res)
	require.NoError(t, err)
	require.NotNil(t, node)

	node, err = d.NodeAt(ctx, rev(25), res)
	require.NoError(t, err)
	require.Nil(t, node)
}

func TestNodeAtPropertyRemoval(t *testing.T) {
	ctx := context.Background()
	res := &localResolver{}
	d := NewDocument("1:/foo")
	commit(d, rev(10), "p", EncodeValue(StringValue("x")))
	commit(d, rev(20), "p", RemovedMarker)

	node, err := d.NodeAt(ctx, rev(25), res)
	require.NoError(t, err)
	require.NotNil(t, node)
	_, ok := node.Properties["p"]
	require.False(t, ok, "removed property still visible")
}

func TestResolveCommitRevision(t *testing.T) {
	r := rev(10)
	eff, err := ResolveCommitRevision(r, CommittedTag)
	require.NoError(t, err)
	require.Equal(t, r, eff)

	merge := rev(50)
	eff, err = ResolveCommitRevision(r.AsBranch(), MergedTag(merge))
	require.NoError(t, err)
	require.Equal(t, merge, eff)

	_, err = ResolveCommitRevision(r, "r5-0-1")
	require.Error(t, err)

	require.True(t, IsCommitted(CommittedTag))
	require.True(t, IsCommitted(MergedTag(merge)))
	require.False(t, IsCommitted("r5-0-1"))
	require.False(t, IsCommitted(""))
}

func TestLastRev(t *testing.T) {
	d := NewDocument("0:/")
	d.SubMap(FieldLastRev)[LastRevKey(1)] = rev(10).String()
	d.SubMap(FieldLastRev)[LastRevKey(2)] = Revision{Timestamp: 20, ClusterID: 2}.String()

	r, err := d.LastRev(1)
	require.NoError(t, err)
	require.Equal(t, rev(10), r)

	r, err = d.LastRev(3)
	require.NoError(t, err)
	require.True(t, r.IsZero())

	vec, err := d.LastRevs()
	require.NoError(t, err)
	require.Len(t, vec, 2)
	require.Equal(t, int64(20), vec[2].Timestamp)
}

func TestCodecRoundTrip(t *testing.T) {
	d := NewDocument("1:/foo")
	d.Scalars[FieldModCount] = IntValue(7)
	d.Scalars[FieldModified] = IntValue(12345)
	commit(d, rev(10), "p", EncodeValue(StringValue("x")))
	d.SubMap(FieldLastRev)[LastRevKey(1)] = rev(10).String()

	decoded, err := Decode(Encode(d))
	require.NoError(t, err)
	require.Equal(t, d.ID, decoded.ID)
	require.Equal(t, int64(7), decoded.ModCount())
	require.Equal(t, int64(12345), decoded.Modified())
	require.Equal(t, d.SubMaps[FieldDeleted], decoded.SubMaps[FieldDeleted])
	require.Equal(t, d.SubMaps[EscapePropertyName("p")], decoded.SubMaps[EscapePropertyName("p")])
}

func TestDecodeRejectsMalformed(t *testing.T) {
	_, err := Decode(map[string]interface{}{"foo": "bar"})
	require.Error(t, err) // no _id

	_, err = Decode(map[string]interface{}{
		FieldID:      "1:/foo",
		FieldDeleted: map[string]interface{}{"not-a-revision": "false"},
	})
	require.ErrorIs(t, err, ErrCorrupt)
}

func TestPlanSplitPreservesHistory(t *testing.T) {
	ctx := context.Background()
	res := &localResolver{prevs: map[string]*Document{}}

	d := NewDocument("1:/foo")
	const n = 50
	for i := 1; i <= n; i++ {
		commit(d, rev(int64(i*10)), "p", EncodeValue(IntValue(int64(i))))
	}
	head := rev(n * 10)

	sp, err := PlanSplit(ctx, d, head, 10, 1<<30, res)
	require.NoError(t, err)
	require.NotNil(t, sp, "expected a split for %d entries", n)
	require.True(t, sp.Low.Less(sp.High))

	// Apply the split: create the previous document, strip moved entries,
	// record the range.
	res.prevs[sp.Prev.ID] = sp.Prev
	for field, revs := range sp.Moved {
		for _, r := range revs {
			delete(d.SubMaps[field], r)
		}
	}
	d.SubMap(FieldPrev)[sp.High] = sp.Low.String()

	// The newest committed revision stays local.
	_, ok := d.SubMaps[EscapePropertyName("p")][head]
	require.True(t, ok)

	// Every historical revision resolves to the same value as before.
	for i := 1; i <= n; i++ {
		node, err := d.NodeAt(ctx, rev(int64(i*10)), res)
		require.NoError(t, err)
		require.NotNil(t, node, "node missing at %d", i*10)
		v, ok := node.Properties["p"].AsInt()
		require.True(t, ok, "property missing at %d", i*10)
		require.Equal(t, int64(i), v)
	}
}

func TestPlanSplitBelowThresholds(t *testing.T) {
	ctx := context.Background()
	res := &localResolver{}
	d := NewDocument("1:/foo")
	for i := 1; i <= 5; i++ {
		commit(d, rev(int64(i)), "p", EncodeValue(IntValue(int64(i))))
	}
	sp, err := PlanSplit(ctx, d, rev(5), 1000, 1<<30, res)
	require.NoError(t, err)
	require.Nil(t, sp)
}

func TestPlanSplitSkipsUncommitted(t *testing.T) {
	ctx := context.Background()
	res := &localResolver{}
	d := NewDocument("1:/foo")
	for i := 1; i <= 20; i++ {
		commit(d, rev(int64(i)), "p", EncodeValue(IntValue(int64(i))))
	}
	// An unmerged branch commit: tagged with its base revision, which does
	// not resolve to committed.
	branchRev := Revision{Timestamp: 9, Counter: 1, ClusterID: 1, Branch: true}
	d.SubMap(EscapePropertyName("p"))[branchRev] = EncodeValue(IntValue(999))
	d.SubMap(FieldRevisions)[branchRev] = rev(9).String()

	sp, err := PlanSplit(ctx, d, rev(20), 5, 1<<30, res)
	require.NoError(t, err)
	require.NotNil(t, sp)
	for _, revs := range sp.Moved {
		for _, r := range revs {
			require.NotEqual(t, branchRev, r, "unmerged branch revision moved")
		}
	}
	_, inPrev := sp.Prev.SubMaps[EscapePropertyName("p")][branchRev]
	require.False(t, inPrev)
}

func TestMemSizeGrows(t *testing.T) {
	d := NewDocument("1:/foo")
	before := d.MemSize()
	commit(d, rev(10), "p", EncodeValue(StringValue("some value")))
	require.Greater(t, d.MemSize(), before)
	require.Equal(t, 3, d.RevisionEntryCount()) // _deleted + _revisions + p
}
