// Copyright 2026 The Acorn Authors.
//
// Use of this software is governed by the Apache License, Version 2.0
// included in the /LICENSE file.

package document

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRevisionStringRoundTrip(t *testing.T) {
	testCases := []Revision{
		{},
		{Timestamp: 1, Counter: 0, ClusterID: 0},
		{Timestamp: 0x18f2a44c1b0, Counter: 2, ClusterID: 1},
		{Timestamp: 0x18f2a44c1b0, Counter: 0x7fffffff, ClusterID: 0xff},
		{Timestamp: 42, Counter: 1, ClusterID: 3, Branch: true},
	}
	for _, rev := range testCases {
		parsed, err := ParseRevision(rev.String())
		require.NoError(t, err, "revision %s", rev)
		require.Equal(t, rev, parsed)
	}
}

func TestParseRevisionMalformed(t *testing.T) {
	for _, s := range []string{
		"", "r", "x1-2-3", "r1-2", "r1-2-3-4", "rzz-2-3", "r1-xx-3", "r1-2-xx",
		"b1-2-3", "br", "rr1-2-3",
	} {
		_, err := ParseRevision(s)
		require.Error(t, err, "input %q", s)
		require.ErrorIs(t, err, ErrCorrupt, "input %q", s)
	}
}

func TestRevisionCompare(t *testing.T) {
	testCases := []struct {
		a, b     Revision
		expected int
	}{
		{Revision{Timestamp: 1}, Revision{Timestamp: 2}, -1},
		{Revision{Timestamp: 2}, Revision{Timestamp: 1}, 1},
		{Revision{Timestamp: 1, Counter: 1}, Revision{Timestamp: 1, Counter: 2}, -1},
		{Revision{Timestamp: 1, Counter: 1, ClusterID: 1}, Revision{Timestamp: 1, Counter: 1, ClusterID: 2}, -1},
		{Revision{Timestamp: 1, Counter: 1, ClusterID: 1}, Revision{Timestamp: 1, Counter: 1, ClusterID: 1}, 0},
		// The branch flag does not participate in the order.
		{Revision{Timestamp: 1, Branch: true}, Revision{Timestamp: 1}, 0},
	}
	for i, tc := range testCases {
		if c := tc.a.Compare(tc.b); c != tc.expected {
			t.Errorf("%d: Compare(%s, %s) = %d, want %d", i, tc.a, tc.b, c, tc.expected)
		}
	}
}

func TestGeneratorMonotonic(t *testing.T) {
	g := NewGenerator(1)
	prev := g.Next()
	for i := 0; i < 10000; i++ {
		next := g.Next()
		if !prev.Less(next) {
			t.Fatalf("generator went backwards: %s then %s", prev, next)
		}
		prev = next
	}
}

func TestGeneratorClockBackwards(t *testing.T) {
	now := int64(1000)
	g := NewGeneratorWithClock(2, func() int64 { return now })

	r1 := g.Next()
	now = 500 // clock runs backwards
	r2 := g.Next()
	now = 1000
	r3 := g.Next()
	now = 1001
	r4 := g.Next()

	require.True(t, r1.Less(r2))
	require.True(t, r2.Less(r3))
	require.True(t, r3.Less(r4))
	require.Equal(t, int64(1000), r2.Timestamp)
	require.Equal(t, int64(1001), r4.Timestamp)
	require.Equal(t, 0, r4.Counter)
}

func TestGeneratorBranchFlag(t *testing.T) {
	g := NewGenerator(1)
	r := g.NextBranch()
	require.True(t, r.Branch)
	require.False(t, r.AsTrunk().Branch)
	require.True(t, r.AsTrunk().AsBranch().Branch)
}
