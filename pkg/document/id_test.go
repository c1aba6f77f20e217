// Copyright 2026 The Acorn Authors.
//
// Use of this software is governed by the Apache License, Version 2.0
// included in the /LICENSE file.

package document

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIDRoundTrip(t *testing.T) {
	testCases := []struct {
		path string
		id   string
	}{
		{"/", "0:/"},
		{"/foo", "1:/foo"},
		{"/foo/bar", "2:/foo/bar"},
		{"/foo/bar/baz qux", "3:/foo/bar/baz qux"},
	}
	for _, tc := range testCases {
		require.Equal(t, tc.id, IDFromPath(tc.path))
		path, err := PathFromID(tc.id)
		require.NoError(t, err)
		require.Equal(t, tc.path, path)
	}
}

func TestPathFromIDMalformed(t *testing.T) {
	for _, id := range []string{"", "0:", "x:/", "1:/", "0:/foo", "1:foo", "/foo"} {
		_, err := PathFromID(id)
		require.Error(t, err, "id %q", id)
	}
}

func TestPathHelpers(t *testing.T) {
	require.Equal(t, "/foo", Concat("/", "foo"))
	require.Equal(t, "/foo/bar", Concat("/foo", "bar"))
	require.Equal(t, "/", ParentPath("/"))
	require.Equal(t, "/", ParentPath("/foo"))
	require.Equal(t, "/foo", ParentPath("/foo/bar"))
	require.Equal(t, "", Name("/"))
	require.Equal(t, "bar", Name("/foo/bar"))
}

func TestPreviousDocID(t *testing.T) {
	rev := Revision{Timestamp: 0x100, Counter: 0, ClusterID: 1}
	require.Equal(t, "2:p/foo/r100-0-1", PreviousDocID("/foo", rev))
	require.Equal(t, "1:p/r100-0-1", PreviousDocID("/", rev))
}

func TestChildKeyLimits(t *testing.T) {
	lower := KeyLowerLimit("/foo")
	upper := KeyUpperLimit("/foo")
	require.Equal(t, "2:/foo/", lower)
	require.Equal(t, "2:/foo0", upper)

	// Every direct child id falls inside [lower, upper); previous documents
	// of children and deeper descendants do not.
	for id, in := range map[string]bool{
		"2:/foo/a":     true,
		"2:/foo/zebra": true,
		"2:/foo":       false,
		"3:/foo/a/b":   false,
		"2:/fop":       false,
	} {
		got := id >= lower && id < upper
		require.Equal(t, in, got, "id %q", id)
	}
}

func TestEscapePropertyNameRoundTrip(t *testing.T) {
	names := []string{
		"title", "_hidden", "$type", "__x", "a.b", `a\b`, `a\db`,
		"_", "$", ".", `\`, "jcr:primaryType", "a.b.c", `weird\.mix`,
	}
	for _, name := range names {
		escaped := EscapePropertyName(name)
		unescaped, err := UnescapePropertyName(escaped)
		require.NoError(t, err, "name %q escaped %q", name, escaped)
		require.Equal(t, name, unescaped, "escaped %q", escaped)
	}
}

func TestEscapePropertyNameAvoidsMetadata(t *testing.T) {
	// Escaped names must never collide with the metadata fields.
	for _, meta := range []string{
		FieldDeleted, FieldLastRev, FieldRevisions, FieldCommitRoot, FieldPrev,
	} {
		require.NotEqual(t, meta, EscapePropertyName(meta))
	}
}
