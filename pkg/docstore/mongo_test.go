// Copyright 2026 The Acorn Authors.
//
// Use of this software is governed by the Apache License, Version 2.0
// included in the /LICENSE file.

package docstore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/acornlabs/acorn/pkg/document"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// newMongoTestStore connects to the MongoDB named by ACORN_MONGODB_URI,
// using a throwaway database per test. Skipped when the variable is unset so
// the suite stays self-contained.
func newMongoTestStore(t *testing.T) *MongoStore {
	t.Helper()
	uri := os.Getenv("ACORN_MONGODB_URI")
	if uri == "" {
		t.Skip("ACORN_MONGODB_URI not set")
	}
	ctx := context.Background()
	dbName := "acorn_test_" + uuid.NewString()[:8]
	s, err := NewMongoStore(ctx, uri, dbName, 128)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = s.db.Drop(ctx)
		_ = s.Close(ctx)
	})
	return s
}

func TestMongoRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newMongoTestStore(t)
	r1, r2 := testRev(1), testRev(2)

	ok, err := s.Create(ctx, Nodes, []*UpdateOp{
		NewUpdateOp("1:/a", true).
			Set("p", document.StringValue("x")).
			SetMapEntry(document.FieldRevisions, r1, "c"),
	})
	require.NoError(t, err)
	require.True(t, ok)

	// Duplicate create fails without touching the store.
	ok, err = s.Create(ctx, Nodes, []*UpdateOp{NewUpdateOp("1:/a", true)})
	require.NoError(t, err)
	require.False(t, ok)

	doc, err := s.Find(ctx, Nodes, "1:/a", 0)
	require.NoError(t, err)
	require.NotNil(t, doc)
	v, _ := doc.Scalars["p"].AsString()
	require.Equal(t, "x", v)
	require.Equal(t, "c", doc.SubMaps[document.FieldRevisions][r1])

	// Conditional update against the live _modCount succeeds once.
	mc := doc.ModCount()
	before, err := s.FindAndUpdate(ctx, Nodes, NewUpdateOp("1:/a", false).
		EqualsScalar(document.FieldModCount, document.IntValue(mc)).
		SetMapEntry(document.FieldRevisions, r2, "c"))
	require.NoError(t, err)
	require.NotNil(t, before)
	before, err = s.FindAndUpdate(ctx, Nodes, NewUpdateOp("1:/a", false).
		EqualsScalar(document.FieldModCount, document.IntValue(mc)).
		SetMapEntry(document.FieldRevisions, testRev(3), "c"))
	require.NoError(t, err)
	require.Nil(t, before)
}

func TestMongoQueryRange(t *testing.T) {
	ctx := context.Background()
	s := newMongoTestStore(t)

	var ops []*UpdateOp
	for _, id := range []string{"2:/a/b", "2:/a/c", "2:/b/a"} {
		ops = append(ops, NewUpdateOp(id, true).Max(document.FieldModified, 9))
	}
	ok, err := s.Create(ctx, Nodes, ops)
	require.NoError(t, err)
	require.True(t, ok)

	docs, err := s.Query(ctx, Nodes,
		document.KeyLowerLimit("/a"), document.KeyUpperLimit("/a"), "", 0, 0)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	require.Equal(t, "2:/a/b", docs[0].ID)
	require.Equal(t, "2:/a/c", docs[1].ID)

	docs, err = s.Query(ctx, Nodes,
		document.KeyLowerLimit("/a"), document.KeyUpperLimit("/a"),
		document.FieldModified, 10, 0)
	require.NoError(t, err)
	require.Empty(t, docs)
}

func TestMongoFindHonorsMaxCacheAge(t *testing.T) {
	ctx := context.Background()
	s := newMongoTestStore(t)

	_, err := s.Create(ctx, Nodes, []*UpdateOp{
		NewUpdateOp("1:/a", true).Set("p", document.IntValue(1)),
	})
	require.NoError(t, err)

	// Prime the cache, then write through another handle's view by going
	// straight to the collection.
	_, err = s.Find(ctx, Nodes, "1:/a", time.Minute)
	require.NoError(t, err)
	_, err = s.FindAndUpdate(ctx, Nodes, NewUpdateOp("1:/a", false).
		Set("p", document.IntValue(2)))
	require.NoError(t, err)

	// A fresh read sees the new value; the update invalidated the entry.
	doc, err := s.Find(ctx, Nodes, "1:/a", time.Minute)
	require.NoError(t, err)
	v, _ := doc.Scalars["p"].AsInt()
	require.Equal(t, int64(2), v)
}
