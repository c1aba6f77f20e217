// Copyright 2026 The Acorn Authors.
//
// Use of this software is governed by the Apache License, Version 2.0
// included in the /LICENSE file.

package docstore

import (
	"context"
	"time"

	"github.com/acornlabs/acorn/pkg/document"
	"github.com/acornlabs/acorn/pkg/util/syncutil"
	"github.com/cockroachdb/errors"
	"github.com/google/btree"
)

// memEntry is one document in a memory collection's btree, ordered by id.
type memEntry struct {
	id  string
	doc *document.Document
}

func (e *memEntry) Less(than btree.Item) bool {
	return e.id < than.(*memEntry).id
}

// MemoryStore is the in-process Store adapter. It is the reference
// implementation of the protocol's atomicity contract: all operations on
// one store are serialized by a single mutex, and all documents handed out
// are deep copies.
//
// Multiple node stores sharing one MemoryStore behave like multiple
// processes sharing a backing database, which is how the multi-node
// scenarios are tested in-process.
type MemoryStore struct {
	mu struct {
		syncutil.Mutex
		collections map[Collection]*btree.BTree
	}
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{}
	s.mu.collections = make(map[Collection]*btree.BTree)
	return s
}

func (s *MemoryStore) collection(c Collection) *btree.BTree {
	s.mu.AssertHeld()
	t, ok := s.mu.collections[c]
	if !ok {
		t = btree.New(32)
		s.mu.collections[c] = t
	}
	return t
}

func (s *MemoryStore) getLocked(c Collection, id string) *document.Document {
	item := s.collection(c).Get(&memEntry{id: id})
	if item == nil {
		return nil
	}
	return item.(*memEntry).doc
}

// Find implements Store. The memory adapter has no cache; maxCacheAge is
// ignored and reads are always fresh.
func (s *MemoryStore) Find(
	ctx context.Context, c Collection, id string, maxCacheAge time.Duration,
) (*document.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc := s.getLocked(c, id)
	if doc == nil {
		return nil, nil
	}
	return doc.Clone(), nil
}

// Query implements Store.
func (s *MemoryStore) Query(
	ctx context.Context, c Collection, fromKey, toKey string,
	indexedProperty string, startValue int64, limit int,
) ([]*document.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*document.Document
	s.collection(c).AscendGreaterOrEqual(&memEntry{id: fromKey}, func(i btree.Item) bool {
		e := i.(*memEntry)
		if e.id <= fromKey {
			return true
		}
		if e.id >= toKey {
			return false
		}
		if indexedProperty != "" && e.doc.Modified() < startValue {
			return true
		}
		out = append(out, e.doc.Clone())
		return limit <= 0 || len(out) < limit
	})
	return out, nil
}

// Create implements Store.
func (s *MemoryStore) Create(ctx context.Context, c Collection, ops []*UpdateOp) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, op := range ops {
		if s.getLocked(c, op.ID) != nil {
			return false, nil
		}
	}
	for _, op := range ops {
		doc := document.NewDocument(op.ID)
		applyOps(doc, op)
		s.collection(c).ReplaceOrInsert(&memEntry{id: op.ID, doc: doc})
	}
	return true, nil
}

// CreateOrUpdate implements Store.
func (s *MemoryStore) CreateOrUpdate(
	ctx context.Context, c Collection, op *UpdateOp,
) (*document.Document, error) {
	if op.HasConditions() {
		return nil, errors.AssertionFailedf("conditions are not supported on upserts: %s", op)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.getLocked(c, op.ID)
	var doc *document.Document
	if old == nil {
		doc = document.NewDocument(op.ID)
	} else {
		doc = old.Clone()
	}
	applyOps(doc, op)
	s.collection(c).ReplaceOrInsert(&memEntry{id: op.ID, doc: doc})
	if old == nil {
		return nil, nil
	}
	return old.Clone(), nil
}

// FindAndUpdate implements Store.
func (s *MemoryStore) FindAndUpdate(
	ctx context.Context, c Collection, op *UpdateOp,
) (*document.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.getLocked(c, op.ID)
	if old == nil || !checkConditions(old, op) {
		return nil, nil
	}
	doc := old.Clone()
	applyOps(doc, op)
	s.collection(c).ReplaceOrInsert(&memEntry{id: op.ID, doc: doc})
	return old.Clone(), nil
}

// Remove implements Store.
func (s *MemoryStore) Remove(ctx context.Context, c Collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collection(c).Delete(&memEntry{id: id})
	return nil
}

// Invalidate implements Store; the memory adapter has no cache.
func (s *MemoryStore) Invalidate(ctx context.Context, ids ...string) {}

// InvalidateAll implements Store; the memory adapter has no cache.
func (s *MemoryStore) InvalidateAll(ctx context.Context) {}

// Close implements Store.
func (s *MemoryStore) Close(ctx context.Context) error { return nil }

// Len returns the number of documents in a collection. Test helper.
func (s *MemoryStore) Len(c Collection) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.collection(c).Len()
}
