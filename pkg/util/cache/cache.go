// Copyright 2026 The Acorn Authors.
//
// Use of this software is governed by the Apache License, Version 2.0
// included in the /LICENSE file.

// Package cache provides a typed cache with a configurable eviction policy.
package cache

import (
	"container/list"

	"github.com/acornlabs/acorn/pkg/util/syncutil"
)

// EvictionPolicy is the cache eviction policy enum.
type EvictionPolicy int

// Constants describing the eviction policies.
const (
	// CacheNone indicates no entries are ever evicted.
	CacheNone EvictionPolicy = iota
	// CacheLRU indicates the least-recently-used entry is evicted.
	CacheLRU
)

// Config holds the policy and the eviction hooks of a cache.
type Config[K comparable, V any] struct {
	// Policy is one of the consts listed for EvictionPolicy.
	Policy EvictionPolicy

	// ShouldEvict is a callback function executed each time a new entry is
	// added to the cache. It supplies the cache size, and the key and value of
	// the entry most recently unused, and returns true if that entry should
	// be evicted.
	ShouldEvict func(size int, key K, value V) bool

	// OnEvicted is optionally called with each evicted entry.
	OnEvicted func(key K, value V)
}

type entry[K comparable, V any] struct {
	key   K
	value V
}

// UnorderedCache is a cache of key-value pairs with optional LRU eviction.
// It is safe for concurrent use.
type UnorderedCache[K comparable, V any] struct {
	cfg Config[K, V]

	mu struct {
		syncutil.Mutex
		ll *list.List
		m  map[K]*list.Element
	}
}

// NewUnorderedCache creates a new UnorderedCache backed by a hash map and an
// eviction list.
func NewUnorderedCache[K comparable, V any](cfg Config[K, V]) *UnorderedCache[K, V] {
	c := &UnorderedCache[K, V]{cfg: cfg}
	c.mu.ll = list.New()
	c.mu.m = make(map[K]*list.Element)
	return c
}

// Add adds a value to the cache, replacing any existing value for key.
func (c *UnorderedCache[K, V]) Add(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.mu.m[key]; ok {
		c.mu.ll.MoveToFront(e)
		e.Value.(*entry[K, V]).value = value
		return
	}
	c.mu.m[key] = c.mu.ll.PushFront(&entry[K, V]{key: key, value: value})

	if c.cfg.Policy == CacheNone || c.cfg.ShouldEvict == nil {
		return
	}
	for {
		back := c.mu.ll.Back()
		if back == nil {
			return
		}
		ent := back.Value.(*entry[K, V])
		if !c.cfg.ShouldEvict(c.mu.ll.Len(), ent.key, ent.value) {
			return
		}
		c.removeLocked(back)
	}
}

// Get looks up a key's value, marking it most recently used.
func (c *UnorderedCache[K, V]) Get(key K) (value V, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.mu.m[key]
	if !ok {
		return value, false
	}
	c.mu.ll.MoveToFront(e)
	return e.Value.(*entry[K, V]).value, true
}

// Del removes the provided key from the cache, if present.
func (c *UnorderedCache[K, V]) Del(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.mu.m[key]; ok {
		c.removeLocked(e)
	}
}

// Clear removes all entries from the cache.
func (c *UnorderedCache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.mu.ll.Len() > 0 {
		c.removeLocked(c.mu.ll.Back())
	}
}

// Len returns the number of cached entries.
func (c *UnorderedCache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mu.ll.Len()
}

func (c *UnorderedCache[K, V]) removeLocked(e *list.Element) {
	c.mu.AssertHeld()
	ent := e.Value.(*entry[K, V])
	c.mu.ll.Remove(e)
	delete(c.mu.m, ent.key)
	if c.cfg.OnEvicted != nil {
		c.cfg.OnEvicted(ent.key, ent.value)
	}
}
