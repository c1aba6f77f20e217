// Copyright 2026 The Acorn Authors.
//
// Use of this software is governed by the Apache License, Version 2.0
// included in the /LICENSE file.

package nodestore

import (
	"context"
	"sort"

	"github.com/acornlabs/acorn/pkg/docstore"
	"github.com/acornlabs/acorn/pkg/document"
)

// childBatchSize is the page size for child enumeration scans.
const childBatchSize = 100

// A NodeState is a node as visible at one revision: an immutable snapshot
// handle. Navigating from a NodeState stays within its revision.
type NodeState struct {
	ns     *DocumentNodeStore
	branch *Branch

	// Path and Rev identify the state; Rev is the snapshot revision, not
	// necessarily the revision that last changed this node.
	Path string
	Rev  document.Revision

	node *document.Node
}

// Root returns the current head snapshot.
func (ns *DocumentNodeStore) Root(ctx context.Context) (*NodeState, error) {
	return ns.GetNode(ctx, "/", ns.Head())
}

// GetNode returns the state of path at the given read revision. The returned
// state may not exist (see Exists); checkpoint retrieval and diffing read
// old revisions this way.
func (ns *DocumentNodeStore) GetNode(
	ctx context.Context, path string, rev document.Revision,
) (*NodeState, error) {
	node, err := ns.readNode(ctx, path, rev, nil)
	if err != nil {
		return nil, err
	}
	return &NodeState{ns: ns, Path: path, Rev: rev, node: node}, nil
}

// readNode resolves a document to its node state at rev, through the node
// cache for trunk reads. A nil node (path absent at rev) is cached too.
func (ns *DocumentNodeStore) readNode(
	ctx context.Context, path string, rev document.Revision, branch *Branch,
) (*document.Node, error) {
	key := nodeKey{path: path, rev: rev}
	if branch == nil {
		if node, ok := ns.nodes.Get(key); ok {
			return node, nil
		}
	}
	doc, err := ns.store.Find(ctx, docstore.Nodes, document.IDFromPath(path), ns.readMaxAge())
	if err != nil {
		return nil, err
	}
	var node *document.Node
	if doc != nil {
		node, err = doc.NodeAt(ctx, rev, ns.resolver(branch))
		if err != nil {
			return nil, err
		}
	}
	if branch == nil {
		ns.nodes.Add(key, node)
	}
	return node, nil
}

// Exists returns whether the node is present at the state's revision.
func (s *NodeState) Exists() bool { return s.node != nil }

// Property returns the named property's value at the state's revision.
func (s *NodeState) Property(name string) (document.Value, bool) {
	if s.node == nil {
		return document.Value{}, false
	}
	v, ok := s.node.Properties[name]
	return v, ok
}

// PropertyNames returns the node's property names in sorted order.
func (s *NodeState) PropertyNames() []string {
	if s.node == nil {
		return nil
	}
	names := make([]string, 0, len(s.node.Properties))
	for name := range s.node.Properties {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Child returns the state of the named child at this state's revision.
func (s *NodeState) Child(ctx context.Context, name string) (*NodeState, error) {
	path := document.Concat(s.Path, name)
	node, err := s.ns.readNode(ctx, path, s.Rev, s.branch)
	if err != nil {
		return nil, err
	}
	return &NodeState{ns: s.ns, branch: s.branch, Path: path, Rev: s.Rev, node: node}, nil
}

// ChildNames enumerates the names of the children existing at this state's
// revision, in sorted order. The scan pages through the contiguous id range
// all direct children share.
func (s *NodeState) ChildNames(ctx context.Context) ([]string, error) {
	if s.node == nil {
		return nil, nil
	}
	res := s.ns.resolver(s.branch)
	fromKey := document.KeyLowerLimit(s.Path)
	toKey := document.KeyUpperLimit(s.Path)
	var names []string
	for {
		docs, err := s.ns.store.Query(
			ctx, docstore.Nodes, fromKey, toKey, "", 0, childBatchSize)
		if err != nil {
			return nil, err
		}
		for _, doc := range docs {
			node, err := doc.NodeAt(ctx, s.Rev, res)
			if err != nil {
				return nil, err
			}
			if node != nil {
				names = append(names, document.Name(node.Path))
			}
		}
		if len(docs) < childBatchSize {
			return names, nil
		}
		fromKey = docs[len(docs)-1].ID
	}
}
