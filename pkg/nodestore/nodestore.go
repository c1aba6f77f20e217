// Copyright 2026 The Acorn Authors.
//
// Use of this software is governed by the Apache License, Version 2.0
// included in the /LICENSE file.

// Package nodestore implements the MVCC node store over the document-store
// protocol: snapshot reads, commits with a single-document atomic commit
// point, private branches with merge, document splitting and the background
// jobs that synchronize cluster nodes.
package nodestore

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/acornlabs/acorn/pkg/base"
	"github.com/acornlabs/acorn/pkg/docstore"
	"github.com/acornlabs/acorn/pkg/document"
	"github.com/acornlabs/acorn/pkg/util/cache"
	"github.com/acornlabs/acorn/pkg/util/log"
	"github.com/acornlabs/acorn/pkg/util/stop"
	"github.com/acornlabs/acorn/pkg/util/syncutil"
	"github.com/cockroachdb/errors"
)

// An Observer is notified when the store's head revision advances, either
// through a local merge or when the background read discovers changes from
// another cluster node.
type Observer func(head document.Revision)

// nodeKey keys the node cache. Node states are immutable per (path,
// revision), so entries never need invalidation; superseded revisions simply
// age out.
type nodeKey struct {
	path string
	rev  document.Revision
}

// DocumentNodeStore is one cluster node's view of the shared repository. All
// of its writes are stamped with the cluster id it holds a lease on.
type DocumentNodeStore struct {
	cfg     base.Config
	store   docstore.Store
	stopper *stop.Stopper
	gen     *document.Generator
	lease   *leaseManager

	// mergeMu serializes branch merges within this process.
	mergeMu syncutil.Mutex

	// collisions counts concurrent-change observations that did not amount
	// to a conflict. Diagnostic only.
	collisions atomic.Int64

	nodes *cache.UnorderedCache[nodeKey, *document.Node]

	mu struct {
		syncutil.Mutex
		head document.Revision
		// unsavedLastRevs holds _lastRev updates deferred to the background
		// write, keyed by path.
		unsavedLastRevs map[string]document.Revision
		// splitCandidates holds document ids to examine for splitting.
		splitCandidates map[string]struct{}
		// externalLastRevs is the last _lastRev vector observed on the root
		// document, used to detect foreign progress.
		externalLastRevs map[document.ClusterID]document.Revision
		observers        []Observer
	}
}

// New attaches to the backing store, acquiring a cluster id, creating the
// repository root if this is a fresh repository, and starting the background
// jobs on the given stopper.
func New(
	ctx context.Context, store docstore.Store, cfg base.Config, stopper *stop.Stopper,
) (*DocumentNodeStore, error) {
	cfg.SetDefaults()
	lease, err := acquireLease(ctx, store, cfg)
	if err != nil {
		return nil, err
	}
	ns := &DocumentNodeStore{
		cfg:     cfg,
		store:   store,
		stopper: stopper,
		gen:     document.NewGenerator(lease.id),
		lease:   lease,
	}
	ns.nodes = cache.NewUnorderedCache[nodeKey, *document.Node](cache.Config[nodeKey, *document.Node]{
		Policy: cache.CacheLRU,
		ShouldEvict: func(size int, _ nodeKey, _ *document.Node) bool {
			return size > cfg.NodeCacheSize
		},
	})
	ns.mu.unsavedLastRevs = make(map[string]document.Revision)
	ns.mu.splitCandidates = make(map[string]struct{})
	ns.mu.externalLastRevs = make(map[document.ClusterID]document.Revision)

	if err := ns.initRoot(ctx); err != nil {
		return nil, err
	}
	if err := ns.startBackgroundJobs(ctx); err != nil {
		return nil, err
	}
	log.Infof(ctx, "node store attached as cluster node %d, head %s",
		ns.ClusterID(), ns.Head())
	return ns, nil
}

// initRoot creates the repository root document on a fresh backing store and
// derives the initial head revision from it.
func (ns *DocumentNodeStore) initRoot(ctx context.Context) error {
	rev := ns.gen.Next()
	op := docstore.NewUpdateOp(document.IDFromPath("/"), true).
		SetMapEntry(document.FieldDeleted, rev, "false").
		SetMapEntry(document.FieldRevisions, rev, document.CommittedTag).
		SetMapEntry(document.FieldLastRev, document.LastRevKey(ns.ClusterID()), rev.String()).
		Max(document.FieldModified, rev.Timestamp/1000)
	created, err := ns.store.Create(ctx, docstore.Nodes, []*docstore.UpdateOp{op})
	if err != nil {
		return err
	}
	if created {
		log.Infof(ctx, "initialized repository root at %s", rev)
	}

	root, err := ns.store.Find(ctx, docstore.Nodes, document.IDFromPath("/"), 0)
	if err != nil {
		return err
	}
	if root == nil {
		return errors.Wrap(document.ErrCorrupt, "repository root document missing")
	}
	var head document.Revision
	for r, tag := range root.SubMaps[document.FieldRevisions] {
		if !document.IsCommitted(tag) {
			continue
		}
		commitRev, err := document.ResolveCommitRevision(r, tag)
		if err != nil {
			return err
		}
		if head.Less(commitRev) {
			head = commitRev
		}
	}
	lastRevs, err := root.LastRevs()
	if err != nil {
		return err
	}
	ns.mu.Lock()
	defer ns.mu.Unlock()
	for id, r := range lastRevs {
		ns.mu.externalLastRevs[id] = r
		if head.Less(r) {
			head = r
		}
	}
	ns.mu.head = head
	return nil
}

// ClusterID returns the cluster id this store writes with.
func (ns *DocumentNodeStore) ClusterID() document.ClusterID {
	return ns.gen.ClusterID()
}

// Head returns the current head revision: the snapshot new readers get.
func (ns *DocumentNodeStore) Head() document.Revision {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	return ns.mu.head
}

// Collisions returns the number of concurrent uncommitted changes observed
// by this store's commits.
func (ns *DocumentNodeStore) Collisions() int64 {
	return ns.collisions.Load()
}

// AddObserver registers fn to be called whenever the head advances.
func (ns *DocumentNodeStore) AddObserver(fn Observer) {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	ns.mu.observers = append(ns.mu.observers, fn)
}

// readMaxAge bounds cached document reads on the read path. Remote changes
// only become visible through the background read, so serving reads from a
// cache no staler than one poll interval never loses visibility the reader
// was promised.
//
// The other direction is looser: a local commit advances the head, and a
// foreign change committed since the last poll compares below the new head,
// so it can surface up to one interval before the background read observes
// it. Tightening that would take per-revision seen-at tracking; an early
// committed change is harmless, so the lag stays one-sided by choice.
func (ns *DocumentNodeStore) readMaxAge() time.Duration {
	return ns.cfg.BackgroundReadInterval
}

// setHead advances the head under mu and returns the observers to notify,
// or nil if head did not move.
func (ns *DocumentNodeStore) setHead(rev document.Revision) []Observer {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	if !ns.mu.head.Less(rev) {
		return nil
	}
	ns.mu.head = rev
	return append([]Observer(nil), ns.mu.observers...)
}

func notifyAll(observers []Observer, head document.Revision) {
	for _, fn := range observers {
		fn(head)
	}
}

// commitApplied records the bookkeeping of a successful trunk or branch
// commit: deferred _lastRev writes for the touched paths and their
// ancestors, split candidates, and cache invalidation.
func (ns *DocumentNodeStore) commitApplied(
	ctx context.Context, rev document.Revision, paths []string,
) {
	trunkRev := rev.AsTrunk()
	ids := make([]string, 0, len(paths))
	ns.mu.Lock()
	for _, path := range paths {
		ids = append(ids, document.IDFromPath(path))
		ns.mu.splitCandidates[document.IDFromPath(path)] = struct{}{}
		if rev.Branch {
			// _lastRev only ever names changes every reader can see. Branch
			// commits are recorded here again at their merge revision.
			continue
		}
		for p := path; ; p = document.ParentPath(p) {
			if cur, ok := ns.mu.unsavedLastRevs[p]; !ok || cur.Less(trunkRev) {
				ns.mu.unsavedLastRevs[p] = trunkRev
			}
			if p == "/" {
				break
			}
		}
	}
	ns.mu.Unlock()
	ns.store.Invalidate(ctx, ids...)

	if !rev.Branch {
		notifyAll(ns.setHead(trunkRev), trunkRev)
	}
}

// Dispose flushes deferred writes and releases the cluster-id lease. Stop
// the stopper first so no background job races the final flush.
func (ns *DocumentNodeStore) Dispose(ctx context.Context) error {
	if err := ns.runBackgroundWrite(ctx); err != nil {
		log.Warningf(ctx, "final background write: %v", err)
	}
	return ns.lease.release(ctx)
}
