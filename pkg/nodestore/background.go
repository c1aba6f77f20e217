// Copyright 2026 The Acorn Authors.
//
// Use of this software is governed by the Apache License, Version 2.0
// included in the /LICENSE file.

package nodestore

import (
	"context"
	"sort"
	"time"

	"github.com/acornlabs/acorn/pkg/docstore"
	"github.com/acornlabs/acorn/pkg/document"
	"github.com/acornlabs/acorn/pkg/util/log"
	"github.com/acornlabs/acorn/pkg/util/timeutil"
	"github.com/cockroachdb/logtags"
	"github.com/dustin/go-humanize"
)

// startBackgroundJobs launches the periodic workers on the stopper: the
// deferred-write flush, the external-change poll and the lease renewal.
func (ns *DocumentNodeStore) startBackgroundJobs(ctx context.Context) error {
	bgCtx := logtags.AddTag(context.Background(), "n", int(ns.ClusterID()))
	bgCtx, _ = ns.stopper.WithCancelOnQuiesce(bgCtx)

	jobs := []struct {
		name     string
		interval time.Duration
		run      func(context.Context) error
	}{
		{"background-write", ns.cfg.BackgroundWriteInterval, ns.runBackgroundWrite},
		{"background-read", ns.cfg.BackgroundReadInterval, ns.runBackgroundRead},
		{"lease-renew", ns.cfg.LeaseRenewInterval, ns.lease.renew},
	}
	for _, job := range jobs {
		job := job
		jobCtx := logtags.AddTag(bgCtx, "job", job.name)
		if err := ns.stopper.RunAsyncTask(jobCtx, job.name, func(ctx context.Context) {
			var t timeutil.Timer
			defer t.Stop()
			for {
				t.Reset(job.interval)
				select {
				case <-t.C:
					t.Read = true
					if err := job.run(ctx); err != nil {
						log.Warningf(ctx, "%v", err)
					}
				case <-ns.stopper.ShouldQuiesce():
					return
				}
			}
		}); err != nil {
			return err
		}
	}
	return nil
}

// runBackgroundWrite flushes the deferred _lastRev updates accumulated by
// commits, then examines the split candidates. Paths flush deepest first, so
// a _lastRev observed on the root implies the whole subtree below it is
// flushed; the background read on other nodes relies on that.
func (ns *DocumentNodeStore) runBackgroundWrite(ctx context.Context) error {
	ns.mu.Lock()
	pending := ns.mu.unsavedLastRevs
	ns.mu.unsavedLastRevs = make(map[string]document.Revision)
	candidates := ns.mu.splitCandidates
	ns.mu.splitCandidates = make(map[string]struct{})
	ns.mu.Unlock()

	paths := make([]string, 0, len(pending))
	for path := range pending {
		paths = append(paths, path)
	}
	sort.Slice(paths, func(i, j int) bool {
		di, dj := document.Depth(paths[i]), document.Depth(paths[j])
		if di != dj {
			return di > dj
		}
		return paths[i] < paths[j]
	})

	for _, path := range paths {
		rev := pending[path]
		op := docstore.NewUpdateOp(document.IDFromPath(path), false).
			SetMapEntry(document.FieldLastRev, document.LastRevKey(ns.ClusterID()), rev.String()).
			Max(document.FieldModified, rev.Timestamp/1000)
		before, err := ns.store.FindAndUpdate(ctx, docstore.Nodes, op)
		if err != nil {
			// Put the unflushed remainder back for the next round.
			ns.requeueLastRevs(pending, paths, path)
			return err
		}
		if before == nil {
			log.Warningf(ctx, "document for %s vanished before _lastRev flush", path)
		}
	}

	for id := range candidates {
		if err := ns.maybeSplit(ctx, id); err != nil {
			log.Warningf(ctx, "splitting %s: %v", id, err)
		}
	}
	return nil
}

// requeueLastRevs returns the not-yet-flushed tail (from failedPath on) to
// the pending map, keeping newer revisions recorded meanwhile.
func (ns *DocumentNodeStore) requeueLastRevs(
	pending map[string]document.Revision, paths []string, failedPath string,
) {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	start := 0
	for i, p := range paths {
		if p == failedPath {
			start = i
			break
		}
	}
	for _, path := range paths[start:] {
		rev := pending[path]
		if cur, ok := ns.mu.unsavedLastRevs[path]; !ok || cur.Less(rev) {
			ns.mu.unsavedLastRevs[path] = rev
		}
	}
}

// maybeSplit moves a document's old committed history to a previous document
// when it exceeds the configured thresholds. The previous document is
// written first; only the conditional update that strips the moved entries
// and records the _prev range makes it reachable.
func (ns *DocumentNodeStore) maybeSplit(ctx context.Context, id string) error {
	doc, err := ns.store.Find(ctx, docstore.Nodes, id, 0)
	if err != nil {
		return err
	}
	if doc == nil {
		return nil
	}
	sp, err := document.PlanSplit(ctx, doc, ns.Head(),
		ns.cfg.SplitMaxRevisions, ns.cfg.SplitMaxSize, ns.resolver(nil))
	if err != nil || sp == nil {
		return err
	}

	prevOp := docstore.NewUpdateOp(sp.Prev.ID, true)
	for field, m := range sp.Prev.SubMaps {
		for rev, val := range m {
			prevOp.SetMapEntry(field, rev, val)
		}
	}
	// An existing previous document is a completed first half of an earlier
	// interrupted split; stripping the main document finishes it.
	if _, err := ns.store.Create(ctx, docstore.Nodes, []*docstore.UpdateOp{prevOp}); err != nil {
		return err
	}

	strip := docstore.NewUpdateOp(id, false).
		EqualsScalar(document.FieldModCount, document.IntValue(doc.ModCount())).
		SetMapEntry(document.FieldPrev, sp.High, sp.Low.String())
	for field, revs := range sp.Moved {
		for _, rev := range revs {
			strip.RemoveMapEntry(field, rev)
		}
	}
	before, err := ns.store.FindAndUpdate(ctx, docstore.Nodes, strip)
	if err != nil {
		return err
	}
	if before == nil {
		// The document changed under us; try again next round.
		ns.mu.Lock()
		ns.mu.splitCandidates[id] = struct{}{}
		ns.mu.Unlock()
		return nil
	}
	log.Infof(ctx, "split %d revisions [%s, %s] of %s (%s) into %s",
		len(sp.Moved[document.FieldRevisions]), sp.Low, sp.High, id,
		humanize.IBytes(uint64(doc.MemSize())), sp.Prev.ID)
	ns.store.Invalidate(ctx, id)
	return nil
}

// runBackgroundRead polls the root document's _lastRev vector for progress
// by other cluster nodes. Foreign progress advances the head, drops cached
// documents and notifies observers; until the next poll, remote changes are
// invisible, which bounds the visibility lag by the poll interval.
func (ns *DocumentNodeStore) runBackgroundRead(ctx context.Context) error {
	root, err := ns.store.Find(ctx, docstore.Nodes, document.IDFromPath("/"), 0)
	if err != nil {
		return err
	}
	if root == nil {
		return nil
	}
	lastRevs, err := root.LastRevs()
	if err != nil {
		return err
	}

	var newHead document.Revision
	changed := false
	ns.mu.Lock()
	for id, rev := range lastRevs {
		if id == ns.ClusterID() {
			continue
		}
		if cur, ok := ns.mu.externalLastRevs[id]; !ok || cur.Less(rev) {
			ns.mu.externalLastRevs[id] = rev
			changed = true
		}
	}
	if changed {
		newHead = ns.mu.head
		for _, rev := range ns.mu.externalLastRevs {
			if newHead.Less(rev) {
				newHead = rev
			}
		}
	}
	ns.mu.Unlock()

	if !changed {
		return nil
	}
	log.VEventf(ctx, 1, "external changes, head advancing to %s", newHead)
	ns.store.InvalidateAll(ctx)
	notifyAll(ns.setHead(newHead), newHead)
	return nil
}
