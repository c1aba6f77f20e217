// Copyright 2026 The Acorn Authors.
//
// Use of this software is governed by the Apache License, Version 2.0
// included in the /LICENSE file.

// Package document implements the versioned per-path document model: the
// Revision identifier, the document id scheme, the tagged value union, and
// the NodeDocument with its embedded MVCC history.
package document

import (
	"strconv"
	"strings"

	"github.com/acornlabs/acorn/pkg/util/syncutil"
	"github.com/acornlabs/acorn/pkg/util/timeutil"
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/redact"
)

var _ redact.SafeValue = Revision{}

// ClusterID identifies one process sharing the backing store with others.
// Ids are small integers handed out by the cluster-id lease.
type ClusterID int

// A Revision identifies a single change. Revisions are totally ordered
// across the cluster: by timestamp, then by counter, then by cluster id.
//
// The cluster-id tie break means that two changes made by different nodes in
// the same millisecond are ordered arbitrarily rather than causally. This is
// a known, bounded limitation: visibility of remote changes is gated on the
// background read anyway, so the anomaly window is at most one poll
// interval under healthy clocks.
type Revision struct {
	// Timestamp is milliseconds since the Unix epoch.
	Timestamp int64
	// Counter disambiguates revisions created within the same millisecond by
	// the same process.
	Counter int
	// ClusterID is the id of the cluster node that created the revision.
	ClusterID ClusterID
	// Branch marks a revision created for an unmerged branch commit.
	Branch bool
}

// Compare returns -1, 0 or +1 according to the total order of revisions.
// The branch flag does not participate in the order.
func (r Revision) Compare(o Revision) int {
	if r.Timestamp != o.Timestamp {
		if r.Timestamp < o.Timestamp {
			return -1
		}
		return 1
	}
	if r.Counter != o.Counter {
		if r.Counter < o.Counter {
			return -1
		}
		return 1
	}
	if r.ClusterID != o.ClusterID {
		if r.ClusterID < o.ClusterID {
			return -1
		}
		return 1
	}
	return 0
}

// Less returns whether r orders strictly before o.
func (r Revision) Less(o Revision) bool { return r.Compare(o) < 0 }

// IsZero returns whether r is the zero revision.
func (r Revision) IsZero() bool { return r == Revision{} }

// AsTrunk returns the revision with the branch flag cleared.
func (r Revision) AsTrunk() Revision {
	r.Branch = false
	return r
}

// AsBranch returns the revision with the branch flag set.
func (r Revision) AsBranch() Revision {
	r.Branch = true
	return r
}

// String returns the canonical form, e.g. "r18f2a44c1b0-2-1" or, for a
// branch revision, "br18f2a44c1b0-2-1". All three numeric fields are lower
// case hex.
func (r Revision) String() string {
	var sb strings.Builder
	if r.Branch {
		sb.WriteByte('b')
	}
	sb.WriteByte('r')
	sb.WriteString(strconv.FormatInt(r.Timestamp, 16))
	sb.WriteByte('-')
	sb.WriteString(strconv.FormatInt(int64(r.Counter), 16))
	sb.WriteByte('-')
	sb.WriteString(strconv.FormatInt(int64(r.ClusterID), 16))
	return sb.String()
}

// SafeValue implements redact.SafeValue. Revisions carry no user data, so
// they appear unredacted in logs.
func (r Revision) SafeValue() {}

// ParseRevision parses the canonical string form. Malformed input is an
// error; revision strings come out of stored documents, so a parse failure
// indicates data corruption and is never ignored.
func ParseRevision(s string) (Revision, error) {
	orig := s
	var r Revision
	if strings.HasPrefix(s, "b") {
		r.Branch = true
		s = s[1:]
	}
	if !strings.HasPrefix(s, "r") {
		return Revision{}, errors.Wrapf(ErrCorrupt, "malformed revision %q", orig)
	}
	s = s[1:]
	parts := strings.Split(s, "-")
	if len(parts) != 3 {
		return Revision{}, errors.Wrapf(ErrCorrupt, "malformed revision %q", orig)
	}
	ts, err := strconv.ParseInt(parts[0], 16, 64)
	if err != nil {
		return Revision{}, errors.Wrapf(ErrCorrupt, "malformed revision %q", orig)
	}
	counter, err := strconv.ParseInt(parts[1], 16, 32)
	if err != nil {
		return Revision{}, errors.Wrapf(ErrCorrupt, "malformed revision %q", orig)
	}
	cid, err := strconv.ParseInt(parts[2], 16, 32)
	if err != nil {
		return Revision{}, errors.Wrapf(ErrCorrupt, "malformed revision %q", orig)
	}
	r.Timestamp = ts
	r.Counter = int(counter)
	r.ClusterID = ClusterID(cid)
	return r, nil
}

// LastRevKey returns the synthetic revision used as the _lastRev sub-map key
// for a cluster id.
func LastRevKey(id ClusterID) Revision {
	return Revision{ClusterID: id}
}

// A Generator produces revisions for one cluster node. Revisions from one
// Generator are strictly monotonic, even when the wall clock repeats a
// millisecond or briefly runs backwards.
type Generator struct {
	clusterID ClusterID
	nowMillis func() int64

	mu struct {
		syncutil.Mutex
		lastTimestamp int64
		counter       int
	}
}

// NewGenerator creates a Generator for the given cluster id reading the
// system clock. The clock source can be overridden for tests via
// NewGeneratorWithClock.
func NewGenerator(id ClusterID) *Generator {
	return NewGeneratorWithClock(id, func() int64 {
		return timeutil.ToUnixMillis(timeutil.Now())
	})
}

// NewGeneratorWithClock creates a Generator with an injected millisecond
// clock.
func NewGeneratorWithClock(id ClusterID, nowMillis func() int64) *Generator {
	return &Generator{clusterID: id, nowMillis: nowMillis}
}

// ClusterID returns the cluster id revisions are stamped with.
func (g *Generator) ClusterID() ClusterID { return g.clusterID }

// Next returns a new trunk revision, strictly greater than all revisions
// previously returned by this Generator.
func (g *Generator) Next() Revision {
	return g.next(false)
}

// NextBranch returns a new branch revision.
func (g *Generator) NextBranch() Revision {
	return g.next(true)
}

func (g *Generator) next(branch bool) Revision {
	now := g.nowMillis()
	g.mu.Lock()
	defer g.mu.Unlock()
	if now > g.mu.lastTimestamp {
		g.mu.lastTimestamp = now
		g.mu.counter = 0
	} else {
		// Clock stalled or ran backwards; keep the old timestamp and bump the
		// counter to preserve monotonicity.
		g.mu.counter++
	}
	return Revision{
		Timestamp: g.mu.lastTimestamp,
		Counter:   g.mu.counter,
		ClusterID: g.clusterID,
		Branch:    branch,
	}
}
