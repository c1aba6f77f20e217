// Copyright 2026 The Acorn Authors.
//
// Use of this software is governed by the Apache License, Version 2.0
// included in the /LICENSE file.

package docstore

import (
	"context"
	"time"

	"github.com/acornlabs/acorn/pkg/document"
	"github.com/acornlabs/acorn/pkg/util/timeutil"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the prometheus instruments of an InstrumentedStore.
type Metrics struct {
	OpLatency *prometheus.HistogramVec
	OpErrors  *prometheus.CounterVec
}

// NewMetrics creates and registers the store metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		OpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "acorn",
			Subsystem: "docstore",
			Name:      "op_seconds",
			Help:      "Latency of document store operations.",
			Buckets:   prometheus.ExponentialBuckets(100e-6, 4, 10),
		}, []string{"op", "collection"}),
		OpErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "acorn",
			Subsystem: "docstore",
			Name:      "op_errors_total",
			Help:      "Failed document store operations.",
		}, []string{"op", "collection"}),
	}
	reg.MustRegister(m.OpLatency, m.OpErrors)
	return m
}

// InstrumentedStore wraps a Store, recording per-operation latency and error
// counts.
type InstrumentedStore struct {
	inner Store
	m     *Metrics
}

var _ Store = (*InstrumentedStore)(nil)

// NewInstrumentedStore wraps inner with the given metrics.
func NewInstrumentedStore(inner Store, m *Metrics) *InstrumentedStore {
	return &InstrumentedStore{inner: inner, m: m}
}

func (s *InstrumentedStore) observe(op string, c Collection, start time.Time, err error) {
	s.m.OpLatency.WithLabelValues(op, string(c)).Observe(timeutil.Since(start).Seconds())
	if err != nil {
		s.m.OpErrors.WithLabelValues(op, string(c)).Inc()
	}
}

// Find implements Store.
func (s *InstrumentedStore) Find(
	ctx context.Context, c Collection, id string, maxCacheAge time.Duration,
) (*document.Document, error) {
	start := timeutil.Now()
	doc, err := s.inner.Find(ctx, c, id, maxCacheAge)
	s.observe("find", c, start, err)
	return doc, err
}

// Query implements Store.
func (s *InstrumentedStore) Query(
	ctx context.Context, c Collection, fromKey, toKey string,
	indexedProperty string, startValue int64, limit int,
) ([]*document.Document, error) {
	start := timeutil.Now()
	docs, err := s.inner.Query(ctx, c, fromKey, toKey, indexedProperty, startValue, limit)
	s.observe("query", c, start, err)
	return docs, err
}

// Create implements Store.
func (s *InstrumentedStore) Create(ctx context.Context, c Collection, ops []*UpdateOp) (bool, error) {
	start := timeutil.Now()
	ok, err := s.inner.Create(ctx, c, ops)
	s.observe("create", c, start, err)
	return ok, err
}

// CreateOrUpdate implements Store.
func (s *InstrumentedStore) CreateOrUpdate(
	ctx context.Context, c Collection, op *UpdateOp,
) (*document.Document, error) {
	start := timeutil.Now()
	doc, err := s.inner.CreateOrUpdate(ctx, c, op)
	s.observe("createOrUpdate", c, start, err)
	return doc, err
}

// FindAndUpdate implements Store.
func (s *InstrumentedStore) FindAndUpdate(
	ctx context.Context, c Collection, op *UpdateOp,
) (*document.Document, error) {
	start := timeutil.Now()
	doc, err := s.inner.FindAndUpdate(ctx, c, op)
	s.observe("findAndUpdate", c, start, err)
	return doc, err
}

// Remove implements Store.
func (s *InstrumentedStore) Remove(ctx context.Context, c Collection, id string) error {
	start := timeutil.Now()
	err := s.inner.Remove(ctx, c, id)
	s.observe("remove", c, start, err)
	return err
}

// Invalidate implements Store.
func (s *InstrumentedStore) Invalidate(ctx context.Context, ids ...string) {
	s.inner.Invalidate(ctx, ids...)
}

// InvalidateAll implements Store.
func (s *InstrumentedStore) InvalidateAll(ctx context.Context) {
	s.inner.InvalidateAll(ctx)
}

// Close implements Store.
func (s *InstrumentedStore) Close(ctx context.Context) error {
	return s.inner.Close(ctx)
}
