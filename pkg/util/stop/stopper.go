// Copyright 2026 The Acorn Authors.
//
// Use of this software is governed by the Apache License, Version 2.0
// included in the /LICENSE file.

// Package stop provides the Stopper, which coordinates the clean shutdown of
// a group of long-running workers.
package stop

import (
	"context"
	"sync"

	"github.com/acornlabs/acorn/pkg/util/syncutil"
	"github.com/cockroachdb/errors"
)

// ErrUnavailable indicates that the server is quiescing and is unable to
// process new work.
var ErrUnavailable = errors.New("node unavailable; try another peer")

// A Stopper provides control over the lifecycle of goroutines started
// through it via its RunAsyncTask method.
//
// When Stop is invoked, the Stopper first closes its quiescer channel, which
// workers can observe via ShouldQuiesce to gracefully shut down. Stop then
// blocks until all outstanding tasks have completed.
type Stopper struct {
	quiescer chan struct{} // Closed when quiescing
	stopped  chan struct{} // Closed when stopped completely

	mu struct {
		syncutil.Mutex
		quiescing bool
		numTasks  int
	}
	tasks sync.WaitGroup

	cancelsMu struct {
		syncutil.Mutex
		cancels []context.CancelFunc
	}
}

// NewStopper returns an instance of Stopper.
func NewStopper() *Stopper {
	return &Stopper{
		quiescer: make(chan struct{}),
		stopped:  make(chan struct{}),
	}
}

// RunAsyncTask runs function f in a goroutine. It returns ErrUnavailable if
// the Stopper is quiescing, in which case the function is not executed.
//
// The passed context is not related to the Stopper's lifetime; use
// WithCancelOnQuiesce if the task's context should be canceled when the
// Stopper quiesces.
func (s *Stopper) RunAsyncTask(ctx context.Context, taskName string, f func(context.Context)) error {
	if !s.runPrelude() {
		return ErrUnavailable
	}
	go func() {
		defer s.taskDone()
		f(ctx)
	}()
	return nil
}

func (s *Stopper) runPrelude() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mu.quiescing {
		return false
	}
	s.mu.numTasks++
	s.tasks.Add(1)
	return true
}

func (s *Stopper) taskDone() {
	s.mu.Lock()
	s.mu.numTasks--
	s.mu.Unlock()
	s.tasks.Done()
}

// NumTasks returns the number of active tasks.
func (s *Stopper) NumTasks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mu.numTasks
}

// WithCancelOnQuiesce returns a child context which is canceled when the
// Stopper begins to quiesce, along with its cancellation function.
func (s *Stopper) WithCancelOnQuiesce(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancelsMu.Lock()
	defer s.cancelsMu.Unlock()
	select {
	case <-s.quiescer:
		cancel()
	default:
		s.cancelsMu.cancels = append(s.cancelsMu.cancels, cancel)
	}
	return ctx, cancel
}

// ShouldQuiesce returns a channel which will be closed when Stop has been
// invoked. Tasks should select on this channel to gracefully shut down.
func (s *Stopper) ShouldQuiesce() <-chan struct{} {
	if s == nil {
		// A nil stopper will never quiesce.
		return nil
	}
	return s.quiescer
}

// IsStopped returns a channel which will be closed after Stop has completed.
func (s *Stopper) IsStopped() <-chan struct{} {
	if s == nil {
		return nil
	}
	return s.stopped
}

// Quiesce moves the stopper to the quiescing state and cancels all contexts
// derived via WithCancelOnQuiesce, but does not wait for tasks to drain.
func (s *Stopper) Quiesce(ctx context.Context) {
	s.mu.Lock()
	if !s.mu.quiescing {
		s.mu.quiescing = true
		close(s.quiescer)
	}
	s.mu.Unlock()

	s.cancelsMu.Lock()
	cancels := s.cancelsMu.cancels
	s.cancelsMu.cancels = nil
	s.cancelsMu.Unlock()
	for _, cancel := range cancels {
		cancel()
	}
}

// Stop signals all running tasks to quiesce and blocks until they have
// completed.
func (s *Stopper) Stop(ctx context.Context) {
	s.Quiesce(ctx)
	s.tasks.Wait()
	close(s.stopped)
}
