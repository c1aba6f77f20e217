// Copyright 2026 The Acorn Authors.
//
// Use of this software is governed by the Apache License, Version 2.0
// included in the /LICENSE file.

package stop

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStopperStopsTasks(t *testing.T) {
	s := NewStopper()
	running := make(chan struct{})
	done := make(chan struct{})

	err := s.RunAsyncTask(context.Background(), "worker", func(ctx context.Context) {
		close(running)
		<-s.ShouldQuiesce()
		close(done)
	})
	require.NoError(t, err)

	<-running
	s.Stop(context.Background())

	select {
	case <-done:
	default:
		t.Fatal("task did not observe quiescence before Stop returned")
	}
	require.Equal(t, 0, s.NumTasks())
}

func TestStopperRejectsNewTasks(t *testing.T) {
	s := NewStopper()
	s.Stop(context.Background())
	err := s.RunAsyncTask(context.Background(), "late", func(ctx context.Context) {
		t.Error("task ran after Stop")
	})
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestWithCancelOnQuiesce(t *testing.T) {
	s := NewStopper()
	ctx, cancel := s.WithCancelOnQuiesce(context.Background())
	defer cancel()

	s.Stop(context.Background())
	select {
	case <-ctx.Done():
	case <-time.After(10 * time.Second):
		t.Fatal("context not canceled on quiesce")
	}
}
