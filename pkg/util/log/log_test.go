// Copyright 2026 The Acorn Authors.
//
// Use of this software is governed by the Apache License, Version 2.0
// included in the /LICENSE file.

package log

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/cockroachdb/logtags"
)

func TestMakeMessageRendersTags(t *testing.T) {
	ctx := context.Background()
	ctx = logtags.AddTag(ctx, "n", 3)
	ctx = logtags.AddTag(ctx, "job", "bg-read")

	msg := makeMessage(ctx, "tick %d", []interface{}{7})
	if expected := "[n3,job=bg-read] tick 7"; msg != expected {
		t.Errorf("got %q, want %q", msg, expected)
	}
}

func TestSeverityOutput(t *testing.T) {
	var buf bytes.Buffer
	defer SetOutput(SetOutput(&buf))

	ctx := logtags.AddTag(context.Background(), "store", 1)
	Infof(ctx, "hello %s", "world")
	Warningf(ctx, "watch out")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %q", len(lines), buf.String())
	}
	if !strings.HasPrefix(lines[0], "I") || !strings.Contains(lines[0], "[store1] hello world") {
		t.Errorf("unexpected info line %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "W") || !strings.Contains(lines[1], "watch out") {
		t.Errorf("unexpected warning line %q", lines[1])
	}
}

func TestVerbosityGate(t *testing.T) {
	var buf bytes.Buffer
	defer SetOutput(SetOutput(&buf))
	defer SetVerbosity(0)

	ctx := context.Background()
	VEventf(ctx, 2, "invisible")
	if buf.Len() != 0 {
		t.Fatalf("unexpected output at verbosity 0: %q", buf.String())
	}
	SetVerbosity(2)
	VEventf(ctx, 2, "visible")
	if !strings.Contains(buf.String(), "visible") {
		t.Fatalf("expected output at verbosity 2, got %q", buf.String())
	}
}
