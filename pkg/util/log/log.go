// Copyright 2026 The Acorn Authors.
//
// Use of this software is governed by the Apache License, Version 2.0
// included in the /LICENSE file.

// Package log provides leveled, context-aware logging. Log tags attached to
// a context via logtags.AddTag are rendered as a bracketed prefix on every
// entry produced with that context.
package log

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"sync/atomic"

	"github.com/acornlabs/acorn/pkg/util/syncutil"
	"github.com/acornlabs/acorn/pkg/util/timeutil"
	"github.com/cockroachdb/logtags"
)

// Severity identifies the sort of log: info, warning or error.
type Severity int

const (
	// SeverityInfo is used for informational messages.
	SeverityInfo Severity = iota
	// SeverityWarning is used for situations which may require special handling.
	SeverityWarning
	// SeverityError is used for errors that should definitely be noted.
	SeverityError
	// SeverityFatal logs and then calls exitFunc(255).
	SeverityFatal
)

var severityChar = [...]byte{'I', 'W', 'E', 'F'}

var logging struct {
	mu syncutil.Mutex
	w  io.Writer
}

var verbosity int32

// exitFunc is overridable by tests exercising Fatalf.
var exitFunc = os.Exit

func init() {
	logging.w = os.Stderr
}

// SetOutput redirects log output to w and returns the previous writer.
func SetOutput(w io.Writer) io.Writer {
	logging.mu.Lock()
	defer logging.mu.Unlock()
	prev := logging.w
	logging.w = w
	return prev
}

// SetVerbosity sets the level below which VEventf calls produce output.
func SetVerbosity(level int) {
	atomic.StoreInt32(&verbosity, int32(level))
}

// V returns whether verbose events at the given level are being logged.
func V(level int) bool {
	return int(atomic.LoadInt32(&verbosity)) >= level
}

// makeMessage renders the context's log tags followed by the formatted
// message.
func makeMessage(ctx context.Context, format string, args []interface{}) string {
	var buf bytes.Buffer
	if b := logtags.FromContext(ctx); b != nil {
		tags := b.Get()
		if len(tags) > 0 {
			buf.WriteString("[")
			for i := range tags {
				if i > 0 {
					buf.WriteString(",")
				}
				key := tags[i].Key()
				buf.WriteString(key)
				if v := tags[i].Value(); v != nil && v != "" {
					// Single-character tag names read fine without a separator.
					if len(key) > 1 {
						buf.WriteString("=")
					}
					fmt.Fprint(&buf, v)
				}
			}
			buf.WriteString("] ")
		}
	}
	if len(format) == 0 {
		fmt.Fprint(&buf, args...)
	} else {
		fmt.Fprintf(&buf, format, args...)
	}
	return buf.String()
}

func addStructured(ctx context.Context, s Severity, depth int, format string, args []interface{}) {
	if ctx == nil {
		panic("nil context")
	}
	file, line := caller(depth + 1)
	msg := makeMessage(ctx, format, args)

	now := timeutil.Now()
	logging.mu.Lock()
	fmt.Fprintf(logging.w, "%c%s %s:%d  %s\n",
		severityChar[s], now.Format("060102 15:04:05.000000"), file, line, msg)
	logging.mu.Unlock()

	if s == SeverityFatal {
		exitFunc(255)
	}
}

func caller(depth int) (file string, line int) {
	_, file, line, ok := runtime.Caller(depth + 1)
	if !ok {
		return "???", 0
	}
	if i := strings.LastIndexByte(file, '/'); i >= 0 {
		file = file[i+1:]
	}
	return file, line
}

// Infof logs to the INFO level.
func Infof(ctx context.Context, format string, args ...interface{}) {
	addStructured(ctx, SeverityInfo, 1, format, args)
}

// Warningf logs to the WARNING level.
func Warningf(ctx context.Context, format string, args ...interface{}) {
	addStructured(ctx, SeverityWarning, 1, format, args)
}

// Errorf logs to the ERROR level.
func Errorf(ctx context.Context, format string, args ...interface{}) {
	addStructured(ctx, SeverityError, 1, format, args)
}

// Fatalf logs to the ERROR level and then terminates the process.
func Fatalf(ctx context.Context, format string, args ...interface{}) {
	addStructured(ctx, SeverityFatal, 1, format, args)
}

// VEventf logs to the INFO level when the verbosity is at or above the given
// level.
func VEventf(ctx context.Context, level int, format string, args ...interface{}) {
	if V(level) {
		addStructured(ctx, SeverityInfo, 1, format, args)
	}
}
