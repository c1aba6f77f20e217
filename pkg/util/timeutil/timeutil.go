// Copyright 2026 The Acorn Authors.
//
// Use of this software is governed by the Apache License, Version 2.0
// included in the /LICENSE file.

package timeutil

import "time"

// Now returns the current UTC time.
//
// All code in this repository reads the clock through this function (or
// through an injected clock built on it) instead of calling time.Now
// directly, so that tests can reason about a single clock source.
func Now() time.Time {
	return time.Now().UTC()
}

// Since returns the time elapsed since t.
func Since(t time.Time) time.Duration {
	return Now().Sub(t)
}

// Until returns the duration until t.
func Until(t time.Time) time.Duration {
	return t.Sub(Now())
}

// ToUnixMillis returns t as milliseconds since the Unix epoch.
func ToUnixMillis(t time.Time) int64 {
	return t.UnixNano() / int64(time.Millisecond)
}

// FromUnixMillis returns the UTC time corresponding to the given
// milliseconds since the Unix epoch.
func FromUnixMillis(ms int64) time.Time {
	return time.Unix(ms/1000, (ms%1000)*int64(time.Millisecond)).UTC()
}
