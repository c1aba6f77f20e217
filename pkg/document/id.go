// Copyright 2026 The Acorn Authors.
//
// Use of this software is governed by the Apache License, Version 2.0
// included in the /LICENSE file.

package document

import (
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

// Document ids are "<depth>:<path>" where depth is the number of path
// elements; the root document has id "0:/". Keying by depth first means all
// direct children of a path form one contiguous id range, so child
// enumeration is a plain range scan without a secondary index.

// Depth returns the number of elements in path ("/" has depth 0).
func Depth(path string) int {
	if path == "/" {
		return 0
	}
	return strings.Count(path, "/")
}

// IDFromPath returns the document id for an absolute path.
func IDFromPath(path string) string {
	return strconv.Itoa(Depth(path)) + ":" + path
}

// PathFromID returns the path encoded in a document id.
func PathFromID(id string) (string, error) {
	i := strings.IndexByte(id, ':')
	if i < 0 {
		return "", errors.Wrapf(ErrCorrupt, "malformed document id %q", id)
	}
	depth, err := strconv.Atoi(id[:i])
	if err != nil {
		return "", errors.Wrapf(ErrCorrupt, "malformed document id %q", id)
	}
	path := id[i+1:]
	if !strings.HasPrefix(path, "/") || Depth(path) != depth {
		return "", errors.Wrapf(ErrCorrupt, "malformed document id %q", id)
	}
	return path, nil
}

// Concat joins a parent path and a child name.
func Concat(path, name string) string {
	if path == "/" {
		return "/" + name
	}
	return path + "/" + name
}

// ParentPath returns the parent of path, or "/" for the root itself.
func ParentPath(path string) string {
	if path == "/" {
		return "/"
	}
	i := strings.LastIndexByte(path, '/')
	if i == 0 {
		return "/"
	}
	return path[:i]
}

// Name returns the last element of path ("" for the root).
func Name(path string) string {
	if path == "/" {
		return ""
	}
	return path[strings.LastIndexByte(path, '/')+1:]
}

// PreviousDocID returns the id of the previous document holding split-off
// history of the given path with the given upper-bound revision.
func PreviousDocID(path string, high Revision) string {
	return strconv.Itoa(Depth(path)+1) + ":p" + Concat(path, high.String())
}

// KeyLowerLimit returns the smallest key strictly below the id of every
// direct child of path. Derived from the id of a child named "a" with the
// name dropped, leaving the shared prefix.
func KeyLowerLimit(path string) string {
	id := IDFromPath(Concat(path, "a"))
	return id[:len(id)-1]
}

// KeyUpperLimit returns a key strictly above the id of every direct child of
// path. The shared child prefix ends in '/'; replacing that with '0'
// (the character after '/') bounds the range from above.
func KeyUpperLimit(path string) string {
	id := IDFromPath(Concat(path, "z"))
	id = id[:len(id)-1]
	return id[:len(id)-1] + "0"
}

// EscapePropertyName escapes a property name so it cannot collide with the
// document metadata fields or the backing store's key syntax: names starting
// with '_' or '$' get a leading '_', a literal '.' becomes `\d`, and a
// literal '\' becomes `\\`.
func EscapePropertyName(name string) string {
	var sb strings.Builder
	if strings.HasPrefix(name, "_") || strings.HasPrefix(name, "$") {
		sb.WriteByte('_')
	}
	for i := 0; i < len(name); i++ {
		switch name[i] {
		case '.':
			sb.WriteString(`\d`)
		case '\\':
			sb.WriteString(`\\`)
		default:
			sb.WriteByte(name[i])
		}
	}
	return sb.String()
}

// UnescapePropertyName inverts EscapePropertyName.
func UnescapePropertyName(escaped string) (string, error) {
	s := escaped
	if strings.HasPrefix(s, "__") || strings.HasPrefix(s, "_$") {
		s = s[1:]
	}
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' {
			sb.WriteByte(s[i])
			continue
		}
		i++
		if i >= len(s) {
			return "", errors.Wrapf(ErrCorrupt, "malformed property name %q", escaped)
		}
		switch s[i] {
		case 'd':
			sb.WriteByte('.')
		case '\\':
			sb.WriteByte('\\')
		default:
			return "", errors.Wrapf(ErrCorrupt, "malformed property name %q", escaped)
		}
	}
	return sb.String(), nil
}
