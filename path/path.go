// Copyright 2016 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package path validates and classifies the filesystem-like paths that
// address nodes in the Apteryx tree, and matches watcher/provider patterns
// against them.
package path // import "apteryx.io/path"

import (
	"strings"

	"apteryx.io/errors"
)

// Kind classifies a path or pattern string.
type Kind int

// The kinds of path a string can be.
const (
	// Invalid means the string did not parse as any kind of path.
	Invalid Kind = iota
	// Root refers to the root directory. The empty string, "/", "*" and
	// "/*" are all equivalent to the root.
	Root
	// Exact identifies a single node: no trailing slash, no wildcard.
	Exact
	// Directory is a path ending in "/", matching direct children for
	// search and for one-level watcher patterns.
	Directory
	// Wildcard is a path ending in "/*", matching any descendant.
	Wildcard
	// Malformed is returned only by ClassifyPattern: a '*' appears
	// somewhere other than as the final segment, or the pattern does not
	// start with "/" or contains "//". Such a pattern is accepted for
	// registration but never matches anything.
	Malformed
)

var errInvalidPath = errors.E(errors.Invalid, errors.Str("invalid path"))

// Validate classifies a path string strictly. It is used for paths that
// name real operations (set, get, search, prune): a '*' anywhere other
// than the final segment is rejected outright, rather than merely failing
// to match (that leniency is reserved for watcher/provider patterns; see
// ClassifyPattern).
func Validate(p string) (Kind, error) {
	if isRootForm(p) {
		return Root, nil
	}
	if !strings.HasPrefix(p, "/") {
		return Invalid, errInvalidPath
	}
	if strings.Contains(p, "//") {
		return Invalid, errInvalidPath
	}
	if idx := strings.IndexByte(p, '*'); idx >= 0 {
		if idx != len(p)-1 || p[idx-1] != '/' {
			return Invalid, errInvalidPath
		}
		return Wildcard, nil
	}
	if strings.HasSuffix(p, "/") {
		return Directory, nil
	}
	return Exact, nil
}

// ValidateExact validates a path for set, get, and prune: it must name a
// single node, with no trailing slash and no wildcard.
func ValidateExact(p string) error {
	k, err := Validate(p)
	if err != nil {
		return err
	}
	if k != Exact {
		return errInvalidPath
	}
	return nil
}

// ValidateSearch validates a path for search: it must be the root or end
// in a slash. This strict form is intentional: callers that pass a bare
// path to search receive an error rather than a silent root search.
func ValidateSearch(p string) error {
	k, err := Validate(p)
	if err != nil {
		return err
	}
	if k != Root && k != Directory {
		return errInvalidPath
	}
	return nil
}

// ClassifyPattern classifies a watcher or provider registration pattern.
// Unlike Validate, it never fails: a '*' that is not the trailing segment
// classifies as Malformed rather than Invalid, because such a pattern is
// legal to register (it simply never matches any path). Preserve this
// behavior rather than generalizing it; tests assert it explicitly.
func ClassifyPattern(p string) Kind {
	if isRootForm(p) {
		return Root
	}
	if idx := strings.IndexByte(p, '*'); idx >= 0 {
		if idx == len(p)-1 && idx > 0 && p[idx-1] == '/' {
			return Wildcard
		}
		return Malformed
	}
	if !strings.HasPrefix(p, "/") || strings.Contains(p, "//") {
		return Malformed
	}
	if strings.HasSuffix(p, "/") {
		return Directory
	}
	return Exact
}

func isRootForm(p string) bool {
	return p == "" || p == "/" || p == "*" || p == "/*"
}

// Segments splits a path into its '/'-separated elements, ignoring a
// leading and/or trailing slash.
func Segments(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

// Dir returns p with any trailing "/" or "/*" removed, leaving the
// directory the pattern or search path refers to ("" for the root).
func Dir(p string) string {
	switch {
	case p == "" || p == "/" || p == "*" || p == "/*":
		return ""
	case strings.HasSuffix(p, "/*"):
		return strings.TrimSuffix(p, "*")[:len(p)-2]
	case strings.HasSuffix(p, "/"):
		return strings.TrimSuffix(p, "/")
	default:
		return p
	}
}

// isDirectChild reports whether path names a direct child of dir (exactly
// one more path segment than dir).
func isDirectChild(dir, path string) bool {
	dirSegs := Segments(dir)
	pathSegs := Segments(path)
	if len(pathSegs) != len(dirSegs)+1 {
		return false
	}
	for i, s := range dirSegs {
		if pathSegs[i] != s {
			return false
		}
	}
	return true
}

// Matches reports whether path matches the watcher/provider pattern.
//
//   - An exact pattern matches only the identical path.
//   - A directory pattern "P/" matches any direct child of P.
//   - A wildcard-suffix pattern "P/*" matches P and any descendant of P.
//   - The root forms ("", "/", "*", "/*") match any top-level path.
//   - A malformed pattern (a '*' that is not the final segment) never
//     matches anything.
func Matches(pattern, path string) bool {
	switch ClassifyPattern(pattern) {
	case Root:
		return isDirectChild("", path)
	case Exact:
		return path == pattern
	case Directory:
		return isDirectChild(Dir(pattern), path)
	case Wildcard:
		prefix := Dir(pattern)
		if prefix == "" {
			return true
		}
		return path == prefix || strings.HasPrefix(path, prefix+"/")
	default: // Malformed
		return false
	}
}
