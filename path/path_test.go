// Copyright 2016 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package path

import "testing"

func TestValidate(t *testing.T) {
	cases := []struct {
		path string
		kind Kind
		ok   bool
	}{
		{"", Root, true},
		{"/", Root, true},
		{"*", Root, true},
		{"/*", Root, true},
		{"/a/b/c", Exact, true},
		{"/a/b/c/", Directory, true},
		{"/a/b/c/*", Wildcard, true},
		{"a/b/c", Invalid, false},
		{"/a//b", Invalid, false},
		{"/a/*/b", Invalid, false},
		{"/a*", Invalid, false},
	}
	for _, c := range cases {
		kind, err := Validate(c.path)
		if c.ok && err != nil {
			t.Errorf("Validate(%q): unexpected error %v", c.path, err)
			continue
		}
		if !c.ok && err == nil {
			t.Errorf("Validate(%q): expected error, got none", c.path)
			continue
		}
		if c.ok && kind != c.kind {
			t.Errorf("Validate(%q) = %v, want %v", c.path, kind, c.kind)
		}
	}
}

func TestValidateExact(t *testing.T) {
	for _, p := range []string{"/a/b", "/z/s"} {
		if err := ValidateExact(p); err != nil {
			t.Errorf("ValidateExact(%q): %v", p, err)
		}
	}
	for _, p := range []string{"/a/b/", "/a/b/*", "", "/"} {
		if err := ValidateExact(p); err == nil {
			t.Errorf("ValidateExact(%q): expected error, got none", p)
		}
	}
}

func TestValidateSearch(t *testing.T) {
	for _, p := range []string{"", "/", "/e/z/"} {
		if err := ValidateSearch(p); err != nil {
			t.Errorf("ValidateSearch(%q): %v", p, err)
		}
	}
	for _, p := range []string{"/e/z", "/e/z/*"} {
		if err := ValidateSearch(p); err == nil {
			t.Errorf("ValidateSearch(%q): expected error, got none", p)
		}
	}
}

func TestClassifyPatternNeverErrors(t *testing.T) {
	// A mid-path wildcard is accepted for registration but classified
	// Malformed so it can never match (see Matches test below).
	if k := ClassifyPattern("/e/z/*/state"); k != Malformed {
		t.Errorf("ClassifyPattern(%q) = %v, want Malformed", "/e/z/*/state", k)
	}
}

func TestMatchesExact(t *testing.T) {
	if !Matches("/z/s", "/z/s") {
		t.Error("exact pattern should match identical path")
	}
	if Matches("/z/s", "/z/t") {
		t.Error("exact pattern should not match a different path")
	}
}

func TestMatchesDirectory(t *testing.T) {
	if !Matches("/e/z/", "/e/z/priv") {
		t.Error("directory pattern should match a direct child")
	}
	if Matches("/e/z/", "/e/z/priv/desc") {
		t.Error("directory pattern should not match a grandchild")
	}
	if Matches("/e/z/", "/e/o/s") {
		t.Error("directory pattern should not match outside its directory")
	}
}

func TestMatchesWildcardSuffix(t *testing.T) {
	if !Matches("/e/z/*", "/e/z/p/s") {
		t.Error("wildcard-suffix pattern should match any descendant")
	}
	if !Matches("/e/z/*", "/e/z") {
		t.Error("wildcard-suffix pattern should match the path itself")
	}
	if Matches("/e/z/*", "/e/o/s") {
		t.Error("wildcard-suffix pattern should not match outside its subtree")
	}
}

// TestMatchesMidPathWildcard asserts scenario 3 from the spec: a '*' that
// is not the final segment never matches anything.
func TestMatchesMidPathWildcard(t *testing.T) {
	if Matches("/e/z/*/state", "/e/z/pub/state") {
		t.Error("mid-path wildcard pattern must never match")
	}
}

func TestMatchesRootForms(t *testing.T) {
	for _, pattern := range []string{"", "/", "*", "/*"} {
		if !Matches(pattern, "/top") {
			t.Errorf("root-equivalent pattern %q should match a top-level path", pattern)
		}
		if Matches(pattern, "/top/nested") {
			t.Errorf("root-equivalent pattern %q should not match a nested path", pattern)
		}
	}
}

func TestSegments(t *testing.T) {
	cases := map[string][]string{
		"":        nil,
		"/":       nil,
		"/a":      {"a"},
		"/a/b/c":  {"a", "b", "c"},
		"/a/b/c/": {"a", "b", "c"},
	}
	for p, want := range cases {
		got := Segments(p)
		if len(got) != len(want) {
			t.Errorf("Segments(%q) = %v, want %v", p, got, want)
			continue
		}
		for i := range got {
			if got[i] != want[i] {
				t.Errorf("Segments(%q) = %v, want %v", p, got, want)
				break
			}
		}
	}
}
