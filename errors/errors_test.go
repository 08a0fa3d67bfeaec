// Copyright 2016 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package errors

import "testing"

func TestErrorKindPropagation(t *testing.T) {
	base := E("Get", Invalid, Str("bad path"))
	wrapped := E("Dispatch", base)
	we, ok := wrapped.(*Error)
	if !ok {
		t.Fatalf("E did not return *Error")
	}
	if we.Kind != Invalid {
		t.Errorf("Kind = %v, want %v (should bubble up from inner error)", we.Kind, Invalid)
	}
}

func TestErrorDuplicateSuppression(t *testing.T) {
	base := E("/a/b", IO, Str("connect refused"))
	wrapped := E("/a/b", base)
	if got := wrapped.Error(); got == "" {
		t.Fatal("empty error string")
	}
	we := wrapped.(*Error)
	inner := we.Err.(*Error)
	if inner.Path != "" {
		t.Errorf("inner.Path = %q, want empty (duplicate path should be suppressed)", inner.Path)
	}
}

func TestIs(t *testing.T) {
	err := E("Get", Timeout, Str("deadline exceeded"))
	if !Is(Timeout, err) {
		t.Error("Is(Timeout, err) = false, want true")
	}
	if Is(IO, err) {
		t.Error("Is(IO, err) = true, want false")
	}
	if Is(Timeout, Str("plain error")) {
		t.Error("Is should be false for a non-*Error")
	}
}

func TestMatch(t *testing.T) {
	err := E("/a/b", "Get", NotExist)
	if !Match(E(NotExist), err) {
		t.Error("Match on Kind alone should succeed")
	}
	if !Match(E("/a/b"), err) {
		t.Error("Match on Path alone should succeed")
	}
	if Match(E("/x/y"), err) {
		t.Error("Match should fail on a mismatched Path")
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	orig := E("/z/s", "Set", IO, Str("write failed"))
	b := MarshalError(orig)
	got := UnmarshalError(b)
	ge, ok := got.(*Error)
	if !ok {
		t.Fatalf("UnmarshalError returned %T, want *Error", got)
	}
	oe := orig.(*Error)
	if ge.Path != oe.Path || ge.Op != oe.Op || ge.Kind != oe.Kind {
		t.Errorf("round trip mismatch: got %+v, want %+v", ge, oe)
	}
	if ge.Err.Error() != oe.Err.Error() {
		t.Errorf("inner error mismatch: got %q, want %q", ge.Err.Error(), oe.Err.Error())
	}
}

func TestMarshalNilError(t *testing.T) {
	if b := MarshalError(nil); b != nil {
		t.Errorf("MarshalError(nil) = %v, want nil", b)
	}
	if err := UnmarshalError(nil); err != nil {
		t.Errorf("UnmarshalError(nil) = %v, want nil", err)
	}
}

func TestStrAndErrorf(t *testing.T) {
	if Str("oops").Error() != "oops" {
		t.Error("Str did not round-trip message")
	}
	if Errorf("bad %d", 7).Error() != "bad 7" {
		t.Error("Errorf did not format message")
	}
}
