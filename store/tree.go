// Copyright 2016 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package store implements the in-memory hierarchical tree that backs the
// Apteryx daemon: a trie keyed by path segment, holding an opaque byte
// value at each node. Only the leaf-like path->value mapping is
// observable; interior-ness is not a distinguished state.
package store

import (
	"bytes"
	"sync"

	"apteryx.io/path"
)

// node is one trie node. A node with a non-empty value is a stored entry;
// the tree never retains a node with a zero-length value (Invariant,
// spec §3).
type node struct {
	children map[string]*node
	value    []byte
}

// Removed describes an entry removed by Prune, for notification purposes.
type Removed struct {
	Path  string
	Value []byte
}

// Tree is the in-memory path->bytes store. The zero value is not usable;
// construct one with New.
type Tree struct {
	mu   sync.RWMutex
	root *node
}

// New returns an empty Tree.
func New() *Tree {
	return &Tree{root: &node{}}
}

// Set stores value at path p. If value is empty, the entry (and any now-
// empty interior nodes on its path) is removed instead. It returns the
// value previously stored there (nil if the path was absent) so callers
// can detect whether the value actually changed.
func (t *Tree) Set(p string, value []byte) (old []byte, err error) {
	if err := path.ValidateExact(p); err != nil {
		return nil, err
	}
	segs := path.Segments(p)

	t.mu.Lock()
	defer t.mu.Unlock()

	if len(value) == 0 {
		return t.remove(segs), nil
	}
	return t.insert(segs, value), nil
}

// insert walks/creates the path down to segs, storing value at the leaf,
// and returns the previous value there, if any. t.mu must be held.
func (t *Tree) insert(segs []string, value []byte) []byte {
	n := t.root
	for _, s := range segs {
		if n.children == nil {
			n.children = make(map[string]*node)
		}
		child, ok := n.children[s]
		if !ok {
			child = &node{}
			n.children[s] = child
		}
		n = child
	}
	old := n.value
	n.value = append([]byte(nil), value...)
	return old
}

// remove deletes the entry at segs, collapsing any interior node on the
// path that is left with no value and no remaining children. It returns
// the removed value, or nil if absent. t.mu must be held.
func (t *Tree) remove(segs []string) []byte {
	path := []*node{t.root}
	n := t.root
	for _, s := range segs {
		if n.children == nil {
			return nil
		}
		child, ok := n.children[s]
		if !ok {
			return nil
		}
		path = append(path, child)
		n = child
	}
	old := n.value
	if old == nil {
		return nil
	}
	n.value = nil

	// Collapse empty interior nodes bottom-up.
	for i := len(segs) - 1; i >= 0; i-- {
		child := path[i+1]
		if len(child.value) != 0 || len(child.children) != 0 {
			break
		}
		parent := path[i]
		delete(parent.children, segs[i])
	}
	return old
}

// Get performs an exact lookup, returning the stored value and whether it
// was present (an absent path and a present path with empty value are
// indistinguishable; the tree never stores the latter, so ok is always
// consistent with "the caller can see a value here").
func (t *Tree) Get(p string) (value []byte, ok bool, err error) {
	if err := path.ValidateExact(p); err != nil {
		return nil, false, err
	}
	segs := path.Segments(p)

	t.mu.RLock()
	defer t.mu.RUnlock()

	n := t.root
	for _, s := range segs {
		if n.children == nil {
			return nil, false, nil
		}
		child, ok := n.children[s]
		if !ok {
			return nil, false, nil
		}
		n = child
	}
	if len(n.value) == 0 {
		return nil, false, nil
	}
	return append([]byte(nil), n.value...), true, nil
}

// Search returns the set of immediate children of the directory dir (one
// level only), as full paths. The order is unspecified.
func (t *Tree) Search(dir string) ([]string, error) {
	if err := path.ValidateSearch(dir); err != nil {
		return nil, err
	}
	base := path.Dir(dir)
	segs := path.Segments(base)

	t.mu.RLock()
	defer t.mu.RUnlock()

	n := t.root
	for _, s := range segs {
		if n.children == nil {
			return nil, nil
		}
		child, ok := n.children[s]
		if !ok {
			return nil, nil
		}
		n = child
	}
	results := make([]string, 0, len(n.children))
	for name := range n.children {
		results = append(results, base+"/"+name)
	}
	return results, nil
}

// Prune removes path p and all of its descendants, returning every
// removed entry (path, old value) that held a non-empty value, for
// watch-notification purposes. Pruning a non-existent subtree is a
// no-op that returns an empty, non-error result.
func (t *Tree) Prune(p string) ([]Removed, error) {
	if err := path.ValidateExact(p); err != nil {
		return nil, err
	}
	segs := path.Segments(p)

	t.mu.Lock()
	defer t.mu.Unlock()

	ancestry := []*node{t.root}
	n := t.root
	for _, s := range segs {
		if n.children == nil {
			return nil, nil
		}
		child, ok := n.children[s]
		if !ok {
			return nil, nil
		}
		ancestry = append(ancestry, child)
		n = child
	}

	var removed []Removed
	collect(p, n, &removed)

	// Detach the subtree from its parent, then collapse now-empty
	// interior ancestors, same as remove.
	if len(segs) > 0 {
		parent := ancestry[len(ancestry)-2]
		delete(parent.children, segs[len(segs)-1])
		for i := len(segs) - 2; i >= 0; i-- {
			child := ancestry[i+1]
			if len(child.value) != 0 || len(child.children) != 0 {
				break
			}
			delete(ancestry[i].children, segs[i])
		}
	} else {
		t.root = &node{}
	}
	return removed, nil
}

// collect walks the subtree rooted at n (addressed by p) and appends
// every entry with a non-empty value to removed, depth-first.
func collect(p string, n *node, removed *[]Removed) {
	if len(n.value) != 0 {
		*removed = append(*removed, Removed{Path: p, Value: append([]byte(nil), n.value...)})
	}
	for name, child := range n.children {
		collect(p+"/"+name, child, removed)
	}
}

// Equal reports whether a and b hold the same bytes. Exposed so callers
// comparing old and new values (spec §4.5's "old != value" test) don't
// need to import bytes themselves.
func Equal(a, b []byte) bool {
	return bytes.Equal(a, b)
}
