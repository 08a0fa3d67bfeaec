// Copyright 2016 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package registry holds the daemon's watcher and provider registrations:
// path-pattern (or exact-path, for providers) to (endpoint, callback
// handle, opaque private data) entries. Lookups snapshot matching
// entries under a read lock and release it before the caller dispatches
// any callback, so delivery never holds the registry lock.
package registry

import (
	"sync"

	"apteryx.io/path"
)

// WatchEntry is one registered watcher: a path pattern owned by a
// process, with an opaque callback handle and private data the owner
// supplied and the daemon echoes back unchanged.
type WatchEntry struct {
	Pattern  string
	Owner    uint64
	Cb       uint64
	Priv     uint64
	Endpoint string
}

// ProviderEntry is one registered provider: identical shape to
// WatchEntry, but keyed by exact path rather than by pattern.
type ProviderEntry struct {
	Path     string
	Owner    uint64
	Cb       uint64
	Priv     uint64
	Endpoint string
}

// Watchers is the registry of watcher entries. The zero value is ready
// to use.
type Watchers struct {
	mu      sync.RWMutex
	entries []*WatchEntry
}

// Register adds or replaces a watcher. At most one entry exists per
// (pattern, owner, cb); re-registering that triple replaces Priv and
// Endpoint without duplicating dispatch.
//
// If cb is 0 (a null callback handle), Register instead unregisters:
// every entry owned by owner whose pattern equals pattern is removed,
// regardless of its callback handle (the daemon's watch RPC handler
// treats a null cb as "unwatch this pattern from this owner").
func (w *Watchers) Register(pattern string, owner, cb, priv uint64, endpoint string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if cb == 0 {
		out := w.entries[:0]
		for _, e := range w.entries {
			if e.Owner == owner && e.Pattern == pattern {
				continue
			}
			out = append(out, e)
		}
		w.entries = out
		return
	}
	for _, e := range w.entries {
		if e.Pattern == pattern && e.Owner == owner && e.Cb == cb {
			e.Priv = priv
			e.Endpoint = endpoint
			return
		}
	}
	w.entries = append(w.entries, &WatchEntry{
		Pattern:  pattern,
		Owner:    owner,
		Cb:       cb,
		Priv:     priv,
		Endpoint: endpoint,
	})
}

// Lookup returns a snapshot of every watcher whose pattern matches path.
// The snapshot is taken under a read lock and then released before the
// caller dispatches notifications, so dispatch never holds the registry
// lock. Order of the returned slice is deterministic for a fixed sequence
// of registrations (insertion order), to ease testing; the spec does not
// otherwise constrain dispatch order across distinct watchers.
func (w *Watchers) Lookup(p string) []WatchEntry {
	w.mu.RLock()
	defer w.mu.RUnlock()

	var out []WatchEntry
	for _, e := range w.entries {
		if path.Matches(e.Pattern, p) {
			out = append(out, *e)
		}
	}
	return out
}

// Providers is the registry of provider entries, one per exact path.
// The zero value is not usable; construct one with NewProviders.
type Providers struct {
	mu      sync.RWMutex
	entries map[string]*ProviderEntry
}

// NewProviders returns an empty provider registry.
func NewProviders() *Providers {
	return &Providers{entries: make(map[string]*ProviderEntry)}
}

// Register adds, replaces, or removes the provider for the exact path p.
//
// If cb is 0, the provider owned by owner for this path is removed (a
// no-op if owner does not currently own it). Otherwise the registration
// replaces whatever provider, if any, is currently registered for p:
// most-recent-registration wins globally, regardless of owner (see
// DESIGN.md's Open Question decision on provider collision policy).
func (p *Providers) Register(forPath string, owner, cb, priv uint64, endpoint string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if cb == 0 {
		if e, ok := p.entries[forPath]; ok && e.Owner == owner {
			delete(p.entries, forPath)
		}
		return
	}
	p.entries[forPath] = &ProviderEntry{
		Path:     forPath,
		Owner:    owner,
		Cb:       cb,
		Priv:     priv,
		Endpoint: endpoint,
	}
}

// Lookup returns the provider registered for the exact path, if any.
func (p *Providers) Lookup(forPath string) (ProviderEntry, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	e, ok := p.entries[forPath]
	if !ok {
		return ProviderEntry{}, false
	}
	return *e, true
}
