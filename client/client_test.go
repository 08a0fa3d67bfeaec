// Copyright 2016 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package client

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"apteryx.io/apteryxd"
	"apteryx.io/rpc"
	"apteryx.io/rpc/local"
)

// startDaemon stands up an in-process apteryxd.Server behind a unique
// local endpoint, for use as the fake daemon in these tests. Because
// Handle is a process-wide singleton, each test gets its own endpoint.
func startDaemon(t *testing.T) (endpoint string, stop func()) {
	t.Helper()
	endpoint = fmt.Sprintf("apteryx-client-test.%d.%d", os.Getpid(), time.Now().UnixNano())
	ln, err := local.Listen(endpoint)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	srv := apteryxd.New()
	s := rpc.NewServer(srv.Service(), 4)
	ctx, cancel := context.WithCancel(context.Background())
	go s.Serve(ctx, ln)
	return endpoint, func() {
		cancel()
		ln.Close()
	}
}

func newHandle(t *testing.T, endpoint string) *Handle {
	t.Helper()
	h, err := New(Config{Endpoint: endpoint})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { h.Close() })
	return h
}

func TestSetGetRoundTrip(t *testing.T) {
	endpoint, stop := startDaemon(t)
	defer stop()
	h := newHandle(t, endpoint)
	ctx := context.Background()

	require.NoError(t, h.Set(ctx, "/z/s", []byte("up")))
	got, err := h.Get(ctx, "/z/s")
	require.NoError(t, err)
	assert.Equal(t, "up", string(got))
}

func TestRefcountSharesOneHandle(t *testing.T) {
	endpoint, stop := startDaemon(t)
	defer stop()

	h1, err := New(Config{Endpoint: endpoint})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h2, err := New(Config{Endpoint: endpoint})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if h1 != h2 {
		t.Fatal("nested New calls should return the same Handle")
	}
	if err := h1.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := h1.Set(context.Background(), "/a", []byte("v")); err != nil {
		t.Fatalf("Set after one Close (refcount still > 0): %v", err)
	}
	if err := h2.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

// Scenario 1: exact watch fires on change.
func TestScenarioExactWatchFiresOnChange(t *testing.T) {
	endpoint, stop := startDaemon(t)
	defer stop()
	h := newHandle(t, endpoint)
	ctx := context.Background()

	h.Set(ctx, "/z/s", []byte("up"))

	var mu sync.Mutex
	var got []string
	done := make(chan struct{}, 1)
	cb := func(p string, priv uint64, value []byte) error {
		mu.Lock()
		got = append(got, string(value))
		mu.Unlock()
		done <- struct{}{}
		return nil
	}
	if err := h.Watch(ctx, "/z/s", cb, 0); err != nil {
		t.Fatalf("Watch: %v", err)
	}

	h.Set(ctx, "/z/s", []byte("down"))
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("callback not invoked")
	}

	mu.Lock()
	if len(got) != 1 || got[0] != "down" {
		t.Fatalf("got = %v, want one delivery of %q", got, "down")
	}
	mu.Unlock()

	if err := h.Watch(ctx, "/z/s", nil, 0); err != nil {
		t.Fatalf("unwatch: %v", err)
	}
	h.Set(ctx, "/z/s", []byte("up"))
	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 {
		t.Fatalf("callback invoked after unwatch: got %v", got)
	}
}

// Scenario 4: provider resolves get.
func TestScenarioProviderResolvesGet(t *testing.T) {
	endpoint, stop := startDaemon(t)
	defer stop()
	h := newHandle(t, endpoint)
	ctx := context.Background()

	up := func(p string, priv uint64) ([]byte, error) { return []byte("up"), nil }
	if err := h.Provide(ctx, "/if/eth0/state", up, 0); err != nil {
		t.Fatalf("Provide: %v", err)
	}
	got, err := h.Get(ctx, "/if/eth0/state")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "up" {
		t.Fatalf("Get = %q, want %q", got, "up")
	}

	down := func(p string, priv uint64) ([]byte, error) { return []byte("down"), nil }
	if err := h.Provide(ctx, "/if/eth0/state", down, 0); err != nil {
		t.Fatalf("Provide (replace): %v", err)
	}
	got, err = h.Get(ctx, "/if/eth0/state")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "down" {
		t.Fatalf("Get = %q, want %q", got, "down")
	}

	if err := h.Provide(ctx, "/if/eth0/state", nil, 0); err != nil {
		t.Fatalf("unprovide: %v", err)
	}
	got, err = h.Get(ctx, "/if/eth0/state")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("Get after unprovide = %q, want absent", got)
	}
}

// Scenario 5: a watch callback that itself calls Get must observe the
// triggering value (or newer), and must not deadlock.
func TestScenarioReentrantWatcher(t *testing.T) {
	endpoint, stop := startDaemon(t)
	defer stop()
	h := newHandle(t, endpoint)
	ctx := context.Background()

	done := make(chan []byte, 1)
	cb := func(p string, priv uint64, value []byte) error {
		got, err := h.Get(context.Background(), p)
		if err != nil {
			return err
		}
		done <- got
		return nil
	}
	if err := h.Watch(ctx, "/e/z/priv/state", cb, 0); err != nil {
		t.Fatalf("Watch: %v", err)
	}

	h.Set(ctx, "/e/z/priv/state", []byte("triggering"))

	select {
	case got := <-done:
		if string(got) != "triggering" {
			t.Fatalf("reentrant Get = %q, want %q (or newer)", got, "triggering")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("reentrant callback deadlocked or was never invoked")
	}
}

func TestDumpWritesSubtree(t *testing.T) {
	endpoint, stop := startDaemon(t)
	defer stop()
	h := newHandle(t, endpoint)
	ctx := context.Background()

	h.Set(ctx, "/d/a", []byte("1"))
	h.Set(ctx, "/d/b", []byte("2"))

	var buf bytes.Buffer
	if err := h.Dump(ctx, "/d", &buf); err != nil {
		t.Fatalf("Dump: %v", err)
	}
	got := buf.String()
	if !bytes.Contains([]byte(got), []byte("/d/a\t1\n")) || !bytes.Contains([]byte(got), []byte("/d/b\t2\n")) {
		t.Fatalf("Dump output = %q, missing expected entries", got)
	}
}
