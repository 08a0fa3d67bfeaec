// Copyright 2016 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package client is the library linked into every Apteryx participant.
// A Handle talks to the daemon as an RPC client for set/get/search/prune
// and lazily starts a small inbound callback server, on a process-unique
// endpoint, the moment the first watch or provide with a non-null
// callback is registered (§4.4). A process-wide reference count lets
// nested New/Close pairs share one Handle and one callback server.
package client

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	pb "github.com/golang/protobuf/proto"

	"apteryx.io/errors"
	"apteryx.io/log"
	"apteryx.io/rpc"
	"apteryx.io/rpc/local"
	"apteryx.io/rpcpb"
)

// WatchFunc is invoked when a watched path changes. value is empty when
// the path was deleted. A non-nil error is logged but never propagated
// back to whatever set the value (§7: "watch-delivery failures never
// propagate back to the originating set caller").
type WatchFunc func(path string, priv uint64, value []byte) error

// ProvideFunc resolves a get against a path this process provides. A
// non-nil error surfaces at the requester as if the path were absent.
type ProvideFunc func(path string, priv uint64) ([]byte, error)

// Config configures a Handle. The zero value is a usable default: the
// daemon's well-known endpoint name "apteryxd" and a 4-worker callback
// server.
type Config struct {
	// Endpoint is the daemon's well-known local endpoint name.
	Endpoint string
	// Workers bounds the callback server's concurrent in-flight
	// deliveries, once it is started.
	Workers int
}

// shutdownGrace bounds how long Close waits for the callback server's
// context to be cancelled and its listener closed. Both happen at once;
// Close does not wait for deliveries already in flight to finish.
const shutdownGrace = 5 * time.Second

// Handle is a process's connection to the Apteryx daemon. Obtain one
// with New and release it with Close; nested New/Close pairs within one
// process share the same underlying connection and callback server.
type Handle struct {
	endpoint string
	owner    uint64
	workers  int
	client   *rpc.Client

	mu             sync.Mutex
	refcount       int
	cb             *callbackServer
	nextHandle     uint64
	watches        map[uint64]WatchFunc
	watchesByKey   map[string][]uint64
	provides       map[uint64]ProvideFunc
	providesByPath map[string]uint64
}

type callbackServer struct {
	ln     net.Listener
	cancel context.CancelFunc
}

var (
	globalMu sync.Mutex
	global   *Handle
)

// New returns the process-wide Handle, creating it on the first call and
// incrementing a reference count on subsequent calls (§4.4's "tracks a
// process-wide reference count so that repeated init/shutdown pairs
// nest"). cfg is only consulted on the first call.
func New(cfg Config) (*Handle, error) {
	globalMu.Lock()
	defer globalMu.Unlock()

	if global != nil {
		global.refcount++
		return global, nil
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = "apteryxd"
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	h := &Handle{
		endpoint:       cfg.Endpoint,
		owner:          uint64(os.Getpid()),
		workers:        cfg.Workers,
		client:         &rpc.Client{Endpoint: cfg.Endpoint},
		refcount:       1,
		watches:        make(map[uint64]WatchFunc),
		watchesByKey:   make(map[string][]uint64),
		provides:       make(map[uint64]ProvideFunc),
		providesByPath: make(map[string]uint64),
	}
	global = h
	return h, nil
}

// Close releases one reference to h. When the reference count reaches
// zero, it stops the callback server (if one was started) and forgets
// the process-wide Handle, so a later New starts fresh.
func (h *Handle) Close() error {
	globalMu.Lock()
	defer globalMu.Unlock()

	h.refcount--
	if h.refcount > 0 {
		return nil
	}
	global = nil
	return h.stopCallbackServer()
}

// Set stores value at path, deleting it if value is empty.
func (h *Handle) Set(ctx context.Context, p string, value []byte) error {
	var resp rpcpb.OK
	return h.client.Call(ctx, "set", &rpcpb.SetRequest{Path: p, Value: value}, &resp)
}

// Get resolves path, consulting a registered provider if the path is
// absent from the store. A nil, zero-length result means absent; Get
// never returns a NotFound-kind error (§7).
func (h *Handle) Get(ctx context.Context, p string) ([]byte, error) {
	var resp rpcpb.GetResponse
	if err := h.client.Call(ctx, "get", &rpcpb.GetRequest{Path: p}, &resp); err != nil {
		return nil, err
	}
	return resp.Value, nil
}

// Search lists the direct children of dir.
func (h *Handle) Search(ctx context.Context, dir string) ([]string, error) {
	var resp rpcpb.SearchResponse
	if err := h.client.Call(ctx, "search", &rpcpb.SearchRequest{Path: dir}, &resp); err != nil {
		return nil, err
	}
	return resp.Paths, nil
}

// Prune removes path and its entire subtree.
func (h *Handle) Prune(ctx context.Context, p string) error {
	var resp rpcpb.OK
	return h.client.Call(ctx, "prune", &rpcpb.PruneRequest{Path: p}, &resp)
}

// Watch registers cb to be called whenever a path matching pattern
// changes. Passing a nil cb unregisters every watcher this process has
// registered for pattern, regardless of which cb it was registered
// with (§4.5).
func (h *Handle) Watch(ctx context.Context, pattern string, cb WatchFunc, priv uint64) error {
	if cb == nil {
		return h.unwatch(ctx, pattern)
	}
	if err := h.ensureCallbackServer(); err != nil {
		return err
	}
	handle := h.registerWatch(pattern, cb)
	req := &rpcpb.WatchRegisterRequest{
		Pattern:  pattern,
		Owner:    h.owner,
		Cb:       handle,
		Priv:     priv,
		Endpoint: h.cbEndpoint(),
	}
	var resp rpcpb.OK
	return h.client.Call(ctx, "watch", req, &resp)
}

func (h *Handle) unwatch(ctx context.Context, pattern string) error {
	h.mu.Lock()
	for _, handle := range h.watchesByKey[pattern] {
		delete(h.watches, handle)
	}
	delete(h.watchesByKey, pattern)
	h.mu.Unlock()

	req := &rpcpb.WatchRegisterRequest{Pattern: pattern, Owner: h.owner, Cb: 0, Priv: 0}
	var resp rpcpb.OK
	return h.client.Call(ctx, "watch", req, &resp)
}

func (h *Handle) registerWatch(pattern string, cb WatchFunc) uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextHandle++
	handle := h.nextHandle
	h.watches[handle] = cb
	h.watchesByKey[pattern] = append(h.watchesByKey[pattern], handle)
	return handle
}

// Provide registers cb as the value source for the exact path p.
// Passing a nil cb unregisters this process's provider for p.
func (h *Handle) Provide(ctx context.Context, p string, cb ProvideFunc, priv uint64) error {
	if cb == nil {
		return h.unprovide(ctx, p)
	}
	if err := h.ensureCallbackServer(); err != nil {
		return err
	}
	handle := h.registerProvide(p, cb)
	req := &rpcpb.ProvideRegisterRequest{
		Path:     p,
		Owner:    h.owner,
		Cb:       handle,
		Priv:     priv,
		Endpoint: h.cbEndpoint(),
	}
	var resp rpcpb.OK
	return h.client.Call(ctx, "provide", req, &resp)
}

func (h *Handle) unprovide(ctx context.Context, p string) error {
	h.mu.Lock()
	if handle, ok := h.providesByPath[p]; ok {
		delete(h.provides, handle)
		delete(h.providesByPath, p)
	}
	h.mu.Unlock()

	req := &rpcpb.ProvideRegisterRequest{Path: p, Owner: h.owner, Cb: 0, Priv: 0}
	var resp rpcpb.OK
	return h.client.Call(ctx, "provide", req, &resp)
}

func (h *Handle) registerProvide(p string, cb ProvideFunc) uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextHandle++
	handle := h.nextHandle
	h.provides[handle] = cb
	h.providesByPath[p] = handle
	return handle
}

// Dump walks the subtree rooted at path (via repeated Search calls) and
// writes every entry it finds to w as "path\tvalue" lines, one per
// line, in lexical order within each directory.
func (h *Handle) Dump(ctx context.Context, p string, w io.Writer) error {
	if p != "" {
		if value, err := h.Get(ctx, p); err == nil && len(value) > 0 {
			if _, err := fmt.Fprintf(w, "%s\t%s\n", p, value); err != nil {
				return err
			}
		}
	}
	return h.dumpChildren(ctx, p, w)
}

func (h *Handle) dumpChildren(ctx context.Context, dir string, w io.Writer) error {
	searchPath := dir
	if searchPath != "" && !strings.HasSuffix(searchPath, "/") {
		searchPath += "/"
	}
	children, err := h.Search(ctx, searchPath)
	if err != nil {
		return err
	}
	sort.Strings(children)
	for _, child := range children {
		value, err := h.Get(ctx, child)
		if err != nil {
			return err
		}
		if len(value) > 0 {
			if _, err := fmt.Fprintf(w, "%s\t%s\n", child, value); err != nil {
				return err
			}
		}
		if err := h.dumpChildren(ctx, child, w); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handle) cbEndpoint() string {
	return local.EndpointName(h.endpoint)
}

func (h *Handle) ensureCallbackServer() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cb != nil {
		return nil
	}
	ln, err := local.Listen(h.cbEndpoint())
	if err != nil {
		return errors.E("watch", errors.IO, err)
	}
	svc := &rpc.Service{
		Name: "client-callback",
		Methods: map[string]rpc.Method{
			"watch":   h.handleWatchDeliver,
			"provide": h.handleProvideResolve,
		},
	}
	srv := rpc.NewServer(svc, h.workers)
	ctx, cancel := context.WithCancel(context.Background())
	go srv.Serve(ctx, ln)
	h.cb = &callbackServer{ln: ln, cancel: cancel}
	return nil
}

func (h *Handle) stopCallbackServer() error {
	if h.cb == nil {
		return nil
	}
	cb := h.cb
	h.cb = nil

	done := make(chan struct{})
	go func() {
		cb.cancel()
		cb.ln.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(shutdownGrace):
		log.Error.Printf("client: callback server did not stop within %v", shutdownGrace)
	}
	return nil
}

func (h *Handle) handleWatchDeliver(ctx context.Context, reqBytes []byte) (pb.Message, error) {
	var req rpcpb.WatchDeliverRequest
	if err := pb.Unmarshal(reqBytes, &req); err != nil {
		return nil, errors.E("watch", errors.Invalid, err)
	}
	h.mu.Lock()
	cb, ok := h.watches[req.Cb]
	h.mu.Unlock()
	if ok {
		if err := cb(req.Path, req.Priv, req.Value); err != nil {
			log.Error.Printf("client: watch callback for %s: %v", req.Path, err)
		}
	}
	return &rpcpb.OK{}, nil
}

func (h *Handle) handleProvideResolve(ctx context.Context, reqBytes []byte) (pb.Message, error) {
	var req rpcpb.ProvideResolveRequest
	if err := pb.Unmarshal(reqBytes, &req); err != nil {
		return nil, errors.E("provide", errors.Invalid, err)
	}
	h.mu.Lock()
	cb, ok := h.provides[req.Cb]
	h.mu.Unlock()
	if !ok {
		return &rpcpb.ProvideResolveResponse{}, nil
	}
	value, err := cb(req.Path, req.Priv)
	if err != nil {
		return nil, errors.E("provide", errors.IO, err)
	}
	return &rpcpb.ProvideResolveResponse{Value: value}, nil
}
