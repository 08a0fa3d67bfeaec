// Copyright 2016 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package apteryxd implements the daemon side of Apteryx: the six RPC
// operations (set, get, search, prune, watch, provide) dispatched over a
// single in-memory tree, with watcher and provider registries. The tree
// lock is always released before any watcher or provider callback is
// invoked, since a callback may itself call back into the daemon (§4.4
// reentrancy).
package apteryxd

import (
	"context"
	"sync"
	"time"

	pb "github.com/golang/protobuf/proto"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"apteryx.io/errors"
	"apteryx.io/log"
	"apteryx.io/metric"
	"apteryx.io/path"
	"apteryx.io/registry"
	"apteryx.io/rpc"
	"apteryx.io/rpcpb"
	"apteryx.io/store"
)

// maxConcurrentDeliveries bounds how many watchers a single notify job
// calls out to at once (§4.8's "order of 4 workers" shape, reused here
// for the fan-out within one path's queued job rather than across
// jobs).
const maxConcurrentDeliveries = 4

// Server holds the daemon's process-wide state: the tree itself and the
// watcher/provider registries, plus the per-path dispatch queues that
// give notification delivery the ordering guarantee described in §5
// ("notifications for a given path are delivered in the same order the
// writes that produced them were applied").
type Server struct {
	tree      *store.Tree
	watchers  *registry.Watchers
	providers *registry.Providers

	// dialTimeout bounds every callback RPC the daemon issues back to a
	// watcher or provider's endpoint. A slow or wedged client must never
	// stall the daemon's own set/get/prune handlers.
	dialTimeout time.Duration

	mu     sync.Mutex
	queues map[string]*pathQueue
}

// New returns a Server ready to serve, with no state.
func New() *Server {
	return &Server{
		tree:        store.New(),
		watchers:    &registry.Watchers{},
		providers:   registry.NewProviders(),
		dialTimeout: 5 * time.Second,
		queues:      make(map[string]*pathQueue),
	}
}

// Service returns the rpc.Service that serves s's six operations,
// suitable for passing to rpc.NewServer.
func (s *Server) Service() *rpc.Service {
	return &rpc.Service{
		Name: "apteryxd",
		Methods: map[string]rpc.Method{
			"set":     s.handleSet,
			"get":     s.handleGet,
			"search":  s.handleSearch,
			"prune":   s.handlePrune,
			"watch":   s.handleWatch,
			"provide": s.handleProvide,
		},
	}
}

func unmarshalInto(method string, reqBytes []byte, m pb.Message) error {
	if err := pb.Unmarshal(reqBytes, m); err != nil {
		return errors.E(method, errors.Invalid, err)
	}
	return nil
}

func (s *Server) handleSet(ctx context.Context, reqBytes []byte) (pb.Message, error) {
	var req rpcpb.SetRequest
	if err := unmarshalInto("set", reqBytes, &req); err != nil {
		return nil, err
	}
	if err := path.ValidateExact(req.Path); err != nil {
		return nil, errors.E("set", req.Path, errors.Invalid, err)
	}
	if err := s.Set(req.Path, req.Value); err != nil {
		return nil, err
	}
	return &rpcpb.OK{}, nil
}

func (s *Server) handleGet(ctx context.Context, reqBytes []byte) (pb.Message, error) {
	var req rpcpb.GetRequest
	if err := unmarshalInto("get", reqBytes, &req); err != nil {
		return nil, err
	}
	if err := path.ValidateExact(req.Path); err != nil {
		return nil, errors.E("get", req.Path, errors.Invalid, err)
	}
	value := s.Get(ctx, req.Path)
	return &rpcpb.GetResponse{Value: value}, nil
}

func (s *Server) handleSearch(ctx context.Context, reqBytes []byte) (pb.Message, error) {
	var req rpcpb.SearchRequest
	if err := unmarshalInto("search", reqBytes, &req); err != nil {
		return nil, err
	}
	children, err := s.tree.Search(req.Path)
	if err != nil {
		return nil, errors.E("search", req.Path, errors.Invalid, err)
	}
	return &rpcpb.SearchResponse{Paths: children}, nil
}

func (s *Server) handlePrune(ctx context.Context, reqBytes []byte) (pb.Message, error) {
	var req rpcpb.PruneRequest
	if err := unmarshalInto("prune", reqBytes, &req); err != nil {
		return nil, err
	}
	if err := path.ValidateExact(req.Path); err != nil {
		return nil, errors.E("prune", req.Path, errors.Invalid, err)
	}
	if err := s.Prune(req.Path); err != nil {
		return nil, err
	}
	return &rpcpb.OK{}, nil
}

func (s *Server) handleWatch(ctx context.Context, reqBytes []byte) (pb.Message, error) {
	var req rpcpb.WatchRegisterRequest
	if err := unmarshalInto("watch", reqBytes, &req); err != nil {
		return nil, err
	}
	if path.ClassifyPattern(req.Pattern) == path.Invalid {
		return nil, errors.E("watch", req.Pattern, errors.Invalid, errors.Str("bad pattern"))
	}
	s.watchers.Register(req.Pattern, req.Owner, req.Cb, req.Priv, req.Endpoint)
	return &rpcpb.OK{}, nil
}

func (s *Server) handleProvide(ctx context.Context, reqBytes []byte) (pb.Message, error) {
	var req rpcpb.ProvideRegisterRequest
	if err := unmarshalInto("provide", reqBytes, &req); err != nil {
		return nil, err
	}
	if req.Cb != 0 {
		if err := path.ValidateExact(req.Path); err != nil {
			return nil, errors.E("provide", req.Path, errors.Invalid, err)
		}
	}
	s.providers.Register(req.Path, req.Owner, req.Cb, req.Priv, req.Endpoint)
	return &rpcpb.OK{}, nil
}

// Set applies value at p, persisting it in the tree, and — if the
// stored value actually changed — asynchronously notifies every
// matching watcher. Set returns as soon as the tree is updated; it does
// not wait for notification delivery (§5: "set is not blocked by slow
// or unreachable watchers").
func (s *Server) Set(p string, value []byte) error {
	m := metric.New("Set")
	defer m.Done()

	span := m.StartSpan("applyToTree")
	old, err := s.tree.Set(p, value)
	span.End()
	if err != nil {
		return errors.E("set", p, errors.Invalid, err)
	}
	if !store.Equal(old, value) {
		m.StartSpan("notifyWatchers")
		s.notify(p, p, value)
	}
	return nil
}

// Get resolves p from the tree; if absent, and a provider is registered
// for exactly p, Get synchronously calls that provider's endpoint to
// resolve it. A provider that fails to respond, or any other provider
// error, is treated as if the path were simply absent (§4.6): get never
// surfaces a provider's transport failure to its own caller.
func (s *Server) Get(ctx context.Context, p string) []byte {
	m := metric.New("Get")
	defer m.Done()

	treeSpan := m.StartSpan("lookupTree")
	value, ok, _ := s.tree.Get(p)
	treeSpan.End()
	if ok {
		return value
	}

	entry, ok := s.providers.Lookup(p)
	if !ok {
		return nil
	}

	span := m.StartSpan("resolveProvider").SetKind(metric.Client)
	defer span.End()
	client := &rpc.Client{Endpoint: entry.Endpoint, Timeout: s.dialTimeout}
	req := &rpcpb.ProvideResolveRequest{Path: p, Owner: entry.Owner, Cb: entry.Cb, Priv: entry.Priv}
	var resp rpcpb.ProvideResolveResponse
	if err := client.Call(ctx, "provide", req, &resp); err != nil {
		log.Error.Printf("apteryxd: provider %s for %s: %v", entry.Endpoint, p, err)
		return nil
	}
	return resp.Value
}

// Prune removes p and its entire subtree, notifying watchers of every
// path that was actually removed (each as a transition to an empty
// value, matching the set-to-empty delete convention of §4.2).
func (s *Server) Prune(p string) error {
	m := metric.New("Prune")
	defer m.Done()

	span := m.StartSpan("removeSubtree")
	removed, err := s.tree.Prune(p)
	span.End()
	if err != nil {
		return errors.E("prune", p, errors.Invalid, err)
	}
	if len(removed) > 0 {
		m.StartSpan("notifyWatchers")
	}
	for _, r := range removed {
		s.notify(r.Path, r.Path, nil)
	}
	return nil
}

// notify enqueues the delivery of a (dispatchPath, value) change to
// every watcher currently registered against dispatchPath, preserving
// per-path delivery order across overlapping set/prune calls. queuePath
// and dispatchPath are the same value for every caller today; they are
// kept distinct because prune's many simultaneous removals each need
// their own ordering key (one per removed path), not the pruned root's.
func (s *Server) notify(queuePath, dispatchPath string, value []byte) {
	entries := s.watchers.Lookup(dispatchPath)
	if len(entries) == 0 {
		return
	}
	s.enqueue(queuePath, func() {
		// Fan out to every matching watcher concurrently, bounded by a
		// semaphore, and wait for all deliveries to finish before this
		// job completes — that wait is what keeps the per-path queue's
		// ordering guarantee intact across the next queued job.
		var g errgroup.Group
		sem := semaphore.NewWeighted(maxConcurrentDeliveries)
		for _, e := range entries {
			e := e
			g.Go(func() error {
				if err := sem.Acquire(context.Background(), 1); err != nil {
					return err
				}
				defer sem.Release(1)
				s.deliver(e, dispatchPath, value)
				return nil
			})
		}
		g.Wait()
	})
}

func (s *Server) deliver(e registry.WatchEntry, p string, value []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), s.dialTimeout)
	defer cancel()
	client := &rpc.Client{Endpoint: e.Endpoint, Timeout: s.dialTimeout}
	req := &rpcpb.WatchDeliverRequest{Path: p, Value: value, Owner: e.Owner, Cb: e.Cb, Priv: e.Priv}
	var resp rpcpb.OK
	if err := client.Call(ctx, "watch", req, &resp); err != nil {
		// §4.5: a watcher that cannot be reached misses this
		// notification; the daemon does not retry or buffer it.
		log.Error.Printf("apteryxd: delivering %s to watcher %s: %v", p, e.Endpoint, err)
	}
}

// pathQueue serializes the notification jobs enqueued for one path, so
// that two overlapping sets to the same path dispatch their watcher
// notifications in the order the sets were applied, never interleaved
// or reordered.
type pathQueue struct {
	mu      sync.Mutex
	jobs    []func()
	running bool
}

// enqueue appends job to path's queue, starting the queue's single
// worker goroutine if it is not already running. At most one worker
// goroutine ever runs per path at a time: enqueue takes the queue's
// mutex before releasing s.mu, and a worker that has run out of jobs
// deregisters its queue (see runQueue) only while holding both s.mu and
// the queue's mutex, so a concurrent enqueue either joins the existing
// queue or cleanly starts the next one — never both.
func (s *Server) enqueue(p string, job func()) {
	s.mu.Lock()
	q, ok := s.queues[p]
	if !ok {
		q = &pathQueue{}
		s.queues[p] = q
	}
	q.mu.Lock()
	s.mu.Unlock()

	q.jobs = append(q.jobs, job)
	start := !q.running
	if start {
		q.running = true
	}
	q.mu.Unlock()

	if start {
		go s.runQueue(p, q)
	}
}

func (s *Server) runQueue(p string, q *pathQueue) {
	for {
		q.mu.Lock()
		if len(q.jobs) == 0 {
			q.running = false
			q.mu.Unlock()
			break
		}
		job := q.jobs[0]
		q.jobs = q.jobs[1:]
		q.mu.Unlock()
		job()
	}

	s.mu.Lock()
	if cur, ok := s.queues[p]; ok && cur == q {
		q.mu.Lock()
		idle := len(q.jobs) == 0 && !q.running
		q.mu.Unlock()
		if idle {
			delete(s.queues, p)
		}
	}
	s.mu.Unlock()
}
