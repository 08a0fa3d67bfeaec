// Copyright 2016 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package rpc implements the request/response, message-framed transport
// described in the design's RPC transport component: a local-endpoint
// connection carries one marshaled Envelope request and one marshaled
// Response, carried over the unix-domain-socket local transport in
// package rpc/local instead of HTTP, and with no authentication layer
// (spec §1 lists authentication as a non-goal).
package rpc

import (
	"context"
	"encoding/binary"
	"io"
	"net"
	"time"

	pb "github.com/golang/protobuf/proto"
	"golang.org/x/net/netutil"
	"golang.org/x/sync/semaphore"

	"apteryx.io/errors"
	"apteryx.io/log"
	"apteryx.io/rpc/local"
	"apteryx.io/rpcpb"
)

// maxFrameSize bounds a single request or response frame, guarding the
// length-prefixed reader against a corrupt or hostile peer.
const maxFrameSize = 64 << 20

// Method handles one RPC method: it unmarshals reqBytes into a request
// of the appropriate type and returns a response message to be marshaled
// back to the caller.
type Method func(ctx context.Context, reqBytes []byte) (pb.Message, error)

// Service is a named table of RPC methods served on one local endpoint.
type Service struct {
	Name    string
	Methods map[string]Method
}

// Server serves a Service's methods to connections accepted on a single
// local endpoint. Its worker pool is a small bounded set of goroutines
// (order of a handful), since callbacks delivered to a client's callback
// server may themselves issue RPCs back to the daemon (§4.4's
// reentrancy rationale) — a single-threaded server would deadlock.
type Server struct {
	service *Service
	workers int64
}

// NewServer returns a Server for svc, bounded to the given number of
// concurrent in-flight requests.
func NewServer(svc *Service, workers int) *Server {
	if workers <= 0 {
		workers = 4
	}
	return &Server{service: svc, workers: int64(workers)}
}

// Serve accepts connections on ln until it is closed or ctx is
// cancelled, dispatching each request to the method table. One RPC per
// connection is the simple, correct baseline (§4.4); pooling connections
// is an optimization this implementation does not need.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	bounded := netutil.LimitListener(ln, int(s.workers))
	sem := semaphore.NewWeighted(s.workers)

	go func() {
		<-ctx.Done()
		bounded.Close()
	}()

	for {
		conn, err := bounded.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			conn.Close()
			return err
		}
		go func() {
			defer sem.Release(1)
			s.handle(ctx, conn)
		}()
	}
}

func (s *Server) handle(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	frame, err := readFrame(conn)
	if err != nil {
		if err != io.EOF {
			log.Error.Printf("rpc: reading request: %v", err)
		}
		return
	}
	var env rpcpb.Envelope
	if err := pb.Unmarshal(frame, &env); err != nil {
		log.Error.Printf("rpc: unmarshaling envelope: %v", err)
		return
	}
	method, ok := s.service.Methods[env.Method]
	if !ok {
		writeError(conn, errors.E(env.Method, errors.Invalid, errors.Str("unknown method")))
		return
	}
	resp, err := method(ctx, env.Payload)
	if err != nil {
		writeError(conn, err)
		return
	}
	payload, err := pb.Marshal(resp)
	if err != nil {
		log.Error.Printf("rpc: marshaling response: %v", err)
		writeError(conn, err)
		return
	}
	writeResponse(conn, &rpcpb.Response{Payload: payload})
}

func writeError(conn net.Conn, err error) {
	writeResponse(conn, &rpcpb.Response{Error: errors.MarshalError(err)})
}

func writeResponse(conn net.Conn, resp *rpcpb.Response) {
	b, err := pb.Marshal(resp)
	if err != nil {
		log.Error.Printf("rpc: marshaling error response: %v", err)
		return
	}
	if err := writeFrame(conn, b); err != nil {
		log.Error.Printf("rpc: writing response: %v", err)
	}
}

// Client issues RPCs against a single endpoint, dialing fresh for every
// call (§4.4: "connections are short-lived; one RPC per connect is
// acceptable").
type Client struct {
	Endpoint string
	Timeout  time.Duration
}

// defaultTimeout is the single RPC timeout applied to every
// request/response pair when Client.Timeout is zero (§5).
const defaultTimeout = 10 * time.Second

// Call marshals req, sends it as method to the client's endpoint, and
// unmarshals the response into resp. Connect/send/receive errors surface
// as an IO-kind (TransportFailure) error and a send or receive that times
// out as a Timeout-kind (NoResponse) error; the spec requires no retry at
// this layer.
func (c *Client) Call(ctx context.Context, method string, req, resp pb.Message) error {
	timeout := c.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var d local.Dialer
	conn, err := d.DialContext(ctx, c.Endpoint)
	if err != nil {
		return errors.E(method, errors.IO, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	payload, err := pb.Marshal(req)
	if err != nil {
		return errors.E(method, errors.Invalid, err)
	}
	envBytes, err := pb.Marshal(&rpcpb.Envelope{Method: method, Payload: payload})
	if err != nil {
		return errors.E(method, errors.Invalid, err)
	}
	if err := writeFrame(conn, envBytes); err != nil {
		return classifyIOErr(method, err)
	}

	frame, err := readFrame(conn)
	if err != nil {
		return classifyIOErr(method, err)
	}
	var r rpcpb.Response
	if err := pb.Unmarshal(frame, &r); err != nil {
		return errors.E(method, errors.IO, err)
	}
	if len(r.Error) != 0 {
		return errors.UnmarshalError(r.Error)
	}
	if resp != nil {
		if err := pb.Unmarshal(r.Payload, resp); err != nil {
			return errors.E(method, errors.IO, err)
		}
	}
	return nil
}

func classifyIOErr(method string, err error) error {
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		return errors.E(method, errors.Timeout, err)
	}
	return errors.E(method, errors.IO, err)
}

// writeFrame writes a 4-byte big-endian length prefix followed by data.
func writeFrame(w io.Writer, data []byte) error {
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(data)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err := w.Write(data)
	return err
}

// readFrame reads one length-prefixed frame.
func readFrame(r io.Reader) ([]byte, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(hdr[:])
	if n > maxFrameSize {
		return nil, errors.E(errors.IO, errors.Str("frame too large"))
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}
