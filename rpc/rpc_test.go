// Copyright 2016 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rpc

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	pb "github.com/golang/protobuf/proto"

	"apteryx.io/errors"
	"apteryx.io/rpc/local"
	"apteryx.io/rpcpb"
)

func testEndpoint(t *testing.T) string {
	t.Helper()
	return fmt.Sprintf("apteryx-rpc-test.%d", os.Getpid())
}

func startEchoServer(t *testing.T, endpoint string) (stop func()) {
	t.Helper()
	ln, err := local.Listen(endpoint)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	svc := &Service{
		Name: "test",
		Methods: map[string]Method{
			"echo": func(ctx context.Context, reqBytes []byte) (pb.Message, error) {
				var req rpcpb.GetRequest
				if err := pb.Unmarshal(reqBytes, &req); err != nil {
					return nil, err
				}
				return &rpcpb.GetResponse{Value: []byte(req.Path)}, nil
			},
			"fail": func(ctx context.Context, reqBytes []byte) (pb.Message, error) {
				return nil, errors.E("fail", errors.Invalid, errors.Str("boom"))
			},
		},
	}
	srv := NewServer(svc, 2)
	ctx, cancel := context.WithCancel(context.Background())
	go srv.Serve(ctx, ln)
	return func() {
		cancel()
		ln.Close()
	}
}

func TestCallRoundTrip(t *testing.T) {
	endpoint := testEndpoint(t)
	stop := startEchoServer(t, endpoint)
	defer stop()

	c := &Client{Endpoint: endpoint, Timeout: 2 * time.Second}
	var resp rpcpb.GetResponse
	err := c.Call(context.Background(), "echo", &rpcpb.GetRequest{Path: "/a/b"}, &resp)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if string(resp.Value) != "/a/b" {
		t.Fatalf("resp.Value = %q, want %q", resp.Value, "/a/b")
	}
}

func TestCallPropagatesMethodError(t *testing.T) {
	endpoint := testEndpoint(t) + "-fail"
	stop := startEchoServer(t, endpoint)
	defer stop()

	c := &Client{Endpoint: endpoint, Timeout: 2 * time.Second}
	var resp rpcpb.GetResponse
	err := c.Call(context.Background(), "fail", &rpcpb.GetRequest{}, &resp)
	if err == nil {
		t.Fatal("expected an error")
	}
	if !errors.Is(errors.Invalid, err) {
		t.Fatalf("err = %v, want Kind Invalid", err)
	}
}

func TestCallUnknownMethod(t *testing.T) {
	endpoint := testEndpoint(t) + "-unknown"
	stop := startEchoServer(t, endpoint)
	defer stop()

	c := &Client{Endpoint: endpoint, Timeout: 2 * time.Second}
	var resp rpcpb.GetResponse
	err := c.Call(context.Background(), "nonexistent", &rpcpb.GetRequest{}, &resp)
	if err == nil {
		t.Fatal("expected an error for unknown method")
	}
}

func TestCallConnectionRefused(t *testing.T) {
	c := &Client{Endpoint: "apteryx-rpc-test-no-such-endpoint", Timeout: 500 * time.Millisecond}
	var resp rpcpb.GetResponse
	err := c.Call(context.Background(), "echo", &rpcpb.GetRequest{}, &resp)
	if err == nil {
		t.Fatal("expected a transport error when nothing is listening")
	}
}
