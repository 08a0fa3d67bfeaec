// Copyright 2016 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package rpcpb holds the protocol buffer message shapes shared between
// the Apteryx daemon, its clients, and the per-process callback servers.
// These are the only types that cross the wire; the rest of the system
// uses native Go types and converts at the boundary. The spec fixes
// message shapes, not byte layout (see DESIGN.md): github.com/golang/
// protobuf/proto, pinned to its pre-APIv2 release, marshals any struct
// satisfying proto.Message via its "protobuf" struct tags, so these
// types need no generated code.
package rpcpb

import (
	pb "github.com/golang/protobuf/proto"
)

// Envelope wraps every outgoing RPC request: a method name and its
// marshaled request payload. The method table on the receiving side
// (see package rpc) looks up Method to find the right unmarshaler and
// handler.
type Envelope struct {
	Method  string `protobuf:"bytes,1,opt,name=method" json:"method,omitempty"`
	Payload []byte `protobuf:"bytes,2,opt,name=payload,proto3" json:"payload,omitempty"`
}

func (m *Envelope) Reset()         { *m = Envelope{} }
func (m *Envelope) String() string { return protoString(m) }
func (*Envelope) ProtoMessage()    {}

// Response wraps every RPC response: either a payload or a marshaled
// error (mutually exclusive; see errors.MarshalError/UnmarshalError).
type Response struct {
	Payload []byte `protobuf:"bytes,1,opt,name=payload,proto3" json:"payload,omitempty"`
	Error   []byte `protobuf:"bytes,2,opt,name=error,proto3" json:"error,omitempty"`
}

func (m *Response) Reset()         { *m = Response{} }
func (m *Response) String() string { return protoString(m) }
func (*Response) ProtoMessage()    {}

// SetRequest is the request for the "set" method (§6).
type SetRequest struct {
	Path  string `protobuf:"bytes,1,opt,name=path" json:"path,omitempty"`
	Value []byte `protobuf:"bytes,2,opt,name=value,proto3" json:"value,omitempty"`
}

func (m *SetRequest) Reset()         { *m = SetRequest{} }
func (m *SetRequest) String() string { return protoString(m) }
func (*SetRequest) ProtoMessage()    {}

// OK is the empty, no-payload response shared by set, prune, watch
// (registration), and provide (registration).
type OK struct{}

func (m *OK) Reset()         { *m = OK{} }
func (m *OK) String() string { return protoString(m) }
func (*OK) ProtoMessage()    {}

// GetRequest is the request for the "get" method.
type GetRequest struct {
	Path string `protobuf:"bytes,1,opt,name=path" json:"path,omitempty"`
}

func (m *GetRequest) Reset()         { *m = GetRequest{} }
func (m *GetRequest) String() string { return protoString(m) }
func (*GetRequest) ProtoMessage()    {}

// GetResponse carries the resolved value. An empty Value means absent.
type GetResponse struct {
	Value []byte `protobuf:"bytes,1,opt,name=value,proto3" json:"value,omitempty"`
}

func (m *GetResponse) Reset()         { *m = GetResponse{} }
func (m *GetResponse) String() string { return protoString(m) }
func (*GetResponse) ProtoMessage()    {}

// SearchRequest is the request for the "search" method.
type SearchRequest struct {
	Path string `protobuf:"bytes,1,opt,name=path" json:"path,omitempty"`
}

func (m *SearchRequest) Reset()         { *m = SearchRequest{} }
func (m *SearchRequest) String() string { return protoString(m) }
func (*SearchRequest) ProtoMessage()    {}

// SearchResponse lists the direct children found.
type SearchResponse struct {
	Paths []string `protobuf:"bytes,1,rep,name=paths" json:"paths,omitempty"`
}

func (m *SearchResponse) Reset()         { *m = SearchResponse{} }
func (m *SearchResponse) String() string { return protoString(m) }
func (*SearchResponse) ProtoMessage()    {}

// PruneRequest is the request for the "prune" method.
type PruneRequest struct {
	Path string `protobuf:"bytes,1,opt,name=path" json:"path,omitempty"`
}

func (m *PruneRequest) Reset()         { *m = PruneRequest{} }
func (m *PruneRequest) String() string { return protoString(m) }
func (*PruneRequest) ProtoMessage()    {}

// WatchRegisterRequest registers (or, with Cb == 0, unregisters) a
// watcher pattern with the daemon.
type WatchRegisterRequest struct {
	Pattern  string `protobuf:"bytes,1,opt,name=pattern" json:"pattern,omitempty"`
	Owner    uint64 `protobuf:"varint,2,opt,name=owner" json:"owner,omitempty"`
	Cb       uint64 `protobuf:"varint,3,opt,name=cb" json:"cb,omitempty"`
	Priv     uint64 `protobuf:"varint,4,opt,name=priv" json:"priv,omitempty"`
	Endpoint string `protobuf:"bytes,5,opt,name=endpoint" json:"endpoint,omitempty"`
}

func (m *WatchRegisterRequest) Reset()         { *m = WatchRegisterRequest{} }
func (m *WatchRegisterRequest) String() string { return protoString(m) }
func (*WatchRegisterRequest) ProtoMessage()    {}

// WatchDeliverRequest is sent by the daemon to a watcher's callback
// server when a path it watches changes. cb and priv are opaque and
// echoed back verbatim from the matching WatchRegisterRequest.
type WatchDeliverRequest struct {
	Path  string `protobuf:"bytes,1,opt,name=path" json:"path,omitempty"`
	Value []byte `protobuf:"bytes,2,opt,name=value,proto3" json:"value,omitempty"`
	Owner uint64 `protobuf:"varint,3,opt,name=owner" json:"owner,omitempty"`
	Cb    uint64 `protobuf:"varint,4,opt,name=cb" json:"cb,omitempty"`
	Priv  uint64 `protobuf:"varint,5,opt,name=priv" json:"priv,omitempty"`
}

func (m *WatchDeliverRequest) Reset()         { *m = WatchDeliverRequest{} }
func (m *WatchDeliverRequest) String() string { return protoString(m) }
func (*WatchDeliverRequest) ProtoMessage()    {}

// ProvideRegisterRequest registers (or, with Cb == 0, unregisters) a
// provider for an exact path.
type ProvideRegisterRequest struct {
	Path     string `protobuf:"bytes,1,opt,name=path" json:"path,omitempty"`
	Owner    uint64 `protobuf:"varint,2,opt,name=owner" json:"owner,omitempty"`
	Cb       uint64 `protobuf:"varint,3,opt,name=cb" json:"cb,omitempty"`
	Priv     uint64 `protobuf:"varint,4,opt,name=priv" json:"priv,omitempty"`
	Endpoint string `protobuf:"bytes,5,opt,name=endpoint" json:"endpoint,omitempty"`
}

func (m *ProvideRegisterRequest) Reset()         { *m = ProvideRegisterRequest{} }
func (m *ProvideRegisterRequest) String() string { return protoString(m) }
func (*ProvideRegisterRequest) ProtoMessage()    {}

// ProvideResolveRequest is sent by the daemon to a provider's callback
// server to resolve a get for the path it provides.
type ProvideResolveRequest struct {
	Path  string `protobuf:"bytes,1,opt,name=path" json:"path,omitempty"`
	Owner uint64 `protobuf:"varint,2,opt,name=owner" json:"owner,omitempty"`
	Cb    uint64 `protobuf:"varint,3,opt,name=cb" json:"cb,omitempty"`
	Priv  uint64 `protobuf:"varint,4,opt,name=priv" json:"priv,omitempty"`
}

func (m *ProvideResolveRequest) Reset()         { *m = ProvideResolveRequest{} }
func (m *ProvideResolveRequest) String() string { return protoString(m) }
func (*ProvideResolveRequest) ProtoMessage()    {}

// ProvideResolveResponse carries the bytes the provider supplied.
type ProvideResolveResponse struct {
	Value []byte `protobuf:"bytes,1,opt,name=value,proto3" json:"value,omitempty"`
}

func (m *ProvideResolveResponse) Reset()         { *m = ProvideResolveResponse{} }
func (m *ProvideResolveResponse) String() string { return protoString(m) }
func (*ProvideResolveResponse) ProtoMessage()    {}

// protoString gives every message type here a debug-friendly String by
// delegating to proto's reflection-based text formatter.
func protoString(m pb.Message) string {
	return pb.CompactTextString(m)
}
