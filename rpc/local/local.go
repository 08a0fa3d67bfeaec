// Copyright 2017 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package local provides interprocess communication endpoints on the
// local host: the daemon's well-known endpoint and each client
// process's callback-server endpoint (§6 of the design: "<base>.<pid>").
// Apteryx has no remote transport to fall back to: every endpoint named
// here resolves to a unix domain socket, or a loopback TCP port on
// platforms without one.
package local // import "apteryx.io/rpc/local"

import (
	"context"
	"fmt"
	"net"
	"os"
)

// Dialer dials a named local endpoint.
type Dialer net.Dialer

// EndpointName returns the per-process callback-server endpoint name for
// base, as described in the design's endpoint naming scheme.
func EndpointName(base string) string {
	return fmt.Sprintf("%s.%d", base, os.Getpid())
}

// DialContext dials the named local endpoint.
func (d *Dialer) DialContext(ctx context.Context, address string) (net.Conn, error) {
	return d.DialContextLocal(ctx, "unix", address)
}

// Listen listens on the named local endpoint.
func Listen(address string) (net.Listener, error) {
	return ListenLocal(address)
}
