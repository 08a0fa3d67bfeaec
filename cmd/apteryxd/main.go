// Copyright 2016 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Apteryxd is the Apteryx daemon: it owns the path/value tree and the
// watcher and provider registries, and serves the six RPC operations
// (set, get, search, prune, watch, provide) on a well-known local
// endpoint.
package main

import (
	"context"
	"flag"
	"fmt"

	"apteryx.io/apteryxd"
	"apteryx.io/config"
	"apteryx.io/flags"
	"apteryx.io/log"
	"apteryx.io/metric"
	"apteryx.io/rpc"
	"apteryx.io/rpc/local"
	"apteryx.io/shutdown"
	"apteryx.io/version"
)

var showVersion = flag.Bool("version", false, "print build version and exit")

func main() {
	flags.Parse(&flags.Endpoint, &flags.Workers, &flags.ConfigFile, &flags.Log)
	if *showVersion {
		fmt.Print(version.Version())
		return
	}
	metric.RegisterSaver(metric.NewLogSaver())

	endpoint := flags.Endpoint
	workers := flags.Workers
	if flags.ConfigFile != "" {
		c, err := config.Load(flags.ConfigFile)
		if err != nil {
			log.Fatal(err)
		}
		// Flags given on the command line take precedence over the file.
		set := make(map[string]bool)
		flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
		if c.Endpoint != "" && !set["endpoint"] {
			endpoint = c.Endpoint
		}
		if c.Workers != 0 && !set["workers"] {
			workers = c.Workers
		}
		if c.LogLevel != "" && !set["log"] {
			if err := log.SetLevel(c.LogLevel); err != nil {
				log.Fatal(err)
			}
		}
	}

	srv := apteryxd.New()
	ln, err := local.Listen(endpoint)
	if err != nil {
		log.Fatalf("apteryxd: listen on %q: %v", endpoint, err)
	}

	s := rpc.NewServer(srv.Service(), workers)
	ctx, cancel := context.WithCancel(context.Background())

	shutdown.Handle(func() {
		cancel()
		ln.Close()
	})

	log.Printf("apteryxd: listening on %q with %d workers", endpoint, workers)
	if err := s.Serve(ctx, ln); err != nil {
		log.Error.Printf("apteryxd: serve: %v", err)
		shutdown.Now(1)
	}
}
