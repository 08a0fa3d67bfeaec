// Copyright 2016 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Apteryx is the command-line client for the Apteryx daemon. It exposes
// one subcommand per library-surface operation: set, get, search,
// prune, watch, and dump.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"apteryx.io/client"
	"apteryx.io/flags"
	"apteryx.io/log"
	"apteryx.io/version"
)

var showVersion = flag.Bool("version", false, "print build version and exit")

func usage() {
	fmt.Fprintf(os.Stderr, "usage: apteryx [flags] <command> args...\n")
	fmt.Fprintf(os.Stderr, "commands: set <path> <value> | get <path> | search <dir> | prune <path> | watch <pattern> | dump <path>\n")
	os.Exit(2)
}

func main() {
	flags.Parse(&flags.Endpoint, &flags.ConfigFile, &flags.Log)
	if *showVersion {
		fmt.Print(version.Version())
		return
	}
	args := flag.Args()
	if len(args) < 1 {
		usage()
	}

	h, err := client.New(client.Config{Endpoint: flags.Endpoint})
	if err != nil {
		log.Fatal(err)
	}
	defer h.Close()

	ctx := context.Background()
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "set":
		if len(rest) != 2 {
			usage()
		}
		if err := h.Set(ctx, rest[0], []byte(rest[1])); err != nil {
			log.Fatal(err)
		}
	case "get":
		if len(rest) != 1 {
			usage()
		}
		value, err := h.Get(ctx, rest[0])
		if err != nil {
			log.Fatal(err)
		}
		if len(value) == 0 {
			fmt.Println("<absent>")
		} else {
			fmt.Println(string(value))
		}
	case "search":
		if len(rest) != 1 {
			usage()
		}
		paths, err := h.Search(ctx, rest[0])
		if err != nil {
			log.Fatal(err)
		}
		for _, p := range paths {
			fmt.Println(p)
		}
	case "prune":
		if len(rest) != 1 {
			usage()
		}
		if err := h.Prune(ctx, rest[0]); err != nil {
			log.Fatal(err)
		}
	case "watch":
		if len(rest) != 1 {
			usage()
		}
		runWatch(ctx, h, rest[0])
	case "dump":
		path := ""
		if len(rest) == 1 {
			path = rest[0]
		}
		if err := h.Dump(ctx, path, os.Stdout); err != nil {
			log.Fatal(err)
		}
	default:
		usage()
	}
}

// runWatch registers a watcher that prints every delivery to stdout
// until the process is interrupted.
func runWatch(ctx context.Context, h *client.Handle, pattern string) {
	block := make(chan struct{})
	cb := func(path string, priv uint64, value []byte) error {
		if len(value) == 0 {
			fmt.Printf("%s deleted\n", path)
		} else {
			fmt.Printf("%s = %s\n", path, value)
		}
		return nil
	}
	if err := h.Watch(ctx, pattern, cb, 0); err != nil {
		log.Fatal(err)
	}
	<-block
}
