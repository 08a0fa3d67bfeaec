// Copyright 2016 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package flags defines command-line flags shared by the apteryxd daemon
// and the apteryx CLI, so both binaries expose the same names for the
// same concepts.
package flags

import (
	"flag"
	"fmt"
	"reflect"

	"apteryx.io/log"
)

// We define the flags in two steps so clients don't have to write *flags.Flag.
// It also makes the documentation easier to read.

var (
	// Endpoint is the local-endpoint base name the daemon listens on and
	// clients dial. Each client process's own callback server derives its
	// endpoint from this same base (see rpc/local.EndpointName).
	Endpoint = "apteryxd"

	// Workers bounds the number of RPCs the daemon serves concurrently.
	Workers = 4

	// ConfigFile is the name of an optional YAML file of startup
	// settings for apteryxd; see package config.
	ConfigFile = ""

	// Log sets the logging level: debug, info, error, or disabled.
	Log logFlag
)

type logFlag string

// String implements flag.Value.
func (l *logFlag) String() string {
	return string(*l)
}

// Set implements flag.Value.
func (l *logFlag) Set(level string) error {
	if err := log.SetLevel(level); err != nil {
		return err
	}
	*l = logFlag(log.GetLevel())
	return nil
}

// Get implements flag.Getter.
func (l *logFlag) Get() interface{} {
	return log.GetLevel()
}

// Parse sets up the command-line flags for the given flag variables and
// calls flag.Parse. Passing an unknown variable triggers a panic.
//
// For example:
//	flags.Parse(&flags.Endpoint, &flags.Workers)
func Parse(vars ...interface{}) error {
	for i, v := range vars {
		unknown := false
		switch v := v.(type) {
		case *string:
			switch v {
			case &Endpoint:
				flag.StringVar(v, "endpoint", Endpoint, "local endpoint base name for the daemon")
			case &ConfigFile:
				flag.StringVar(v, "configfile", ConfigFile, "YAML `file` with daemon config")
			default:
				unknown = true
			}
		case *int:
			switch v {
			case &Workers:
				flag.IntVar(v, "workers", Workers, "maximum concurrent in-flight RPCs")
			default:
				unknown = true
			}
		case *logFlag:
			switch v {
			case &Log:
				v.Set("info")
				flag.Var(v, "log", "`level` of logging: debug, info, error, disabled")
			default:
				unknown = true
			}
		default:
			unknown = true
		}
		if unknown {
			msg := fmt.Sprintf("flags: unknown flag (%#v, arg %d)", v, i)
			if reflect.TypeOf(v).Kind() != reflect.Ptr {
				msg += ", expected pointer type"
			}
			panic(msg)
		}
	}
	flag.Parse()
	return nil
}
