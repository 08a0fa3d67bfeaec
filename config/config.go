// Copyright 2016 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package config loads apteryxd's optional on-disk configuration file:
// the daemon's listen endpoint, its per-callback RPC timeout, and its
// worker-pool size. Command-line flags (see package flags) take
// precedence over whatever the file sets.
package config

import (
	"io/ioutil"
	"time"

	yaml "gopkg.in/yaml.v2"

	"apteryx.io/errors"
)

// Config is the shape of the daemon's YAML config file. Every field is
// optional; a zero value means "use the compiled-in default."
type Config struct {
	// Endpoint is the local endpoint name the daemon listens on.
	Endpoint string `yaml:"endpoint"`
	// Workers bounds the daemon's concurrent in-flight RPCs.
	Workers int `yaml:"workers"`
	// CallbackTimeout is a Go duration string (e.g. "5s") for the RPCs
	// the daemon issues back to a watcher or provider's endpoint; see
	// Timeout. cmd/apteryxd does not apply it: the daemon's callback
	// timeout is the fixed 5 seconds set by apteryxd.New.
	CallbackTimeout string `yaml:"callback_timeout"`
	// LogLevel sets the initial logging level: debug, info, error, or
	// disabled.
	LogLevel string `yaml:"log_level"`
}

// Load reads and parses the YAML config file at path.
func Load(path string) (*Config, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, errors.E("config.Load", errors.IO, err)
	}
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, errors.E("config.Load", errors.Invalid, err)
	}
	return &c, nil
}

// Timeout parses CallbackTimeout, returning fallback if it is unset.
func (c *Config) Timeout(fallback time.Duration) (time.Duration, error) {
	if c == nil || c.CallbackTimeout == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(c.CallbackTimeout)
	if err != nil {
		return 0, errors.E("config.Timeout", errors.Invalid, err)
	}
	return d, nil
}
