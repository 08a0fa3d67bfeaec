// Copyright 2016 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package config

import (
	"io/ioutil"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()
	f, err := ioutil.TempFile("", "apteryxd-config-*.yaml")
	if err != nil {
		t.Fatalf("TempFile: %v", err)
	}
	defer f.Close()
	if _, err := f.WriteString(contents); err != nil {
		t.Fatalf("WriteString: %v", err)
	}
	t.Cleanup(func() { os.Remove(f.Name()) })
	return f.Name()
}

func TestLoadParsesFields(t *testing.T) {
	path := writeTempConfig(t, "endpoint: apteryxd-test\nworkers: 16\ncallback_timeout: 2s\nlog_level: debug\n")
	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "apteryxd-test", c.Endpoint)
	assert.Equal(t, 16, c.Workers)
	assert.Equal(t, "debug", c.LogLevel)

	d, err := c.Timeout(5 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, d)
}

func TestLoadMissingFileIsError(t *testing.T) {
	_, err := Load("/no/such/apteryxd-config.yaml")
	assert.Error(t, err)
}

func TestTimeoutFallsBackWhenUnset(t *testing.T) {
	var c Config
	d, err := c.Timeout(7 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, 7*time.Second, d)
}
