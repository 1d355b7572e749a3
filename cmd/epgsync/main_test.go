// SPDX-License-Identifier: MIT

package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/epgsync/internal/checksum"
)

const feed = `<?xml version="1.0" encoding="UTF-8"?>
<tv>
  <channel id="1"><display-name>News</display-name></channel>
  <programme channel="1" start="20240101000000 +0000"><title>Headlines</title></programme>
</tv>`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestRun_Version(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"-version"}, &stdout, &stderr)
	assert.Equal(t, exitOK, code)
	assert.Contains(t, stdout.String(), "commit:")
}

func TestRun_UnknownFlag(t *testing.T) {
	var stdout, stderr bytes.Buffer
	assert.Equal(t, exitUsage, run(context.Background(), []string{"-nope"}, &stdout, &stderr))
}

func TestRun_InvalidConfig(t *testing.T) {
	path := writeFile(t, t.TempDir(), "epgsync.yaml", "sources:\n  mirrors: []\n")
	var stdout, stderr bytes.Buffer
	assert.Equal(t, exitUsage, run(context.Background(), []string{"-config", path}, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "config.load_failed")
}

func TestRun_OneShot(t *testing.T) {
	var healthy atomic.Bool
	healthy.Store(true)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if !healthy.Load() {
			http.Error(w, "down", http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(feed))
	}))
	defer srv.Close()

	dir := t.TempDir()
	out := filepath.Join(dir, "out")
	path := writeFile(t, dir, "epgsync.yaml", fmt.Sprintf(`
sources:
  primary:
    - %s/pp.xml
  backup: []
output:
  dir: %s
maxRetries: 1
retryBaseDelay: 1ms
requestTimeout: 5s
history:
  path: %s
metrics:
  textfile: %s
`, srv.URL, out, filepath.Join(dir, "history.sqlite"), filepath.Join(dir, "epgsync.prom")))

	var stdout, stderr bytes.Buffer
	require.Equal(t, exitOK, run(context.Background(), []string{"-config", path}, &stdout, &stderr), stderr.String())

	sum, err := os.ReadFile(filepath.Join(out, "md5.txt"))
	require.NoError(t, err)
	assert.Equal(t, checksum.Sum(feed), string(sum))
	for _, name := range []string{"index.xml", "index.xml.gz", "index.json"} {
		_, err := os.Stat(filepath.Join(out, name))
		assert.NoError(t, err, name)
	}
	prom, err := os.ReadFile(filepath.Join(dir, "epgsync.prom"))
	require.NoError(t, err)
	assert.Contains(t, string(prom), "epgsync_runs_total")

	// Unchanged feed still succeeds.
	require.Equal(t, exitOK, run(context.Background(), []string{"-config", path}, &stdout, &stderr))

	// All mirrors down.
	healthy.Store(false)
	assert.Equal(t, exitFailure, run(context.Background(), []string{"-config", path}, &stdout, &stderr))
}

func TestRunValidate(t *testing.T) {
	dir := t.TempDir()
	good := writeFile(t, dir, "good.yaml", "maxRetries: 2\n")
	bad := writeFile(t, dir, "bad.yaml", "maxRetries: 50\n")

	var stdout, stderr bytes.Buffer
	assert.Equal(t, exitOK, run(context.Background(), []string{"validate", "-f", good}, &stdout, &stderr))
	assert.Contains(t, stdout.String(), "is valid")

	assert.Equal(t, exitFailure, run(context.Background(), []string{"validate", "--file", bad}, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "MaxRetries")

	assert.Equal(t, exitUsage, run(context.Background(), []string{"validate"}, &stdout, &stderr))
}
