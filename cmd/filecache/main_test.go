package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type result struct {
	code   int
	stdout string
	stderr string
}

func runCLI(t *testing.T, args ...string) result {
	t.Helper()
	var out, errOut bytes.Buffer
	code := run(context.Background(), &out, &errOut, args)
	return result{code: code, stdout: out.String(), stderr: errOut.String()}
}

func TestRun_Usage(t *testing.T) {
	r := runCLI(t)
	assert.Equal(t, 0, r.code)
	assert.Contains(t, r.stdout, "Usage: filecache")

	r = runCLI(t, "--dir", t.TempDir(), "frobnicate")
	assert.Equal(t, 2, r.code)
	assert.Contains(t, r.stderr, `unknown command "frobnicate"`)

	r = runCLI(t, "--bogus")
	assert.Equal(t, 2, r.code)
}

func TestRun_PutGetRm(t *testing.T) {
	dir := t.TempDir()

	r := runCLI(t, "--dir", dir, "put", "greeting", "hello")
	require.Equal(t, 0, r.code, r.stderr)
	id := strings.TrimSpace(r.stdout)
	assert.FileExists(t, filepath.Join(dir, id))
	assert.FileExists(t, filepath.Join(dir, id+".meta"))

	r = runCLI(t, "--dir", dir, "get", "greeting")
	require.Equal(t, 0, r.code, r.stderr)
	assert.Equal(t, "hello\n", r.stdout)

	r = runCLI(t, "--dir", dir, "put", "greeting", "hola")
	require.Equal(t, 0, r.code, r.stderr)
	assert.Equal(t, id, strings.TrimSpace(r.stdout), "same name must address the same entry")

	r = runCLI(t, "--dir", dir, "get", "greeting")
	assert.Equal(t, "hola\n", r.stdout)

	r = runCLI(t, "--dir", dir, "rm", "greeting")
	require.Equal(t, 0, r.code, r.stderr)
	assert.NoFileExists(t, filepath.Join(dir, id))

	r = runCLI(t, "--dir", dir, "get", "greeting")
	assert.Equal(t, 1, r.code)
	assert.Contains(t, r.stderr, "not found: greeting")

	r = runCLI(t, "--dir", dir, "rm", "greeting")
	assert.Equal(t, 1, r.code)
}

func TestRun_LsMetaLoad(t *testing.T) {
	dir := t.TempDir()

	for _, kv := range [][2]string{{"a", "1"}, {"b", "2"}, {"c", "3"}} {
		r := runCLI(t, "--dir", dir, "put", kv[0], kv[1])
		require.Equal(t, 0, r.code, r.stderr)
	}

	r := runCLI(t, "--dir", dir, "ls")
	require.Equal(t, 0, r.code, r.stderr)
	lines := strings.Split(strings.TrimSpace(r.stdout), "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[1], " c ")
	assert.Contains(t, lines[3], " a ")

	r = runCLI(t, "--dir", dir, "ls", "--limit", "1")
	require.Equal(t, 0, r.code, r.stderr)
	assert.Len(t, strings.Split(strings.TrimSpace(r.stdout), "\n"), 2)

	r = runCLI(t, "--dir", dir, "meta", "b")
	require.Equal(t, 0, r.code, r.stderr)
	assert.Contains(t, r.stdout, "name:        b")

	r = runCLI(t, "--dir", dir, "--max", "2", "load")
	require.Equal(t, 0, r.code, r.stderr)
	assert.Equal(t, "c=3\nb=2\n", r.stdout)

	r = runCLI(t, "--dir", dir, "reset")
	require.Equal(t, 0, r.code, r.stderr)
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRun_JSONCodec(t *testing.T) {
	dir := t.TempDir()

	r := runCLI(t, "--dir", dir, "--codec", "json", "put", "doc", `{"r":0,"j":{"t":"teste"}}`)
	require.Equal(t, 0, r.code, r.stderr)

	r = runCLI(t, "--dir", dir, "--codec", "json", "get", "doc")
	require.Equal(t, 0, r.code, r.stderr)
	assert.JSONEq(t, `{"r":0,"j":{"t":"teste"}}`, r.stdout)

	r = runCLI(t, "--dir", dir, "--codec", "json", "put", "doc", "not json")
	assert.Equal(t, 1, r.code)

	r = runCLI(t, "--dir", dir, "--codec", "yaml", "get", "doc")
	assert.Equal(t, 1, r.code)
	assert.Contains(t, r.stderr, "unknown codec")
}

func TestRun_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	data := filepath.Join(dir, "data")
	cfgPath := filepath.Join(dir, "filecache.jsonc")

	cfg := `{
	"max_size": 4, // resident entries
	"store": {"dest": "` + filepath.ToSlash(data) + `"},
}`
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o644))

	r := runCLI(t, "--config", cfgPath, "put", "k", "v")
	require.Equal(t, 0, r.code, r.stderr)
	assert.FileExists(t, filepath.Join(data, strings.TrimSpace(r.stdout)))

	r = runCLI(t, "--config", filepath.Join(dir, "missing.json"), "get", "k")
	assert.Equal(t, 1, r.code)
}

func TestRun_Bench(t *testing.T) {
	r := runCLI(t, "--dir", t.TempDir(), "--max", "8", "bench", "--n", "32")
	require.Equal(t, 0, r.code, r.stderr)
	assert.Contains(t, r.stdout, "set: 32 ops")
	assert.Contains(t, r.stdout, "get: 32 ops")
	assert.Contains(t, r.stdout, "max_size=8")
	assert.Contains(t, r.stdout, "evictions=")

	r = runCLI(t, "--dir", t.TempDir(), "bench", "--n", "0")
	assert.Equal(t, 2, r.code)
}

func TestRun_Verbose(t *testing.T) {
	r := runCLI(t, "--dir", t.TempDir(), "--verbose", "put", "k", "v")
	require.Equal(t, 0, r.code, r.stderr)
	assert.Contains(t, r.stderr, "store.setup")
	assert.Contains(t, r.stderr, "cache.set")
	assert.Contains(t, r.stderr, "cache.flush")

	r = runCLI(t, "--dir", t.TempDir(), "--events", "noop", "put", "k", "v")
	require.Equal(t, 0, r.code, r.stderr)
	assert.Empty(t, r.stderr)

	r = runCLI(t, "--dir", t.TempDir(), "--events", "otel", "put", "k", "v")
	assert.Equal(t, 2, r.code)
	assert.Contains(t, r.stderr, "unknown observer")
}
