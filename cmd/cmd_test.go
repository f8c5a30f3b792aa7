package cmd

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func zipBytes(t *testing.T, name, content string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create(name)
	require.NoError(t, err)
	_, err = w.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func execute(t *testing.T, args ...string) string {
	t.Helper()
	registerCommands()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	require.NoError(t, rootCmd.Execute(), "zipfetch %v\n%s", args, out.String())
	return out.String()
}

// The commands share package-level flag state, so the whole CLI flow runs
// as one test.
func TestCommandFlow(t *testing.T) {
	archive := zipBytes(t, "f1.txt", "hello")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/a.zip":
			w.Write(archive)
		case "/b.zip":
			w.Write([]byte("malformed"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	tmp := t.TempDir()
	dest := filepath.Join(tmp, "downloads")
	reportPath := filepath.Join(tmp, "reports", "run.parquet")
	historyPath := filepath.Join(tmp, "history.duckdb")

	require.NoError(t, os.MkdirAll(dest, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dest, "stale.txt"), []byte("old"), 0o644))

	out := execute(t,
		"--source", server.URL+"/a.zip",
		"--source", server.URL+"/b.zip",
		"--destination", dest,
		"--workers", "2",
		"--report", reportPath,
		"--history-db", historyPath,
		"--log-level", "error",
	)
	assert.Contains(t, out, "Downloaded files:\nf1.txt\n")
	assert.Contains(t, out, "Failed sources (1 of 2):")
	assert.Contains(t, out, server.URL+"/b.zip [archive_format]")

	entries, err := os.ReadDir(dest)
	require.NoError(t, err)
	require.Len(t, entries, 1, "stale files are cleared and failed downloads removed")
	assert.Equal(t, "f1.txt", entries[0].Name())

	out = execute(t, "inspect", reportPath)
	assert.Contains(t, out, "2 sources, 1 succeeded, 1 failed")

	out = execute(t, "history", "--event", "task_failure")
	assert.Contains(t, out, server.URL+"/b.zip")

	out = execute(t, "history", "--runs")
	assert.Contains(t, out, dest)

	out = execute(t, "config", "--format", "toml")
	assert.Contains(t, out, "workers = 2")
}
