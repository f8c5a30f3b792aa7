package output

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrepareCreatesMissingDir(t *testing.T) {
	fsys := afero.NewOsFs()
	path := filepath.Join(t.TempDir(), "parent", "downloads")

	require.NoError(t, Prepare(fsys, path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestPrepareClearsExistingDir(t *testing.T) {
	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "/downloads/old.txt", []byte("stale"), 0o644))
	require.NoError(t, afero.WriteFile(fsys, "/downloads/sub/older.txt", []byte("stale"), 0o644))

	require.NoError(t, Prepare(fsys, "/downloads"))

	entries, err := afero.ReadDir(fsys, "/downloads")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestPrepareReplacesFile(t *testing.T) {
	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "/downloads", []byte("not a dir"), 0o644))

	require.NoError(t, Prepare(fsys, "/downloads"))

	isDir, err := afero.IsDir(fsys, "/downloads")
	require.NoError(t, err)
	assert.True(t, isDir)
}

func TestPrepareEmptyPath(t *testing.T) {
	err := Prepare(afero.NewMemMapFs(), " ")
	assert.ErrorIs(t, err, ErrPrepare)
}

func TestPrepareReadOnlyFs(t *testing.T) {
	fsys := afero.NewReadOnlyFs(afero.NewMemMapFs())
	err := Prepare(fsys, "/downloads")
	assert.ErrorIs(t, err, ErrPrepare)
}
