package archive

import (
	"bytes"
	"path/filepath"
	"sort"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type member struct {
	name, body string
}

func buildZip(t *testing.T, members ...member) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, m := range members {
		w, err := zw.Create(m.name)
		require.NoError(t, err)
		_, err = w.Write([]byte(m.body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestZipOpenAndExtract(t *testing.T) {
	fsys := afero.NewMemMapFs()
	dir := "/out"
	require.NoError(t, fsys.MkdirAll(dir, 0o755))
	path := filepath.Join(dir, "data.zip")
	require.NoError(t, afero.WriteFile(fsys, path, buildZip(t,
		member{"a.txt", "alpha"},
		member{"nested/", ""},
		member{"nested/b.csv", "x,y\n1,2\n"},
	), 0o644))

	a, err := Zip{}.Open(fsys, path)
	require.NoError(t, err)
	defer a.Close()

	assert.Equal(t, []string{"a.txt", "nested/", "nested/b.csv"}, a.Names())
	require.NoError(t, a.ExtractAll(fsys, dir))

	got, err := afero.ReadFile(fsys, filepath.Join(dir, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "alpha", string(got))

	got, err = afero.ReadFile(fsys, filepath.Join(dir, "nested", "b.csv"))
	require.NoError(t, err)
	assert.Equal(t, "x,y\n1,2\n", string(got))
}

func TestZipOpenOnDisk(t *testing.T) {
	fsys := afero.NewOsFs()
	dir := t.TempDir()
	path := filepath.Join(dir, "one.zip")
	require.NoError(t, afero.WriteFile(fsys, path, buildZip(t, member{"f1.txt", "hello"}), 0o644))

	a, err := Zip{}.Open(fsys, path)
	require.NoError(t, err)
	require.NoError(t, a.ExtractAll(fsys, dir))
	require.NoError(t, a.Close())

	entries, err := afero.ReadDir(fsys, dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	assert.Equal(t, []string{"f1.txt", "one.zip"}, names)
}

func TestZipOpenNotAnArchive(t *testing.T) {
	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "/x/nice.zip", []byte("Text file content"), 0o644))

	_, err := Zip{}.Open(fsys, "/x/nice.zip")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFormat)
}

func TestZipOpenMissingFile(t *testing.T) {
	_, err := Zip{}.Open(afero.NewMemMapFs(), "/nowhere.zip")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrFormat)
}

func TestExtractRejectsEscapingMembers(t *testing.T) {
	tests := map[string]string{
		"parent traversal": "../evil.txt",
		"deep traversal":   "a/../../evil.txt",
		"absolute":         "/etc/evil.txt",
	}

	for name, memberName := range tests {
		t.Run(name, func(t *testing.T) {
			fsys := afero.NewMemMapFs()
			require.NoError(t, afero.WriteFile(fsys, "/out/bad.zip", buildZip(t,
				member{"ok.txt", "fine"},
				member{memberName, "boom"},
			), 0o644))

			a, err := Zip{}.Open(fsys, "/out/bad.zip")
			if err == nil {
				defer a.Close()
				err = a.ExtractAll(fsys, "/out")
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrFormat)

			exists, err := afero.Exists(fsys, "/out/ok.txt")
			require.NoError(t, err)
			assert.False(t, exists, "nothing is extracted from an unsafe archive")
		})
	}
}

func TestExtractAfterSourceRemoved(t *testing.T) {
	fsys := afero.NewOsFs()
	dir := t.TempDir()
	path := filepath.Join(dir, "pack.zip")
	require.NoError(t, afero.WriteFile(fsys, path, buildZip(t,
		member{"pack.zip", "inner bytes"},
		member{"other.txt", "other"},
	), 0o644))

	a, err := Zip{}.Open(fsys, path)
	require.NoError(t, err)
	defer a.Close()
	require.NoError(t, fsys.Remove(path))

	require.NoError(t, a.ExtractAll(fsys, dir))
	got, err := afero.ReadFile(fsys, path)
	require.NoError(t, err)
	assert.Equal(t, "inner bytes", string(got))
}
