package fsutil

import (
	"errors"
	"io/fs"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryFileSystem(t *testing.T) {
	m := NewMemoryFileSystem()

	_, err := m.Create("out/a.txt")
	assert.True(t, errors.Is(err, fs.ErrNotExist), "create without parent should fail")

	require.NoError(t, m.MkdirAll("out/run", 0o755))
	require.NoError(t, m.WriteFile("out/run/b.json", []byte(`{}`), 0o644))

	w, err := m.Create("out/a.txt")
	require.NoError(t, err)
	_, err = w.Write([]byte("hello"))
	require.NoError(t, err)
	_, err = m.ReadFile("out/a.txt")
	assert.Error(t, err, "file is not visible before Close")
	require.NoError(t, w.Close())

	data, err := m.ReadFile("out/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
	assert.Equal(t, []string{"out/a.txt", "out/run/b.json"}, m.Files())
}

func TestOSFileSystem(t *testing.T) {
	var fsys FileSystem = OSFileSystem{}
	dir := filepath.Join(t.TempDir(), "nested", "dir")
	require.NoError(t, fsys.MkdirAll(dir, 0o755))

	w, err := fsys.Create(filepath.Join(dir, "x.csv"))
	require.NoError(t, err)
	_, err = w.Write([]byte("t,v\n"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	data, err := fsys.ReadFile(filepath.Join(dir, "x.csv"))
	require.NoError(t, err)
	assert.Equal(t, "t,v\n", string(data))
}
