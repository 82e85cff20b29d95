package storage

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, path string, size int, mod time.Time) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, bytes.Repeat([]byte("x"), size), 0644))
	require.NoError(t, os.Chtimes(path, mod, mod))
}

func TestSave(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "media")
	manager, err := NewManager(dir)
	require.NoError(t, err)
	assert.DirExists(t, dir)

	assert.False(t, manager.Exists("a.jpg"))

	path, n, err := manager.Save(strings.NewReader("photo"), "a.jpg")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "a.jpg"), path)
	assert.Equal(t, int64(5), n)
	assert.True(t, manager.Exists("a.jpg"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "photo", string(data))
	assert.NoFileExists(t, path+".tmp")
}

func TestSaveStripsDirectories(t *testing.T) {
	manager, err := NewManager(t.TempDir())
	require.NoError(t, err)

	path, _, err := manager.Save(strings.NewReader("x"), "../../escape.jpg")
	require.NoError(t, err)
	assert.Equal(t, manager.Dir(), filepath.Dir(path))
}

func TestRecentOrdersByModTime(t *testing.T) {
	dir := t.TempDir()
	manager, err := NewManager(dir)
	require.NoError(t, err)

	base := time.Now().Add(-time.Hour)
	for i, name := range []string{"old.jpg", "mid.mp4", "new.jpg"} {
		touch(t, filepath.Join(dir, name), 10, base.Add(time.Duration(i)*time.Minute))
	}
	touch(t, filepath.Join(dir, "partial.jpg.tmp"), 10, base.Add(time.Hour))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0755))

	paths, err := manager.Recent(0)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "new.jpg"),
		filepath.Join(dir, "mid.mp4"),
		filepath.Join(dir, "old.jpg"),
	}, paths)

	paths, err = manager.Recent(2)
	require.NoError(t, err)
	assert.Len(t, paths, 2)

	count, size, err := manager.Usage()
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	assert.Equal(t, int64(30), size)
}

func TestClean(t *testing.T) {
	dir := t.TempDir()
	manager, err := NewManager(dir)
	require.NoError(t, err)

	touch(t, filepath.Join(dir, "a.jpg"), 100, time.Now())
	touch(t, filepath.Join(dir, "b.jpg"), 50, time.Now())

	removed, freed, err := manager.Clean()
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	assert.Equal(t, int64(150), freed)
	assert.DirExists(t, dir)

	paths, err := manager.Recent(0)
	require.NoError(t, err)
	assert.Empty(t, paths)
}

func TestExisting(t *testing.T) {
	dir := t.TempDir()
	keep := filepath.Join(dir, "keep.jpg")
	touch(t, keep, 1, time.Now())

	got := Existing([]string{filepath.Join(dir, "gone.jpg"), keep, dir})
	assert.Equal(t, []string{keep}, got)
}
