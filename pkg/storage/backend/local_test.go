// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package backend

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/LeeDigitalWorks/zapdav/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLocalStore(t *testing.T) types.ObjectStore {
	t.Helper()
	store, err := NewLocal(types.BackendConfig{Type: types.StorageTypeLocal, Path: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestLocal_ObjectStore(t *testing.T) {
	t.Parallel()
	runObjectStoreSuite(t, newLocalStore)
}

func TestLocal_FixedLength(t *testing.T) {
	t.Parallel()
	runLengthSuite(t, newLocalStore)
}

func TestLocal_Layout(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := NewLocal(types.BackendConfig{Type: types.StorageTypeLocal, Path: dir})
	require.NoError(t, err)
	ctx := context.Background()

	_, err = store.Put(ctx, "a/b.txt", strings.NewReader("hello"), 5, types.PutOptions{
		Metadata: map[string]string{"owner": "x"},
	})
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, localDataDir, "a", "b.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	meta, err := os.ReadFile(filepath.Join(dir, localMetaDir, "a", "b.txt"))
	require.NoError(t, err)
	assert.Contains(t, string(meta), `"owner":"x"`)

	// No temp files left behind
	entries, err := os.ReadDir(filepath.Join(dir, localTmpDir))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestLocal_MissingSidecar(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := NewLocal(types.BackendConfig{Type: types.StorageTypeLocal, Path: dir})
	require.NoError(t, err)

	// Content dropped in place by hand has no sidecar
	require.NoError(t, os.WriteFile(filepath.Join(dir, localDataDir, "raw.bin"), []byte("abc"), 0644))

	info, err := store.Head(context.Background(), "raw.bin")
	require.NoError(t, err)
	assert.Equal(t, int64(3), info.Size)
	assert.Empty(t, info.Metadata)
}

// ============================================================================
// Commit order
// ============================================================================

// failRenamesUnder makes renames onto paths below dir fail.
func failRenamesUnder(l *Local, dir string) {
	prefix := filepath.Join(l.basePath, dir) + string(filepath.Separator)
	l.rename = func(oldpath, newpath string) error {
		if strings.HasPrefix(newpath, prefix) {
			return errors.New("rename refused")
		}
		return os.Rename(oldpath, newpath)
	}
}

func newLocal(t *testing.T) *Local {
	t.Helper()
	store, err := NewLocal(types.BackendConfig{Type: types.StorageTypeLocal, Path: t.TempDir()})
	require.NoError(t, err)
	return store.(*Local)
}

func TestLocal_FailedDataCommitKeepsPrevious(t *testing.T) {
	t.Parallel()

	l := newLocal(t)
	ctx := context.Background()
	prev, err := l.Put(ctx, "k", strings.NewReader("old"), 3, types.PutOptions{
		Metadata: map[string]string{"v": "1"},
	})
	require.NoError(t, err)

	failRenamesUnder(l, localDataDir)
	_, err = l.Put(ctx, "k", strings.NewReader("newer"), 5, types.PutOptions{
		Metadata: map[string]string{"v": "2"},
	})
	require.Error(t, err)

	info, err := l.Head(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, prev.ETag, info.ETag)
	assert.Equal(t, map[string]string{"v": "1"}, info.Metadata)

	obj, err := l.Get(ctx, "k", nil)
	require.NoError(t, err)
	defer obj.Body.Close()
	data, err := io.ReadAll(obj.Body)
	require.NoError(t, err)
	assert.Equal(t, "old", string(data))

	entries, err := os.ReadDir(filepath.Join(l.basePath, localTmpDir))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestLocal_FailedMetaCommitDropsStaleSidecar(t *testing.T) {
	t.Parallel()

	l := newLocal(t)
	ctx := context.Background()
	_, err := l.Put(ctx, "k", strings.NewReader("old"), 3, types.PutOptions{
		Metadata: map[string]string{"v": "1"},
	})
	require.NoError(t, err)

	failRenamesUnder(l, localMetaDir)
	_, err = l.Put(ctx, "k", strings.NewReader("new"), 3, types.PutOptions{
		Metadata: map[string]string{"v": "2"},
	})
	require.Error(t, err)

	// Same size, so only removal keeps the old sidecar off the new content
	info, err := l.Head(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, int64(3), info.Size)
	assert.Empty(t, info.ETag)
	assert.Empty(t, info.Metadata)

	_, err = os.Stat(filepath.Join(l.basePath, localMetaDir, "k"))
	assert.True(t, os.IsNotExist(err))
}

func TestLocal_StaleSidecarIgnored(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := NewLocal(types.BackendConfig{Type: types.StorageTypeLocal, Path: dir})
	require.NoError(t, err)
	ctx := context.Background()

	_, err = store.Put(ctx, "k", strings.NewReader("old"), 3, types.PutOptions{
		Metadata: map[string]string{"v": "1"},
	})
	require.NoError(t, err)

	// New content landed but its sidecar has not yet
	require.NoError(t, os.WriteFile(filepath.Join(dir, localDataDir, "k"), []byte("newer"), 0644))

	info, err := store.Head(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, int64(5), info.Size)
	assert.Empty(t, info.ETag)
	assert.Empty(t, info.Metadata)
}

func TestLocal_DeletePrunesDirs(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := NewLocal(types.BackendConfig{Type: types.StorageTypeLocal, Path: dir})
	require.NoError(t, err)
	ctx := context.Background()

	_, err = store.Put(ctx, "x/y/z.txt", strings.NewReader("z"), 1, types.PutOptions{})
	require.NoError(t, err)
	require.NoError(t, store.Delete(ctx, "x/y/z.txt"))

	_, err = os.Stat(filepath.Join(dir, localDataDir, "x"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(dir, localDataDir))
	assert.NoError(t, err)
}

func TestLocal_InvalidKeys(t *testing.T) {
	t.Parallel()

	store := newLocalStore(t)
	ctx := context.Background()

	for _, key := range []string{"", "../escape", "/abs", "dir/"} {
		_, err := store.Put(ctx, key, strings.NewReader("x"), 1, types.PutOptions{})
		assert.Error(t, err, "key %q", key)
	}
}

func TestLocal_ListPrefixOutsideRoot(t *testing.T) {
	t.Parallel()

	store := newLocalStore(t)

	infos, err := store.List(context.Background(), "../")
	require.NoError(t, err)
	assert.Empty(t, infos)
}

func TestLocal_ListPrefixThroughFile(t *testing.T) {
	t.Parallel()

	store := newLocalStore(t)
	ctx := context.Background()

	_, err := store.Put(ctx, "file", strings.NewReader("x"), 1, types.PutOptions{})
	require.NoError(t, err)

	infos, err := store.List(ctx, "file/child/")
	require.NoError(t, err)
	assert.Empty(t, infos)
}
