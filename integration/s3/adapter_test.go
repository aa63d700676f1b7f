//go:build integration

// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package s3

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/LeeDigitalWorks/zapdav/integration/testutil"
	"github.com/LeeDigitalWorks/zapdav/pkg/davstore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readAll(t *testing.T, store *davstore.Store, key string, rng davstore.Range) []byte {
	t.Helper()
	content, err := store.Download(context.Background(), key, rng)
	require.NoError(t, err)
	defer content.Body.Close()
	data, err := io.ReadAll(content.Body)
	require.NoError(t, err)
	return data
}

func TestAdapter_RoundTrip(t *testing.T) {
	t.Parallel()

	prefix := testutil.UniqueKey("roundtrip")
	store := newStore(t, prefix)
	ctx := context.Background()
	key := prefix + "/a/b.txt"

	props, err := store.Put(ctx, key, bytes.NewReader([]byte("hello world")), 11, davstore.WithContentType("text/plain"))
	require.NoError(t, err)
	assert.Equal(t, int64(11), props.ContentLength)

	res, err := store.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(11), res.Properties.ContentLength)
	assert.Equal(t, "text/plain", res.Properties.ContentType)
	assert.Equal(t, "b.txt", res.Properties.DisplayName)

	assert.Equal(t, "hello world", string(readAll(t, store, key, davstore.FullRange())))
	assert.Equal(t, "world", string(readAll(t, store, key, davstore.Bounded(6, 10))))
	assert.Equal(t, "world", string(readAll(t, store, key, davstore.From(6))))
	assert.Equal(t, "world", string(readAll(t, store, key, davstore.Suffix(5))))

	md, err := store.PatchMetadata(ctx, key, map[string]string{"owner": "x"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"owner": "x"}, md)

	res, err = store.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(11), res.Properties.ContentLength)
	assert.Equal(t, map[string]string{"owner": "x"}, res.Metadata)
	assert.Equal(t, "text/plain", res.Properties.ContentType)
	assert.Equal(t, "hello world", string(readAll(t, store, key, davstore.FullRange())))

	entries, err := store.List(ctx, prefix+"/a/")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, key, entries[0].Key)

	require.NoError(t, store.Delete(ctx, key))
	_, err = store.Get(ctx, key)
	assert.True(t, davstore.IsNotFound(err))
}

func TestAdapter_NotFound(t *testing.T) {
	t.Parallel()

	prefix := testutil.UniqueKey("notfound")
	store := newStore(t, prefix)
	ctx := context.Background()

	_, err := store.Get(ctx, prefix+"/missing")
	assert.True(t, davstore.IsNotFound(err))

	_, err = store.Download(ctx, prefix+"/missing", davstore.FullRange())
	assert.True(t, davstore.IsNotFound(err))

	_, err = store.PatchMetadata(ctx, prefix+"/missing", map[string]string{"a": "b"})
	assert.True(t, davstore.IsNotFound(err))

	assert.NoError(t, store.Delete(ctx, prefix+"/missing"))
}

func TestAdapter_PatchLargeObject(t *testing.T) {
	testutil.SkipIfShort(t)
	t.Parallel()

	prefix := testutil.UniqueKey("patch-large")
	store := newStore(t, prefix)
	ctx := context.Background()
	key := prefix + "/blob.bin"

	data := testutil.GenerateTestData(t, 32<<20)
	_, err := store.Put(ctx, key, bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)

	_, err = store.PatchMetadata(ctx, key, map[string]string{"k": "v"})
	require.NoError(t, err)

	assert.Equal(t, data, readAll(t, store, key, davstore.FullRange()))
	assert.Equal(t, data[len(data)-100:], readAll(t, store, key, davstore.Suffix(100)))
}

func TestAdapter_ShortBodyRejected(t *testing.T) {
	t.Parallel()

	prefix := testutil.UniqueKey("short")
	store := newStore(t, prefix)

	_, err := store.Put(context.Background(), prefix+"/short", bytes.NewReader([]byte("abc")), 10)
	require.Error(t, err)
	assert.True(t, davstore.IsBackend(err))
}
