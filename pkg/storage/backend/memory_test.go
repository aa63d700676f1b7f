// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package backend

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/LeeDigitalWorks/zapdav/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMemoryStore(t *testing.T) types.ObjectStore {
	t.Helper()
	ms := NewMemoryStorage()
	t.Cleanup(func() { ms.Close() })
	return ms
}

func TestMemoryStorage_ObjectStore(t *testing.T) {
	t.Parallel()
	runObjectStoreSuite(t, newMemoryStore)
}

func TestMemoryStorage_FixedLength(t *testing.T) {
	t.Parallel()
	runLengthSuite(t, newMemoryStore)
}

func TestMemoryStorage_Type(t *testing.T) {
	t.Parallel()

	assert.Equal(t, types.StorageTypeMemory, NewMemoryStorage().Type())
}

func TestMemoryStorage_Timestamps(t *testing.T) {
	t.Parallel()

	ms := NewMemoryStorage()
	fixed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	ms.now = func() time.Time { return fixed }

	info, err := ms.Put(context.Background(), "k", strings.NewReader("x"), 1, types.PutOptions{})
	require.NoError(t, err)
	assert.Equal(t, fixed, info.LastModified)
	assert.Equal(t, fixed, info.Uploaded)
}

func TestMemoryStorage_MetadataIsolation(t *testing.T) {
	t.Parallel()

	ms := NewMemoryStorage()
	ctx := context.Background()
	meta := map[string]string{"owner": "x"}

	_, err := ms.Put(ctx, "k", strings.NewReader("x"), 1, types.PutOptions{Metadata: meta})
	require.NoError(t, err)

	// Mutating the caller's map or a returned map must not leak into the store
	meta["owner"] = "changed"
	info, err := ms.Head(ctx, "k")
	require.NoError(t, err)
	info.Metadata["owner"] = "changed-again"

	info, err = ms.Head(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "x", info.Metadata["owner"])
}

func TestMemoryStorage_SameETagForSameContent(t *testing.T) {
	t.Parallel()

	ms := NewMemoryStorage()
	ctx := context.Background()

	a, err := ms.Put(ctx, "a", strings.NewReader("same"), 4, types.PutOptions{})
	require.NoError(t, err)
	b, err := ms.Put(ctx, "b", strings.NewReader("same"), 4, types.PutOptions{})
	require.NoError(t, err)
	c, err := ms.Put(ctx, "c", strings.NewReader("diff"), 4, types.PutOptions{})
	require.NoError(t, err)

	assert.Equal(t, a.ETag, b.ETag)
	assert.NotEqual(t, a.ETag, c.ETag)
}

func TestMemoryStorage_CloseClears(t *testing.T) {
	t.Parallel()

	ms := NewMemoryStorage()
	_, err := ms.Put(context.Background(), "k", strings.NewReader("x"), 1, types.PutOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, ms.Len())

	require.NoError(t, ms.Close())
	assert.Equal(t, 0, ms.Len())
}
