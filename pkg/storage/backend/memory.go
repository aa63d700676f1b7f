// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package backend

import (
	"bytes"
	"context"
	"io"
	"maps"
	"strings"
	"sync"
	"time"

	"github.com/LeeDigitalWorks/zapdav/pkg/types"
	"github.com/LeeDigitalWorks/zapdav/pkg/utils"

	"github.com/google/btree"
)

func init() {
	Register(types.StorageTypeMemory, func(cfg types.BackendConfig) (types.ObjectStore, error) {
		return NewMemoryStorage(), nil
	})
}

// maxPrealloc caps the buffer reserved up front for a Put.
const maxPrealloc = 1 << 20

// memObject is one stored object. data is never mutated after insertion,
// so readers can stream it without holding the lock.
type memObject struct {
	info types.ObjectInfo
	data []byte
}

func memObjectLess(a, b *memObject) bool {
	return a.info.Key < b.info.Key
}

// MemoryStorage is an in-memory object store for testing. Keys are kept in
// a btree so List returns them in lexicographic order, like S3.
type MemoryStorage struct {
	mu   sync.RWMutex
	tree *btree.BTreeG[*memObject]

	// now is replaceable in tests
	now func() time.Time
}

// NewMemoryStorage creates a new in-memory storage
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		tree: btree.NewG(16, memObjectLess),
		now:  time.Now,
	}
}

func (m *MemoryStorage) Type() types.StorageType {
	return types.StorageTypeMemory
}

func (m *MemoryStorage) lookup(key string) (*memObject, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tree.Get(&memObject{info: types.ObjectInfo{Key: key}})
}

func (m *MemoryStorage) Head(ctx context.Context, key string) (*types.ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	obj, ok := m.lookup(key)
	if !ok {
		return nil, &types.NotFoundError{Key: key}
	}
	info := cloneInfo(obj.info)
	return &info, nil
}

func (m *MemoryStorage) Get(ctx context.Context, key string, rng *types.ByteRange) (*types.Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	obj, ok := m.lookup(key)
	if !ok {
		return nil, &types.NotFoundError{Key: key}
	}

	offset, length, err := resolveRange(rng, obj.info.Size)
	if err != nil {
		return nil, err
	}

	return &types.Object{
		Info:   cloneInfo(obj.info),
		Body:   io.NopCloser(bytes.NewReader(obj.data[offset : offset+length])),
		Length: length,
	}, nil
}

func (m *MemoryStorage) List(ctx context.Context, prefix string) ([]types.ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []types.ObjectInfo
	m.tree.AscendGreaterOrEqual(&memObject{info: types.ObjectInfo{Key: prefix}}, func(obj *memObject) bool {
		if !strings.HasPrefix(obj.info.Key, prefix) {
			return false
		}
		out = append(out, cloneInfo(obj.info))
		return true
	})
	return out, nil
}

// Put stores exactly size bytes from body. A body shorter or longer than
// size fails with utils.LengthMismatchError and leaves any existing object
// untouched.
func (m *MemoryStorage) Put(ctx context.Context, key string, body io.Reader, size int64, opts types.PutOptions) (*types.ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if size < 0 {
		return nil, &utils.LengthMismatchError{Declared: size}
	}

	// The declared size is untrusted until the copy confirms it
	var buf bytes.Buffer
	buf.Grow(int(min(size, maxPrealloc)))
	etag, err := utils.HashingCopy(&buf, body, size)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	now := m.now().UTC()
	obj := &memObject{
		info: types.ObjectInfo{
			Key:          key,
			Size:         size,
			ETag:         etag,
			LastModified: now,
			Uploaded:     now,
			HTTPMetadata: opts.HTTPMetadata,
			Metadata:     maps.Clone(opts.Metadata),
		},
		data: buf.Bytes(),
	}

	m.mu.Lock()
	m.tree.ReplaceOrInsert(obj)
	m.mu.Unlock()

	info := cloneInfo(obj.info)
	return &info, nil
}

func (m *MemoryStorage) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.tree.Delete(&memObject{info: types.ObjectInfo{Key: key}})
	return nil
}

// Len returns the number of stored objects
func (m *MemoryStorage) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tree.Len()
}

func (m *MemoryStorage) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tree.Clear(false)
	return nil
}

// cloneInfo copies info so callers cannot mutate stored maps
func cloneInfo(info types.ObjectInfo) types.ObjectInfo {
	info.Metadata = maps.Clone(info.Metadata)
	if info.HTTPMetadata.CacheExpiry != nil {
		t := *info.HTTPMetadata.CacheExpiry
		info.HTTPMetadata.CacheExpiry = &t
	}
	return info
}

// AddMemory is a convenience method to add a memory backend to the manager
func (mgr *Manager) AddMemory(id string) error {
	return mgr.Add(id, types.BackendConfig{
		Type: types.StorageTypeMemory,
	})
}
