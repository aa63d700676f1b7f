// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/LeeDigitalWorks/zapdav/pkg/types"
	"github.com/LeeDigitalWorks/zapdav/pkg/utils"
)

func init() {
	Register(types.StorageTypeLocal, NewLocal)
}

const (
	localDataDir = "data"
	localMetaDir = "meta"
	localTmpDir  = "tmp"

	// largeObjectSize is the size above which written data is dropped from
	// the page cache after sync
	largeObjectSize = 64 << 20
)

// Local implements ObjectStore on a local directory. Content lives under
// data/<key>; system and custom metadata live in a JSON sidecar under
// meta/<key>. Writes go through tmp/ and are renamed into place.
type Local struct {
	basePath string
	now      func() time.Time
	rename   func(oldpath, newpath string) error
}

// NewLocal creates a local filesystem backend
func NewLocal(cfg types.BackendConfig) (types.ObjectStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("path required for local backend")
	}

	base := utils.ExpandHome(cfg.Path)
	for _, dir := range []string{localDataDir, localMetaDir, localTmpDir} {
		if err := os.MkdirAll(filepath.Join(base, dir), 0755); err != nil {
			return nil, fmt.Errorf("create base path: %w", err)
		}
	}
	if err := utils.CheckWritableDir(filepath.Join(base, localTmpDir)); err != nil {
		return nil, fmt.Errorf("base path %s not writable: %w", base, err)
	}

	return &Local{basePath: base, now: time.Now, rename: os.Rename}, nil
}

func (l *Local) Type() types.StorageType {
	return types.StorageTypeLocal
}

func (l *Local) paths(key string) (data, meta string, err error) {
	if key == "" || strings.HasSuffix(key, "/") || !filepath.IsLocal(filepath.FromSlash(key)) {
		return "", "", fmt.Errorf("invalid key %q", key)
	}
	rel := filepath.FromSlash(key)
	return filepath.Join(l.basePath, localDataDir, rel),
		filepath.Join(l.basePath, localMetaDir, rel), nil
}

// readInfo loads the sidecar for key, synthesizing one from the data file
// when the sidecar is missing or records a different size than the data.
func (l *Local) readInfo(key, dataPath, metaPath string, st fs.FileInfo) (*types.ObjectInfo, error) {
	synthesized := &types.ObjectInfo{
		Key:          key,
		Size:         st.Size(),
		LastModified: st.ModTime().UTC(),
		Uploaded:     st.ModTime().UTC(),
	}

	raw, err := os.ReadFile(metaPath)
	if errors.Is(err, fs.ErrNotExist) {
		return synthesized, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read metadata: %w", err)
	}

	var info types.ObjectInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return nil, fmt.Errorf("decode metadata %s: %w", metaPath, err)
	}
	if info.Size != st.Size() {
		return synthesized, nil // sidecar of a previous version
	}
	info.Key = key
	return &info, nil
}

func (l *Local) Head(ctx context.Context, key string) (*types.ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dataPath, metaPath, err := l.paths(key)
	if err != nil {
		return nil, err
	}

	st, err := os.Stat(dataPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &types.NotFoundError{Key: key}
		}
		return nil, err
	}
	if st.IsDir() {
		return nil, &types.NotFoundError{Key: key}
	}
	return l.readInfo(key, dataPath, metaPath, st)
}

func (l *Local) Get(ctx context.Context, key string, rng *types.ByteRange) (*types.Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dataPath, metaPath, err := l.paths(key)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(dataPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &types.NotFoundError{Key: key}
		}
		return nil, err
	}

	// Stat the open descriptor so size and content come from the same inode
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat: %w", err)
	}
	if st.IsDir() {
		f.Close()
		return nil, &types.NotFoundError{Key: key}
	}

	info, err := l.readInfo(key, dataPath, metaPath, st)
	if err != nil {
		f.Close()
		return nil, err
	}

	offset, length, err := resolveRange(rng, st.Size())
	if err != nil {
		f.Close()
		return nil, err
	}

	if offset > 0 {
		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			f.Close()
			return nil, fmt.Errorf("seek: %w", err)
		}
	}

	return &types.Object{
		Info: *info,
		Body: &limitedReadCloser{
			Reader: io.LimitReader(f, length),
			Closer: f,
		},
		Length: length,
	}, nil
}

func (l *Local) List(ctx context.Context, prefix string) ([]types.ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	root := filepath.Join(l.basePath, localDataDir)

	// Only walk the deepest directory the prefix pins down
	walkRoot := root
	if dir := prefixDir(prefix); dir != "" {
		if !filepath.IsLocal(filepath.FromSlash(dir)) {
			return nil, nil // no valid key can match
		}
		walkRoot = filepath.Join(root, filepath.FromSlash(dir))
	}

	var out []types.ObjectInfo
	err := filepath.WalkDir(walkRoot, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == walkRoot && (errors.Is(err, fs.ErrNotExist) || errors.Is(err, syscall.ENOTDIR)) {
				return fs.SkipAll
			}
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}

		st, err := d.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil // deleted while walking
			}
			return err
		}
		_, metaPath, err := l.paths(key)
		if err != nil {
			return err
		}
		info, err := l.readInfo(key, p, metaPath, st)
		if err != nil {
			return err
		}
		out = append(out, *info)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %q: %w", prefix, err)
	}

	// WalkDir orders by path component, S3 orders by whole key
	slices.SortFunc(out, func(a, b types.ObjectInfo) int {
		return strings.Compare(a.Key, b.Key)
	})
	return out, nil
}

// Put writes exactly size bytes from body to a temp file, syncs it and
// renames it over the previous object, then commits the sidecar. A length
// mismatch or a failed data commit removes the temp file and leaves the
// previous object in place. Until the sidecar lands, readers may see the
// new content with the previous sidecar; readInfo drops it when the sizes
// disagree. If the sidecar commit fails the old sidecar is removed, so the
// new content is served with synthesized metadata.
func (l *Local) Put(ctx context.Context, key string, body io.Reader, size int64, opts types.PutOptions) (*types.ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if size < 0 {
		return nil, &utils.LengthMismatchError{Declared: size}
	}
	dataPath, metaPath, err := l.paths(key)
	if err != nil {
		return nil, err
	}

	tmp, err := os.CreateTemp(filepath.Join(l.basePath, localTmpDir), "put-*")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	// Best effort: unsupported filesystems just skip preallocation
	_ = Fallocate(tmp, size)

	etag, err := utils.HashingCopy(tmp, &ctxReader{ctx: ctx, r: body}, size)
	if err != nil {
		return nil, fmt.Errorf("write data: %w", err)
	}
	if err := Fdatasync(tmp); err != nil {
		return nil, fmt.Errorf("sync data: %w", err)
	}
	if size >= largeObjectSize {
		_ = FadviseDontNeed(tmp)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("close data: %w", err)
	}

	now := l.now().UTC()
	info := types.ObjectInfo{
		Key:          key,
		Size:         size,
		ETag:         etag,
		LastModified: now,
		Uploaded:     now,
		HTTPMetadata: opts.HTTPMetadata,
		Metadata:     maps.Clone(opts.Metadata),
	}

	if err := os.MkdirAll(filepath.Dir(dataPath), 0755); err != nil {
		return nil, fmt.Errorf("create parent dir: %w", err)
	}
	if err := l.rename(tmpPath, dataPath); err != nil {
		return nil, fmt.Errorf("commit data: %w", err)
	}
	committed = true

	if err := l.writeMeta(metaPath, info); err != nil {
		if rmErr := os.Remove(metaPath); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
			return nil, errors.Join(err, fmt.Errorf("remove stale metadata: %w", rmErr))
		}
		return nil, err
	}

	return &info, nil
}

func (l *Local) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dataPath, metaPath, err := l.paths(key)
	if err != nil {
		return err
	}

	for _, p := range []string{dataPath, metaPath} {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	l.pruneEmptyDirs(filepath.Dir(dataPath), filepath.Join(l.basePath, localDataDir))
	l.pruneEmptyDirs(filepath.Dir(metaPath), filepath.Join(l.basePath, localMetaDir))
	return nil
}

// pruneEmptyDirs removes now-empty parents of a deleted key up to stop.
func (l *Local) pruneEmptyDirs(dir, stop string) {
	for dir != stop && strings.HasPrefix(dir, stop) {
		if err := os.Remove(dir); err != nil {
			return // not empty, or raced with a writer
		}
		dir = filepath.Dir(dir)
	}
}

func (l *Local) Close() error {
	return nil
}

// writeMeta JSON-encodes info into a temp file and renames it to dst.
func (l *Local) writeMeta(dst string, info types.ObjectInfo) error {
	raw, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("create metadata dir: %w", err)
	}

	f, err := os.CreateTemp(filepath.Join(l.basePath, localTmpDir), "meta-*")
	if err != nil {
		return fmt.Errorf("create metadata temp file: %w", err)
	}
	if _, err := f.Write(raw); err != nil {
		f.Close()
		os.Remove(f.Name())
		return fmt.Errorf("write metadata: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return fmt.Errorf("close metadata: %w", err)
	}
	if err := l.rename(f.Name(), dst); err != nil {
		os.Remove(f.Name())
		return fmt.Errorf("commit metadata: %w", err)
	}
	return nil
}

// prefixDir returns the directory part of a slash-separated prefix, or "".
func prefixDir(prefix string) string {
	i := strings.LastIndexByte(prefix, '/')
	if i <= 0 {
		return ""
	}
	return prefix[:i]
}

// limitedReadCloser wraps a limited reader with a closer
type limitedReadCloser struct {
	io.Reader
	io.Closer
}

// ctxReader stops a copy once its context is cancelled
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
