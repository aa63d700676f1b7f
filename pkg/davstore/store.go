// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package davstore adapts a key-addressed object store to the file-oriented
// operations of a WebDAV-style protocol front-end: metadata reads, prefix
// listing, ranged downloads, uploads, deletes and custom metadata updates.
package davstore

import (
	"context"
	"io"
	"maps"
	"sync"
	"sync/atomic"
	"time"

	"github.com/LeeDigitalWorks/zapdav/pkg/logger"
	"github.com/LeeDigitalWorks/zapdav/pkg/types"
)

// Operation names, used in errors, logs and metric labels.
const (
	OpGet           = "get"
	OpList          = "list"
	OpPatchMetadata = "patch_metadata"
	OpDownload      = "download"
	OpDelete        = "delete"
	OpPut           = "put"
)

// Store is the storage adapter. It holds only immutable references and is
// safe for concurrent use. Concurrent writers to one key race at the
// backend; nothing is locked here.
type Store struct {
	backend types.ObjectStore
	metrics *Metrics
}

// Option configures a Store.
type Option func(*Store)

// WithMetrics records operation metrics into m.
func WithMetrics(m *Metrics) Option {
	return func(s *Store) {
		s.metrics = m
	}
}

// New returns a Store over backend.
func New(backend types.ObjectStore, opts ...Option) *Store {
	s := &Store{backend: backend}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Backend returns the underlying object store.
func (s *Store) Backend() types.ObjectStore {
	return s.backend
}

// Resource is the result of Get.
type Resource struct {
	Key        string
	Properties *ResourceProperties
	Headers    *ResponseHeaders
	Metadata   map[string]string
}

// Entry is one listed object.
type Entry struct {
	Key        string
	Properties *ResourceProperties
}

// Content is the result of Download. The caller owns Body and must close it.
type Content struct {
	Properties *ResourceProperties
	Headers    *ResponseHeaders
	Body       io.ReadCloser
}

// Get fetches an object's metadata without opening its content.
func (s *Store) Get(ctx context.Context, path string) (res *Resource, err error) {
	defer s.observe(ctx, OpGet, path, time.Now(), &err)

	info, err := s.backend.Head(ctx, path)
	if err != nil {
		return nil, classify(OpGet, path, err)
	}

	props := propertiesFrom(info)
	return &Resource{
		Key:        info.Key,
		Properties: props,
		Headers:    headersFrom(info, info.Size),
		Metadata:   props.Metadata,
	}, nil
}

// List returns every object under prefix, in the backend's order. An empty
// prefix lists everything.
func (s *Store) List(ctx context.Context, prefix string) (entries []Entry, err error) {
	defer s.observe(ctx, OpList, prefix, time.Now(), &err)

	infos, err := s.backend.List(ctx, prefix)
	if err != nil {
		return nil, classify(OpList, prefix, err)
	}

	log := logger.Ctx(ctx)
	entries = make([]Entry, 0, len(infos))
	for i := range infos {
		log.Debug().Str("key", infos[i].Key).Msg("Access")
		entries = append(entries, Entry{
			Key:        infos[i].Key,
			Properties: propertiesFrom(&infos[i]),
		})
	}
	return entries, nil
}

// PatchMetadata replaces the custom metadata of the object at path with
// metadata. The object store has no metadata-only update, so the content is
// streamed from a read straight into a rewrite of the same key. HTTP
// metadata is kept. The result is the custom metadata reported by the write.
func (s *Store) PatchMetadata(ctx context.Context, path string, metadata map[string]string) (result map[string]string, err error) {
	defer s.observe(ctx, OpPatchMetadata, path, time.Now(), &err)

	obj, err := s.backend.Get(ctx, path, nil)
	if err != nil {
		return nil, classify(OpPatchMetadata, path, err)
	}
	if obj.Body == nil {
		return nil, bodyUnavailable(OpPatchMetadata, path)
	}
	defer obj.Body.Close()

	body := &countingReader{r: obj.Body}
	info, err := s.backend.Put(ctx, path, body, obj.Info.Size, types.PutOptions{
		HTTPMetadata: obj.Info.HTTPMetadata,
		Metadata:     maps.Clone(metadata),
	})
	s.metrics.addBytes(directionPatchReplace, body.n.Load())
	if err != nil {
		return nil, classify(OpPatchMetadata, path, err)
	}

	result = maps.Clone(info.Metadata)
	if result == nil {
		result = map[string]string{}
	}
	return result, nil
}

// Download opens the object at path for reading. rng selects the byte
// window; it is not validated here. The returned body streams from the
// backend and is closed when ctx is done.
func (s *Store) Download(ctx context.Context, path string, rng Range) (content *Content, err error) {
	defer s.observe(ctx, OpDownload, path, time.Now(), &err)

	obj, err := s.backend.Get(ctx, path, rng.backendRange())
	if err != nil {
		return nil, classify(OpDownload, path, err)
	}
	if obj.Body == nil {
		return nil, bodyUnavailable(OpDownload, path)
	}

	return &Content{
		Properties: propertiesFrom(&obj.Info),
		Headers:    headersFrom(&obj.Info, obj.Length),
		Body:       newStreamBody(ctx, obj.Body, s.metrics),
	}, nil
}

// Delete removes the object at path.
func (s *Store) Delete(ctx context.Context, path string) (err error) {
	defer s.observe(ctx, OpDelete, path, time.Now(), &err)

	if err := s.backend.Delete(ctx, path); err != nil {
		return classify(OpDelete, path, err)
	}
	return nil
}

// PutOption sets metadata written with an upload.
type PutOption func(*types.PutOptions)

// WithContentType sets the stored Content-Type.
func WithContentType(contentType string) PutOption {
	return func(o *types.PutOptions) {
		o.HTTPMetadata.ContentType = contentType
	}
}

// WithHTTPMetadata sets all stored HTTP metadata.
func WithHTTPMetadata(hm types.HTTPMetadata) PutOption {
	return func(o *types.PutOptions) {
		o.HTTPMetadata = hm
	}
}

// WithMetadata sets the custom metadata of the new object.
func WithMetadata(metadata map[string]string) PutOption {
	return func(o *types.PutOptions) {
		o.Metadata = maps.Clone(metadata)
	}
}

// Put uploads exactly contentLength bytes from body as the new content of
// path, replacing any existing object. The store rejects bodies that do not
// match contentLength.
func (s *Store) Put(ctx context.Context, path string, body io.Reader, contentLength int64, opts ...PutOption) (props *ResourceProperties, err error) {
	defer s.observe(ctx, OpPut, path, time.Now(), &err)

	var po types.PutOptions
	for _, opt := range opts {
		opt(&po)
	}

	counted := &countingReader{r: body}
	info, err := s.backend.Put(ctx, path, counted, contentLength, po)
	s.metrics.addBytes(directionUpload, counted.n.Load())
	if err != nil {
		return nil, classify(OpPut, path, err)
	}
	return propertiesFrom(info), nil
}

func (s *Store) observe(ctx context.Context, op, key string, start time.Time, errp *error) {
	err := *errp
	s.metrics.observe(op, start, err)
	if err != nil {
		logger.Ctx(ctx).Debug().
			Err(err).
			Str("op", op).
			Str("key", key).
			Str("kind", KindOf(err).String()).
			Dur("elapsed", time.Since(start)).
			Msg("storage operation failed")
	}
}

type countingReader struct {
	r io.Reader
	n atomic.Int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n.Add(int64(n))
	return n, err
}

// streamBody releases the backend stream when the download's context ends,
// and counts the bytes the caller actually read.
type streamBody struct {
	rc      io.ReadCloser
	metrics *Metrics
	stop    func() bool
	once    sync.Once
	n       atomic.Int64
	err     error
}

func newStreamBody(ctx context.Context, rc io.ReadCloser, m *Metrics) *streamBody {
	b := &streamBody{rc: rc, metrics: m}
	b.stop = context.AfterFunc(ctx, func() {
		b.close()
	})
	return b
}

func (b *streamBody) Read(p []byte) (int, error) {
	n, err := b.rc.Read(p)
	b.n.Add(int64(n))
	return n, err
}

func (b *streamBody) Close() error {
	b.stop()
	return b.close()
}

func (b *streamBody) close() error {
	b.once.Do(func() {
		b.err = b.rc.Close()
		b.metrics.addBytes(directionDownload, b.n.Load())
	})
	return b.err
}
