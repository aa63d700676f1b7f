// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package types

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

// StorageType identifies the backend object store implementation
type StorageType string

const (
	StorageTypeLocal  StorageType = "local"  // Local filesystem
	StorageTypeS3     StorageType = "s3"     // S3-compatible (AWS, R2, MinIO)
	StorageTypeMemory StorageType = "memory" // In-process, used for testing
)

// ErrObjectNotFound is returned (possibly wrapped) by every ObjectStore
// when no object exists at the requested key.
var ErrObjectNotFound = errors.New("object not found")

// NotFoundError names the key that was missing.
type NotFoundError struct {
	Key string
}

func (e *NotFoundError) Error() string {
	if e.Key == "" {
		return ErrObjectNotFound.Error()
	}
	return fmt.Sprintf("%s: %s", e.Key, ErrObjectNotFound.Error())
}

func (e *NotFoundError) Unwrap() error {
	return ErrObjectNotFound
}

// IsNotFound reports whether err represents a missing object.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrObjectNotFound)
}

// HTTPMetadata holds the HTTP-style system metadata stored with an object.
type HTTPMetadata struct {
	ContentType        string     `json:"content_type,omitempty"`
	ContentLanguage    string     `json:"content_language,omitempty"`
	ContentDisposition string     `json:"content_disposition,omitempty"`
	ContentEncoding    string     `json:"content_encoding,omitempty"`
	CacheControl       string     `json:"cache_control,omitempty"`
	CacheExpiry        *time.Time `json:"cache_expiry,omitempty"`
}

// ObjectInfo is the metadata of a stored object, without its content.
type ObjectInfo struct {
	Key          string            `json:"key"`
	Size         int64             `json:"size"`
	ETag         string            `json:"etag,omitempty"`
	LastModified time.Time         `json:"last_modified"`
	Uploaded     time.Time         `json:"uploaded"`
	HTTPMetadata HTTPMetadata      `json:"http_metadata"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// Object is an object's metadata plus a lazy stream over its content.
// Body is nil when the store could not open the content. When a range was
// requested, Body yields only that window (Length bytes) while Info.Size
// stays the full object size.
type Object struct {
	Info   ObjectInfo
	Body   io.ReadCloser
	Length int64
}

// RangeMode selects how a ByteRange addresses an object's content.
type RangeMode int

const (
	// RangeOffsetLength reads Length bytes starting at Offset.
	RangeOffsetLength RangeMode = iota
	// RangeOffset reads from Offset to the end of the object.
	RangeOffset
	// RangeSuffix reads the last Length bytes of the object.
	RangeSuffix
)

func (m RangeMode) String() string {
	switch m {
	case RangeOffsetLength:
		return "offset-length"
	case RangeOffset:
		return "offset"
	case RangeSuffix:
		return "suffix"
	default:
		return fmt.Sprintf("RangeMode(%d)", int(m))
	}
}

// ByteRange is a backend range request. Fields not used by Mode are ignored.
type ByteRange struct {
	Mode   RangeMode
	Offset int64
	Length int64
}

// PutOptions carries the metadata written alongside an object's content.
// A nil Metadata map writes an object without custom metadata.
type PutOptions struct {
	HTTPMetadata HTTPMetadata
	Metadata     map[string]string
}

// ObjectStore is the key-addressed backend the storage adapter runs on.
// Implementations: Local, Memory, S3.
type ObjectStore interface {
	// Type returns the storage type
	Type() StorageType

	// Head returns an object's metadata without opening its content
	Head(ctx context.Context, key string) (*ObjectInfo, error)

	// Get returns an object's metadata and content stream. A nil rng reads
	// the whole object. The caller must close Body.
	Get(ctx context.Context, key string, rng *ByteRange) (*Object, error)

	// List returns every object whose key starts with prefix, in the
	// store's native order
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)

	// Put replaces the object at key with exactly size bytes read from body
	Put(ctx context.Context, key string, body io.Reader, size int64, opts PutOptions) (*ObjectInfo, error)

	// Delete removes the object at key. Missing keys are not an error.
	Delete(ctx context.Context, key string) error

	// Close releases any resources
	Close() error
}

// BackendConfig contains configuration for creating an object store
type BackendConfig struct {
	Type      StorageType       `json:"type" mapstructure:"type"`
	Endpoint  string            `json:"endpoint,omitempty" mapstructure:"endpoint"`
	Bucket    string            `json:"bucket,omitempty" mapstructure:"bucket"`
	Path      string            `json:"path,omitempty" mapstructure:"path"`
	Region    string            `json:"region,omitempty" mapstructure:"region"`
	AccessKey string            `json:"access_key,omitempty" mapstructure:"access_key"`
	SecretKey string            `json:"secret_key,omitempty" mapstructure:"secret_key"`
	PathStyle bool              `json:"path_style,omitempty" mapstructure:"path_style"`
	Options   map[string]string `json:"options,omitempty" mapstructure:"options"`
}
