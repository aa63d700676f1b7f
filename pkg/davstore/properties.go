// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package davstore

import (
	"maps"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/LeeDigitalWorks/zapdav/pkg/types"
)

// ResourceProperties is the protocol's view of one stored object, as used
// for WebDAV live properties.
type ResourceProperties struct {
	Key             string
	DisplayName     string
	ContentLength   int64
	ContentType     string
	ContentLanguage string
	ETag            string
	LastModified    time.Time
	CreationDate    time.Time
	Metadata        map[string]string
}

// ResponseHeaders are the object's HTTP metadata, ready for an outgoing response.
type ResponseHeaders struct {
	ContentType        string
	ContentLanguage    string
	ContentDisposition string
	ContentEncoding    string
	CacheControl       string
	CacheExpiry        *time.Time
	ContentLength      int64
	ETag               string
}

// Header renders h as HTTP response headers. Empty fields are omitted.
func (h *ResponseHeaders) Header() http.Header {
	out := http.Header{}
	set := func(name, value string) {
		if value != "" {
			out.Set(name, value)
		}
	}
	set("Content-Type", h.ContentType)
	set("Content-Language", h.ContentLanguage)
	set("Content-Disposition", h.ContentDisposition)
	set("Content-Encoding", h.ContentEncoding)
	set("Cache-Control", h.CacheControl)
	set("ETag", h.ETag)
	if h.CacheExpiry != nil {
		out.Set("Expires", h.CacheExpiry.UTC().Format(http.TimeFormat))
	}
	out.Set("Content-Length", strconv.FormatInt(h.ContentLength, 10))
	return out
}

func propertiesFrom(info *types.ObjectInfo) *ResourceProperties {
	meta := maps.Clone(info.Metadata)
	if meta == nil {
		meta = map[string]string{}
	}
	return &ResourceProperties{
		Key:             info.Key,
		DisplayName:     path.Base(info.Key),
		ContentLength:   info.Size,
		ContentType:     info.HTTPMetadata.ContentType,
		ContentLanguage: info.HTTPMetadata.ContentLanguage,
		ETag:            quoteETag(info.ETag),
		LastModified:    info.LastModified,
		CreationDate:    info.Uploaded,
		Metadata:        meta,
	}
}

// headersFrom builds response headers for a body of length bytes.
func headersFrom(info *types.ObjectInfo, length int64) *ResponseHeaders {
	hm := info.HTTPMetadata
	h := &ResponseHeaders{
		ContentType:        hm.ContentType,
		ContentLanguage:    hm.ContentLanguage,
		ContentDisposition: hm.ContentDisposition,
		ContentEncoding:    hm.ContentEncoding,
		CacheControl:       hm.CacheControl,
		ContentLength:      length,
		ETag:               quoteETag(info.ETag),
	}
	if hm.CacheExpiry != nil {
		t := *hm.CacheExpiry
		h.CacheExpiry = &t
	}
	return h
}

// quoteETag returns etag as an HTTP entity tag. S3 already quotes its
// etags; the local and memory stores return bare hex.
func quoteETag(etag string) string {
	if etag == "" || strings.HasPrefix(etag, `"`) || strings.HasPrefix(etag, `W/"`) {
		return etag
	}
	return `"` + etag + `"`
}
