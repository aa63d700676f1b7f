// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package davstore

import (
	"net/http"
	"testing"
	"time"

	"github.com/LeeDigitalWorks/zapdav/pkg/types"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

func testInfo() *types.ObjectInfo {
	expiry := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	return &types.ObjectInfo{
		Key:          "docs/reports/q1.pdf",
		Size:         2048,
		ETag:         "abc123",
		LastModified: time.Date(2025, 3, 2, 10, 0, 0, 0, time.UTC),
		Uploaded:     time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC),
		HTTPMetadata: types.HTTPMetadata{
			ContentType:        "application/pdf",
			ContentLanguage:    "en",
			ContentDisposition: "attachment",
			ContentEncoding:    "identity",
			CacheControl:       "max-age=60",
			CacheExpiry:        &expiry,
		},
		Metadata: map[string]string{"owner": "x"},
	}
}

func TestPropertiesFrom(t *testing.T) {
	t.Parallel()

	info := testInfo()
	got := propertiesFrom(info)

	want := &ResourceProperties{
		Key:             "docs/reports/q1.pdf",
		DisplayName:     "q1.pdf",
		ContentLength:   2048,
		ContentType:     "application/pdf",
		ContentLanguage: "en",
		ETag:            `"abc123"`,
		LastModified:    info.LastModified,
		CreationDate:    info.Uploaded,
		Metadata:        map[string]string{"owner": "x"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("propertiesFrom mismatch (-want +got):\n%s", diff)
	}

	// Result does not alias the backend map
	got.Metadata["owner"] = "y"
	assert.Equal(t, "x", info.Metadata["owner"])
}

func TestPropertiesFrom_NilMetadata(t *testing.T) {
	t.Parallel()

	got := propertiesFrom(&types.ObjectInfo{Key: "a"})
	assert.NotNil(t, got.Metadata)
	assert.Empty(t, got.Metadata)
	assert.Equal(t, "a", got.DisplayName)
}

func TestHeadersFrom(t *testing.T) {
	t.Parallel()

	info := testInfo()
	got := headersFrom(info, 5)

	want := &ResponseHeaders{
		ContentType:        "application/pdf",
		ContentLanguage:    "en",
		ContentDisposition: "attachment",
		ContentEncoding:    "identity",
		CacheControl:       "max-age=60",
		CacheExpiry:        info.HTTPMetadata.CacheExpiry,
		ContentLength:      5,
		ETag:               `"abc123"`,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("headersFrom mismatch (-want +got):\n%s", diff)
	}
	assert.NotSame(t, info.HTTPMetadata.CacheExpiry, got.CacheExpiry)
}

func TestResponseHeaders_Header(t *testing.T) {
	t.Parallel()

	h := headersFrom(testInfo(), 2048).Header()

	assert.Equal(t, "application/pdf", h.Get("Content-Type"))
	assert.Equal(t, "en", h.Get("Content-Language"))
	assert.Equal(t, "attachment", h.Get("Content-Disposition"))
	assert.Equal(t, "identity", h.Get("Content-Encoding"))
	assert.Equal(t, "max-age=60", h.Get("Cache-Control"))
	assert.Equal(t, "Sun, 01 Jun 2025 00:00:00 GMT", h.Get("Expires"))
	assert.Equal(t, "2048", h.Get("Content-Length"))
	assert.Equal(t, `"abc123"`, h.Get("ETag"))
}

func TestResponseHeaders_HeaderOmitsEmpty(t *testing.T) {
	t.Parallel()

	h := (&ResponseHeaders{}).Header()
	assert.Equal(t, http.Header{"Content-Length": {"0"}}, h)
}

func TestQuoteETag(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "", quoteETag(""))
	assert.Equal(t, `"abc"`, quoteETag("abc"))
	assert.Equal(t, `"abc"`, quoteETag(`"abc"`))
	assert.Equal(t, `W/"abc"`, quoteETag(`W/"abc"`))
}
