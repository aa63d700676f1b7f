// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package utils

import (
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"sync"

	"github.com/minio/sha256-simd"
)

// copyBufferSize bounds the memory one streaming copy holds at a time.
const copyBufferSize = 32 << 10

var (
	sha256Pool = sync.Pool{
		New: func() any {
			return sha256.New()
		},
	}
	copyBufPool = sync.Pool{
		New: func() any {
			buf := make([]byte, copyBufferSize)
			return &buf
		},
	}
)

func Sha256PoolGetHasher() hash.Hash {
	return sha256Pool.Get().(hash.Hash)
}

func Sha256PoolPutHasher(h hash.Hash) {
	h.Reset()
	sha256Pool.Put(h)
}

// CopyBuffer copies src to dst through a pooled fixed-size buffer.
func CopyBuffer(dst io.Writer, src io.Reader) (int64, error) {
	bufPtr := copyBufPool.Get().(*[]byte)
	defer copyBufPool.Put(bufPtr)
	return io.CopyBuffer(dst, src, *bufPtr)
}

// HashingCopy copies exactly size bytes from src to dst and returns the hex
// SHA-256 of what was copied. A short or long src is an error.
func HashingCopy(dst io.Writer, src io.Reader, size int64) (string, error) {
	h := Sha256PoolGetHasher()
	defer Sha256PoolPutHasher(h)

	n, err := CopyBuffer(io.MultiWriter(dst, h), io.LimitReader(src, size))
	if err != nil {
		return "", err
	}
	if n != size {
		return "", &LengthMismatchError{Declared: size, Actual: n}
	}

	// One extra byte means the body is longer than declared
	var probe [1]byte
	m, err := io.ReadFull(src, probe[:])
	if m > 0 {
		return "", &LengthMismatchError{Declared: size, Actual: size + int64(m)}
	}
	if err != nil && err != io.EOF {
		return "", err
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// LengthMismatchError reports a body whose length differs from the length
// declared for a fixed-length write.
type LengthMismatchError struct {
	Declared int64
	Actual   int64
}

func (e *LengthMismatchError) Error() string {
	if e.Actual > e.Declared {
		return fmt.Sprintf("body longer than declared content length %d", e.Declared)
	}
	return fmt.Sprintf("body length %d does not match declared content length %d", e.Actual, e.Declared)
}
