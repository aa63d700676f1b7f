// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package davstore

import (
	"errors"
	"net/http"

	"github.com/LeeDigitalWorks/zapdav/pkg/types"
)

// Kind classifies adapter failures. The front-end maps kinds to protocol
// status codes; the adapter itself never retries or suppresses them.
type Kind int

const (
	// KindBackend is any failure reported by the object store.
	KindBackend Kind = iota
	// KindNotFound means no object exists at the key.
	KindNotFound
	// KindBodyUnavailable means the object exists but its content could not
	// be opened as a stream.
	KindBodyUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindBodyUnavailable:
		return "body_unavailable"
	default:
		return "backend"
	}
}

var (
	// ErrNotFound matches (errors.Is) every KindNotFound error.
	ErrNotFound = errors.New("resource not found")
	// ErrBodyUnavailable matches (errors.Is) every KindBodyUnavailable error.
	ErrBodyUnavailable = errors.New("failed to get file body stream")
)

// Error is returned by every Store operation.
type Error struct {
	Kind Kind
	Op   string
	Key  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Op
	if e.Key != "" {
		msg += " " + e.Key
	}
	switch e.Kind {
	case KindNotFound:
		return msg + ": " + ErrNotFound.Error()
	case KindBodyUnavailable:
		return msg + ": " + ErrBodyUnavailable.Error()
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg + ": backend error"
}

// Detail returns the object store's message unchanged, or "" when the
// failure did not come from the store.
func (e *Error) Detail() string {
	if e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Kind == KindNotFound
	case ErrBodyUnavailable:
		return e.Kind == KindBodyUnavailable
	}
	return false
}

// StatusCode maps the error kind onto an HTTP status for protocol front-ends.
func (e *Error) StatusCode() int {
	switch e.Kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindBodyUnavailable:
		return http.StatusInternalServerError
	default:
		return http.StatusBadGateway
	}
}

// KindOf returns the kind of an adapter error. Errors that did not come
// from a Store are reported as KindBackend.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindBackend
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsBodyUnavailable(err error) bool {
	return errors.Is(err, ErrBodyUnavailable)
}

// IsBackend reports whether err is an adapter error carrying a store failure.
func IsBackend(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == KindBackend
}

// classify wraps a store error, recognising missing objects.
func classify(op, key string, err error) *Error {
	kind := KindBackend
	if types.IsNotFound(err) {
		kind = KindNotFound
	}
	return &Error{Kind: kind, Op: op, Key: key, Err: err}
}

func bodyUnavailable(op, key string) *Error {
	return &Error{Kind: KindBodyUnavailable, Op: op, Key: key}
}
