// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package davstore

import (
	"fmt"

	"github.com/LeeDigitalWorks/zapdav/pkg/types"
)

// Range is a requested byte window. Start and End are inclusive offsets and
// either may be nil. Start <= End is not checked: an inverted range is
// passed to the object store, which decides how it fails.
type Range struct {
	Start *int64
	End   *int64
}

// FullRange selects the whole object.
func FullRange() Range { return Range{} }

// Bounded selects bytes start through end, inclusive.
func Bounded(start, end int64) Range { return Range{Start: &start, End: &end} }

// From selects everything from start to the end of the object.
func From(start int64) Range { return Range{Start: &start} }

// Suffix selects the last n bytes of the object.
func Suffix(n int64) Range { return Range{End: &n} }

// rangeKind is the closed set of addressing modes a Range can select.
type rangeKind int

const (
	rangeFull rangeKind = iota
	rangeBounded
	rangeFrom
	rangeSuffix
)

func (r Range) kind() rangeKind {
	switch {
	case r.Start != nil && r.End != nil:
		return rangeBounded
	case r.Start != nil:
		return rangeFrom
	case r.End != nil:
		return rangeSuffix
	default:
		return rangeFull
	}
}

// backendRange translates r into the object store's addressing. A full
// read returns nil, meaning no range parameter at all.
func (r Range) backendRange() *types.ByteRange {
	switch k := r.kind(); k {
	case rangeFull:
		return nil
	case rangeBounded:
		return &types.ByteRange{
			Mode:   types.RangeOffsetLength,
			Offset: *r.Start,
			Length: *r.End - *r.Start + 1,
		}
	case rangeFrom:
		return &types.ByteRange{Mode: types.RangeOffset, Offset: *r.Start}
	case rangeSuffix:
		return &types.ByteRange{Mode: types.RangeSuffix, Length: *r.End}
	default:
		panic(fmt.Sprintf("davstore: unhandled range kind %d", k))
	}
}

// String renders r in HTTP Range header form, for logs.
func (r Range) String() string {
	switch r.kind() {
	case rangeBounded:
		return fmt.Sprintf("bytes=%d-%d", *r.Start, *r.End)
	case rangeFrom:
		return fmt.Sprintf("bytes=%d-", *r.Start)
	case rangeSuffix:
		return fmt.Sprintf("bytes=-%d", *r.End)
	default:
		return "bytes=*"
	}
}
