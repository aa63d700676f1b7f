// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package davstore

import (
	"testing"

	"github.com/LeeDigitalWorks/zapdav/pkg/types"

	"github.com/stretchr/testify/assert"
)

func TestRange_BackendRange(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		rng  Range
		want *types.ByteRange
	}{
		{name: "full", rng: FullRange(), want: nil},
		{name: "bounded", rng: Bounded(6, 10), want: &types.ByteRange{Mode: types.RangeOffsetLength, Offset: 6, Length: 5}},
		{name: "single byte", rng: Bounded(0, 0), want: &types.ByteRange{Mode: types.RangeOffsetLength, Offset: 0, Length: 1}},
		{name: "inverted passes through", rng: Bounded(5, 3), want: &types.ByteRange{Mode: types.RangeOffsetLength, Offset: 5, Length: -1}},
		{name: "from offset", rng: From(6), want: &types.ByteRange{Mode: types.RangeOffset, Offset: 6}},
		{name: "suffix", rng: Suffix(5), want: &types.ByteRange{Mode: types.RangeSuffix, Length: 5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.rng.backendRange())
		})
	}
}

func TestRange_Kind(t *testing.T) {
	t.Parallel()

	start, end := int64(1), int64(2)
	assert.Equal(t, rangeFull, Range{}.kind())
	assert.Equal(t, rangeBounded, Range{Start: &start, End: &end}.kind())
	assert.Equal(t, rangeFrom, Range{Start: &start}.kind())
	assert.Equal(t, rangeSuffix, Range{End: &end}.kind())
}

func TestRange_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "bytes=*", FullRange().String())
	assert.Equal(t, "bytes=0-99", Bounded(0, 99).String())
	assert.Equal(t, "bytes=100-", From(100).String())
	assert.Equal(t, "bytes=-20", Suffix(20).String())
}
