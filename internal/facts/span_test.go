package facts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeSpans(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   []Span
		want []Span
	}{
		{"empty", nil, nil},
		{"single", []Span{{1, 4}}, []Span{{1, 4}}},
		{"overlapping", []Span{{0, 5}, {3, 8}}, []Span{{0, 8}}},
		{"disjoint keep order", []Span{{0, 2}, {5, 7}}, []Span{{0, 2}, {5, 7}}},
		{"touching stay separate", []Span{{0, 2}, {2, 4}}, []Span{{0, 2}, {2, 4}}},
		{"contained", []Span{{0, 10}, {2, 3}}, []Span{{0, 10}}},
		{"unsorted", []Span{{6, 9}, {0, 2}, {1, 3}}, []Span{{0, 3}, {6, 9}}},
		{"chain", []Span{{0, 3}, {2, 5}, {4, 7}}, []Span{{0, 7}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MergeSpans(tt.in))
		})
	}
}

func TestMergeSpans_DoesNotModifyInput(t *testing.T) {
	in := []Span{{3, 8}, {0, 5}}
	MergeSpans(in)
	assert.Equal(t, []Span{{3, 8}, {0, 5}}, in)
}

func TestDecodeSpans(t *testing.T) {
	t.Parallel()

	spans, err := DecodeSpans("[[4, 7], [10, 12]]")
	require.NoError(t, err)
	assert.Equal(t, []Span{{4, 7}, {10, 12}}, spans)

	spans, err = DecodeSpans("  ")
	require.NoError(t, err)
	assert.Nil(t, spans)

	spans, err = DecodeSpans("[]")
	require.NoError(t, err)
	assert.Empty(t, spans)
}

func TestDecodeSpans_Invalid(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"not json", "[[1]]", "[[1,2,3]]", "[[5,2]]", "[[-1,2]]"} {
		_, err := DecodeSpans(in)
		assert.Error(t, err, in)
	}
}

func TestEncodeSpans(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "[[4,7]]", EncodeSpans([]Span{{4, 7}}))
	assert.Equal(t, "[]", EncodeSpans(nil))

	back, err := DecodeSpans(EncodeSpans([]Span{{0, 2}, {5, 7}}))
	require.NoError(t, err)
	assert.Equal(t, []Span{{0, 2}, {5, 7}}, back)
}

func TestSpan_Overlaps(t *testing.T) {
	assert.True(t, Span{0, 5}.Overlaps(Span{4, 6}))
	assert.False(t, Span{0, 5}.Overlaps(Span{5, 6}))
	assert.Equal(t, 3, Span{4, 7}.Len())
}
