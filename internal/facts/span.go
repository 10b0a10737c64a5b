package facts

import (
	"encoding/json"
	"slices"
	"strings"

	"github.com/rotisserie/eris"
)

// Span is a half-open character interval [Start, End) over the original,
// unmarked text of one field. It encodes as a two-element JSON array.
type Span struct {
	Start int
	End   int
}

// Len returns End-Start.
func (s Span) Len() int { return s.End - s.Start }

// Overlaps reports whether s and o share at least one character.
func (s Span) Overlaps(o Span) bool {
	return s.Start < o.End && o.Start < s.End
}

// MarshalJSON implements json.Marshaler.
func (s Span) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]int{s.Start, s.End})
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *Span) UnmarshalJSON(data []byte) error {
	var pair []int
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return eris.Errorf("facts: span must have 2 elements, got %d", len(pair))
	}
	s.Start, s.End = pair[0], pair[1]
	return nil
}

// DecodeSpans parses the JSON-encoded spans string stored on a fact.
// An empty string decodes to no spans.
func DecodeSpans(encoded string) ([]Span, error) {
	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return nil, nil
	}
	var spans []Span
	if err := json.Unmarshal([]byte(encoded), &spans); err != nil {
		return nil, eris.Wrapf(err, "facts: decode spans %q", encoded)
	}
	for _, s := range spans {
		if s.Start < 0 || s.End < s.Start {
			return nil, eris.Errorf("facts: invalid span [%d,%d)", s.Start, s.End)
		}
	}
	return spans, nil
}

// EncodeSpans renders spans in the stored form, e.g. "[[4,7]]".
func EncodeSpans(spans []Span) string {
	if len(spans) == 0 {
		return "[]"
	}
	b, _ := json.Marshal(spans)
	return string(b)
}

// MergeSpans sorts spans by start and merges overlapping ones. Touching
// spans such as [0,2) and [2,4) stay separate. The input is not modified.
//
// Only valid while the field text is unchanged since the spans were computed.
func MergeSpans(spans []Span) []Span {
	if len(spans) == 0 {
		return nil
	}
	sorted := slices.Clone(spans)
	slices.SortStableFunc(sorted, func(a, b Span) int { return a.Start - b.Start })

	out := []Span{sorted[0]}
	for _, s := range sorted[1:] {
		last := &out[len(out)-1]
		if s.Start < last.End {
			last.End = max(last.End, s.End)
			continue
		}
		out = append(out, s)
	}
	return out
}
