// Package highlight composites fact spans onto engine-highlighted text.
//
// The engine returns field text with its own match markup inserted. Fact
// spans are stored against the original, unmarked text, so they are mapped
// through an alignment of the two strings instead of being searched for in
// the marked-up text. All offsets are in runes.
package highlight

import (
	"errors"
	"fmt"

	"github.com/rotisserie/eris"

	"github.com/sells-group/factsearch/internal/facts"
)

// ErrMalformedMarkup is returned when the tagged text is not the original
// text with well-formed tags inserted.
var ErrMalformedMarkup = errors.New("highlight: malformed markup")

// StaleFactSpanError reports a fact span that does not fit the current
// field text, usually because the document changed after extraction.
type StaleFactSpanError struct {
	Name    string
	Span    facts.Span
	TextLen int
}

func (e *StaleFactSpanError) Error() string {
	return fmt.Sprintf("highlight: stale fact span %q [%d,%d) for text of length %d",
		e.Name, e.Span.Start, e.Span.End, e.TextLen)
}

func malformed(format string, args ...any) error {
	return eris.Wrapf(ErrMalformedMarkup, format, args...)
}

// Align maps every rune index of original to the index of the same rune in
// tagged. Tags in tagged (from '<' through the next '>', with no '<' in
// between) are zero-width, unless the original has the same characters at
// that point.
func Align(original, tagged string) ([]int, error) {
	return align([]rune(original), []rune(tagged))
}

func align(o, t []rune) ([]int, error) {
	alignment := make([]int, len(o))
	j := 0
	for i := 0; i < len(o); {
		if j >= len(t) {
			return nil, malformed("tagged text ended at original index %d", i)
		}
		if t[j] == '<' {
			end := tagEnd(t, j)
			if end < 0 {
				if o[i] == '<' {
					alignment[i] = j
					i++
					j++
					continue
				}
				return nil, malformed("unterminated tag at %d", j)
			}
			if !literalAt(o, i, t[j:end+1]) {
				j = end + 1
				continue
			}
		}
		if t[j] != o[i] {
			return nil, malformed("tagged text diverges at original index %d", i)
		}
		alignment[i] = j
		i++
		j++
	}

	for j < len(t) {
		if t[j] != '<' {
			return nil, malformed("unexpected trailing text at %d", j)
		}
		end := tagEnd(t, j)
		if end < 0 {
			return nil, malformed("unterminated tag at %d", j)
		}
		j = end + 1
	}
	return alignment, nil
}

// tagEnd returns the index of the '>' closing the tag at start, or -1 when
// another '<' or the end of text comes first.
func tagEnd(t []rune, start int) int {
	for k := start + 1; k < len(t); k++ {
		switch t[k] {
		case '>':
			return k
		case '<':
			return -1
		}
	}
	return -1
}

func literalAt(o []rune, i int, s []rune) bool {
	if i+len(s) > len(o) {
		return false
	}
	for k, r := range s {
		if o[i+k] != r {
			return false
		}
	}
	return true
}
