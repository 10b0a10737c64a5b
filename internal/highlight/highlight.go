package highlight

import (
	"cmp"
	"html"
	"slices"
	"strings"

	"github.com/sells-group/factsearch/internal/facts"
	"github.com/sells-group/factsearch/internal/query"
)

// Default overlay colors per category.
const (
	DefaultFactColor      = "#D6E4FF"
	DefaultFactValueColor = "#C8F0C8"
)

// Overlay is one renderable fact overlay.
type Overlay struct {
	Spans    []facts.Span `json:"spans"`
	Name     string       `json:"name"`
	Value    string       `json:"value,omitempty"`
	Category string       `json:"category"`
	Color    string       `json:"color,omitempty"`
}

// Title is the tooltip text, e.g. "[fact] ORG" or "[fact_val] AGE=5".
func (h Overlay) Title() string {
	t := h.Category + " " + h.Name
	if h.Value != "" {
		t += "=" + h.Value
	}
	return t
}

func (h Overlay) openTag() string {
	var b strings.Builder
	b.WriteString(`<span title="`)
	b.WriteString(html.EscapeString(h.Title()))
	b.WriteByte('"')
	if h.Color != "" {
		b.WriteString(` style="background-color:`)
		b.WriteString(html.EscapeString(h.Color))
		b.WriteByte('"')
	}
	b.WriteByte('>')
	return b.String()
}

const closeTag = "</span>"

type placement struct {
	span  facts.Span
	owner *Overlay
	start int
	end   int
}

type event struct {
	pos   int
	open  bool
	owner *Overlay
}

// Highlight inserts one <span> per fact span into tagged, the engine's
// highlighted rendering of original. Span offsets are relative to original.
// The result is HTML: runes of the original text are escaped, while the
// engine's tags and the fact spans are kept as markup.
//
// When two overlays cover an identical span, the [fact] record wins over
// the [fact_val] record. Overlapping spans nest; they are not balanced.
// Spans outside original return *StaleFactSpanError, and tagged text that
// does not align with original returns ErrMalformedMarkup.
func Highlight(original, tagged string, spans []Overlay) (string, error) {
	o, t := []rune(original), []rune(tagged)
	alignment, err := align(o, t)
	if err != nil {
		return "", err
	}

	overlays, err := resolve(spans, len(o))
	if err != nil {
		return "", err
	}

	text := make([]bool, len(t))
	for _, j := range alignment {
		text[j] = true
	}
	var b strings.Builder
	b.Grow(len(tagged) + len(overlays)*96)
	if len(overlays) == 0 {
		writeSegment(&b, t, text, 0, len(t))
		return b.String(), nil
	}

	for i := range overlays {
		ov := &overlays[i]
		ov.start = alignment[ov.span.Start]
		ov.end = alignment[ov.span.End-1] + 1
	}
	slices.SortStableFunc(overlays, func(a, b placement) int {
		if c := cmp.Compare(a.start, b.start); c != 0 {
			return c
		}
		return cmp.Compare(b.end, a.end)
	})

	events := make([]event, 0, 2*len(overlays))
	for _, ov := range overlays {
		events = append(events,
			event{pos: ov.start, open: true, owner: ov.owner},
			event{pos: ov.end, open: false, owner: ov.owner},
		)
	}
	slices.SortStableFunc(events, func(a, b event) int {
		if c := cmp.Compare(a.pos, b.pos); c != 0 {
			return c
		}
		// closes before opens at the same boundary
		switch {
		case !a.open && b.open:
			return -1
		case a.open && !b.open:
			return 1
		}
		return 0
	})

	prev := 0
	for _, ev := range events {
		writeSegment(&b, t, text, prev, ev.pos)
		prev = ev.pos
		if ev.open {
			b.WriteString(ev.owner.openTag())
		} else {
			b.WriteString(closeTag)
		}
	}
	writeSegment(&b, t, text, prev, len(t))
	return b.String(), nil
}

// writeSegment copies t[from:to] to b, escaping runes that belong to the
// original text.
func writeSegment(b *strings.Builder, t []rune, text []bool, from, to int) {
	start := from
	for k := from; k < to; k++ {
		if !text[k] {
			continue
		}
		var esc string
		switch t[k] {
		case '<':
			esc = "&lt;"
		case '>':
			esc = "&gt;"
		case '&':
			esc = "&amp;"
		case '"':
			esc = "&#34;"
		case '\'':
			esc = "&#39;"
		default:
			continue
		}
		b.WriteString(string(t[start:k]))
		b.WriteString(esc)
		start = k + 1
	}
	b.WriteString(string(t[start:to]))
}

// resolve validates and merges spans per overlay, drops empty spans, and
// applies the identical-span tie-break. Distinct facts of one category on
// the same span are all kept.
func resolve(spans []Overlay, textLen int) ([]placement, error) {
	var out []placement
	bySpan := make(map[facts.Span]int)

	for i := range spans {
		hs := &spans[i]
		for _, s := range hs.Spans {
			if s.Start < 0 || s.End < s.Start || s.End > textLen {
				return nil, &StaleFactSpanError{Name: hs.Name, Span: s, TextLen: textLen}
			}
		}
		for _, s := range facts.MergeSpans(hs.Spans) {
			if s.Len() == 0 {
				continue
			}
			at, seen := bySpan[s]
			if seen {
				cur := out[at].owner
				switch {
				case cur.Category == query.CategoryFactValue && hs.Category == query.CategoryFact:
					out[at].owner = hs
					continue
				case cur.Category == query.CategoryFact && hs.Category == query.CategoryFactValue:
					continue
				case cur.Title() == hs.Title():
					continue
				}
			} else {
				bySpan[s] = len(out)
			}
			out = append(out, placement{span: s, owner: hs})
		}
	}
	return out, nil
}
