package highlight

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tidwall/gjson"

	"github.com/sells-group/factsearch/internal/facts"
	"github.com/sells-group/factsearch/internal/query"
	"github.com/sells-group/factsearch/pkg/es"
)

// Colors assigns overlay colors by category.
type Colors struct {
	Fact      string
	FactValue string
}

// DefaultColors returns the default category colors.
func DefaultColors() Colors {
	return Colors{Fact: DefaultFactColor, FactValue: DefaultFactValueColor}
}

func (c Colors) forCategory(category string) string {
	if category == query.CategoryFactValue {
		return c.FactValue
	}
	return c.Fact
}

// OverlaysFromInnerHits builds overlays for one field from the inner hits the
// compiled query requested. Inner hits are visited in name order so the
// result is stable. Inner hits not described by factQueries are ignored.
func OverlaysFromInnerHits(hit es.Hit, factQueries map[string]query.FactQuery, field string, colors Colors) ([]Overlay, error) {
	names := make([]string, 0, len(hit.InnerHits))
	for name := range hit.InnerHits {
		if _, ok := factQueries[name]; ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	var out []Overlay
	for _, name := range names {
		fq := factQueries[name]
		for _, inner := range hit.InnerHits[name].Hits.Hits {
			var f facts.Fact
			if err := json.Unmarshal(inner.Source, &f); err != nil {
				return nil, eris.Wrapf(err, "highlight: decode inner hit %s", name)
			}
			if f.DocPath != field {
				continue
			}
			spans, err := f.DecodedSpans()
			if err != nil {
				return nil, err
			}
			hs := Overlay{
				Spans:    spans,
				Name:     f.Fact,
				Category: fq.Category,
				Color:    colors.forCategory(fq.Category),
			}
			if fq.Category == query.CategoryFactValue {
				hs.Value = f.Value()
			}
			out = append(out, hs)
		}
	}
	return out, nil
}

// Field renders one field of a hit: the engine's highlight fragment for the
// field (or the plain source text if there is none) with the hit's fact
// overlays applied. The original text is read from the source by dotted path.
func Field(hit es.Hit, q *query.CombinedQuery, field string, colors Colors) (string, error) {
	original := gjson.GetBytes(hit.Source, field).String()

	tagged := original
	if frags := hit.Highlight[field]; len(frags) > 0 {
		tagged = strings.Join(frags, "")
	}

	var factQueries map[string]query.FactQuery
	if q != nil {
		factQueries = q.Facts
	}
	spans, err := OverlaysFromInnerHits(hit, factQueries, field, colors)
	if err != nil {
		return "", err
	}
	return Highlight(original, tagged, spans)
}
