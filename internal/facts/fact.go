// Package facts reads and mutates the span-anchored facts stored in each
// document's texta_facts array. It is a thin client over the search engine:
// facts live only in the indexed documents.
package facts

import (
	"encoding/json"
	"errors"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/tidwall/gjson"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/sells-group/factsearch/internal/query"
	"github.com/sells-group/factsearch/pkg/es"
)

// ErrFactFieldMissing is returned when a document has no texta_facts array.
// The index mapping must be extended before facts can be added.
var ErrFactFieldMissing = errors.New("facts: document has no texta_facts field")

// ErrDocumentNotFound is returned by Store.Get for an unknown ID.
var ErrDocumentNotFound = errors.New("facts: document not found")

// ErrInvalidSpan is returned for a span that is negative or empty.
var ErrInvalidSpan = errors.New("facts: invalid span")

// NormalizeName returns the stored form of a fact name. A Caser holds
// state, so one is built per call.
func NormalizeName(name string) string {
	return cases.Upper(language.Und).String(name)
}

// Fact is one entry of texta_facts. Spans holds the JSON-encoded span list
// exactly as stored; use DecodedSpans to read it.
type Fact struct {
	Fact      string   `json:"fact"`
	StrVal    string   `json:"str_val,omitempty"`
	NumVal    *float64 `json:"num_val,omitempty"`
	DocPath   string   `json:"doc_path"`
	Spans     string   `json:"spans"`
	SentIndex *int     `json:"sent_index,omitempty"`
}

// Value returns the fact value as a string, preferring str_val.
func (f Fact) Value() string {
	if f.StrVal != "" || f.NumVal == nil {
		return f.StrVal
	}
	return strconv.FormatFloat(*f.NumVal, 'f', -1, 64)
}

// DecodedSpans decodes the Spans field.
func (f Fact) DecodedSpans() ([]Span, error) {
	return DecodeSpans(f.Spans)
}

func (f Fact) sameAs(o Fact) bool {
	if f.Fact != o.Fact || f.DocPath != o.DocPath || f.Value() != o.Value() {
		return false
	}
	a, errA := f.DecodedSpans()
	b, errB := o.DecodedSpans()
	if errA != nil || errB != nil {
		return f.Spans == o.Spans
	}
	a, b = MergeSpans(a), MergeSpans(b)
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Document is an indexed document as returned by the engine.
type Document struct {
	ID     string          `json:"id"`
	Source json.RawMessage `json:"source"`
}

// DocumentFromHit converts a search hit.
func DocumentFromHit(h es.Hit) Document {
	return Document{ID: h.ID, Source: h.Source}
}

// FromSource decodes the texta_facts array of a document source. It returns
// ErrFactFieldMissing if the array is absent.
func FromSource(source json.RawMessage) ([]Fact, error) {
	arr := gjson.GetBytes(source, query.FactsPath)
	if !arr.Exists() || !arr.IsArray() {
		return nil, ErrFactFieldMissing
	}
	var out []Fact
	if err := json.Unmarshal([]byte(arr.Raw), &out); err != nil {
		return nil, eris.Wrap(err, "facts: decode texta_facts")
	}
	return out, nil
}

// Predicate selects facts for removal. Name is matched case-insensitively
// against the stored name. An empty Value or Field matches any.
type Predicate struct {
	Name  string `json:"name"`
	Value string `json:"value,omitempty"`
	Field string `json:"field,omitempty"`
}

// Validate checks the predicate has a name.
func (p Predicate) Validate() error {
	if p.Name == "" {
		return eris.New("facts: predicate requires a fact name")
	}
	return nil
}

// matchesRaw reports whether a raw texta_facts element matches.
func (p Predicate) matchesRaw(elem gjson.Result) bool {
	if NormalizeName(elem.Get("fact").String()) != NormalizeName(p.Name) {
		return false
	}
	if p.Field != "" && elem.Get("doc_path").String() != p.Field {
		return false
	}
	if p.Value == "" {
		return true
	}
	if s := elem.Get("str_val"); s.Exists() && s.String() != "" {
		return s.String() == p.Value
	}
	if n := elem.Get("num_val"); n.Exists() {
		want, err := strconv.ParseFloat(p.Value, 64)
		return err == nil && n.Float() == want
	}
	return false
}

// Matches reports whether f matches the predicate.
func (p Predicate) Matches(f Fact) bool {
	raw, err := json.Marshal(f)
	if err != nil {
		return false
	}
	return p.matchesRaw(gjson.ParseBytes(raw))
}
