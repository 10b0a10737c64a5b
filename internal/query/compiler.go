// Package query compiles typed search constraints into search-engine DSL.
//
// The compiled main query has a single top-level bool. String constraints
// each contribute one group to its "should" list and raise
// "minimum_should_match" by one, so every group is mandatory while staying
// disjunctive over its synonym expansion. Date constraints become range
// filters under "must". Fact constraints become nested queries on
// texta_facts with inner hits, so the matching facts can be highlighted.
package query

import (
	"context"
	"encoding/json"
	"slices"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/factsearch/internal/constraint"
)

// FactsPath is the nested path holding document facts.
const FactsPath = "texta_facts"

// Highlight categories recorded for inner hits.
const (
	CategoryFact      = "[fact]"
	CategoryFactValue = "[fact_val]"
)

// DefaultInnerHitsSize is the number of matching facts requested per nested
// clause. The engine returns 3 unless asked and caps the value at its
// index.max_inner_result_window, which defaults to 100.
const DefaultInnerHitsSize = 100

// innerHitSep separates the parts of an inner hit name. Fact constraint
// field IDs may not contain it.
const innerHitSep = "#"

// Default highlight markup requested from the engine.
const (
	DefaultPreTag  = `<span class="[HL]" style="background-color:#FFD119">`
	DefaultPostTag = `</span>`
)

// DSL is a search-engine query fragment. encoding/json sorts map keys, so
// equal trees always marshal to identical bytes.
type DSL = map[string]any

// SynonymResolver expands one literal into the terms to search for.
type SynonymResolver interface {
	Resolve(ctx context.Context, token string) ([]string, error)
}

// IdentityResolver resolves every token to itself.
type IdentityResolver struct{}

// Resolve returns the token unchanged.
func (IdentityResolver) Resolve(_ context.Context, token string) ([]string, error) {
	return []string{token}, nil
}

// FactQuery describes one nested fact sub-query, keyed in CombinedQuery.Facts
// by its inner hit name.
type FactQuery struct {
	Category string `json:"category"`
	FieldID  string `json:"field_id"`
	Field    string `json:"field"`
	Name     string `json:"name"`
	ValueOp  string `json:"value_op,omitempty"`
	Value    string `json:"value,omitempty"`
}

// CombinedQuery is the compiled query. Treat it as immutable once built.
type CombinedQuery struct {
	Main               DSL                  `json:"main"`
	Facts              map[string]FactQuery `json:"facts"`
	MinimumShouldMatch int                  `json:"-"`
	HighlightFields    []string             `json:"-"`
}

// MainJSON marshals the main query.
func (q *CombinedQuery) MainJSON() ([]byte, error) {
	b, err := json.Marshal(q.Main)
	if err != nil {
		return nil, eris.Wrap(err, "query: marshal main")
	}
	return b, nil
}

// Options selects compiler behaviour.
type Options struct {
	// IncludeFactsInMinShouldMatch places fact constraint groups in the
	// top-level should list and counts them toward minimum_should_match.
	// When false they are placed under must.
	IncludeFactsInMinShouldMatch bool
	HighlightPreTag              string
	HighlightPostTag             string
	// InnerHitsSize is the inner_hits size of each nested fact clause.
	InnerHitsSize int
}

// Compiler turns constraints into a CombinedQuery. It is safe for
// concurrent use.
type Compiler struct {
	opts Options
}

// NewCompiler creates a Compiler, filling default highlight tags and inner
// hits size.
func NewCompiler(opts Options) *Compiler {
	if opts.HighlightPreTag == "" {
		opts.HighlightPreTag = DefaultPreTag
	}
	if opts.HighlightPostTag == "" {
		opts.HighlightPostTag = DefaultPostTag
	}
	if opts.InnerHitsSize <= 0 {
		opts.InnerHitsSize = DefaultInnerHitsSize
	}
	return &Compiler{opts: opts}
}

// Options returns the compiler options.
func (c *Compiler) Options() Options { return c.opts }

type builder struct {
	must      []any
	should    []any
	msm       int
	facts     map[string]FactQuery
	factIDs   map[string]bool
	highlight []string
	seenHL    map[string]bool
}

// CompileSet compiles a constraint set in field ID order.
func (c *Compiler) CompileSet(ctx context.Context, set constraint.Set, r SynonymResolver) (*CombinedQuery, error) {
	return c.Compile(ctx, set.Ordered(), r)
}

// Compile builds the combined query. Constraints that fail validation are
// omitted, as are fact constraints repeating an earlier fact field ID.
// Validation runs on copies; the caller's constraints are not modified.
// Resolver errors abort compilation.
func (c *Compiler) Compile(ctx context.Context, constraints []constraint.Constraint, r SynonymResolver) (*CombinedQuery, error) {
	if r == nil {
		r = IdentityResolver{}
	}
	b := &builder{
		facts:   make(map[string]FactQuery),
		factIDs: make(map[string]bool),
		seenHL:  make(map[string]bool),
	}

	for _, con := range constraints {
		valid, err := validated(con)
		if err != nil {
			zap.L().Debug("query: omitting malformed constraint", zap.Error(err))
			continue
		}
		switch v := valid.(type) {
		case *constraint.StringConstraint:
			if err := c.addString(ctx, b, v, r); err != nil {
				return nil, err
			}
		case *constraint.DateRangeConstraint:
			addDateRange(b, v)
		case *constraint.FactConstraint:
			if b.claimFactID(v.FieldID) {
				c.addFact(b, v)
			}
		case *constraint.FactValueConstraint:
			if b.claimFactID(v.FieldID) {
				c.addFactValue(b, v)
			}
		}
	}

	return c.finish(b), nil
}

// validated returns a validated copy of con.
func validated(con constraint.Constraint) (constraint.Constraint, error) {
	var cp constraint.Constraint
	switch v := con.(type) {
	case *constraint.StringConstraint:
		c := *v
		c.Literals = slices.Clone(v.Literals)
		cp = &c
	case *constraint.DateRangeConstraint:
		c := *v
		cp = &c
	case *constraint.FactConstraint:
		c := *v
		c.Literals = slices.Clone(v.Literals)
		cp = &c
	case *constraint.FactValueConstraint:
		c := *v
		cp = &c
	default:
		return nil, eris.Errorf("query: unsupported constraint %T", con)
	}
	if err := cp.Validate(); err != nil {
		return nil, err
	}
	return cp, nil
}

func (b *builder) claimFactID(id string) bool {
	if strings.Contains(id, innerHitSep) {
		zap.L().Debug("query: omitting fact constraint with reserved character in field id", zap.String("field_id", id))
		return false
	}
	if b.factIDs[id] {
		zap.L().Debug("query: omitting fact constraint with duplicate field id", zap.String("field_id", id))
		return false
	}
	b.factIDs[id] = true
	return true
}

// FactInnerHitName names the inner hit of the i-th fact name of a fact
// constraint.
func FactInnerHitName(fieldID string, i int) string {
	return "f" + innerHitSep + fieldID + innerHitSep + strconv.Itoa(i)
}

// FactValueInnerHitName names the inner hit of a fact-value constraint.
func FactValueInnerHitName(fieldID string) string {
	return "fv" + innerHitSep + fieldID
}

func (c *Compiler) addString(ctx context.Context, b *builder, s *constraint.StringConstraint, r SynonymResolver) error {
	groups := make([]any, 0, len(s.Literals))
	for _, literal := range s.Literals {
		synonyms, err := r.Resolve(ctx, literal)
		if err != nil {
			return eris.Wrapf(err, "query: resolve %q", literal)
		}
		if len(synonyms) == 0 {
			synonyms = []string{literal}
		}
		queries := make([]any, 0, len(synonyms))
		for _, syn := range synonyms {
			queries = append(queries, matchQuery(s.MatchType, s.Field, syn, s.Slop))
		}
		groups = append(groups, DSL{"bool": DSL{"should": queries}})
	}

	b.should = append(b.should, DSL{"bool": DSL{string(s.Operator): groups}})
	b.msm++

	if s.Operator != constraint.OpMustNot && !b.seenHL[s.Field] {
		b.seenHL[s.Field] = true
		b.highlight = append(b.highlight, s.Field)
	}
	return nil
}

func matchQuery(t constraint.MatchType, field, text string, slop int) DSL {
	switch t {
	case constraint.MatchPhrase, constraint.MatchPhrasePrefix:
		return DSL{string(t): DSL{field: DSL{"query": text, "slop": slop}}}
	default:
		return DSL{"match": DSL{field: DSL{"query": text}}}
	}
}

func addDateRange(b *builder, d *constraint.DateRangeConstraint) {
	if d.From != "" {
		b.must = append(b.must, DSL{"range": DSL{d.Field: DSL{"gte": d.From}}})
	}
	if d.To != "" {
		b.must = append(b.must, DSL{"range": DSL{d.Field: DSL{"lte": d.To}}})
	}
}

func (c *Compiler) addFact(b *builder, f *constraint.FactConstraint) {
	nested := make([]any, 0, len(f.Literals))
	for i, name := range f.Literals {
		innerHit := ""
		if f.Operator != constraint.OpMustNot {
			innerHit = FactInnerHitName(f.FieldID, i)
			b.facts[innerHit] = FactQuery{
				Category: CategoryFact,
				FieldID:  f.FieldID,
				Field:    f.Field,
				Name:     name,
			}
		}
		nested = append(nested, c.nestedFact(factTerms(f.Field, name), nil, innerHit))
	}
	c.placeFactGroup(b, DSL{"bool": DSL{string(f.Operator): nested}})
}

func (c *Compiler) addFactValue(b *builder, f *constraint.FactValueConstraint) {
	must := factTerms(f.Field, f.FactName)
	var mustNot []any

	switch f.ValueType {
	case constraint.ValueNum:
		v := f.NumericValue()
		switch f.ValueOp {
		case "=":
			must = append(must, DSL{"term": DSL{FactsPath + ".num_val": v}})
		case "!=":
			mustNot = append(mustNot, DSL{"term": DSL{FactsPath + ".num_val": v}})
		default:
			must = append(must, DSL{"range": DSL{FactsPath + ".num_val": DSL{rangeOps[f.ValueOp]: v}}})
		}
	default:
		q := DSL{"match": DSL{FactsPath + ".str_val": f.Value}}
		if f.ValueOp == "!=" {
			mustNot = append(mustNot, q)
		} else {
			must = append(must, q)
		}
	}

	innerHit := ""
	if f.Operator != constraint.OpMustNot {
		innerHit = FactValueInnerHitName(f.FieldID)
		b.facts[innerHit] = FactQuery{
			Category: CategoryFactValue,
			FieldID:  f.FieldID,
			Field:    f.Field,
			Name:     f.FactName,
			ValueOp:  f.ValueOp,
			Value:    f.Value,
		}
	}
	c.placeFactGroup(b, DSL{"bool": DSL{string(f.Operator): []any{c.nestedFact(must, mustNot, innerHit)}}})
}

var rangeOps = map[string]string{"<": "lt", "<=": "lte", ">": "gt", ">=": "gte"}

func (c *Compiler) placeFactGroup(b *builder, group DSL) {
	if c.opts.IncludeFactsInMinShouldMatch {
		b.should = append(b.should, group)
		b.msm++
		return
	}
	b.must = append(b.must, group)
}

// factTerms matches a fact by field and name. Fact names match
// case-insensitively.
func factTerms(field, name string) []any {
	return []any{
		DSL{"term": DSL{FactsPath + ".doc_path": field}},
		DSL{"term": DSL{FactsPath + ".fact": DSL{"value": name, "case_insensitive": true}}},
	}
}

func (c *Compiler) nestedFact(must, mustNot []any, innerHit string) DSL {
	inner := DSL{"must": must}
	if len(mustNot) > 0 {
		inner["must_not"] = mustNot
	}
	nested := DSL{
		"path":  FactsPath,
		"query": DSL{"bool": inner},
	}
	if innerHit != "" {
		nested["inner_hits"] = DSL{"name": innerHit, "size": c.opts.InnerHitsSize}
	}
	return DSL{"nested": nested}
}

func (c *Compiler) finish(b *builder) *CombinedQuery {
	boolQ := DSL{
		"must":                 nonNil(b.must),
		"should":               nonNil(b.should),
		"must_not":             []any{},
		"minimum_should_match": b.msm,
	}
	main := DSL{"query": DSL{"bool": boolQ}}

	if len(b.highlight) > 0 {
		fields := DSL{}
		for _, f := range b.highlight {
			fields[f] = DSL{"number_of_fragments": 0}
		}
		main["highlight"] = DSL{
			"pre_tags":  []string{c.opts.HighlightPreTag},
			"post_tags": []string{c.opts.HighlightPostTag},
			"fields":    fields,
		}
	}

	return &CombinedQuery{
		Main:               main,
		Facts:              b.facts,
		MinimumShouldMatch: b.msm,
		HighlightFields:    b.highlight,
	}
}

func nonNil(v []any) []any {
	if v == nil {
		return []any{}
	}
	return v
}
