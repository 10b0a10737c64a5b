package highlight

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/factsearch/internal/facts"
	"github.com/sells-group/factsearch/internal/query"
	"github.com/sells-group/factsearch/pkg/es"
)

func TestAlign_Identity(t *testing.T) {
	t.Parallel()

	for _, text := range []string{"", "a", "the cat sat", "ünïcödé text", "a < b and c > d"} {
		alignment, err := Align(text, text)
		require.NoError(t, err, text)
		for i, got := range alignment {
			assert.Equal(t, i, got, "%q index %d", text, i)
		}
	}
}

func TestAlign_SkipsTags(t *testing.T) {
	t.Parallel()

	alignment, err := Align("the cat sat", "the <b>cat</b> sat")
	require.NoError(t, err)
	assert.Equal(t, 7, alignment[4])
	assert.Equal(t, 9, alignment[6])
	assert.Equal(t, 14, alignment[7])
	assert.Equal(t, 3, alignment[3])
}

func TestAlign_AttributesInTag(t *testing.T) {
	t.Parallel()

	tagged := `<span class="[HL]" style="background-color:#FFD119">cat</span>`
	alignment, err := Align("cat", tagged)
	require.NoError(t, err)
	assert.Equal(t, []int{52, 53, 54}, alignment)
}

func TestAlign_LiteralLessThanBeforeTag(t *testing.T) {
	t.Parallel()

	alignment, err := Align("x < y", "x < <em>y</em>")
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 3, 8}, alignment)

	got, err := Highlight("x < y", "x < <em>y</em>", []Overlay{{
		Spans: []facts.Span{{Start: 4, End: 5}}, Name: "VAR", Category: query.CategoryFact,
	}})
	require.NoError(t, err)
	assert.Equal(t, `x &lt; <em><span title="[fact] VAR">y</span></em>`, got)
}

func TestAlign_Malformed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		original string
		tagged   string
	}{
		{"truncated tag", "the cat", "the <b cat"},
		{"reordered", "the cat", "the <b>tac</b>"},
		{"missing text", "the cat sat", "the <b>cat</b>"},
		{"extra text", "cat", "<b>cat</b> sat"},
		{"unterminated trailing tag", "cat", "cat</b"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Align(tt.original, tt.tagged)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformedMarkup))
		})
	}
}

func TestHighlight_CatScenario(t *testing.T) {
	t.Parallel()

	spans := []Overlay{{Spans: []facts.Span{{Start: 4, End: 7}}, Name: "ANIMAL", Category: query.CategoryFact}}
	got, err := Highlight("the cat sat", "the <b>cat</b> sat", spans)
	require.NoError(t, err)
	assert.Equal(t, `the <b><span title="[fact] ANIMAL">cat</span></b> sat`, got)
}

func TestHighlight_NoMarkup(t *testing.T) {
	t.Parallel()

	spans := []Overlay{{
		Spans:    []facts.Span{{Start: 0, End: 3}},
		Name:     "AGE",
		Value:    "5",
		Category: query.CategoryFactValue,
		Color:    "#C8F0C8",
	}}
	got, err := Highlight("abc def", "abc def", spans)
	require.NoError(t, err)
	assert.Equal(t, `<span title="[fact_val] AGE=5" style="background-color:#C8F0C8">abc</span> def`, got)
}

func TestHighlight_NoSpansReturnsTagged(t *testing.T) {
	t.Parallel()

	got, err := Highlight("the cat", "the <b>cat</b>", nil)
	require.NoError(t, err)
	assert.Equal(t, "the <b>cat</b>", got)
}

func TestHighlight_EscapesOriginalText(t *testing.T) {
	t.Parallel()

	got, err := Highlight(`a<b & "c"`, `a<b & "c"`, nil)
	require.NoError(t, err)
	assert.Equal(t, `a&lt;b &amp; &#34;c&#34;`, got)

	got, err = Highlight("R&D <x> lab", "<em>R&D</em> <x> lab", []Overlay{{
		Spans: []facts.Span{{Start: 8, End: 11}}, Name: "ORG", Category: query.CategoryFact,
	}})
	require.NoError(t, err)
	assert.Equal(t, `<em>R&amp;D</em> &lt;x&gt; <span title="[fact] ORG">lab</span>`, got)
}

func TestHighlight_StaleSpan(t *testing.T) {
	t.Parallel()

	spans := []Overlay{{Spans: []facts.Span{{Start: 8, End: 20}}, Name: "ORG", Category: query.CategoryFact}}
	_, err := Highlight("the cat sat", "the <b>cat</b> sat", spans)
	require.Error(t, err)

	var stale *StaleFactSpanError
	require.True(t, errors.As(err, &stale))
	assert.Equal(t, 11, stale.TextLen)
	assert.Equal(t, "ORG", stale.Name)
}

func TestHighlight_MalformedMarkupFails(t *testing.T) {
	t.Parallel()

	spans := []Overlay{{Spans: []facts.Span{{Start: 0, End: 1}}, Name: "X", Category: query.CategoryFact}}
	_, err := Highlight("the cat", "the <b>dog</b>", spans)
	assert.ErrorIs(t, err, ErrMalformedMarkup)
}

func TestHighlight_ConflictPrefersFact(t *testing.T) {
	t.Parallel()

	span := []facts.Span{{Start: 0, End: 4}}
	valFirst := []Overlay{
		{Spans: span, Name: "ORG", Value: "acme", Category: query.CategoryFactValue},
		{Spans: span, Name: "ORG", Category: query.CategoryFact},
	}
	factFirst := []Overlay{valFirst[1], valFirst[0]}

	want := `<span title="[fact] ORG">acme</span> inc`
	for _, in := range [][]Overlay{valFirst, factFirst} {
		got, err := Highlight("acme inc", "acme inc", in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestHighlight_Nesting(t *testing.T) {
	t.Parallel()

	spans := []Overlay{
		{Spans: []facts.Span{{Start: 4, End: 7}}, Name: "B", Category: query.CategoryFact},
		{Spans: []facts.Span{{Start: 0, End: 11}}, Name: "A", Category: query.CategoryFact},
	}
	got, err := Highlight("the cat sat", "the cat sat", spans)
	require.NoError(t, err)
	assert.Equal(t, `<span title="[fact] A">the <span title="[fact] B">cat</span> sat</span>`, got)
}

func TestHighlight_TouchingSpans(t *testing.T) {
	t.Parallel()

	spans := []Overlay{
		{Spans: []facts.Span{{Start: 2, End: 4}}, Name: "B", Category: query.CategoryFact},
		{Spans: []facts.Span{{Start: 0, End: 2}}, Name: "A", Category: query.CategoryFact},
	}
	got, err := Highlight("abcd", "abcd", spans)
	require.NoError(t, err)
	assert.Equal(t, `<span title="[fact] A">ab</span><span title="[fact] B">cd</span>`, got)
}

func TestHighlight_MergesSpansAndEscapesTitle(t *testing.T) {
	t.Parallel()

	spans := []Overlay{{
		Spans:    []facts.Span{{Start: 0, End: 2}, {Start: 1, End: 3}},
		Name:     `Q"&A`,
		Category: query.CategoryFact,
	}}
	got, err := Highlight("abcd", "abcd", spans)
	require.NoError(t, err)
	assert.Equal(t, `<span title="[fact] Q&#34;&amp;A">abc</span>d`, got)
}

func TestHighlight_Unicode(t *testing.T) {
	t.Parallel()

	spans := []Overlay{{Spans: []facts.Span{{Start: 2, End: 5}}, Name: "PER", Category: query.CategoryFact}}
	got, err := Highlight("a jürgen", "a <em>jür</em>gen", spans)
	require.NoError(t, err)
	assert.Equal(t, `a <em><span title="[fact] PER">jür</span></em>gen`, got)
}

func testHit() es.Hit {
	return es.Hit{
		ID:        "d1",
		Source:    json.RawMessage(`{"body":"the cat sat","meta":{"title":"cats"}}`),
		Highlight: map[string][]string{"body": {"the <b>cat</b> sat"}},
		InnerHits: map[string]es.InnerHits{
			"f#1#0": {Hits: es.Hits{Hits: []es.Hit{
				{Source: json.RawMessage(`{"fact":"ANIMAL","str_val":"cat","doc_path":"body","spans":"[[4,7]]"}`)},
				{Source: json.RawMessage(`{"fact":"ANIMAL","str_val":"cats","doc_path":"meta.title","spans":"[[0,4]]"}`)},
			}}},
			"fv#2": {Hits: es.Hits{Hits: []es.Hit{
				{Source: json.RawMessage(`{"fact":"ANIMAL","str_val":"cat","doc_path":"body","spans":"[[4,7]]"}`)},
			}}},
			"unrelated": {Hits: es.Hits{Hits: []es.Hit{{Source: json.RawMessage(`not json`)}}}},
		},
	}
}

func testCombined() *query.CombinedQuery {
	return &query.CombinedQuery{Facts: map[string]query.FactQuery{
		"f#1#0": {Category: query.CategoryFact, FieldID: "1", Field: "body", Name: "ANIMAL"},
		"fv#2":  {Category: query.CategoryFactValue, FieldID: "2", Field: "body", Name: "ANIMAL", ValueOp: "=", Value: "cat"},
	}}
}

func TestOverlaysFromInnerHits(t *testing.T) {
	t.Parallel()

	spans, err := OverlaysFromInnerHits(testHit(), testCombined().Facts, "body", DefaultColors())
	require.NoError(t, err)
	require.Len(t, spans, 2)
	assert.Equal(t, query.CategoryFact, spans[0].Category)
	assert.Equal(t, DefaultFactColor, spans[0].Color)
	assert.Empty(t, spans[0].Value)
	assert.Equal(t, query.CategoryFactValue, spans[1].Category)
	assert.Equal(t, "cat", spans[1].Value)
	assert.Equal(t, []facts.Span{{Start: 4, End: 7}}, spans[1].Spans)
}

func TestField(t *testing.T) {
	t.Parallel()

	got, err := Field(testHit(), testCombined(), "body", Colors{})
	require.NoError(t, err)
	assert.Equal(t, `the <b><span title="[fact] ANIMAL">cat</span></b> sat`, got)

	got, err = Field(testHit(), testCombined(), "meta.title", Colors{})
	require.NoError(t, err)
	assert.Equal(t, `<span title="[fact] ANIMAL">cats</span>`, got)
}
