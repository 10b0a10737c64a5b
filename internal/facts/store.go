package facts

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"go.uber.org/zap"

	"github.com/sells-group/factsearch/internal/query"
	"github.com/sells-group/factsearch/internal/search"
	"github.com/sells-group/factsearch/pkg/es"
)

// DefaultAggregationSize caps terms aggregations. Results beyond the cap are
// not returned.
const DefaultAggregationSize = 10000

// DefaultPageSize is the scroll page size used by RemoveFacts.
const DefaultPageSize = 500

// Option configures a Store.
type Option func(*Store)

// WithAggregationSize sets the default aggregation cap.
func WithAggregationSize(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.aggSize = n
		}
	}
}

// WithPageSize sets the scroll page size for RemoveFacts.
func WithPageSize(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.pageSize = n
		}
	}
}

// WithKeepAlive sets the scroll keep-alive used by RemoveFacts.
func WithKeepAlive(keepAlive string) Option {
	return func(s *Store) {
		s.keepAlive = keepAlive
	}
}

// Store adds, removes and aggregates facts held in one index.
type Store struct {
	client    es.Client
	index     string
	aggSize   int
	pageSize  int
	keepAlive string
	exec      *search.Executor
}

// NewStore creates a Store for index.
func NewStore(client es.Client, index string, opts ...Option) *Store {
	s := &Store{
		client:    client,
		index:     index,
		aggSize:   DefaultAggregationSize,
		pageSize:  DefaultPageSize,
		keepAlive: es.DefaultKeepAlive,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.exec = search.NewExecutor(client, index, search.WithKeepAlive(s.keepAlive), search.WithPageSize(s.pageSize))
	return s
}

// Get fetches one document by ID.
func (s *Store) Get(ctx context.Context, id string) (Document, error) {
	body := query.DSL{
		"size":  1,
		"query": query.DSL{"ids": query.DSL{"values": []string{id}}},
	}
	resp, err := s.client.Search(ctx, s.index, body)
	if err != nil {
		return Document{}, err
	}
	if len(resp.Hits.Hits) == 0 {
		return Document{}, eris.Wrapf(ErrDocumentNotFound, "facts: get %q", id)
	}
	return DocumentFromHit(resp.Hits.Hits[0]), nil
}

// AddFact appends a fact with a single span to doc and writes the updated
// texta_facts array back. The name is upper-cased. Adding a fact identical
// to an existing one (name, value, field and spans) is a no-op and reports
// false. The span must be non-empty. Numeric-looking values are still
// stored as str_val.
func (s *Store) AddFact(ctx context.Context, doc Document, name, value, field string, span Span) (bool, error) {
	if name == "" || field == "" {
		return false, eris.New("facts: add: name and field are required")
	}
	if span.Start < 0 || span.End <= span.Start {
		return false, eris.Wrapf(ErrInvalidSpan, "facts: add: span [%d,%d)", span.Start, span.End)
	}

	existing, err := FromSource(doc.Source)
	if err != nil {
		return false, err
	}

	fact := Fact{
		Fact:    NormalizeName(name),
		StrVal:  value,
		DocPath: field,
		Spans:   EncodeSpans([]Span{span}),
	}
	for _, f := range existing {
		if f.sameAs(fact) {
			zap.L().Debug("facts: fact already present",
				zap.String("doc_id", doc.ID),
				zap.String("fact", fact.Fact),
			)
			return false, nil
		}
	}

	raw, err := json.Marshal(fact)
	if err != nil {
		return false, eris.Wrap(err, "facts: add: marshal fact")
	}
	updated, err := sjson.SetRawBytes(doc.Source, query.FactsPath+".-1", raw)
	if err != nil {
		return false, eris.Wrap(err, "facts: add: append fact")
	}

	partial := map[string]json.RawMessage{
		query.FactsPath: json.RawMessage(gjson.GetBytes(updated, query.FactsPath).Raw),
	}
	if err := s.client.Update(ctx, s.index, doc.ID, partial); err != nil {
		return false, err
	}
	return true, nil
}

// RemoveStats summarizes a RemoveFacts run.
type RemoveStats struct {
	Scanned int `json:"scanned"`
	Updated int `json:"updated"`
	Removed int `json:"removed"`
}

// RemoveFacts scrolls every document holding a fact with the predicate's
// name and rewrites its texta_facts without the matching entries, one bulk
// request per page. The filter is idempotent, so re-running after a partial
// failure is safe; documents already rewritten simply no longer match.
func (s *Store) RemoveFacts(ctx context.Context, pred Predicate) (RemoveStats, error) {
	var stats RemoveStats
	if err := pred.Validate(); err != nil {
		return stats, err
	}

	q := &query.CombinedQuery{Main: query.DSL{
		"query": query.DSL{"nested": query.DSL{
			"path": query.FactsPath,
			"query": query.DSL{"term": query.DSL{
				query.FactsPath + ".fact": query.DSL{"value": NormalizeName(pred.Name), "case_insensitive": true},
			}},
		}},
		"sort": []string{"_doc"},
	}}

	for page, err := range s.exec.Pages(ctx, q, s.pageSize) {
		if err != nil {
			return stats, eris.Wrap(err, "facts: remove: scroll")
		}

		var actions []es.BulkAction
		for _, hit := range page.Hits {
			stats.Scanned++
			rewritten, removed, ok := filterFacts(hit.Source, pred)
			if !ok || removed == 0 {
				continue
			}
			stats.Removed += removed
			index := hit.Index
			if index == "" {
				index = s.index
			}
			actions = append(actions, es.BulkAction{
				Op:    "update",
				Index: index,
				ID:    hit.ID,
				Doc:   map[string]json.RawMessage{query.FactsPath: rewritten},
			})
		}
		if len(actions) == 0 {
			continue
		}
		if _, err := s.client.Bulk(ctx, actions); err != nil {
			return stats, eris.Wrap(err, "facts: remove: bulk update")
		}
		stats.Updated += len(actions)
	}

	zap.L().Info("facts: removed facts",
		zap.String("fact", pred.Name),
		zap.Int("scanned", stats.Scanned),
		zap.Int("updated", stats.Updated),
		zap.Int("removed", stats.Removed),
	)
	return stats, nil
}

// filterFacts drops matching entries from source's texta_facts, keeping
// every surviving entry byte for byte.
func filterFacts(source json.RawMessage, pred Predicate) (json.RawMessage, int, bool) {
	arr := gjson.GetBytes(source, query.FactsPath)
	if !arr.IsArray() {
		return nil, 0, false
	}
	var kept []string
	removed := 0
	arr.ForEach(func(_, elem gjson.Result) bool {
		if pred.matchesRaw(elem) {
			removed++
		} else {
			kept = append(kept, elem.Raw)
		}
		return true
	})
	return json.RawMessage("[" + strings.Join(kept, ",") + "]"), removed, true
}

// Bucket is one aggregation term.
type Bucket struct {
	Key      string `json:"key"`
	DocCount int64  `json:"doc_count"`
}

// Aggregation is a capped terms result. OtherDocCount > 0 means terms beyond
// the cap were left out.
type Aggregation struct {
	Buckets       []Bucket `json:"buckets"`
	OtherDocCount int64    `json:"other_doc_count"`
}

func (s *Store) capOrDefault(sizeCap int) int {
	if sizeCap <= 0 {
		return s.aggSize
	}
	return sizeCap
}

// AggregateFactNames returns fact names by document count.
func (s *Store) AggregateFactNames(ctx context.Context, sizeCap int) (*Aggregation, error) {
	body := query.DSL{
		"size": 0,
		"aggs": query.DSL{"facts": query.DSL{
			"nested": query.DSL{"path": query.FactsPath},
			"aggs": query.DSL{"names": query.DSL{
				"terms": query.DSL{"field": query.FactsPath + ".fact", "size": s.capOrDefault(sizeCap)},
			}},
		}},
	}
	resp, err := s.client.Search(ctx, s.index, body)
	if err != nil {
		return nil, err
	}
	return parseTerms(resp.Aggregations, "facts.names"), nil
}

// AggregateFactValues returns the values of one fact name, string values
// first and then numeric ones.
func (s *Store) AggregateFactValues(ctx context.Context, name string, sizeCap int) (*Aggregation, error) {
	if name == "" {
		return nil, eris.New("facts: aggregate values: name is required")
	}
	size := s.capOrDefault(sizeCap)
	body := query.DSL{
		"size": 0,
		"aggs": query.DSL{"facts": query.DSL{
			"nested": query.DSL{"path": query.FactsPath},
			"aggs": query.DSL{"named": query.DSL{
				"filter": query.DSL{"term": query.DSL{
					query.FactsPath + ".fact": query.DSL{"value": NormalizeName(name), "case_insensitive": true},
				}},
				"aggs": query.DSL{
					"str_values": query.DSL{"terms": query.DSL{"field": query.FactsPath + ".str_val", "size": size}},
					"num_values": query.DSL{"terms": query.DSL{"field": query.FactsPath + ".num_val", "size": size}},
				},
			}},
		}},
	}
	resp, err := s.client.Search(ctx, s.index, body)
	if err != nil {
		return nil, err
	}

	out := parseTerms(resp.Aggregations, "facts.named.str_values")
	nums := parseTerms(resp.Aggregations, "facts.named.num_values")
	out.Buckets = append(out.Buckets, nums.Buckets...)
	out.OtherDocCount += nums.OtherDocCount
	return out, nil
}

func parseTerms(aggs json.RawMessage, path string) *Aggregation {
	node := gjson.GetBytes(aggs, path)
	out := &Aggregation{
		Buckets:       []Bucket{},
		OtherDocCount: node.Get("sum_other_doc_count").Int(),
	}
	node.Get("buckets").ForEach(func(_, b gjson.Result) bool {
		key := b.Get("key_as_string")
		if !key.Exists() {
			key = b.Get("key")
		}
		out.Buckets = append(out.Buckets, Bucket{Key: key.String(), DocCount: b.Get("doc_count").Int()})
		return true
	})
	return out
}
