package es

import (
	"bytes"
	"encoding/json"
)

// SearchResponse is the parsed _search / _search/scroll response.
type SearchResponse struct {
	Took         int             `json:"took"`
	TimedOut     bool            `json:"timed_out"`
	ScrollID     string          `json:"_scroll_id,omitempty"`
	Shards       Shards          `json:"_shards"`
	Hits         Hits            `json:"hits"`
	Aggregations json.RawMessage `json:"aggregations,omitempty"`
}

// Shards reports per-shard execution.
type Shards struct {
	Total      int               `json:"total"`
	Successful int               `json:"successful"`
	Skipped    int               `json:"skipped"`
	Failed     int               `json:"failed"`
	Failures   []json.RawMessage `json:"failures,omitempty"`
}

// Hits is the hits envelope.
type Hits struct {
	Total    Total    `json:"total"`
	MaxScore *float64 `json:"max_score"`
	Hits     []Hit    `json:"hits"`
}

// Total is the hit count. It accepts both the legacy integer form and the
// {"value": n, "relation": "eq"} object form.
type Total struct {
	Value    int64  `json:"value"`
	Relation string `json:"relation"`
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Total) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] != '{' {
		var n int64
		if err := json.Unmarshal(data, &n); err != nil {
			return err
		}
		t.Value, t.Relation = n, "eq"
		return nil
	}
	type plain Total
	return json.Unmarshal(data, (*plain)(t))
}

// Hit is one matching document.
type Hit struct {
	Index     string               `json:"_index"`
	Type      string               `json:"_type,omitempty"`
	ID        string               `json:"_id"`
	Score     *float64             `json:"_score"`
	Nested    *NestedIdentity      `json:"_nested,omitempty"`
	Source    json.RawMessage      `json:"_source"`
	Highlight map[string][]string  `json:"highlight,omitempty"`
	InnerHits map[string]InnerHits `json:"inner_hits,omitempty"`
	Sort      []any                `json:"sort,omitempty"`
}

// NestedIdentity locates an inner hit within its parent's nested array.
type NestedIdentity struct {
	Field  string `json:"field"`
	Offset int    `json:"offset"`
}

// InnerHits holds the nested sub-documents that matched a named inner hit.
type InnerHits struct {
	Hits Hits `json:"hits"`
}

// CountResponse is the parsed _count response.
type CountResponse struct {
	Count  int64  `json:"count"`
	Shards Shards `json:"_shards"`
}

// BulkAction is one line pair of a _bulk request.
type BulkAction struct {
	Op    string // "index", "update" or "delete"
	Index string
	ID    string
	Doc   any
}

// BulkResponse is the parsed _bulk response.
type BulkResponse struct {
	Took   int                         `json:"took"`
	Errors bool                        `json:"errors"`
	Items  []map[string]BulkItemResult `json:"items"`
}

// BulkItemResult is the outcome of one bulk action.
type BulkItemResult struct {
	Index  string          `json:"_index"`
	ID     string          `json:"_id"`
	Status int             `json:"status"`
	Result string          `json:"result,omitempty"`
	Error  json.RawMessage `json:"error,omitempty"`
}
