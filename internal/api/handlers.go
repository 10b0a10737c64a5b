package api

import (
	"context"
	"encoding/json"
	"errors"
	"html"
	"io"
	"net/http"
	"slices"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/sells-group/factsearch/internal/constraint"
	"github.com/sells-group/factsearch/internal/export"
	"github.com/sells-group/factsearch/internal/facts"
	"github.com/sells-group/factsearch/internal/highlight"
	"github.com/sells-group/factsearch/internal/query"
	"github.com/sells-group/factsearch/internal/search"
	"github.com/sells-group/factsearch/internal/store"
	"github.com/sells-group/factsearch/pkg/es"
)

const maxBodyBytes = 1 << 20

// QueryRequest carries constraints either as typed specs or as the flat
// parameter map, not both.
type QueryRequest struct {
	Constraints []constraint.Spec `json:"constraints,omitempty"`
	Params      map[string]string `json:"params,omitempty"`
}

// SearchRequest is the body of POST /search.
type SearchRequest struct {
	QueryRequest
	search.PageOptions
	// HighlightFields overrides the fields rendered with fact overlays.
	HighlightFields []string `json:"highlight_fields,omitempty"`
	IncludeQuery    bool     `json:"include_query,omitempty"`
}

// ExportRequest is the body of POST /export.
type ExportRequest struct {
	QueryRequest
	Columns []string `json:"columns"`
	// NumExamples is "*" or a row count.
	NumExamples json.RawMessage `json:"num_examples"`
}

// HitResult is one rendered search hit.
type HitResult struct {
	ID              string            `json:"id"`
	Index           string            `json:"index,omitempty"`
	Score           *float64          `json:"score,omitempty"`
	Source          json.RawMessage   `json:"source"`
	Highlight       map[string]string `json:"highlight,omitempty"`
	HighlightErrors map[string]string `json:"highlight_error,omitempty"`
}

// SearchResponse is the body returned by POST /search.
type SearchResponse struct {
	Total    int64           `json:"total"`
	Relation string          `json:"relation,omitempty"`
	Took     int             `json:"took"`
	Hits     []HitResult     `json:"hits"`
	Query    json.RawMessage `json:"query,omitempty"`
}

type errorBody struct {
	Error    string `json:"error"`
	Upstream string `json:"upstream,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps the error taxonomy to HTTP statuses. Upstream bodies are
// passed through unmodified.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	body := errorBody{Error: err.Error()}

	var upErr *es.UpstreamError
	var partial *es.PartialResultError
	switch {
	case errors.Is(err, constraint.ErrMalformed), errors.Is(err, facts.ErrInvalidSpan):
		status = http.StatusBadRequest
	case errors.Is(err, es.ErrCursorExpired):
		status = http.StatusGone
	case errors.As(err, &upErr):
		status = http.StatusBadGateway
		body.Upstream = upErr.Body
	case errors.As(err, &partial):
		status = http.StatusBadGateway
	case errors.Is(err, facts.ErrFactFieldMissing):
		status = http.StatusConflict
	case errors.Is(err, facts.ErrDocumentNotFound), errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	}

	if status >= 500 {
		zap.L().Error("api: request failed",
			zap.String("request_id", RequestIDFrom(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	writeJSON(w, status, body)
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: msg})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		badRequest(w, "invalid request body")
		return false
	}
	return true
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// compile builds the combined query. Flat params go through ParseParams,
// which drops malformed groups; typed specs are rejected when malformed.
func (s *Server) compile(ctx context.Context, req QueryRequest) (*query.CombinedQuery, error) {
	if len(req.Constraints) > 0 && len(req.Params) > 0 {
		return nil, eris.Wrap(constraint.ErrMalformed, "api: send constraints or params, not both")
	}
	var set constraint.Set
	if len(req.Constraints) > 0 {
		var err error
		if set, err = constraint.FromSpecs(req.Constraints); err != nil {
			return nil, err
		}
	} else {
		set = constraint.ParseParams(req.Params)
	}
	return s.deps.Compiler.CompileSet(ctx, set, s.deps.Resolver)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if !decode(w, r, &req) {
		return
	}
	q, err := s.compile(r.Context(), req.QueryRequest)
	if err != nil {
		writeError(w, r, err)
		return
	}
	page, err := s.deps.Executor.Search(r.Context(), q, req.PageOptions)
	if err != nil {
		writeError(w, r, err)
		return
	}

	fields := req.HighlightFields
	if len(fields) == 0 {
		fields = overlayFields(q)
	}

	resp := SearchResponse{
		Total:    page.Total,
		Relation: page.Relation,
		Took:     page.Took,
		Hits:     make([]HitResult, 0, len(page.Hits)),
	}
	for _, hit := range page.Hits {
		resp.Hits = append(resp.Hits, s.renderHit(r, hit, q, fields))
	}
	if req.IncludeQuery {
		resp.Query, _ = q.MainJSON()
	}
	writeJSON(w, http.StatusOK, resp)
}

// overlayFields lists the string-constraint fields followed by any fact
// fields not already present.
func overlayFields(q *query.CombinedQuery) []string {
	seen := make(map[string]bool)
	var out []string
	for _, f := range q.HighlightFields {
		if !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	names := make([]string, 0, len(q.Facts))
	for name := range q.Facts {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		if f := q.Facts[name].Field; f != "" && !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	return out
}

// renderHit highlights each field. A field whose markup cannot be aligned
// falls back to its escaped plain text and the error is reported per field.
func (s *Server) renderHit(r *http.Request, hit es.Hit, q *query.CombinedQuery, fields []string) HitResult {
	out := HitResult{ID: hit.ID, Index: hit.Index, Score: hit.Score, Source: hit.Source}
	for _, field := range fields {
		if !gjson.GetBytes(hit.Source, field).Exists() {
			continue
		}
		if out.Highlight == nil {
			out.Highlight = make(map[string]string, len(fields))
		}
		rendered, err := highlight.Field(hit, q, field, s.deps.Colors)
		if err != nil {
			zap.L().Warn("api: highlight degraded to plain text",
				zap.String("request_id", RequestIDFrom(r.Context())),
				zap.String("doc_id", hit.ID),
				zap.String("field", field),
				zap.Error(err),
			)
			if out.HighlightErrors == nil {
				out.HighlightErrors = make(map[string]string)
			}
			out.HighlightErrors[field] = err.Error()
			rendered = html.EscapeString(gjson.GetBytes(hit.Source, field).String())
		}
		out.Highlight[field] = rendered
	}
	return out
}

func (s *Server) handleCount(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if !decode(w, r, &req) {
		return
	}
	q, err := s.compile(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	n, err := s.deps.Executor.Count(r.Context(), q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"count": n})
}

func parseNumExamples(raw json.RawMessage) (export.Limit, error) {
	if len(raw) == 0 {
		return export.All(), nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return export.ParseLimit(s)
	}
	var n int
	if err := json.Unmarshal(raw, &n); err != nil {
		return export.Limit{}, eris.Errorf("api: invalid num_examples %s", string(raw))
	}
	return export.ParseLimit(strconv.Itoa(n))
}

type countingWriter struct {
	http.ResponseWriter
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.ResponseWriter.Write(p)
	c.n += int64(n)
	return n, err
}

func (c *countingWriter) Flush() {
	if f, ok := c.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	var req ExportRequest
	if !decode(w, r, &req) {
		return
	}
	if len(req.Columns) == 0 {
		badRequest(w, "columns are required")
		return
	}
	limit, err := parseNumExamples(req.NumExamples)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	q, err := s.compile(r.Context(), req.QueryRequest)
	if err != nil {
		writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+export.FileName()+`"`)

	cw := &countingWriter{ResponseWriter: w}
	if _, err := s.deps.Exporter.WriteTo(r.Context(), cw, q, req.Columns, limit); err != nil {
		if cw.n == 0 {
			w.Header().Del("Content-Disposition")
			writeError(w, r, err)
			return
		}
		// headers are gone; the truncated stream is all the client sees
		zap.L().Error("api: export aborted mid-stream",
			zap.String("request_id", RequestIDFrom(r.Context())),
			zap.Int64("bytes", cw.n),
			zap.Error(err),
		)
	}
}

func sizeParam(r *http.Request) int {
	n, _ := strconv.Atoi(r.URL.Query().Get("size"))
	return n
}

// aggregationResult is returned by the fact aggregation routes. An upstream
// failure yields an empty, degraded result instead of an error.
type aggregationResult struct {
	*facts.Aggregation
	Degraded bool `json:"degraded,omitempty"`
}

func degradedAggregation(r *http.Request, err error) aggregationResult {
	zap.L().Warn("api: fact aggregation failed",
		zap.String("request_id", RequestIDFrom(r.Context())),
		zap.Error(err),
	)
	return aggregationResult{Aggregation: &facts.Aggregation{Buckets: []facts.Bucket{}}, Degraded: true}
}

func (s *Server) handleFactNames(w http.ResponseWriter, r *http.Request) {
	agg, err := s.deps.Facts.AggregateFactNames(r.Context(), sizeParam(r))
	if err != nil {
		writeJSON(w, http.StatusOK, degradedAggregation(r, err))
		return
	}
	writeJSON(w, http.StatusOK, aggregationResult{Aggregation: agg})
}

func (s *Server) handleFactValues(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		badRequest(w, "name is required")
		return
	}
	agg, err := s.deps.Facts.AggregateFactValues(r.Context(), name, sizeParam(r))
	if err != nil {
		writeJSON(w, http.StatusOK, degradedAggregation(r, err))
		return
	}
	writeJSON(w, http.StatusOK, aggregationResult{Aggregation: agg})
}

// AddFactRequest is the body of POST /facts.
type AddFactRequest struct {
	DocID string `json:"doc_id"`
	Name  string `json:"name"`
	Value string `json:"value"`
	Field string `json:"field"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

func (s *Server) handleAddFact(w http.ResponseWriter, r *http.Request) {
	var req AddFactRequest
	if !decode(w, r, &req) {
		return
	}
	if req.DocID == "" || req.Name == "" || req.Field == "" {
		badRequest(w, "doc_id, name and field are required")
		return
	}
	if req.Start < 0 || req.End <= req.Start {
		badRequest(w, "start and end must form a non-empty span")
		return
	}
	doc, err := s.deps.Facts.Get(r.Context(), req.DocID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	added, err := s.deps.Facts.AddFact(r.Context(), doc, req.Name, req.Value, req.Field, facts.Span{Start: req.Start, End: req.End})
	if err != nil {
		writeError(w, r, err)
		return
	}
	status := http.StatusOK
	if added {
		status = http.StatusCreated
	}
	writeJSON(w, status, map[string]bool{"added": added})
}

func (s *Server) handleRemoveFacts(w http.ResponseWriter, r *http.Request) {
	var pred facts.Predicate
	if !decode(w, r, &pred) {
		return
	}
	if err := pred.Validate(); err != nil {
		badRequest(w, err.Error())
		return
	}
	stats, err := s.deps.Facts.RemoveFacts(r.Context(), pred)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
