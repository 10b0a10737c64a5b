// Package search executes compiled queries against the search engine.
//
// The Executor holds no pagination state. A scroll cursor is returned to the
// caller after every page and must be handed back for the next one; a stale
// or reused cursor fails upstream. Errors from the engine are returned
// unchanged and nothing is retried.
package search

import (
	"context"
	"iter"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/factsearch/internal/query"
	"github.com/sells-group/factsearch/pkg/es"
)

// DefaultPageSize is used when neither the call nor the executor sets a size.
const DefaultPageSize = 100

// Cursor is an opaque scroll ID.
type Cursor string

// PageOptions shape a single search request.
type PageOptions struct {
	From   int      `json:"from,omitempty"`
	Size   int      `json:"size,omitempty"`
	Source []string `json:"source,omitempty"`
	Sort   []any    `json:"sort,omitempty"`
}

// Page is one page of hits.
type Page struct {
	Total    int64    `json:"total"`
	Relation string   `json:"relation,omitempty"`
	Took     int      `json:"took"`
	Hits     []es.Hit `json:"hits"`
}

// Empty reports whether the page carries no hits, which ends a scroll.
func (p *Page) Empty() bool { return p == nil || len(p.Hits) == 0 }

func pageFrom(resp *es.SearchResponse) *Page {
	return &Page{
		Total:    resp.Hits.Total.Value,
		Relation: resp.Hits.Total.Relation,
		Took:     resp.Took,
		Hits:     resp.Hits.Hits,
	}
}

// Option configures an Executor.
type Option func(*Executor)

// WithKeepAlive sets the scroll keep-alive window, e.g. "1m".
func WithKeepAlive(keepAlive string) Option {
	return func(e *Executor) {
		if keepAlive != "" {
			e.keepAlive = keepAlive
		}
	}
}

// WithPageSize sets the default page size.
func WithPageSize(size int) Option {
	return func(e *Executor) {
		if size > 0 {
			e.pageSize = size
		}
	}
}

// Executor runs CombinedQuery values against one index.
type Executor struct {
	client    es.Client
	index     string
	keepAlive string
	pageSize  int
}

// NewExecutor creates an Executor for index.
func NewExecutor(client es.Client, index string, opts ...Option) *Executor {
	e := &Executor{
		client:    client,
		index:     index,
		keepAlive: es.DefaultKeepAlive,
		pageSize:  DefaultPageSize,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Index returns the target index.
func (e *Executor) Index() string { return e.index }

// KeepAlive returns the scroll keep-alive window.
func (e *Executor) KeepAlive() string { return e.keepAlive }

// Body builds the request body for q. The compiled query is copied, never
// modified.
func (e *Executor) Body(q *query.CombinedQuery, opts PageOptions) query.DSL {
	body := make(query.DSL, len(q.Main)+4)
	for k, v := range q.Main {
		body[k] = v
	}

	size := opts.Size
	if size <= 0 {
		size = e.pageSize
	}
	body["size"] = size
	if opts.From > 0 {
		body["from"] = opts.From
	}
	if len(opts.Source) > 0 {
		body["_source"] = opts.Source
	}
	if len(opts.Sort) > 0 {
		body["sort"] = opts.Sort
	}
	return body
}

// Search returns one page of results.
func (e *Executor) Search(ctx context.Context, q *query.CombinedQuery, opts PageOptions) (*Page, error) {
	if q == nil {
		return nil, eris.New("search: nil query")
	}
	resp, err := e.client.Search(ctx, e.index, e.Body(q, opts))
	if err != nil {
		return nil, err
	}
	return pageFrom(resp), nil
}

// StartScroll opens a scroll and returns the first page with its cursor.
func (e *Executor) StartScroll(ctx context.Context, q *query.CombinedQuery, size int) (Cursor, *Page, error) {
	if q == nil {
		return "", nil, eris.New("search: nil query")
	}
	resp, err := e.client.StartScroll(ctx, e.index, e.Body(q, PageOptions{Size: size}), e.keepAlive)
	if err != nil {
		return "", nil, err
	}
	return Cursor(resp.ScrollID), pageFrom(resp), nil
}

// Scroll consumes one page of an open scroll and returns the next cursor.
func (e *Executor) Scroll(ctx context.Context, cursor Cursor) (Cursor, *Page, error) {
	if cursor == "" {
		return "", nil, eris.New("search: empty cursor")
	}
	resp, err := e.client.Scroll(ctx, string(cursor), e.keepAlive)
	if err != nil {
		return "", nil, err
	}
	return Cursor(resp.ScrollID), pageFrom(resp), nil
}

// Clear releases cursors before their keep-alive expires.
func (e *Executor) Clear(ctx context.Context, cursors ...Cursor) error {
	ids := make([]string, 0, len(cursors))
	for _, c := range cursors {
		if c != "" {
			ids = append(ids, string(c))
		}
	}
	return e.client.ClearScroll(ctx, ids...)
}

// Count returns the number of matching documents. Only the query clause is
// sent; highlight and paging keys are rejected by _count.
func (e *Executor) Count(ctx context.Context, q *query.CombinedQuery) (int64, error) {
	if q == nil {
		return 0, eris.New("search: nil query")
	}
	body := query.DSL{}
	if qc, ok := q.Main["query"]; ok {
		body["query"] = qc
	}
	return e.client.Count(ctx, e.index, body)
}

// Pages scrolls q to exhaustion, yielding each non-empty page. Every
// iteration step is one blocking round trip. If the consumer stops early the
// open cursor is cleared; a failure to clear is only logged. Iterating the
// sequence again re-issues the query with a new cursor.
func (e *Executor) Pages(ctx context.Context, q *query.CombinedQuery, size int) iter.Seq2[*Page, error] {
	return func(yield func(*Page, error) bool) {
		cursor, page, err := e.StartScroll(ctx, q, size)
		for {
			if err != nil {
				yield(nil, err)
				return
			}
			if page.Empty() {
				return
			}
			if !yield(page, nil) {
				if cerr := e.Clear(context.WithoutCancel(ctx), cursor); cerr != nil {
					zap.L().Warn("search: clear scroll failed", zap.Error(cerr))
				}
				return
			}
			cursor, page, err = e.Scroll(ctx, cursor)
		}
	}
}
