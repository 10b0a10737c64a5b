// Package es provides a client for the Elasticsearch-compatible document
// search API: _search, _search/scroll, _count, _bulk and _update.
//
// The client never retries. Non-2xx responses are returned as
// *UpstreamError carrying the engine's body verbatim.
package es

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// DefaultKeepAlive is the scroll keep-alive window.
const DefaultKeepAlive = "1m"

const (
	opSearch      = "search"
	opScrollStart = "scroll_start"
	opScroll      = "scroll"
	opClearScroll = "clear_scroll"
	opCount       = "count"
	opBulk        = "bulk"
	opUpdate      = "update"
)

// Client defines the search engine operations.
type Client interface {
	// Search runs a query and returns one page of hits.
	Search(ctx context.Context, index string, body any) (*SearchResponse, error)
	// StartScroll runs a query with a scroll keep-alive and returns the first
	// page plus its scroll ID.
	StartScroll(ctx context.Context, index string, body any, keepAlive string) (*SearchResponse, error)
	// Scroll fetches the next page of an open scroll.
	Scroll(ctx context.Context, scrollID, keepAlive string) (*SearchResponse, error)
	// ClearScroll releases scroll contexts before their keep-alive expires.
	ClearScroll(ctx context.Context, scrollIDs ...string) error
	// Count returns the number of documents matching a query.
	Count(ctx context.Context, index string, body any) (int64, error)
	// Bulk executes index/update/delete actions in one request.
	Bulk(ctx context.Context, actions []BulkAction) (*BulkResponse, error)
	// Update applies a partial document update.
	Update(ctx context.Context, index, id string, doc any) error
}

// Option configures the client.
type Option func(*httpClient)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithDocType addresses a legacy mapping type, producing paths like
// /{index}/{type}/_search.
func WithDocType(docType string) Option {
	return func(c *httpClient) {
		c.docType = docType
	}
}

// WithBasicAuth sets basic auth credentials.
func WithBasicAuth(username, password string) Option {
	return func(c *httpClient) {
		c.username = username
		c.password = password
	}
}

// WithRateLimit paces outgoing requests. Requests wait for a token; they
// are never dropped or retried.
func WithRateLimit(r rate.Limit, burst int) Option {
	return func(c *httpClient) {
		if r > 0 {
			c.limiter = rate.NewLimiter(r, max(burst, 1))
		}
	}
}

type httpClient struct {
	baseURL  string
	docType  string
	username string
	password string
	limiter  *rate.Limiter
	http     *http.Client
}

// NewClient creates a client for the engine at baseURL.
func NewClient(baseURL string, opts ...Option) Client {
	c := &httpClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout: 60 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) indexPath(index, endpoint string) string {
	p := "/" + url.PathEscape(index)
	if c.docType != "" {
		p += "/" + url.PathEscape(c.docType)
	}
	return p + "/" + endpoint
}

// do sends one request and returns the body of a 2xx response.
func (c *httpClient) do(ctx context.Context, op, method, path string, query url.Values, body []byte, contentType string) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrapf(err, "es: %s: rate limit wait", op)
		}
	}

	reqURL := c.baseURL + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
	if err != nil {
		return nil, eris.Wrapf(err, "es: %s: create request", op)
	}
	if body != nil {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	requestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err != nil {
		requestsTotal.WithLabelValues(op, "error").Inc()
		return nil, eris.Wrapf(err, "es: %s: request failed", op)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	requestsTotal.WithLabelValues(op, strconv.Itoa(resp.StatusCode)).Inc()
	if err != nil {
		return nil, eris.Wrapf(err, "es: %s: read response body", op)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, newUpstreamError(op, resp.StatusCode, respBody)
	}
	return respBody, nil
}

func encodeBody(body any) ([]byte, error) {
	switch b := body.(type) {
	case nil:
		return []byte("{}"), nil
	case []byte:
		return b, nil
	case json.RawMessage:
		return b, nil
	default:
		return json.Marshal(b)
	}
}

func (c *httpClient) searchRequest(ctx context.Context, op, path string, query url.Values, body any) (*SearchResponse, error) {
	payload, err := encodeBody(body)
	if err != nil {
		return nil, eris.Wrapf(err, "es: %s: marshal body", op)
	}

	raw, err := c.do(ctx, op, http.MethodPost, path, query, payload, "application/json")
	if err != nil {
		return nil, err
	}

	var result SearchResponse
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, eris.Wrapf(err, "es: %s: unmarshal response", op)
	}
	if result.TimedOut || result.Shards.Failed > 0 {
		return nil, &PartialResultError{Op: op, TimedOut: result.TimedOut, Shards: result.Shards, Response: &result}
	}
	return &result, nil
}

func (c *httpClient) Search(ctx context.Context, index string, body any) (*SearchResponse, error) {
	return c.searchRequest(ctx, opSearch, c.indexPath(index, "_search"), nil, body)
}

func (c *httpClient) StartScroll(ctx context.Context, index string, body any, keepAlive string) (*SearchResponse, error) {
	if keepAlive == "" {
		keepAlive = DefaultKeepAlive
	}
	q := url.Values{"scroll": {keepAlive}}
	return c.searchRequest(ctx, opScrollStart, c.indexPath(index, "_search"), q, body)
}

func (c *httpClient) Scroll(ctx context.Context, scrollID, keepAlive string) (*SearchResponse, error) {
	if scrollID == "" {
		return nil, eris.New("es: scroll: empty scroll id")
	}
	if keepAlive == "" {
		keepAlive = DefaultKeepAlive
	}
	body := map[string]string{"scroll": keepAlive, "scroll_id": scrollID}
	return c.searchRequest(ctx, opScroll, "/_search/scroll", nil, body)
}

func (c *httpClient) ClearScroll(ctx context.Context, scrollIDs ...string) error {
	if len(scrollIDs) == 0 {
		return nil
	}
	payload, err := json.Marshal(map[string][]string{"scroll_id": scrollIDs})
	if err != nil {
		return eris.Wrap(err, "es: clear_scroll: marshal body")
	}
	_, err = c.do(ctx, opClearScroll, http.MethodDelete, "/_search/scroll", nil, payload, "application/json")
	return err
}

func (c *httpClient) Count(ctx context.Context, index string, body any) (int64, error) {
	payload, err := encodeBody(body)
	if err != nil {
		return 0, eris.Wrap(err, "es: count: marshal body")
	}
	raw, err := c.do(ctx, opCount, http.MethodPost, c.indexPath(index, "_count"), nil, payload, "application/json")
	if err != nil {
		return 0, err
	}
	var result CountResponse
	if err := json.Unmarshal(raw, &result); err != nil {
		return 0, eris.Wrap(err, "es: count: unmarshal response")
	}
	if result.Shards.Failed > 0 {
		return 0, &PartialResultError{Op: opCount, Shards: result.Shards}
	}
	return result.Count, nil
}

func (c *httpClient) Bulk(ctx context.Context, actions []BulkAction) (*BulkResponse, error) {
	if len(actions) == 0 {
		return &BulkResponse{}, nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, a := range actions {
		meta := map[string]string{"_index": a.Index, "_id": a.ID}
		if c.docType != "" {
			meta["_type"] = c.docType
		}
		if err := enc.Encode(map[string]any{a.Op: meta}); err != nil {
			return nil, eris.Wrap(err, "es: bulk: encode action")
		}
		switch a.Op {
		case "delete":
		case "update":
			if err := enc.Encode(map[string]any{"doc": a.Doc}); err != nil {
				return nil, eris.Wrap(err, "es: bulk: encode doc")
			}
		case "index":
			if err := enc.Encode(a.Doc); err != nil {
				return nil, eris.Wrap(err, "es: bulk: encode doc")
			}
		default:
			return nil, eris.Errorf("es: bulk: unknown op %q", a.Op)
		}
	}

	raw, err := c.do(ctx, opBulk, http.MethodPost, "/_bulk", nil, buf.Bytes(), "application/x-ndjson")
	if err != nil {
		return nil, err
	}

	var result BulkResponse
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, eris.Wrap(err, "es: bulk: unmarshal response")
	}
	if result.Errors {
		var failed []BulkItemResult
		for _, item := range result.Items {
			for _, r := range item {
				if r.Status >= 300 || len(r.Error) > 0 {
					failed = append(failed, r)
				}
			}
		}
		return &result, &BulkError{Failed: failed}
	}
	return &result, nil
}

func (c *httpClient) Update(ctx context.Context, index, id string, doc any) error {
	payload, err := json.Marshal(map[string]any{"doc": doc})
	if err != nil {
		return eris.Wrap(err, "es: update: marshal body")
	}

	var path string
	if c.docType != "" {
		path = fmt.Sprintf("/%s/%s/%s/_update", url.PathEscape(index), url.PathEscape(c.docType), url.PathEscape(id))
	} else {
		path = fmt.Sprintf("/%s/_update/%s", url.PathEscape(index), url.PathEscape(id))
	}
	_, err = c.do(ctx, opUpdate, http.MethodPost, path, nil, payload, "application/json")
	return err
}
