package search

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/factsearch/internal/query"
	"github.com/sells-group/factsearch/pkg/es"
	"github.com/sells-group/factsearch/pkg/es/mocks"
)

func testQuery() *query.CombinedQuery {
	return &query.CombinedQuery{
		Main: query.DSL{
			"query":     query.DSL{"bool": query.DSL{"must": []any{}}},
			"highlight": query.DSL{"fields": query.DSL{"body": query.DSL{}}},
		},
	}
}

func resp(scrollID string, ids ...string) *es.SearchResponse {
	r := &es.SearchResponse{ScrollID: scrollID}
	r.Hits.Total = es.Total{Value: 12, Relation: "eq"}
	for _, id := range ids {
		r.Hits.Hits = append(r.Hits.Hits, es.Hit{ID: id})
	}
	return r
}

func TestExecutor_Body(t *testing.T) {
	t.Parallel()

	q := testQuery()
	e := NewExecutor(mocks.NewMockClient(t), "docs", WithPageSize(25))

	body := e.Body(q, PageOptions{From: 10, Source: []string{"body"}, Sort: []any{"_doc"}})
	assert.Equal(t, 25, body["size"])
	assert.Equal(t, 10, body["from"])
	assert.Equal(t, []string{"body"}, body["_source"])
	assert.Equal(t, []any{"_doc"}, body["sort"])
	assert.Contains(t, body, "highlight")

	// compiled query untouched
	assert.NotContains(t, q.Main, "size")
	assert.NotContains(t, q.Main, "from")
}

func TestExecutor_Search(t *testing.T) {
	t.Parallel()

	client := mocks.NewMockClient(t)
	client.On("Search", mock.Anything, "docs", mock.MatchedBy(func(b query.DSL) bool {
		return b["size"] == 5
	})).Return(resp("", "a", "b"), nil)

	e := NewExecutor(client, "docs")
	page, err := e.Search(context.Background(), testQuery(), PageOptions{Size: 5})
	require.NoError(t, err)
	assert.Equal(t, int64(12), page.Total)
	assert.Len(t, page.Hits, 2)
}

func TestExecutor_SearchSurfacesUpstreamError(t *testing.T) {
	t.Parallel()

	upstream := &es.UpstreamError{Op: "search", StatusCode: 500, Body: `{"error":"boom"}`}
	client := mocks.NewMockClient(t)
	client.On("Search", mock.Anything, "docs", mock.Anything).Return(nil, upstream).Once()

	_, err := NewExecutor(client, "docs").Search(context.Background(), testQuery(), PageOptions{})
	assert.Same(t, upstream, err)
}

func TestExecutor_NilQuery(t *testing.T) {
	t.Parallel()

	e := NewExecutor(mocks.NewMockClient(t), "docs")
	_, err := e.Search(context.Background(), nil, PageOptions{})
	assert.Error(t, err)
	_, _, err = e.StartScroll(context.Background(), nil, 0)
	assert.Error(t, err)
	_, err = e.Count(context.Background(), nil)
	assert.Error(t, err)
}

func TestExecutor_ScrollRoundTrip(t *testing.T) {
	t.Parallel()

	client := mocks.NewMockClient(t)
	client.On("StartScroll", mock.Anything, "docs", mock.Anything, "1m").Return(resp("c1", "a"), nil).Once()
	client.On("Scroll", mock.Anything, "c1", "1m").Return(resp("c2", "b"), nil).Once()

	e := NewExecutor(client, "docs")
	cur, page, err := e.StartScroll(context.Background(), testQuery(), 1)
	require.NoError(t, err)
	assert.Equal(t, Cursor("c1"), cur)
	assert.Equal(t, "a", page.Hits[0].ID)

	cur, page, err = e.Scroll(context.Background(), cur)
	require.NoError(t, err)
	assert.Equal(t, Cursor("c2"), cur)
	assert.Equal(t, "b", page.Hits[0].ID)
}

func TestExecutor_ScrollExpiredCursor(t *testing.T) {
	t.Parallel()

	expired := &es.UpstreamError{Op: "scroll", StatusCode: 404}
	client := mocks.NewMockClient(t)
	client.On("Scroll", mock.Anything, "old", "5m").Return(nil, error(expired)).Once()

	_, _, err := NewExecutor(client, "docs", WithKeepAlive("5m")).Scroll(context.Background(), "old")
	require.Error(t, err)

	var upErr *es.UpstreamError
	assert.True(t, errors.As(err, &upErr))
}

func TestExecutor_ScrollEmptyCursor(t *testing.T) {
	t.Parallel()

	_, _, err := NewExecutor(mocks.NewMockClient(t), "docs").Scroll(context.Background(), "")
	assert.Error(t, err)
}

func TestExecutor_CountSendsOnlyQuery(t *testing.T) {
	t.Parallel()

	client := mocks.NewMockClient(t)
	client.On("Count", mock.Anything, "docs", mock.MatchedBy(func(b query.DSL) bool {
		_, hasHL := b["highlight"]
		_, hasQ := b["query"]
		return hasQ && !hasHL
	})).Return(int64(12), nil)

	n, err := NewExecutor(client, "docs").Count(context.Background(), testQuery())
	require.NoError(t, err)
	assert.Equal(t, int64(12), n)
}

func TestExecutor_PagesDrains(t *testing.T) {
	t.Parallel()

	client := mocks.NewMockClient(t)
	client.On("StartScroll", mock.Anything, "docs", mock.Anything, "1m").Return(resp("c1", "a", "b"), nil).Once()
	client.On("Scroll", mock.Anything, "c1", "1m").Return(resp("c2", "c"), nil).Once()
	client.On("Scroll", mock.Anything, "c2", "1m").Return(resp("c3"), nil).Once()

	var ids []string
	for page, err := range NewExecutor(client, "docs").Pages(context.Background(), testQuery(), 2) {
		require.NoError(t, err)
		for _, h := range page.Hits {
			ids = append(ids, h.ID)
		}
	}
	assert.Equal(t, []string{"a", "b", "c"}, ids)
}

func TestExecutor_PagesEarlyStopClears(t *testing.T) {
	t.Parallel()

	client := mocks.NewMockClient(t)
	client.On("StartScroll", mock.Anything, "docs", mock.Anything, "1m").Return(resp("c1", "a"), nil).Once()
	client.On("ClearScroll", mock.Anything, []string{"c1"}).Return(nil).Once()

	for range NewExecutor(client, "docs").Pages(context.Background(), testQuery(), 1) {
		break
	}
}

func TestExecutor_PagesError(t *testing.T) {
	t.Parallel()

	client := mocks.NewMockClient(t)
	client.On("StartScroll", mock.Anything, "docs", mock.Anything, "1m").Return(resp("c1", "a"), nil).Once()
	client.On("Scroll", mock.Anything, "c1", "1m").Return(nil, es.ErrCursorExpired).Once()

	var errs []error
	pages := 0
	for page, err := range NewExecutor(client, "docs").Pages(context.Background(), testQuery(), 1) {
		if err != nil {
			errs = append(errs, err)
			continue
		}
		pages++
		assert.False(t, page.Empty())
	}
	assert.Equal(t, 1, pages)
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], es.ErrCursorExpired)
}
