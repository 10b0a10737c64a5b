package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/sells-group/factsearch/internal/query"
	"github.com/sells-group/factsearch/internal/search"
	"github.com/sells-group/factsearch/pkg/es"
	"github.com/sells-group/factsearch/pkg/es/mocks"
)

// scrollIndex serves n generated documents through the scroll API.
type scrollIndex struct {
	es.Client
	n        int
	size     int
	offset   int
	calls    int
	cleared  []string
	failNext bool
}

func (s *scrollIndex) next() *es.SearchResponse {
	s.calls++
	resp := &es.SearchResponse{ScrollID: "cur-" + strconv.Itoa(s.calls)}
	resp.Hits.Total = es.Total{Value: int64(s.n), Relation: "eq"}
	for ; s.offset < s.n && len(resp.Hits.Hits) < s.size; s.offset++ {
		i := s.offset
		src := fmt.Sprintf(`{"title":"doc %d","meta":{"author":"a%d","tags":["x","y"]},"score":%d}`, i, i, i*10)
		resp.Hits.Hits = append(resp.Hits.Hits, es.Hit{Index: "docs", ID: "id-" + strconv.Itoa(i), Source: json.RawMessage(src)})
	}
	return resp
}

func (s *scrollIndex) StartScroll(_ context.Context, _ string, body any, _ string) (*es.SearchResponse, error) {
	raw, _ := json.Marshal(body)
	s.size = int(gjson.GetBytes(raw, "size").Int())
	s.offset = 0
	return s.next(), nil
}

func (s *scrollIndex) Scroll(context.Context, string, string) (*es.SearchResponse, error) {
	if s.failNext {
		return nil, es.ErrCursorExpired
	}
	return s.next(), nil
}

func (s *scrollIndex) ClearScroll(_ context.Context, ids ...string) error {
	s.cleared = append(s.cleared, ids...)
	return nil
}

func testQuery() *query.CombinedQuery {
	return &query.CombinedQuery{Main: query.DSL{"query": query.DSL{"match_all": query.DSL{}}}}
}

func readCSV(t *testing.T, data []byte) [][]string {
	t.Helper()
	rows, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestParseLimit(t *testing.T) {
	t.Parallel()

	l, err := ParseLimit("*")
	require.NoError(t, err)
	assert.True(t, l.Unbounded())
	assert.Equal(t, "*", l.String())

	l, err = ParseLimit(" 5 ")
	require.NoError(t, err)
	assert.False(t, l.Unbounded())
	assert.Equal(t, "5", l.String())

	for _, bad := range []string{"", "-1", "five", "1.5"} {
		_, err := ParseLimit(bad)
		assert.Error(t, err, bad)
	}
}

func TestChunks_BoundedRegardlessOfPageSize(t *testing.T) {
	t.Parallel()

	for _, pageSize := range []int{1, 2, 5, 7, 100} {
		t.Run(strconv.Itoa(pageSize), func(t *testing.T) {
			idx := &scrollIndex{n: 12}
			exp := NewExporter(search.NewExecutor(idx, "docs"), pageSize)

			var out bytes.Buffer
			for chunk, err := range exp.Chunks(context.Background(), testQuery(), []string{"_id", "title"}, Rows(5)) {
				require.NoError(t, err)
				out.Write(chunk)
			}

			rows := readCSV(t, out.Bytes())
			require.Len(t, rows, 6)
			assert.Equal(t, []string{"_id", "title"}, rows[0])
			assert.Equal(t, []string{"id-4", "doc 4"}, rows[5])
			assert.Len(t, idx.cleared, 1)
		})
	}
}

func TestChunks_OnePagePerChunk(t *testing.T) {
	t.Parallel()

	idx := &scrollIndex{n: 12}
	exp := NewExporter(search.NewExecutor(idx, "docs"), 5)

	var chunks [][]byte
	for chunk, err := range exp.Chunks(context.Background(), testQuery(), []string{"_id"}, All()) {
		require.NoError(t, err)
		chunks = append(chunks, chunk)
	}

	// pages of 5, 5, 2 and a final empty page that ends the scroll
	require.Len(t, chunks, 3)
	assert.Equal(t, 4, idx.calls)
	assert.Len(t, readCSV(t, chunks[0]), 6)
	assert.Equal(t, "id-10\nid-11\n", string(chunks[2]))
	assert.Empty(t, idx.cleared)
}

func TestChunks_Unbounded(t *testing.T) {
	t.Parallel()

	idx := &scrollIndex{n: 12}
	exp := NewExporter(search.NewExecutor(idx, "docs"), 0)

	var out bytes.Buffer
	n, err := exp.WriteTo(context.Background(), &out, testQuery(), []string{"title"}, All())
	require.NoError(t, err)
	assert.Equal(t, int64(out.Len()), n)
	assert.Len(t, readCSV(t, out.Bytes()), 13)
}

func TestChunks_NoResultsYieldsHeader(t *testing.T) {
	t.Parallel()

	idx := &scrollIndex{n: 0}
	exp := NewExporter(search.NewExecutor(idx, "docs"), 10)

	var out bytes.Buffer
	_, err := exp.WriteTo(context.Background(), &out, testQuery(), []string{"_id", "title"}, Rows(5))
	require.NoError(t, err)
	assert.Equal(t, "_id,title\n", out.String())
}

func TestChunks_ZeroLimitSkipsQuery(t *testing.T) {
	t.Parallel()

	exp := NewExporter(search.NewExecutor(mocks.NewMockClient(t), "docs"), 10)

	var out bytes.Buffer
	_, err := exp.WriteTo(context.Background(), &out, testQuery(), []string{"title"}, Rows(0))
	require.NoError(t, err)
	assert.Equal(t, "title\n", out.String())
}

func TestChunks_NoColumns(t *testing.T) {
	t.Parallel()

	exp := NewExporter(search.NewExecutor(mocks.NewMockClient(t), "docs"), 10)
	_, err := exp.WriteTo(context.Background(), &bytes.Buffer{}, testQuery(), nil, All())
	assert.Error(t, err)
}

func TestChunks_UpstreamFailureAborts(t *testing.T) {
	t.Parallel()

	idx := &scrollIndex{n: 12, failNext: true}
	exp := NewExporter(search.NewExecutor(idx, "docs"), 5)

	var out bytes.Buffer
	_, err := exp.WriteTo(context.Background(), &out, testQuery(), []string{"_id"}, All())
	require.Error(t, err)
	assert.True(t, errors.Is(err, es.ErrCursorExpired))
	assert.Len(t, readCSV(t, out.Bytes()), 6)
}

func TestChunks_StartFailure(t *testing.T) {
	t.Parallel()

	client := mocks.NewMockClient(t)
	client.On("StartScroll", mock.Anything, "docs", mock.Anything, "1m").
		Return(nil, &es.UpstreamError{Op: "scroll_start", StatusCode: 503}).Once()

	exp := NewExporter(search.NewExecutor(client, "docs"), 5)
	_, err := exp.WriteTo(context.Background(), &bytes.Buffer{}, testQuery(), []string{"_id"}, All())
	var upErr *es.UpstreamError
	assert.True(t, errors.As(err, &upErr))
}

func TestLookup(t *testing.T) {
	t.Parallel()

	hit := es.Hit{
		Index:  "docs",
		ID:     "d1",
		Source: json.RawMessage(`{"title":"x, \"quoted\"","meta":{"author":"bob","tags":["a","b"],"n":null},"count":3}`),
	}
	assert.Equal(t, "d1", Lookup(hit, "_id"))
	assert.Equal(t, "docs", Lookup(hit, "_index"))
	assert.Equal(t, `x, "quoted"`, Lookup(hit, "title"))
	assert.Equal(t, "bob", Lookup(hit, "meta.author"))
	assert.Equal(t, `["a","b"]`, Lookup(hit, "meta.tags"))
	assert.Equal(t, "3", Lookup(hit, "count"))
	assert.Equal(t, "", Lookup(hit, "meta.missing"))
	assert.Equal(t, "", Lookup(hit, "meta.n"))
	assert.Equal(t, "", Lookup(hit, "nope.deeper"))
}

func TestWriteTo_FlushesHTTP(t *testing.T) {
	t.Parallel()

	idx := &scrollIndex{n: 3}
	exp := NewExporter(search.NewExecutor(idx, "docs"), 2)

	rec := httptest.NewRecorder()
	_, err := exp.WriteTo(context.Background(), rec, testQuery(), []string{"_id", "meta.author"}, All())
	require.NoError(t, err)
	assert.True(t, rec.Flushed)
	assert.True(t, strings.HasPrefix(rec.Body.String(), "_id,meta.author\nid-0,a0\n"))
}

func TestFileName(t *testing.T) {
	a, b := FileName(), FileName()
	assert.NotEqual(t, a, b)
	assert.True(t, strings.HasSuffix(a, ".csv"))
}
