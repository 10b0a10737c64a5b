// Package export streams query results as CSV, one chunk per scroll page.
package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"io"
	"iter"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/sells-group/factsearch/internal/query"
	"github.com/sells-group/factsearch/internal/search"
	"github.com/sells-group/factsearch/pkg/es"
)

// DefaultPageSize is the scroll page size when none is configured.
const DefaultPageSize = 500

// Limit is the number of rows to export. The zero value exports nothing.
type Limit struct {
	n   int
	all bool
}

// All exports every matching document.
func All() Limit { return Limit{all: true} }

// Rows exports at most n documents.
func Rows(n int) Limit { return Limit{n: max(n, 0)} }

// ParseLimit parses "*" (unbounded) or a non-negative integer.
func ParseLimit(s string) (Limit, error) {
	s = strings.TrimSpace(s)
	if s == "*" {
		return All(), nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return Limit{}, eris.Errorf("export: invalid limit %q: want \"*\" or a non-negative integer", s)
	}
	return Rows(n), nil
}

// Unbounded reports whether the limit drains the whole result set.
func (l Limit) Unbounded() bool { return l.all }

func (l Limit) String() string {
	if l.all {
		return "*"
	}
	return strconv.Itoa(l.n)
}

// FileName returns a unique attachment name for an export.
func FileName() string {
	return "export-" + uuid.NewString() + ".csv"
}

// Exporter writes search results as CSV.
type Exporter struct {
	exec     *search.Executor
	pageSize int
}

// NewExporter creates an Exporter scrolling with pageSize hits per page.
func NewExporter(exec *search.Executor, pageSize int) *Exporter {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Exporter{exec: exec, pageSize: pageSize}
}

// Chunks returns a lazy sequence of CSV chunks. The first chunk starts with
// the header row; each later step performs one scroll round trip and yields
// that page's rows. Memory is bounded by the page size.
//
// A bounded limit stops as soon as enough rows are written, possibly in the
// middle of a page, and clears the scroll. The sequence cannot resume:
// iterating it again re-runs the query with a new cursor.
func (e *Exporter) Chunks(ctx context.Context, q *query.CombinedQuery, columns []string, limit Limit) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		if len(columns) == 0 {
			yield(nil, eris.New("export: no columns"))
			return
		}

		var buf bytes.Buffer
		w := csv.NewWriter(&buf)
		if err := w.Write(columns); err != nil {
			yield(nil, eris.Wrap(err, "export: write header"))
			return
		}

		flush := func() ([]byte, error) {
			w.Flush()
			if err := w.Error(); err != nil {
				return nil, eris.Wrap(err, "export: flush csv")
			}
			chunk := bytes.Clone(buf.Bytes())
			buf.Reset()
			return chunk, nil
		}

		if !limit.all && limit.n == 0 {
			chunk, err := flush()
			yield(chunk, err)
			return
		}

		size := e.pageSize
		if !limit.all {
			size = min(size, limit.n)
		}

		written := 0
		emitted := false
		row := make([]string, len(columns))
		for page, err := range e.exec.Pages(ctx, q, size) {
			if err != nil {
				yield(nil, err)
				return
			}

			done := false
			for _, hit := range page.Hits {
				for i, col := range columns {
					row[i] = Lookup(hit, col)
				}
				if err := w.Write(row); err != nil {
					yield(nil, eris.Wrap(err, "export: write row"))
					return
				}
				written++
				if !limit.all && written >= limit.n {
					done = true
					break
				}
			}

			chunk, err := flush()
			if !yield(chunk, err) || err != nil {
				return
			}
			emitted = true
			if done {
				return
			}
		}

		if !emitted {
			chunk, err := flush()
			yield(chunk, err)
		}
	}
}

// Lookup resolves a column against a hit. "_id" and "_index" read hit
// metadata; anything else is a dotted path into the source. Missing paths
// yield "" and objects or arrays yield their raw JSON.
func Lookup(hit es.Hit, column string) string {
	switch column {
	case "_id":
		return hit.ID
	case "_index":
		return hit.Index
	}
	v := gjson.GetBytes(hit.Source, column)
	if !v.Exists() || v.Type == gjson.Null {
		return ""
	}
	if v.IsObject() || v.IsArray() {
		return v.Raw
	}
	return v.String()
}

// WriteTo streams every chunk to w, flushing after each one when w is an
// http.Flusher. It returns the number of bytes written.
func (e *Exporter) WriteTo(ctx context.Context, w io.Writer, q *query.CombinedQuery, columns []string, limit Limit) (int64, error) {
	flusher, _ := w.(http.Flusher)
	var total int64
	chunks := 0
	for chunk, err := range e.Chunks(ctx, q, columns, limit) {
		if err != nil {
			return total, err
		}
		n, err := w.Write(chunk)
		total += int64(n)
		if err != nil {
			return total, eris.Wrap(err, "export: write chunk")
		}
		if flusher != nil {
			flusher.Flush()
		}
		chunks++
	}
	zap.L().Debug("export: finished",
		zap.String("limit", limit.String()),
		zap.Int("chunks", chunks),
		zap.Int64("bytes", total),
	)
	return total, nil
}
