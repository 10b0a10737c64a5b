package es

import (
	"errors"
	"fmt"
	"strings"
)

// ErrCursorExpired is matched (via errors.Is) by scroll errors caused by an
// expired or unknown scroll cursor.
var ErrCursorExpired = errors.New("scroll cursor expired")

// UpstreamError is a non-2xx response. Body is the engine's response,
// unmodified.
type UpstreamError struct {
	Op         string
	StatusCode int
	Body       string
	cause      error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("es: %s: status %d: %s", e.Op, e.StatusCode, e.Body)
}

func (e *UpstreamError) Unwrap() error {
	return e.cause
}

func newUpstreamError(op string, status int, body []byte) *UpstreamError {
	e := &UpstreamError{Op: op, StatusCode: status, Body: string(body)}
	if op == opScroll && (status == 404 || strings.Contains(e.Body, "search_context_missing_exception")) {
		e.cause = ErrCursorExpired
	}
	return e
}

// PartialResultError reports a response with failed shards or a timeout.
// The response is attached so callers can inspect what did succeed.
type PartialResultError struct {
	Op       string
	TimedOut bool
	Shards   Shards
	Response *SearchResponse
}

func (e *PartialResultError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "es: %s: partial result: %d of %d shards failed", e.Op, e.Shards.Failed, e.Shards.Total)
	if e.TimedOut {
		b.WriteString(", timed out")
	}
	for _, f := range e.Shards.Failures {
		b.WriteString(": ")
		b.Write(f)
	}
	return b.String()
}

// BulkError lists the bulk items the engine rejected.
type BulkError struct {
	Failed []BulkItemResult
}

func (e *BulkError) Error() string {
	if len(e.Failed) == 0 {
		return "es: bulk: item errors"
	}
	first := e.Failed[0]
	return fmt.Sprintf("es: bulk: %d items failed, first %s status %d: %s",
		len(e.Failed), first.ID, first.Status, string(first.Error))
}
