package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/factsearch/internal/facts"
	"github.com/sells-group/factsearch/internal/highlight"
	"github.com/sells-group/factsearch/internal/model"
	"github.com/sells-group/factsearch/internal/query"
	"github.com/sells-group/factsearch/internal/search"
	"github.com/sells-group/factsearch/pkg/es"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
	return dir
}

// resetFlags restores every flag to its default so repeated Execute calls
// in one process do not see each other's values.
func resetFlags(cmd *cobra.Command) {
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	})
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})
	err := rootCmd.Execute()
	return out.String(), err
}

// fakeEngine serves the endpoints the commands use.
func fakeEngine(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.URL.Path == "/texta/_count":
			io.WriteString(w, `{"count":7,"_shards":{"total":1,"successful":1,"failed":0}}`) //nolint:errcheck
		case r.URL.Path == "/texta/_search" && r.URL.Query().Get("scroll") != "":
			io.WriteString(w, `{"_scroll_id":"s1","hits":{"total":{"value":2,"relation":"eq"},"hits":[`+ //nolint:errcheck
				`{"_index":"texta","_id":"1","_source":{"text":"hello"}},`+
				`{"_index":"texta","_id":"2","_source":{"text":"world"}}]}}`)
		case r.URL.Path == "/_search/scroll" && r.Method == http.MethodPost:
			io.WriteString(w, `{"_scroll_id":"s1","hits":{"hits":[]}}`) //nolint:errcheck
		case r.URL.Path == "/texta/_search":
			io.WriteString(w, `{"took":2,"hits":{"total":{"value":1,"relation":"eq"},"hits":[`+ //nolint:errcheck
				`{"_index":"texta","_id":"1","_score":1.5,"_source":{"text":"the cat sat"},`+
				`"highlight":{"text":["the <b>cat</b> sat"]}}]}}`)
		default:
			http.Error(w, `{"error":"unexpected"}`, http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func setupEnv(t *testing.T) string {
	t.Helper()
	dir := chdirTemp(t)
	srv := fakeEngine(t)
	t.Setenv("FACTSEARCH_SEARCH_URL", srv.URL)
	t.Setenv("FACTSEARCH_STORE_DATABASE_URL", filepath.Join(dir, "lex.db"))
	t.Setenv("FACTSEARCH_LOG_LEVEL", "error")
	return dir
}

func TestCountCommand(t *testing.T) {
	setupEnv(t)

	out, err := execute(t, "count", "--lexicons=false", "--param", "match_field_1=text", "--param", "match_txt_1=cat")
	require.NoError(t, err)
	assert.Equal(t, "7\n", out)
}

func TestSearchCommand_DryRun(t *testing.T) {
	setupEnv(t)

	out, err := execute(t, "search", "--dry-run", "--lexicons=false", "--size", "5",
		"--param", "match_field_1=text", "--param", "match_txt_1=cat")
	require.NoError(t, err)

	var body map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &body))
	assert.EqualValues(t, 5, body["size"])
	assert.Contains(t, out, `"cat"`)
}

func TestSearchCommand_PrintsHighlightedHits(t *testing.T) {
	setupEnv(t)

	out, err := execute(t, "search", "--lexicons=false", "--param", "match_field_1=text", "--param", "match_txt_1=cat")
	require.NoError(t, err)

	var line hitLine
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(out)), &line))
	assert.Equal(t, "1", line.ID)
	assert.Equal(t, "the <b>cat</b> sat", line.Highlight["text"])
}

func TestWriteHits_EscapesPlainFallback(t *testing.T) {
	page := &search.Page{Hits: []es.Hit{
		{ID: "1", Source: json.RawMessage(`{"text":"a < b & c"}`), Highlight: map[string][]string{"text": {"a <b>x</b>"}}},
		{ID: "2", Source: json.RawMessage(`{"text":"R&D"}`)},
	}}

	var buf bytes.Buffer
	require.NoError(t, writeHits(&buf, page, &query.CombinedQuery{}, []string{"text"}, highlight.DefaultColors()))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	var degraded, plain hitLine
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &degraded))
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &plain))
	assert.Equal(t, "a &lt; b &amp; c", degraded.Highlight["text"])
	assert.Equal(t, "R&amp;D", plain.Highlight["text"])
}

func TestSearchCommand_QueryFileAndParamsConflict(t *testing.T) {
	setupEnv(t)

	_, err := execute(t, "search", "--dry-run", "--lexicons=false", "--query-file", "q.yaml", "--param", "match_txt_1=x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not both")
}

func TestExportCommand_WritesFile(t *testing.T) {
	dir := setupEnv(t)
	path := filepath.Join(dir, "out.csv")

	_, err := execute(t, "export", "--lexicons=false", "--columns", "_id,text", "--out", path)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "_id,text\n1,hello\n2,world\n", string(data))
}

func TestExportCommand_RequiresColumns(t *testing.T) {
	setupEnv(t)

	_, err := execute(t, "export", "--lexicons=false")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--columns")
}

func TestLexiconCommands_ExpandSearchLiterals(t *testing.T) {
	setupEnv(t)

	out, err := execute(t, "lexicon", "create", "animals", "--words", "cat,dog")
	require.NoError(t, err)
	assert.Equal(t, "created lexicon 1 (@L1-animals)\n", out)

	out, err = execute(t, "lexicon", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "animals")

	out, err = execute(t, "search", "--dry-run", "--param", "match_field_1=text", "--param", "match_txt_1=@L1-animals")
	require.NoError(t, err)
	assert.Contains(t, out, `"dog"`)

	_, err = execute(t, "lexicon", "get", "abc")
	assert.Error(t, err)
}

func TestMigrateCommand(t *testing.T) {
	dir := setupEnv(t)

	_, err := execute(t, "migrate")
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, "lex.db"))
}

func TestParseParamFlags(t *testing.T) {
	params, err := parseParamFlags([]string{"match_txt_1=a=b", "match_field_1=text"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"match_txt_1": "a=b", "match_field_1": "text"}, params)

	_, err = parseParamFlags([]string{"novalue"})
	assert.Error(t, err)
	_, err = parseParamFlags([]string{"=x"})
	assert.Error(t, err)
}

func TestLoadConstraints_QueryFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "q.yaml")
	content := `
constraints:
  - kind: fact
    field: text
    literals: [ANIMAL]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	set, err := loadConstraints(path, nil)
	require.NoError(t, err)
	assert.Len(t, set, 1)
}

func TestMatchedFields(t *testing.T) {
	q := &query.CombinedQuery{
		HighlightFields: []string{"title", "text"},
		Facts: map[string]query.FactQuery{
			"f#1#0": {Field: "text"},
			"f#2#0": {Field: "body"},
		},
	}
	assert.Equal(t, []string{"body", "text", "title"}, matchedFields(q))
}

func TestFormatBuckets(t *testing.T) {
	var buf bytes.Buffer
	formatBuckets(&buf, "FACT", &facts.Aggregation{
		Buckets:       []facts.Bucket{{Key: "ORG", DocCount: 12}, {Key: "PER", DocCount: 3}},
		OtherDocCount: 4,
	})
	out := buf.String()
	assert.Contains(t, out, "FACT")
	assert.Contains(t, out, "ORG")
	assert.Contains(t, out, "(other)")
	assert.Equal(t, 4, strings.Count(out, "\n"))
}

func TestFormatLexicons(t *testing.T) {
	var buf bytes.Buffer
	formatLexicons(&buf, []model.Lexicon{{ID: 3, Name: "animals", Words: []string{"cat", "dog"}}})
	assert.Contains(t, buf.String(), "animals")
	assert.Contains(t, buf.String(), "ID")
}
