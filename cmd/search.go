package main

import (
	"encoding/json"
	"fmt"
	"html"
	"io"
	"os"
	"slices"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/sells-group/factsearch/internal/highlight"
	"github.com/sells-group/factsearch/internal/query"
	"github.com/sells-group/factsearch/internal/search"
)

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Run a search and print one page of hits",
	Long:  "Compiles constraints from --query-file or --param flags, runs one search page and prints the hits as JSON lines with fact highlights applied.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		queryFile, _ := cmd.Flags().GetString("query-file")
		params, _ := cmd.Flags().GetStringArray("param")
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		from, _ := cmd.Flags().GetInt("from")
		size, _ := cmd.Flags().GetInt("size")
		fields, _ := cmd.Flags().GetStringSlice("highlight")
		lexicons, _ := cmd.Flags().GetBool("lexicons")

		env, err := initSearch(ctx, lexicons)
		if err != nil {
			return err
		}
		defer env.Close()

		q, err := compileFlags(ctx, env, queryFile, params)
		if err != nil {
			return err
		}

		opts := search.PageOptions{From: from, Size: size}
		if dryRun {
			return printQuery(cmd.OutOrStdout(), env.Executor.Body(q, opts))
		}

		page, err := env.Executor.Search(ctx, q, opts)
		if err != nil {
			return eris.Wrap(err, "search")
		}

		if len(fields) == 0 {
			fields = matchedFields(q)
		}
		fmt.Fprintf(os.Stderr, "%d hits (%s), took %dms\n", page.Total, page.Relation, page.Took)
		return writeHits(cmd.OutOrStdout(), page, q, fields, env.Colors)
	},
}

var countCmd = &cobra.Command{
	Use:   "count",
	Short: "Count documents matching the constraints",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		queryFile, _ := cmd.Flags().GetString("query-file")
		params, _ := cmd.Flags().GetStringArray("param")
		lexicons, _ := cmd.Flags().GetBool("lexicons")

		env, err := initSearch(ctx, lexicons)
		if err != nil {
			return err
		}
		defer env.Close()

		q, err := compileFlags(ctx, env, queryFile, params)
		if err != nil {
			return err
		}
		n, err := env.Executor.Count(ctx, q)
		if err != nil {
			return eris.Wrap(err, "count")
		}
		fmt.Fprintln(cmd.OutOrStdout(), n)
		return nil
	},
}

// matchedFields lists the fields a query highlights or places facts in.
func matchedFields(q *query.CombinedQuery) []string {
	fields := slices.Clone(q.HighlightFields)
	for _, fq := range q.Facts {
		fields = append(fields, fq.Field)
	}
	slices.Sort(fields)
	return slices.Compact(fields)
}

func printQuery(w io.Writer, body query.DSL) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(body)
}

type hitLine struct {
	ID        string            `json:"id"`
	Score     *float64          `json:"score,omitempty"`
	Highlight map[string]string `json:"highlight,omitempty"`
	Source    json.RawMessage   `json:"source"`
}

// writeHits prints one JSON object per hit. Highlights are HTML; a field
// whose highlight cannot be rendered is printed as escaped plain text.
func writeHits(w io.Writer, page *search.Page, q *query.CombinedQuery, fields []string, colors highlight.Colors) error {
	enc := json.NewEncoder(w)
	for _, hit := range page.Hits {
		line := hitLine{ID: hit.ID, Score: hit.Score, Source: hit.Source}
		for _, field := range fields {
			text := gjson.GetBytes(hit.Source, field)
			if !text.Exists() {
				continue
			}
			rendered, err := highlight.Field(hit, q, field, colors)
			if err != nil {
				zap.L().Warn("highlight failed", zap.String("doc_id", hit.ID), zap.String("field", field), zap.Error(err))
				rendered = html.EscapeString(text.String())
			}
			if line.Highlight == nil {
				line.Highlight = make(map[string]string)
			}
			line.Highlight[field] = rendered
		}
		if err := enc.Encode(line); err != nil {
			return eris.Wrap(err, "write hit")
		}
	}
	return nil
}

func addQueryFlags(cmd *cobra.Command) {
	cmd.Flags().String("query-file", "", "YAML or JSON file of constraints")
	cmd.Flags().StringArray("param", nil, "flat constraint parameter as key=value (repeatable)")
	cmd.Flags().Bool("lexicons", true, "expand @C/@L references through the lexicon store")
}

func init() {
	addQueryFlags(searchCmd)
	searchCmd.Flags().Bool("dry-run", false, "print the compiled request body without searching")
	searchCmd.Flags().Int("from", 0, "offset of the first hit")
	searchCmd.Flags().Int("size", 0, "hits per page (default from config)")
	searchCmd.Flags().StringSlice("highlight", nil, "fields to render with highlights (default: matched fields)")

	addQueryFlags(countCmd)

	rootCmd.AddCommand(searchCmd, countCmd)
}
