package main

import (
	"fmt"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/factsearch/internal/export"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export matching documents as CSV",
	Long:  "Scrolls every document matching the constraints and writes the selected columns as CSV. --limit takes a row count or * for all rows.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		queryFile, _ := cmd.Flags().GetString("query-file")
		params, _ := cmd.Flags().GetStringArray("param")
		lexicons, _ := cmd.Flags().GetBool("lexicons")
		columns, _ := cmd.Flags().GetStringSlice("columns")
		limitFlag, _ := cmd.Flags().GetString("limit")
		out, _ := cmd.Flags().GetString("out")

		if len(columns) == 0 {
			return eris.New("--columns is required")
		}
		limit, err := export.ParseLimit(limitFlag)
		if err != nil {
			return err
		}

		env, err := initSearch(ctx, lexicons)
		if err != nil {
			return err
		}
		defer env.Close()

		q, err := compileFlags(ctx, env, queryFile, params)
		if err != nil {
			return err
		}

		var w io.Writer = cmd.OutOrStdout()
		if out != "-" {
			if out == "" {
				out = export.FileName()
			}
			f, err := os.Create(out)
			if err != nil {
				return eris.Wrap(err, "create export file")
			}
			defer f.Close() //nolint:errcheck
			w = f
		}

		n, err := env.Exporter.WriteTo(ctx, w, q, columns, limit)
		if err != nil {
			return eris.Wrap(err, "export")
		}
		if out != "-" {
			fmt.Fprintf(os.Stderr, "wrote %d bytes to %s\n", n, out)
		}
		return nil
	},
}

func init() {
	addQueryFlags(exportCmd)
	exportCmd.Flags().StringSlice("columns", nil, "columns to export; _id and _index read hit metadata, anything else is a source path")
	exportCmd.Flags().String("limit", "*", "number of rows to export, or * for all")
	exportCmd.Flags().String("out", "", "output file, - for stdout (default export-<uuid>.csv)")
	rootCmd.AddCommand(exportCmd)
}
