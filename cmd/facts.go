package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/factsearch/internal/facts"
)

var factsCmd = &cobra.Command{
	Use:   "facts",
	Short: "Inspect and edit texta facts",
	Long:  "Commands for aggregating fact names and values, tagging a span as a fact and removing facts across the index.",
}

// -- facts names --

var factsNamesCmd = &cobra.Command{
	Use:   "names",
	Short: "List fact names with document counts",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		size, _ := cmd.Flags().GetInt("size")

		env, err := initSearch(ctx, false)
		if err != nil {
			return err
		}
		defer env.Close()

		agg, err := env.Facts.AggregateFactNames(ctx, size)
		if err != nil {
			return eris.Wrap(err, "facts names")
		}
		formatBuckets(cmd.OutOrStdout(), "FACT", agg)
		return nil
	},
}

// -- facts values --

var factsValuesCmd = &cobra.Command{
	Use:   "values <fact-name>",
	Short: "List the values of one fact with document counts",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		size, _ := cmd.Flags().GetInt("size")

		env, err := initSearch(ctx, false)
		if err != nil {
			return err
		}
		defer env.Close()

		agg, err := env.Facts.AggregateFactValues(ctx, args[0], size)
		if err != nil {
			return eris.Wrap(err, "facts values")
		}
		formatBuckets(cmd.OutOrStdout(), "VALUE", agg)
		return nil
	},
}

// -- facts add --

var factsAddCmd = &cobra.Command{
	Use:   "add <doc-id>",
	Short: "Tag a character span of a document field as a fact",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		name, _ := cmd.Flags().GetString("name")
		value, _ := cmd.Flags().GetString("value")
		field, _ := cmd.Flags().GetString("field")
		start, _ := cmd.Flags().GetInt("start")
		end, _ := cmd.Flags().GetInt("end")

		env, err := initSearch(ctx, false)
		if err != nil {
			return err
		}
		defer env.Close()

		doc, err := env.Facts.Get(ctx, args[0])
		if err != nil {
			return err
		}
		added, err := env.Facts.AddFact(ctx, doc, name, value, field, facts.Span{Start: start, End: end})
		if err != nil {
			return eris.Wrap(err, "facts add")
		}
		if added {
			fmt.Fprintf(cmd.OutOrStdout(), "added %s to %s\n", facts.NormalizeName(name), doc.ID)
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "%s already tagged on %s\n", facts.NormalizeName(name), doc.ID)
		}
		return nil
	},
}

// -- facts remove --

var factsRemoveCmd = &cobra.Command{
	Use:   "remove",
	Short: "Remove matching facts from every document",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		pred := facts.Predicate{}
		pred.Name, _ = cmd.Flags().GetString("name")
		pred.Value, _ = cmd.Flags().GetString("value")
		pred.Field, _ = cmd.Flags().GetString("field")

		if err := pred.Validate(); err != nil {
			return err
		}

		env, err := initSearch(ctx, false)
		if err != nil {
			return err
		}
		defer env.Close()

		stats, err := env.Facts.RemoveFacts(ctx, pred)
		if err != nil {
			return eris.Wrap(err, "facts remove")
		}
		fmt.Fprintf(cmd.OutOrStdout(), "scanned %d documents, updated %d, removed %d facts\n",
			stats.Scanned, stats.Updated, stats.Removed)
		return nil
	},
}

func formatBuckets(w io.Writer, keyHeader string, agg *facts.Aggregation) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "%s\tDOCS\n", keyHeader)
	for _, b := range agg.Buckets {
		fmt.Fprintf(tw, "%s\t%d\n", b.Key, b.DocCount)
	}
	if agg.OtherDocCount > 0 {
		fmt.Fprintf(tw, "(other)\t%d\n", agg.OtherDocCount)
	}
	tw.Flush() //nolint:errcheck
}

func init() {
	factsNamesCmd.Flags().Int("size", 0, "maximum buckets (default from config)")
	factsValuesCmd.Flags().Int("size", 0, "maximum buckets (default from config)")

	factsAddCmd.Flags().String("name", "", "fact name")
	factsAddCmd.Flags().String("value", "", "fact value")
	factsAddCmd.Flags().String("field", "", "document field the span indexes into")
	factsAddCmd.Flags().Int("start", 0, "span start (character offset)")
	factsAddCmd.Flags().Int("end", 0, "span end (exclusive)")
	_ = factsAddCmd.MarkFlagRequired("name")
	_ = factsAddCmd.MarkFlagRequired("field")

	factsRemoveCmd.Flags().String("name", "", "fact name (case-insensitive)")
	factsRemoveCmd.Flags().String("value", "", "only remove facts with this value")
	factsRemoveCmd.Flags().String("field", "", "only remove facts on this field")
	_ = factsRemoveCmd.MarkFlagRequired("name")

	factsCmd.AddCommand(factsNamesCmd, factsValuesCmd, factsAddCmd, factsRemoveCmd)
	rootCmd.AddCommand(factsCmd)
}
