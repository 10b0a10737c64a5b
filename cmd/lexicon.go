package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/factsearch/internal/model"
	"github.com/sells-group/factsearch/internal/store"
)

var lexiconCmd = &cobra.Command{
	Use:   "lexicon",
	Short: "Manage lexicons referenced as @L<id>-<label> in search literals",
}

var conceptCmd = &cobra.Command{
	Use:   "concept",
	Short: "Manage concepts referenced as @C<id>-<label> in search literals",
}

// withStore opens and migrates the lexicon store for one command.
func withStore(ctx context.Context, fn func(store.Store) error) error {
	if err := cfg.Validate("store"); err != nil {
		return err
	}
	st, err := initStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck
	if err := st.Migrate(ctx); err != nil {
		return eris.Wrap(err, "migrate store")
	}
	return fn(st)
}

func parseID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, eris.Errorf("invalid id %q", arg)
	}
	return id, nil
}

// -- lexicon --

var lexiconCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a lexicon",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		description, _ := cmd.Flags().GetString("description")
		words, _ := cmd.Flags().GetStringSlice("words")
		return withStore(cmd.Context(), func(st store.Store) error {
			lex, err := st.CreateLexicon(cmd.Context(), args[0], description, words)
			if err != nil {
				return eris.Wrap(err, "lexicon create")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created lexicon %d (@L%d-%s)\n", lex.ID, lex.ID, lex.Name)
			return nil
		})
	},
}

var lexiconListCmd = &cobra.Command{
	Use:   "list",
	Short: "List lexicons",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withStore(cmd.Context(), func(st store.Store) error {
			lexicons, err := st.ListLexicons(cmd.Context())
			if err != nil {
				return eris.Wrap(err, "lexicon list")
			}
			formatLexicons(cmd.OutOrStdout(), lexicons)
			return nil
		})
	},
}

var lexiconGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show the words of a lexicon",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return withStore(cmd.Context(), func(st store.Store) error {
			lex, err := st.GetLexicon(cmd.Context(), id)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\n%s\n", lex.Name, strings.Join(lex.Words, "\n"))
			return nil
		})
	},
}

var lexiconDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a lexicon",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return withStore(cmd.Context(), func(st store.Store) error {
			return st.DeleteLexicon(cmd.Context(), id)
		})
	},
}

// -- concept --

var conceptCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a concept",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		terms, _ := cmd.Flags().GetStringSlice("terms")
		return withStore(cmd.Context(), func(st store.Store) error {
			c, err := st.CreateConcept(cmd.Context(), args[0], terms)
			if err != nil {
				return eris.Wrap(err, "concept create")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created concept %d (@C%d-%s)\n", c.ID, c.ID, c.Name)
			return nil
		})
	},
}

var conceptListCmd = &cobra.Command{
	Use:   "list",
	Short: "List concepts",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withStore(cmd.Context(), func(st store.Store) error {
			concepts, err := st.ListConcepts(cmd.Context())
			if err != nil {
				return eris.Wrap(err, "concept list")
			}
			formatConcepts(cmd.OutOrStdout(), concepts)
			return nil
		})
	},
}

var conceptGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show the terms of a concept",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return withStore(cmd.Context(), func(st store.Store) error {
			c, err := st.GetConcept(cmd.Context(), id)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\n%s\n", c.Name, strings.Join(c.Terms, "\n"))
			return nil
		})
	},
}

var conceptDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a concept",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return withStore(cmd.Context(), func(st store.Store) error {
			return st.DeleteConcept(cmd.Context(), id)
		})
	},
}

func formatLexicons(w io.Writer, lexicons []model.Lexicon) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tWORDS\tCREATED")
	for _, l := range lexicons {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%s\n", l.ID, l.Name, len(l.Words), l.CreatedAt.Format(time.DateOnly))
	}
	tw.Flush() //nolint:errcheck
}

func formatConcepts(w io.Writer, concepts []model.Concept) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tTERMS\tCREATED")
	for _, c := range concepts {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%s\n", c.ID, c.Name, len(c.Terms), c.CreatedAt.Format(time.DateOnly))
	}
	tw.Flush() //nolint:errcheck
}

func init() {
	lexiconCreateCmd.Flags().String("description", "", "lexicon description")
	lexiconCreateCmd.Flags().StringSlice("words", nil, "comma-separated words")
	conceptCreateCmd.Flags().StringSlice("terms", nil, "comma-separated terms")

	lexiconCmd.AddCommand(lexiconCreateCmd, lexiconListCmd, lexiconGetCmd, lexiconDeleteCmd)
	conceptCmd.AddCommand(conceptCreateCmd, conceptListCmd, conceptGetCmd, conceptDeleteCmd)
	rootCmd.AddCommand(lexiconCmd, conceptCmd)
}
