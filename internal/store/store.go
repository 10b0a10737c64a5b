// Package store persists the lexicons and concepts used for synonym
// expansion of search literals.
package store

import (
	"context"
	"errors"
	"strings"

	"github.com/sells-group/factsearch/internal/model"
)

// ErrNotFound is returned when a lexicon or concept does not exist.
var ErrNotFound = errors.New("not found")

// Store defines lexicon and concept persistence.
type Store interface {
	// Lexicons
	CreateLexicon(ctx context.Context, name, description string, words []string) (*model.Lexicon, error)
	GetLexicon(ctx context.Context, id int64) (*model.Lexicon, error)
	ListLexicons(ctx context.Context) ([]model.Lexicon, error)
	DeleteLexicon(ctx context.Context, id int64) error

	// Concepts
	CreateConcept(ctx context.Context, name string, terms []string) (*model.Concept, error)
	GetConcept(ctx context.Context, id int64) (*model.Concept, error)
	ListConcepts(ctx context.Context) ([]model.Concept, error)
	DeleteConcept(ctx context.Context, id int64) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// normalizeWords trims entries, drops blanks and removes duplicates while
// keeping first-seen order.
func normalizeWords(words []string) []string {
	seen := make(map[string]bool, len(words))
	out := make([]string, 0, len(words))
	for _, w := range words {
		w = strings.TrimSpace(w)
		if w == "" || seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
	}
	return out
}
