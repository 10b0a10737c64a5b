// Package lexicon expands concept and lexicon references in search literals.
//
// A literal "@C12-capitals" expands to the terms of concept 12 and
// "@L3-animals" to the words of lexicon 3. Any other literal resolves to
// itself.
package lexicon

import (
	"context"
	"errors"
	"regexp"
	"strconv"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/factsearch/internal/cache"
	"github.com/sells-group/factsearch/internal/model"
	"github.com/sells-group/factsearch/internal/store"
)

var (
	conceptRef = regexp.MustCompile(`^@C(\d+)-`)
	lexiconRef = regexp.MustCompile(`^@L(\d+)-`)
)

// Source loads concept terms and lexicon words. store.Store satisfies it.
type Source interface {
	GetLexicon(ctx context.Context, id int64) (*model.Lexicon, error)
	GetConcept(ctx context.Context, id int64) (*model.Concept, error)
}

// Resolver resolves literals through a Source, caching expansions.
type Resolver struct {
	src   Source
	cache *cache.Bounded
}

// NewResolver creates a Resolver. A nil cache disables caching.
func NewResolver(src Source, c *cache.Bounded) *Resolver {
	return &Resolver{src: src, cache: c}
}

// Resolve expands token. A reference to a missing concept or lexicon
// resolves to nothing; other source errors are returned.
func (r *Resolver) Resolve(ctx context.Context, token string) ([]string, error) {
	kind, id, ok := parseRef(token)
	if !ok {
		return []string{token}, nil
	}

	key := kind + strconv.FormatInt(id, 10)
	if r.cache != nil {
		if v, hit := r.cache.Get(key); hit {
			return v.([]string), nil
		}
	}

	var (
		terms []string
		err   error
	)
	switch kind {
	case "C":
		var c *model.Concept
		if c, err = r.src.GetConcept(ctx, id); err == nil {
			terms = c.Terms
		}
	default:
		var l *model.Lexicon
		if l, err = r.src.GetLexicon(ctx, id); err == nil {
			terms = l.Words
		}
	}
	if errors.Is(err, store.ErrNotFound) {
		zap.L().Debug("lexicon: unknown reference", zap.String("token", token))
		terms, err = nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "lexicon: resolve %s", token)
	}

	if r.cache != nil {
		r.cache.Set(key, terms)
	}
	return terms, nil
}

// Invalidate drops cached expansions, e.g. after a lexicon was edited.
func (r *Resolver) Invalidate() {
	if r.cache != nil {
		r.cache.Flush()
	}
}

func parseRef(token string) (string, int64, bool) {
	for kind, re := range map[string]*regexp.Regexp{"C": conceptRef, "L": lexiconRef} {
		m := re.FindStringSubmatch(token)
		if m == nil {
			continue
		}
		id, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			return "", 0, false
		}
		return kind, id, true
	}
	return "", 0, false
}
