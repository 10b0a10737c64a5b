package main

import (
	"context"
	"net/http"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/factsearch/internal/cache"
	"github.com/sells-group/factsearch/internal/config"
	"github.com/sells-group/factsearch/internal/constraint"
	"github.com/sells-group/factsearch/internal/export"
	"github.com/sells-group/factsearch/internal/facts"
	"github.com/sells-group/factsearch/internal/highlight"
	"github.com/sells-group/factsearch/internal/lexicon"
	"github.com/sells-group/factsearch/internal/query"
	"github.com/sells-group/factsearch/internal/search"
	"github.com/sells-group/factsearch/internal/store"
	"github.com/sells-group/factsearch/pkg/es"
)

// searchEnv holds the clients and services shared by the search, export,
// facts and serve commands.
type searchEnv struct {
	Client   es.Client
	Compiler *query.Compiler
	Executor *search.Executor
	Facts    *facts.Store
	Exporter *export.Exporter
	Colors   highlight.Colors

	Store    store.Store       // may be nil
	Resolver *lexicon.Resolver // nil when Store is nil
}

// SynonymResolver returns the lexicon resolver, or the identity resolver
// when no store is configured.
func (e *searchEnv) SynonymResolver() query.SynonymResolver {
	if e.Resolver == nil {
		return query.IdentityResolver{}
	}
	return e.Resolver
}

// Close releases resources held by the environment.
func (e *searchEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

func newClient(c config.SearchConfig) es.Client {
	opts := []es.Option{
		es.WithHTTPClient(&http.Client{Timeout: c.Timeout()}),
		es.WithRateLimit(rate.Limit(c.RateLimit), c.RateBurst),
	}
	if c.DocType != "" {
		opts = append(opts, es.WithDocType(c.DocType))
	}
	if c.Username != "" {
		opts = append(opts, es.WithBasicAuth(c.Username, c.Password))
	}
	return es.NewClient(c.URL, opts...)
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		return store.NewSQLite(cfg.Store.DatabaseURL)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initSearch builds the search stack from cfg. With withStore set, the
// lexicon store is opened and migrated and literals are expanded through
// it. Callers should defer env.Close().
func initSearch(ctx context.Context, withStore bool) (*searchEnv, error) {
	if err := cfg.Validate("search"); err != nil {
		return nil, err
	}
	if withStore {
		if err := cfg.Validate("store"); err != nil {
			return nil, err
		}
	}

	client := newClient(cfg.Search)
	exec := search.NewExecutor(client, cfg.Search.Index,
		search.WithKeepAlive(cfg.Search.ScrollKeepAlive),
		search.WithPageSize(cfg.Search.PageSize),
	)

	env := &searchEnv{
		Client: client,
		Compiler: query.NewCompiler(query.Options{
			IncludeFactsInMinShouldMatch: cfg.Compiler.IncludeFactsInMinShouldMatch,
			HighlightPreTag:              cfg.Compiler.HighlightPreTag,
			HighlightPostTag:             cfg.Compiler.HighlightPostTag,
			InnerHitsSize:                cfg.Compiler.InnerHitsSize,
		}),
		Executor: exec,
		Facts: facts.NewStore(client, cfg.Search.Index,
			facts.WithAggregationSize(cfg.Facts.AggregationSize),
			facts.WithKeepAlive(cfg.Search.ScrollKeepAlive),
		),
		Exporter: export.NewExporter(exec, cfg.Export.PageSize),
		Colors:   highlight.Colors{Fact: cfg.Facts.FactColor, FactValue: cfg.Facts.FactValueColor},
	}

	if withStore {
		st, err := initStore(ctx)
		if err != nil {
			return nil, err
		}
		if err := st.Migrate(ctx); err != nil {
			_ = st.Close()
			return nil, eris.Wrap(err, "migrate store")
		}
		env.Store = st
		env.Resolver = lexicon.NewResolver(st, cache.New(cfg.Cache.Limit, cfg.Cache.TTL()))
	}

	zap.L().Debug("search environment ready",
		zap.String("url", cfg.Search.URL),
		zap.String("index", cfg.Search.Index),
		zap.Bool("lexicons", withStore),
	)
	return env, nil
}

// parseParamFlags turns repeated "key=value" flags into a parameter map.
func parseParamFlags(raw []string) (map[string]string, error) {
	params := make(map[string]string, len(raw))
	for _, kv := range raw {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return nil, eris.Errorf("invalid --param %q, want key=value", kv)
		}
		params[k] = v
	}
	return params, nil
}

// loadConstraints reads constraints from a query file or from --param
// flags. Malformed param groups are dropped; a malformed file is an error.
func loadConstraints(queryFile string, rawParams []string) (constraint.Set, error) {
	if queryFile != "" && len(rawParams) > 0 {
		return nil, eris.New("use --query-file or --param, not both")
	}
	if queryFile != "" {
		return constraint.LoadFile(queryFile)
	}
	params, err := parseParamFlags(rawParams)
	if err != nil {
		return nil, err
	}
	return constraint.ParseParams(params), nil
}

// compileFlags compiles the constraints selected by the query flags.
func compileFlags(ctx context.Context, env *searchEnv, queryFile string, rawParams []string) (*query.CombinedQuery, error) {
	set, err := loadConstraints(queryFile, rawParams)
	if err != nil {
		return nil, err
	}
	return env.Compiler.CompileSet(ctx, set, env.SynonymResolver())
}
