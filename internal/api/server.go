// Package api exposes search, count, export and fact operations over HTTP.
package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/factsearch/internal/export"
	"github.com/sells-group/factsearch/internal/facts"
	"github.com/sells-group/factsearch/internal/highlight"
	"github.com/sells-group/factsearch/internal/query"
	"github.com/sells-group/factsearch/internal/search"
	"github.com/sells-group/factsearch/internal/store"
)

// Deps are the components the handlers call.
type Deps struct {
	Compiler *query.Compiler
	Resolver query.SynonymResolver
	Executor *search.Executor
	Facts    *facts.Store
	Exporter *export.Exporter
	Colors   highlight.Colors

	// Lexicons enables the /lexicons and /concepts routes when set.
	Lexicons store.Store
	// OnLexiconChange runs after a lexicon or concept is created or deleted.
	OnLexiconChange func()

	AllowedOrigins []string
}

// Server serves the HTTP API.
type Server struct {
	deps Deps
}

// New creates a Server.
func New(deps Deps) *Server {
	if deps.Resolver == nil {
		deps.Resolver = query.IdentityResolver{}
	}
	if deps.Compiler == nil {
		deps.Compiler = query.NewCompiler(query.Options{})
	}
	if len(deps.AllowedOrigins) == 0 {
		deps.AllowedOrigins = []string{"*"}
	}
	return &Server{deps: deps}
}

// Router builds the chi mux with all routes wired.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.deps.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", requestIDHeader},
		ExposedHeaders: []string{"Content-Disposition", requestIDHeader},
		MaxAge:         300,
	}))

	r.Get("/health", handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/search", s.handleSearch)
	r.Post("/count", s.handleCount)
	r.Post("/export", s.handleExport)

	r.Route("/facts", func(r chi.Router) {
		r.Get("/names", s.handleFactNames)
		r.Get("/values", s.handleFactValues)
		r.Post("/", s.handleAddFact)
		r.Post("/remove", s.handleRemoveFacts)
	})

	if s.deps.Lexicons != nil {
		r.Route("/lexicons", func(r chi.Router) {
			r.Get("/", s.handleListLexicons)
			r.Post("/", s.handleCreateLexicon)
			r.Get("/{id}", s.handleGetLexicon)
			r.Delete("/{id}", s.handleDeleteLexicon)
		})
		r.Route("/concepts", func(r chi.Router) {
			r.Get("/", s.handleListConcepts)
			r.Post("/", s.handleCreateConcept)
			r.Get("/{id}", s.handleGetConcept)
			r.Delete("/{id}", s.handleDeleteConcept)
		})
	}

	return r
}

// ListenAndServe listens on addr and serves until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return eris.Wrapf(err, "api: listen %s", addr)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		zap.L().Info("starting server", zap.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "api: serve")
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		zap.L().Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return eris.Wrap(err, "api: shutdown")
		}
		return nil
	})
	return g.Wait()
}
