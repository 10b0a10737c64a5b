package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/factsearch/internal/db"
	"github.com/sells-group/factsearch/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS lexicons (
	id          BIGSERIAL PRIMARY KEY,
	name        TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	words       JSONB NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS concepts (
	id         BIGSERIAL PRIMARY KEY,
	name       TEXT NOT NULL,
	terms      JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_lexicons_name ON lexicons(name);
CREATE INDEX IF NOT EXISTS idx_concepts_name ON concepts(name);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateLexicon(ctx context.Context, name, description string, words []string) (*model.Lexicon, error) {
	words = normalizeWords(words)
	wordsJSON, err := json.Marshal(words)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal words")
	}

	lex := &model.Lexicon{Name: name, Description: description, Words: words}
	err = s.pool.QueryRow(ctx,
		`INSERT INTO lexicons (name, description, words) VALUES ($1, $2, $3::jsonb) RETURNING id, created_at`,
		name, description, string(wordsJSON),
	).Scan(&lex.ID, &lex.CreatedAt)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert lexicon")
	}
	return lex, nil
}

func (s *PostgresStore) GetLexicon(ctx context.Context, id int64) (*model.Lexicon, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, name, description, words, created_at FROM lexicons WHERE id = $1`, id,
	)
	lex, err := scanPgLexicon(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: lexicon %d", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get lexicon %d", id)
	}
	return lex, nil
}

func (s *PostgresStore) ListLexicons(ctx context.Context) ([]model.Lexicon, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, description, words, created_at FROM lexicons ORDER BY id`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list lexicons")
	}
	defer rows.Close()

	var out []model.Lexicon
	for rows.Next() {
		lex, err := scanPgLexicon(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan lexicon")
		}
		out = append(out, *lex)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list lexicons iterate")
}

func (s *PostgresStore) DeleteLexicon(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM lexicons WHERE id = $1`, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete lexicon %d", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "lexicon %d", id)
	}
	return nil
}

func (s *PostgresStore) CreateConcept(ctx context.Context, name string, terms []string) (*model.Concept, error) {
	terms = normalizeWords(terms)
	termsJSON, err := json.Marshal(terms)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal terms")
	}

	c := &model.Concept{Name: name, Terms: terms}
	err = s.pool.QueryRow(ctx,
		`INSERT INTO concepts (name, terms) VALUES ($1, $2::jsonb) RETURNING id, created_at`,
		name, string(termsJSON),
	).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert concept")
	}
	return c, nil
}

func (s *PostgresStore) GetConcept(ctx context.Context, id int64) (*model.Concept, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, name, terms, created_at FROM concepts WHERE id = $1`, id,
	)
	c, err := scanPgConcept(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: concept %d", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get concept %d", id)
	}
	return c, nil
}

func (s *PostgresStore) ListConcepts(ctx context.Context) ([]model.Concept, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, terms, created_at FROM concepts ORDER BY id`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list concepts")
	}
	defer rows.Close()

	var out []model.Concept
	for rows.Next() {
		c, err := scanPgConcept(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan concept")
		}
		out = append(out, *c)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list concepts iterate")
}

func (s *PostgresStore) DeleteConcept(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM concepts WHERE id = $1`, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete concept %d", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "concept %d", id)
	}
	return nil
}

func scanPgLexicon(row scannable) (*model.Lexicon, error) {
	var lex model.Lexicon
	var wordsJSON []byte
	if err := row.Scan(&lex.ID, &lex.Name, &lex.Description, &wordsJSON, &lex.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(wordsJSON, &lex.Words); err != nil {
		return nil, eris.Wrap(err, "unmarshal words")
	}
	return &lex, nil
}

func scanPgConcept(row scannable) (*model.Concept, error) {
	var c model.Concept
	var termsJSON []byte
	if err := row.Scan(&c.ID, &c.Name, &termsJSON, &c.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(termsJSON, &c.Terms); err != nil {
		return nil, eris.Wrap(err, "unmarshal terms")
	}
	return &c, nil
}
