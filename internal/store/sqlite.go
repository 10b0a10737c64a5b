package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/factsearch/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS lexicons (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	name        TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	words       TEXT NOT NULL,
	created_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS concepts (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	name       TEXT NOT NULL,
	terms      TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_lexicons_name ON lexicons(name);
CREATE INDEX IF NOT EXISTS idx_concepts_name ON concepts(name);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateLexicon(ctx context.Context, name, description string, words []string) (*model.Lexicon, error) {
	words = normalizeWords(words)
	wordsJSON, err := json.Marshal(words)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal words")
	}
	now := time.Now().UTC()

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO lexicons (name, description, words, created_at) VALUES (?, ?, ?, ?)`,
		name, description, string(wordsJSON), now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert lexicon")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: lexicon id")
	}

	return &model.Lexicon{ID: id, Name: name, Description: description, Words: words, CreatedAt: now}, nil
}

func (s *SQLiteStore) GetLexicon(ctx context.Context, id int64) (*model.Lexicon, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, description, words, created_at FROM lexicons WHERE id = ?`, id,
	)
	lex, err := scanLexicon(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: lexicon %d", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get lexicon %d", id)
	}
	return lex, nil
}

func (s *SQLiteStore) ListLexicons(ctx context.Context) ([]model.Lexicon, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, description, words, created_at FROM lexicons ORDER BY id`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list lexicons")
	}
	defer rows.Close()

	var out []model.Lexicon
	for rows.Next() {
		lex, err := scanLexicon(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan lexicon")
		}
		out = append(out, *lex)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list lexicons iterate")
}

func (s *SQLiteStore) DeleteLexicon(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM lexicons WHERE id = ?`, id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete lexicon %d", id)
	}
	return checkRowsAffected(res, "lexicon", id)
}

func (s *SQLiteStore) CreateConcept(ctx context.Context, name string, terms []string) (*model.Concept, error) {
	terms = normalizeWords(terms)
	termsJSON, err := json.Marshal(terms)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal terms")
	}
	now := time.Now().UTC()

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO concepts (name, terms, created_at) VALUES (?, ?, ?)`,
		name, string(termsJSON), now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert concept")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: concept id")
	}

	return &model.Concept{ID: id, Name: name, Terms: terms, CreatedAt: now}, nil
}

func (s *SQLiteStore) GetConcept(ctx context.Context, id int64) (*model.Concept, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, terms, created_at FROM concepts WHERE id = ?`, id,
	)
	c, err := scanConcept(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: concept %d", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get concept %d", id)
	}
	return c, nil
}

func (s *SQLiteStore) ListConcepts(ctx context.Context) ([]model.Concept, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, terms, created_at FROM concepts ORDER BY id`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list concepts")
	}
	defer rows.Close()

	var out []model.Concept
	for rows.Next() {
		c, err := scanConcept(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan concept")
		}
		out = append(out, *c)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list concepts iterate")
}

func (s *SQLiteStore) DeleteConcept(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM concepts WHERE id = ?`, id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete concept %d", id)
	}
	return checkRowsAffected(res, "concept", id)
}

func checkRowsAffected(res sql.Result, entity string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %d", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanLexicon(row scannable) (*model.Lexicon, error) {
	var lex model.Lexicon
	var wordsJSON string
	if err := row.Scan(&lex.ID, &lex.Name, &lex.Description, &wordsJSON, &lex.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(wordsJSON), &lex.Words); err != nil {
		return nil, eris.Wrap(err, "unmarshal words")
	}
	return &lex, nil
}

func scanConcept(row scannable) (*model.Concept, error) {
	var c model.Concept
	var termsJSON string
	if err := row.Scan(&c.ID, &c.Name, &termsJSON, &c.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(termsJSON), &c.Terms); err != nil {
		return nil, eris.Wrap(err, "unmarshal terms")
	}
	return &c, nil
}
