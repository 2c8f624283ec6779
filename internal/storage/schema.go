package storage

import (
	"context"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/astra-search/pkg/config"
)

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS documents (
		doc_id     INTEGER PRIMARY KEY AUTOINCREMENT,
		url        TEXT NOT NULL UNIQUE,
		title      TEXT NOT NULL DEFAULT '',
		body       TEXT NOT NULL DEFAULT '',
		length     INTEGER NOT NULL DEFAULT 0,
		fetched_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS terms (
		term_id INTEGER PRIMARY KEY AUTOINCREMENT,
		term    TEXT NOT NULL UNIQUE
	)`,
	`CREATE TABLE IF NOT EXISTS postings (
		term_id  INTEGER NOT NULL REFERENCES terms(term_id) ON DELETE CASCADE,
		doc_id   INTEGER NOT NULL REFERENCES documents(doc_id) ON DELETE CASCADE,
		tf_title INTEGER NOT NULL DEFAULT 0,
		tf_body  INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (term_id, doc_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_postings_doc ON postings (doc_id)`,
	`CREATE TABLE IF NOT EXISTS stats (
		stats_id      INTEGER PRIMARY KEY AUTOINCREMENT,
		avg_doc_len   REAL NOT NULL,
		doc_count     INTEGER NOT NULL,
		index_version INTEGER NOT NULL,
		created_at    TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS indexed_docs (
		doc_id        INTEGER PRIMARY KEY REFERENCES documents(doc_id) ON DELETE CASCADE,
		index_version INTEGER NOT NULL,
		indexed_at    TIMESTAMP NOT NULL
	)`,
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS documents (
		doc_id     BIGSERIAL PRIMARY KEY,
		url        TEXT NOT NULL UNIQUE,
		title      TEXT NOT NULL DEFAULT '',
		body       TEXT NOT NULL DEFAULT '',
		length     INTEGER NOT NULL DEFAULT 0,
		fetched_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS terms (
		term_id BIGSERIAL PRIMARY KEY,
		term    TEXT NOT NULL UNIQUE
	)`,
	`CREATE TABLE IF NOT EXISTS postings (
		term_id  BIGINT NOT NULL REFERENCES terms(term_id) ON DELETE CASCADE,
		doc_id   BIGINT NOT NULL REFERENCES documents(doc_id) ON DELETE CASCADE,
		tf_title INTEGER NOT NULL DEFAULT 0,
		tf_body  INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (term_id, doc_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_postings_doc ON postings (doc_id)`,
	`CREATE TABLE IF NOT EXISTS stats (
		stats_id      BIGSERIAL PRIMARY KEY,
		avg_doc_len   DOUBLE PRECISION NOT NULL,
		doc_count     BIGINT NOT NULL,
		index_version BIGINT NOT NULL,
		created_at    TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS indexed_docs (
		doc_id        BIGINT PRIMARY KEY REFERENCES documents(doc_id) ON DELETE CASCADE,
		index_version BIGINT NOT NULL,
		indexed_at    TIMESTAMPTZ NOT NULL
	)`,
}

// Migrate creates the schema for the active driver and writes the bootstrap
// statistics row on a fresh store. It is safe to run on every start.
func (s *Store) Migrate(ctx context.Context) error {
	var stmts []string
	switch s.db.Driver() {
	case config.DriverSQLite:
		stmts = sqliteSchema
	case config.DriverPostgres:
		stmts = postgresSchema
	default:
		return fmt.Errorf("no schema for driver %q", s.db.Driver())
	}

	return s.InTx(ctx, func(ctx context.Context) error {
		conn := s.db.Conn(ctx)
		for _, stmt := range stmts {
			if _, err := conn.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("applying schema: %w", err)
			}
		}

		var rows int64
		if err := conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM stats`).Scan(&rows); err != nil {
			return fmt.Errorf("counting stats rows: %w", err)
		}
		if rows > 0 {
			return nil
		}
		_, err := conn.ExecContext(ctx,
			`INSERT INTO stats (avg_doc_len, doc_count, index_version, created_at) VALUES ($1, $2, $3, $4)`,
			0.0, 0, 1, s.now())
		if err != nil {
			return fmt.Errorf("writing bootstrap stats: %w", err)
		}
		s.logger.Info("schema created", "driver", s.db.Driver())
		return nil
	})
}
