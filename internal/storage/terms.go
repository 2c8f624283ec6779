package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Adithya-Monish-Kumar-K/astra-search/pkg/database"
	"github.com/Adithya-Monish-Kumar-K/astra-search/pkg/resilience"
)

var termRetry = resilience.RetryConfig{
	MaxAttempts:  5,
	InitialDelay: 5 * time.Millisecond,
	MaxDelay:     200 * time.Millisecond,
	Retryable:    database.IsConflict,
}

// EnsureTermID returns the id of term, creating it if needed. A concurrent
// writer inserting the same term is tolerated: the insert is a no-op on
// conflict and runs in its own savepoint, retried on write conflicts.
func (s *Store) EnsureTermID(ctx context.Context, term string) (int64, error) {
	id, err := s.lookupTermID(ctx, term)
	if err != nil {
		return 0, err
	}
	if id != 0 {
		return id, nil
	}

	err = resilience.Retry(ctx, "ensure_term_id", termRetry, func() error {
		return s.InTx(ctx, func(ctx context.Context) error {
			conn := s.db.Conn(ctx)
			if _, err := conn.ExecContext(ctx,
				`INSERT INTO terms (term) VALUES ($1) ON CONFLICT (term) DO NOTHING`, term); err != nil {
				return err
			}
			return conn.QueryRowContext(ctx, `SELECT term_id FROM terms WHERE term = $1`, term).Scan(&id)
		})
	})
	if err != nil {
		return 0, fmt.Errorf("ensuring term %q: %w", term, err)
	}
	return id, nil
}

func (s *Store) lookupTermID(ctx context.Context, term string) (int64, error) {
	var id int64
	err := s.db.Conn(ctx).QueryRowContext(ctx, `SELECT term_id FROM terms WHERE term = $1`, term).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("looking up term %q: %w", term, err)
	}
	return id, nil
}

// LookupTermIDs resolves terms to ids. Unknown terms are absent from the map.
func (s *Store) LookupTermIDs(ctx context.Context, terms []string) (map[string]int64, error) {
	ids := make(map[string]int64, len(terms))
	if len(terms) == 0 {
		return ids, nil
	}
	seen := make(map[string]bool, len(terms))
	args := make([]any, 0, len(terms))
	for _, t := range terms {
		if !seen[t] {
			seen[t] = true
			args = append(args, t)
		}
	}

	err := inChunks(args, func(chunk []any) error {
		rows, err := s.db.Conn(ctx).QueryContext(ctx,
			`SELECT term_id, term FROM terms WHERE term IN (`+placeholders(1, len(chunk))+`)`, chunk...)
		if err != nil {
			return fmt.Errorf("looking up terms: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var t Term
			if err := rows.Scan(&t.ID, &t.Term); err != nil {
				return fmt.Errorf("scanning term: %w", err)
			}
			ids[t.Term] = t.ID
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}
