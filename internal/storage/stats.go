package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// CurrentStats returns the newest statistics row. A store that was never
// migrated reports the bootstrap values.
func (s *Store) CurrentStats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.db.Conn(ctx).QueryRowContext(ctx, `
		SELECT avg_doc_len, doc_count, index_version, created_at
		FROM stats
		ORDER BY stats_id DESC
		LIMIT 1`,
	).Scan(&st.AvgDocLen, &st.DocCount, &st.IndexVersion, &st.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Stats{IndexVersion: 1}, nil
	}
	if err != nil {
		return Stats{}, fmt.Errorf("reading current stats: %w", err)
	}
	return st, nil
}

// RecomputeStats appends a row with document count and average length over
// every stored document and the previous index version plus one.
func (s *Store) RecomputeStats(ctx context.Context) (Stats, error) {
	var next Stats
	err := s.InTx(ctx, func(ctx context.Context) error {
		conn := s.db.Conn(ctx)
		var count, total int64
		if err := conn.QueryRowContext(ctx,
			`SELECT COUNT(*), COALESCE(SUM(length), 0) FROM documents`).Scan(&count, &total); err != nil {
			return fmt.Errorf("aggregating documents: %w", err)
		}
		prev, err := s.CurrentStats(ctx)
		if err != nil {
			return err
		}

		next = Stats{
			DocCount:     count,
			IndexVersion: prev.IndexVersion + 1,
			CreatedAt:    s.now(),
		}
		if count > 0 {
			next.AvgDocLen = float64(total) / float64(count)
		}
		_, err = conn.ExecContext(ctx,
			`INSERT INTO stats (avg_doc_len, doc_count, index_version, created_at) VALUES ($1, $2, $3, $4)`,
			next.AvgDocLen, next.DocCount, next.IndexVersion, next.CreatedAt)
		return err
	})
	if err != nil {
		return Stats{}, fmt.Errorf("recomputing stats: %w", err)
	}
	s.logger.Info("stats recomputed",
		"doc_count", next.DocCount,
		"avg_doc_len", next.AvgDocLen,
		"index_version", next.IndexVersion,
	)
	return next, nil
}
