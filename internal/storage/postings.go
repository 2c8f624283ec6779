package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// UpsertPosting writes the frequencies for one (term, document) pair,
// replacing any earlier counts.
func (s *Store) UpsertPosting(ctx context.Context, p Posting) error {
	err := s.InTx(ctx, func(ctx context.Context) error {
		_, err := s.db.Conn(ctx).ExecContext(ctx, `
			INSERT INTO postings (term_id, doc_id, tf_title, tf_body)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (term_id, doc_id) DO UPDATE SET
				tf_title = excluded.tf_title,
				tf_body = excluded.tf_body`,
			p.TermID, p.DocID, p.TFTitle, p.TFBody)
		return err
	})
	if err != nil {
		return fmt.Errorf("upserting posting term=%d doc=%d: %w", p.TermID, p.DocID, err)
	}
	return nil
}

// Postings returns the postings of each term joined with document length.
// Terms without postings are absent from the map.
func (s *Store) Postings(ctx context.Context, termIDs []int64) (map[int64][]Posting, error) {
	out := make(map[int64][]Posting, len(termIDs))
	if len(termIDs) == 0 {
		return out, nil
	}
	args := make([]any, len(termIDs))
	for i, id := range termIDs {
		args[i] = id
	}

	err := inChunks(args, func(chunk []any) error {
		rows, err := s.db.Conn(ctx).QueryContext(ctx, `
			SELECT p.term_id, p.doc_id, p.tf_title, p.tf_body, d.length
			FROM postings p
			JOIN documents d ON d.doc_id = p.doc_id
			WHERE p.term_id IN (`+placeholders(1, len(chunk))+`)
			ORDER BY p.term_id, p.doc_id`, chunk...)
		if err != nil {
			return fmt.Errorf("loading postings: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var p Posting
			if err := rows.Scan(&p.TermID, &p.DocID, &p.TFTitle, &p.TFBody, &p.DocLength); err != nil {
				return fmt.Errorf("scanning posting: %w", err)
			}
			out[p.TermID] = append(out[p.TermID], p)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// PostingsForDocument lists every posting of one document by term id.
func (s *Store) PostingsForDocument(ctx context.Context, docID int64) ([]Posting, error) {
	rows, err := s.db.Conn(ctx).QueryContext(ctx, `
		SELECT p.term_id, p.doc_id, p.tf_title, p.tf_body, d.length
		FROM postings p
		JOIN documents d ON d.doc_id = p.doc_id
		WHERE p.doc_id = $1
		ORDER BY p.term_id`, docID)
	if err != nil {
		return nil, fmt.Errorf("loading postings for document %d: %w", docID, err)
	}
	defer rows.Close()

	var out []Posting
	for rows.Next() {
		var p Posting
		if err := rows.Scan(&p.TermID, &p.DocID, &p.TFTitle, &p.TFBody, &p.DocLength); err != nil {
			return nil, fmt.Errorf("scanning posting: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// MarkIndexed records that docID was indexed under version.
func (s *Store) MarkIndexed(ctx context.Context, docID, version int64) error {
	err := s.InTx(ctx, func(ctx context.Context) error {
		_, err := s.db.Conn(ctx).ExecContext(ctx, `
			INSERT INTO indexed_docs (doc_id, index_version, indexed_at)
			VALUES ($1, $2, $3)
			ON CONFLICT (doc_id) DO UPDATE SET
				index_version = excluded.index_version,
				indexed_at = excluded.indexed_at`,
			docID, version, s.now())
		return err
	})
	if err != nil {
		return fmt.Errorf("marking document %d indexed: %w", docID, err)
	}
	return nil
}

// IndexedMarker returns nil without error when docID was never indexed.
func (s *Store) IndexedMarker(ctx context.Context, docID int64) (*IndexedMarker, error) {
	var m IndexedMarker
	err := s.db.Conn(ctx).QueryRowContext(ctx,
		`SELECT doc_id, index_version, indexed_at FROM indexed_docs WHERE doc_id = $1`, docID,
	).Scan(&m.DocID, &m.IndexVersion, &m.IndexedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading marker for document %d: %w", docID, err)
	}
	return &m, nil
}
