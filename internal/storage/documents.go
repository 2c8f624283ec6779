package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

const documentColumns = `doc_id, url, title, body, length, fetched_at`

// UpsertDocument stores a document keyed by URL. An existing row keeps its
// id and has every other field replaced.
func (s *Store) UpsertDocument(ctx context.Context, url, title, body string, fetchedAt time.Time) (int64, error) {
	length := len(strings.Fields(body))
	var id int64
	err := s.InTx(ctx, func(ctx context.Context) error {
		return s.db.Conn(ctx).QueryRowContext(ctx, `
			INSERT INTO documents (url, title, body, length, fetched_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (url) DO UPDATE SET
				title = excluded.title,
				body = excluded.body,
				length = excluded.length,
				fetched_at = excluded.fetched_at
			RETURNING doc_id`,
			url, title, body, length, fetchedAt.UTC(),
		).Scan(&id)
	})
	if err != nil {
		return 0, fmt.Errorf("upserting document %s: %w", url, err)
	}
	return id, nil
}

// GetDocument returns nil without error when the id does not exist.
func (s *Store) GetDocument(ctx context.Context, id int64) (*Document, error) {
	row := s.db.Conn(ctx).QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE doc_id = $1`, id)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting document %d: %w", id, err)
	}
	return doc, nil
}

// GetDocuments loads documents in the order of ids, dropping unknown ids.
func (s *Store) GetDocuments(ctx context.Context, ids []int64) ([]Document, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	byID := make(map[int64]*Document, len(ids))
	err := inChunks(args, func(chunk []any) error {
		rows, err := s.db.Conn(ctx).QueryContext(ctx,
			`SELECT `+documentColumns+` FROM documents WHERE doc_id IN (`+placeholders(1, len(chunk))+`)`, chunk...)
		if err != nil {
			return fmt.Errorf("loading documents: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			doc, err := scanDocument(rows)
			if err != nil {
				return fmt.Errorf("scanning document: %w", err)
			}
			byID[doc.ID] = doc
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("iterating documents: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	docs := make([]Document, 0, len(byID))
	for _, id := range ids {
		if doc, ok := byID[id]; ok {
			docs = append(docs, *doc)
		}
	}
	return docs, nil
}

// CountDocuments returns the number of stored documents.
func (s *Store) CountDocuments(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.Conn(ctx).QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting documents: %w", err)
	}
	return n, nil
}

// ListUnindexed returns an iterator over documents without an indexed
// marker in ascending id order, at most limit of them (no bound when
// limit <= 0). The query runs on the first call to Next.
func (s *Store) ListUnindexed(ctx context.Context, limit int) *DocumentIterator {
	return &DocumentIterator{load: func() ([]Document, error) {
		return s.loadUnindexed(ctx, limit)
	}}
}

func (s *Store) loadUnindexed(ctx context.Context, limit int) ([]Document, error) {
	query := `
		SELECT d.doc_id, d.url, d.title, d.body, d.length, d.fetched_at
		FROM documents d
		LEFT JOIN indexed_docs i ON i.doc_id = d.doc_id
		WHERE i.doc_id IS NULL
		ORDER BY d.doc_id ASC`
	var args []any
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := s.db.Conn(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing unindexed documents: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		docs = append(docs, *doc)
	}
	return docs, rows.Err()
}

// DocumentIterator hands out one batch of documents. The batch is read in
// full before the first document is returned, so no connection is held
// while the caller writes.
type DocumentIterator struct {
	load   func() ([]Document, error)
	docs   []Document
	pos    int
	loaded bool
	closed bool
	err    error
}

func (it *DocumentIterator) Next() bool {
	if it.closed || it.err != nil {
		return false
	}
	if !it.loaded {
		it.loaded = true
		it.docs, it.err = it.load()
		if it.err != nil {
			return false
		}
		it.pos = -1
	}
	if it.pos+1 >= len(it.docs) {
		return false
	}
	it.pos++
	return true
}

// Document returns the current document. Valid only after Next returned true.
func (it *DocumentIterator) Document() Document {
	return it.docs[it.pos]
}

func (it *DocumentIterator) Err() error {
	return it.err
}

func (it *DocumentIterator) Close() error {
	it.closed = true
	it.docs = nil
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*Document, error) {
	var doc Document
	if err := row.Scan(&doc.ID, &doc.URL, &doc.Title, &doc.Body, &doc.Length, &doc.FetchedAt); err != nil {
		return nil, err
	}
	doc.FetchedAt = doc.FetchedAt.UTC()
	return &doc, nil
}
