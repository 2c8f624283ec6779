// Package storage persists the inverted index: documents, the term
// dictionary, postings, indexed markers and the append-only statistics log.
// Every mutation runs inside a database scope so callers can compose several
// writes into one atomic unit with InTx.
package storage

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/astra-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/astra-search/pkg/database"
)

// Document is a stored page. Length is the whitespace-token count of Body.
type Document struct {
	ID        int64
	URL       string
	Title     string
	Body      string
	Length    int
	FetchedAt time.Time
}

type Term struct {
	ID   int64
	Term string
}

// Posting holds per-field term frequencies for one (term, document) pair.
// DocLength is filled in on reads from the owning document.
type Posting struct {
	TermID    int64
	DocID     int64
	TFTitle   int
	TFBody    int
	DocLength int
}

// IndexedMarker records that a document has been processed at least once.
type IndexedMarker struct {
	DocID        int64
	IndexVersion int64
	IndexedAt    time.Time
}

// Stats is one row of the statistics log; the newest row is current.
type Stats struct {
	AvgDocLen    float64
	DocCount     int64
	IndexVersion int64
	CreatedAt    time.Time
}

type Store struct {
	db     *database.Client
	logger *slog.Logger
	now    func() time.Time
}

func New(db *database.Client) *Store {
	return &Store{
		db:     db,
		logger: slog.Default().With("component", "storage"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Open connects to the configured engine and applies the schema.
func Open(ctx context.Context, cfg config.StorageConfig) (*Store, error) {
	db, err := database.Open(cfg)
	if err != nil {
		return nil, err
	}
	store := New(db)
	if err := store.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// InTx runs fn in a transaction scope shared by every Store call made with
// the ctx it receives. Nested calls open savepoints.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return s.db.InTx(ctx, fn)
}

// Ping checks the underlying connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// placeholders returns "$from, $from+1, ..." for n arguments.
func placeholders(from, n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "$%d", from+i)
	}
	return b.String()
}

// maxBindVars caps the arguments of one IN (...) query, well under SQLite's
// and Postgres's bind-parameter limits.
const maxBindVars = 500

// inChunks calls fn with consecutive sub-slices of args holding at most
// maxBindVars elements each.
func inChunks(args []any, fn func(chunk []any) error) error {
	for lo := 0; lo < len(args); lo += maxBindVars {
		if err := fn(args[lo:min(lo+maxBindVars, len(args))]); err != nil {
			return err
		}
	}
	return nil
}
