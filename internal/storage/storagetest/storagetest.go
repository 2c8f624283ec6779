// Package storagetest opens throw-away SQLite stores for tests.
package storagetest

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/astra-search/internal/storage"
	"github.com/Adithya-Monish-Kumar-K/astra-search/pkg/config"
)

// New returns a migrated store backed by a file in t.TempDir.
func New(t testing.TB) *storage.Store {
	t.Helper()
	cfg := config.Default().Storage
	cfg.Driver = config.DriverSQLite
	cfg.SQLitePath = filepath.Join(t.TempDir(), "astra.db")

	store, err := storage.Open(context.Background(), cfg)
	if err != nil {
		t.Fatalf("opening test store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}
