// Package storetest opens throwaway stores for tests in other packages.
package storetest

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/jsamuelsen11/numbers-core/internal/adapters/store/sqlite"
	"github.com/jsamuelsen11/numbers-core/migrations"
)

// Logger discards everything.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// NewSQLite opens a migrated sqlite store in t's temp dir and closes it on
// cleanup.
func NewSQLite(t testing.TB) *sqlite.Store {
	t.Helper()

	s, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "numbers.db"), migrations.SQLite(), Logger())
	if err != nil {
		t.Fatalf("sqlite.Open() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}
