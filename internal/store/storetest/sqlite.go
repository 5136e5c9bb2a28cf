package storetest

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/willtech3/powertoken/internal/store/sqlite"
	"github.com/willtech3/powertoken/internal/store/sqlstore"
)

// NewSQLite returns a migrated store on a fresh database file under t.TempDir.
func NewSQLite(t *testing.T) *sqlstore.Store {
	t.Helper()
	s, err := sqlite.OpenAndMigrate(context.Background(), filepath.Join(t.TempDir(), "powertoken.db"))
	if err != nil {
		t.Fatalf("open sqlite store: %v", err)
	}
	t.Cleanup(func() { _ = s.DB().Close() })
	return s
}
