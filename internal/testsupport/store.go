package testsupport

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/heyfeelings-official/little-microphones-sub001/internal/store"
)

// NewStore opens a SQLite store in a per-test directory.
func NewStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "recordings.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}
