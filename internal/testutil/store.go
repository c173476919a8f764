package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arturoeanton/repolens/internal/adapter/store"
)

// NewStore opens a migrated SQLite store in a temporary directory.
func NewStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(context.Background(), store.SQLite, filepath.Join(t.TempDir(), "repolens.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.Migrate())
	return st
}
