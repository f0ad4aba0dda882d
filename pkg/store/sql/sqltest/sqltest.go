// Package sqltest opens migrated sqlite databases for tests.
package sqltest

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/genesis-labs/genesis-api/pkg/models/domain"
	sqlstore "github.com/genesis-labs/genesis-api/pkg/store/sql"
	"github.com/genesis-labs/genesis-api/pkg/store/sql/migrations"
	"github.com/stretchr/testify/require"
)

// Open returns a pool on a fresh sqlite file with the schema applied. The
// pool is closed when the test ends.
func Open(t testing.TB) *sqlstore.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "genesis.db")
	db, err := sqlstore.Open(context.Background(), sqlstore.Settings{
		Dialect:      domain.DialectSQLite,
		DSN:          "file:" + path,
		MaxOpenConns: 4,
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("failed to close database connection: %v", err)
		}
	})

	require.NoError(t, migrations.Up(db.SQL(), domain.DialectSQLite))
	return db
}
