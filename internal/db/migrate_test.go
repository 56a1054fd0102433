package db

import (
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPgxMigrateURL(t *testing.T) {
	assert.Equal(t, "pgx5://u:p@localhost:5432/ledger?sslmode=disable", pgxMigrateURL("postgres://u:p@localhost:5432/ledger?sslmode=disable"))
	assert.Equal(t, "pgx5://localhost/ledger", pgxMigrateURL("postgresql://localhost/ledger"))
	assert.Equal(t, "pgx5://localhost/ledger", pgxMigrateURL("pgx5://localhost/ledger"))
}

func TestEmbeddedMigrations(t *testing.T) {
	entries, err := migrationsFS.ReadDir("migrations")
	require.NoError(t, err)

	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.Contains(t, names, "000001_ledger.up.sql")
	assert.Contains(t, names, "000002_agreements.up.sql")
	assert.Contains(t, names, "000003_idempotency.up.sql")
	assert.Len(t, names, 6)
}

func TestWithMaxConns(t *testing.T) {
	cfg, err := pgxpool.ParseConfig("postgres://u:p@localhost:5432/ledger")
	require.NoError(t, err)
	cfg.MinConns = 2

	WithMaxConns(1)(cfg)
	assert.Equal(t, int32(1), cfg.MaxConns)
	assert.Equal(t, int32(1), cfg.MinConns)

	WithMaxConns(0)(cfg)
	assert.Equal(t, int32(1), cfg.MaxConns)
}
