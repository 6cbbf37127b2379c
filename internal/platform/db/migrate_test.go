package db

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMigrationURL(t *testing.T) {
	require.Equal(t, "pgx5://u:p@localhost:5432/po?sslmode=disable", migrationURL("postgres://u:p@localhost:5432/po?sslmode=disable"))
	require.Equal(t, "pgx5://localhost/po", migrationURL("postgresql://localhost/po"))
	require.Equal(t, "pgx5://already", migrationURL("pgx5://already"))
}

func TestMigrationsArePaired(t *testing.T) {
	entries, err := fs.ReadDir(migrations, "migrations")
	require.NoError(t, err)

	ups := map[string]bool{}
	downs := map[string]bool{}
	for _, e := range entries {
		name := e.Name()
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		}
	}
	require.NotEmpty(t, ups)
	require.Equal(t, ups, downs)

	raw, err := fs.ReadFile(migrations, "migrations/0001_init.up.sql")
	require.NoError(t, err)
	require.Contains(t, string(raw), "idempotency_keys")
	require.Contains(t, string(raw), "audit_logs")
}
