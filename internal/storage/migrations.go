package storage

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DefaultTable is the objects table used when none is configured.
const DefaultTable = "world_objects"

var tableName = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)

// ValidTable reports whether name is safe to splice into DDL and queries.
func ValidTable(name string) bool {
	return tableName.MatchString(name)
}

// RunMigrationsForPool creates the objects table and its indexes on PostgreSQL.
func RunMigrationsForPool(ctx context.Context, pool *pgxpool.Pool, table string) error {
	if !ValidTable(table) {
		return fmt.Errorf("migrate: invalid table name %q", table)
	}
	ddl := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id         UUID PRIMARY KEY,
			kind       TEXT NOT NULL,
			status     TEXT NOT NULL,
			holder_id  TEXT NOT NULL DEFAULT '',
			version    BIGINT NOT NULL,
			body       JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_%s_status
			ON %s (status, created_at);

		CREATE INDEX IF NOT EXISTS idx_%s_holder
			ON %s (holder_id, status);
	`, table, table, table, table, table)

	if _, err := pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("migrate %s: %w", table, err)
	}
	return nil
}

// RunMigrationsForSQLite creates the objects table and its indexes on SQLite.
func RunMigrationsForSQLite(ctx context.Context, db *sql.DB, table string) error {
	if !ValidTable(table) {
		return fmt.Errorf("migrate: invalid table name %q", table)
	}
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id         TEXT PRIMARY KEY,
			seq        INTEGER NOT NULL,
			kind       TEXT NOT NULL,
			status     TEXT NOT NULL,
			holder_id  TEXT NOT NULL DEFAULT '',
			version    INTEGER NOT NULL,
			body       BLOB NOT NULL,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`, table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_status ON %s (status, seq)`, table, table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_holder ON %s (holder_id, status)`, table, table),
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate %s: %w", table, err)
		}
	}
	return nil
}
