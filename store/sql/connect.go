package sqlstore

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// OpenPostgres opens a postgres connection and returns the bun dialect
// to pair with it when building a persistence client.
func OpenPostgres(dsn string) (*sql.DB, schema.Dialect, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, nil, fmt.Errorf("sqlstore: postgres dsn is required")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("sqlstore: open postgres: %w", err)
	}
	return db, pgdialect.New(), nil
}

// OpenSQLite opens a sqlite connection and returns the bun dialect to
// pair with it. Shared-cache memory DSNs need a single connection to
// see the same database.
func OpenSQLite(dsn string) (*sql.DB, schema.Dialect, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, nil, fmt.Errorf("sqlstore: sqlite dsn is required")
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("sqlstore: open sqlite: %w", err)
	}
	if strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
	}
	return db, sqlitedialect.New(), nil
}
