// Package sqlrepo stores pipeline state in a SQL database: SQLite for a single
// machine, or PostgreSQL when several operators share one cache.
package sqlrepo

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"strings"

	logging "github.com/ipfs/go-log/v2"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

var log = logging.Logger("ddebs/sqlrepo")

//go:embed schema.sql
var Schema string

// Open connects to dsn and applies the schema. DSNs starting with
// "postgres://" or "postgresql://" use PostgreSQL; anything else is a SQLite
// path, optionally prefixed with "sqlite://".
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	driver, source := Driver(dsn)
	db, err := sql.Open(driver, source)
	if err != nil {
		return nil, fmt.Errorf("opening %s database: %w", driver, err)
	}
	if driver == "sqlite" {
		// One connection keeps writers serialized and makes ":memory:" a single
		// database.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to %s database: %w", driver, err)
	}
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}
	log.Debugw("opened database", "driver", driver)
	return db, nil
}

// Driver returns the database/sql driver name and data source for dsn.
func Driver(dsn string) (driver, source string) {
	dsn = strings.TrimSpace(dsn)
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return "pgx", dsn
	default:
		return "sqlite", strings.TrimPrefix(dsn, "sqlite://")
	}
}

func NullString(s *string) sql.NullString {
	if s == nil || *s == "" {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: *s, Valid: true}
}
