package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4/database"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var SQLite = Dialect{
	Name: "sqlite",
	uniqueViolation: func(err error) bool {
		var se *sqlite.Error
		if !errors.As(err, &se) {
			return false
		}
		switch se.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE:
			return true
		case sqlite3.SQLITE_CONSTRAINT:
			return strings.Contains(se.Error(), "UNIQUE")
		}
		return false
	},
	timeArg: func(t time.Time) any { return t.UTC().Format(sqliteTimeLayout) },
	migrationDriver: func(db *sql.DB) (database.Driver, error) {
		return migratesqlite.WithInstance(db, &migratesqlite.Config{MigrationsTable: "orders_schema_migrations"})
	},
}

// OpenSQLite opens (creating if needed) a single-file order store. Writes
// are funneled through one connection.
func OpenSQLite(ctx context.Context, path string) (*SQLOrderRepo, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping sqlite: %w", err)
	}
	if err := Migrate(db, SQLite); err != nil {
		_ = db.Close()
		return nil, err
	}
	return NewSQLOrderRepo(db, SQLite), nil
}
