package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/lib/pq"
)

var Postgres = Dialect{
	Name:     "postgres",
	numbered: true,
	uniqueViolation: func(err error) bool {
		var pqErr *pq.Error
		return errors.As(err, &pqErr) && pqErr.Code == "23505"
	},
	timeArg: func(t time.Time) any { return t.UTC() },
	migrationDriver: func(db *sql.DB) (database.Driver, error) {
		return postgres.WithInstance(db, &postgres.Config{MigrationsTable: "orders_schema_migrations"})
	},
}

// OpenPostgres connects, pings and migrates.
func OpenPostgres(ctx context.Context, dsn string) (*SQLOrderRepo, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(10)
	if err := Migrate(db, Postgres); err != nil {
		_ = db.Close()
		return nil, err
	}
	return NewSQLOrderRepo(db, Postgres), nil
}
