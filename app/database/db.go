package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// DB wraps a connection pool together with the SQL dialect it speaks.
type DB struct {
	*sql.DB
	dialect Dialect
	// x shares the pool and scans rows into tagged structs.
	x *sqlx.DB
}

// New wraps an already opened connection pool.
func New(db *sql.DB, dialect Dialect) *DB {
	return &DB{DB: db, dialect: dialect, x: sqlx.NewDb(db, dialect.driverName)}
}

// Open connects to the database named by driver ("sqlite" or "postgres")
// and verifies the connection.
func Open(ctx context.Context, driver, dsn string) (*DB, error) {
	dialect, err := DialectFor(driver)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(dialect.driverName, dialect.dsn(dsn))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if dialect.Name == SQLite.Name {
		// SQLite serialises writers; one connection keeps in-process
		// transactions from tripping over each other.
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Debug("Database connection established", "driver", dialect.Name)
	return New(db, dialect), nil
}

func (db *DB) Dialect() Dialect {
	return db.dialect
}

// Connect opens the database and brings its schema up to date.
func Connect(ctx context.Context, driver, dsn string) (*DB, error) {
	db, err := Open(ctx, driver, dsn)
	if err != nil {
		return nil, err
	}

	version, dirty, err := RunMigrations(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	slog.Info("Database ready", "driver", db.dialect.Name, "schema_version", version, "dirty", dirty)
	return db, nil
}
