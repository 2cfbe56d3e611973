// Package db opens the seen-store database and bootstraps its schema.
// Two backends are supported: a local SQLite file (the default) and
// Postgres when DATABASE_URL is set.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Kind identifies the storage backend behind a *sql.DB handle.
type Kind string

const (
	KindSQLite   Kind = "sqlite"
	KindPostgres Kind = "postgres"
)

// DefaultSQLitePath is used when neither DATABASE_URL nor SQLITE_PATH is set.
const DefaultSQLitePath = "posts.db"

// ConnectionConfig holds database connection pool configuration.
type ConnectionConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// DefaultConnectionConfig returns the default connection pool configuration.
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 1 * time.Hour,
		ConnMaxIdleTime: 30 * time.Minute,
	}
}

// Open creates and configures the seen-store database connection.
//
// Backend selection:
//   - DATABASE_URL set: Postgres via the pgx stdlib driver.
//   - otherwise: SQLite file at SQLITE_PATH (default "posts.db"),
//     WAL journal and full synchronous so a committed seen-store write
//     survives a crash immediately after the publish.
func Open() (*sql.DB, Kind, error) {
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		database, err := sql.Open("pgx", dsn)
		if err != nil {
			return nil, "", fmt.Errorf("open postgres: %w", err)
		}
		applyPool(database, DefaultConnectionConfig())
		if err := ping(database); err != nil {
			return nil, "", fmt.Errorf("ping postgres: %w", err)
		}
		slog.Info("seen-store backend: postgres")
		return database, KindPostgres, nil
	}

	path := os.Getenv("SQLITE_PATH")
	if path == "" {
		path = DefaultSQLitePath
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)&_pragma=busy_timeout(5000)", path)
	database, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, "", fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite handles one writer at a time; keep the pool to a single
	// connection so WAL checkpoints never contend with writes.
	database.SetMaxOpenConns(1)
	if err := ping(database); err != nil {
		return nil, "", fmt.Errorf("ping sqlite: %w", err)
	}
	slog.Info("seen-store backend: sqlite", slog.String("path", path))
	return database, KindSQLite, nil
}

func applyPool(database *sql.DB, cfg ConnectionConfig) {
	database.SetMaxOpenConns(cfg.MaxOpenConns)
	database.SetMaxIdleConns(cfg.MaxIdleConns)
	database.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	database.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
}

func ping(database *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return database.PingContext(ctx)
}
