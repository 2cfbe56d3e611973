package db

import (
	"database/sql"
	"fmt"
)

// MigrateUp creates the seen-store schema if it does not exist.
// The UNIQUE(account_name, article_id) constraint is what makes Record
// idempotent at the storage level.
func MigrateUp(database *sql.DB, kind Kind) error {
	var create string
	switch kind {
	case KindPostgres:
		create = `
CREATE TABLE IF NOT EXISTS posts (
    id           SERIAL PRIMARY KEY,
    account_name TEXT NOT NULL,
    article_id   TEXT NOT NULL,
    title        TEXT NOT NULL DEFAULT '',
    link         TEXT NOT NULL DEFAULT '',
    published_at TIMESTAMPTZ,
    posted_at    TIMESTAMPTZ NOT NULL,
    bluesky_uri  TEXT NOT NULL DEFAULT '',
    bluesky_url  TEXT NOT NULL DEFAULT '',
    UNIQUE(account_name, article_id)
)`
	case KindSQLite:
		create = `
CREATE TABLE IF NOT EXISTS posts (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    account_name TEXT NOT NULL,
    article_id   TEXT NOT NULL,
    title        TEXT NOT NULL DEFAULT '',
    link         TEXT NOT NULL DEFAULT '',
    published_at TIMESTAMP,
    posted_at    TIMESTAMP NOT NULL,
    bluesky_uri  TEXT NOT NULL DEFAULT '',
    bluesky_url  TEXT NOT NULL DEFAULT '',
    UNIQUE(account_name, article_id)
)`
	default:
		return fmt.Errorf("unknown database kind %q", kind)
	}

	if _, err := database.Exec(create); err != nil {
		return fmt.Errorf("create posts table: %w", err)
	}

	// Covers the Contains lookup on every feed entry.
	if _, err := database.Exec(
		`CREATE INDEX IF NOT EXISTS idx_posts_account_article ON posts(account_name, article_id)`,
	); err != nil {
		return fmt.Errorf("create posts index: %w", err)
	}

	return nil
}
