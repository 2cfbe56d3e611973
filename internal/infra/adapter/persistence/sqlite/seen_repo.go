// Package sqlite provides the SQLite implementation of the seen-store.
// It is the default backend: a single local file, safe for the bot's
// one-writer-per-account access pattern.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"bsky-rss-bot/internal/repository"
)

// SeenRepo implements repository.SeenRepository using SQLite.
type SeenRepo struct{ db *sql.DB }

// NewSeenRepo creates a new SQLite-backed seen-store repository.
func NewSeenRepo(db *sql.DB) repository.SeenRepository {
	return &SeenRepo{db: db}
}

// Contains reports whether the article has been recorded for the account.
func (repo *SeenRepo) Contains(ctx context.Context, accountName, articleID string) (bool, error) {
	const query = `
SELECT 1 FROM posts
WHERE account_name = ? AND article_id = ?
LIMIT 1
`
	var one int
	err := repo.db.QueryRowContext(ctx, query, accountName, articleID).Scan(&one)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("Contains: QueryRowContext: %w", err)
	}
	return true, nil
}

// Record durably stores a published article. INSERT OR IGNORE makes
// re-recording an existing id a no-op.
func (repo *SeenRepo) Record(ctx context.Context, rec repository.SeenRecord) error {
	const query = `
INSERT OR IGNORE INTO posts
(account_name, article_id, title, link, published_at, posted_at, bluesky_uri, bluesky_url)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
`
	_, err := repo.db.ExecContext(ctx, query,
		rec.AccountName, rec.ArticleID, rec.Title, rec.Link,
		nullableTime(rec.PublishedAt), rec.PostedAt,
		rec.BlueskyURI, rec.BlueskyURL,
	)
	if err != nil {
		return fmt.Errorf("Record: ExecContext: %w", err)
	}
	return nil
}

// SyncFromRemote merges backup-derived article IDs in one transaction so a
// partial merge never leaves the store half-healed.
func (repo *SeenRepo) SyncFromRemote(ctx context.Context, accountName string, articleIDs []string) error {
	if len(articleIDs) == 0 {
		return nil
	}

	tx, err := repo.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("SyncFromRemote: BeginTx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	const query = `
INSERT OR IGNORE INTO posts (account_name, article_id, posted_at)
VALUES (?, ?, ?)
`
	now := time.Now()
	for _, id := range articleIDs {
		if _, err := tx.ExecContext(ctx, query, accountName, id, now); err != nil {
			return fmt.Errorf("SyncFromRemote: ExecContext: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("SyncFromRemote: Commit: %w", err)
	}
	return nil
}

func nullableTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
