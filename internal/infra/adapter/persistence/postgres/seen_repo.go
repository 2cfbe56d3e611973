// Package postgres provides the Postgres implementation of the seen-store,
// for deployments where several bot instances share one database.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"bsky-rss-bot/internal/repository"
)

// SeenRepo implements repository.SeenRepository using Postgres.
type SeenRepo struct{ db *sql.DB }

// NewSeenRepo creates a new Postgres-backed seen-store repository.
func NewSeenRepo(db *sql.DB) repository.SeenRepository {
	return &SeenRepo{db: db}
}

// Contains reports whether the article has been recorded for the account.
func (repo *SeenRepo) Contains(ctx context.Context, accountName, articleID string) (bool, error) {
	const query = `
SELECT 1 FROM posts
WHERE account_name = $1 AND article_id = $2
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

// Record durably stores a published article. ON CONFLICT DO NOTHING makes
// re-recording an existing id a no-op.
func (repo *SeenRepo) Record(ctx context.Context, rec repository.SeenRecord) error {
	const query = `
INSERT INTO posts
(account_name, article_id, title, link, published_at, posted_at, bluesky_uri, bluesky_url)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (account_name, article_id) DO NOTHING
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

// SyncFromRemote merges backup-derived article IDs in one transaction.
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
INSERT INTO posts (account_name, article_id, posted_at)
VALUES ($1, $2, $3)
ON CONFLICT (account_name, article_id) DO NOTHING
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
