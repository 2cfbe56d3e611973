// Package repository defines the persistence ports used by the use case layer.
// Concrete implementations live under internal/infra/adapter/persistence.
package repository

import (
	"context"
	"time"
)

// SeenRecord is one row of the per-account seen-store: an article that has
// been published (or observed as already published) for an account.
type SeenRecord struct {
	AccountName string
	ArticleID   string
	Title       string
	Link        string
	PublishedAt time.Time
	PostedAt    time.Time

	// Remote post reference, empty for backup-derived rows.
	BlueskyURI string
	BlueskyURL string
}

// SeenRepository is the durable per-account set of published article IDs.
//
// Contains must be consistent with Record: under normal (non-crash) operation
// no article is published twice by the same account. Rows are never removed
// by the bot; cleanup is external maintenance only.
type SeenRepository interface {
	// Contains reports whether the article ID has been recorded for the account.
	Contains(ctx context.Context, accountName, articleID string) (bool, error)

	// Record durably stores a published article. Recording an ID that is
	// already present is a no-op, never an error. The write is flushed before
	// Record returns so a crash after a publish cannot replay the article.
	Record(ctx context.Context, rec SeenRecord) error

	// SyncFromRemote merges article IDs observed directly on the remote
	// service into the store, without requiring a prior local record.
	// Used to heal store loss and to bootstrap first runs.
	SyncFromRemote(ctx context.Context, accountName string, articleIDs []string) error
}
