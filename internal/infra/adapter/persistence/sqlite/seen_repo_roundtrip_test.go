package sqlite

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"bsky-rss-bot/internal/infra/db"
	"bsky-rss-bot/internal/repository"
)

// Round-trip against the real driver: a recorded id is visible immediately
// and again after the database file is reopened.
func TestSeenRepo_RoundTripSurvivesReopen(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "posts.db")
	ctx := context.Background()

	open := func() *sql.DB {
		t.Helper()
		database, err := sql.Open("sqlite", path)
		if err != nil {
			t.Fatalf("open sqlite: %v", err)
		}
		if err := db.MigrateUp(database, db.KindSQLite); err != nil {
			t.Fatalf("migrate: %v", err)
		}
		return database
	}

	first := open()
	repo := NewSeenRepo(first)
	rec := repository.SeenRecord{
		AccountName: "default",
		ArticleID:   "https://example.com/a",
		Title:       "A",
		Link:        "https://example.com/a",
		PublishedAt: time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC),
		PostedAt:    time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC),
	}
	if err := repo.Record(ctx, rec); err != nil {
		t.Fatalf("Record err=%v", err)
	}

	seen, err := repo.Contains(ctx, "default", rec.ArticleID)
	if err != nil {
		t.Fatalf("Contains err=%v", err)
	}
	if !seen {
		t.Error("expected seen=true immediately after Record")
	}

	// Recording again must be a silent no-op.
	if err := repo.Record(ctx, rec); err != nil {
		t.Fatalf("duplicate Record err=%v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	second := open()
	defer func() { _ = second.Close() }()

	reopened := NewSeenRepo(second)
	seen, err = reopened.Contains(ctx, "default", rec.ArticleID)
	if err != nil {
		t.Fatalf("Contains after reopen err=%v", err)
	}
	if !seen {
		t.Error("expected seen=true after reopen")
	}
}
