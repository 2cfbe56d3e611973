// Package entity defines the core domain entities and validation logic for the bot.
// It contains the fundamental business objects such as ArticleRecord and Account,
// along with their validation rules and domain-specific errors.
package entity

import "time"

// ArticleRecord is the normalized form of a single feed entry.
// The ID is stable across runs: two records carrying the same ID are
// considered the same article forever, even if the title or link later
// change upstream.
type ArticleRecord struct {
	ID          string
	Title       string
	Link        string
	PublishedAt time.Time // zero when the feed carried no publish date
	ImageURL    string    // empty when no image could be resolved
}

// HasPublishedAt reports whether the feed carried a publish date for this entry.
func (a *ArticleRecord) HasPublishedAt() bool {
	return !a.PublishedAt.IsZero()
}

// Before orders two records chronologically for backlog publishing.
// Records without a publish date sort after dated ones.
func (a *ArticleRecord) Before(other *ArticleRecord) bool {
	switch {
	case a.HasPublishedAt() && other.HasPublishedAt():
		return a.PublishedAt.Before(other.PublishedAt)
	case a.HasPublishedAt():
		return true
	default:
		return false
	}
}
