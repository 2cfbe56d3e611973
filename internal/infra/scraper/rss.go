// Package scraper fetches and parses RSS/Atom feeds with the gofeed
// library, wrapped in retry and circuit-breaker protection.
package scraper

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/sony/gobreaker"

	"bsky-rss-bot/internal/resilience/circuitbreaker"
	"bsky-rss-bot/internal/resilience/retry"
	"bsky-rss-bot/internal/usecase/extract"
)

const userAgent = "bsky-rss-bot"

// RSSFetcher retrieves a feed and maps its items to raw entries.
// One fetch re-reads the whole feed; there is no incremental cursor.
type RSSFetcher struct {
	client         *http.Client
	circuitBreaker *circuitbreaker.CircuitBreaker
	retryConfig    retry.Config
	logger         *slog.Logger
}

// NewRSSFetcher creates an RSSFetcher with the given HTTP client.
func NewRSSFetcher(client *http.Client, logger *slog.Logger) *RSSFetcher {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RSSFetcher{
		client:         client,
		circuitBreaker: circuitbreaker.New(circuitbreaker.FeedFetchConfig()),
		retryConfig:    retry.FeedFetchConfig(),
		logger:         logger,
	}
}

// Fetch retrieves and parses the feed at feedURL, newest-first as the
// feed delivers it. Entries keep a zero Published time when the feed
// carries no usable date.
func (f *RSSFetcher) Fetch(ctx context.Context, feedURL string) ([]extract.RawEntry, error) {
	var entries []extract.RawEntry

	retryErr := retry.WithBackoff(ctx, f.retryConfig, func() error {
		cbResult, err := f.circuitBreaker.Execute(func() (interface{}, error) {
			return f.doFetch(ctx, feedURL)
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) {
				f.logger.Warn("feed fetch circuit breaker open, request rejected",
					slog.String("url", feedURL),
					slog.String("state", f.circuitBreaker.State().String()))
			}
			return err
		}
		entries = cbResult.([]extract.RawEntry)
		return nil
	})
	if retryErr != nil {
		return nil, retryErr
	}

	return entries, nil
}

// doFetch performs one parse attempt without retry or circuit breaker.
func (f *RSSFetcher) doFetch(ctx context.Context, feedURL string) ([]extract.RawEntry, error) {
	fp := gofeed.NewParser()
	fp.UserAgent = userAgent
	fp.Client = f.client

	feed, err := fp.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return nil, err
	}

	entries := make([]extract.RawEntry, 0, len(feed.Items))
	for _, it := range feed.Items {
		var published time.Time
		switch {
		case it.PublishedParsed != nil:
			published = *it.PublishedParsed
		case it.UpdatedParsed != nil:
			published = *it.UpdatedParsed
		}

		content := it.Content
		if content == "" {
			content = it.Description
		}

		entries = append(entries, extract.RawEntry{
			GUID:         it.GUID,
			Title:        it.Title,
			Link:         it.Link,
			Content:      content,
			Published:    published,
			FeedImageURL: itemImageURL(it),
		})
	}

	return entries, nil
}

// itemImageURL returns the feed-declared image for an item, if any:
// the item's own image element, or the first image enclosure.
func itemImageURL(it *gofeed.Item) string {
	if it.Image != nil && it.Image.URL != "" {
		return it.Image.URL
	}
	for _, enc := range it.Enclosures {
		if enc == nil || enc.URL == "" {
			continue
		}
		if strings.HasPrefix(enc.Type, "image/") {
			return enc.URL
		}
	}
	return ""
}
