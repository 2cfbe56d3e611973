// Package extract converts raw feed entries into ArticleRecords.
// All feed-dialect quirks (missing GUIDs, absent dates, enclosure images)
// are resolved here so nothing downstream touches raw feed shapes.
package extract

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"time"

	"bsky-rss-bot/internal/domain/entity"
)

// RawEntry is one feed entry as delivered by the feed collaborator,
// before any normalization. Zero Published means the feed gave no date.
type RawEntry struct {
	GUID         string
	Title        string
	Link         string
	Content      string
	Published    time.Time
	FeedImageURL string
}

// PageImages holds the image candidates an inspector found for one article.
// Empty fields mean the candidate was absent.
type PageImages struct {
	OGImage       string
	TwitterImage  string
	FeaturedImage string
	FirstImage    string
}

// PageInspector inspects an article's linked page and entry body for image
// candidates. Implementations fetch at most one page per call.
type PageInspector interface {
	Inspect(ctx context.Context, pageURL, contentHTML string) (PageImages, error)
}

// Sources controls which stages of the image fallback chain are consulted.
type Sources struct {
	OGImage      bool
	TwitterImage bool
	FeedImage    bool
	FirstImage   bool
}

// AllSources enables every stage of the chain.
func AllSources() Sources {
	return Sources{OGImage: true, TwitterImage: true, FeedImage: true, FirstImage: true}
}

func (s Sources) any() bool {
	return s.OGImage || s.TwitterImage || s.FeedImage || s.FirstImage
}

// Extractor turns RawEntries into ArticleRecords. Extract is total: it
// never fails, it only produces records with fewer optional fields.
type Extractor struct {
	inspector PageInspector
	sources   Sources
	logger    *slog.Logger
}

// NewExtractor creates an Extractor. A nil inspector disables every
// page-derived stage of the image chain.
func NewExtractor(inspector PageInspector, sources Sources, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{inspector: inspector, sources: sources, logger: logger}
}

// Extract normalizes a raw entry into an ArticleRecord, resolving the
// article image through the fallback chain when resolveImage is true.
func (e *Extractor) Extract(ctx context.Context, raw RawEntry, resolveImage bool) entity.ArticleRecord {
	rec := entity.ArticleRecord{
		ID:          DeriveID(raw),
		Title:       raw.Title,
		Link:        raw.Link,
		PublishedAt: raw.Published,
	}
	if resolveImage && e.sources.any() {
		rec.ImageURL = e.resolveImage(ctx, raw)
	}
	return rec
}

// resolveImage walks the fallback chain, first match wins:
// og:image, twitter card, feed/featured image, first body image.
// A miss at every stage is a valid outcome, not an error.
func (e *Extractor) resolveImage(ctx context.Context, raw RawEntry) string {
	var page PageImages
	if e.inspector != nil && e.needsPage() {
		var err error
		page, err = e.inspector.Inspect(ctx, raw.Link, raw.Content)
		if err != nil {
			e.logger.Warn("page inspection failed, continuing without page images",
				slog.String("link", raw.Link),
				slog.String("error", err.Error()))
		}
	}

	if e.sources.OGImage && page.OGImage != "" {
		return page.OGImage
	}
	if e.sources.TwitterImage && page.TwitterImage != "" {
		return page.TwitterImage
	}
	if e.sources.FeedImage {
		if raw.FeedImageURL != "" {
			return raw.FeedImageURL
		}
		if page.FeaturedImage != "" {
			return page.FeaturedImage
		}
	}
	if e.sources.FirstImage && page.FirstImage != "" {
		return page.FirstImage
	}
	return ""
}

func (e *Extractor) needsPage() bool {
	return e.sources.OGImage || e.sources.TwitterImage || e.sources.FeedImage || e.sources.FirstImage
}

// DeriveID returns the stable identifier for a raw entry: the GUID when
// present, else the link, else a SHA-256 of title and publish date. The
// hash path is a last resort; collisions across retitled undated entries
// are accepted.
func DeriveID(raw RawEntry) string {
	if raw.GUID != "" {
		return raw.GUID
	}
	if raw.Link != "" {
		return raw.Link
	}
	var published string
	if !raw.Published.IsZero() {
		published = raw.Published.UTC().Format(time.RFC3339)
	}
	sum := sha256.Sum256([]byte(raw.Title + "\x00" + published))
	return hex.EncodeToString(sum[:])
}
