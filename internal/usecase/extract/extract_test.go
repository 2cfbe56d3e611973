package extract

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"bsky-rss-bot/internal/domain/entity"
)

type stubInspector struct {
	images PageImages
	err    error
	calls  int
}

func (s *stubInspector) Inspect(_ context.Context, _, _ string) (PageImages, error) {
	s.calls++
	return s.images, s.err
}

func TestDeriveID(t *testing.T) {
	t.Parallel()

	published := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		raw  RawEntry
		want string
	}{
		{
			name: "guid preferred",
			raw:  RawEntry{GUID: "guid-1", Link: "https://example.com/a"},
			want: "guid-1",
		},
		{
			name: "link fallback",
			raw:  RawEntry{Link: "https://example.com/a"},
			want: "https://example.com/a",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DeriveID(tt.raw); got != tt.want {
				t.Errorf("DeriveID() = %q, want %q", got, tt.want)
			}
		})
	}

	t.Run("hash fallback is deterministic", func(t *testing.T) {
		raw := RawEntry{Title: "Untitled Feed Item", Published: published}
		first := DeriveID(raw)
		second := DeriveID(raw)
		if first != second {
			t.Errorf("hash ids differ across calls: %q vs %q", first, second)
		}
		if len(first) != 64 {
			t.Errorf("expected sha-256 hex id, got %q", first)
		}
		other := DeriveID(RawEntry{Title: "Different Title", Published: published})
		if other == first {
			t.Error("distinct titles produced the same id")
		}
	})
}

func TestExtract_NormalizesFields(t *testing.T) {
	t.Parallel()

	published := time.Date(2024, 3, 15, 8, 0, 0, 0, time.UTC)
	e := NewExtractor(nil, AllSources(), nil)

	got := e.Extract(context.Background(), RawEntry{
		GUID:      "guid-7",
		Title:     "A Story",
		Link:      "https://example.com/story",
		Published: published,
	}, false)

	want := entity.ArticleRecord{
		ID:          "guid-7",
		Title:       "A Story",
		Link:        "https://example.com/story",
		PublishedAt: published,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Extract() mismatch (-want +got):\n%s", diff)
	}
}

func TestExtract_ImageChainOrder(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		sources Sources
		images  PageImages
		feedURL string
		want    string
	}{
		{
			name:    "og image wins",
			sources: AllSources(),
			images:  PageImages{OGImage: "https://cdn/og.jpg", TwitterImage: "https://cdn/tw.jpg", FirstImage: "https://cdn/first.jpg"},
			feedURL: "https://cdn/feed.jpg",
			want:    "https://cdn/og.jpg",
		},
		{
			name:    "twitter when og absent",
			sources: AllSources(),
			images:  PageImages{TwitterImage: "https://cdn/tw.jpg", FirstImage: "https://cdn/first.jpg"},
			want:    "https://cdn/tw.jpg",
		},
		{
			name:    "feed image when metas absent",
			sources: AllSources(),
			images:  PageImages{FirstImage: "https://cdn/first.jpg"},
			feedURL: "https://cdn/feed.jpg",
			want:    "https://cdn/feed.jpg",
		},
		{
			name:    "featured image when feed gave none",
			sources: AllSources(),
			images:  PageImages{FeaturedImage: "https://cdn/featured.jpg", FirstImage: "https://cdn/first.jpg"},
			want:    "https://cdn/featured.jpg",
		},
		{
			name:    "first body image as last resort",
			sources: AllSources(),
			images:  PageImages{FirstImage: "https://cdn/first.jpg"},
			want:    "https://cdn/first.jpg",
		},
		{
			name:    "og and twitter disabled falls through to first image",
			sources: Sources{FirstImage: true},
			images:  PageImages{OGImage: "https://cdn/og.jpg", TwitterImage: "https://cdn/tw.jpg", FirstImage: "https://cdn/first.jpg"},
			want:    "https://cdn/first.jpg",
		},
		{
			name:    "all stages miss",
			sources: AllSources(),
			want:    "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inspector := &stubInspector{images: tt.images}
			e := NewExtractor(inspector, tt.sources, nil)
			rec := e.Extract(context.Background(), RawEntry{
				GUID:         "guid-1",
				Link:         "https://example.com/a",
				FeedImageURL: tt.feedURL,
			}, true)
			if rec.ImageURL != tt.want {
				t.Errorf("ImageURL = %q, want %q", rec.ImageURL, tt.want)
			}
		})
	}
}

func TestExtract_InspectorFailureIsNotFatal(t *testing.T) {
	t.Parallel()

	inspector := &stubInspector{err: errors.New("connection refused")}
	e := NewExtractor(inspector, AllSources(), nil)

	rec := e.Extract(context.Background(), RawEntry{
		GUID:         "guid-1",
		Link:         "https://example.com/a",
		FeedImageURL: "https://cdn/feed.jpg",
	}, true)

	// Feed-declared image still resolves without page data.
	if rec.ImageURL != "https://cdn/feed.jpg" {
		t.Errorf("ImageURL = %q, want feed image", rec.ImageURL)
	}
}

func TestExtract_ImagesDisabledSkipsInspection(t *testing.T) {
	t.Parallel()

	inspector := &stubInspector{images: PageImages{OGImage: "https://cdn/og.jpg"}}
	e := NewExtractor(inspector, AllSources(), nil)

	rec := e.Extract(context.Background(), RawEntry{GUID: "g", Link: "https://example.com/a"}, false)
	if rec.ImageURL != "" {
		t.Errorf("ImageURL = %q, want empty", rec.ImageURL)
	}
	if inspector.calls != 0 {
		t.Errorf("inspector called %d times, want 0", inspector.calls)
	}
}
