package scraper_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"bsky-rss-bot/internal/infra/scraper"
)

func TestRSSFetcher_Fetch_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rss := `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>Test Feed</title>
    <link>https://example.com</link>
    <description>Test Description</description>
    <item>
      <title>Article 1</title>
      <link>https://example.com/article1</link>
      <guid>https://example.com/?p=1</guid>
      <description>Description 1</description>
      <pubDate>Mon, 01 Jan 2024 00:00:00 +0000</pubDate>
      <enclosure url="https://example.com/images/1.jpg" type="image/jpeg" length="1024"/>
    </item>
    <item>
      <title>Article 2</title>
      <link>https://example.com/article2</link>
      <description>Description 2</description>
    </item>
  </channel>
</rss>`
		w.Header().Set("Content-Type", "application/rss+xml")
		if _, err := w.Write([]byte(rss)); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}))
	defer server.Close()

	client := &http.Client{Timeout: 10 * time.Second}
	fetcher := scraper.NewRSSFetcher(client, nil)

	entries, err := fetcher.Fetch(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}

	if len(entries) != 2 {
		t.Fatalf("entries length = %d, want 2", len(entries))
	}

	if entries[0].GUID != "https://example.com/?p=1" {
		t.Errorf("entries[0].GUID = %q, want %q", entries[0].GUID, "https://example.com/?p=1")
	}
	if entries[0].Title != "Article 1" {
		t.Errorf("entries[0].Title = %q, want %q", entries[0].Title, "Article 1")
	}
	if entries[0].Link != "https://example.com/article1" {
		t.Errorf("entries[0].Link = %q, want %q", entries[0].Link, "https://example.com/article1")
	}
	if entries[0].FeedImageURL != "https://example.com/images/1.jpg" {
		t.Errorf("entries[0].FeedImageURL = %q, want enclosure url", entries[0].FeedImageURL)
	}
	wantPublished := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	if !entries[0].Published.Equal(wantPublished) {
		t.Errorf("entries[0].Published = %v, want %v", entries[0].Published, wantPublished)
	}

	// No pubDate keeps the zero time so the runner sorts it last.
	if !entries[1].Published.IsZero() {
		t.Errorf("entries[1].Published = %v, want zero", entries[1].Published)
	}
}

func TestRSSFetcher_Fetch_Atom(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atom := `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>Test Atom Feed</title>
  <link href="https://example.com"/>
  <updated>2024-01-01T00:00:00Z</updated>
  <entry>
    <title>Atom Article 1</title>
    <link href="https://example.com/atom1"/>
    <id>urn:uuid:atom-1</id>
    <updated>2024-01-01T00:00:00Z</updated>
    <content type="html">&lt;p&gt;Body&lt;/p&gt;</content>
  </entry>
</feed>`
		w.Header().Set("Content-Type", "application/atom+xml")
		if _, err := w.Write([]byte(atom)); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}))
	defer server.Close()

	client := &http.Client{Timeout: 10 * time.Second}
	fetcher := scraper.NewRSSFetcher(client, nil)

	entries, err := fetcher.Fetch(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}

	if len(entries) != 1 {
		t.Fatalf("entries length = %d, want 1", len(entries))
	}
	if entries[0].GUID != "urn:uuid:atom-1" {
		t.Errorf("entries[0].GUID = %q, want %q", entries[0].GUID, "urn:uuid:atom-1")
	}
	if entries[0].Content == "" {
		t.Error("entries[0].Content is empty, want html body")
	}
}

func TestRSSFetcher_Fetch_InvalidFeed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("not a feed")); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}))
	defer server.Close()

	client := &http.Client{Timeout: 10 * time.Second}
	fetcher := scraper.NewRSSFetcher(client, nil)

	if _, err := fetcher.Fetch(context.Background(), server.URL); err == nil {
		t.Fatal("expected parse error for invalid feed")
	}
}
