// Package fetcher provides HTTP helpers for article pages and images:
// meta-tag image discovery and image download with Bluesky-sized
// recompression.
package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"bsky-rss-bot/internal/resilience/retry"
	"bsky-rss-bot/internal/usecase/extract"
)

const (
	// maxPageBytes caps how much article HTML is read when hunting for
	// image tags. Pages larger than this are truncated, not rejected.
	maxPageBytes = 10 * 1024 * 1024

	// Browser-like request headers. Many article hosts refuse obvious
	// bot user agents outright.
	pageUserAgent  = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
	pageAccept     = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"
	acceptLanguage = "en-US,en;q=0.9"
)

// PageInspector discovers image candidates for an article by parsing its
// entry body and, when a link is available, the linked page's HTML.
//
// Inspect is best effort: on a fetch or parse failure it returns whatever
// candidates the entry body alone yielded, together with the error.
type PageInspector struct {
	client      *http.Client
	retryConfig retry.Config
}

// NewPageInspector creates a PageInspector with the given HTTP client.
func NewPageInspector(client *http.Client) *PageInspector {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &PageInspector{client: client, retryConfig: retry.PageFetchConfig()}
}

// Inspect implements extract.PageInspector. Candidates found:
//   - OGImage:       <meta property="og:image">
//   - TwitterImage:  <meta name="twitter:image"> (or property=)
//   - FeaturedImage: <img class="wp-post-image">
//   - FirstImage:    first <img> in the entry body, else first <img> on the page
//
// Relative candidate URLs are resolved against the page URL.
func (p *PageInspector) Inspect(ctx context.Context, pageURL, contentHTML string) (extract.PageImages, error) {
	var images extract.PageImages

	if contentHTML != "" {
		if doc, err := goquery.NewDocumentFromReader(strings.NewReader(contentHTML)); err == nil {
			images.FirstImage = resolveRef(pageURL, firstImageSrc(doc))
		}
	}

	if pageURL == "" {
		return images, nil
	}

	doc, err := p.fetchDocument(ctx, pageURL)
	if err != nil {
		return images, err
	}

	images.OGImage = resolveRef(pageURL, metaContent(doc, `meta[property="og:image"]`))
	images.TwitterImage = resolveRef(pageURL, metaContent(doc, `meta[name="twitter:image"], meta[property="twitter:image"]`))
	images.FeaturedImage = resolveRef(pageURL, firstAttr(doc, "img.wp-post-image", "src"))
	if images.FirstImage == "" {
		images.FirstImage = resolveRef(pageURL, firstImageSrc(doc))
	}

	return images, nil
}

// fetchDocument retrieves the article page, retrying rate limits and
// server errors. A 403 or 404 fails on the first attempt.
func (p *PageInspector) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	var doc *goquery.Document
	err := retry.WithBackoff(ctx, p.retryConfig, func() error {
		var ferr error
		doc, ferr = p.fetchOnce(ctx, pageURL)
		return ferr
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func (p *PageInspector) fetchOnce(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build page request: %w", err)
	}
	req.Header.Set("User-Agent", pageUserAgent)
	req.Header.Set("Accept", pageAccept)
	req.Header.Set("Accept-Language", acceptLanguage)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch page: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, &retry.HTTPError{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("fetch page %s", pageURL),
		}
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, fmt.Errorf("parse page html: %w", err)
	}
	return doc, nil
}

func metaContent(doc *goquery.Document, selector string) string {
	return firstAttr(doc, selector, "content")
}

func firstAttr(doc *goquery.Document, selector, attr string) string {
	value, _ := doc.Find(selector).First().Attr(attr)
	return strings.TrimSpace(value)
}

func firstImageSrc(doc *goquery.Document) string {
	var src string
	doc.Find("img").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if v, ok := sel.Attr("src"); ok && strings.TrimSpace(v) != "" {
			src = strings.TrimSpace(v)
			return false
		}
		return true
	})
	return src
}

// resolveRef turns a possibly-relative candidate into an absolute URL.
// Unparseable candidates are dropped rather than passed downstream.
func resolveRef(pageURL, candidate string) string {
	if candidate == "" {
		return ""
	}
	ref, err := url.Parse(candidate)
	if err != nil {
		return ""
	}
	if ref.IsAbs() {
		return ref.String()
	}
	base, err := url.Parse(pageURL)
	if err != nil || !base.IsAbs() {
		return ""
	}
	return base.ResolveReference(ref).String()
}
