// Package publish contains the per-account publishing pipeline: template
// rendering, the retrying publisher, the remote-backup duplicate checker,
// and the account runner state machine that ties them together.
package publish

import (
	"context"
	"time"

	"bsky-rss-bot/internal/domain/entity"
	"bsky-rss-bot/internal/usecase/extract"
)

// OutgoingPost is the payload handed to the remote client.
type OutgoingPost struct {
	Text      string
	LinkURL   string
	CreatedAt time.Time
	Image     *PostImage
}

// PostImage is an upload-ready image attachment. Width and Height are the
// pixel dimensions after any downscaling, zero when unknown.
type PostImage struct {
	Data     []byte
	MimeType string
	Alt      string
	Width    int
	Height   int
}

// PostRef identifies a post that was created on the remote service.
type PostRef struct {
	URI string
	CID string
	URL string
}

// RemotePost is an existing remote post reduced to what the backup
// checker matches against.
type RemotePost struct {
	Text  string
	Links []string
}

// RemoteClient is the remote service collaborator for one account.
type RemoteClient interface {
	Authenticate(ctx context.Context) error
	SubmitPost(ctx context.Context, post OutgoingPost) (PostRef, error)
	ListRecentPosts(ctx context.Context, limit int) ([]RemotePost, error)
}

// FeedFetcher produces the raw entries of one feed fetch.
type FeedFetcher interface {
	Fetch(ctx context.Context, feedURL string) ([]extract.RawEntry, error)
}

// ArticleExtractor normalizes raw entries into ArticleRecords.
type ArticleExtractor interface {
	Extract(ctx context.Context, raw extract.RawEntry, resolveImage bool) entity.ArticleRecord
}

// ImageFetcher downloads and prepares an article image for upload. The
// returned image carries data, MIME type, and dimensions; Alt is left for
// the caller to fill.
type ImageFetcher interface {
	Fetch(ctx context.Context, imageURL string) (PostImage, error)
}

// PostResult is the outcome of one publish call after all retries.
type PostResult struct {
	Article entity.ArticleRecord
	Ref     PostRef

	// Err is nil on success. Retryable reports whether the underlying
	// failure was transient (attempts were exhausted) rather than fatal.
	Err       error
	Retryable bool
}

// Success reports whether exactly one remote post was created.
func (r PostResult) Success() bool { return r.Err == nil }
