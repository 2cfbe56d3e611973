package publish

import (
	"context"
	"log/slog"
	"time"

	"bsky-rss-bot/internal/domain/entity"
	"bsky-rss-bot/internal/observability/metrics"
	"bsky-rss-bot/internal/resilience/retry"
)

// Publisher turns an ArticleRecord into exactly one remote post, or into
// a classified failure. Retryable failures are retried with exponential
// backoff; fatal ones surface immediately.
type Publisher struct {
	client      RemoteClient
	images      ImageFetcher
	retryConfig retry.Config
	logger      *slog.Logger
}

// NewPublisher creates a Publisher. images may be nil when the account
// never attaches images.
func NewPublisher(client RemoteClient, images ImageFetcher, retryConfig retry.Config, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		client:      client,
		images:      images,
		retryConfig: retryConfig,
		logger:      logger,
	}
}

// Publish renders, optionally attaches an image, and submits one post.
// On success exactly one remote post exists; on exhausted retries or a
// fatal error, zero.
func (p *Publisher) Publish(ctx context.Context, account *entity.Account, article entity.ArticleRecord) PostResult {
	post := OutgoingPost{
		Text:      RenderTemplate(account.PostFormat, article),
		LinkURL:   article.Link,
		CreatedAt: time.Now(),
		Image:     p.resolveImage(ctx, account, article),
	}

	var ref PostRef
	err := retry.WithBackoff(ctx, p.retryConfig, func() error {
		var serr error
		ref, serr = p.client.SubmitPost(ctx, post)
		return serr
	})
	if err != nil {
		return PostResult{
			Article:   article,
			Err:       err,
			Retryable: retry.IsRetryable(err),
		}
	}

	p.logger.Info("article published",
		slog.String("account", account.Name),
		slog.String("article_id", article.ID),
		slog.String("post_url", ref.URL))
	return PostResult{Article: article, Ref: ref}
}

// resolveImage downloads the article image when the account wants one.
// A download failure degrades the post to text-only; it never blocks
// publishing.
func (p *Publisher) resolveImage(ctx context.Context, account *entity.Account, article entity.ArticleRecord) *PostImage {
	if !account.IncludeImages {
		metrics.RecordImageResolution("disabled")
		return nil
	}
	if article.ImageURL == "" || p.images == nil {
		metrics.RecordImageResolution("miss")
		return nil
	}

	img, err := p.images.Fetch(ctx, article.ImageURL)
	if err != nil {
		p.logger.Warn("image download failed, posting text-only",
			slog.String("account", account.Name),
			slog.String("article_id", article.ID),
			slog.String("image_url", article.ImageURL),
			slog.String("error", err.Error()))
		metrics.RecordImageResolution("miss")
		return nil
	}

	metrics.RecordImageResolution("resolved")
	img.Alt = article.Title
	return &img
}
