package publish

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/time/rate"

	"bsky-rss-bot/internal/domain/entity"
	"bsky-rss-bot/internal/observability/metrics"
	"bsky-rss-bot/internal/repository"
	"bsky-rss-bot/internal/usecase/extract"
)

// Runner drives one account through a publishing cycle:
// FETCHING -> FILTERING -> PUBLISHING -> IDLE. All per-article failures
// are absorbed here; only a seen-store failure or cancellation aborts a
// cycle, and nothing ever crashes the scheduler.
type Runner struct {
	account   *entity.Account
	feed      FeedFetcher
	extractor ArticleExtractor
	store     repository.SeenRepository
	publisher *Publisher
	backup    *BackupChecker

	// pacer spaces posts within one cycle so a backlog cannot burst
	// into the service's rate limits.
	pacer  *rate.Limiter
	logger *slog.Logger
	now    func() time.Time
}

// NewRunner creates the runner for one account. backup may be nil when
// the remote-backup check is disabled for the account.
func NewRunner(
	account *entity.Account,
	feed FeedFetcher,
	extractor ArticleExtractor,
	store repository.SeenRepository,
	publisher *Publisher,
	backup *BackupChecker,
	interPostDelay time.Duration,
	logger *slog.Logger,
) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	limit := rate.Inf
	if interPostDelay > 0 {
		limit = rate.Every(interPostDelay)
	}
	return &Runner{
		account:   account,
		feed:      feed,
		extractor: extractor,
		store:     store,
		publisher: publisher,
		backup:    backup,
		pacer:     rate.NewLimiter(limit, 1),
		logger:    logger.With(slog.String("account", account.Name)),
		now:       time.Now,
	}
}

// candidate pairs a raw entry with its filter-stage record so image
// resolution can be deferred until the article is actually published.
type candidate struct {
	raw    extract.RawEntry
	record entity.ArticleRecord
}

// RunCycle executes one full cycle for the account. A fetch failure skips
// the cycle; a seen-store failure aborts it with an error so the article
// in flight is never silently marked as posted.
func (r *Runner) RunCycle(ctx context.Context) error {
	start := r.now()
	defer func() {
		metrics.RecordCycleDuration(r.account.Name, r.now().Sub(start))
	}()

	// FETCHING
	entries, err := r.feed.Fetch(ctx, r.account.FeedURL)
	if err != nil {
		metrics.RecordFeedFetchError(r.account.Name)
		r.logger.Error("feed fetch failed, skipping cycle",
			slog.String("feed_url", r.account.FeedURL),
			slog.String("error", err.Error()))
		return nil
	}

	// FILTERING
	candidates, err := r.filter(ctx, entries)
	if err != nil {
		return err
	}
	candidates, err = r.dropRemoteDuplicates(ctx, candidates)
	if err != nil {
		return err
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].record.Before(&candidates[j].record)
	})
	if r.account.MaxBackfill > 0 && len(candidates) > r.account.MaxBackfill {
		r.logger.Info("capping backlog for this cycle",
			slog.Int("backlog", len(candidates)),
			slog.Int("max_backfill", r.account.MaxBackfill))
		candidates = candidates[:r.account.MaxBackfill]
	}

	// PUBLISHING, strictly sequential and oldest-first
	if err := r.publishAll(ctx, candidates); err != nil {
		return err
	}

	// IDLE
	metrics.RecordCycleSuccess(r.account.Name, r.now())
	return nil
}

func (r *Runner) filter(ctx context.Context, entries []extract.RawEntry) ([]candidate, error) {
	candidates := make([]candidate, 0, len(entries))
	for _, raw := range entries {
		record := r.extractor.Extract(ctx, raw, false)

		// Undated entries pass the cutoff; only a known-older date drops.
		if record.HasPublishedAt() && !r.account.MinPostDate.IsZero() &&
			record.PublishedAt.Before(r.account.MinPostDate) {
			continue
		}

		if r.account.CheckDatabase {
			seen, err := r.store.Contains(ctx, r.account.Name, record.ID)
			if err != nil {
				return nil, fmt.Errorf("seen-store lookup for %s: %w", record.ID, err)
			}
			if seen {
				metrics.RecordDuplicateSkipped(r.account.Name, "store")
				continue
			}
		}
		candidates = append(candidates, candidate{raw: raw, record: record})
	}
	return candidates, nil
}

// dropRemoteDuplicates consults the remote-backup checker. When the store
// missed an article the backup knows about, the backup wins and the
// article is treated as seen. A failed check only degrades coverage.
func (r *Runner) dropRemoteDuplicates(ctx context.Context, candidates []candidate) ([]candidate, error) {
	if !r.account.CheckBlueskyBackup || r.backup == nil || len(candidates) == 0 {
		return candidates, nil
	}

	records := make([]entity.ArticleRecord, len(candidates))
	for i, c := range candidates {
		records[i] = c.record
	}

	remoteSeen, err := r.backup.SeenArticleIDs(ctx, records)
	if err != nil {
		r.logger.Warn("remote backup check failed, continuing with store-only dedup",
			slog.String("error", err.Error()))
		return candidates, nil
	}
	if len(remoteSeen) == 0 {
		return candidates, nil
	}

	if r.account.AutoSyncToDatabase {
		ids := make([]string, 0, len(remoteSeen))
		for id := range remoteSeen {
			ids = append(ids, id)
		}
		if err := r.store.SyncFromRemote(ctx, r.account.Name, ids); err != nil {
			return nil, fmt.Errorf("sync backup-derived ids: %w", err)
		}
	}

	kept := candidates[:0]
	for _, c := range candidates {
		if _, ok := remoteSeen[c.record.ID]; ok {
			metrics.RecordDuplicateSkipped(r.account.Name, "remote_backup")
			continue
		}
		kept = append(kept, c)
	}
	return kept, nil
}

// publishCallTimeout bounds one publish call, its retries included, once
// the call has started.
const publishCallTimeout = 5 * time.Minute

func (r *Runner) publishAll(ctx context.Context, candidates []candidate) error {
	for _, c := range candidates {
		// A cycle may be abandoned between articles, never mid-publish.
		if err := r.pacer.Wait(ctx); err != nil {
			return fmt.Errorf("cycle abandoned: %w", err)
		}
		if err := r.publishOne(ctx, c); err != nil {
			return err
		}
	}
	return nil
}

// publishOne publishes a single article and records it, detached from the
// caller's cancellation. A shutdown signal arriving mid-call waits for the
// call and its seen-store write to finish; aborting here could leave a
// created remote post unrecorded and replay it next cycle. The detached
// context still expires on its own timeout.
func (r *Runner) publishOne(ctx context.Context, c candidate) error {
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishCallTimeout)
	defer cancel()

	article := r.extractor.Extract(callCtx, c.raw, r.account.IncludeImages)
	result := r.publisher.Publish(callCtx, r.account, article)
	if !result.Success() {
		kind := "fatal"
		if result.Retryable {
			kind = "retryable_exhausted"
		}
		metrics.RecordPublishFailure(r.account.Name, kind)
		r.logger.Error("publish failed, skipping to next article",
			slog.String("article_id", article.ID),
			slog.String("kind", kind),
			slog.String("error", result.Err.Error()))
		return nil
	}

	// Record before moving on so a crash mid-backlog replays at most
	// the article in flight.
	rec := repository.SeenRecord{
		AccountName: r.account.Name,
		ArticleID:   article.ID,
		Title:       article.Title,
		Link:        article.Link,
		PublishedAt: article.PublishedAt,
		PostedAt:    r.now(),
		BlueskyURI:  result.Ref.URI,
		BlueskyURL:  result.Ref.URL,
	}
	if err := r.store.Record(callCtx, rec); err != nil {
		metrics.RecordPublishFailure(r.account.Name, "store_write")
		return fmt.Errorf("record published article %s: %w", article.ID, err)
	}
	metrics.RecordPostPublished(r.account.Name)
	return nil
}
