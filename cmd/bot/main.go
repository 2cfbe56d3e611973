package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"bsky-rss-bot/internal/config"
	"bsky-rss-bot/internal/domain/entity"
	"bsky-rss-bot/internal/infra/adapter/persistence/postgres"
	"bsky-rss-bot/internal/infra/adapter/persistence/sqlite"
	"bsky-rss-bot/internal/infra/bluesky"
	"bsky-rss-bot/internal/infra/db"
	"bsky-rss-bot/internal/infra/fetcher"
	"bsky-rss-bot/internal/infra/scraper"
	workerPkg "bsky-rss-bot/internal/infra/worker"
	"bsky-rss-bot/internal/observability/logging"
	pkgconfig "bsky-rss-bot/internal/pkg/config"
	"bsky-rss-bot/internal/repository"
	"bsky-rss-bot/internal/resilience/retry"
	"bsky-rss-bot/internal/usecase/extract"
	"bsky-rss-bot/internal/usecase/publish"
)

func main() {
	logger := logging.NewLogger()
	slog.SetDefault(logger)

	workerConfig, err := workerPkg.LoadWorkerConfigFromEnv()
	if err != nil {
		logger.Error("invalid worker configuration", slog.Any("error", err))
		os.Exit(1)
	}

	configPath := pkgconfig.GetEnvString("CONFIG_PATH", "config.yaml")
	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Error("failed to load configuration",
			slog.String("path", configPath),
			slog.Any("error", err))
		os.Exit(1)
	}

	accounts, err := cfg.BuildAccounts(logger)
	if err != nil {
		logger.Error("failed to resolve accounts", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("accounts resolved", slog.Int("count", len(accounts)))

	store, closeDB, err := openSeenStore()
	if err != nil {
		logger.Error("failed to open seen-store", slog.Any("error", err))
		os.Exit(1)
	}
	defer closeDB()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	startMetricsServer(ctx, logger, workerConfig.MetricsPort)

	healthServer := workerPkg.NewHealthServer(fmt.Sprintf(":%d", workerConfig.HealthPort), logger)
	go func() {
		if err := healthServer.Start(ctx); err != nil && err != http.ErrServerClosed {
			logger.Error("health server failed", slog.Any("error", err))
		}
	}()

	runners := buildRunners(ctx, cfg, accounts, store, logger)
	if len(runners) == 0 {
		logger.Error("no account could authenticate, nothing to run")
		os.Exit(1)
	}
	service := publish.NewService(runners, logger)

	startScheduler(ctx, logger, service, cfg, workerConfig, healthServer)
}

// openSeenStore opens the database and returns the backend-appropriate
// repository.
func openSeenStore() (repository.SeenRepository, func(), error) {
	database, kind, err := db.Open()
	if err != nil {
		return nil, nil, err
	}
	if err := db.MigrateUp(database, kind); err != nil {
		_ = database.Close()
		return nil, nil, err
	}

	closeDB := func() { _ = database.Close() }
	switch kind {
	case db.KindPostgres:
		return postgres.NewSeenRepo(database), closeDB, nil
	default:
		return sqlite.NewSeenRepo(database), closeDB, nil
	}
}

// loginTimeout bounds the eager startup login per account, retries included.
const loginTimeout = 2 * time.Minute

// buildRunners wires the per-account pipeline: feed fetcher, extractor,
// Bluesky client, publisher, and optional backup checker. Each account
// logs in eagerly; bad credentials surface here instead of mid-cycle, and
// the account is skipped with a warning like a missing-secrets account.
func buildRunners(ctx context.Context, cfg *config.Config, accounts []entity.Account, store repository.SeenRepository, logger *slog.Logger) []*publish.Runner {
	feedClient := newHTTPClient(30 * time.Second)
	pageClient := newHTTPClient(15 * time.Second)
	imageClient := newHTTPClient(30 * time.Second)

	sources := extract.Sources{
		OGImage:      cfg.RSS.ImageSources.OG(),
		TwitterImage: cfg.RSS.ImageSources.Twitter(),
		FeedImage:    cfg.RSS.ImageSources.Feed(),
		FirstImage:   cfg.RSS.ImageSources.FirstImage(),
	}
	publishRetry := retry.Config{
		MaxAttempts:    cfg.Bot.MaxRetries,
		InitialDelay:   cfg.Bot.InitialDelay.Std(),
		MaxDelay:       cfg.Bot.MaxDelay.Std(),
		Multiplier:     2.0,
		JitterFraction: 0.1,
	}

	runners := make([]*publish.Runner, 0, len(accounts))
	for i := range accounts {
		account := &accounts[i]
		accountLogger := logging.ForAccount(logger, account.Name)

		remote := bluesky.NewRemoteClientAdapter(bluesky.NewClient(bluesky.Config{
			Endpoint:    account.Endpoint(),
			Identifier:  account.Identifier,
			AppPassword: account.AppPassword,
			HTTPClient:  newHTTPClient(30 * time.Second),
			Logger:      accountLogger,
		}))

		authCtx, cancel := context.WithTimeout(ctx, loginTimeout)
		err := remote.Authenticate(authCtx)
		cancel()
		if err != nil {
			accountLogger.Warn("authentication failed, skipping account",
				slog.Any("error", err))
			continue
		}

		extractor := extract.NewExtractor(fetcher.NewPageInspector(pageClient), sources, accountLogger)
		publisher := publish.NewPublisher(remote, fetcher.NewImageFetcher(imageClient), publishRetry, accountLogger)

		var backup *publish.BackupChecker
		if account.CheckBlueskyBackup {
			backup = publish.NewBackupChecker(remote, account.PostsToCheck, accountLogger)
		}

		runners = append(runners, publish.NewRunner(
			account,
			scraper.NewRSSFetcher(feedClient, accountLogger),
			extractor,
			store,
			publisher,
			backup,
			cfg.Bot.InterPostDelay.Std(),
			logger,
		))
	}
	return runners
}

// startScheduler runs one cycle immediately, then on every interval tick.
// Blocks until the shutdown signal, then drains the in-flight cycle.
func startScheduler(ctx context.Context, logger *slog.Logger, service *publish.Service, cfg *config.Config, workerConfig workerPkg.WorkerConfig, healthServer *workerPkg.HealthServer) {
	loc, err := time.LoadLocation(workerConfig.Timezone)
	if err != nil {
		logger.Warn("invalid timezone, using UTC", slog.String("timezone", workerConfig.Timezone))
		loc = time.UTC
	}

	runCycle := func() {
		start := time.Now()
		logger.Info("publishing cycle started")

		cycleCtx, cancel := context.WithTimeout(ctx, workerConfig.CycleTimeout)
		defer cancel()
		service.RunAll(cycleCtx)

		logger.Info("publishing cycle finished",
			slog.Duration("duration", time.Since(start)))
	}

	// An overrunning cycle must never overlap the next tick; within-account
	// ordering depends on it.
	scheduler := cron.New(
		cron.WithLocation(loc),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	spec := fmt.Sprintf("@every %s", cfg.Bot.CheckInterval.Std())
	if _, err := scheduler.AddFunc(spec, runCycle); err != nil {
		logger.Error("failed to schedule publishing cycle", slog.Any("error", err))
		os.Exit(1)
	}

	scheduler.Start()
	healthServer.SetReady(true)
	logger.Info("scheduler started",
		slog.String("schedule", spec),
		slog.String("timezone", workerConfig.Timezone))

	runCycle()

	<-ctx.Done()
	healthServer.SetReady(false)
	logger.Info("shutdown signal received, draining")

	// Stop returns after any in-flight cycle completes.
	<-scheduler.Stop().Done()
	logger.Info("shutdown complete")
}

// newHTTPClient returns a pooled client enforcing TLS 1.2+.
func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			TLSClientConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
		},
	}
}
