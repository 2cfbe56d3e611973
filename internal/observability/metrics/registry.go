// Package metrics provides centralized Prometheus metrics for the bot.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Publish pipeline metrics track the per-account posting flow.
var (
	// PostsPublishedTotal counts successfully published posts per account
	PostsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_posts_published_total",
			Help: "Total number of posts published to Bluesky",
		},
		[]string{"account"},
	)

	// PublishFailuresTotal counts publish failures by account and kind
	// (kind: "retryable_exhausted", "fatal", "store_write")
	PublishFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_publish_failures_total",
			Help: "Total number of failed publish attempts by failure kind",
		},
		[]string{"account", "kind"},
	)

	// DuplicatesSkippedTotal counts articles skipped by duplicate detection
	// (source: "store", "remote_backup")
	DuplicatesSkippedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_duplicates_skipped_total",
			Help: "Total number of feed entries skipped as already posted",
		},
		[]string{"account", "source"},
	)

	// FeedFetchErrorsTotal counts failed feed fetch cycles per account
	FeedFetchErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_feed_fetch_errors_total",
			Help: "Total number of feed fetch failures",
		},
		[]string{"account"},
	)

	// CycleDuration measures the duration of one account runner cycle
	CycleDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bot_cycle_duration_seconds",
			Help:    "Duration of one account publish cycle in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		},
		[]string{"account"},
	)

	// ImagesResolvedTotal counts image resolution outcomes
	// (outcome: "resolved", "miss", "disabled")
	ImagesResolvedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_images_resolved_total",
			Help: "Total number of article image resolution attempts by outcome",
		},
		[]string{"outcome"},
	)

	// LastSuccessfulCycle records the unix timestamp of the last clean cycle
	LastSuccessfulCycle = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bot_last_successful_cycle_timestamp_seconds",
			Help: "Unix timestamp of the last cycle that completed without error",
		},
		[]string{"account"},
	)
)
