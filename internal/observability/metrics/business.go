package metrics

import "time"

// RecordPostPublished records one successfully published post for an account.
func RecordPostPublished(account string) {
	PostsPublishedTotal.WithLabelValues(account).Inc()
}

// RecordPublishFailure records a failed publish.
// Kind should be "retryable_exhausted", "fatal" or "store_write".
func RecordPublishFailure(account, kind string) {
	PublishFailuresTotal.WithLabelValues(account, kind).Inc()
}

// RecordDuplicateSkipped records a feed entry skipped as already posted.
// Source should be "store" or "remote_backup".
func RecordDuplicateSkipped(account, source string) {
	DuplicatesSkippedTotal.WithLabelValues(account, source).Inc()
}

// RecordFeedFetchError records a failed feed fetch for an account's cycle.
func RecordFeedFetchError(account string) {
	FeedFetchErrorsTotal.WithLabelValues(account).Inc()
}

// RecordCycleDuration records the wall time of one account runner cycle.
func RecordCycleDuration(account string, duration time.Duration) {
	CycleDuration.WithLabelValues(account).Observe(duration.Seconds())
}

// RecordImageResolution records the outcome of one image resolution attempt.
// Outcome should be "resolved", "miss" or "disabled".
func RecordImageResolution(outcome string) {
	ImagesResolvedTotal.WithLabelValues(outcome).Inc()
}

// RecordCycleSuccess marks the account's last successful cycle timestamp.
func RecordCycleSuccess(account string, at time.Time) {
	LastSuccessfulCycle.WithLabelValues(account).Set(float64(at.Unix()))
}
