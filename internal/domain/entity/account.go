package entity

import (
	"fmt"
	"strings"
	"time"
)

// DefaultPDSURL is the endpoint used when an account does not override it.
const DefaultPDSURL = "https://bsky.social"

// Account holds the immutable configuration of a single Bluesky account.
// It is constructed once at startup and passed by reference into its runner;
// nothing mutates it for the lifetime of the process.
type Account struct {
	// Name is the unique, case-normalized key of the account.
	Name string

	// Identifier is the Bluesky handle or email used to create sessions.
	Identifier string

	// AppPassword is the scoped credential used for automated posting.
	AppPassword string

	// FeedURL is the RSS/Atom feed polled for this account.
	FeedURL string

	// PDSURL is the personal data server endpoint. Empty means DefaultPDSURL.
	PDSURL string

	// IncludeImages enables image resolution and upload for posts.
	IncludeImages bool

	// PostFormat is the post template. {title} and {link} are substituted;
	// unknown placeholders are left literal.
	PostFormat string

	// MinPostDate drops feed entries published before the cutoff.
	// Zero means no cutoff.
	MinPostDate time.Time

	// Duplicate detection toggles.
	CheckDatabase      bool
	CheckBlueskyBackup bool
	AutoSyncToDatabase bool

	// PostsToCheck bounds how many recent remote posts the backup checker reads.
	PostsToCheck int

	// MaxBackfill bounds how many unseen articles one cycle may publish.
	// Zero means unbounded.
	MaxBackfill int
}

// NormalizeAccountName lowercases and trims an account name so that the
// same account cannot be configured twice under different spellings.
func NormalizeAccountName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Validate checks that the account carries everything a runner needs.
func (a *Account) Validate() error {
	var errs []error
	if a.Name == "" {
		errs = append(errs, &ValidationError{Field: "name", Message: "must not be empty"})
	}
	if a.Identifier == "" {
		errs = append(errs, &ValidationError{Field: "identifier", Message: "must not be empty"})
	}
	if a.AppPassword == "" {
		errs = append(errs, &ValidationError{Field: "app_password", Message: "must not be empty"})
	}
	if a.FeedURL == "" {
		errs = append(errs, &ValidationError{Field: "rss_feed_url", Message: "must not be empty"})
	}
	if len(errs) > 0 {
		return fmt.Errorf("account %q: %w: %v", a.Name, ErrValidationFailed, errs)
	}
	return nil
}

// Endpoint returns the effective PDS endpoint for this account.
func (a *Account) Endpoint() string {
	if a.PDSURL == "" {
		return DefaultPDSURL
	}
	return a.PDSURL
}
