// Package config loads the bot configuration from config.yaml and the
// environment. The YAML file carries feed and posting behavior; account
// credentials come exclusively from environment variables so they never
// land in version control.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"bsky-rss-bot/internal/domain/entity"
	pkgconfig "bsky-rss-bot/internal/pkg/config"
)

// DefaultPostFormat is used when neither the bot section nor the account
// entry specifies a template.
const DefaultPostFormat = "{title}\n\nRead more: {link}"

const minPostDateLayout = "2006-01-02"

// Duration wraps time.Duration so YAML can carry values like "15m" or "1h30m".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// DuplicateDetection holds the three dedup toggles. A nil pointer means
// enabled; turning dedup off must be an explicit decision.
type DuplicateDetection struct {
	CheckDatabase      *bool `yaml:"check_database"`
	CheckBlueskyBackup *bool `yaml:"check_bluesky_backup"`
	AutoSyncToDatabase *bool `yaml:"auto_sync_to_database"`
}

// Database reports whether the seen-store check is enabled.
func (d DuplicateDetection) Database() bool { return enabled(d.CheckDatabase) }

// Backup reports whether the remote-backup check is enabled.
func (d DuplicateDetection) Backup() bool { return enabled(d.CheckBlueskyBackup) }

// Sync reports whether backup-derived ids are merged into the store.
func (d DuplicateDetection) Sync() bool { return enabled(d.AutoSyncToDatabase) }

// BotConfig holds process-wide posting behavior. Account entries may
// override the posting preferences per account.
type BotConfig struct {
	CheckInterval      Duration           `yaml:"check_interval"`
	InterPostDelay     Duration           `yaml:"inter_post_delay"`
	PostFormat         string             `yaml:"post_format"`
	IncludeImages      *bool              `yaml:"include_images"`
	PostsToCheck       int                `yaml:"posts_to_check"`
	MaxBackfillEntries int                `yaml:"max_backfill_entries"`
	DuplicateDetection DuplicateDetection `yaml:"duplicate_detection"`

	// Publish retry knobs. Backoff base and cap are configuration, not
	// hardcoded contracts.
	MaxRetries   int      `yaml:"max_retries"`
	InitialDelay Duration `yaml:"initial_delay"`
	MaxDelay     Duration `yaml:"max_delay"`
}

// ImageSources toggles the stages of the image fallback chain.
// A nil pointer means enabled (the original default).
type ImageSources struct {
	UseOGImage      *bool `yaml:"use_og_image"`
	UseTwitterImage *bool `yaml:"use_twitter_image"`
	UseFeedImage    *bool `yaml:"use_feed_image"`
	UseFirstImage   *bool `yaml:"use_first_image"`
}

// Enabled reports a toggle's effective value.
func enabled(b *bool) bool { return b == nil || *b }

// OG reports whether the OpenGraph stage is enabled.
func (s ImageSources) OG() bool { return enabled(s.UseOGImage) }

// Twitter reports whether the twitter-card stage is enabled.
func (s ImageSources) Twitter() bool { return enabled(s.UseTwitterImage) }

// Feed reports whether the feed featured-image stage is enabled.
func (s ImageSources) Feed() bool { return enabled(s.UseFeedImage) }

// FirstImage reports whether the first-body-image stage is enabled.
func (s ImageSources) FirstImage() bool { return enabled(s.UseFirstImage) }

// RSSConfig holds feed-side settings.
type RSSConfig struct {
	MinPostDate  string       `yaml:"min_post_date"`
	ImageSources ImageSources `yaml:"image_sources"`
}

// AccountEntry is one account in the YAML accounts list. Everything except
// the name is an optional override of the bot-level preference.
type AccountEntry struct {
	Name          string `yaml:"name"`
	PostFormat    string `yaml:"post_format"`
	IncludeImages *bool  `yaml:"include_images"`
	MinPostDate   string `yaml:"min_post_date"`
}

// Config is the full parsed configuration file.
type Config struct {
	Bot      BotConfig      `yaml:"bot"`
	RSS      RSSConfig      `yaml:"rss"`
	Accounts []AccountEntry `yaml:"accounts"`
}

// Load reads and parses the configuration file, applying defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses raw YAML configuration, applying defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Bot.CheckInterval == 0 {
		c.Bot.CheckInterval = Duration(30 * time.Minute)
	}
	if c.Bot.InterPostDelay == 0 {
		c.Bot.InterPostDelay = Duration(5 * time.Second)
	}
	if c.Bot.PostFormat == "" {
		c.Bot.PostFormat = DefaultPostFormat
	}
	if c.Bot.PostsToCheck == 0 {
		c.Bot.PostsToCheck = 50
	}
	if c.Bot.MaxRetries == 0 {
		c.Bot.MaxRetries = 3
	}
	if c.Bot.InitialDelay == 0 {
		c.Bot.InitialDelay = Duration(5 * time.Second)
	}
	if c.Bot.MaxDelay == 0 {
		c.Bot.MaxDelay = Duration(2 * time.Minute)
	}
}

func (c *Config) validate() error {
	if err := pkgconfig.ValidateDurationRange(c.Bot.CheckInterval.Std(), time.Minute, 24*time.Hour); err != nil {
		return fmt.Errorf("bot.check_interval: %w", err)
	}
	if err := pkgconfig.ValidateIntRange(c.Bot.MaxRetries, 1, 10); err != nil {
		return fmt.Errorf("bot.max_retries: %w", err)
	}
	if err := pkgconfig.ValidateIntRange(c.Bot.PostsToCheck, 1, 100); err != nil {
		return fmt.Errorf("bot.posts_to_check: %w", err)
	}
	if c.RSS.MinPostDate != "" {
		if _, err := time.Parse(minPostDateLayout, c.RSS.MinPostDate); err != nil {
			return fmt.Errorf("rss.min_post_date: %w", err)
		}
	}
	return nil
}

// BuildAccounts resolves the configured accounts into immutable Account
// values, pulling credentials from the environment. Entries with missing
// credentials are skipped with a warning, matching the behavior operators
// expect when rolling out a new account before its secrets exist.
//
// Environment variables per account NAME (upper-cased):
//   - <NAME>_IDENTIFIER:   Bluesky handle or email
//   - <NAME>_APP_PASSWORD: app password for automated posting
//   - <NAME>_RSS_FEED_URL: feed polled for this account
//   - <NAME>_PDS_URL:      optional endpoint override
func (c *Config) BuildAccounts(logger *slog.Logger) ([]entity.Account, error) {
	var minPostDate time.Time
	if c.RSS.MinPostDate != "" {
		minPostDate, _ = time.Parse(minPostDateLayout, c.RSS.MinPostDate)
	}

	entries := c.Accounts
	if len(entries) == 0 {
		// Legacy single-account mode driven purely by environment variables.
		entries = []AccountEntry{{Name: "default"}}
	}

	seen := make(map[string]bool, len(entries))
	accounts := make([]entity.Account, 0, len(entries))
	for _, entry := range entries {
		name := entity.NormalizeAccountName(entry.Name)
		if name == "" {
			return nil, fmt.Errorf("accounts: %w: entry with empty name", entity.ErrInvalidInput)
		}
		if seen[name] {
			return nil, fmt.Errorf("accounts: %w: duplicate account %q", entity.ErrInvalidInput, name)
		}
		seen[name] = true

		acc := c.resolveAccount(name, entry, minPostDate)
		if err := acc.Validate(); err != nil {
			logger.Warn("account missing required credentials, skipping",
				slog.String("account", name),
				slog.Any("error", err))
			continue
		}
		if err := pkgconfig.ValidateHTTPURL(acc.FeedURL); err != nil {
			logger.Warn("account has invalid feed URL, skipping",
				slog.String("account", name),
				slog.Any("error", err))
			continue
		}
		accounts = append(accounts, acc)
	}

	if len(accounts) == 0 {
		return nil, fmt.Errorf("no valid accounts configured")
	}
	return accounts, nil
}

func (c *Config) resolveAccount(name string, entry AccountEntry, minPostDate time.Time) entity.Account {
	prefix := envPrefix(name)

	acc := entity.Account{
		Name:        name,
		Identifier:  os.Getenv(prefix + "_IDENTIFIER"),
		AppPassword: os.Getenv(prefix + "_APP_PASSWORD"),
		FeedURL:     os.Getenv(prefix + "_RSS_FEED_URL"),
		PDSURL:      os.Getenv(prefix + "_PDS_URL"),

		IncludeImages: enabled(c.Bot.IncludeImages),
		PostFormat:    c.Bot.PostFormat,
		MinPostDate:   minPostDate,

		CheckDatabase:      c.Bot.DuplicateDetection.Database(),
		CheckBlueskyBackup: c.Bot.DuplicateDetection.Backup(),
		AutoSyncToDatabase: c.Bot.DuplicateDetection.Sync(),

		PostsToCheck: c.Bot.PostsToCheck,
		MaxBackfill:  c.Bot.MaxBackfillEntries,
	}

	// Legacy environment variables cover the implicit default account.
	if name == "default" {
		if acc.Identifier == "" {
			acc.Identifier = os.Getenv("BLUESKY_IDENTIFIER")
		}
		if acc.AppPassword == "" {
			acc.AppPassword = os.Getenv("BLUESKY_APP_PASSWORD")
		}
		if acc.FeedURL == "" {
			acc.FeedURL = os.Getenv("RSS_FEED_URL")
		}
	}

	// Per-account overrides of posting preferences.
	if entry.PostFormat != "" {
		acc.PostFormat = entry.PostFormat
	}
	if entry.IncludeImages != nil {
		acc.IncludeImages = *entry.IncludeImages
	}
	if entry.MinPostDate != "" {
		if t, err := time.Parse(minPostDateLayout, entry.MinPostDate); err == nil {
			acc.MinPostDate = t
		}
	}

	return acc
}

// envPrefix maps an account name to its environment variable prefix:
// upper-cased, dashes folded to underscores.
func envPrefix(name string) string {
	out := make([]byte, 0, len(name))
	for i := 0; i < len(name); i++ {
		ch := name[i]
		switch {
		case ch >= 'a' && ch <= 'z':
			out = append(out, ch-'a'+'A')
		case ch == '-' || ch == '.':
			out = append(out, '_')
		default:
			out = append(out, ch)
		}
	}
	return string(out)
}
