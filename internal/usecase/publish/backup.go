package publish

import (
	"context"
	"log/slog"
	"net/url"
	"strings"

	"bsky-rss-bot/internal/domain/entity"
)

// defaultPostsToCheck bounds the remote listing when an account does not
// configure its own window.
const defaultPostsToCheck = 50

// BackupChecker derives already-posted article IDs from the account's own
// recent remote posts. It is a secondary, best-effort dedup source: a post
// counts as matching a candidate article when it links to the article's URL
// or contains its title, compared case-insensitively.
type BackupChecker struct {
	client       RemoteClient
	postsToCheck int
	logger       *slog.Logger
}

// NewBackupChecker creates a BackupChecker reading up to postsToCheck
// recent posts per cycle.
func NewBackupChecker(client RemoteClient, postsToCheck int, logger *slog.Logger) *BackupChecker {
	if postsToCheck <= 0 {
		postsToCheck = defaultPostsToCheck
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BackupChecker{client: client, postsToCheck: postsToCheck, logger: logger}
}

// SeenArticleIDs returns the subset of candidate article IDs that already
// appear among the account's recent remote posts. The error is informative
// only; callers treat a failed check as reduced dedup coverage, never as a
// reason to block publishing.
func (b *BackupChecker) SeenArticleIDs(ctx context.Context, candidates []entity.ArticleRecord) (map[string]struct{}, error) {
	posts, err := b.client.ListRecentPosts(ctx, b.postsToCheck)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	for _, article := range candidates {
		if matchesAny(posts, article) {
			seen[article.ID] = struct{}{}
		}
	}
	return seen, nil
}

func matchesAny(posts []RemotePost, article entity.ArticleRecord) bool {
	link := canonicalLink(article.Link)
	title := strings.ToLower(article.Title)
	for _, post := range posts {
		for _, postLink := range post.Links {
			if link != "" && canonicalLink(postLink) == link {
				return true
			}
		}
		if title != "" && strings.Contains(strings.ToLower(post.Text), title) {
			return true
		}
	}
	return false
}

// canonicalLink normalizes a URL for the fuzzy reverse-match: lowercased
// scheme and host, no trailing slash. Unparseable links compare raw.
func canonicalLink(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return strings.TrimRight(raw, "/")
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Path = strings.TrimRight(u.Path, "/")
	u.Fragment = ""
	return u.String()
}
