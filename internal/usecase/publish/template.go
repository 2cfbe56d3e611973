package publish

import (
	"strings"

	"bsky-rss-bot/internal/domain/entity"
)

// DefaultPostFormat is used when an account configures no template.
const DefaultPostFormat = "{title}\n\nRead more: {link}"

// RenderTemplate substitutes the fixed placeholder set into a post
// template. Only {title} and {link} are recognized; anything else stays
// literal so a typo in a template degrades visibly instead of erroring.
func RenderTemplate(format string, article entity.ArticleRecord) string {
	if format == "" {
		format = DefaultPostFormat
	}
	return strings.NewReplacer(
		"{title}", article.Title,
		"{link}", article.Link,
	).Replace(format)
}
