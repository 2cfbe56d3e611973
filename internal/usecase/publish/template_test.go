package publish

import (
	"testing"

	"bsky-rss-bot/internal/domain/entity"
)

func TestRenderTemplate(t *testing.T) {
	t.Parallel()

	article := entity.ArticleRecord{
		Title: "A Story",
		Link:  "https://example.com/story",
	}

	tests := []struct {
		name   string
		format string
		want   string
	}{
		{
			name:   "default format",
			format: "",
			want:   "A Story\n\nRead more: https://example.com/story",
		},
		{
			name:   "custom format",
			format: "New post: {title} ({link})",
			want:   "New post: A Story (https://example.com/story)",
		},
		{
			name:   "unknown placeholder stays literal",
			format: "{title} by {author}",
			want:   "A Story by {author}",
		},
		{
			name:   "repeated placeholders",
			format: "{title} / {title}",
			want:   "A Story / A Story",
		},
		{
			name:   "no placeholders",
			format: "static text",
			want:   "static text",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RenderTemplate(tt.format, article); got != tt.want {
				t.Errorf("RenderTemplate() = %q, want %q", got, tt.want)
			}
		})
	}
}
