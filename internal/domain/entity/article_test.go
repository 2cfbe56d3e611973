package entity

import (
	"testing"
	"time"
)

func TestArticleRecord_Before(t *testing.T) {
	t.Parallel()

	jan1 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	jan3 := time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		a, b ArticleRecord
		want bool
	}{
		{"earlier before later", ArticleRecord{PublishedAt: jan1}, ArticleRecord{PublishedAt: jan3}, true},
		{"later not before earlier", ArticleRecord{PublishedAt: jan3}, ArticleRecord{PublishedAt: jan1}, false},
		{"dated before undated", ArticleRecord{PublishedAt: jan1}, ArticleRecord{}, true},
		{"undated not before dated", ArticleRecord{}, ArticleRecord{PublishedAt: jan1}, false},
		{"undated not before undated", ArticleRecord{}, ArticleRecord{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Before(&tt.b); got != tt.want {
				t.Errorf("Before() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestArticleRecord_HasPublishedAt(t *testing.T) {
	t.Parallel()

	a := ArticleRecord{}
	if a.HasPublishedAt() {
		t.Error("zero PublishedAt should report false")
	}
	a.PublishedAt = time.Now()
	if !a.HasPublishedAt() {
		t.Error("set PublishedAt should report true")
	}
}
