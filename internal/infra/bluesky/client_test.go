package bluesky

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"bsky-rss-bot/internal/resilience/retry"
)

// signedToken builds a token whose exp claim tokenExpiry can read.
func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": exp.Unix(),
		"sub": "did:plc:test",
	}).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

// fakePDS is a minimal XRPC server covering the endpoints the client uses.
type fakePDS struct {
	t *testing.T

	sessionCalls int
	createdPosts []map[string]interface{}
	feedJSON     string
	failLogins   int
	tokenExp     time.Duration
}

func (f *fakePDS) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/xrpc/com.atproto.server.createSession", func(w http.ResponseWriter, r *http.Request) {
		f.sessionCalls++
		if f.failLogins > 0 {
			f.failLogins--
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"RateLimitExceeded","message":"Rate Limit Exceeded"}`))
			return
		}
		exp := f.tokenExp
		if exp == 0 {
			exp = time.Hour
		}
		_ = json.NewEncoder(w).Encode(map[string]string{
			"accessJwt":  signedToken(f.t, time.Now().Add(exp)),
			"refreshJwt": signedToken(f.t, time.Now().Add(90*24*time.Hour)),
			"did":        "did:plc:test",
			"handle":     "bot.example.com",
		})
	})
	mux.HandleFunc("/xrpc/com.atproto.server.refreshSession", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{
			"accessJwt":  signedToken(f.t, time.Now().Add(time.Hour)),
			"refreshJwt": signedToken(f.t, time.Now().Add(90*24*time.Hour)),
			"did":        "did:plc:test",
			"handle":     "bot.example.com",
		})
	})
	mux.HandleFunc("/xrpc/com.atproto.repo.uploadBlob", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"blob":{"$type":"blob","ref":{"$link":"bafyblob"},"mimeType":"image/jpeg","size":123}}`))
	})
	mux.HandleFunc("/xrpc/com.atproto.repo.createRecord", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.createdPosts = append(f.createdPosts, body)
		_, _ = w.Write([]byte(`{"uri":"at://did:plc:test/app.bsky.feed.post/3kabc","cid":"bafycid"}`))
	})
	mux.HandleFunc("/xrpc/app.bsky.feed.getAuthorFeed", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(f.feedJSON))
	})
	return mux
}

func newTestClient(t *testing.T, pds *fakePDS) *Client {
	t.Helper()
	server := httptest.NewServer(pds.handler())
	t.Cleanup(server.Close)
	client := NewClient(Config{
		Endpoint:    server.URL,
		Identifier:  "bot.example.com",
		AppPassword: "app-pass",
	})
	// Short waits keep login-retry tests fast.
	client.loginRetry = retry.Config{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
		Sleep: func(ctx context.Context, d time.Duration) error {
			return nil
		},
	}
	return client
}

func TestClient_Authenticate(t *testing.T) {
	pds := &fakePDS{t: t}
	client := newTestClient(t, pds)

	if err := client.Authenticate(context.Background()); err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	if pds.sessionCalls != 1 {
		t.Errorf("sessionCalls = %d, want 1", pds.sessionCalls)
	}
	if client.session == nil || client.session.did != "did:plc:test" {
		t.Error("session not stored")
	}
	if client.session.expiry.IsZero() {
		t.Error("token expiry not parsed from jwt")
	}
}

func TestClient_Authenticate_RetriesRateLimit(t *testing.T) {
	pds := &fakePDS{t: t, failLogins: 2}
	client := newTestClient(t, pds)

	if err := client.Authenticate(context.Background()); err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	if pds.sessionCalls != 3 {
		t.Errorf("sessionCalls = %d, want 3", pds.sessionCalls)
	}
}

func TestClient_SubmitPost(t *testing.T) {
	pds := &fakePDS{t: t}
	client := newTestClient(t, pds)

	text := "A Story\n\nRead more: https://example.com/story"
	ref, err := client.SubmitPost(context.Background(), Post{
		Text:      text,
		LinkURL:   "https://example.com/story",
		CreatedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		Image:     &Image{Data: []byte("fake-jpeg"), MimeType: "image/jpeg", Alt: "A Story", Width: 1024, Height: 512},
	})
	if err != nil {
		t.Fatalf("SubmitPost() error = %v", err)
	}

	if ref.URI != "at://did:plc:test/app.bsky.feed.post/3kabc" {
		t.Errorf("URI = %q", ref.URI)
	}
	if want := "https://bsky.app/profile/bot.example.com/post/3kabc"; ref.URL != want {
		t.Errorf("URL = %q, want %q", ref.URL, want)
	}

	if len(pds.createdPosts) != 1 {
		t.Fatalf("createdPosts = %d, want 1", len(pds.createdPosts))
	}
	record := pds.createdPosts[0]["record"].(map[string]interface{})
	if record["text"] != text {
		t.Errorf("record text = %q", record["text"])
	}

	facets := record["facets"].([]interface{})
	index := facets[0].(map[string]interface{})["index"].(map[string]interface{})
	if int(index["byteStart"].(float64)) != 20 {
		t.Errorf("facet byteStart = %v, want 20", index["byteStart"])
	}
	if record["embed"] == nil {
		t.Fatal("expected image embed in record")
	}
	embed := record["embed"].(map[string]interface{})
	images := embed["images"].([]interface{})
	ratio := images[0].(map[string]interface{})["aspectRatio"].(map[string]interface{})
	if int(ratio["width"].(float64)) != 1024 || int(ratio["height"].(float64)) != 512 {
		t.Errorf("aspectRatio = %v, want 1024x512", ratio)
	}
}

func TestClient_SubmitPost_RateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/xrpc/com.atproto.server.createSession" {
			_ = json.NewEncoder(w).Encode(map[string]string{
				"accessJwt":  signedToken(t, time.Now().Add(time.Hour)),
				"refreshJwt": signedToken(t, time.Now().Add(time.Hour)),
				"did":        "did:plc:test",
				"handle":     "bot.example.com",
			})
			return
		}
		w.Header().Set("Retry-After", "120")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":"RateLimitExceeded","message":"too many posts"}`))
	}))
	defer server.Close()

	client := NewClient(Config{Endpoint: server.URL, Identifier: "x", AppPassword: "y"})
	_, err := client.SubmitPost(context.Background(), Post{Text: "hi"})

	var rateLimitErr *RateLimitError
	if !errors.As(err, &rateLimitErr) {
		t.Fatalf("error = %v, want *RateLimitError", err)
	}
	if rateLimitErr.RetryAfterDelay() != 2*time.Minute {
		t.Errorf("RetryAfterDelay = %v, want 2m", rateLimitErr.RetryAfterDelay())
	}
	if !retry.IsRetryable(err) {
		t.Error("rate limit error should be retryable")
	}
}

func TestClient_SubmitPost_AuthFailureNotRetryable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"AuthenticationRequired","message":"Invalid identifier or password"}`))
	}))
	defer server.Close()

	client := NewClient(Config{Endpoint: server.URL, Identifier: "x", AppPassword: "bad"})
	client.loginRetry = retry.Config{MaxAttempts: 1, InitialDelay: time.Millisecond, Multiplier: 2}

	_, err := client.SubmitPost(context.Background(), Post{Text: "hi"})

	var clientErr *ClientError
	if !errors.As(err, &clientErr) {
		t.Fatalf("error = %v, want *ClientError", err)
	}
	if retry.IsRetryable(err) {
		t.Error("auth failure should not be retryable")
	}
}

func TestClient_ListRecentPosts(t *testing.T) {
	pds := &fakePDS{t: t, feedJSON: `{
		"feed": [
			{"post": {
				"uri": "at://did:plc:test/app.bsky.feed.post/1",
				"author": {"did": "did:plc:test"},
				"record": {
					"text": "A Story\n\nRead more: https://example.com/story",
					"facets": [{"index": {"byteStart": 20, "byteEnd": 45},
						"features": [{"$type": "app.bsky.richtext.facet#link", "uri": "https://example.com/story"}]}]
				}
			}},
			{"post": {
				"uri": "at://did:plc:other/app.bsky.feed.post/2",
				"author": {"did": "did:plc:other"},
				"record": {"text": "a repost from someone else"}
			}},
			{"post": {
				"uri": "at://did:plc:test/app.bsky.feed.post/3",
				"author": {"did": "did:plc:test"},
				"record": {
					"text": "external card",
					"embed": {"external": {"uri": "https://example.com/card"}}
				}
			}}
		]
	}`}
	client := newTestClient(t, pds)

	posts, err := client.ListRecentPosts(context.Background(), 20)
	if err != nil {
		t.Fatalf("ListRecentPosts() error = %v", err)
	}

	if len(posts) != 2 {
		t.Fatalf("posts = %d, want 2 (repost excluded)", len(posts))
	}
	if posts[0].Links[0] != "https://example.com/story" {
		t.Errorf("posts[0].Links = %v", posts[0].Links)
	}
	if posts[1].Links[0] != "https://example.com/card" {
		t.Errorf("posts[1].Links = %v", posts[1].Links)
	}
}

func TestPostWebURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		uri     string
		profile string
		want    string
	}{
		{
			name:    "with handle",
			uri:     "at://did:plc:abc/app.bsky.feed.post/3kxyz",
			profile: "bot.example.com",
			want:    "https://bsky.app/profile/bot.example.com/post/3kxyz",
		},
		{
			name: "falls back to did",
			uri:  "at://did:plc:abc/app.bsky.feed.post/3kxyz",
			want: "https://bsky.app/profile/did:plc:abc/post/3kxyz",
		},
		{
			name: "not a post record",
			uri:  "at://did:plc:abc/app.bsky.feed.like/3kxyz",
			want: "",
		},
		{
			name: "not an at uri",
			uri:  "https://example.com",
			want: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PostWebURL(tt.uri, tt.profile); got != tt.want {
				t.Errorf("PostWebURL() = %q, want %q", got, tt.want)
			}
		})
	}
}
