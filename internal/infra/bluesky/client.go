// Package bluesky implements the remote client collaborator against the
// AT Protocol XRPC API: session management, post submission with link
// facets and image embeds, and recent-post listing for backup dedup.
package bluesky

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"bsky-rss-bot/internal/resilience/circuitbreaker"
	"bsky-rss-bot/internal/resilience/retry"
)

const (
	// DefaultEndpoint is the public PDS entrypoint.
	DefaultEndpoint = "https://bsky.social"

	postCollection = "app.bsky.feed.post"

	// maxResponseBytes caps XRPC response reads.
	maxResponseBytes = 4 * 1024 * 1024

	defaultRateLimitWait = 60 * time.Second
)

// Config holds the settings for one account's client.
type Config struct {
	// Endpoint is the PDS base URL; empty means DefaultEndpoint.
	Endpoint string

	// Identifier is the account handle or email used to log in.
	Identifier string

	// AppPassword is the scoped credential for automated posting.
	AppPassword string

	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Post is one outgoing post payload.
type Post struct {
	Text string

	// LinkURL, when present in Text, is annotated with a link facet so
	// the service renders it clickable.
	LinkURL string

	CreatedAt time.Time
	Image     *Image
}

// Image is an upload-ready post image.
type Image struct {
	Data     []byte
	MimeType string
	Alt      string

	// Width and Height, when known, are sent as the embed aspect ratio
	// so clients can lay the image out before loading it.
	Width  int
	Height int
}

// PostRef identifies a successfully created remote post.
type PostRef struct {
	URI string // at:// record URI
	CID string
	URL string // human-facing bsky.app URL
}

// RecentPost is one of the account's existing remote posts, reduced to
// what the backup checker matches against.
type RecentPost struct {
	URI   string
	Text  string
	Links []string
}

// Client talks XRPC to a single account's PDS. Safe for use from one
// account runner goroutine; session state is mutex-guarded for the
// background refresh path.
type Client struct {
	endpoint   string
	identifier string
	password   string

	httpClient *http.Client
	logger     *slog.Logger
	breaker    *circuitbreaker.CircuitBreaker
	loginRetry retry.Config

	mu      sync.Mutex
	session *session
}

// NewClient creates a Client for one account.
func NewClient(cfg Config) *Client {
	endpoint := strings.TrimRight(cfg.Endpoint, "/")
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		endpoint:   endpoint,
		identifier: cfg.Identifier,
		password:   cfg.AppPassword,
		httpClient: httpClient,
		logger:     logger,
		breaker:    circuitbreaker.New(circuitbreaker.PublishConfig()),
		loginRetry: retry.LoginConfig(),
	}
}

// Authenticate creates a session, retrying rate-limited logins with long
// backoff. Call once at startup; later calls replace the session.
func (c *Client) Authenticate(ctx context.Context) error {
	return retry.WithBackoff(ctx, c.loginRetry, func() error {
		return c.createSession(ctx)
	})
}

func (c *Client) createSession(ctx context.Context) error {
	var out struct {
		AccessJwt  string `json:"accessJwt"`
		RefreshJwt string `json:"refreshJwt"`
		DID        string `json:"did"`
		Handle     string `json:"handle"`
	}
	body := map[string]string{
		"identifier": c.identifier,
		"password":   c.password,
	}
	if err := c.xrpcPost(ctx, "com.atproto.server.createSession", body, &out, ""); err != nil {
		return fmt.Errorf("create session: %w", err)
	}

	c.mu.Lock()
	c.session = &session{
		accessJwt:  out.AccessJwt,
		refreshJwt: out.RefreshJwt,
		did:        out.DID,
		handle:     out.Handle,
		expiry:     tokenExpiry(out.AccessJwt),
	}
	c.mu.Unlock()

	c.logger.Info("bluesky session created",
		slog.String("handle", out.Handle),
		slog.String("did", out.DID))
	return nil
}

// refreshSession exchanges the refresh token for a new access token,
// falling back to a full login when the refresh token itself is rejected.
func (c *Client) refreshSession(ctx context.Context) error {
	c.mu.Lock()
	refreshJwt := ""
	if c.session != nil {
		refreshJwt = c.session.refreshJwt
	}
	c.mu.Unlock()

	if refreshJwt == "" {
		return c.Authenticate(ctx)
	}

	var out struct {
		AccessJwt  string `json:"accessJwt"`
		RefreshJwt string `json:"refreshJwt"`
		DID        string `json:"did"`
		Handle     string `json:"handle"`
	}
	if err := c.xrpcPost(ctx, "com.atproto.server.refreshSession", nil, &out, refreshJwt); err != nil {
		c.logger.Warn("session refresh failed, re-authenticating",
			slog.String("error", err.Error()))
		return c.Authenticate(ctx)
	}

	c.mu.Lock()
	c.session = &session{
		accessJwt:  out.AccessJwt,
		refreshJwt: out.RefreshJwt,
		did:        out.DID,
		handle:     out.Handle,
		expiry:     tokenExpiry(out.AccessJwt),
	}
	c.mu.Unlock()
	return nil
}

// currentSession returns a usable session, refreshing or logging in first
// when needed.
func (c *Client) currentSession(ctx context.Context) (*session, error) {
	c.mu.Lock()
	sess := c.session
	c.mu.Unlock()

	switch {
	case sess == nil:
		if err := c.Authenticate(ctx); err != nil {
			return nil, err
		}
	case sess.expiringSoon(time.Now()):
		if err := c.refreshSession(ctx); err != nil {
			return nil, err
		}
	default:
		return sess, nil
	}

	c.mu.Lock()
	sess = c.session
	c.mu.Unlock()
	if sess == nil {
		return nil, fmt.Errorf("no session after authentication")
	}
	return sess, nil
}

// SubmitPost creates one post record. A single attempt: the caller owns
// the retry policy. The circuit breaker rejects attempts while the PDS
// is failing hard.
func (c *Client) SubmitPost(ctx context.Context, post Post) (PostRef, error) {
	requestID := uuid.NewString()

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.doSubmit(ctx, post, requestID)
	})
	if err != nil {
		return PostRef{}, err
	}
	return result.(PostRef), nil
}

func (c *Client) doSubmit(ctx context.Context, post Post, requestID string) (PostRef, error) {
	sess, err := c.currentSession(ctx)
	if err != nil {
		return PostRef{}, err
	}

	record := postRecord{
		Type:      postCollection,
		Text:      post.Text,
		CreatedAt: post.CreatedAt.UTC().Format(time.RFC3339),
		Facets:    linkFacets(post.Text, post.LinkURL),
	}

	if post.Image != nil {
		blob, err := c.uploadBlob(ctx, sess, post.Image)
		if err != nil {
			return PostRef{}, fmt.Errorf("upload image blob: %w", err)
		}
		img := embedImage{Alt: post.Image.Alt, Image: blob}
		if post.Image.Width > 0 && post.Image.Height > 0 {
			img.AspectRatio = &aspectRatio{Width: post.Image.Width, Height: post.Image.Height}
		}
		record.Embed = &imagesEmbed{
			Type:   "app.bsky.embed.images",
			Images: []embedImage{img},
		}
	}

	body := map[string]interface{}{
		"repo":       sess.did,
		"collection": postCollection,
		"record":     record,
	}
	var out struct {
		URI string `json:"uri"`
		CID string `json:"cid"`
	}
	if err := c.authedPost(ctx, "com.atproto.repo.createRecord", body, &out); err != nil {
		return PostRef{}, err
	}

	webURL := PostWebURL(out.URI, sess.handle)
	c.logger.Info("post created",
		slog.String("request_id", requestID),
		slog.String("uri", out.URI),
		slog.String("url", webURL))

	return PostRef{URI: out.URI, CID: out.CID, URL: webURL}, nil
}

func (c *Client) uploadBlob(ctx context.Context, sess *session, img *Image) (json.RawMessage, error) {
	endpoint := c.endpoint + "/xrpc/com.atproto.repo.uploadBlob"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(img.Data))
	if err != nil {
		return nil, fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", img.MimeType)
	req.Header.Set("Authorization", "Bearer "+sess.accessJwt)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute upload request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err := classifyResponse(resp, respBody); err != nil {
		return nil, err
	}

	var out struct {
		Blob json.RawMessage `json:"blob"`
	}
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("decode upload response: %w", err)
	}
	return out.Blob, nil
}

// ListRecentPosts returns up to limit of the account's own most recent
// posts, skipping reposts of other authors.
func (c *Client) ListRecentPosts(ctx context.Context, limit int) ([]RecentPost, error) {
	sess, err := c.currentSession(ctx)
	if err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("actor", sess.did)
	query.Set("limit", strconv.Itoa(limit))

	var out struct {
		Feed []struct {
			Post struct {
				URI    string `json:"uri"`
				Author struct {
					DID string `json:"did"`
				} `json:"author"`
				Record struct {
					Text   string  `json:"text"`
					Facets []facet `json:"facets"`
					Embed  *struct {
						External *struct {
							URI string `json:"uri"`
						} `json:"external"`
					} `json:"embed"`
				} `json:"record"`
			} `json:"post"`
		} `json:"feed"`
	}
	if err := c.authedGet(ctx, "app.bsky.feed.getAuthorFeed", query, &out); err != nil {
		return nil, err
	}

	posts := make([]RecentPost, 0, len(out.Feed))
	for _, item := range out.Feed {
		if item.Post.Author.DID != sess.did {
			continue
		}
		rp := RecentPost{URI: item.Post.URI, Text: item.Post.Record.Text}
		for _, f := range item.Post.Record.Facets {
			for _, feat := range f.Features {
				if feat.URI != "" {
					rp.Links = append(rp.Links, feat.URI)
				}
			}
		}
		if emb := item.Post.Record.Embed; emb != nil && emb.External != nil && emb.External.URI != "" {
			rp.Links = append(rp.Links, emb.External.URI)
		}
		posts = append(posts, rp)
	}
	return posts, nil
}

// authedPost runs an authenticated XRPC procedure, re-authenticating once
// when the access token was rejected as expired mid-flight.
func (c *Client) authedPost(ctx context.Context, nsid string, body, out interface{}) error {
	return c.authed(ctx, func(token string) error {
		return c.xrpcPost(ctx, nsid, body, out, token)
	})
}

func (c *Client) authedGet(ctx context.Context, nsid string, query url.Values, out interface{}) error {
	return c.authed(ctx, func(token string) error {
		return c.xrpcGet(ctx, nsid, query, out, token)
	})
}

func (c *Client) authed(ctx context.Context, call func(token string) error) error {
	sess, err := c.currentSession(ctx)
	if err != nil {
		return err
	}
	err = call(sess.accessJwt)
	if !isExpiredToken(err) {
		return err
	}

	if err := c.refreshSession(ctx); err != nil {
		return err
	}
	sess, err = c.currentSession(ctx)
	if err != nil {
		return err
	}
	return call(sess.accessJwt)
}

func isExpiredToken(err error) bool {
	var clientErr *ClientError
	return errors.As(err, &clientErr) && clientErr.Code == "ExpiredToken"
}

// xrpcPost executes one XRPC procedure call.
func (c *Client) xrpcPost(ctx context.Context, nsid string, body, out interface{}, token string) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal %s request: %w", nsid, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/xrpc/"+nsid, reader)
	if err != nil {
		return fmt.Errorf("build %s request: %w", nsid, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return c.do(req, nsid, out)
}

// xrpcGet executes one XRPC query call.
func (c *Client) xrpcGet(ctx context.Context, nsid string, query url.Values, out interface{}, token string) error {
	endpoint := c.endpoint + "/xrpc/" + nsid
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build %s request: %w", nsid, err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return c.do(req, nsid, out)
}

func (c *Client) do(req *http.Request, nsid string, out interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute %s request: %w", nsid, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err := classifyResponse(resp, respBody); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode %s response: %w", nsid, err)
	}
	return nil
}

// classifyResponse maps an XRPC response status into the typed error
// taxonomy the retry layer understands.
func classifyResponse(resp *http.Response, body []byte) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	var xrpcErr struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	_ = json.Unmarshal(body, &xrpcErr)
	message := xrpcErr.Message
	if message == "" {
		message = strings.TrimSpace(string(body))
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return &RateLimitError{
			RetryAfter: extractRetryAfter(resp),
			Message:    message,
		}
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return &ClientError{
			StatusCode: resp.StatusCode,
			Code:       xrpcErr.Error,
			Message:    message,
		}
	case resp.StatusCode >= 500:
		return &ServerError{StatusCode: resp.StatusCode, Message: message}
	}
	return fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, message)
}

// extractRetryAfter reads the server's requested wait from Retry-After
// (seconds) or RateLimit-Reset (unix timestamp), defaulting to one minute.
func extractRetryAfter(resp *http.Response) time.Duration {
	if header := resp.Header.Get("Retry-After"); header != "" {
		if seconds, err := strconv.Atoi(header); err == nil && seconds > 0 {
			return time.Duration(seconds) * time.Second
		}
	}
	if header := resp.Header.Get("RateLimit-Reset"); header != "" {
		if unix, err := strconv.ParseInt(header, 10, 64); err == nil {
			if wait := time.Until(time.Unix(unix, 0)); wait > 0 {
				return wait
			}
		}
	}
	return defaultRateLimitWait
}

type postRecord struct {
	Type      string       `json:"$type"`
	Text      string       `json:"text"`
	CreatedAt string       `json:"createdAt"`
	Facets    []facet      `json:"facets,omitempty"`
	Embed     *imagesEmbed `json:"embed,omitempty"`
}

type facet struct {
	Index    facetIndex     `json:"index"`
	Features []facetFeature `json:"features"`
}

type facetIndex struct {
	ByteStart int `json:"byteStart"`
	ByteEnd   int `json:"byteEnd"`
}

type facetFeature struct {
	Type string `json:"$type"`
	URI  string `json:"uri"`
}

type imagesEmbed struct {
	Type   string       `json:"$type"`
	Images []embedImage `json:"images"`
}

type embedImage struct {
	Alt         string          `json:"alt"`
	Image       json.RawMessage `json:"image"`
	AspectRatio *aspectRatio    `json:"aspectRatio,omitempty"`
}

type aspectRatio struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// linkFacets annotates the first occurrence of linkURL inside text with a
// link facet. Index values are byte offsets per the AT Protocol spec.
func linkFacets(text, linkURL string) []facet {
	if linkURL == "" {
		return nil
	}
	start := strings.Index(text, linkURL)
	if start < 0 {
		return nil
	}
	return []facet{{
		Index: facetIndex{ByteStart: start, ByteEnd: start + len(linkURL)},
		Features: []facetFeature{{
			Type: "app.bsky.richtext.facet#link",
			URI:  linkURL,
		}},
	}}
}

// PostWebURL derives the human-facing bsky.app URL from a record URI, e.g.
// at://did:plc:abc/app.bsky.feed.post/xyz -> https://bsky.app/profile/<profile>/post/xyz.
// The record authority is used when no profile handle is supplied.
func PostWebURL(uri, profile string) string {
	rest, ok := strings.CutPrefix(uri, "at://")
	if !ok {
		return ""
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 3 || parts[1] != postCollection {
		return ""
	}
	if profile == "" {
		profile = parts[0]
	}
	return fmt.Sprintf("https://bsky.app/profile/%s/post/%s", profile, parts[2])
}
