package bluesky

import (
	"context"

	"bsky-rss-bot/internal/usecase/publish"
)

// RemoteClientAdapter exposes a Client through the publish-layer port so
// the usecase never imports transport types.
type RemoteClientAdapter struct {
	client *Client
}

// NewRemoteClientAdapter wraps a Client for the publish layer.
func NewRemoteClientAdapter(client *Client) *RemoteClientAdapter {
	return &RemoteClientAdapter{client: client}
}

// Authenticate implements publish.RemoteClient.
func (a *RemoteClientAdapter) Authenticate(ctx context.Context) error {
	return a.client.Authenticate(ctx)
}

// SubmitPost implements publish.RemoteClient.
func (a *RemoteClientAdapter) SubmitPost(ctx context.Context, post publish.OutgoingPost) (publish.PostRef, error) {
	out := Post{
		Text:      post.Text,
		LinkURL:   post.LinkURL,
		CreatedAt: post.CreatedAt,
	}
	if post.Image != nil {
		out.Image = &Image{
			Data:     post.Image.Data,
			MimeType: post.Image.MimeType,
			Alt:      post.Image.Alt,
			Width:    post.Image.Width,
			Height:   post.Image.Height,
		}
	}
	ref, err := a.client.SubmitPost(ctx, out)
	if err != nil {
		return publish.PostRef{}, err
	}
	return publish.PostRef{URI: ref.URI, CID: ref.CID, URL: ref.URL}, nil
}

// ListRecentPosts implements publish.RemoteClient.
func (a *RemoteClientAdapter) ListRecentPosts(ctx context.Context, limit int) ([]publish.RemotePost, error) {
	posts, err := a.client.ListRecentPosts(ctx, limit)
	if err != nil {
		return nil, err
	}
	out := make([]publish.RemotePost, len(posts))
	for i, p := range posts {
		out[i] = publish.RemotePost{Text: p.Text, Links: p.Links}
	}
	return out, nil
}
