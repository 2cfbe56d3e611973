package fetcher

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"net/http"
	"time"

	_ "image/gif"
	_ "image/png"

	"golang.org/x/image/draw"

	"bsky-rss-bot/internal/resilience/retry"
	"bsky-rss-bot/internal/usecase/publish"
)

const (
	// maxBlobBytes is the service-side upload limit for post images.
	maxBlobBytes = 1_000_000

	// maxDimension is the longest side an attached image is scaled to.
	maxDimension = 1024

	// maxDownloadBytes caps how large a source image may be before we
	// refuse to process it at all.
	maxDownloadBytes = 20 * 1024 * 1024
)

// jpegQualities is tried in order until the encoded image fits maxBlobBytes.
var jpegQualities = []int{85, 75, 65, 50, 40}

// ImageFetcher downloads article images and recompresses them to fit the
// remote service's blob limit.
type ImageFetcher struct {
	client      *http.Client
	retryConfig retry.Config
}

// NewImageFetcher creates an ImageFetcher with the given HTTP client.
func NewImageFetcher(client *http.Client) *ImageFetcher {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &ImageFetcher{client: client, retryConfig: retry.ImageFetchConfig()}
}

// Fetch downloads the image at imageURL and returns an upload-ready
// attachment with its MIME type and pixel dimensions. Oversized or
// overlarge-dimension images are scaled down and re-encoded as JPEG;
// images already within limits pass through untouched.
func (f *ImageFetcher) Fetch(ctx context.Context, imageURL string) (publish.PostImage, error) {
	var (
		data        []byte
		contentType string
	)
	err := retry.WithBackoff(ctx, f.retryConfig, func() error {
		var derr error
		data, contentType, derr = f.download(ctx, imageURL)
		return derr
	})
	if err != nil {
		return publish.PostImage{}, err
	}
	return prepareForUpload(data, contentType)
}

func (f *ImageFetcher) download(ctx context.Context, imageURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("build image request: %w", err)
	}
	req.Header.Set("User-Agent", pageUserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("download image: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, "", &retry.HTTPError{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("download image %s", imageURL),
		}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDownloadBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("read image body: %w", err)
	}
	if len(data) > maxDownloadBytes {
		return nil, "", fmt.Errorf("image exceeds %d byte download limit", maxDownloadBytes)
	}
	return data, resp.Header.Get("Content-Type"), nil
}

// prepareForUpload shrinks the image until it fits the blob limit.
// Non-decodable formats pass through untouched when already small enough,
// with unknown (zero) dimensions.
func prepareForUpload(data []byte, contentType string) (publish.PostImage, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		if len(data) <= maxBlobBytes {
			return publish.PostImage{Data: data, MimeType: contentType}, nil
		}
		return publish.PostImage{}, fmt.Errorf("image too large and not decodable: %w", err)
	}

	bounds := src.Bounds()
	if len(data) <= maxBlobBytes && bounds.Dx() <= maxDimension && bounds.Dy() <= maxDimension {
		return publish.PostImage{
			Data:     data,
			MimeType: contentType,
			Width:    bounds.Dx(),
			Height:   bounds.Dy(),
		}, nil
	}

	scaled := scaleDown(src, maxDimension)
	scaledBounds := scaled.Bounds()
	for _, quality := range jpegQualities {
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, scaled, &jpeg.Options{Quality: quality}); err != nil {
			return publish.PostImage{}, fmt.Errorf("encode jpeg: %w", err)
		}
		if buf.Len() <= maxBlobBytes {
			return publish.PostImage{
				Data:     buf.Bytes(),
				MimeType: "image/jpeg",
				Width:    scaledBounds.Dx(),
				Height:   scaledBounds.Dy(),
			}, nil
		}
	}
	return publish.PostImage{}, fmt.Errorf("image still exceeds %d bytes at lowest quality", maxBlobBytes)
}

// scaleDown resizes src so its longest side is at most maxSide, keeping
// the aspect ratio. Images already small enough are returned as-is.
func scaleDown(src image.Image, maxSide int) image.Image {
	bounds := src.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width <= maxSide && height <= maxSide {
		return src
	}

	var newW, newH int
	if width >= height {
		newW = maxSide
		newH = height * maxSide / width
	} else {
		newH = maxSide
		newW = width * maxSide / height
	}
	if newW < 1 {
		newW = 1
	}
	if newH < 1 {
		newH = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, draw.Over, nil)
	return dst
}
