package upload

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"
)

// DefaultMaxBytes caps downloads from the context-menu path.
const DefaultMaxBytes = 20 * 1024 * 1024

// Fetcher downloads images for the context-menu path.
type Fetcher struct {
	httpClient *http.Client
	maxBytes   int64
}

// NewFetcher creates a Fetcher. A zero maxBytes uses DefaultMaxBytes.
func NewFetcher(timeout time.Duration, maxBytes int64) *Fetcher {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Fetcher{
		httpClient: &http.Client{Timeout: timeout},
		maxBytes:   maxBytes,
	}
}

// FromURL downloads rawURL. Only the scheme, the status code and the size are checked;
// the image itself is validated by the server.
func (f *Fetcher) FromURL(ctx context.Context, rawURL string) (Payload, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return Payload{}, fmt.Errorf("parse image url: %w", err)
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return Payload{}, fmt.Errorf("unsupported image url scheme %q", u.Scheme)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Payload{}, fmt.Errorf("build image request: %w", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return Payload{}, fmt.Errorf("fetch image: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return Payload{}, fmt.Errorf("fetch image: status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return Payload{}, fmt.Errorf("read image body: %w", err)
	}
	if int64(len(data)) > f.maxBytes {
		return Payload{}, fmt.Errorf("image exceeds limit of %d bytes", f.maxBytes)
	}

	return NewPayload(nameFromURL(u, resp.Header.Get("Content-Type")), rawURL, data), nil
}

// nameFromURL derives a filename for the multipart form from the URL path, falling back
// to an extension guessed from the content type.
func nameFromURL(u *url.URL, contentType string) string {
	base := path.Base(u.Path)
	if base != "" && base != "." && base != "/" && strings.Contains(base, ".") {
		return base
	}

	ext := ".bin"
	switch {
	case strings.Contains(contentType, "png"):
		ext = ".png"
	case strings.Contains(contentType, "jpeg"):
		ext = ".jpg"
	case strings.Contains(contentType, "gif"):
		ext = ".gif"
	case strings.Contains(contentType, "webp"):
		ext = ".webp"
	}

	return "image" + ext
}
