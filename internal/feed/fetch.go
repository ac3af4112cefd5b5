package feed

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/roach88/citytrain/internal/ast"
)

// DefaultMaxBytes caps the size of a fetched feed.
const DefaultMaxBytes = 10 << 20

// Fetcher loads feeds over HTTP(S), from file:// URLs or from bare paths.
type Fetcher struct {
	client   *http.Client
	maxBytes int64
}

// NewFetcher creates a Fetcher. A nil client gets a 20s timeout client.
func NewFetcher(client *http.Client) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	return &Fetcher{client: client, maxBytes: DefaultMaxBytes}
}

// Fetch retrieves and decodes the feed at src.
func (f *Fetcher) Fetch(ctx context.Context, src string) (*ast.Feed, error) {
	body, err := f.open(ctx, src)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	feed, err := Decode(io.LimitReader(body, f.maxBytes))
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", src, err)
	}
	if feed.FeedURL == "" && IsRemote(src) {
		feed.FeedURL = src
	}
	return feed, nil
}

func (f *Fetcher) open(ctx context.Context, src string) (io.ReadCloser, error) {
	if strings.TrimSpace(src) == "" {
		return nil, fmt.Errorf("fetch: empty source")
	}

	if !IsRemote(src) {
		path := src
		if strings.HasPrefix(src, "file://") {
			u, err := url.Parse(src)
			if err != nil {
				return nil, fmt.Errorf("fetch %s: %w", src, err)
			}
			path = u.Path
		}
		file, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w", src, err)
		}
		return file, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", src, err)
	}
	req.Header.Set("Accept", "application/feed+json, application/json")
	req.Header.Set("User-Agent", "citytrain/1.0")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", src, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("fetch %s: unexpected status %s", src, resp.Status)
	}
	return resp.Body, nil
}

// IsRemote reports whether src is an absolute http(s) URL with a host.
// Anything else is read from the local filesystem by Fetch.
func IsRemote(src string) bool {
	u, err := url.Parse(src)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
