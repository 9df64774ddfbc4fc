package speakers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"time"
)

// metaDescriptionPattern pulls the description meta tag out of a video or
// channel page
var metaDescriptionPattern = regexp.MustCompile(`<meta\s+(?:name|property)="(?:og:)?description"\s+content="([^"]*)"`)

// HTTPChannelFetcher retrieves a channel or video page and extracts its
// description meta tag
type HTTPChannelFetcher struct {
	client *http.Client
}

// NewHTTPChannelFetcher creates a fetcher with a bounded timeout
func NewHTTPChannelFetcher(timeout time.Duration) *HTTPChannelFetcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPChannelFetcher{client: &http.Client{Timeout: timeout}}
}

func (f *HTTPChannelFetcher) Description(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetching %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetching %s: status %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", url, err)
	}

	if m := metaDescriptionPattern.FindSubmatch(body); m != nil {
		return string(m[1]), nil
	}
	return "", nil
}
