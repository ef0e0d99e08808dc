package trending

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultBaseURL   = "https://github.com"
	defaultUserAgent = "github-trending-repos/1.0"
	defaultTimeout   = 30 * time.Second
)

// HTTPFetcher fetches one trending page per category from GitHub.
type HTTPFetcher struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
}

// HTTPFetcherConfig holds configuration for the HTTP fetcher.
type HTTPFetcherConfig struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
}

// NewHTTPFetcher creates a fetcher for github.com/trending pages.
func NewHTTPFetcher(cfg HTTPFetcherConfig) *HTTPFetcher {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = defaultUserAgent
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &HTTPFetcher{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL:   baseURL,
		userAgent: userAgent,
	}
}

// Fetch retrieves and parses the daily trending page for a category.
// The empty category fetches the all-languages page.
func (f *HTTPFetcher) Fetch(ctx context.Context, category string) ([]Repo, error) {
	pageURL := f.pageURL(category)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", pageURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("trending page returned status %d for %q", resp.StatusCode, CategoryLabel(category))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	return Extract(body, category), nil
}

func (f *HTTPFetcher) pageURL(category string) string {
	if category == "" {
		return f.baseURL + "/trending?since=daily"
	}
	// PathEscape leaves "+" alone, but GitHub wants c%2B%2B.
	slug := strings.ReplaceAll(url.PathEscape(category), "+", "%2B")
	return f.baseURL + "/trending/" + slug + "?since=daily"
}
