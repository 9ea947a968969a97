package rawhttp

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jgivc/giblets/internal/common"
)

const (
	// maxResponseBytes bounds a single fetched file (64 MB).
	maxResponseBytes = 64 << 20
)

type (
	// Client fetches raw file content from a source-control raw-content host.
	Client struct {
		httpClient *http.Client
		baseURL    string
		token      string
		userAgent  string
		log        *slog.Logger
	}

	ClientOption func(*Client)
)

// WithHTTPClient sets a custom HTTP client, useful for tests or proxy configurations.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

// WithBaseURL overrides the raw-content base URL, primarily for test servers.
func WithBaseURL(base string) ClientOption {
	return func(cl *Client) {
		cl.baseURL = strings.TrimRight(base, "/") + "/"
	}
}

// WithTimeout bounds every request made by the default HTTP client.
func WithTimeout(d time.Duration) ClientOption {
	return func(cl *Client) {
		cl.httpClient = &http.Client{
			Timeout: d,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}
}

// WithToken sets a token sent as a bearer Authorization header.
func WithToken(token string) ClientOption {
	return func(cl *Client) {
		cl.token = token
	}
}

func WithUserAgent(ua string) ClientOption {
	return func(cl *Client) {
		cl.userAgent = ua
	}
}

func NewClient(log *slog.Logger, opts ...ClientOption) *Client {
	c := &Client{
		httpClient: http.DefaultClient,
		baseURL:    "https://raw.githubusercontent.com/",
		userAgent:  "giblets/dev",
		log:        log.With(slog.String("item", "RawHTTPClient")),
	}
	for _, opt := range opts {
		opt(c)
	}

	return c
}

// URL returns the absolute URL of a repository path "owner/repo/version/path".
func (c *Client) URL(remotePath string) string {
	return c.baseURL + strings.TrimLeft(remotePath, "/")
}

// Fetch downloads the repository path and returns its body. Any non-200 status is an error.
func (c *Client) Fetch(ctx context.Context, remotePath string) ([]byte, error) {
	url := c.URL(remotePath)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("cannot create request for %s: %w", url, err)
	}

	req.Header.Set("User-Agent", c.userAgent)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cannot get %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s returned %d", common.ErrUnexpectedStatus, url, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", url, err)
	}

	if len(data) > maxResponseBytes {
		return nil, fmt.Errorf("response from %s exceeds %d bytes", url, maxResponseBytes)
	}

	c.log.Debug("Fetched", slog.String("url", url), slog.Int("size", len(data)))

	return data, nil
}
