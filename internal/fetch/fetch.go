// Package fetch is the transport used to pull remote archives into memory.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrTransport marks every failure raised while fetching a resource:
// connection errors, unreadable bodies and non-2xx responses.
var ErrTransport = errors.New("transport error")

// StatusError is returned (wrapped in ErrTransport) for non-2xx responses.
type StatusError struct {
	URL        string
	StatusCode int
	Status     string
	Body       string // first bytes of the response body, for context
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("bad status '%s' fetching %s", e.Status, e.URL)
	}
	return fmt.Sprintf("bad status '%s' fetching %s: %s", e.Status, e.URL, e.Body)
}

// Fetcher returns the full body of a resource.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Options configures an HTTPFetcher.
type Options struct {
	// Timeout bounds a whole request including the body read. Zero disables it.
	Timeout time.Duration

	// UserAgent is sent with every request when non-empty.
	UserAgent string
}

// DefaultOptions mirrors the defaults of the CLI.
func DefaultOptions() Options {
	return Options{
		Timeout:   120 * time.Second,
		UserAgent: "zipfetch/0.3 (Go-client)",
	}
}

// HTTPFetcher fetches resources with a plain GET.
type HTTPFetcher struct {
	client    *http.Client
	userAgent string
}

// NewHTTPFetcher creates a fetcher with its own http.Client.
func NewHTTPFetcher(opts Options) *HTTPFetcher {
	return &HTTPFetcher{
		client:    &http.Client{Timeout: opts.Timeout},
		userAgent: opts.UserAgent,
	}
}

// NewHTTPFetcherWithClient wraps an existing client, e.g. httptest.Server.Client().
func NewHTTPFetcherWithClient(client *http.Client, userAgent string) *HTTPFetcher {
	return &HTTPFetcher{client: client, userAgent: userAgent}
}

// Fetch GETs url and returns the body bytes. It handles response closing
// and non-2xx status codes.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: create request for %s: %w", ErrTransport, url, err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	req.Header.Set("Accept", "application/zip,application/octet-stream,*/*")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: http do request for %s: %w", ErrTransport, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Read some of the body for context on error
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: %w", ErrTransport, &StatusError{
			URL:        url,
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(bodyBytes),
		})
	}

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed reading body from %s: %w", ErrTransport, url, err)
	}
	return bodyBytes, nil
}
