// Package fetch retrieves repository URLs over HTTP.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	logging "github.com/ipfs/go-log/v2"
)

var log = logging.Logger("ddebs/fetch")

const (
	DefaultTimeout   = 5 * time.Minute
	DefaultUserAgent = "ddebsyms/1.0"
)

// StatusError is returned when the server answers with anything but 200 OK.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e StatusError) Error() string {
	return fmt.Sprintf("GET %s: HTTP %d", e.URL, e.StatusCode)
}

// HTTPFetcher downloads URLs with a bounded per-request timeout. An expired
// timeout surfaces as an ordinary error, so the caller skips the unit of work
// for this run.
type HTTPFetcher struct {
	client    *http.Client
	userAgent string
}

// Option configures an HTTPFetcher.
type Option func(*HTTPFetcher)

// WithTimeout bounds each request, body included.
func WithTimeout(d time.Duration) Option {
	return func(f *HTTPFetcher) {
		f.client.Timeout = d
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(f *HTTPFetcher) {
		f.userAgent = ua
	}
}

// WithClient replaces the underlying client. Its Timeout is left as is.
func WithClient(c *http.Client) Option {
	return func(f *HTTPFetcher) {
		f.client = c
	}
}

// NewHTTPFetcher creates a fetcher.
func NewHTTPFetcher(opts ...Option) *HTTPFetcher {
	f := &HTTPFetcher{
		client:    &http.Client{Timeout: DefaultTimeout},
		userAgent: DefaultUserAgent,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch copies the body at url into w.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string, w io.Writer) error {
	resp, err := f.Get(ctx, url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return fmt.Errorf("reading %s: %w", url, err)
	}
	log.Debugw("fetched", "url", url, "bytes", n)
	return nil
}

// Get issues a GET request and returns the response if it is 200 OK. The
// caller closes the body.
func (f *HTTPFetcher) Get(ctx context.Context, url string) (*http.Response, error) {
	return f.do(ctx, http.MethodGet, url)
}

// Head reports whether url answers a HEAD request with 200 OK.
func (f *HTTPFetcher) Head(ctx context.Context, url string) (bool, error) {
	req, err := f.request(ctx, http.MethodHead, url)
	if err != nil {
		return false, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("HEAD %s: %w", url, err)
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK, nil
}

func (f *HTTPFetcher) do(ctx context.Context, method, url string) (*http.Response, error) {
	req, err := f.request(ctx, method, url)
	if err != nil {
		return nil, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, url, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, StatusError{URL: url, StatusCode: resp.StatusCode}
	}
	return resp, nil
}

func (f *HTTPFetcher) request(ctx context.Context, method, url string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	return req, nil
}
