package integrations

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/matzehuels/typecensus/pkg/httputil"
	"github.com/matzehuels/typecensus/pkg/observability"
)

// Options configures a [Client]. Zero values select defaults.
type Options struct {
	HTTPClient *http.Client      // nil: NewHTTPClient(Timeout)
	Timeout    time.Duration     // per request
	Retry      httputil.Policy   // zero: httputil.DefaultPolicy
	Limiter    *httputil.Limiter // nil: unlimited
	Headers    map[string]string // applied to every request
}

// Client provides shared HTTP functionality for registry lookups.
// It handles retry logic, rate limiting and common request headers, and
// reports every exchange to the registered [observability.HTTPHooks].
type Client struct {
	http    *http.Client
	retry   httputil.Policy
	limiter *httputil.Limiter
	headers map[string]string
}

// NewClient creates a Client from opts. Redirects are never followed, even
// when opts.HTTPClient would follow them: a registry answer only counts when
// it comes from the URL that was asked.
func NewClient(opts Options) *Client {
	hc := opts.HTTPClient
	if hc == nil {
		hc = NewHTTPClient(opts.Timeout)
	} else {
		cp := *hc
		cp.CheckRedirect = noRedirect
		hc = &cp
	}
	retry := opts.Retry
	if retry.Attempts == 0 {
		retry = httputil.DefaultPolicy
	}
	return &Client{
		http:    hc,
		retry:   retry,
		limiter: opts.Limiter,
		headers: opts.Headers,
	}
}

// Head sends a HEAD request and returns the final status code.
//
// Transport failures, 429 and 5xx responses are retried under the client's
// policy. When retries are exhausted on a status, that status is returned
// with a nil error; when they are exhausted on a transport failure, the
// error wraps [ErrNetwork].
func (c *Client) Head(ctx context.Context, rawURL string) (int, error) {
	var code int
	err := c.retry.Do(ctx, func() error {
		resp, err := c.do(ctx, http.MethodHead, rawURL, nil)
		if err != nil {
			return err
		}
		resp.Body.Close()
		code = resp.StatusCode
		if se := (&StatusError{Code: code}); se.Transient() {
			return httputil.Retryable(se)
		}
		return nil
	})

	var se *StatusError
	if errors.As(err, &se) {
		return se.Code, nil
	}
	if err != nil {
		return 0, err
	}
	return code, nil
}

// Get performs an HTTP GET request and JSON-decodes the response into v.
// A 404 returns an error wrapping [ErrNotFound].
func (c *Client) Get(ctx context.Context, rawURL string, v any) error {
	return c.retry.Do(ctx, func() error {
		resp, err := c.do(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if err := checkStatus(resp.StatusCode); err != nil {
			return err
		}
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			return fmt.Errorf("decode %s: %w", rawURL, err)
		}
		return nil
	})
}

func (c *Client) do(ctx context.Context, method, rawURL string, body io.Reader) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, err
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	host, path := splitURL(req.URL)
	hooks := observability.HTTP()
	hooks.OnRequest(ctx, method, host, path)
	start := time.Now()

	resp, err := c.http.Do(req)
	if err != nil {
		hooks.OnError(ctx, method, host, path, err)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, httputil.Retryable(fmt.Errorf("%w: %v", ErrNetwork, err))
	}
	hooks.OnResponse(ctx, method, host, path, resp.StatusCode, time.Since(start))
	return resp, nil
}

func checkStatus(code int) error {
	if code >= 200 && code < 300 {
		return nil
	}
	se := &StatusError{Code: code}
	if se.Transient() {
		return httputil.Retryable(se)
	}
	return se
}

func splitURL(u *url.URL) (host, path string) {
	return u.Host, u.EscapedPath()
}
