// Package fetch is the retrying HTTP transport every upstream call
// goes through. It owns per-request timeouts and retry with
// exponential backoff; bounding how many requests run at once is the
// orchestrator's job, not this package's.
package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Kind classifies a failed fetch.
type Kind int

const (
	// KindNotFound is definitive: the resource does not exist and the
	// call was not retried.
	KindNotFound Kind = iota + 1
	KindTimeout
	KindHTTPStatus
	KindTransport
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindTimeout:
		return "timeout"
	case KindHTTPStatus:
		return "http_status"
	case KindTransport:
		return "transport"
	}
	return "unknown"
}

// Error is the typed failure a fetch surfaces once its retries are
// exhausted. Cause carries the last underlying error for diagnostics.
type Error struct {
	Kind       Kind
	StatusCode int // set for KindHTTPStatus and KindNotFound
	Attempts   int
	Cause      error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch failed (%s, status %d, %d attempts): %v", e.Kind, e.StatusCode, e.Attempts, e.Cause)
	}
	return fmt.Sprintf("fetch failed (%s, %d attempts): %v", e.Kind, e.Attempts, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

// IsNotFound reports whether err is a definitive 404 outcome.
func IsNotFound(err error) bool {
	var fe *Error
	return errors.As(err, &fe) && fe.Kind == KindNotFound
}

// Policy is the retry policy injected into a Client. MaxAttempts is
// the total number of tries for one logical call; attempt k>1 waits
// BaseBackoff*2^(k-2) first.
type Policy struct {
	MaxAttempts int
	BaseBackoff time.Duration
}

func (p Policy) backoff(attempt int) time.Duration {
	return p.BaseBackoff << (attempt - 2)
}

// Client issues retried HTTP requests over a shared http.Client. It
// never closes an http.Client it did not create, so one connection
// pool can serve every concurrent task of a term.
type Client struct {
	http    *http.Client
	policy  Policy
	timeout time.Duration
	sleep   func(context.Context, time.Duration) error
	log     zerolog.Logger
}

// Option tweaks a Client at construction time.
type Option func(*Client)

// WithHTTPClient shares an existing http.Client (and its pool).
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithSleep replaces the inter-attempt sleep, so backoff math is
// testable without real delays.
func WithSleep(sleep func(context.Context, time.Duration) error) Option {
	return func(c *Client) { c.sleep = sleep }
}

func New(policy Policy, timeout time.Duration, log zerolog.Logger, opts ...Option) *Client {
	c := &Client{
		http:    &http.Client{},
		policy:  policy,
		timeout: timeout,
		sleep:   sleepCtx,
		log:     log.With().Str("component", "fetch").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Get fetches rawURL and returns the response body.
func (c *Client) Get(ctx context.Context, rawURL string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, rawURL, nil, "")
}

// PostForm posts URL-encoded form values and returns the response
// body.
func (c *Client) PostForm(ctx context.Context, rawURL string, form url.Values) ([]byte, error) {
	return c.do(ctx, http.MethodPost, rawURL, []byte(form.Encode()), "application/x-www-form-urlencoded")
}

func (c *Client) do(ctx context.Context, method, rawURL string, body []byte, contentType string) ([]byte, error) {
	var last *Error
	for attempt := 1; attempt <= c.policy.MaxAttempts; attempt++ {
		if attempt > 1 {
			if err := c.sleep(ctx, c.policy.backoff(attempt)); err != nil {
				last.Attempts = attempt - 1
				return nil, last
			}
		}

		data, ferr := c.attempt(ctx, method, rawURL, body, contentType)
		if ferr == nil {
			return data, nil
		}
		ferr.Attempts = attempt
		if ferr.Kind == KindNotFound {
			return nil, ferr
		}
		last = ferr
		c.log.Warn().
			Str("url", rawURL).
			Int("attempt", attempt).
			Str("kind", ferr.Kind.String()).
			Err(ferr.Cause).
			Msg("fetch attempt failed")
	}
	return nil, last
}

func (c *Client) attempt(ctx context.Context, method, rawURL string, body []byte, contentType string) ([]byte, *Error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(reqCtx, method, rawURL, reader)
	if err != nil {
		return nil, &Error{Kind: KindTransport, Cause: err}
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return nil, &Error{Kind: KindTimeout, Cause: err}
		}
		return nil, &Error{Kind: KindTransport, Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, &Error{
			Kind:       KindNotFound,
			StatusCode: resp.StatusCode,
			Cause:      fmt.Errorf("%s %s: status 404", method, rawURL),
		}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &Error{
			Kind:       KindHTTPStatus,
			StatusCode: resp.StatusCode,
			Cause:      fmt.Errorf("%s %s: status %d", method, rawURL, resp.StatusCode),
		}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Kind: KindTransport, Cause: err}
	}
	return data, nil
}

func isTimeout(err error) bool {
	var ne interface{ Timeout() bool }
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return strings.Contains(err.Error(), "Client.Timeout")
}
