// Package api provides the resilient HTTP client used to fetch dashboard JSON.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/littleredflower/dashcache/internal/output"
	"github.com/littleredflower/dashcache/internal/version"
)

const (
	// DefaultTimeout bounds each attempt, not the whole call.
	DefaultTimeout = 15 * time.Second
	// DefaultMaxRetries is the number of retries after the first attempt.
	DefaultMaxRetries = 2

	baseDelay       = 1 * time.Second
	maxDelay        = 5 * time.Second
	maxBodyBytes    = 8 << 20
	maxErrBodyBytes = 64 << 10
)

// RequestInfo describes one attempt.
type RequestInfo struct {
	Method  string
	URL     string
	Host    string
	Attempt int
}

// RequestResult describes how an attempt ended.
type RequestResult struct {
	StatusCode int
	Duration   time.Duration
	Retryable  bool
	Error      error
}

// Hooks observes requests. All methods are called synchronously.
type Hooks interface {
	OnRequestStart(ctx context.Context, info RequestInfo) context.Context
	OnRequestEnd(ctx context.Context, info RequestInfo, result RequestResult)
	OnRetry(ctx context.Context, info RequestInfo, attempt int, err error)
}

// Gate guards an upstream host. Admit is asked once per call before the
// first attempt, so a circuit opened mid-call never eats into its retries.
// Allow is asked before every attempt and runs under the attempt timeout.
// Done learns each attempt's outcome.
type Gate interface {
	Admit(host string) error
	Allow(ctx context.Context, host string) error
	Done(host string, err error)
}

// Response wraps a successful response.
type Response struct {
	Data       json.RawMessage
	StatusCode int
	Headers    http.Header
	Attempts   int
}

// UnmarshalData unmarshals the response data into the given value.
func (r *Response) UnmarshalData(v any) error {
	return json.Unmarshal(r.Data, v)
}

// Client is an HTTP client for read-only JSON endpoints.
type Client struct {
	httpClient     *http.Client
	timeout        time.Duration
	maxRetries     int
	gate           Gate
	hooks          Hooks
	userAgent      string
	acceptLanguage string
	sleep          func(ctx context.Context, d time.Duration) error
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the per-attempt timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithMaxRetries sets the retry budget. Zero disables retries.
func WithMaxRetries(n int) Option {
	return func(c *Client) {
		if n >= 0 {
			c.maxRetries = n
		}
	}
}

// WithGate installs a circuit breaker / rate limiter.
func WithGate(g Gate) Option {
	return func(c *Client) { c.gate = g }
}

// WithHooks installs request observers.
func WithHooks(h Hooks) Option {
	return func(c *Client) { c.hooks = h }
}

// WithAcceptLanguage sets the Accept-Language header sent on every request.
func WithAcceptLanguage(v string) Option {
	return func(c *Client) { c.acceptLanguage = v }
}

// WithSleep replaces the backoff sleep. Tests use it to record delays.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Client) { c.sleep = fn }
}

// NewClient creates a new API client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		timeout:    DefaultTimeout,
		maxRetries: DefaultMaxRetries,
		userAgent:  version.UserAgent(),
		sleep:      sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Timeout returns the per-attempt timeout.
func (c *Client) Timeout() time.Duration { return c.timeout }

// MaxRetries returns the retry budget.
func (c *Client) MaxRetries() int { return c.maxRetries }

// Fetch returns the JSON body of a GET to rawURL.
func (c *Client) Fetch(ctx context.Context, rawURL string, header http.Header) (json.RawMessage, error) {
	resp, err := c.Get(ctx, rawURL, header)
	if err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// Get performs a GET with per-attempt timeout and retries.
func (c *Client) Get(ctx context.Context, rawURL string, header http.Header) (*Response, error) {
	return c.Do(ctx, http.MethodGet, rawURL, header)
}

// Post performs a bodiless POST. Admin endpoints use it; it is never retried.
func (c *Client) Post(ctx context.Context, rawURL string) (*Response, error) {
	info := RequestInfo{Method: http.MethodPost, URL: rawURL, Host: hostOf(rawURL), Attempt: 1}
	if c.gate != nil {
		if err := c.gate.Admit(info.Host); err != nil {
			return nil, err
		}
	}
	return c.singleRequest(ctx, info, nil)
}

// Do runs method against rawURL, retrying transient failures.
// The delay before retry i is Backoff(i).
func (c *Client) Do(ctx context.Context, method, rawURL string, header http.Header) (*Response, error) {
	info := RequestInfo{Method: method, URL: rawURL, Host: hostOf(rawURL)}
	if c.gate != nil {
		if err := c.gate.Admit(info.Host); err != nil {
			return nil, err
		}
	}

	for attempt := 1; ; attempt++ {
		info.Attempt = attempt
		resp, err := c.singleRequest(ctx, info, header)
		if err == nil {
			resp.Attempts = attempt
			return resp, nil
		}

		if !output.IsRetryable(err) || attempt > c.maxRetries {
			return nil, err
		}

		if c.hooks != nil {
			c.hooks.OnRetry(ctx, info, attempt, err)
		}
		if serr := c.sleep(ctx, Backoff(attempt)); serr != nil {
			return nil, serr
		}
	}
}

// singleRequest runs one attempt. The gate's wait and the request share
// one per-attempt deadline.
func (c *Client) singleRequest(ctx context.Context, info RequestInfo, header http.Header) (*Response, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if c.gate != nil {
		if err := c.gate.Allow(attemptCtx, info.Host); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if errors.Is(err, context.DeadlineExceeded) {
				e := output.ErrTimeout(c.timeout)
				e.Cause = err
				return nil, e
			}
			return nil, err
		}
	}

	if c.hooks != nil {
		ctx = c.hooks.OnRequestStart(ctx, info)
	}

	start := time.Now()
	resp, err := c.attempt(ctx, attemptCtx, info, header)

	if c.gate != nil {
		c.gate.Done(info.Host, err)
	}
	if c.hooks != nil {
		result := RequestResult{Duration: time.Since(start), Error: err, Retryable: output.IsRetryable(err)}
		if resp != nil {
			result.StatusCode = resp.StatusCode
		} else if e := (*output.Error)(nil); errors.As(err, &e) {
			result.StatusCode = e.HTTPStatus
		}
		c.hooks.OnRequestEnd(ctx, info, result)
	}
	return resp, err
}

func (c *Client) attempt(ctx, attemptCtx context.Context, info RequestInfo, header http.Header) (*Response, error) {
	req, err := http.NewRequestWithContext(attemptCtx, info.Method, info.URL, nil)
	if err != nil {
		return nil, output.ErrUsageHint(fmt.Sprintf("Invalid URL: %s", info.URL), err.Error())
	}

	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	if c.acceptLanguage != "" {
		req.Header.Set("Accept-Language", c.acceptLanguage)
	}
	for k, vs := range header {
		req.Header[k] = append([]string(nil), vs...)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.classifyTransportError(ctx, attemptCtx, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
		if err != nil {
			return nil, c.classifyTransportError(ctx, attemptCtx, err)
		}
		if len(body) > maxBodyBytes {
			return nil, output.ErrAPI(resp.StatusCode, fmt.Sprintf("Response body exceeds %d bytes", maxBodyBytes))
		}
		if len(strings.TrimSpace(string(body))) == 0 {
			body = []byte("null")
		}
		if !json.Valid(body) {
			return nil, output.ErrAPI(resp.StatusCode, "Response is not valid JSON")
		}
		return &Response{
			Data:       body,
			StatusCode: resp.StatusCode,
			Headers:    resp.Header,
		}, nil

	case resp.StatusCode == http.StatusTooManyRequests:
		e := output.ErrRateLimit(parseRetryAfter(resp.Header.Get("Retry-After")))
		if detail := errorDetail(resp.Body); detail != "" {
			e.Hint = detail
		}
		return nil, e

	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return nil, output.ErrHTTP(resp.StatusCode, errorDetail(resp.Body))

	case resp.StatusCode >= 500:
		return nil, output.ErrServer(resp.StatusCode, errorDetail(resp.Body))

	default:
		return nil, output.ErrAPI(resp.StatusCode, fmt.Sprintf("HTTP %d", resp.StatusCode))
	}
}

// classifyTransportError separates the per-attempt deadline from caller
// cancellation and plain network failures.
func (c *Client) classifyTransportError(parent, attemptCtx context.Context, err error) error {
	if parent.Err() != nil {
		return parent.Err()
	}
	if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
		e := output.ErrTimeout(c.timeout)
		e.Cause = err
		return e
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		e := output.ErrTimeout(c.timeout)
		e.Cause = err
		return e
	}
	return output.ErrNetwork(err)
}

// Backoff returns the delay before retry i (1-indexed): 1s, 2s, 4s, capped at 5s.
func Backoff(i int) time.Duration {
	if i < 1 {
		i = 1
	}
	if i > 4 {
		return maxDelay
	}
	return min(baseDelay*time.Duration(1<<(i-1)), maxDelay)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// errorDetail pulls a human-readable message out of an error body.
func errorDetail(body io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(body, maxErrBodyBytes))
	if err != nil || len(raw) == 0 {
		return ""
	}
	var apiErr struct {
		Detail  any    `json:"detail"`
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &apiErr) != nil {
		return ""
	}
	if s, ok := apiErr.Detail.(string); ok && s != "" {
		return s
	}
	if apiErr.Error != "" {
		return apiErr.Error
	}
	return apiErr.Message
}

// parseRetryAfter parses the Retry-After header value (seconds or HTTP date).
func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(strings.TrimSpace(header)); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	if t, err := http.ParseTime(header); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Host
}
