// ABOUTME: HTTP client for the Instantly API with timeout, rate budget, and GET retries.
// ABOUTME: Surfaces non-2xx responses as APIError and transport failures unchanged.

package instantly

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// DefaultBaseURL is the Instantly API v2 root.
const DefaultBaseURL = "https://api.instantly.ai/api/v2"

// DefaultTimeout bounds every backend call.
const DefaultTimeout = 30 * time.Second

// DefaultMaxRetries is the number of retries for idempotent requests.
const DefaultMaxRetries = 2

// Instantly's documented request budget per workspace.
const (
	RequestBudget = 100
	BudgetWindow  = 10 * time.Second
)

// maxResponseBody caps how much of a response body is read.
const maxResponseBody = 8 << 20

// Response is a successful backend reply.
type Response struct {
	Status int
	Data   json.RawMessage
}

// Decode unmarshals the response data into v.
func (r *Response) Decode(v any) error {
	if len(r.Data) == 0 {
		return nil
	}
	return json.Unmarshal(r.Data, v)
}

// APIError is a non-2xx reply from the backend.
type APIError struct {
	Status  int
	Message string
	Data    json.RawMessage
}

func (e *APIError) Error() string {
	return fmt.Sprintf("instantly api status %d: %s", e.Status, e.Message)
}

// HTTPStatus returns the response status code.
func (e *APIError) HTTPStatus() int { return e.Status }

// BackendMessage returns the message extracted from the response body.
func (e *APIError) BackendMessage() string { return e.Message }

// Options configures a Client.
type Options struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	MaxRetries int
	Logger     *slog.Logger

	// HTTPClient overrides the transport; tests point it at httptest servers.
	HTTPClient *http.Client

	// OnRetry is called before each retry attempt.
	OnRetry func(method, path string, attempt int)
}

// Client calls the Instantly API on behalf of one credential.
type Client struct {
	baseURL    string
	apiKey     string
	timeout    time.Duration
	maxRetries int
	http       *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
	onRetry    func(method, path string, attempt int)
	backoff    time.Duration
}

// New returns a client with its own connection pool and rate limiter.
func New(opts Options) *Client {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	maxRetries := opts.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Transport: http.DefaultTransport.(*http.Transport).Clone()}
	}

	return &Client{
		baseURL:    baseURL,
		apiKey:     opts.APIKey,
		timeout:    timeout,
		maxRetries: maxRetries,
		http:       httpClient,
		limiter:    rate.NewLimiter(rate.Every(BudgetWindow/RequestBudget), RequestBudget),
		logger:     logger,
		onRetry:    opts.OnRetry,
		backoff:    500 * time.Millisecond,
	}
}

// BaseURL returns the API root this client targets.
func (c *Client) BaseURL() string { return c.baseURL }

// Call performs one logical request. body, when non-nil, is sent as JSON.
// GET requests are retried on 429, 5xx and transport failures.
func (c *Client) Call(ctx context.Context, method, path string, query url.Values, body any) (*Response, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}
	}

	attempts := 1
	if method == http.MethodGet {
		attempts += c.maxRetries
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			if c.onRetry != nil {
				c.onRetry(method, path, attempt)
			}
			c.logger.Debug("retrying backend call",
				"method", method,
				"path", path,
				"attempt", attempt,
				"error", lastErr,
			)
			if err := sleepCtx(ctx, c.retryDelay(attempt, lastErr)); err != nil {
				return nil, stripRetryHint(lastErr)
			}
		}

		resp, err := c.do(ctx, method, path, query, payload)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !retryable(err) {
			return nil, stripRetryHint(err)
		}
	}
	return nil, stripRetryHint(lastErr)
}

// do performs a single HTTP round trip bounded by the client timeout.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, payload []byte) (*Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("waiting for request budget: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	reqURL := c.baseURL + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, reqURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("reading %s %s response: %w", method, path, err)
	}

	c.logger.Debug("backend call",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"duration", time.Since(start),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{
			Status:  resp.StatusCode,
			Message: errorMessage(resp.StatusCode, data),
		}
		if json.Valid(data) {
			apiErr.Data = data
		}
		return nil, &retryAfterError{APIError: apiErr, after: parseRetryAfter(resp.Header.Get("Retry-After"))}
	}

	out := &Response{Status: resp.StatusCode}
	if len(bytes.TrimSpace(data)) > 0 {
		if !json.Valid(data) {
			return nil, fmt.Errorf("decoding %s %s response: invalid JSON", method, path)
		}
		out.Data = data
	}
	return out, nil
}

// Close releases idle connections held by this client.
func (c *Client) Close() {
	c.http.CloseIdleConnections()
}

// retryAfterError carries the server's Retry-After hint alongside the APIError.
type retryAfterError struct {
	*APIError
	after time.Duration
}

func (e *retryAfterError) Unwrap() error { return e.APIError }

func stripRetryHint(err error) error {
	var ra *retryAfterError
	if errors.As(err, &ra) {
		return ra.APIError
	}
	return err
}

func retryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status == http.StatusTooManyRequests || apiErr.Status >= 500
	}
	// A timed-out attempt already spent the full budget; budget waits fail
	// only when the caller's context is done.
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return false
	}
	return true
}

func (c *Client) retryDelay(attempt int, lastErr error) time.Duration {
	var ra *retryAfterError
	if errors.As(lastErr, &ra) && ra.after > 0 {
		return ra.after
	}
	return c.backoff << (attempt - 1)
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs < 0 {
		return 0
	}
	if d := time.Duration(secs) * time.Second; d <= BudgetWindow {
		return d
	}
	return BudgetWindow
}

// errorMessage extracts a human-readable message from an error body.
func errorMessage(status int, data []byte) string {
	var body struct {
		Message string `json:"message"`
		Error   any    `json:"error"`
	}
	if err := json.Unmarshal(data, &body); err == nil {
		if body.Message != "" {
			return body.Message
		}
		switch e := body.Error.(type) {
		case string:
			if e != "" {
				return e
			}
		case map[string]any:
			if m, ok := e["message"].(string); ok && m != "" {
				return m
			}
		}
	}
	if text := strings.TrimSpace(string(data)); text != "" && len(text) <= 200 {
		return text
	}
	return http.StatusText(status)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
