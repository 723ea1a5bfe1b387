// Package graph is a thin HTTP client for the Meta Graph API. It supplies
// the bearer credential and maps Meta's error envelope onto the domain
// error taxonomy; it knows nothing about how tokens are resolved.
package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/pipeboard-co/meta-ads-mcp/internal/core/domain"
	"github.com/pipeboard-co/meta-ads-mcp/internal/core/ports/driven"
)

// DefaultBaseURL pins the Graph API version all calls go through.
const DefaultBaseURL = "https://graph.facebook.com/v23.0"

const (
	getTimeout  = 10 * time.Second
	postTimeout = 30 * time.Second
)

// Meta error codes that signal an invalid or expired token.
const (
	errCodeInvalidToken = 190
)

// Meta error codes that signal throttling.
var throttleCodes = map[int]bool{
	4:   true, // application request limit
	17:  true, // user request limit
	613: true, // custom rate limit
}

// Ensure Client implements the GraphClient port.
var _ driven.GraphClient = (*Client)(nil)

// Client performs authenticated requests against the Graph API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// Option configures the client.
type Option func(*Client)

// WithBaseURL overrides the Graph API base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// NewClient creates a Graph API client. Outbound calls are throttled to
// stay under Meta's per-app request budget.
func NewClient(logger *slog.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{},
		limiter:    rate.NewLimiter(rate.Limit(10), 20),
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get performs a GET on the given Graph API path.
func (c *Client) Get(ctx context.Context, path, accessToken string, params url.Values) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, path, accessToken, params, getTimeout)
}

// Post performs a POST with form-encoded params.
func (c *Client) Post(ctx context.Context, path, accessToken string, params url.Values) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPost, path, accessToken, params, postTimeout)
}

func (c *Client) do(ctx context.Context, method, path, accessToken string, params url.Values, timeout time.Duration) (json.RawMessage, error) {
	if accessToken == "" {
		return nil, domain.ErrAuthRequired
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	endpoint := c.baseURL + "/" + strings.TrimLeft(path, "/")

	var req *http.Request
	var err error
	if method == http.MethodGet {
		if len(params) > 0 {
			endpoint += "?" + params.Encode()
		}
		req, err = http.NewRequestWithContext(ctx, method, endpoint, nil)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, endpoint, strings.NewReader(params.Encode()))
		if err == nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	}
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("graph api request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading graph api response: %w", err)
	}

	c.logger.Debug("graph api call",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", resp.StatusCode),
		slog.Duration("elapsed", time.Since(start)),
	)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return json.RawMessage(body), nil
	}

	return nil, c.mapError(resp, body)
}

// graphError is Meta's error envelope.
type graphError struct {
	Error struct {
		Message   string `json:"message"`
		Type      string `json:"type"`
		Code      int    `json:"code"`
		Subcode   int    `json:"error_subcode"`
		TraceID   string `json:"fbtrace_id"`
		UserTitle string `json:"error_user_title"`
	} `json:"error"`
}

// mapError translates Meta's error envelope into the domain taxonomy.
// The provider's message is surfaced verbatim; tokens never appear in it.
func (c *Client) mapError(resp *http.Response, body []byte) error {
	var ge graphError
	_ = json.Unmarshal(body, &ge)

	msg := ge.Error.Message
	if msg == "" {
		msg = fmt.Sprintf("graph api returned status %d", resp.StatusCode)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized,
		ge.Error.Code == errCodeInvalidToken,
		ge.Error.Type == "OAuthException" && !throttleCodes[ge.Error.Code]:
		return fmt.Errorf("%s: %w", msg, domain.ErrAuthInvalid)

	case resp.StatusCode == http.StatusTooManyRequests, throttleCodes[ge.Error.Code]:
		return fmt.Errorf("%s: %w", msg, &domain.RateLimitError{RetryAfter: retryAfter(resp)})

	default:
		return fmt.Errorf("graph api error (code %d, trace %s): %s",
			ge.Error.Code, ge.Error.TraceID, msg)
	}
}

func retryAfter(resp *http.Response) time.Duration {
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
