// Package relay resolves upstream Meta tokens through the hosted Pipeboard
// auth-relay service. The relay holds the tenant's Meta credential; an
// opaque relay key authenticates the lookup.
package relay

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/pipeboard-co/meta-ads-mcp/internal/core/domain"
	"github.com/pipeboard-co/meta-ads-mcp/internal/core/ports/driven"
)

// DefaultBaseURL is the hosted relay endpoint.
const DefaultBaseURL = "https://pipeboard.co"

// relayKeyHeader carries the relay key on forwarded operations, where the
// Authorization header is already taken by the upstream token.
const relayKeyHeader = "X-Pipeboard-Token"

const (
	requestTimeout = 10 * time.Second

	// forwardTimeout is generous because the relay performs the whole
	// upstream operation (a campaign duplication copies every child
	// object) before replying.
	forwardTimeout = 120 * time.Second

	// defaultTokenTTL caps how long a token is served from cache when the
	// relay reports no expiry.
	defaultTokenTTL = 50 * time.Minute

	// expiryBuffer is subtracted from the reported lifetime so cached
	// tokens are refreshed before they actually lapse.
	expiryBuffer = 5 * time.Minute
)

// Ensure Client implements the relay ports.
var (
	_ driven.RelayClient    = (*Client)(nil)
	_ driven.RelayForwarder = (*Client)(nil)
)

// Client talks to the relay's token endpoint and caches results per relay
// key. Forwarded operations use a separate client with a longer deadline.
type Client struct {
	baseURL       string
	httpClient    *http.Client
	forwardClient *http.Client
	logger        *slog.Logger
	cache         *gocache.Cache
}

// Option configures the relay client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client for both lookups and forwards.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
		c.forwardClient = httpClient
	}
}

// WithBaseURL overrides the relay base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// NewClient creates a relay client.
func NewClient(logger *slog.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL:       DefaultBaseURL,
		httpClient:    &http.Client{Timeout: requestTimeout},
		forwardClient: &http.Client{Timeout: forwardTimeout},
		logger:        logger,
		cache:         gocache.New(defaultTokenTTL, 10*time.Minute),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// tokenResponse is the relay's token payload.
type tokenResponse struct {
	AccessToken string `json:"token"`
	ExpiresIn   int64  `json:"expires_in"`
	Error       string `json:"error"`
}

// GetAccessToken exchanges the relay key for a Meta access token.
// forceRefresh bypasses the cache and re-queries the relay regardless of
// cached validity.
func (c *Client) GetAccessToken(ctx context.Context, relayKey string, forceRefresh bool) (string, error) {
	if relayKey == "" {
		return "", fmt.Errorf("relay key: %w", domain.ErrInvalidInput)
	}

	key := cacheKey(relayKey)
	if !forceRefresh {
		if cached, ok := c.cache.Get(key); ok {
			return cached.(string), nil
		}
	}

	token, ttl, err := c.fetchToken(ctx, relayKey)
	if err != nil {
		return "", err
	}

	c.cache.Set(key, token, ttl)
	c.logger.Debug("relay token resolved",
		slog.String("token", domain.Truncate(token, 10)),
		slog.Bool("forced", forceRefresh),
	)

	return token, nil
}

// Forward POSTs a JSON payload to the relay, which performs the operation
// upstream on the tenant's behalf. Both credentials travel together: the
// upstream token as the bearer, the relay key in its own header.
func (c *Client) Forward(ctx context.Context, path, upstreamToken, relayKey string, payload map[string]any) (json.RawMessage, error) {
	if relayKey == "" {
		return nil, fmt.Errorf("relay key: %w", domain.ErrInvalidInput)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding forward payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating forward request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+upstreamToken)
	req.Header.Set(relayKeyHeader, relayKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.forwardClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("forward request: %w: %v", domain.ErrRelayUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading forward response: %w: %v", domain.ErrRelayUnavailable, err)
	}

	if resp.StatusCode == http.StatusOK {
		return raw, nil
	}
	return nil, forwardError(resp, raw)
}

// forwardError maps a relay error status to the matching domain error,
// carrying the relay's own message where it gave one.
func forwardError(resp *http.Response, raw []byte) error {
	detail := relayDetail(raw)

	switch resp.StatusCode {
	case http.StatusBadRequest:
		return fmt.Errorf("relay rejected request: %s: %w", detail, domain.ErrInvalidInput)
	case http.StatusUnauthorized:
		return fmt.Errorf("relay reported credential rejection: %s: %w", detail, domain.ErrAuthInvalid)
	case http.StatusPaymentRequired, http.StatusForbidden:
		return fmt.Errorf("relay declined operation: %s: %w", detail, domain.ErrRelayPlanRequired)
	case http.StatusNotFound:
		return fmt.Errorf("relay reported missing resource: %s: %w", detail, domain.ErrNotFound)
	case http.StatusTooManyRequests:
		retryAfter := 60 * time.Second
		if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
			retryAfter = time.Duration(secs) * time.Second
		}
		return &domain.RateLimitError{RetryAfter: retryAfter}
	default:
		return fmt.Errorf("relay returned status %d: %w", resp.StatusCode, domain.ErrRelayUnavailable)
	}
}

// relayDetail pulls a human-readable message out of a relay error body.
func relayDetail(raw []byte) string {
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &body); err == nil {
		if body.Error != "" {
			return body.Error
		}
		if body.Message != "" {
			return body.Message
		}
	}
	return "no detail"
}

// InvalidateKey drops the cached token for a relay key.
func (c *Client) InvalidateKey(relayKey string) {
	c.cache.Delete(cacheKey(relayKey))
}

func (c *Client) fetchToken(ctx context.Context, relayKey string) (string, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/meta/token", nil)
	if err != nil {
		return "", 0, fmt.Errorf("creating relay request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+relayKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("relay request: %w: %v", domain.ErrRelayUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", 0, fmt.Errorf("relay rejected key %s: %w",
			domain.Truncate(relayKey, 6), domain.ErrRelayAuthInvalid)
	case resp.StatusCode != http.StatusOK:
		return "", 0, fmt.Errorf("relay returned status %d: %w",
			resp.StatusCode, domain.ErrRelayUnavailable)
	}

	var body tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", 0, fmt.Errorf("decoding relay response: %w: %v", domain.ErrRelayUnavailable, err)
	}
	if body.Error != "" {
		return "", 0, fmt.Errorf("relay error %q: %w", body.Error, domain.ErrRelayAuthInvalid)
	}
	if body.AccessToken == "" {
		return "", 0, fmt.Errorf("relay returned no token: %w", domain.ErrRelayUnavailable)
	}

	ttl := defaultTokenTTL
	if body.ExpiresIn > 0 {
		ttl = time.Duration(body.ExpiresIn)*time.Second - expiryBuffer
		if ttl <= 0 {
			ttl = time.Minute
		}
	}

	return body.AccessToken, ttl, nil
}

// cacheKey hashes the relay key so the secret itself is never used as a map
// key in a long-lived structure.
func cacheKey(relayKey string) string {
	sum := sha256.Sum256([]byte(relayKey))
	return hex.EncodeToString(sum[:16])
}
