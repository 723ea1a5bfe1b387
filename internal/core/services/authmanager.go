package services

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/facebook"

	"github.com/pipeboard-co/meta-ads-mcp/internal/core/domain"
	"github.com/pipeboard-co/meta-ads-mcp/internal/core/ports/driven"
	"github.com/pipeboard-co/meta-ads-mcp/internal/core/ports/driving"
)

// Ensure AuthManager implements the interface.
var _ driving.AuthService = (*AuthManager)(nil)

// Ensure AuthManager can serve as the resolver's refresh path.
var _ TokenRefresher = (*AuthManager)(nil)

const (
	// defaultCallbackWait is how long CompleteAuthentication waits for the
	// user to finish the browser flow.
	defaultCallbackWait = 120 * time.Second

	// exchangeTimeout bounds the server-to-server token exchange calls.
	exchangeTimeout = 10 * time.Second

	// longLivedFallbackSeconds is assumed when the long-lived exchange
	// response omits expires_in. Meta long-lived tokens last ~60 days.
	longLivedFallbackSeconds = 60 * 24 * 60 * 60

	// Default scopes requested during the interactive login.
	defaultScopes = "ads_management,ads_read,business_management"
)

// AuthConfig holds the OAuth app settings for the interactive flow.
type AuthConfig struct {
	// AppID is the Meta app client ID.
	AppID string

	// AppSecret enables the short-lived to long-lived token exchange.
	// Without it tokens stay short-lived (1-2 hours).
	AppSecret string

	// RedirectURI, when set, replaces the localhost callback with an
	// operator-configured public endpoint. The callback server is not
	// started in that mode.
	RedirectURI string

	// DisableCallback forbids starting the local callback server, for
	// deployments where binding a port is unwanted.
	DisableCallback bool

	// Scopes requested during login. Empty means the default set.
	Scopes string
}

// AuthManager orchestrates the OAuth authorization-code flow: it builds
// authorization URLs, waits for the callback, exchanges codes for tokens,
// upgrades them to long-lived tokens when an app secret is configured, and
// persists the result.
type AuthManager struct {
	cfg      AuthConfig
	cache    driven.TokenCache
	callback driven.CallbackServer
	logger   *slog.Logger

	client       *http.Client
	endpoint     oauth2.Endpoint
	graphBaseURL string
	callbackWait time.Duration

	mu          sync.Mutex
	pendingURL  string
	pendingConf *oauth2.Config
}

// AuthOption configures the AuthManager.
type AuthOption func(*AuthManager)

// WithAuthHTTPClient sets the HTTP client used for token exchanges.
func WithAuthHTTPClient(client *http.Client) AuthOption {
	return func(m *AuthManager) { m.client = client }
}

// WithAuthEndpoint overrides the provider authorization/token endpoint.
func WithAuthEndpoint(endpoint oauth2.Endpoint) AuthOption {
	return func(m *AuthManager) { m.endpoint = endpoint }
}

// WithGraphBaseURL overrides the Graph API base used for the long-lived
// token exchange.
func WithGraphBaseURL(baseURL string) AuthOption {
	return func(m *AuthManager) { m.graphBaseURL = baseURL }
}

// WithCallbackWait overrides how long the flow waits for the redirect.
func WithCallbackWait(d time.Duration) AuthOption {
	return func(m *AuthManager) { m.callbackWait = d }
}

// NewAuthManager creates the manager. callback may be nil when the local
// callback server is disabled or a public redirect URI is configured.
func NewAuthManager(cfg AuthConfig, cache driven.TokenCache, callback driven.CallbackServer, logger *slog.Logger, opts ...AuthOption) *AuthManager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &AuthManager{
		cfg:          cfg,
		cache:        cache,
		callback:     callback,
		logger:       logger,
		client:       &http.Client{Timeout: exchangeTimeout},
		endpoint:     facebook.Endpoint,
		graphBaseURL: "https://graph.facebook.com/v23.0",
		callbackWait: defaultCallbackWait,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// GetAuthURL returns the provider authorization URL and prepares the flow.
// Calling it again while a flow is pending returns the same URL without
// spawning a second callback listener.
func (m *AuthManager) GetAuthURL(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.pendingURL != "" {
		return m.pendingURL, nil
	}

	if m.cfg.AppID == "" {
		return "", fmt.Errorf("no app ID configured, set META_APP_ID: %w", domain.ErrInvalidInput)
	}

	redirectURI, err := m.redirectURI(ctx)
	if err != nil {
		return "", err
	}

	state, err := randomState()
	if err != nil {
		return "", fmt.Errorf("generating state: %w", err)
	}
	if m.callback != nil && m.cfg.RedirectURI == "" {
		m.callback.SetExpectedState(state)
	}

	scopes := m.cfg.Scopes
	if scopes == "" {
		scopes = defaultScopes
	}

	conf := &oauth2.Config{
		ClientID:     m.cfg.AppID,
		ClientSecret: m.cfg.AppSecret,
		Endpoint:     m.endpoint,
		RedirectURL:  redirectURI,
		Scopes:       []string{scopes},
	}

	m.pendingConf = conf
	m.pendingURL = conf.AuthCodeURL(state)

	m.logger.Info("login flow started", "redirect_uri", redirectURI)
	return m.pendingURL, nil
}

// redirectURI picks the operator-configured endpoint when present, else
// starts (or reuses) the local callback server. Callers hold m.mu.
func (m *AuthManager) redirectURI(ctx context.Context) (string, error) {
	if m.cfg.RedirectURI != "" {
		return m.cfg.RedirectURI, nil
	}
	if m.cfg.DisableCallback || m.callback == nil {
		return "", fmt.Errorf("callback server disabled, set META_ACCESS_TOKEN instead: %w", domain.ErrCallbackUnavailable)
	}
	if _, err := m.callback.Start(ctx); err != nil {
		return "", fmt.Errorf("set META_ACCESS_TOKEN instead: %w", err)
	}
	return m.callback.RedirectURI(), nil
}

// CompleteAuthentication waits for the authorization redirect, exchanges the
// code and persists the token. On any failure the pending flow is reset so a
// fresh attempt can be made, and nothing partial is cached.
func (m *AuthManager) CompleteAuthentication(ctx context.Context) (*domain.TokenInfo, error) {
	m.mu.Lock()
	conf := m.pendingConf
	m.mu.Unlock()

	if conf == nil {
		return nil, fmt.Errorf("no login flow in progress: %w", domain.ErrInvalidInput)
	}
	if m.callback == nil {
		return nil, fmt.Errorf("no callback server to wait on: %w", domain.ErrCallbackUnavailable)
	}

	code, err := m.callback.WaitForCode(ctx, m.callbackWait)
	if err != nil {
		m.resetFlow()
		return nil, err
	}

	exchCtx := context.WithValue(ctx, oauth2.HTTPClient, m.client)
	token, err := conf.Exchange(exchCtx, code)
	if err != nil {
		m.resetFlow()
		return nil, fmt.Errorf("exchanging authorization code (check app secret and redirect URI allowlist): %w", err)
	}

	info := domain.TokenInfo{
		AccessToken: token.AccessToken,
		TokenType:   token.TokenType,
		CreatedAt:   time.Now().UTC(),
	}
	if !token.Expiry.IsZero() {
		info.ExpiresIn = int64(time.Until(token.Expiry).Seconds())
	}

	if m.cfg.AppSecret != "" {
		longLived, err := m.exchangeLongLived(ctx, info.AccessToken)
		if err != nil {
			m.resetFlow()
			return nil, err
		}
		info = *longLived
	}

	if err := m.cache.Save(ctx, info); err != nil {
		m.resetFlow()
		return nil, fmt.Errorf("caching token: %w", err)
	}

	m.resetFlow()
	m.logger.Info("authenticated",
		"token", domain.Truncate(info.AccessToken, 8),
		"duration", m.TokenDuration())
	return &info, nil
}

func (m *AuthManager) resetFlow() {
	m.mu.Lock()
	m.pendingURL = ""
	m.pendingConf = nil
	m.mu.Unlock()
}

// GetAccessToken returns the cached token, refreshing it first when it is
// past its known expiry.
func (m *AuthManager) GetAccessToken(ctx context.Context) (string, error) {
	info, err := m.cache.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("no cached token, run the login flow: %w", domain.ErrAuthRequired)
	}
	if !info.IsExpired() {
		return info.AccessToken, nil
	}

	refreshed, err := m.Refresh(ctx)
	if err != nil {
		return "", err
	}
	return refreshed.AccessToken, nil
}

// Refresh re-exchanges the cached token for a fresh long-lived one. Requires
// an app secret; short-lived tokens cannot be renewed server-side and the
// user must log in again.
func (m *AuthManager) Refresh(ctx context.Context) (*domain.TokenInfo, error) {
	info, err := m.cache.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("no cached token to refresh: %w", domain.ErrAuthRequired)
	}
	if m.cfg.AppSecret == "" {
		return nil, fmt.Errorf("cannot refresh without an app secret, log in again: %w", domain.ErrTokenExpired)
	}

	refreshed, err := m.exchangeLongLived(ctx, info.AccessToken)
	if err != nil {
		return nil, err
	}
	if err := m.cache.Save(ctx, *refreshed); err != nil {
		return nil, fmt.Errorf("caching refreshed token: %w", err)
	}

	m.logger.Info("token refreshed", "token", domain.Truncate(refreshed.AccessToken, 8))
	return refreshed, nil
}

// TokenDuration describes the lifetime of tokens this manager obtains.
func (m *AuthManager) TokenDuration() string {
	if m.cfg.AppSecret != "" {
		return "60 days"
	}
	return "1-2 hours"
}

// Logout clears the cached credential.
func (m *AuthManager) Logout(ctx context.Context) error {
	return m.cache.Clear(ctx)
}

// exchangeLongLived trades a short-lived token for a long-lived one via the
// fb_exchange_token grant.
func (m *AuthManager) exchangeLongLived(ctx context.Context, shortLived string) (*domain.TokenInfo, error) {
	params := url.Values{}
	params.Set("grant_type", "fb_exchange_token")
	params.Set("client_id", m.cfg.AppID)
	params.Set("client_secret", m.cfg.AppSecret)
	params.Set("fb_exchange_token", shortLived)

	endpoint := m.graphBaseURL + "/oauth/access_token?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("building exchange request: %w", err)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("long-lived token exchange: %w", err)
	}
	defer resp.Body.Close()

	var body struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
		ExpiresIn   int64  `json:"expires_in"`
		Error       *struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decoding exchange response: %w", err)
	}
	if body.Error != nil {
		return nil, fmt.Errorf("long-lived token exchange rejected (check app secret): %s: %w",
			body.Error.Message, domain.ErrAuthInvalid)
	}
	if resp.StatusCode != http.StatusOK || body.AccessToken == "" {
		return nil, fmt.Errorf("long-lived token exchange failed with status %d (check app secret): %w",
			resp.StatusCode, domain.ErrAuthInvalid)
	}

	expiresIn := body.ExpiresIn
	if expiresIn == 0 {
		expiresIn = longLivedFallbackSeconds
	}

	return &domain.TokenInfo{
		AccessToken: body.AccessToken,
		TokenType:   body.TokenType,
		CreatedAt:   time.Now().UTC(),
		ExpiresIn:   expiresIn,
	}, nil
}

// randomState generates the OAuth state parameter.
func randomState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
