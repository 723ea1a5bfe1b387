package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/pipeboard-co/meta-ads-mcp/internal/core/domain"
)

type mockCallback struct {
	port   int
	starts atomic.Int64
	code   string
	err    error
	state  atomic.Value // last SetExpectedState value
}

func (m *mockCallback) Start(_ context.Context) (int, error) {
	m.starts.Add(1)
	if m.err != nil {
		return 0, m.err
	}
	if m.port == 0 {
		m.port = 8085
	}
	return m.port, nil
}

func (m *mockCallback) WaitForCode(_ context.Context, _ time.Duration) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	if m.code == "" {
		return "", domain.ErrCallbackTimeout
	}
	return m.code, nil
}

func (m *mockCallback) SetExpectedState(state string) { m.state.Store(state) }

func (m *mockCallback) RedirectURI() string {
	return fmt.Sprintf("http://localhost:%d/callback", m.port)
}

func (m *mockCallback) Shutdown(_ context.Context) error { return nil }

// fakeProvider stands in for both the OAuth token endpoint (POST, code
// exchange) and the Graph long-lived exchange (GET with fb_exchange_token).
type fakeProvider struct {
	t            *testing.T
	failExchange bool
	exchanges    atomic.Int64
	longExch     atomic.Int64
}

func (f *fakeProvider) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet && r.URL.Query().Get("grant_type") == "fb_exchange_token" {
			f.longExch.Add(1)
			assert.Equal(f.t, "short-token", r.URL.Query().Get("fb_exchange_token"))
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]any{
				"access_token": "long-token",
				"token_type":   "bearer",
				"expires_in":   5184000,
			})
			return
		}

		// Authorization-code exchange.
		f.exchanges.Add(1)
		require.NoError(f.t, r.ParseForm())
		if f.failExchange {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"error": map[string]any{"message": "invalid code"},
			})
			return
		}
		assert.Equal(f.t, "ABC123", r.Form.Get("code"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "short-token",
			"token_type":   "bearer",
			"expires_in":   5400,
		})
	})
}

func newTestManager(t *testing.T, cfg AuthConfig, cache *mockTokenCache, cb *mockCallback) (*AuthManager, *fakeProvider) {
	t.Helper()
	provider := &fakeProvider{t: t}
	srv := httptest.NewServer(provider.handler())
	t.Cleanup(srv.Close)

	m := NewAuthManager(cfg, cache, cb, discardLogger(),
		WithAuthEndpoint(oauth2.Endpoint{
			AuthURL:  srv.URL + "/dialog/oauth",
			TokenURL: srv.URL + "/oauth/access_token",
		}),
		WithGraphBaseURL(srv.URL),
		WithCallbackWait(time.Second),
	)
	return m, provider
}

func TestAuthFlow_LocalShortLived(t *testing.T) {
	cache := &mockTokenCache{}
	cb := &mockCallback{code: "ABC123"}
	m, provider := newTestManager(t, AuthConfig{AppID: "123456"}, cache, cb)

	authURL, err := m.GetAuthURL(context.Background())
	require.NoError(t, err)
	assert.Contains(t, authURL, "redirect_uri="+url.QueryEscape("http://localhost:8085/callback"))

	// The state registered with the callback appears in the URL.
	state := cb.state.Load().(string)
	require.NotEmpty(t, state)
	assert.Contains(t, authURL, "state="+state)

	info, err := m.CompleteAuthentication(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "short-token", info.AccessToken)

	// No app secret: no long-lived upgrade, short lifetime.
	assert.Equal(t, int64(0), provider.longExch.Load())
	assert.Equal(t, "1-2 hours", m.TokenDuration())

	// The token was cached.
	cached, err := cache.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "short-token", cached.AccessToken)
}

func TestAuthFlow_LongLivedUpgrade(t *testing.T) {
	cache := &mockTokenCache{}
	cb := &mockCallback{code: "ABC123"}
	m, provider := newTestManager(t, AuthConfig{AppID: "123456", AppSecret: "s3cret"}, cache, cb)

	_, err := m.GetAuthURL(context.Background())
	require.NoError(t, err)

	info, err := m.CompleteAuthentication(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "long-token", info.AccessToken)
	assert.Equal(t, int64(5184000), info.ExpiresIn)
	assert.Equal(t, int64(1), provider.longExch.Load())
	assert.Equal(t, "60 days", m.TokenDuration())

	cached, err := cache.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "long-token", cached.AccessToken)
}

func TestGetAuthURL_IdempotentWhilePending(t *testing.T) {
	cb := &mockCallback{code: "ABC123"}
	m, _ := newTestManager(t, AuthConfig{AppID: "123456"}, &mockTokenCache{}, cb)

	first, err := m.GetAuthURL(context.Background())
	require.NoError(t, err)
	second, err := m.GetAuthURL(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int64(1), cb.starts.Load())
}

func TestGetAuthURL_OperatorRedirectSkipsCallback(t *testing.T) {
	cb := &mockCallback{}
	m, _ := newTestManager(t, AuthConfig{
		AppID:       "123456",
		RedirectURI: "https://example.com/oauth/return",
	}, &mockTokenCache{}, cb)

	authURL, err := m.GetAuthURL(context.Background())

	require.NoError(t, err)
	assert.Contains(t, authURL, "redirect_uri="+url.QueryEscape("https://example.com/oauth/return"))
	assert.Equal(t, int64(0), cb.starts.Load())
}

func TestGetAuthURL_CallbackDisabled(t *testing.T) {
	m, _ := newTestManager(t, AuthConfig{AppID: "123456", DisableCallback: true}, &mockTokenCache{}, &mockCallback{})

	_, err := m.GetAuthURL(context.Background())

	require.ErrorIs(t, err, domain.ErrCallbackUnavailable)
	assert.Contains(t, err.Error(), "META_ACCESS_TOKEN")
}

func TestGetAuthURL_NoAppID(t *testing.T) {
	m, _ := newTestManager(t, AuthConfig{}, &mockTokenCache{}, &mockCallback{})

	_, err := m.GetAuthURL(context.Background())

	require.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Contains(t, err.Error(), "META_APP_ID")
}

func TestCompleteAuthentication_TimeoutResetsFlow(t *testing.T) {
	cache := &mockTokenCache{}
	cb := &mockCallback{} // no code: WaitForCode times out
	m, _ := newTestManager(t, AuthConfig{AppID: "123456"}, cache, cb)

	first, err := m.GetAuthURL(context.Background())
	require.NoError(t, err)

	_, err = m.CompleteAuthentication(context.Background())
	require.ErrorIs(t, err, domain.ErrCallbackTimeout)

	// Nothing cached, and a fresh flow (new state) can start.
	_, err = cache.Get(context.Background())
	require.ErrorIs(t, err, domain.ErrNotFound)
	second, err := m.GetAuthURL(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}

func TestCompleteAuthentication_ExchangeFailureNothingCached(t *testing.T) {
	cache := &mockTokenCache{}
	cb := &mockCallback{code: "ABC123"}
	provider := &fakeProvider{failExchange: true}
	provider.t = t
	srv := httptest.NewServer(provider.handler())
	t.Cleanup(srv.Close)

	m := NewAuthManager(AuthConfig{AppID: "123456"}, cache, cb, discardLogger(),
		WithAuthEndpoint(oauth2.Endpoint{
			AuthURL:  srv.URL + "/dialog/oauth",
			TokenURL: srv.URL + "/oauth/access_token",
		}),
		WithGraphBaseURL(srv.URL),
		WithCallbackWait(time.Second),
	)

	_, err := m.GetAuthURL(context.Background())
	require.NoError(t, err)

	_, err = m.CompleteAuthentication(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "check app secret")

	_, err = cache.Get(context.Background())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCompleteAuthentication_WithoutFlow(t *testing.T) {
	m, _ := newTestManager(t, AuthConfig{AppID: "123456"}, &mockTokenCache{}, &mockCallback{})

	_, err := m.CompleteAuthentication(context.Background())

	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestGetAccessToken_WithoutLogin(t *testing.T) {
	m, _ := newTestManager(t, AuthConfig{AppID: "123456"}, &mockTokenCache{}, &mockCallback{})

	_, err := m.GetAccessToken(context.Background())

	assert.ErrorIs(t, err, domain.ErrAuthRequired)
}

func TestGetAccessToken_RefreshesExpired(t *testing.T) {
	cache := &mockTokenCache{info: &domain.TokenInfo{
		AccessToken: "short-token",
		CreatedAt:   time.Now().Add(-3 * time.Hour),
		ExpiresIn:   3600,
	}}
	m, provider := newTestManager(t, AuthConfig{AppID: "123456", AppSecret: "s3cret"}, cache, &mockCallback{})

	token, err := m.GetAccessToken(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "long-token", token)
	assert.Equal(t, int64(1), provider.longExch.Load())
}

func TestRefresh_WithoutSecret(t *testing.T) {
	cache := &mockTokenCache{info: expiredToken("short-token")}
	m, _ := newTestManager(t, AuthConfig{AppID: "123456"}, cache, &mockCallback{})

	_, err := m.Refresh(context.Background())

	require.ErrorIs(t, err, domain.ErrTokenExpired)
	assert.Contains(t, err.Error(), "log in again")
}

func TestLogout(t *testing.T) {
	cache := &mockTokenCache{info: freshToken("cached-token")}
	m, _ := newTestManager(t, AuthConfig{AppID: "123456"}, cache, &mockCallback{})

	require.NoError(t, m.Logout(context.Background()))

	_, err := cache.Get(context.Background())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestGetAuthURL_ScopesRequested(t *testing.T) {
	cb := &mockCallback{code: "ABC123"}
	m, _ := newTestManager(t, AuthConfig{AppID: "123456"}, &mockTokenCache{}, cb)

	authURL, err := m.GetAuthURL(context.Background())

	require.NoError(t, err)
	assert.Contains(t, authURL, url.QueryEscape("ads_management,ads_read,business_management"))
}
