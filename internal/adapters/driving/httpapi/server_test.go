package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pipeboard-co/meta-ads-mcp/internal/core/domain"
)

const testBootstrapToken = "bootstrap-secret"

type fixture struct {
	users   *memUsers
	tokens  *memTokens
	keys    *memKeys
	router  http.Handler
	mcpSeen []domain.AuthContext
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		users:  newMemUsers(),
		tokens: newMemTokens(),
	}
	f.keys = newMemKeys(f.users)

	mcpStub := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mcpSeen = append(f.mcpSeen, domain.AuthContextFrom(r.Context()))
		w.WriteHeader(http.StatusOK)
	})

	srv := NewServer(
		Config{BootstrapToken: testBootstrapToken},
		f.users, f.tokens, f.keys, mcpStub,
		slog.New(slog.DiscardHandler),
	)
	f.router = srv.Router()
	return f
}

func (f *fixture) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

// seedTenant creates a user with an active access key and returns the user
// plus the key's plaintext.
func (f *fixture) seedTenant(t *testing.T, email string) (*domain.User, string) {
	t.Helper()
	user, err := f.users.CreateUser(context.Background(), email)
	require.NoError(t, err)
	plaintext, _, err := f.keys.Issue(context.Background(), user.ID, "seed", nil, nil)
	require.NoError(t, err)
	return user, plaintext
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func TestHealth(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/health", nil, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeBody(t, rec)["status"])
}

func TestCreateUser_RequiresBootstrapToken(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/v1/users", map[string]string{"email": "a@example.com"}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodPost, "/v1/users", map[string]string{"email": "a@example.com"},
		map[string]string{"X-Bootstrap-Token": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateUser(t *testing.T) {
	f := newFixture(t)
	hdr := map[string]string{"X-Bootstrap-Token": testBootstrapToken}

	rec := f.do(t, http.MethodPost, "/v1/users", map[string]string{"email": "alice@example.com"}, hdr)
	require.Equal(t, http.StatusCreated, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "alice@example.com", body["email"])
	assert.NotEmpty(t, body["id"])

	// Duplicate email conflicts.
	rec = f.do(t, http.MethodPost, "/v1/users", map[string]string{"email": "alice@example.com"}, hdr)
	assert.Equal(t, http.StatusConflict, rec.Code)

	// Missing email is a bad request.
	rec = f.do(t, http.MethodPost, "/v1/users", map[string]string{}, hdr)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateUser_BootstrapDisabled(t *testing.T) {
	f := newFixture(t)
	srv := NewServer(Config{}, f.users, f.tokens, f.keys, nil, slog.New(slog.DiscardHandler))
	router := srv.Router()

	req := httptest.NewRequest(http.MethodPost, "/v1/users",
		strings.NewReader(`{"email":"a@example.com"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestIssueKey_Bootstrap(t *testing.T) {
	f := newFixture(t)
	user, _ := f.seedTenant(t, "alice@example.com")
	hdr := map[string]string{"X-Bootstrap-Token": testBootstrapToken}

	rec := f.do(t, http.MethodPost, "/v1/pats",
		map[string]any{"user_id": user.ID, "name": "ci token", "scopes": []string{"ads.read"}}, hdr)
	require.Equal(t, http.StatusCreated, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "ci token", body["name"])
	assert.True(t, strings.HasPrefix(body["token"].(string), "pat_"))
	assert.NotEmpty(t, body["warning"])

	// user_id is mandatory under bootstrap auth.
	rec = f.do(t, http.MethodPost, "/v1/pats", map[string]any{"name": "x"}, hdr)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Unknown tenant.
	rec = f.do(t, http.MethodPost, "/v1/pats", map[string]any{"user_id": "missing"}, hdr)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestIssueKey_SelfService(t *testing.T) {
	f := newFixture(t)
	user, plaintext := f.seedTenant(t, "alice@example.com")

	rec := f.do(t, http.MethodPost, "/v1/pats", map[string]any{"name": "laptop"}, bearer(plaintext))
	require.Equal(t, http.StatusCreated, rec.Code)

	keys, err := f.keys.ListByUser(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Len(t, keys, 2)
}

func TestIssueKey_Unauthenticated(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/v1/pats", map[string]any{"name": "x"}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestIssueKey_DefaultsName(t *testing.T) {
	f := newFixture(t)
	_, plaintext := f.seedTenant(t, "alice@example.com")

	rec := f.do(t, http.MethodPost, "/v1/pats", map[string]any{}, bearer(plaintext))
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "API Token", decodeBody(t, rec)["name"])
}

func TestListKeys(t *testing.T) {
	f := newFixture(t)
	_, plaintext := f.seedTenant(t, "alice@example.com")

	rec := f.do(t, http.MethodGet, "/v1/pats", nil, bearer(plaintext))
	require.Equal(t, http.StatusOK, rec.Code)

	tokens := decodeBody(t, rec)["tokens"].([]any)
	require.Len(t, tokens, 1)
	first := tokens[0].(map[string]any)
	assert.Equal(t, "seed", first["name"])
	assert.Equal(t, true, first["is_active"])

	// The secret never appears in listings.
	assert.NotContains(t, rec.Body.String(), plaintext)
}

func TestListKeys_Unauthenticated(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/v1/pats", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRevokeKey(t *testing.T) {
	f := newFixture(t)
	user, plaintext := f.seedTenant(t, "alice@example.com")
	keys, err := f.keys.ListByUser(context.Background(), user.ID)
	require.NoError(t, err)
	keyID := keys[0].ID

	// Revoke with a second key so the credential used for the call stays
	// valid afterwards.
	second, _, err := f.keys.Issue(context.Background(), user.ID, "second", nil, nil)
	require.NoError(t, err)

	rec := f.do(t, http.MethodDelete, "/v1/pats/"+keyID, nil, bearer(second))
	require.Equal(t, http.StatusOK, rec.Code)

	// The revoked key no longer authenticates.
	rec = f.do(t, http.MethodGet, "/v1/pats", nil, bearer(plaintext))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRevokeKey_CrossTenantIsNotFound(t *testing.T) {
	f := newFixture(t)
	alice, _ := f.seedTenant(t, "alice@example.com")
	_, bobKey := f.seedTenant(t, "bob@example.com")

	aliceKeys, err := f.keys.ListByUser(context.Background(), alice.ID)
	require.NoError(t, err)

	rec := f.do(t, http.MethodDelete, "/v1/pats/"+aliceKeys[0].ID, nil, bearer(bobKey))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSaveMetaToken(t *testing.T) {
	f := newFixture(t)
	user, plaintext := f.seedTenant(t, "alice@example.com")

	rec := f.do(t, http.MethodPost, "/v1/meta/token", map[string]any{
		"access_token": "EAAB-alice",
		"expires_at":   time.Now().Add(time.Hour).Format(time.RFC3339),
		"scopes":       "ads_read",
		"account_id":   "act_123",
	}, bearer(plaintext))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "meta", decodeBody(t, rec)["provider"])

	saved, err := f.tokens.Get(context.Background(), user.ID, domain.ProviderMeta)
	require.NoError(t, err)
	assert.Equal(t, "EAAB-alice", saved.AccessToken)
	require.NotNil(t, saved.ExpiresAt)
	assert.Equal(t, "act_123", saved.AccountID)
}

func TestSaveMetaToken_RequiresAccessToken(t *testing.T) {
	f := newFixture(t)
	_, plaintext := f.seedTenant(t, "alice@example.com")

	rec := f.do(t, http.MethodPost, "/v1/meta/token", map[string]any{}, bearer(plaintext))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSaveMetaToken_IgnoresBadExpiry(t *testing.T) {
	f := newFixture(t)
	user, plaintext := f.seedTenant(t, "alice@example.com")

	rec := f.do(t, http.MethodPost, "/v1/meta/token", map[string]any{
		"access_token": "EAAB-alice",
		"expires_at":   "not-a-timestamp",
	}, bearer(plaintext))
	require.Equal(t, http.StatusOK, rec.Code)

	saved, err := f.tokens.Get(context.Background(), user.ID, domain.ProviderMeta)
	require.NoError(t, err)
	assert.Nil(t, saved.ExpiresAt)
}

func TestWhoami(t *testing.T) {
	f := newFixture(t)
	user, plaintext := f.seedTenant(t, "alice@example.com")
	_, err := f.tokens.Upsert(context.Background(), domain.OAuthToken{
		UserID:      user.ID,
		Provider:    domain.ProviderMeta,
		AccessToken: "EAAB-alice",
		AccountID:   "act_42",
	})
	require.NoError(t, err)

	rec := f.do(t, http.MethodGet, "/v1/me", nil, bearer(plaintext))
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, user.ID, body["id"])
	providers := body["providers"].([]any)
	require.Len(t, providers, 1)
	assert.Equal(t, "meta", providers[0].(map[string]any)["provider"])

	// The stored upstream token never leaks through introspection.
	assert.NotContains(t, rec.Body.String(), "EAAB-alice")
}

func TestMCPMount_AccessKeyInjectsStoredToken(t *testing.T) {
	f := newFixture(t)
	user, plaintext := f.seedTenant(t, "alice@example.com")
	_, err := f.tokens.Upsert(context.Background(), domain.OAuthToken{
		UserID:      user.ID,
		Provider:    domain.ProviderMeta,
		AccessToken: "EAAB-alice",
	})
	require.NoError(t, err)

	rec := f.do(t, http.MethodPost, "/mcp", map[string]any{}, bearer(plaintext))
	require.Equal(t, http.StatusOK, rec.Code)

	require.Len(t, f.mcpSeen, 1)
	ac := f.mcpSeen[0]
	assert.Equal(t, user.ID, ac.UserID)
	assert.Equal(t, plaintext, ac.AccessKey)
	assert.Equal(t, "EAAB-alice", ac.UpstreamToken)
}

func TestMCPMount_ExpiredStoredTokenNotInjected(t *testing.T) {
	f := newFixture(t)
	user, plaintext := f.seedTenant(t, "alice@example.com")
	past := time.Now().Add(-time.Hour)
	_, err := f.tokens.Upsert(context.Background(), domain.OAuthToken{
		UserID:      user.ID,
		Provider:    domain.ProviderMeta,
		AccessToken: "EAAB-expired",
		ExpiresAt:   &past,
	})
	require.NoError(t, err)

	rec := f.do(t, http.MethodPost, "/mcp", map[string]any{}, bearer(plaintext))
	require.Equal(t, http.StatusOK, rec.Code)

	require.Len(t, f.mcpSeen, 1)
	ac := f.mcpSeen[0]
	assert.Equal(t, user.ID, ac.UserID)
	assert.Equal(t, plaintext, ac.AccessKey)
	assert.Empty(t, ac.UpstreamToken)
}

func TestMCPMount_RawBearerPassesThrough(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/mcp", map[string]any{}, map[string]string{
		"Authorization":     "Bearer EAAB-raw-token",
		"X-Pipeboard-Token": "relay-key-1",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	require.Len(t, f.mcpSeen, 1)
	ac := f.mcpSeen[0]
	assert.Empty(t, ac.UserID)
	assert.Equal(t, "EAAB-raw-token", ac.UpstreamToken)
	assert.Equal(t, "relay-key-1", ac.RelayKey)
}

func TestMCPMount_InvalidAccessKeyRejected(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/mcp", map[string]any{}, bearer("pat_definitely-wrong"))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, f.mcpSeen)
}

func TestMCPMount_TenantsSeeOwnTokens(t *testing.T) {
	f := newFixture(t)
	alice, aliceKey := f.seedTenant(t, "alice@example.com")
	bob, bobKey := f.seedTenant(t, "bob@example.com")
	for _, seed := range []struct {
		userID, token string
	}{
		{alice.ID, "EAAB-alice"},
		{bob.ID, "EAAB-bob"},
	} {
		_, err := f.tokens.Upsert(context.Background(), domain.OAuthToken{
			UserID:      seed.userID,
			Provider:    domain.ProviderMeta,
			AccessToken: seed.token,
		})
		require.NoError(t, err)
	}

	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/mcp", nil, bearer(aliceKey)).Code)
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/mcp", nil, bearer(bobKey)).Code)

	require.Len(t, f.mcpSeen, 2)
	assert.Equal(t, "EAAB-alice", f.mcpSeen[0].UpstreamToken)
	assert.Equal(t, "EAAB-bob", f.mcpSeen[1].UpstreamToken)
}
