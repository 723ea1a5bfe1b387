package mcp

import (
	"context"
	"encoding/json"
	"net/url"
	"sync"

	"github.com/pipeboard-co/meta-ads-mcp/internal/core/domain"
)

// mockResolver returns a fixed resolution and records refreshes.
type mockResolver struct {
	mu         sync.Mutex
	token      string
	source     domain.ResolutionSource
	resolveErr error

	refreshed    int
	refreshToken string
	refreshErr   error
}

func (m *mockResolver) Resolve(_ context.Context, explicit string) (*domain.Resolution, error) {
	if explicit != "" {
		return &domain.Resolution{Token: explicit, Source: domain.SourceExplicitArgument}, nil
	}
	if m.resolveErr != nil {
		return nil, m.resolveErr
	}
	source := m.source
	if source == "" {
		source = domain.SourceEnvironment
	}
	return &domain.Resolution{Token: m.token, Source: source}, nil
}

func (m *mockResolver) Refresh(_ context.Context, _ *domain.Resolution) (*domain.Resolution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refreshed++
	if m.refreshErr != nil {
		return nil, m.refreshErr
	}
	return &domain.Resolution{Token: m.refreshToken, Source: domain.SourceLocalCache}, nil
}

// graphCall records one request the mock graph client served.
type graphCall struct {
	method   string
	endpoint string
	token    string
	params   url.Values
}

// mockGraph records calls and replies from a scripted queue of responses.
type mockGraph struct {
	mu        sync.Mutex
	calls     []graphCall
	responses []json.RawMessage
	errs      []error
}

func (m *mockGraph) next(call graphCall) (json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, call)
	i := len(m.calls) - 1

	var err error
	if i < len(m.errs) {
		err = m.errs[i]
	}
	var raw json.RawMessage = json.RawMessage(`{}`)
	if i < len(m.responses) {
		raw = m.responses[i]
	}
	if err != nil {
		return nil, err
	}
	return raw, nil
}

func (m *mockGraph) Get(_ context.Context, endpoint, token string, params url.Values) (json.RawMessage, error) {
	return m.next(graphCall{method: "GET", endpoint: endpoint, token: token, params: params})
}

func (m *mockGraph) Post(_ context.Context, endpoint, token string, params url.Values) (json.RawMessage, error) {
	return m.next(graphCall{method: "POST", endpoint: endpoint, token: token, params: params})
}

// mockAuth is a minimal AuthService for the login tool.
type mockAuth struct {
	cachedToken string
	authURL     string
	urlErr      error
	duration    string
	completed   chan struct{}
}

func (m *mockAuth) GetAuthURL(context.Context) (string, error) {
	if m.urlErr != nil {
		return "", m.urlErr
	}
	return m.authURL, nil
}

func (m *mockAuth) CompleteAuthentication(context.Context) (*domain.TokenInfo, error) {
	if m.completed != nil {
		close(m.completed)
	}
	return &domain.TokenInfo{AccessToken: "completed"}, nil
}

func (m *mockAuth) GetAccessToken(context.Context) (string, error) {
	if m.cachedToken == "" {
		return "", domain.ErrAuthRequired
	}
	return m.cachedToken, nil
}

func (m *mockAuth) Refresh(context.Context) (*domain.TokenInfo, error) {
	return &domain.TokenInfo{AccessToken: m.cachedToken}, nil
}

func (m *mockAuth) TokenDuration() string {
	if m.duration == "" {
		return "1-2 hours"
	}
	return m.duration
}

func (m *mockAuth) Logout(context.Context) error { return nil }

// forwardCall records one request the mock relay forwarder served.
type forwardCall struct {
	path     string
	token    string
	relayKey string
	payload  map[string]any
}

// mockForwarder records forwarded operations and replies from a scripted
// queue, mirroring mockGraph.
type mockForwarder struct {
	mu        sync.Mutex
	calls     []forwardCall
	responses []json.RawMessage
	errs      []error
}

func (m *mockForwarder) Forward(_ context.Context, path, upstreamToken, relayKey string, payload map[string]any) (json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, forwardCall{path: path, token: upstreamToken, relayKey: relayKey, payload: payload})
	i := len(m.calls) - 1

	var err error
	if i < len(m.errs) {
		err = m.errs[i]
	}
	var raw json.RawMessage = json.RawMessage(`{"success":true}`)
	if i < len(m.responses) {
		raw = m.responses[i]
	}
	if err != nil {
		return nil, err
	}
	return raw, nil
}
