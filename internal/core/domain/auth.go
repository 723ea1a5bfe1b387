package domain

import (
	"context"
	"time"
)

// ResolutionSource identifies which credential source supplied the active
// upstream token for a call.
type ResolutionSource string

const (
	// SourceExplicitArgument is a credential attached directly to the tool
	// invocation. Highest trust, used for testing and explicit delegation.
	SourceExplicitArgument ResolutionSource = "explicit-argument"

	// SourceHeaderInjected is a credential placed into per-request context
	// by the transport layer from an inbound header.
	SourceHeaderInjected ResolutionSource = "header-injected"

	// SourceRelayService is a credential fetched from the hosted auth-relay
	// service using a relay key.
	SourceRelayService ResolutionSource = "relay-service"

	// SourceLocalCache is a credential cached by a prior interactive OAuth
	// flow on this machine.
	SourceLocalCache ResolutionSource = "local-cache"

	// SourceEnvironment is a static token supplied via process configuration.
	SourceEnvironment ResolutionSource = "environment"
)

// Resolution is the outcome of credential resolution for one call: the
// upstream token to use and which source supplied it. The source drives the
// refresh path after an upstream rejection.
type Resolution struct {
	Token  string
	Source ResolutionSource
}

// TokenInfo is one cached upstream Meta access token.
type TokenInfo struct {
	// AccessToken is the opaque bearer value.
	AccessToken string `json:"access_token"`
	// TokenType is usually "bearer".
	TokenType string `json:"token_type,omitempty"`
	// CreatedAt is when the token was obtained.
	CreatedAt time.Time `json:"created_at"`
	// ExpiresIn is the lifetime in seconds reported by the provider.
	// Zero means unknown or non-expiring.
	ExpiresIn int64 `json:"expires_in,omitempty"`
	// Scopes granted to the token.
	Scopes []string `json:"scopes,omitempty"`
}

// ExpiresAt returns the absolute expiry time, or the zero time when the
// lifetime is unknown.
func (t TokenInfo) ExpiresAt() time.Time {
	if t.ExpiresIn <= 0 {
		return time.Time{}
	}
	return t.CreatedAt.Add(time.Duration(t.ExpiresIn) * time.Second)
}

// IsExpired reports whether the token is past its known expiry. Tokens with
// unknown lifetime are never considered expired here; the upstream decides.
func (t TokenInfo) IsExpired() bool {
	exp := t.ExpiresAt()
	return !exp.IsZero() && time.Now().After(exp)
}

// Truncate returns a loggable preview of a secret: the first n characters
// followed by "...". Secrets must never appear whole in logs or errors.
func Truncate(secret string, n int) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= n {
		return secret[:1] + "..."
	}
	return secret[:n] + "..."
}

// AuthContext carries the per-request, per-tenant credentials. It is built
// fresh from transport data for every inbound call and passed down the call
// chain through context, never stored in shared state. This is the mechanism
// that keeps concurrent tenants isolated.
type AuthContext struct {
	// AccessKey is the tenant's own API key as presented on the request.
	AccessKey string
	// UserID is the tenant resolved from AccessKey, if any.
	UserID string
	// UpstreamToken is a Meta access token injected by the transport layer.
	UpstreamToken string
	// RelayKey is a per-request relay-service key.
	RelayKey string
}

type authContextKey struct{}

// WithAuthContext returns a context carrying the request's auth context.
func WithAuthContext(ctx context.Context, ac AuthContext) context.Context {
	return context.WithValue(ctx, authContextKey{}, ac)
}

// AuthContextFrom returns the request's auth context, or a zero value when
// the transport injected none (stdio/local mode).
func AuthContextFrom(ctx context.Context) AuthContext {
	ac, _ := ctx.Value(authContextKey{}).(AuthContext)
	return ac
}
