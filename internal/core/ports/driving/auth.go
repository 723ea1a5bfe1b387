package driving

import (
	"context"

	"github.com/pipeboard-co/meta-ads-mcp/internal/core/domain"
)

// AuthService drives the interactive OAuth authorization-code flow for
// single-tenant local mode.
type AuthService interface {
	// GetAuthURL returns the provider authorization URL. In local mode it
	// starts (or reuses) the callback server and binds the redirect to it;
	// calling it again while a flow is pending returns the same URL.
	GetAuthURL(ctx context.Context) (string, error)

	// CompleteAuthentication waits for the authorization redirect,
	// exchanges the code for a token (upgrading to a long-lived token when
	// an app secret is configured) and persists it. No partial token is
	// ever cached on failure.
	CompleteAuthentication(ctx context.Context) (*domain.TokenInfo, error)

	// GetAccessToken returns the cached token, refreshing it first when it
	// is past its known expiry.
	GetAccessToken(ctx context.Context) (string, error)

	// Refresh re-exchanges the cached token for a fresh long-lived one.
	Refresh(ctx context.Context) (*domain.TokenInfo, error)

	// TokenDuration describes the lifetime of tokens this manager obtains.
	TokenDuration() string

	// Logout clears the cached credential.
	Logout(ctx context.Context) error
}
