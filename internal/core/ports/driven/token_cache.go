package driven

import (
	"context"

	"github.com/pipeboard-co/meta-ads-mcp/internal/core/domain"
)

// TokenCache persists a single cached upstream credential for local
// single-tenant mode.
type TokenCache interface {
	// Get returns the cached token. Returns domain.ErrNotFound when no
	// token has been cached yet. Expiry is NOT checked here; callers
	// inspect TokenInfo.IsExpired.
	Get(ctx context.Context) (*domain.TokenInfo, error)

	// Save persists the token, replacing any previous value. A partial or
	// corrupt record must never become visible.
	Save(ctx context.Context, info domain.TokenInfo) error

	// Clear removes the cached token. Clearing an empty cache is not an error.
	Clear(ctx context.Context) error
}
