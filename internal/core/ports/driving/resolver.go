package driving

import (
	"context"

	"github.com/pipeboard-co/meta-ads-mcp/internal/core/domain"
)

// CredentialResolver decides which upstream Meta credential a call uses.
// Sources are consulted in strict precedence order: explicit argument,
// header-injected context value, relay service, local OAuth cache, static
// environment token.
type CredentialResolver interface {
	// Resolve returns the active credential for this call. The explicit
	// argument, when non-empty, wins over every other source. Per-request
	// sources are read from the domain.AuthContext carried in ctx. Fails
	// with *domain.AuthRequiredError when no source resolves.
	Resolve(ctx context.Context, explicit string) (*domain.Resolution, error)

	// Refresh re-acquires the credential after an upstream rejection,
	// bypassing caches. Only relay-service and local-cache resolutions
	// can be refreshed; for all other sources it fails with
	// domain.ErrAuthInvalid.
	Refresh(ctx context.Context, prev *domain.Resolution) (*domain.Resolution, error)
}
