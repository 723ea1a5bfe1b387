package driven

import (
	"context"
	"encoding/json"
)

// RelayClient resolves upstream Meta tokens through the hosted auth-relay
// service. The relay holds the tenant's Meta credential; the opaque relay
// key authenticates the lookup.
type RelayClient interface {
	// GetAccessToken exchanges the relay key for a Meta access token.
	// forceRefresh bypasses the client's cache and re-queries the relay,
	// used after a downstream 401 to distinguish a stale cache from a bad
	// relay credential. Fails with domain.ErrRelayUnavailable (transient)
	// or domain.ErrRelayAuthInvalid (the relay key itself was rejected).
	GetAccessToken(ctx context.Context, relayKey string, forceRefresh bool) (string, error)
}

// RelayForwarder proxies bulk operations through the relay service, which
// performs them against the upstream API on the tenant's behalf. Distinct
// from RelayClient because forwarding needs both credentials at once: the
// upstream token authorises the operation, the relay key authorises the
// relay itself.
type RelayForwarder interface {
	// Forward POSTs the payload to the relay path and returns the relay's
	// response body. Fails with domain.ErrAuthInvalid (upstream token
	// rejected), domain.ErrRelayAuthInvalid (relay key rejected),
	// domain.ErrRelayPlanRequired (operation not covered by the tenant's
	// plan), domain.ErrNotFound, domain.ErrInvalidInput,
	// *domain.RateLimitError, or domain.ErrRelayUnavailable (transient).
	Forward(ctx context.Context, path, upstreamToken, relayKey string, payload map[string]any) (json.RawMessage, error)
}
