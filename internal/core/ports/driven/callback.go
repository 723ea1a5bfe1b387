package driven

import (
	"context"
	"time"
)

// CallbackServer is the ephemeral local HTTP listener that completes an
// interactive OAuth authorization-code exchange.
type CallbackServer interface {
	// Start binds a local port and begins listening. Idempotent: when the
	// server is already running the existing port is returned without
	// rebinding. Fails with domain.ErrCallbackUnavailable when no port in
	// the probe range can be bound.
	Start(ctx context.Context) (int, error)

	// WaitForCode blocks until the authorization redirect delivers a code,
	// or fails with domain.ErrCallbackTimeout. Only one code is accepted
	// per server lifetime.
	WaitForCode(ctx context.Context, timeout time.Duration) (string, error)

	// SetExpectedState sets the state parameter the redirect must echo
	// back. An empty value disables the check.
	SetExpectedState(state string)

	// RedirectURI returns the localhost redirect URI for the bound port.
	// Only valid after Start.
	RedirectURI() string

	// Shutdown stops the listener and releases the port. Safe to call even
	// if the server was never started.
	Shutdown(ctx context.Context) error
}
