package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist, or is not
	// visible to the requesting tenant. The two cases are deliberately
	// indistinguishable to callers.
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates a unique-constrained entity already exists.
	ErrConflict = errors.New("already exists")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// Authentication Errors.

	// ErrAuthRequired indicates no credential source could supply an
	// upstream token.
	ErrAuthRequired = errors.New("authentication required")

	// ErrAuthInvalid indicates a credential was found but rejected by the
	// upstream or relay service.
	ErrAuthInvalid = errors.New("authentication invalid")

	// ErrTokenExpired indicates a credential exists but is past its expiry.
	ErrTokenExpired = errors.New("token expired")

	// ErrTokenRevoked indicates an access key has been revoked.
	ErrTokenRevoked = errors.New("token revoked")

	// Interactive flow errors.

	// ErrCallbackUnavailable indicates the local callback server could not
	// bind any port in its probe range.
	ErrCallbackUnavailable = errors.New("callback server unavailable")

	// ErrCallbackTimeout indicates the authorization redirect never arrived.
	ErrCallbackTimeout = errors.New("callback timed out")

	// Relay service errors.

	// ErrRelayUnavailable indicates a transient failure talking to the
	// relay service. Safe to retry with backoff.
	ErrRelayUnavailable = errors.New("relay service unavailable")

	// ErrRelayAuthInvalid indicates the relay rejected the relay key itself.
	// Not retryable without user action.
	ErrRelayAuthInvalid = errors.New("relay authentication invalid")

	// ErrRelayPlanRequired indicates the relay declined an operation that
	// the tenant's subscription does not cover.
	ErrRelayPlanRequired = errors.New("relay plan upgrade required")

	// Upstream errors.

	// ErrRateLimited indicates the upstream signalled throttling.
	ErrRateLimited = errors.New("rate limited")
)

// SourceHint describes one credential source that was consulted and how a
// caller can supply it.
type SourceHint struct {
	Source ResolutionSource `json:"source"`
	Hint   string           `json:"hint"`
}

// AuthRequiredError reports that every credential source was consulted and
// none resolved. It carries machine-readable remediation data per source.
type AuthRequiredError struct {
	Checked []SourceHint
}

func (e *AuthRequiredError) Error() string {
	if len(e.Checked) == 0 {
		return ErrAuthRequired.Error()
	}
	names := make([]string, len(e.Checked))
	for i, c := range e.Checked {
		names[i] = string(c.Source)
	}
	return fmt.Sprintf("authentication required: no credential from [%s]", strings.Join(names, ", "))
}

// Unwrap makes the error match errors.Is(err, ErrAuthRequired).
func (e *AuthRequiredError) Unwrap() error {
	return ErrAuthRequired
}

// RateLimitError wraps ErrRateLimited with the upstream's retry-after hint.
// A zero RetryAfter means the upstream gave no hint.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited: retry after %s", e.RetryAfter)
	}
	return ErrRateLimited.Error()
}

func (e *RateLimitError) Unwrap() error {
	return ErrRateLimited
}
