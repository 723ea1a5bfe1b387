package driven

import (
	"context"
	"time"

	"github.com/pipeboard-co/meta-ads-mcp/internal/core/domain"
)

// UserStore persists tenant records.
type UserStore interface {
	// CreateUser adds a user. Fails with domain.ErrConflict when the email
	// is already registered (case-sensitive exact match as stored).
	CreateUser(ctx context.Context, email string) (*domain.User, error)

	// GetUser returns a user by ID, or domain.ErrNotFound.
	GetUser(ctx context.Context, id string) (*domain.User, error)

	// GetUserByEmail returns a user by email, or domain.ErrNotFound.
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)

	// TouchLogin records a successful authentication time for the user.
	TouchLogin(ctx context.Context, id string, at time.Time) error

	// DeleteUser removes a user. All owned OAuth tokens and access keys
	// are deleted with it.
	DeleteUser(ctx context.Context, id string) error
}

// OAuthTokenStore persists per-tenant upstream credentials, one per
// (user, provider).
type OAuthTokenStore interface {
	// Upsert updates the (user, provider) record in place when it exists,
	// else inserts. The whole write is atomic: no partially updated record
	// is ever visible.
	Upsert(ctx context.Context, token domain.OAuthToken) (*domain.OAuthToken, error)

	// Get returns the token for (userID, provider), or domain.ErrNotFound.
	Get(ctx context.Context, userID, provider string) (*domain.OAuthToken, error)

	// ListByUser returns all provider tokens owned by the user.
	ListByUser(ctx context.Context, userID string) ([]domain.OAuthToken, error)
}

// AccessKeyStore manages tenant API keys (personal access tokens).
type AccessKeyStore interface {
	// Issue creates a key for the user and returns the plaintext exactly
	// once alongside the persisted record. The plaintext is never stored.
	Issue(ctx context.Context, userID, name string, scopes []string, expiresAt *time.Time) (string, *domain.PersonalAccessToken, error)

	// Verify authenticates a presented plaintext. Candidates are located
	// by prefix, then hash-compared; every prefix-matching candidate is
	// checked. Fails with domain.ErrNotFound (no match),
	// domain.ErrTokenRevoked or domain.ErrTokenExpired. On success the
	// key's last_used_at is touched.
	Verify(ctx context.Context, plaintext string) (*domain.User, error)

	// Revoke soft-deletes a key by setting revoked_at. Fails with
	// domain.ErrNotFound when the key does not exist OR does not belong
	// to ownerID; cross-tenant keys must be indistinguishable from absent
	// ones.
	Revoke(ctx context.Context, id, ownerID string) error

	// ListByUser returns the user's keys, newest first.
	ListByUser(ctx context.Context, userID string) ([]domain.PersonalAccessToken, error)
}
