package domain

import "time"

// ProviderMeta is the provider name under which Meta Graph API tokens are
// stored in the tenant store.
const ProviderMeta = "meta"

// User is a tenant of the hosted gateway. Deleting a user cascades to all
// owned OAuth tokens and access keys.
type User struct {
	ID          string     `json:"id"`
	Email       string     `json:"email"`
	CreatedAt   time.Time  `json:"created_at"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
}

// OAuthToken is a tenant's upstream credential for one provider. There is at
// most one per (user, provider); saves upsert in place.
type OAuthToken struct {
	ID           string     `json:"id"`
	UserID       string     `json:"user_id"`
	Provider     string     `json:"provider"`
	AccessToken  string     `json:"-"`
	RefreshToken string     `json:"-"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	Scopes       string     `json:"scopes,omitempty"`
	AccountID    string     `json:"account_id,omitempty"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// IsExpired reports whether the token has a known expiry in the past.
func (t OAuthToken) IsExpired() bool {
	return t.ExpiresAt != nil && time.Now().After(*t.ExpiresAt)
}

// PersonalAccessToken is a tenant API key record. The plaintext is revealed
// exactly once at issue time; only the prefix and hash are persisted.
type PersonalAccessToken struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	Name        string     `json:"name"`
	TokenPrefix string     `json:"prefix"`
	TokenHash   string     `json:"-"`
	Scopes      []string   `json:"scopes,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	LastUsedAt  *time.Time `json:"last_used_at,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	RevokedAt   *time.Time `json:"revoked_at,omitempty"`
}

// IsActive reports whether the key can still authenticate: not revoked and
// not past its optional expiry.
func (p PersonalAccessToken) IsActive() bool {
	if p.RevokedAt != nil {
		return false
	}
	return p.ExpiresAt == nil || time.Now().Before(*p.ExpiresAt)
}
