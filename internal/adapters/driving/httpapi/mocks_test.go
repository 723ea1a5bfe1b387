package httpapi

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pipeboard-co/meta-ads-mcp/internal/core/domain"
	"github.com/pipeboard-co/meta-ads-mcp/internal/security/pat"
)

type memUsers struct {
	mu    sync.Mutex
	users map[string]*domain.User
}

func newMemUsers() *memUsers {
	return &memUsers{users: make(map[string]*domain.User)}
}

func (m *memUsers) CreateUser(_ context.Context, email string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			return nil, domain.ErrConflict
		}
	}
	u := &domain.User{ID: uuid.NewString(), Email: email, CreatedAt: time.Now()}
	m.users[u.ID] = u
	return u, nil
}

func (m *memUsers) GetUser(_ context.Context, id string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, domain.ErrNotFound
}

func (m *memUsers) GetUserByEmail(_ context.Context, email string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memUsers) TouchLogin(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		u.LastLoginAt = &at
		return nil
	}
	return domain.ErrNotFound
}

func (m *memUsers) DeleteUser(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.users, id)
	return nil
}

type memTokens struct {
	mu     sync.Mutex
	tokens map[string]domain.OAuthToken // userID + "/" + provider
}

func newMemTokens() *memTokens {
	return &memTokens{tokens: make(map[string]domain.OAuthToken)}
}

func (m *memTokens) Upsert(_ context.Context, t domain.OAuthToken) (*domain.OAuthToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := t.UserID + "/" + t.Provider
	if prev, ok := m.tokens[key]; ok {
		t.ID = prev.ID
	} else {
		t.ID = uuid.NewString()
	}
	t.UpdatedAt = time.Now()
	m.tokens[key] = t
	return &t, nil
}

func (m *memTokens) Get(_ context.Context, userID, provider string) (*domain.OAuthToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.tokens[userID+"/"+provider]; ok {
		return &t, nil
	}
	return nil, domain.ErrNotFound
}

func (m *memTokens) ListByUser(_ context.Context, userID string) ([]domain.OAuthToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.OAuthToken
	for _, t := range m.tokens {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	return out, nil
}

type memKeys struct {
	mu    sync.Mutex
	keys  map[string]*domain.PersonalAccessToken // by id
	plain map[string]string                      // plaintext -> id
	users *memUsers
}

func newMemKeys(users *memUsers) *memKeys {
	return &memKeys{
		keys:  make(map[string]*domain.PersonalAccessToken),
		plain: make(map[string]string),
		users: users,
	}
}

func (m *memKeys) Issue(_ context.Context, userID, name string, scopes []string, expiresAt *time.Time) (string, *domain.PersonalAccessToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	plaintext := pat.TokenPrefix + uuid.NewString()
	k := &domain.PersonalAccessToken{
		ID:          uuid.NewString(),
		UserID:      userID,
		Name:        name,
		TokenPrefix: pat.ExtractPrefix(plaintext),
		Scopes:      scopes,
		CreatedAt:   time.Now(),
		ExpiresAt:   expiresAt,
	}
	m.keys[k.ID] = k
	m.plain[plaintext] = k.ID
	cp := *k
	return plaintext, &cp, nil
}

func (m *memKeys) Verify(ctx context.Context, plaintext string) (*domain.User, error) {
	m.mu.Lock()
	id, ok := m.plain[plaintext]
	if !ok {
		m.mu.Unlock()
		return nil, domain.ErrNotFound
	}
	k := m.keys[id]
	if k.RevokedAt != nil {
		m.mu.Unlock()
		return nil, domain.ErrTokenRevoked
	}
	if k.ExpiresAt != nil && time.Now().After(*k.ExpiresAt) {
		m.mu.Unlock()
		return nil, domain.ErrTokenExpired
	}
	now := time.Now()
	k.LastUsedAt = &now
	userID := k.UserID
	m.mu.Unlock()
	return m.users.GetUser(ctx, userID)
}

func (m *memKeys) Revoke(_ context.Context, id, ownerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k, ok := m.keys[id]
	if !ok || k.UserID != ownerID {
		return domain.ErrNotFound
	}
	if k.RevokedAt == nil {
		now := time.Now()
		k.RevokedAt = &now
	}
	return nil
}

func (m *memKeys) ListByUser(_ context.Context, userID string) ([]domain.PersonalAccessToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.PersonalAccessToken
	for _, k := range m.keys {
		if k.UserID == userID {
			out = append(out, *k)
		}
	}
	return out, nil
}
