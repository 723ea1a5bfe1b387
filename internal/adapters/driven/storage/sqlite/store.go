// Package sqlite provides the durable multi-tenant store behind the hosted
// gateway: users, per-provider OAuth tokens and issued access keys.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/pipeboard-co/meta-ads-mcp/internal/adapters/driven/storage/sqlite/migrations"
	"github.com/pipeboard-co/meta-ads-mcp/internal/core/domain"
	"github.com/pipeboard-co/meta-ads-mcp/internal/core/ports/driven"
	"github.com/pipeboard-co/meta-ads-mcp/internal/security/pat"
)

// Store is the SQLite-backed tenant store. It exposes the individual store
// interfaces through wrapper types.
type Store struct {
	db   *sql.DB
	path string
}

// NewStore creates a new SQLite store at the specified data directory.
// If dataDir is empty, defaults to ~/.meta-ads-mcp.
func NewStore(dataDir string) (*Store, error) {
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".meta-ads-mcp")
	}

	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "gateway.db")

	// WAL mode for concurrent readers while the HTTP surface writes.
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &Store{db: db, path: dbPath}

	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// UserStore returns a UserStore interface backed by this store.
func (s *Store) UserStore() driven.UserStore {
	return &userStore{store: s}
}

// OAuthTokenStore returns an OAuthTokenStore interface backed by this store.
func (s *Store) OAuthTokenStore() driven.OAuthTokenStore {
	return &oauthTokenStore{store: s}
}

// AccessKeyStore returns an AccessKeyStore interface backed by this store.
func (s *Store) AccessKeyStore() driven.AccessKeyStore {
	return &accessKeyStore{store: s}
}

// migrate runs all pending migrations.
func (s *Store) migrate(fsys embed.FS) error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	var upFiles []string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".up.sql") {
			upFiles = append(upFiles, entry.Name())
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= currentVersion {
			continue
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		if _, err := s.db.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
	}

	return nil
}

// isUniqueViolation detects SQLite unique-constraint failures.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// ==================== User Store ====================

type userStore struct {
	store *Store
}

var _ driven.UserStore = (*userStore)(nil)

// CreateUser adds a user, failing with domain.ErrConflict on a duplicate email.
func (s *userStore) CreateUser(ctx context.Context, email string) (*domain.User, error) {
	if email == "" {
		return nil, fmt.Errorf("email: %w", domain.ErrInvalidInput)
	}

	user := domain.User{
		ID:        uuid.NewString(),
		Email:     email,
		CreatedAt: time.Now().UTC(),
	}

	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO users (id, email, created_at) VALUES (?, ?, ?)
	`, user.ID, user.Email, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("user %s: %w", email, domain.ErrConflict)
		}
		return nil, fmt.Errorf("creating user: %w", err)
	}

	return &user, nil
}

// GetUser retrieves a user by ID.
func (s *userStore) GetUser(ctx context.Context, id string) (*domain.User, error) {
	return s.getUser(ctx, "id = ?", id)
}

// GetUserByEmail retrieves a user by email (case-sensitive exact match).
func (s *userStore) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	return s.getUser(ctx, "email = ?", email)
}

func (s *userStore) getUser(ctx context.Context, where string, arg any) (*domain.User, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT id, email, created_at, last_login_at FROM users WHERE `+where, arg)

	var user domain.User
	var lastLogin sql.NullTime
	if err := row.Scan(&user.ID, &user.Email, &user.CreatedAt, &lastLogin); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning user: %w", err)
	}
	if lastLogin.Valid {
		user.LastLoginAt = &lastLogin.Time
	}

	return &user, nil
}

// TouchLogin records a successful authentication time.
func (s *userStore) TouchLogin(ctx context.Context, id string, at time.Time) error {
	_, err := s.store.db.ExecContext(ctx,
		"UPDATE users SET last_login_at = ? WHERE id = ?", at.UTC(), id)
	if err != nil {
		return fmt.Errorf("touching login: %w", err)
	}
	return nil
}

// DeleteUser removes a user; owned tokens and keys cascade.
func (s *userStore) DeleteUser(ctx context.Context, id string) error {
	res, err := s.store.db.ExecContext(ctx, "DELETE FROM users WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ==================== OAuth Token Store ====================

type oauthTokenStore struct {
	store *Store
}

var _ driven.OAuthTokenStore = (*oauthTokenStore)(nil)

// Upsert updates the (user, provider) record in place when it exists, else
// inserts. The whole write happens in one statement, so no partial update is
// ever visible.
func (s *oauthTokenStore) Upsert(ctx context.Context, token domain.OAuthToken) (*domain.OAuthToken, error) {
	if token.UserID == "" || token.AccessToken == "" {
		return nil, fmt.Errorf("oauth token: %w", domain.ErrInvalidInput)
	}
	if token.Provider == "" {
		token.Provider = domain.ProviderMeta
	}
	if token.ID == "" {
		token.ID = uuid.NewString()
	}
	token.UpdatedAt = time.Now().UTC()

	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO oauth_tokens (id, user_id, provider, access_token, refresh_token, expires_at, scopes, account_id, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, provider) DO UPDATE SET
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			expires_at = excluded.expires_at,
			scopes = excluded.scopes,
			account_id = excluded.account_id,
			updated_at = excluded.updated_at
	`, token.ID, token.UserID, token.Provider, token.AccessToken,
		nullString(token.RefreshToken), nullTime(token.ExpiresAt),
		nullString(token.Scopes), nullString(token.AccountID), token.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("upserting oauth token: %w", err)
	}

	// Re-read so the caller sees the surviving row's ID on update.
	return s.Get(ctx, token.UserID, token.Provider)
}

// Get returns the token for (userID, provider).
func (s *oauthTokenStore) Get(ctx context.Context, userID, provider string) (*domain.OAuthToken, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT id, user_id, provider, access_token, refresh_token, expires_at, scopes, account_id, updated_at
		FROM oauth_tokens WHERE user_id = ? AND provider = ?
	`, userID, provider)

	token, err := scanOAuthToken(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning oauth token: %w", err)
	}
	return token, nil
}

// ListByUser returns all provider tokens owned by the user.
func (s *oauthTokenStore) ListByUser(ctx context.Context, userID string) ([]domain.OAuthToken, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT id, user_id, provider, access_token, refresh_token, expires_at, scopes, account_id, updated_at
		FROM oauth_tokens WHERE user_id = ? ORDER BY provider
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("querying oauth tokens: %w", err)
	}
	defer rows.Close()

	var tokens []domain.OAuthToken //nolint:prealloc // size unknown from query
	for rows.Next() {
		token, err := scanOAuthToken(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning oauth token: %w", err)
		}
		tokens = append(tokens, *token)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating oauth tokens: %w", err)
	}

	return tokens, nil
}

func scanOAuthToken(scan func(...any) error) (*domain.OAuthToken, error) {
	var token domain.OAuthToken
	var refresh, scopes, accountID sql.NullString
	var expiresAt sql.NullTime
	if err := scan(&token.ID, &token.UserID, &token.Provider, &token.AccessToken,
		&refresh, &expiresAt, &scopes, &accountID, &token.UpdatedAt); err != nil {
		return nil, err
	}
	token.RefreshToken = refresh.String
	token.Scopes = scopes.String
	token.AccountID = accountID.String
	if expiresAt.Valid {
		token.ExpiresAt = &expiresAt.Time
	}
	return &token, nil
}

// ==================== Access Key Store ====================

type accessKeyStore struct {
	store *Store
}

var _ driven.AccessKeyStore = (*accessKeyStore)(nil)

// Issue creates a key and returns the plaintext exactly once.
func (s *accessKeyStore) Issue(ctx context.Context, userID, name string, scopes []string, expiresAt *time.Time) (string, *domain.PersonalAccessToken, error) {
	if userID == "" {
		return "", nil, fmt.Errorf("user id: %w", domain.ErrInvalidInput)
	}
	if name == "" {
		name = "API Token"
	}

	plaintext, prefix, hash, err := pat.Generate()
	if err != nil {
		return "", nil, fmt.Errorf("generating access key: %w", err)
	}

	record := domain.PersonalAccessToken{
		ID:          uuid.NewString(),
		UserID:      userID,
		Name:        name,
		TokenPrefix: prefix,
		TokenHash:   hash,
		Scopes:      scopes,
		CreatedAt:   time.Now().UTC(),
		ExpiresAt:   expiresAt,
	}

	var scopesJSON sql.NullString
	if len(scopes) > 0 {
		data, err := json.Marshal(scopes)
		if err != nil {
			return "", nil, fmt.Errorf("marshalling scopes: %w", err)
		}
		scopesJSON = sql.NullString{String: string(data), Valid: true}
	}

	_, err = s.store.db.ExecContext(ctx, `
		INSERT INTO personal_access_tokens (id, user_id, name, token_prefix, token_hash, scopes, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, record.ID, record.UserID, record.Name, record.TokenPrefix, record.TokenHash,
		scopesJSON, record.CreatedAt, nullTime(record.ExpiresAt))
	if err != nil {
		return "", nil, fmt.Errorf("saving access key: %w", err)
	}

	return plaintext, &record, nil
}

// Verify authenticates a presented plaintext. Candidates are narrowed by
// prefix, then every candidate is hash-compared; a prefix match alone never
// authenticates.
func (s *accessKeyStore) Verify(ctx context.Context, plaintext string) (*domain.User, error) {
	if plaintext == "" {
		return nil, domain.ErrNotFound
	}

	prefix := pat.ExtractPrefix(plaintext)
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT id, user_id, token_hash, expires_at, revoked_at
		FROM personal_access_tokens WHERE token_prefix = ?
	`, prefix)
	if err != nil {
		return nil, fmt.Errorf("querying access keys: %w", err)
	}
	defer rows.Close()

	type candidate struct {
		id        string
		userID    string
		expiresAt *time.Time
		revokedAt *time.Time
	}
	var match *candidate
	for rows.Next() {
		var c candidate
		var hash string
		var expiresAt, revokedAt sql.NullTime
		if err := rows.Scan(&c.id, &c.userID, &hash, &expiresAt, &revokedAt); err != nil {
			return nil, fmt.Errorf("scanning access key: %w", err)
		}
		if !pat.Verify(plaintext, hash) {
			continue
		}
		if expiresAt.Valid {
			c.expiresAt = &expiresAt.Time
		}
		if revokedAt.Valid {
			c.revokedAt = &revokedAt.Time
		}
		match = &c
		break
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating access keys: %w", err)
	}
	if match == nil {
		return nil, domain.ErrNotFound
	}

	// Revoked and expired are distinguished for observability even though
	// both deny access.
	if match.revokedAt != nil {
		return nil, fmt.Errorf("access key %s: %w", match.id, domain.ErrTokenRevoked)
	}
	if match.expiresAt != nil && time.Now().After(*match.expiresAt) {
		return nil, fmt.Errorf("access key %s: %w", match.id, domain.ErrTokenExpired)
	}

	now := time.Now().UTC()
	if _, err := s.store.db.ExecContext(ctx,
		"UPDATE personal_access_tokens SET last_used_at = ? WHERE id = ?", now, match.id); err != nil {
		return nil, fmt.Errorf("touching access key: %w", err)
	}

	user, err := (&userStore{store: s.store}).GetUser(ctx, match.userID)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// Revoke soft-deletes a key. A key owned by another tenant is reported as
// absent, not forbidden.
func (s *accessKeyStore) Revoke(ctx context.Context, id, ownerID string) error {
	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var userID string
	var revokedAt sql.NullTime
	row := tx.QueryRowContext(ctx,
		"SELECT user_id, revoked_at FROM personal_access_tokens WHERE id = ?", id)
	if err := row.Scan(&userID, &revokedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrNotFound
		}
		return fmt.Errorf("scanning access key: %w", err)
	}
	if userID != ownerID {
		return domain.ErrNotFound
	}
	if revokedAt.Valid {
		// Already revoked; revocation is idempotent.
		return tx.Commit()
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE personal_access_tokens SET revoked_at = ? WHERE id = ?", time.Now().UTC(), id); err != nil {
		return fmt.Errorf("revoking access key: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// ListByUser returns the user's keys, newest first.
func (s *accessKeyStore) ListByUser(ctx context.Context, userID string) ([]domain.PersonalAccessToken, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT id, user_id, name, token_prefix, token_hash, scopes, created_at, last_used_at, expires_at, revoked_at
		FROM personal_access_tokens WHERE user_id = ? ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("querying access keys: %w", err)
	}
	defer rows.Close()

	var keys []domain.PersonalAccessToken //nolint:prealloc // size unknown from query
	for rows.Next() {
		var key domain.PersonalAccessToken
		var scopesJSON sql.NullString
		var lastUsed, expiresAt, revokedAt sql.NullTime
		if err := rows.Scan(&key.ID, &key.UserID, &key.Name, &key.TokenPrefix, &key.TokenHash,
			&scopesJSON, &key.CreatedAt, &lastUsed, &expiresAt, &revokedAt); err != nil {
			return nil, fmt.Errorf("scanning access key: %w", err)
		}
		if scopesJSON.Valid {
			if err := json.Unmarshal([]byte(scopesJSON.String), &key.Scopes); err != nil {
				return nil, fmt.Errorf("unmarshalling scopes: %w", err)
			}
		}
		if lastUsed.Valid {
			key.LastUsedAt = &lastUsed.Time
		}
		if expiresAt.Valid {
			key.ExpiresAt = &expiresAt.Time
		}
		if revokedAt.Valid {
			key.RevokedAt = &revokedAt.Time
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating access keys: %w", err)
	}

	return keys, nil
}

// ==================== helpers ====================

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
