package httpapi

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pipeboard-co/meta-ads-mcp/internal/core/domain"
)

// bootstrapHeader gates tenant creation. It is a deployment secret, not a
// tenant credential.
const bootstrapHeader = "X-Bootstrap-Token"

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) bootstrapOK(r *http.Request) bool {
	if s.cfg.BootstrapToken == "" {
		return false
	}
	presented := r.Header.Get(bootstrapHeader)
	return subtle.ConstantTimeCompare([]byte(presented), []byte(s.cfg.BootstrapToken)) == 1
}

func (s *Server) requireUser(w http.ResponseWriter, r *http.Request) (*domain.User, bool) {
	if u := currentUser(r.Context()); u != nil {
		return u, true
	}
	writeError(w, http.StatusUnauthorized, "authentication required")
	return nil, false
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	if !s.bootstrapOK(r) {
		writeError(w, http.StatusUnauthorized, "bootstrap token required")
		return
	}

	var body struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Email == "" {
		writeError(w, http.StatusBadRequest, "email is required")
		return
	}

	user, err := s.users.CreateUser(r.Context(), body.Email)
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			writeError(w, http.StatusConflict, "user with this email already exists")
			return
		}
		s.logger.Error("creating user failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	s.logger.Info("user created", "user_id", user.ID, "email", user.Email)
	writeJSON(w, http.StatusCreated, user)
}

func (s *Server) handleIssueKey(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UserID    string   `json:"user_id"`
		Name      string   `json:"name"`
		Scopes    []string `json:"scopes"`
		ExpiresAt string   `json:"expires_at"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	// A tenant issues keys for itself; the bootstrap secret may issue for an
	// explicitly named tenant.
	user := currentUser(r.Context())
	if user == nil {
		if !s.bootstrapOK(r) {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		if body.UserID == "" {
			writeError(w, http.StatusBadRequest, "user_id required when using bootstrap auth")
			return
		}
		var err error
		user, err = s.users.GetUser(r.Context(), body.UserID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				writeError(w, http.StatusNotFound, "user not found")
				return
			}
			s.logger.Error("loading user failed", "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
	}

	name := body.Name
	if name == "" {
		name = "API Token"
	}
	expiresAt := parseTimeOrNil(body.ExpiresAt)

	plaintext, key, err := s.keys.Issue(r.Context(), user.ID, name, body.Scopes, expiresAt)
	if err != nil {
		s.logger.Error("issuing access key failed", "user_id", user.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	s.logger.Info("access key issued", "user_id", user.ID, "key_id", key.ID, "name", key.Name)
	writeJSON(w, http.StatusCreated, map[string]any{
		"id":         key.ID,
		"name":       key.Name,
		"token":      plaintext,
		"prefix":     key.TokenPrefix,
		"created_at": key.CreatedAt,
		"warning":    "Save this token now. You won't be able to see it again.",
	})
}

func (s *Server) handleListKeys(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requireUser(w, r)
	if !ok {
		return
	}

	keys, err := s.keys.ListByUser(r.Context(), user.ID)
	if err != nil {
		s.logger.Error("listing access keys failed", "user_id", user.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	out := make([]map[string]any, 0, len(keys))
	for _, k := range keys {
		out = append(out, map[string]any{
			"id":           k.ID,
			"name":         k.Name,
			"prefix":       k.TokenPrefix,
			"created_at":   k.CreatedAt,
			"last_used_at": k.LastUsedAt,
			"is_active":    k.IsActive(),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"tokens": out})
}

func (s *Server) handleRevokeKey(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requireUser(w, r)
	if !ok {
		return
	}

	id := chi.URLParam(r, "id")
	if err := s.keys.Revoke(r.Context(), id, user.ID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "token not found")
			return
		}
		s.logger.Error("revoking access key failed", "user_id", user.ID, "key_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	s.logger.Info("access key revoked", "user_id", user.ID, "key_id", id)
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Token revoked successfully",
		"id":      id,
	})
}

func (s *Server) handleSaveMetaToken(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requireUser(w, r)
	if !ok {
		return
	}

	var body struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresAt    string `json:"expires_at"`
		Scopes       string `json:"scopes"`
		AccountID    string `json:"account_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.AccessToken == "" {
		writeError(w, http.StatusBadRequest, "access_token is required")
		return
	}

	saved, err := s.tokens.Upsert(r.Context(), domain.OAuthToken{
		UserID:       user.ID,
		Provider:     domain.ProviderMeta,
		AccessToken:  body.AccessToken,
		RefreshToken: body.RefreshToken,
		ExpiresAt:    parseTimeOrNil(body.ExpiresAt),
		Scopes:       body.Scopes,
		AccountID:    body.AccountID,
	})
	if err != nil {
		s.logger.Error("saving upstream token failed", "user_id", user.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	s.logger.Info("upstream token saved", "user_id", user.ID, "provider", saved.Provider)
	writeJSON(w, http.StatusOK, map[string]any{
		"message":    "Meta token saved successfully",
		"provider":   saved.Provider,
		"updated_at": saved.UpdatedAt,
	})
}

func (s *Server) handleWhoami(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requireUser(w, r)
	if !ok {
		return
	}

	tokens, err := s.tokens.ListByUser(r.Context(), user.ID)
	if err != nil {
		s.logger.Error("listing provider tokens failed", "user_id", user.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	providers := make([]map[string]any, 0, len(tokens))
	for _, t := range tokens {
		providers = append(providers, map[string]any{
			"provider":   t.Provider,
			"account_id": t.AccountID,
			"scopes":     t.Scopes,
			"expires_at": t.ExpiresAt,
			"updated_at": t.UpdatedAt,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"id":            user.ID,
		"email":         user.Email,
		"created_at":    user.CreatedAt,
		"last_login_at": user.LastLoginAt,
		"providers":     providers,
	})
}

// parseTimeOrNil accepts an RFC 3339 timestamp, returning nil for empty or
// unparseable input.
func parseTimeOrNil(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil
	}
	return &t
}
