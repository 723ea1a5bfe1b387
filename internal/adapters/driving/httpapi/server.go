package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/pipeboard-co/meta-ads-mcp/internal/core/ports/driven"
)

// Config holds the administrative surface's own settings.
type Config struct {
	// BootstrapToken gates tenant creation and out-of-band key issuance.
	// Empty disables every bootstrap-gated endpoint.
	BootstrapToken string
}

// Server serves the admin endpoints and, when an MCP handler is supplied,
// mounts it at /mcp behind the auth middleware.
type Server struct {
	cfg    Config
	users  driven.UserStore
	tokens driven.OAuthTokenStore
	keys   driven.AccessKeyStore
	mcp    http.Handler
	logger *slog.Logger
}

// NewServer wires the admin surface. mcp may be nil when only the
// administrative endpoints are wanted.
func NewServer(cfg Config, users driven.UserStore, tokens driven.OAuthTokenStore, keys driven.AccessKeyStore, mcp http.Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:    cfg,
		users:  users,
		tokens: tokens,
		keys:   keys,
		mcp:    mcp,
		logger: logger.With("component", "httpapi"),
	}
}

// Router builds the full route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)

	r.Get("/health", s.handleHealth)

	r.Route("/v1", func(r chi.Router) {
		r.Use(s.authenticate)
		r.Post("/users", s.handleCreateUser)
		r.Post("/pats", s.handleIssueKey)
		r.Get("/pats", s.handleListKeys)
		r.Delete("/pats/{id}", s.handleRevokeKey)
		r.Post("/meta/token", s.handleSaveMetaToken)
		r.Get("/me", s.handleWhoami)
	})

	if s.mcp != nil {
		r.Group(func(r chi.Router) {
			r.Use(s.authenticate)
			r.Mount("/mcp", s.mcp)
		})
	}

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
