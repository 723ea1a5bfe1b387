package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/pipeboard-co/meta-ads-mcp/internal/core/domain"
)

// Version is the MCP server version.
const Version = "0.1.0"

// Server is the MCP server exposing the Meta Ads tools.
type Server struct {
	ports  *Ports
	server *mcp.Server
	logger *slog.Logger
}

// NewServer creates a new MCP server with the given ports.
func NewServer(ports *Ports, logger *slog.Logger) (*Server, error) {
	if err := ports.Validate(); err != nil {
		return nil, fmt.Errorf("validating ports: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	impl := &mcp.Implementation{
		Name:    "meta-ads",
		Version: Version,
	}

	s := &Server{
		ports:  ports,
		server: mcp.NewServer(impl, nil),
		logger: logger,
	}

	s.registerTools()

	return s, nil
}

// Run starts the MCP server over stdio.
// It blocks until the context is cancelled or an error occurs.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// Handler returns the streamable HTTP handler for hosted mode. The caller
// wraps it with the auth middleware that injects the per-request
// domain.AuthContext.
func (s *Server) Handler() http.Handler {
	return mcp.NewStreamableHTTPHandler(func(_ *http.Request) *mcp.Server {
		return s.server
	}, nil)
}

// callGraph resolves a credential, performs the call, and retries exactly
// once with a refreshed credential when the upstream rejects the first one.
func (s *Server) callGraph(ctx context.Context, explicit string, call func(ctx context.Context, token string) ([]byte, error)) ([]byte, error) {
	res, err := s.ports.Resolver.Resolve(ctx, explicit)
	if err != nil {
		return nil, err
	}

	raw, err := call(ctx, res.Token)
	if err == nil || !errors.Is(err, domain.ErrAuthInvalid) {
		return raw, err
	}

	s.logger.Debug("credential rejected upstream, refreshing once", "source", res.Source)
	refreshed, refreshErr := s.ports.Resolver.Refresh(ctx, res)
	if refreshErr != nil {
		// The original rejection is the more useful failure.
		return nil, err
	}
	return call(ctx, refreshed.Token)
}
