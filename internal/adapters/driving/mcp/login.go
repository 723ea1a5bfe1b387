package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/pipeboard-co/meta-ads-mcp/internal/core/domain"
)

// GetLoginLinkInput is the input schema for the get_login_link tool.
type GetLoginLinkInput struct {
	AccessToken string `json:"access_token,omitempty" jsonschema:"Meta API access token (optional - when set, a fresh login link is produced even if a token is cached)"`
}

// handleGetLoginLink produces a clickable OAuth URL for the interactive
// login. When a valid token is already cached and no override is supplied,
// it short-circuits with the authenticated status instead.
func (s *Server) handleGetLoginLink(ctx context.Context, _ *mcp.CallToolRequest, input GetLoginLinkInput) (*mcp.CallToolResult, any, error) {
	if s.ports.Auth == nil {
		return errorResult(fmt.Errorf("interactive login is not available in this deployment: %w", domain.ErrCallbackUnavailable)), nil, nil
	}

	if input.AccessToken == "" {
		if token, err := s.ports.Auth.GetAccessToken(ctx); err == nil {
			return &mcp.CallToolResult{
				Content: []mcp.Content{&mcp.TextContent{Text: mustJSON(map[string]any{
					"message":      "Already authenticated",
					"status":       "You're successfully authenticated with Meta Ads.",
					"token_info":   fmt.Sprintf("Token preview: %s", domain.Truncate(token, 10)),
					"ready_to_use": "You can now use all Meta Ads tools.",
				})}},
			}, nil, nil
		}
	}

	loginURL, err := s.ports.Auth.GetAuthURL(ctx)
	if err != nil {
		return errorResult(err), nil, nil
	}

	// Finish the exchange in the background once the user clicks through;
	// the server process outlives this tool call.
	go func() {
		if _, err := s.ports.Auth.CompleteAuthentication(context.Background()); err != nil {
			s.logger.Warn("interactive login did not complete", "error", err)
		}
	}()

	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: mustJSON(map[string]any{
			"message":        "Click to authenticate",
			"login_url":      loginURL,
			"markdown_link":  fmt.Sprintf("[Authenticate with Meta Ads](%s)", loginURL),
			"instructions":   "Click the link above to authenticate with Meta Ads.",
			"token_duration": s.ports.Auth.TokenDuration(),
			"note":           "The token is cached automatically once authorization completes.",
		})}},
	}, nil, nil
}
