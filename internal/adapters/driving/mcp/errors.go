// Package mcp provides the MCP (Model Context Protocol) server adapter
// exposing Meta Ads Graph API operations as tools for LLM agents.
package mcp

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/pipeboard-co/meta-ads-mcp/internal/core/domain"
)

// ErrMissingResolver is returned when the credential resolver is not provided.
var ErrMissingResolver = errors.New("mcp: credential resolver is required")

// ErrMissingGraphClient is returned when the graph client is not provided.
var ErrMissingGraphClient = errors.New("mcp: graph client is required")

// ErrMissingRelayForwarder is returned when duplication is enabled without
// a relay forwarder.
var ErrMissingRelayForwarder = errors.New("mcp: relay forwarder is required when duplication is enabled")

// errorResult renders a failure as a JSON payload the calling agent can act
// on: a machine-parseable kind plus remediation. Tokens never appear in it.
func errorResult(err error) *mcp.CallToolResult {
	payload := map[string]any{
		"error": err.Error(),
	}

	var authErr *domain.AuthRequiredError
	var rateErr *domain.RateLimitError
	switch {
	case errors.As(err, &authErr):
		payload["kind"] = "auth_required"
		payload["checked_sources"] = authErr.Checked
	case errors.As(err, &rateErr):
		payload["kind"] = "rate_limited"
		if rateErr.RetryAfter > 0 {
			payload["retry_after_seconds"] = int(rateErr.RetryAfter.Seconds())
		}
	case errors.Is(err, domain.ErrAuthInvalid):
		payload["kind"] = "auth_invalid"
		payload["remediation"] = "the credential was rejected upstream; re-authenticate or supply a fresh access_token"
	case errors.Is(err, domain.ErrRateLimited):
		payload["kind"] = "rate_limited"
	case errors.Is(err, domain.ErrRelayAuthInvalid):
		payload["kind"] = "relay_auth_invalid"
		payload["remediation"] = "check the relay API key"
	case errors.Is(err, domain.ErrRelayPlanRequired):
		payload["kind"] = "upgrade_required"
		payload["remediation"] = "this operation is not covered by the current Pipeboard plan"
	case errors.Is(err, domain.ErrNotFound):
		payload["kind"] = "not_found"
	case errors.Is(err, domain.ErrRelayUnavailable):
		payload["kind"] = "relay_unavailable"
		payload["remediation"] = "the relay service is unreachable; retry shortly"
	case errors.Is(err, domain.ErrCallbackUnavailable), errors.Is(err, domain.ErrCallbackTimeout):
		payload["kind"] = "callback_failed"
		payload["remediation"] = "set the META_ACCESS_TOKEN environment variable instead of the interactive flow"
	case errors.Is(err, domain.ErrInvalidInput):
		payload["kind"] = "invalid_input"
	default:
		payload["kind"] = "internal"
	}

	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: mustJSON(payload)}},
	}
}

// jsonResult wraps a raw upstream response as the tool's text content.
func jsonResult(raw json.RawMessage) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(raw)}},
	}
}

func mustJSON(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf(`{"error": %q}`, err.Error())
	}
	return string(data)
}
