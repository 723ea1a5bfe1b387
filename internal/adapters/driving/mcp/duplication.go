package mcp

import (
	"context"
	"fmt"
	"net/url"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/pipeboard-co/meta-ads-mcp/internal/core/domain"
)

// Duplication runs through the relay service rather than the Graph API
// directly: the relay copies the object tree upstream and needs both the
// tenant's Meta token and a relay key. Defaults mirror what the relay
// applies server-side.
const (
	defaultNameSuffix = " - Copy"
	defaultNewStatus  = "PAUSED"
)

// registerDuplicationTools registers the relay-backed duplicate_* tools.
func (s *Server) registerDuplicationTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "duplicate_campaign",
		Description: "Duplicate a campaign, optionally including its ad sets, ads and creatives",
	}, s.handleDuplicateCampaign)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "duplicate_adset",
		Description: "Duplicate an ad set, optionally into a different campaign",
	}, s.handleDuplicateAdset)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "duplicate_ad",
		Description: "Duplicate an ad, optionally into a different ad set",
	}, s.handleDuplicateAd)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "duplicate_creative",
		Description: "Duplicate an ad creative",
	}, s.handleDuplicateCreative)
}

// DuplicateCampaignInput is the input schema for the duplicate_campaign tool.
type DuplicateCampaignInput struct {
	AccessToken      string  `json:"access_token,omitempty" jsonschema:"Meta API access token (optional - resolved automatically if not provided)"`
	CampaignID       string  `json:"campaign_id" jsonschema:"ID of the campaign to duplicate"`
	NameSuffix       *string `json:"name_suffix,omitempty" jsonschema:"suffix appended to the copied names (default ' - Copy')"`
	IncludeAdSets    *bool   `json:"include_ad_sets,omitempty" jsonschema:"copy the campaign's ad sets (default true)"`
	IncludeAds       *bool   `json:"include_ads,omitempty" jsonschema:"copy the ads within copied ad sets (default true)"`
	IncludeCreatives *bool   `json:"include_creatives,omitempty" jsonschema:"copy the creatives within copied ads (default true)"`
	NewStatus        string  `json:"new_status,omitempty" jsonschema:"status for the copies (default PAUSED)"`
}

func (s *Server) handleDuplicateCampaign(ctx context.Context, _ *mcp.CallToolRequest, input DuplicateCampaignInput) (*mcp.CallToolResult, any, error) {
	if input.CampaignID == "" {
		return errorResult(fmt.Errorf("campaign_id is required: %w", domain.ErrInvalidInput)), nil, nil
	}
	return s.forwardDuplicate(ctx, input.AccessToken, "campaign", input.CampaignID, map[string]any{
		"name_suffix":       orString(input.NameSuffix, defaultNameSuffix),
		"new_status":        orStatus(input.NewStatus),
		"include_ad_sets":   orBool(input.IncludeAdSets, true),
		"include_ads":       orBool(input.IncludeAds, true),
		"include_creatives": orBool(input.IncludeCreatives, true),
	})
}

// DuplicateAdsetInput is the input schema for the duplicate_adset tool.
type DuplicateAdsetInput struct {
	AccessToken      string  `json:"access_token,omitempty" jsonschema:"Meta API access token (optional - resolved automatically if not provided)"`
	AdsetID          string  `json:"adset_id" jsonschema:"ID of the ad set to duplicate"`
	TargetCampaignID string  `json:"target_campaign_id,omitempty" jsonschema:"campaign to duplicate into (default: same campaign)"`
	NameSuffix       *string `json:"name_suffix,omitempty" jsonschema:"suffix appended to the copied names (default ' - Copy')"`
	IncludeAds       *bool   `json:"include_ads,omitempty" jsonschema:"copy the ad set's ads (default true)"`
	NewStatus        string  `json:"new_status,omitempty" jsonschema:"status for the copies (default PAUSED)"`
}

func (s *Server) handleDuplicateAdset(ctx context.Context, _ *mcp.CallToolRequest, input DuplicateAdsetInput) (*mcp.CallToolResult, any, error) {
	if input.AdsetID == "" {
		return errorResult(fmt.Errorf("adset_id is required: %w", domain.ErrInvalidInput)), nil, nil
	}
	payload := map[string]any{
		"name_suffix": orString(input.NameSuffix, defaultNameSuffix),
		"new_status":  orStatus(input.NewStatus),
		"include_ads": orBool(input.IncludeAds, true),
	}
	if input.TargetCampaignID != "" {
		payload["target_campaign_id"] = input.TargetCampaignID
	}
	return s.forwardDuplicate(ctx, input.AccessToken, "adset", input.AdsetID, payload)
}

// DuplicateAdInput is the input schema for the duplicate_ad tool.
type DuplicateAdInput struct {
	AccessToken       string  `json:"access_token,omitempty" jsonschema:"Meta API access token (optional - resolved automatically if not provided)"`
	AdID              string  `json:"ad_id" jsonschema:"ID of the ad to duplicate"`
	TargetAdsetID     string  `json:"target_adset_id,omitempty" jsonschema:"ad set to duplicate into (default: same ad set)"`
	NameSuffix        *string `json:"name_suffix,omitempty" jsonschema:"suffix appended to the copied name (default ' - Copy')"`
	DuplicateCreative *bool   `json:"duplicate_creative,omitempty" jsonschema:"copy the creative too instead of sharing it (default true)"`
	NewStatus         string  `json:"new_status,omitempty" jsonschema:"status for the copy (default PAUSED)"`
}

func (s *Server) handleDuplicateAd(ctx context.Context, _ *mcp.CallToolRequest, input DuplicateAdInput) (*mcp.CallToolResult, any, error) {
	if input.AdID == "" {
		return errorResult(fmt.Errorf("ad_id is required: %w", domain.ErrInvalidInput)), nil, nil
	}
	payload := map[string]any{
		"name_suffix":        orString(input.NameSuffix, defaultNameSuffix),
		"new_status":         orStatus(input.NewStatus),
		"duplicate_creative": orBool(input.DuplicateCreative, true),
	}
	if input.TargetAdsetID != "" {
		payload["target_adset_id"] = input.TargetAdsetID
	}
	return s.forwardDuplicate(ctx, input.AccessToken, "ad", input.AdID, payload)
}

// DuplicateCreativeInput is the input schema for the duplicate_creative tool.
type DuplicateCreativeInput struct {
	AccessToken string  `json:"access_token,omitempty" jsonschema:"Meta API access token (optional - resolved automatically if not provided)"`
	CreativeID  string  `json:"creative_id" jsonschema:"ID of the creative to duplicate"`
	NameSuffix  *string `json:"name_suffix,omitempty" jsonschema:"suffix appended to the copied name (default ' - Copy')"`
}

func (s *Server) handleDuplicateCreative(ctx context.Context, _ *mcp.CallToolRequest, input DuplicateCreativeInput) (*mcp.CallToolResult, any, error) {
	if input.CreativeID == "" {
		return errorResult(fmt.Errorf("creative_id is required: %w", domain.ErrInvalidInput)), nil, nil
	}
	return s.forwardDuplicate(ctx, input.AccessToken, "creative", input.CreativeID, map[string]any{
		"name_suffix": orString(input.NameSuffix, defaultNameSuffix),
	})
}

// forwardDuplicate resolves both credentials and proxies the duplication
// through the relay, with the same refresh-and-retry-once the Graph tools
// get.
func (s *Server) forwardDuplicate(ctx context.Context, explicit, resourceType, resourceID string, payload map[string]any) (*mcp.CallToolResult, any, error) {
	relayKey := domain.AuthContextFrom(ctx).RelayKey
	if relayKey == "" {
		relayKey = s.ports.RelayKey
	}
	if relayKey == "" {
		return relayKeyMissingResult(), nil, nil
	}

	path := "/api/meta/duplicate/" + resourceType + "/" + url.PathEscape(resourceID)
	raw, err := s.callGraph(ctx, explicit, func(ctx context.Context, token string) ([]byte, error) {
		return s.ports.Relay.Forward(ctx, path, token, relayKey, payload)
	})
	if err != nil {
		return errorResult(err), nil, nil
	}
	return jsonResult(raw), nil, nil
}

func relayKeyMissingResult() *mcp.CallToolResult {
	payload := map[string]any{
		"error":       "duplication requires a relay key and none was supplied",
		"kind":        "relay_key_required",
		"remediation": "send the X-Pipeboard-Token header with the request, or set the PIPEBOARD_API_TOKEN environment variable",
	}
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: mustJSON(payload)}},
	}
}

func orString(v *string, def string) string {
	if v != nil {
		return *v
	}
	return def
}

func orBool(v *bool, def bool) bool {
	if v != nil {
		return *v
	}
	return def
}

func orStatus(v string) string {
	if v != "" {
		return v
	}
	return defaultNewStatus
}
