package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/pipeboard-co/meta-ads-mcp/internal/core/domain"
)

// Field sets mirror what the upstream API returns by default plus the fields
// agents ask about most. The API has many more; extend here when needed.
const (
	accountFields  = "id,name,account_id,account_status,amount_spent,balance,currency,age,business_city,business_country_code"
	campaignFields = "id,name,objective,status,daily_budget,lifetime_budget,buying_type,start_time,stop_time,created_time,updated_time,bid_strategy"
	adsetFields    = "id,name,campaign_id,status,daily_budget,lifetime_budget,targeting,bid_amount,bid_strategy,optimization_goal,billing_event,start_time,end_time,created_time,updated_time,is_dynamic_creative,frequency_control_specs{event,interval_days,max_frequency}"
	adFields       = "id,name,adset_id,campaign_id,status,creative,created_time,updated_time,bid_amount,tracking_specs"
	insightFields  = "account_id,account_name,campaign_id,campaign_name,adset_id,adset_name,ad_id,ad_name,impressions,clicks,spend,cpc,cpm,ctr,reach,frequency,actions,conversions,unique_clicks,cost_per_action_type"
)

// registerTools registers all tool handlers with the MCP server.
func (s *Server) registerTools() {
	if !s.ports.DisableLoginLink {
		mcp.AddTool(s.server, &mcp.Tool{
			Name:        "get_login_link",
			Description: "Get a clickable login link for Meta Ads authentication",
		}, s.handleGetLoginLink)
	}

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "get_ad_accounts",
		Description: "Get ad accounts accessible by a user. Monetary amounts are returned in currency units, not cents.",
	}, s.handleGetAdAccounts)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "get_account_info",
		Description: "Get detailed information about a specific ad account",
	}, s.handleGetAccountInfo)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "get_campaigns",
		Description: "Get campaigns for a Meta Ads account with optional filtering by status and objective",
	}, s.handleGetCampaigns)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "get_campaign_details",
		Description: "Get detailed information about a specific campaign",
	}, s.handleGetCampaignDetails)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "create_campaign",
		Description: "Create a new campaign in a Meta Ads account",
	}, s.handleCreateCampaign)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "update_campaign",
		Description: "Update an existing campaign (status, name, budgets)",
	}, s.handleUpdateCampaign)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "get_adsets",
		Description: "Get ad sets for a Meta Ads account with optional filtering by campaign",
	}, s.handleGetAdsets)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "get_adset_details",
		Description: "Get detailed information about a specific ad set",
	}, s.handleGetAdsetDetails)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "update_adset",
		Description: "Update an existing ad set (status, bids, frequency caps)",
	}, s.handleUpdateAdset)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "get_ads",
		Description: "Get ads for a Meta Ads account with optional filtering by campaign or ad set",
	}, s.handleGetAds)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "get_ad_details",
		Description: "Get detailed information about a specific ad",
	}, s.handleGetAdDetails)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "get_insights",
		Description: "Get performance insights for a campaign, ad set, ad or account",
	}, s.handleGetInsights)

	if s.ports.EnableDuplication {
		s.registerDuplicationTools()
	}
}

// normalizeAccountID ensures the act_ prefix the API expects.
func normalizeAccountID(id string) string {
	if id == "" || strings.HasPrefix(id, "act_") {
		return id
	}
	return "act_" + id
}

// ==================== Accounts ====================

// GetAdAccountsInput is the input schema for the get_ad_accounts tool.
type GetAdAccountsInput struct {
	AccessToken string `json:"access_token,omitempty" jsonschema:"Meta API access token (optional - resolved automatically if not provided)"`
	UserID      string `json:"user_id,omitempty" jsonschema:"Meta user ID or 'me' for the current user (default 'me')"`
	Limit       int    `json:"limit,omitempty" jsonschema:"maximum number of accounts to return (default 200)"`
}

func (s *Server) handleGetAdAccounts(ctx context.Context, _ *mcp.CallToolRequest, input GetAdAccountsInput) (*mcp.CallToolResult, any, error) {
	userID := input.UserID
	if userID == "" {
		userID = "me"
	}
	limit := input.Limit
	if limit <= 0 {
		limit = 200
	}

	params := url.Values{}
	params.Set("fields", accountFields)
	params.Set("limit", strconv.Itoa(limit))

	raw, err := s.callGraph(ctx, input.AccessToken, func(ctx context.Context, token string) ([]byte, error) {
		return s.ports.Graph.Get(ctx, userID+"/adaccounts", token, params)
	})
	if err != nil {
		return errorResult(err), nil, nil
	}
	return jsonResult(normalizeAccountList(raw)), nil, nil
}

// GetAccountInfoInput is the input schema for the get_account_info tool.
type GetAccountInfoInput struct {
	AccountID   string `json:"account_id" jsonschema:"Meta Ads account ID (format: act_XXXXXXXXX, the act_ prefix is added if missing)"`
	AccessToken string `json:"access_token,omitempty" jsonschema:"Meta API access token (optional - resolved automatically if not provided)"`
}

func (s *Server) handleGetAccountInfo(ctx context.Context, _ *mcp.CallToolRequest, input GetAccountInfoInput) (*mcp.CallToolResult, any, error) {
	if input.AccountID == "" {
		return errorResult(fmt.Errorf("no account ID specified: %w", domain.ErrInvalidInput)), nil, nil
	}
	accountID := normalizeAccountID(input.AccountID)

	params := url.Values{}
	params.Set("fields", accountFields+",timezone_name")

	raw, err := s.callGraph(ctx, input.AccessToken, func(ctx context.Context, token string) ([]byte, error) {
		return s.ports.Graph.Get(ctx, accountID, token, params)
	})
	if err != nil {
		return errorResult(err), nil, nil
	}
	return jsonResult(normalizeAccount(raw)), nil, nil
}

// ==================== Campaigns ====================

// GetCampaignsInput is the input schema for the get_campaigns tool.
type GetCampaignsInput struct {
	AccountID       string   `json:"account_id" jsonschema:"Meta Ads account ID (format: act_XXXXXXXXX)"`
	AccessToken     string   `json:"access_token,omitempty" jsonschema:"Meta API access token (optional - resolved automatically if not provided)"`
	Limit           int      `json:"limit,omitempty" jsonschema:"maximum number of campaigns to return (default 10)"`
	StatusFilter    string   `json:"status_filter,omitempty" jsonschema:"filter by effective status, e.g. ACTIVE, PAUSED, ARCHIVED"`
	ObjectiveFilter []string `json:"objective_filter,omitempty" jsonschema:"filter by campaign objectives, e.g. OUTCOME_LEADS, OUTCOME_SALES"`
	After           string   `json:"after,omitempty" jsonschema:"pagination cursor for the next page of results"`
}

func (s *Server) handleGetCampaigns(ctx context.Context, _ *mcp.CallToolRequest, input GetCampaignsInput) (*mcp.CallToolResult, any, error) {
	if input.AccountID == "" {
		return errorResult(fmt.Errorf("no account ID specified: %w", domain.ErrInvalidInput)), nil, nil
	}
	accountID := normalizeAccountID(input.AccountID)

	limit := input.Limit
	if limit <= 0 {
		limit = 10
	}

	params := url.Values{}
	params.Set("fields", campaignFields)
	params.Set("limit", strconv.Itoa(limit))

	// effective_status is an array parameter, JSON-encoded.
	if input.StatusFilter != "" {
		params.Set("effective_status", mustCompactJSON([]string{input.StatusFilter}))
	}
	if objectives := nonEmpty(input.ObjectiveFilter); len(objectives) > 0 {
		params.Set("filtering", mustCompactJSON([]map[string]any{{
			"field":    "objective",
			"operator": "IN",
			"value":    objectives,
		}}))
	}
	if input.After != "" {
		params.Set("after", input.After)
	}

	raw, err := s.callGraph(ctx, input.AccessToken, func(ctx context.Context, token string) ([]byte, error) {
		return s.ports.Graph.Get(ctx, accountID+"/campaigns", token, params)
	})
	if err != nil {
		return errorResult(err), nil, nil
	}
	return jsonResult(raw), nil, nil
}

// GetCampaignDetailsInput is the input schema for the get_campaign_details tool.
type GetCampaignDetailsInput struct {
	CampaignID  string `json:"campaign_id" jsonschema:"Meta Ads campaign ID"`
	AccessToken string `json:"access_token,omitempty" jsonschema:"Meta API access token (optional - resolved automatically if not provided)"`
}

func (s *Server) handleGetCampaignDetails(ctx context.Context, _ *mcp.CallToolRequest, input GetCampaignDetailsInput) (*mcp.CallToolResult, any, error) {
	if input.CampaignID == "" {
		return errorResult(fmt.Errorf("no campaign ID provided: %w", domain.ErrInvalidInput)), nil, nil
	}

	params := url.Values{}
	params.Set("fields", campaignFields+",special_ad_categories,special_ad_category_country,budget_remaining,configured_status")

	raw, err := s.callGraph(ctx, input.AccessToken, func(ctx context.Context, token string) ([]byte, error) {
		return s.ports.Graph.Get(ctx, input.CampaignID, token, params)
	})
	if err != nil {
		return errorResult(err), nil, nil
	}
	return jsonResult(raw), nil, nil
}

// CreateCampaignInput is the input schema for the create_campaign tool.
type CreateCampaignInput struct {
	AccountID           string   `json:"account_id" jsonschema:"Meta Ads account ID (format: act_XXXXXXXXX)"`
	Name                string   `json:"name" jsonschema:"campaign name"`
	Objective           string   `json:"objective" jsonschema:"campaign objective: OUTCOME_AWARENESS, OUTCOME_TRAFFIC, OUTCOME_ENGAGEMENT, OUTCOME_LEADS, OUTCOME_SALES or OUTCOME_APP_PROMOTION"`
	AccessToken         string   `json:"access_token,omitempty" jsonschema:"Meta API access token (optional - resolved automatically if not provided)"`
	Status              string   `json:"status,omitempty" jsonschema:"initial status, ACTIVE or PAUSED (default PAUSED)"`
	SpecialAdCategories []string `json:"special_ad_categories,omitempty" jsonschema:"special ad categories, e.g. HOUSING, EMPLOYMENT, CREDIT (default none)"`
	DailyBudget         string   `json:"daily_budget,omitempty" jsonschema:"daily budget in account currency cents"`
	LifetimeBudget      string   `json:"lifetime_budget,omitempty" jsonschema:"lifetime budget in account currency cents"`
	BuyingType          string   `json:"buying_type,omitempty" jsonschema:"buying type, e.g. AUCTION"`
	BidStrategy         string   `json:"bid_strategy,omitempty" jsonschema:"bid strategy, e.g. LOWEST_COST_WITHOUT_CAP"`
	StartTime           string   `json:"start_time,omitempty" jsonschema:"ISO 8601 start time"`
	StopTime            string   `json:"stop_time,omitempty" jsonschema:"ISO 8601 stop time"`
}

func (s *Server) handleCreateCampaign(ctx context.Context, _ *mcp.CallToolRequest, input CreateCampaignInput) (*mcp.CallToolResult, any, error) {
	switch {
	case input.AccountID == "":
		return errorResult(fmt.Errorf("no account ID specified: %w", domain.ErrInvalidInput)), nil, nil
	case input.Name == "":
		return errorResult(fmt.Errorf("no campaign name provided: %w", domain.ErrInvalidInput)), nil, nil
	case input.Objective == "":
		return errorResult(fmt.Errorf("no campaign objective provided: %w", domain.ErrInvalidInput)), nil, nil
	}
	accountID := normalizeAccountID(input.AccountID)

	status := input.Status
	if status == "" {
		status = "PAUSED"
	}

	params := url.Values{}
	params.Set("name", input.Name)
	params.Set("objective", input.Objective)
	params.Set("status", status)
	// Required by the API even when empty.
	params.Set("special_ad_categories", mustCompactJSON(orEmptySlice(input.SpecialAdCategories)))
	setIfPresent(params, "daily_budget", input.DailyBudget)
	setIfPresent(params, "lifetime_budget", input.LifetimeBudget)
	setIfPresent(params, "buying_type", input.BuyingType)
	setIfPresent(params, "bid_strategy", input.BidStrategy)
	setIfPresent(params, "start_time", input.StartTime)
	setIfPresent(params, "stop_time", input.StopTime)

	raw, err := s.callGraph(ctx, input.AccessToken, func(ctx context.Context, token string) ([]byte, error) {
		return s.ports.Graph.Post(ctx, accountID+"/campaigns", token, params)
	})
	if err != nil {
		return errorResult(err), nil, nil
	}
	return jsonResult(raw), nil, nil
}

// UpdateCampaignInput is the input schema for the update_campaign tool.
type UpdateCampaignInput struct {
	CampaignID     string `json:"campaign_id" jsonschema:"Meta Ads campaign ID"`
	AccessToken    string `json:"access_token,omitempty" jsonschema:"Meta API access token (optional - resolved automatically if not provided)"`
	Name           string `json:"name,omitempty" jsonschema:"new campaign name"`
	Status         string `json:"status,omitempty" jsonschema:"new status, ACTIVE or PAUSED"`
	DailyBudget    string `json:"daily_budget,omitempty" jsonschema:"new daily budget in account currency cents"`
	LifetimeBudget string `json:"lifetime_budget,omitempty" jsonschema:"new lifetime budget in account currency cents"`
	BidStrategy    string `json:"bid_strategy,omitempty" jsonschema:"new bid strategy"`
}

func (s *Server) handleUpdateCampaign(ctx context.Context, _ *mcp.CallToolRequest, input UpdateCampaignInput) (*mcp.CallToolResult, any, error) {
	if input.CampaignID == "" {
		return errorResult(fmt.Errorf("no campaign ID provided: %w", domain.ErrInvalidInput)), nil, nil
	}

	params := url.Values{}
	setIfPresent(params, "name", input.Name)
	setIfPresent(params, "status", input.Status)
	setIfPresent(params, "daily_budget", input.DailyBudget)
	setIfPresent(params, "lifetime_budget", input.LifetimeBudget)
	setIfPresent(params, "bid_strategy", input.BidStrategy)
	if len(params) == 0 {
		return errorResult(fmt.Errorf("no fields to update: %w", domain.ErrInvalidInput)), nil, nil
	}

	raw, err := s.callGraph(ctx, input.AccessToken, func(ctx context.Context, token string) ([]byte, error) {
		return s.ports.Graph.Post(ctx, input.CampaignID, token, params)
	})
	if err != nil {
		return errorResult(err), nil, nil
	}
	return jsonResult(raw), nil, nil
}

// ==================== Ad Sets ====================

// GetAdsetsInput is the input schema for the get_adsets tool.
type GetAdsetsInput struct {
	AccountID   string `json:"account_id" jsonschema:"Meta Ads account ID (format: act_XXXXXXXXX)"`
	AccessToken string `json:"access_token,omitempty" jsonschema:"Meta API access token (optional - resolved automatically if not provided)"`
	Limit       int    `json:"limit,omitempty" jsonschema:"maximum number of ad sets to return (default 10)"`
	CampaignID  string `json:"campaign_id,omitempty" jsonschema:"optional campaign ID to list ad sets of a single campaign"`
}

func (s *Server) handleGetAdsets(ctx context.Context, _ *mcp.CallToolRequest, input GetAdsetsInput) (*mcp.CallToolResult, any, error) {
	if input.AccountID == "" && input.CampaignID == "" {
		return errorResult(fmt.Errorf("no account ID specified: %w", domain.ErrInvalidInput)), nil, nil
	}

	limit := input.Limit
	if limit <= 0 {
		limit = 10
	}

	// The campaign edge already scopes the query; otherwise list per account.
	endpoint := normalizeAccountID(input.AccountID) + "/adsets"
	if input.CampaignID != "" {
		endpoint = input.CampaignID + "/adsets"
	}

	params := url.Values{}
	params.Set("fields", adsetFields)
	params.Set("limit", strconv.Itoa(limit))

	raw, err := s.callGraph(ctx, input.AccessToken, func(ctx context.Context, token string) ([]byte, error) {
		return s.ports.Graph.Get(ctx, endpoint, token, params)
	})
	if err != nil {
		return errorResult(err), nil, nil
	}
	return jsonResult(raw), nil, nil
}

// GetAdsetDetailsInput is the input schema for the get_adset_details tool.
type GetAdsetDetailsInput struct {
	AdsetID     string `json:"adset_id" jsonschema:"Meta Ads ad set ID"`
	AccessToken string `json:"access_token,omitempty" jsonschema:"Meta API access token (optional - resolved automatically if not provided)"`
}

func (s *Server) handleGetAdsetDetails(ctx context.Context, _ *mcp.CallToolRequest, input GetAdsetDetailsInput) (*mcp.CallToolResult, any, error) {
	if input.AdsetID == "" {
		return errorResult(fmt.Errorf("no ad set ID provided: %w", domain.ErrInvalidInput)), nil, nil
	}

	params := url.Values{}
	params.Set("fields", adsetFields+",attribution_spec,destination_type,promoted_object,pacing_type,budget_remaining")

	raw, err := s.callGraph(ctx, input.AccessToken, func(ctx context.Context, token string) ([]byte, error) {
		return s.ports.Graph.Get(ctx, input.AdsetID, token, params)
	})
	if err != nil {
		return errorResult(err), nil, nil
	}
	return jsonResult(raw), nil, nil
}

// UpdateAdsetInput is the input schema for the update_adset tool.
type UpdateAdsetInput struct {
	AdsetID               string           `json:"adset_id" jsonschema:"Meta Ads ad set ID"`
	AccessToken           string           `json:"access_token,omitempty" jsonschema:"Meta API access token (optional - resolved automatically if not provided)"`
	Status                string           `json:"status,omitempty" jsonschema:"new status, ACTIVE or PAUSED"`
	BidStrategy           string           `json:"bid_strategy,omitempty" jsonschema:"new bid strategy, e.g. LOWEST_COST_WITH_BID_CAP"`
	BidAmount             int              `json:"bid_amount,omitempty" jsonschema:"new bid amount in account currency cents"`
	OptimizationGoal      string           `json:"optimization_goal,omitempty" jsonschema:"new optimization goal, e.g. LINK_CLICKS"`
	FrequencyControlSpecs []map[string]any `json:"frequency_control_specs,omitempty" jsonschema:"frequency cap specs: event, interval_days, max_frequency"`
	Targeting             map[string]any   `json:"targeting,omitempty" jsonschema:"full targeting spec object to replace the current one"`
}

func (s *Server) handleUpdateAdset(ctx context.Context, _ *mcp.CallToolRequest, input UpdateAdsetInput) (*mcp.CallToolResult, any, error) {
	if input.AdsetID == "" {
		return errorResult(fmt.Errorf("no ad set ID provided: %w", domain.ErrInvalidInput)), nil, nil
	}

	params := url.Values{}
	setIfPresent(params, "status", input.Status)
	setIfPresent(params, "bid_strategy", input.BidStrategy)
	setIfPresent(params, "optimization_goal", input.OptimizationGoal)
	if input.BidAmount > 0 {
		params.Set("bid_amount", strconv.Itoa(input.BidAmount))
	}
	if len(input.FrequencyControlSpecs) > 0 {
		params.Set("frequency_control_specs", mustCompactJSON(input.FrequencyControlSpecs))
	}
	if len(input.Targeting) > 0 {
		params.Set("targeting", mustCompactJSON(input.Targeting))
	}
	if len(params) == 0 {
		return errorResult(fmt.Errorf("no fields to update: %w", domain.ErrInvalidInput)), nil, nil
	}

	raw, err := s.callGraph(ctx, input.AccessToken, func(ctx context.Context, token string) ([]byte, error) {
		return s.ports.Graph.Post(ctx, input.AdsetID, token, params)
	})
	if err != nil {
		return errorResult(err), nil, nil
	}
	return jsonResult(raw), nil, nil
}

// ==================== Ads ====================

// GetAdsInput is the input schema for the get_ads tool.
type GetAdsInput struct {
	AccountID   string `json:"account_id,omitempty" jsonschema:"Meta Ads account ID (format: act_XXXXXXXXX)"`
	AccessToken string `json:"access_token,omitempty" jsonschema:"Meta API access token (optional - resolved automatically if not provided)"`
	Limit       int    `json:"limit,omitempty" jsonschema:"maximum number of ads to return (default 10)"`
	CampaignID  string `json:"campaign_id,omitempty" jsonschema:"optional campaign ID to list ads of a single campaign"`
	AdsetID     string `json:"adset_id,omitempty" jsonschema:"optional ad set ID to list ads of a single ad set"`
}

func (s *Server) handleGetAds(ctx context.Context, _ *mcp.CallToolRequest, input GetAdsInput) (*mcp.CallToolResult, any, error) {
	var endpoint string
	switch {
	case input.AdsetID != "":
		endpoint = input.AdsetID + "/ads"
	case input.CampaignID != "":
		endpoint = input.CampaignID + "/ads"
	case input.AccountID != "":
		endpoint = normalizeAccountID(input.AccountID) + "/ads"
	default:
		return errorResult(fmt.Errorf("no account, campaign or ad set ID specified: %w", domain.ErrInvalidInput)), nil, nil
	}

	limit := input.Limit
	if limit <= 0 {
		limit = 10
	}

	params := url.Values{}
	params.Set("fields", adFields)
	params.Set("limit", strconv.Itoa(limit))

	raw, err := s.callGraph(ctx, input.AccessToken, func(ctx context.Context, token string) ([]byte, error) {
		return s.ports.Graph.Get(ctx, endpoint, token, params)
	})
	if err != nil {
		return errorResult(err), nil, nil
	}
	return jsonResult(raw), nil, nil
}

// GetAdDetailsInput is the input schema for the get_ad_details tool.
type GetAdDetailsInput struct {
	AdID        string `json:"ad_id" jsonschema:"Meta Ads ad ID"`
	AccessToken string `json:"access_token,omitempty" jsonschema:"Meta API access token (optional - resolved automatically if not provided)"`
}

func (s *Server) handleGetAdDetails(ctx context.Context, _ *mcp.CallToolRequest, input GetAdDetailsInput) (*mcp.CallToolResult, any, error) {
	if input.AdID == "" {
		return errorResult(fmt.Errorf("no ad ID provided: %w", domain.ErrInvalidInput)), nil, nil
	}

	params := url.Values{}
	params.Set("fields", adFields+",preview_shareable_link")

	raw, err := s.callGraph(ctx, input.AccessToken, func(ctx context.Context, token string) ([]byte, error) {
		return s.ports.Graph.Get(ctx, input.AdID, token, params)
	})
	if err != nil {
		return errorResult(err), nil, nil
	}
	return jsonResult(raw), nil, nil
}

// ==================== Insights ====================

// GetInsightsInput is the input schema for the get_insights tool.
type GetInsightsInput struct {
	ObjectID    string `json:"object_id" jsonschema:"ID of the account, campaign, ad set or ad to report on"`
	AccessToken string `json:"access_token,omitempty" jsonschema:"Meta API access token (optional - resolved automatically if not provided)"`
	TimeRange   string `json:"time_range,omitempty" jsonschema:"date preset, e.g. today, last_7d, last_30d, maximum (default maximum)"`
	Breakdown   string `json:"breakdown,omitempty" jsonschema:"optional breakdown dimension, e.g. age, gender, country"`
	Level       string `json:"level,omitempty" jsonschema:"aggregation level: ad, adset, campaign or account (default ad)"`
}

func (s *Server) handleGetInsights(ctx context.Context, _ *mcp.CallToolRequest, input GetInsightsInput) (*mcp.CallToolResult, any, error) {
	if input.ObjectID == "" {
		return errorResult(fmt.Errorf("no object ID specified: %w", domain.ErrInvalidInput)), nil, nil
	}

	timeRange := input.TimeRange
	if timeRange == "" {
		timeRange = "maximum"
	}
	level := input.Level
	if level == "" {
		level = "ad"
	}

	params := url.Values{}
	params.Set("fields", insightFields)
	params.Set("date_preset", timeRange)
	params.Set("level", level)
	setIfPresent(params, "breakdowns", input.Breakdown)

	raw, err := s.callGraph(ctx, input.AccessToken, func(ctx context.Context, token string) ([]byte, error) {
		return s.ports.Graph.Get(ctx, input.ObjectID+"/insights", token, params)
	})
	if err != nil {
		return errorResult(err), nil, nil
	}
	return jsonResult(raw), nil, nil
}

// ==================== helpers ====================

func setIfPresent(params url.Values, key, value string) {
	if value != "" {
		params.Set(key, value)
	}
}

func nonEmpty(values []string) []string {
	out := values[:0]
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

func orEmptySlice(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

func mustCompactJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return "[]"
	}
	return string(data)
}
