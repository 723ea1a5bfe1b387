package services

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/singleflight"

	"github.com/pipeboard-co/meta-ads-mcp/internal/core/domain"
	"github.com/pipeboard-co/meta-ads-mcp/internal/core/ports/driven"
	"github.com/pipeboard-co/meta-ads-mcp/internal/core/ports/driving"
)

// Ensure CredentialResolver implements the interface.
var _ driving.CredentialResolver = (*CredentialResolver)(nil)

// TokenRefresher re-exchanges the locally cached credential for a fresh one.
// Implemented by AuthManager.
type TokenRefresher interface {
	Refresh(ctx context.Context) (*domain.TokenInfo, error)
}

// ResolverConfig holds the process-level credential sources.
type ResolverConfig struct {
	// StaticToken is a fixed upstream token from process configuration.
	// Lowest precedence, typically for server deployments.
	StaticToken string

	// RelayKey is a process-level relay-service key. A per-request key
	// carried in the auth context takes priority over it.
	RelayKey string
}

// CredentialResolver is the precedence engine: for every call it decides
// which source supplies the active upstream credential. The order is
// load-bearing: explicit argument, header-injected context value, relay
// service, local OAuth cache, static environment token. First success wins,
// and once the relay is configured a relay failure surfaces instead of
// falling through to a weaker source.
type CredentialResolver struct {
	cfg       ResolverConfig
	cache     driven.TokenCache
	relay     driven.RelayClient
	refresher TokenRefresher
	logger    *slog.Logger

	// flight coalesces concurrent refreshes per cache key so an expired
	// credential triggers exactly one upstream call.
	flight singleflight.Group
}

// NewCredentialResolver creates the resolver. cache, relay and refresher are
// each optional; a nil dependency simply disables that source.
func NewCredentialResolver(cfg ResolverConfig, cache driven.TokenCache, relay driven.RelayClient, refresher TokenRefresher, logger *slog.Logger) *CredentialResolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &CredentialResolver{
		cfg:       cfg,
		cache:     cache,
		relay:     relay,
		refresher: refresher,
		logger:    logger,
	}
}

// Resolve returns the credential for this call and the source that supplied
// it. Per-request sources are read from the domain.AuthContext in ctx, never
// from shared state, so concurrent tenants cannot observe each other's
// credentials.
func (r *CredentialResolver) Resolve(ctx context.Context, explicit string) (*domain.Resolution, error) {
	if explicit != "" {
		return r.resolved(explicit, domain.SourceExplicitArgument), nil
	}

	ac := domain.AuthContextFrom(ctx)
	if ac.UpstreamToken != "" {
		return r.resolved(ac.UpstreamToken, domain.SourceHeaderInjected), nil
	}

	if relayKey := r.relayKey(ac); relayKey != "" {
		token, err := r.relayToken(ctx, relayKey, false)
		if err != nil {
			// Relay is configured: its failure is the answer, weaker
			// sources must not mask it.
			return nil, err
		}
		return r.resolved(token, domain.SourceRelayService), nil
	}

	if token, ok := r.cachedToken(ctx); ok {
		return r.resolved(token, domain.SourceLocalCache), nil
	}

	if r.cfg.StaticToken != "" {
		return r.resolved(r.cfg.StaticToken, domain.SourceEnvironment), nil
	}

	return nil, r.authRequired(ac)
}

// Refresh re-acquires the credential after the upstream rejected it, used
// for the single retry the call layer performs on an auth failure. Only
// relay and local-cache resolutions have a refresh path.
func (r *CredentialResolver) Refresh(ctx context.Context, prev *domain.Resolution) (*domain.Resolution, error) {
	if prev == nil {
		return nil, fmt.Errorf("nothing to refresh: %w", domain.ErrAuthInvalid)
	}

	switch prev.Source {
	case domain.SourceRelayService:
		relayKey := r.relayKey(domain.AuthContextFrom(ctx))
		if relayKey == "" {
			return nil, fmt.Errorf("relay key no longer available: %w", domain.ErrAuthInvalid)
		}
		token, err := r.relayToken(ctx, relayKey, true)
		if err != nil {
			return nil, err
		}
		return r.resolved(token, domain.SourceRelayService), nil

	case domain.SourceLocalCache:
		info, err := r.refreshCached(ctx)
		if err != nil {
			return nil, err
		}
		return r.resolved(info.AccessToken, domain.SourceLocalCache), nil

	default:
		// Explicit, header and environment credentials come from the
		// caller or operator; only they can replace them.
		return nil, fmt.Errorf("credential from %s rejected upstream: %w", prev.Source, domain.ErrAuthInvalid)
	}
}

func (r *CredentialResolver) resolved(token string, source domain.ResolutionSource) *domain.Resolution {
	r.logger.Debug("credential resolved",
		"source", source,
		"token", domain.Truncate(token, 8))
	return &domain.Resolution{Token: token, Source: source}
}

func (r *CredentialResolver) relayKey(ac domain.AuthContext) string {
	if r.relay == nil {
		return ""
	}
	if ac.RelayKey != "" {
		return ac.RelayKey
	}
	return r.cfg.RelayKey
}

// relayToken fetches through the relay, coalescing concurrent lookups for
// the same key.
func (r *CredentialResolver) relayToken(ctx context.Context, relayKey string, forceRefresh bool) (string, error) {
	flightKey := "relay:" + relayKey
	if forceRefresh {
		flightKey = "relay-refresh:" + relayKey
	}
	token, err, _ := r.flight.Do(flightKey, func() (any, error) {
		return r.relay.GetAccessToken(ctx, relayKey, forceRefresh)
	})
	if err != nil {
		return "", err
	}
	return token.(string), nil
}

// cachedToken consults the local OAuth cache. An expired entry is never
// returned directly: it triggers the refresh path first, and when that also
// fails the resolver moves on to the environment source.
func (r *CredentialResolver) cachedToken(ctx context.Context) (string, bool) {
	if r.cache == nil {
		return "", false
	}

	info, err := r.cache.Get(ctx)
	if err != nil {
		return "", false
	}
	if !info.IsExpired() {
		return info.AccessToken, true
	}

	refreshed, err := r.refreshCached(ctx)
	if err != nil {
		r.logger.Warn("cached credential expired and refresh failed", "error", err)
		return "", false
	}
	return refreshed.AccessToken, true
}

// refreshCached runs the local re-exchange under single-flight: concurrent
// resolvers hitting the same expired cache entry all await one refresh and
// observe the same outcome.
func (r *CredentialResolver) refreshCached(ctx context.Context) (*domain.TokenInfo, error) {
	if r.refresher == nil {
		return nil, fmt.Errorf("no refresh path configured: %w", domain.ErrTokenExpired)
	}

	info, err, _ := r.flight.Do("local-cache", func() (any, error) {
		return r.refresher.Refresh(ctx)
	})
	if err != nil {
		return nil, err
	}
	return info.(*domain.TokenInfo), nil
}

// authRequired builds the structured failure carrying per-source
// remediation, in precedence order.
func (r *CredentialResolver) authRequired(ac domain.AuthContext) error {
	checked := []domain.SourceHint{
		{Source: domain.SourceExplicitArgument, Hint: "pass access_token in the tool arguments"},
		{Source: domain.SourceHeaderInjected, Hint: "send the upstream token as Authorization: Bearer <token>"},
		{Source: domain.SourceRelayService, Hint: "set PIPEBOARD_API_TOKEN or send the X-Pipeboard-Token header"},
		{Source: domain.SourceLocalCache, Hint: "run the interactive login flow (get_login_link) to authorize"},
		{Source: domain.SourceEnvironment, Hint: "set the META_ACCESS_TOKEN environment variable"},
	}
	r.logger.Info("no credential source resolved",
		"has_access_key", ac.AccessKey != "",
		"has_relay_key", ac.RelayKey != "")
	return &domain.AuthRequiredError{Checked: checked}
}
