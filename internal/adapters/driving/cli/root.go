// Package cli wires the gateway's commands: the stdio MCP server (default),
// the hosted HTTP server, and the interactive login flow.
package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/pipeboard-co/meta-ads-mcp/internal/adapters/driven/graph"
	"github.com/pipeboard-co/meta-ads-mcp/internal/adapters/driven/relay"
	"github.com/pipeboard-co/meta-ads-mcp/internal/adapters/driven/tokencache"
	"github.com/pipeboard-co/meta-ads-mcp/internal/adapters/driving/mcp"
	"github.com/pipeboard-co/meta-ads-mcp/internal/adapters/driving/oauth"
	"github.com/pipeboard-co/meta-ads-mcp/internal/config"
	"github.com/pipeboard-co/meta-ads-mcp/internal/core/services"
	"github.com/pipeboard-co/meta-ads-mcp/internal/logging"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "meta-ads-mcp",
	Short: "MCP server for the Meta Ads API",
	Long: `meta-ads-mcp exposes Meta Ads accounts, campaigns, ad sets, ads and
insights as MCP tools.

Run without arguments it serves MCP over stdio, for Claude Desktop and
other MCP clients. Use "serve --addr" for the hosted HTTP mode with
multi-tenant API-key authentication.`,
	SilenceUsage: true,
	RunE:         runStdio,
}

// Execute runs the CLI. ver is the build version stamped by the linker.
func Execute(ver string) error {
	if ver != "" {
		version = ver
	}
	return rootCmd.Execute()
}

// runtime holds the wired service graph for one command invocation.
type runtime struct {
	cfg    *config.Config
	logger *slog.Logger
	auth   *services.AuthManager
	mcp    *mcp.Server
}

func newRuntime() (*runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger := logging.New(logging.Options{
		Level: cfg.LogLevel,
		JSON:  cfg.IsProduction(),
	})

	cache, err := tokencache.NewCache(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening token cache: %w", err)
	}

	callback := oauth.NewCallbackServer(logger)
	auth := services.NewAuthManager(services.AuthConfig{
		AppID:           cfg.MetaAppID,
		AppSecret:       cfg.MetaAppSecret,
		RedirectURI:     cfg.MetaRedirectURI,
		DisableCallback: cfg.DisableCallbackServer,
	}, cache, callback, logger)

	relayClient := relay.NewClient(logger, relay.WithBaseURL(cfg.RelayBase))
	resolver := services.NewCredentialResolver(services.ResolverConfig{
		StaticToken: cfg.MetaAccessToken,
		RelayKey:    cfg.RelayKey,
	}, cache, relayClient, auth, logger)

	server, err := mcp.NewServer(&mcp.Ports{
		Resolver:          resolver,
		Graph:             graph.NewClient(logger),
		Auth:              auth,
		DisableLoginLink:  cfg.DisableLoginLink,
		Relay:             relayClient,
		RelayKey:          cfg.RelayKey,
		EnableDuplication: cfg.EnableDuplication,
	}, logger)
	if err != nil {
		return nil, err
	}

	return &runtime{cfg: cfg, logger: logger, auth: auth, mcp: server}, nil
}

func runStdio(cmd *cobra.Command, _ []string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}
	rt.logger.Info("starting MCP server on stdio", "version", version)
	return rt.mcp.Run(cmd.Context())
}
