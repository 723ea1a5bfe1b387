package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pipeboard-co/meta-ads-mcp/internal/adapters/driven/storage/sqlite"
	"github.com/pipeboard-co/meta-ads-mcp/internal/adapters/driving/httpapi"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the hosted HTTP server",
	Long: `Start the hosted multi-tenant HTTP server.

Serves the MCP endpoint at /mcp plus the tenant administration API
(/v1/users, /v1/pats, /v1/meta/token, /v1/me). Requests authenticate
with a gateway access key ("pat_..." bearer) or a raw Meta token.

Examples:
  # Default bind address (LISTEN_ADDR, :8080)
  meta-ads-mcp serve

  # Explicit address
  meta-ads-mcp serve --addr 127.0.0.1:9090`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("addr", "", "bind address (defaults to LISTEN_ADDR)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}

	addr, err := cmd.Flags().GetString("addr")
	if err != nil {
		return fmt.Errorf("getting addr flag: %w", err)
	}
	if addr == "" {
		addr = rt.cfg.ListenAddr
	}

	store, err := sqlite.NewStore(rt.cfg.DataDir)
	if err != nil {
		return fmt.Errorf("opening tenant store: %w", err)
	}
	defer store.Close()

	api := httpapi.NewServer(
		httpapi.Config{BootstrapToken: rt.cfg.BootstrapToken},
		store.UserStore(), store.OAuthTokenStore(), store.AccessKeyStore(),
		rt.mcp.Handler(),
		rt.logger,
	)

	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	rt.logger.Info("hosted server listening", "addr", addr, "version", version)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
