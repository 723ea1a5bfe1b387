package cli

import (
	"github.com/spf13/cobra"

	"github.com/pipeboard-co/meta-ads-mcp/internal/adapters/driving/oauth"
	"github.com/pipeboard-co/meta-ads-mcp/internal/core/domain"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Authenticate with Meta interactively",
	Long: `Run the interactive OAuth flow: opens the Meta authorization page in
your browser, waits for the redirect on a local callback port, and caches
the resulting access token for later MCP sessions.

Requires META_APP_ID. With META_APP_SECRET also set, the token is
upgraded to a long-lived one (60 days); without it tokens last 1-2 hours.`,
	RunE: runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Discard the cached Meta access token",
	RunE:  runLogout,
}

func init() {
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
}

func runLogin(cmd *cobra.Command, _ []string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}

	url, err := rt.auth.GetAuthURL(cmd.Context())
	if err != nil {
		return err
	}

	cmd.Printf("Open this URL to authorize Meta Ads access:\n\n  %s\n\n", url)
	if err := oauth.OpenBrowser(url); err != nil {
		rt.logger.Debug("could not open browser", "error", err)
	}
	cmd.Println("Waiting for authorization...")

	token, err := rt.auth.CompleteAuthentication(cmd.Context())
	if err != nil {
		return err
	}

	cmd.Printf("Authenticated. Token %s cached (%s).\n",
		domain.Truncate(token.AccessToken, 10), rt.auth.TokenDuration())
	return nil
}

func runLogout(cmd *cobra.Command, _ []string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}
	if err := rt.auth.Logout(cmd.Context()); err != nil {
		return err
	}
	cmd.Println("Logged out.")
	return nil
}
