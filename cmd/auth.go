package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Govanator12/smart-meeting-sign/internal/auth"
)

var (
	revokeFlag bool
	statusOnly bool
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage Google Calendar authentication",
	Long: `Authenticate with the Google Calendar API using the OAuth 2.0 device flow.

The device flow fits a headless sign: the command prints a URL and a short
code, you approve it from any browser, and the resulting tokens are encrypted
and stored locally.

Examples:
  smart-meeting-sign auth             # Authenticate with device flow
  smart-meeting-sign auth --status    # Check authentication status
  smart-meeting-sign auth --revoke    # Clear local authentication`,
	RunE: runAuth,
}

func init() {
	authCmd.Flags().BoolVar(&revokeFlag, "revoke", false, "clear local authentication")
	authCmd.Flags().BoolVar(&statusOnly, "status", false, "check authentication status only")
}

func runAuth(cmd *cobra.Command, args []string) error {
	store, err := auth.NewStore(stateDir)
	if err != nil {
		return fmt.Errorf("failed to initialize token store: %w", err)
	}

	tokens := auth.NewManager(store, auth.Options{
		ClientID:     cfg.Calendar.ClientID,
		ClientSecret: cfg.Calendar.ClientSecret,
	})

	if revokeFlag {
		if err := tokens.ClearLocal(); err != nil {
			return fmt.Errorf("failed to clear local authentication: %w", err)
		}
		fmt.Println("Local authentication cleared.")
		return nil
	}

	if statusOnly {
		printAuthStatus(tokens)
		return nil
	}

	if tokens.Usable() {
		fmt.Println("Already authenticated with a valid token.")
		return nil
	}

	if err := tokens.Authorize(cmd.Context()); err != nil {
		return fmt.Errorf("device authorization failed: %w", err)
	}

	fmt.Println("Authentication successful.")
	return nil
}

func printAuthStatus(tokens *auth.Manager) {
	switch {
	case tokens.Usable():
		fmt.Println("Authenticated: token valid.")
	case tokens.HasCredential():
		fmt.Println("Authenticated: token expired, will refresh on next use.")
	default:
		fmt.Println("Not authenticated. Run 'smart-meeting-sign auth'.")
	}
}
