package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/formsync/cmd/formsctl/cmdutil"
	"github.com/marmos91/formsync/internal/cli/credentials"
)

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the stored token",
	Long: `Clear the token of the current profile. The base URL is kept so the
next 'formsctl login' only asks for a token.

Queued submissions of forms that require login stay in the pending queue
and are delivered after the next login.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := credentials.NewStore()
		if err != nil {
			return fmt.Errorf("failed to initialize credential store: %w", err)
		}
		if err := store.Logout(); err != nil {
			if errors.Is(err, credentials.ErrNoCurrentProfile) {
				cmdutil.PrintSuccess("Not logged in.")
				return nil
			}
			return err
		}
		cmdutil.PrintSuccess(fmt.Sprintf("Logged out of profile '%s'", store.CurrentName()))
		return nil
	},
}
