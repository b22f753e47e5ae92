package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/marmos91/formsync/cmd/formsctl/cmdutil"
	"github.com/marmos91/formsync/internal/cli/credentials"
	"github.com/marmos91/formsync/internal/cli/prompt"
	"github.com/marmos91/formsync/pkg/apiclient"
	"github.com/marmos91/formsync/pkg/auth"
	"github.com/marmos91/formsync/pkg/config"
)

var (
	loginProfile  string
	loginFormsKey bool
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Store an access token for the forms API",
	Long: `Store the API base URL and a bearer token so later commands act as you.

The token is an access token issued by the forms platform, or a forms key
when --forms-key is set. It is stored in $XDG_CONFIG_HOME/formsync/credentials.json
with owner-only permissions. Missing values are prompted for.

Examples:
  # Interactive login
  formsctl login

  # Non-interactive login
  formsctl login --base-url https://api.example.com --token "$TOKEN"

  # Submit as a forms key into a separate profile
  formsctl login --profile kiosk --forms-key --token "$FORMS_KEY"`,
	RunE: runLogin,
}

func init() {
	loginCmd.Flags().StringVar(&loginProfile, "profile", "", "Profile name (default: current profile or 'default')")
	loginCmd.Flags().BoolVar(&loginFormsKey, "forms-key", false, "The token is a forms key")
}

func runLogin(cmd *cobra.Command, args []string) error {
	store, err := credentials.NewStore()
	if err != nil {
		return fmt.Errorf("failed to initialize credential store: %w", err)
	}

	name := loginProfile
	if name == "" {
		name = store.CurrentName()
	}

	baseURL := cmdutil.Flags.BaseURL
	if baseURL == "" {
		def := config.DefaultBaseURL
		if existing, err := store.Get(name); err == nil && existing.BaseURL != "" {
			def = existing.BaseURL
		}
		baseURL, err = prompt.URL("API base URL", def)
		if err != nil {
			return cmdutil.HandleAbort(err)
		}
	} else if err := prompt.ValidateURL(baseURL); err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}

	token := cmdutil.Flags.Token
	if token == "" {
		token, err = prompt.Secret("Access token")
		if err != nil {
			return cmdutil.HandleAbort(err)
		}
	}

	session := auth.NewSession(token)
	if loginFormsKey {
		session = auth.NewFormsKeySession(token)
	}
	if !session.IsAuthenticated() {
		return fmt.Errorf("token is empty or has already expired")
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
	defer cancel()
	if _, err := apiclient.New(baseURL).Health(ctx); err != nil {
		cmdutil.PrintWarning(fmt.Sprintf("Could not reach %s (%v); saving login anyway.", baseURL, err))
	}

	profile := &credentials.Profile{
		BaseURL:  baseURL,
		Username: session.Username(),
		Token:    token,
		FormsKey: loginFormsKey,
	}
	if exp, ok := session.ExpiresAt(); ok {
		profile.ExpiresAt = exp
	}
	if err := store.Login(name, profile); err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}

	who := cmdutil.EmptyOr(profile.Username, "token")
	if loginFormsKey {
		who = "forms key " + cmdutil.EmptyOr(session.KeyID(), "(unknown issuer)")
	}
	cmdutil.PrintSuccess(fmt.Sprintf("Logged in to %s as %s", baseURL, who))
	return nil
}
