// Package commands implements the formsctl CLI.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/marmos91/formsync/cmd/formsctl/cmdutil"
	configcmd "github.com/marmos91/formsync/cmd/formsctl/commands/config"
	draftscmd "github.com/marmos91/formsync/cmd/formsctl/commands/drafts"
	pendingcmd "github.com/marmos91/formsync/cmd/formsctl/commands/pending"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "formsctl",
	Short: "formsync - offline-first form submissions",
	Long: `formsctl submits forms, manages the pending submission queue and keeps
drafts in sync with the forms platform, locally or as a background agent.

Submissions made while offline are queued on disk and delivered by
'formsctl pending drain' or by a running 'formsctl agent'.

Use "formsctl [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		f := cmd.Flags()
		cmdutil.Flags.ConfigFile, _ = f.GetString("config")
		cmdutil.Flags.BaseURL, _ = f.GetString("base-url")
		cmdutil.Flags.Token, _ = f.GetString("token")
		cmdutil.Flags.Output, _ = f.GetString("output")
		cmdutil.Flags.NoColor, _ = f.GetBool("no-color")
		cmdutil.Flags.Verbose, _ = f.GetBool("verbose")
		cmdutil.Flags.Offline, _ = f.GetBool("offline")
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// GetRootCmd returns the root command for testing purposes.
func GetRootCmd() *cobra.Command {
	return rootCmd
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "Config file (default: $XDG_CONFIG_HOME/formsync/config.yaml)")
	pf.String("base-url", "", "Forms API base URL (overrides login and config)")
	pf.String("token", "", "Bearer token (overrides stored login)")
	pf.StringP("output", "o", "table", "Output format (table|json|yaml)")
	pf.Bool("no-color", false, "Disable colored output")
	pf.BoolP("verbose", "v", false, "Enable debug logging")
	pf.Bool("offline", false, "Behave as if the device were offline")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(submitCmd)
	rootCmd.AddCommand(agentCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(pendingcmd.Cmd)
	rootCmd.AddCommand(draftscmd.Cmd)
	rootCmd.AddCommand(configcmd.Cmd)
	rootCmd.AddCommand(completionCmd)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}
