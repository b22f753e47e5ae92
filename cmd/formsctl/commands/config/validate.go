package config

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/formsync/cmd/formsctl/cmdutil"
	"github.com/marmos91/formsync/pkg/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long: `Validate the formsync configuration file.

Checks for syntax errors, missing required fields, and invalid values.

Examples:
  # Validate default config
  formsctl config validate

  # Validate specific config file
  formsctl config validate --config /etc/formsync/config.yaml`,
	RunE: runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	configPath := cmdutil.Flags.ConfigFile
	cfg, err := config.MustLoad(configPath)
	if err != nil {
		return err
	}

	displayPath := configPath
	if displayPath == "" {
		displayPath = config.GetDefaultConfigPath()
	}

	var warnings []string
	if cfg.Storage.Type == config.StorageMemory {
		warnings = append(warnings, "Memory storage loses queued submissions and drafts on exit")
	}
	if len(cfg.Sync.FormsAppIDs) == 0 {
		warnings = append(warnings, "No sync.forms_app_ids configured - the agent will not sync drafts")
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Configuration file: %s\n", displayPath)
	_, _ = fmt.Fprintln(out, "Validation: OK")

	if len(warnings) > 0 {
		_, _ = fmt.Fprintln(out, "\nWarnings:")
		for _, w := range warnings {
			_, _ = fmt.Fprintf(out, "  - %s\n", w)
		}
	}

	_, _ = fmt.Fprintf(out, "\nConfiguration summary:\n")
	_, _ = fmt.Fprintf(out, "  API base URL:    %s\n", cfg.API.BaseURL)
	_, _ = fmt.Fprintf(out, "  Storage type:    %s\n", cfg.Storage.Type)
	_, _ = fmt.Fprintf(out, "  Sync interval:   %s\n", cfg.Sync.Interval)
	_, _ = fmt.Fprintf(out, "  Log level:       %s\n", cfg.Logging.Level)
	return nil
}
