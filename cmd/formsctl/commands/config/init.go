package config

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/formsync/cmd/formsctl/cmdutil"
	"github.com/marmos91/formsync/pkg/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	Long: `Write a configuration file with default values.

The file goes to --config when given, otherwise to
$XDG_CONFIG_HOME/formsync/config.yaml.

Examples:
  # Default location
  formsctl config init

  # Custom location, replacing an existing file
  formsctl config init --config ./formsync.yaml --force`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "Overwrite an existing configuration file")
}

func runInit(cmd *cobra.Command, args []string) error {
	path := cmdutil.Flags.ConfigFile
	if path != "" {
		if err := config.InitConfigToPath(path, initForce); err != nil {
			return err
		}
	} else {
		var err error
		if path, err = config.InitConfig(initForce); err != nil {
			return err
		}
	}

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Configuration written to %s\n", path)
	return nil
}
