package config

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/marmos91/formsync/cmd/formsctl/cmdutil"
	"github.com/marmos91/formsync/internal/cli/output"
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Long: `Print the configuration after defaults, environment variables and the
current login are applied. Table output is rendered as YAML.`,
	RunE: runShow,
}

func runShow(cmd *cobra.Command, args []string) error {
	cfg, err := cmdutil.LoadConfig()
	if err != nil {
		return err
	}

	format, err := cmdutil.GetOutputFormatParsed()
	if err != nil {
		return err
	}
	if format == output.FormatJSON {
		return output.PrintJSON(os.Stdout, cfg)
	}
	return output.PrintYAML(os.Stdout, cfg)
}
