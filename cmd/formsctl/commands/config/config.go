// Package config implements the configuration commands.
package config

import (
	"github.com/spf13/cobra"
)

// Cmd is the parent command for configuration management.
var Cmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management",
	Long: `Create, inspect and validate the formsync configuration file.

Examples:
  # Write a default configuration
  formsctl config init

  # Show the effective configuration
  formsctl config show -o yaml

  # Generate a JSON schema for editor completion
  formsctl config schema --file config.schema.json`,
}

func init() {
	Cmd.AddCommand(initCmd)
	Cmd.AddCommand(showCmd)
	Cmd.AddCommand(schemaCmd)
	Cmd.AddCommand(validateCmd)
}
