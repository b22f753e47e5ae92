// Package drafts implements the draft commands.
package drafts

import (
	"github.com/spf13/cobra"
)

// Cmd is the parent command for drafts.
var Cmd = &cobra.Command{
	Use:   "drafts",
	Short: "Draft management",
	Long: `List, synchronize and delete form submission drafts.

Drafts are kept on disk and synchronized with the forms platform. When
both sides changed, the server copy wins.

Examples:
  # List local and synced drafts
  formsctl drafts list

  # Synchronize drafts of two forms apps
  formsctl drafts sync --forms-app-id 7,8

  # Delete a draft
  formsctl drafts delete 1b4e28ba-2fa1-11d2-883f-0016d3cca427 --forms-app-id 7`,
}

func init() {
	Cmd.AddCommand(listCmd)
	Cmd.AddCommand(syncCmd)
	Cmd.AddCommand(deleteCmd)
}
