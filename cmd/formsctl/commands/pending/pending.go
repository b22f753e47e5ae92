// Package pending implements the pending submission queue commands.
package pending

import (
	"github.com/spf13/cobra"
)

// Cmd is the parent command for the pending queue.
var Cmd = &cobra.Command{
	Use:   "pending",
	Short: "Pending submission queue",
	Long: `Inspect and drain submissions that were captured while offline.

Examples:
  # List queued submissions
  formsctl pending list

  # Deliver queued submissions now
  formsctl pending drain

  # Discard every queued submission
  formsctl pending clear --force`,
}

func init() {
	Cmd.AddCommand(listCmd)
	Cmd.AddCommand(drainCmd)
	Cmd.AddCommand(clearCmd)
}
