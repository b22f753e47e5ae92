package pending

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/formsync/cmd/formsctl/cmdutil"
)

var clearForce bool

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Discard every queued submission",
	Long: `Remove every submission from the pending queue without sending it.

This action is irreversible. You will be prompted for confirmation
unless --force is specified.`,
	RunE: runClear,
}

func init() {
	clearCmd.Flags().BoolVarP(&clearForce, "force", "f", false, "Skip confirmation prompt")
}

func runClear(cmd *cobra.Command, args []string) error {
	client, err := cmdutil.OpenClient()
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	return cmdutil.RunWithConfirmation("Discard all pending submissions?", clearForce, func() error {
		if err := client.Queue.Clear(cmd.Context()); err != nil {
			return fmt.Errorf("failed to clear pending queue: %w", err)
		}
		cmdutil.PrintSuccess("Pending queue cleared")
		return nil
	})
}
