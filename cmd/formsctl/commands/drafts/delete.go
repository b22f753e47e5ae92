package drafts

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/formsync/cmd/formsctl/cmdutil"
)

var (
	deleteAppID int64
	deleteForce bool
)

var deleteCmd = &cobra.Command{
	Use:   "delete <draft-id>",
	Short: "Delete a draft",
	Long: `Delete a draft locally and on the server. When the server cannot be
reached the delete is remembered and applied by the next sync.

You will be prompted for confirmation unless --force is specified.`,
	Args: cobra.ExactArgs(1),
	RunE: runDelete,
}

func init() {
	deleteCmd.Flags().Int64Var(&deleteAppID, "forms-app-id", 0, "Forms app the draft belongs to (required)")
	deleteCmd.Flags().BoolVarP(&deleteForce, "force", "f", false, "Skip confirmation prompt")
	_ = deleteCmd.MarkFlagRequired("forms-app-id")
}

func runDelete(cmd *cobra.Command, args []string) error {
	id := args[0]
	if id == "" {
		return errors.New("draft id is required")
	}

	client, err := cmdutil.OpenClient()
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	return cmdutil.RunWithConfirmation(fmt.Sprintf("Delete draft %s?", id), deleteForce, func() error {
		if err := client.Drafts.DeleteDraft(cmd.Context(), id, deleteAppID); err != nil {
			return fmt.Errorf("failed to delete draft: %w", err)
		}
		cmdutil.PrintSuccess(fmt.Sprintf("Draft %s deleted", id))
		return nil
	})
}
