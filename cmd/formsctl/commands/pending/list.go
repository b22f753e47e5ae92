package pending

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/marmos91/formsync/cmd/formsctl/cmdutil"
	"github.com/marmos91/formsync/internal/cli/timeutil"
	"github.com/marmos91/formsync/pkg/pendingqueue"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List queued submissions",
	Long: `List submissions waiting in the pending queue, oldest first.

Examples:
  # List as table
  formsctl pending list

  # List as JSON
  formsctl pending list -o json`,
	RunE: runList,
}

// SummaryList is a list of queued submissions for table rendering.
type SummaryList []pendingqueue.Summary

// Headers implements TableRenderer.
func (sl SummaryList) Headers() []string {
	return []string{"QUEUED", "FORM", "APP", "STATE", "ERROR"}
}

// Rows implements TableRenderer.
func (sl SummaryList) Rows() [][]string {
	rows := make([][]string, 0, len(sl))
	for _, s := range sl {
		form := cmdutil.EmptyOr(s.Definition.Name, strconv.FormatInt(s.Definition.ID, 10))
		state := "waiting"
		switch {
		case s.IsSubmitting:
			state = "submitting"
		case s.Error != "":
			state = "failed"
		}
		rows = append(rows, []string{
			timeutil.FormatTimestamp(s.PendingTimestamp),
			form,
			strconv.FormatInt(s.FormsAppID, 10),
			state,
			cmdutil.EmptyOr(cmdutil.Truncate(s.Error, 48), "-"),
		})
	}
	return rows
}

func runList(cmd *cobra.Command, args []string) error {
	client, err := cmdutil.OpenClient()
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	list, err := client.Queue.List(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list pending submissions: %w", err)
	}
	return cmdutil.PrintOutput(os.Stdout, list, len(list) == 0, "No pending submissions.", SummaryList(list))
}
