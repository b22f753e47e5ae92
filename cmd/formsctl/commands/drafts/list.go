package drafts

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/marmos91/formsync/cmd/formsctl/cmdutil"
	"github.com/marmos91/formsync/internal/cli/timeutil"
	"github.com/marmos91/formsync/pkg/drafts"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List drafts",
	Long: `List drafts known locally: synced drafts first, then drafts that have
not reached the server yet.

Examples:
  # List drafts as table
  formsctl drafts list

  # List as YAML
  formsctl drafts list -o yaml`,
	RunE: runList,
}

// DraftList is a list of drafts for table rendering.
type DraftList []drafts.LocalFormSubmissionDraft

// Headers implements TableRenderer.
func (dl DraftList) Headers() []string {
	return []string{"ID", "TITLE", "APP", "FORM", "AGE", "SYNCED"}
}

// Rows implements TableRenderer.
func (dl DraftList) Rows() [][]string {
	now := time.Now()
	rows := make([][]string, 0, len(dl))
	for _, d := range dl {
		rows = append(rows, []string{
			d.FormSubmissionDraftID,
			cmdutil.EmptyOr(cmdutil.Truncate(d.Title, 32), "-"),
			strconv.FormatInt(d.FormsAppID, 10),
			strconv.FormatInt(d.FormID, 10),
			timeutil.FormatAge(d.CreatedAt, now),
			cmdutil.BoolToYesNo(d.Synced),
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

	list, err := client.Drafts.GetDrafts(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list drafts: %w", err)
	}
	return cmdutil.PrintOutput(os.Stdout, list, len(list) == 0, "No drafts found.", DraftList(list))
}
