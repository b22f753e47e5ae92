package pending

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/marmos91/formsync/cmd/formsctl/cmdutil"
	"github.com/marmos91/formsync/internal/cli/output"
)

var drainCmd = &cobra.Command{
	Use:   "drain",
	Short: "Deliver queued submissions now",
	Long: `Submit every queued submission in order. Items that fail keep their
error and stay queued; the next drain retries them.

Nothing is sent while offline.`,
	RunE: runDrain,
}

func runDrain(cmd *cobra.Command, args []string) error {
	client, err := cmdutil.OpenClient()
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	report, err := client.Drain(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to drain pending queue: %w", err)
	}

	format, err := cmdutil.GetOutputFormatParsed()
	if err != nil {
		return err
	}
	if format != output.FormatTable {
		return output.Print(os.Stdout, format, report, nil)
	}

	switch {
	case report.Busy:
		cmdutil.PrintWarning("Another drain is already running")
	case report.Attempted == 0 && report.Skipped == 0:
		fmt.Println("No pending submissions.")
	case report.Failed > 0:
		cmdutil.PrintWarning(fmt.Sprintf("Delivered %d of %d submissions, %d failed (see 'formsctl pending list')",
			report.Succeeded, report.Attempted, report.Failed))
	default:
		cmdutil.PrintSuccess(fmt.Sprintf("Delivered %d submissions", report.Succeeded))
	}
	if report.Skipped > 0 {
		fmt.Printf("%d submissions were skipped\n", report.Skipped)
	}
	return nil
}
