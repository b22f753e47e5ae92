package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/marmos91/formsync/cmd/formsctl/cmdutil"
	"github.com/marmos91/formsync/internal/cli/output"
	"github.com/marmos91/formsync/pkg/forms"
	"github.com/marmos91/formsync/pkg/objectstore"
	"github.com/marmos91/formsync/pkg/submission"
)

var submitFlags struct {
	form       string
	data       string
	formsAppID int64
	draftID    string
	jobID      string
	externalID string
	preFillID  string
	taskID     string
	receiptURL string
	quiet      bool
}

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit a form",
	Long: `Submit form data for a form definition.

While offline the submission is stored in the pending queue and delivered
later. Forms with payment or scheduling events print the URL of the hosted
page that completes the submission.

Examples:
  # Submit data for a form definition
  formsctl submit --form inspection.json --submission answers.json --forms-app-id 7

  # Read the data from stdin and queue it regardless of connectivity
  cat answers.json | formsctl submit --form inspection.json --submission - --forms-app-id 7 --offline`,
	RunE: runSubmit,
}

func init() {
	f := submitCmd.Flags()
	f.StringVar(&submitFlags.form, "form", "", "Form definition JSON file (required)")
	f.StringVar(&submitFlags.data, "submission", "", "Submission data JSON file, '-' for stdin (required)")
	f.Int64Var(&submitFlags.formsAppID, "forms-app-id", 0, "Forms app the submission belongs to")
	f.StringVar(&submitFlags.draftID, "draft-id", "", "Draft this submission completes (deleted on success)")
	f.StringVar(&submitFlags.jobID, "job-id", "", "Job this submission completes")
	f.StringVar(&submitFlags.externalID, "external-id", "", "External id to attach")
	f.StringVar(&submitFlags.preFillID, "pre-fill-id", "", "Pre-fill data id to consume")
	f.StringVar(&submitFlags.taskID, "task-id", "", "Scheduled task id")
	f.StringVar(&submitFlags.receiptURL, "payment-receipt-url", "", "URL the payment page returns to")
	f.BoolVarP(&submitFlags.quiet, "quiet", "q", false, "Do not report upload progress")
	_ = submitCmd.MarkFlagRequired("form")
	_ = submitCmd.MarkFlagRequired("submission")
}

func runSubmit(cmd *cobra.Command, args []string) error {
	var definition forms.Form
	if err := cmdutil.ReadJSONFile(submitFlags.form, &definition); err != nil {
		return err
	}
	var data map[string]any
	if err := cmdutil.ReadJSONFile(submitFlags.data, &data); err != nil {
		return err
	}

	client, err := cmdutil.OpenClient()
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	in := submission.SubmitInput{
		FormSubmission: forms.FormSubmission{
			FormsAppID:            submitFlags.formsAppID,
			Definition:            definition,
			Submission:            data,
			JobID:                 submitFlags.jobID,
			ExternalID:            submitFlags.externalID,
			FormSubmissionDraftID: submitFlags.draftID,
			PreFillFormDataID:     submitFlags.preFillID,
			TaskID:                submitFlags.taskID,
		},
		PaymentReceiptURL: submitFlags.receiptURL,
	}
	if !submitFlags.quiet {
		in.OnProgress = func(p objectstore.Progress) {
			if p.Total > 0 {
				_, _ = fmt.Fprintf(os.Stderr, "\ruploading %3d%%", p.Progress*100/p.Total)
				if p.Progress == p.Total {
					_, _ = fmt.Fprintln(os.Stderr)
				}
			}
		}
	}

	result, err := client.Submission.Submit(cmd.Context(), in)
	if err != nil {
		return err
	}
	return printSubmitResult(result)
}

func printSubmitResult(r *submission.Result) error {
	format, err := cmdutil.GetOutputFormatParsed()
	if err != nil {
		return err
	}
	if format != output.FormatTable {
		return output.Print(os.Stdout, format, r, nil)
	}

	switch {
	case r.IsInPendingQueue:
		cmdutil.PrintWarning(fmt.Sprintf("Offline: submission queued as %s", r.PendingTimestamp))
	case r.Payment != nil:
		cmdutil.PrintSuccess("Submission requires payment. Complete it at:")
		fmt.Println("  " + r.Payment.URL)
	case r.Scheduling != nil:
		cmdutil.PrintSuccess("Submission requires a booking. Complete it at:")
		fmt.Println("  " + r.Scheduling.URL)
	case r.IsOffline:
		cmdutil.PrintWarning("Offline: this form requires payment or scheduling and cannot be submitted until online")
	default:
		cmdutil.PrintSuccess(fmt.Sprintf("Submitted %s", cmdutil.EmptyOr(r.SubmissionID, "form")))
	}
	return nil
}
