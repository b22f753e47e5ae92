package commands

import (
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/marmos91/formsync/cmd/formsctl/cmdutil"
	"github.com/marmos91/formsync/internal/cli/health"
	"github.com/marmos91/formsync/internal/cli/output"
	"github.com/marmos91/formsync/internal/cli/timeutil"
	"github.com/marmos91/formsync/pkg/api/handlers"
)

var agentURL string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the state of a running agent",
	Long: `Query the status server of a running 'formsctl agent'.

Examples:
  # Agent on the configured port
  formsctl status

  # Agent on another host, as JSON
  formsctl status --agent-url http://10.0.0.5:9464 -o json`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&agentURL, "agent-url", "", "Agent status URL (default: http://localhost:<agent.port>)")
}

func runStatus(cmd *cobra.Command, args []string) error {
	url := agentURL
	if url == "" {
		cfg, err := cmdutil.LoadConfig()
		if err != nil {
			return err
		}
		url = "http://localhost:" + strconv.Itoa(cfg.Agent.Port)
	}

	resp, err := health.FetchStatus(cmd.Context(), &http.Client{Timeout: health.DefaultTimeout}, url)
	if err != nil {
		return fmt.Errorf("agent not reachable at %s: %w", url, err)
	}
	if resp.Data == nil {
		return fmt.Errorf("agent at %s returned no status", url)
	}

	format, err := cmdutil.GetOutputFormatParsed()
	if err != nil {
		return err
	}
	if format != output.FormatTable {
		return output.Print(os.Stdout, format, resp.Data, nil)
	}
	return output.KeyValue(os.Stdout, statusPairs(resp.Data, time.Now()))
}

func statusPairs(s *handlers.Status, now time.Time) [][2]string {
	pairs := [][2]string{
		{"Online", cmdutil.BoolToYesNo(s.Online)},
		{"Network", cmdutil.EmptyOr(s.NetworkClass, "unknown")},
		{"Pending", strconv.Itoa(s.Pending.Count)},
		{"Pending failed", strconv.Itoa(s.Pending.Failed)},
		{"Draining", cmdutil.BoolToYesNo(s.Pending.Draining)},
		{"Drafts synced", strconv.Itoa(s.Drafts.Synced)},
		{"Drafts unsynced", strconv.Itoa(s.Drafts.Unsynced)},
		{"Syncing", cmdutil.BoolToYesNo(s.Drafts.Syncing)},
	}
	pairs = append(pairs, runPair("Last drain", s.LastDrain, now))
	pairs = append(pairs, runPair("Last sync", s.LastSync, now))
	return pairs
}

func runPair(label string, r *handlers.RunStatus, now time.Time) [2]string {
	if r == nil {
		return [2]string{label, "never"}
	}
	v := timeutil.FormatAge(r.At, now) + " ago (" + r.Duration + ")"
	if r.Error != "" {
		v += ": " + cmdutil.Truncate(r.Error, 60)
	}
	return [2]string{label, v}
}
