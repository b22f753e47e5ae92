package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/marmos91/formsync/cmd/formsctl/cmdutil"
	"github.com/marmos91/formsync/internal/logger"
	"github.com/marmos91/formsync/internal/telemetry"
)

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Run the background sync agent",
	Long: `Run the background agent in the foreground.

The agent drains the pending submission queue and synchronizes drafts on
the configured interval, and immediately whenever connectivity returns.
Its state is served on the status port (see 'formsctl status').

Press Ctrl+C to stop.`,
	RunE: runAgent,
}

func runAgent(cmd *cobra.Command, args []string) error {
	client, err := cmdutil.OpenClient()
	if err != nil {
		return err
	}
	defer func() {
		if err := client.Close(); err != nil {
			logger.Error("Failed to close storage", logger.Err(err))
		}
	}()
	cfg := client.Config

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	telemetryShutdown, err := telemetry.Init(ctx, cfg.TelemetryConfig(Version))
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, done := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer done()
		if err := telemetryShutdown(shutdownCtx); err != nil {
			logger.Error("telemetry shutdown error", logger.Err(err))
		}
	}()

	if telemetry.IsEnabled() {
		logger.Info("Telemetry enabled", "endpoint", cfg.Telemetry.Endpoint, "sample_rate", cfg.Telemetry.SampleRate)
	} else {
		logger.Info("Telemetry disabled")
	}

	a := client.NewAgent()
	a.Start(ctx)
	if srv := a.Server(); srv != nil {
		logger.Info("Status server listening", "port", cfg.Agent.Port)
	}
	logger.Info("Agent is running. Press Ctrl+C to stop.",
		"interval", cfg.Sync.Interval, "forms_app_ids", cfg.Sync.FormsAppIDs)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	signal.Stop(sigChan)

	logger.Info("Shutdown signal received, stopping agent")
	stopped := make(chan struct{})
	go func() {
		a.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		logger.Info("Agent stopped")
	case <-time.After(cfg.ShutdownTimeout):
		logger.Warn("Agent did not stop within the shutdown timeout", "timeout", cfg.ShutdownTimeout)
	}
	return nil
}
