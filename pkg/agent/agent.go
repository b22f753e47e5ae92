// Package agent runs the pending queue drain and the draft sync in the
// background and exposes their state over a small HTTP server.
//
// Both jobs run on a fixed interval and immediately whenever the
// connectivity probe reports the device came back online.
package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/marmos91/formsync/internal/logger"
	"github.com/marmos91/formsync/pkg/api"
	"github.com/marmos91/formsync/pkg/api/handlers"
	"github.com/marmos91/formsync/pkg/drafts"
	"github.com/marmos91/formsync/pkg/environment"
	"github.com/marmos91/formsync/pkg/pendingqueue"
)

const (
	// DefaultInterval is the time between background runs.
	DefaultInterval = 5 * time.Minute

	// DefaultProbeInterval is how often connectivity is checked for an
	// offline to online transition.
	DefaultProbeInterval = 15 * time.Second
)

// Queue is the pending queue as seen by the agent.
type Queue interface {
	Process(ctx context.Context) (pendingqueue.DrainReport, error)
	List(ctx context.Context) ([]pendingqueue.Summary, error)
	Busy() bool
}

// Drafts is the draft synchronizer as seen by the agent.
type Drafts interface {
	SyncDrafts(ctx context.Context, opts drafts.SyncOptions) (drafts.SyncReport, error)
	GetDrafts(ctx context.Context) ([]drafts.LocalFormSubmissionDraft, error)
	Busy() bool
}

// Config configures an Agent.
type Config struct {
	Interval      time.Duration
	ProbeInterval time.Duration

	// FormsAppIDs are the apps whose drafts are synchronized. With none,
	// only the queue is drained.
	FormsAppIDs []int64

	// Server configures the status server. A nil Enabled means enabled.
	Server api.ServerConfig
}

func (c *Config) applyDefaults() {
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.ProbeInterval <= 0 {
		c.ProbeInterval = DefaultProbeInterval
	}
}

// Agent is the background worker.
type Agent struct {
	queue  Queue
	drafts Drafts
	probe  environment.Probe
	config Config
	server *api.Server

	mu        sync.Mutex
	lastDrain *handlers.RunStatus
	lastSync  *handlers.RunStatus

	trigger chan struct{}
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates an Agent. drafts and probe may be nil.
func New(queue Queue, d Drafts, probe environment.Probe, config Config) *Agent {
	config.applyDefaults()
	a := &Agent{
		queue:   queue,
		drafts:  d,
		probe:   probe,
		config:  config,
		trigger: make(chan struct{}, 1),
	}
	if config.Server.IsEnabled() {
		a.server = api.NewServer(config.Server, a)
	}
	return a
}

// Server returns the status server, nil when disabled.
func (a *Agent) Server() *api.Server {
	return a.server
}

// Start launches the background loop and the status server. Call Stop to
// shut both down.
func (a *Agent) Start(ctx context.Context) {
	ctx, a.cancel = context.WithCancel(ctx)

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.loop(ctx)
	}()

	if a.server != nil {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			if err := a.server.Start(ctx); err != nil {
				logger.Error("Status server stopped with error", logger.Err(err))
			}
		}()
	}
}

// Stop cancels the background loop, shuts the server down and waits.
func (a *Agent) Stop() {
	if a.cancel != nil {
		a.cancel()
	}
	a.wg.Wait()
}

// Trigger requests an immediate run. It never blocks; a run already
// requested absorbs further triggers.
func (a *Agent) Trigger() {
	select {
	case a.trigger <- struct{}{}:
	default:
	}
}

func (a *Agent) offline(ctx context.Context) bool {
	return a.probe != nil && a.probe.IsOffline(ctx)
}

func (a *Agent) loop(ctx context.Context) {
	logger.Info("Background agent started",
		"interval", a.config.Interval.String(),
		"probe_interval", a.config.ProbeInterval.String(),
		"forms_apps", len(a.config.FormsAppIDs))

	ticker := time.NewTicker(a.config.Interval)
	defer ticker.Stop()
	probeTicker := time.NewTicker(a.config.ProbeInterval)
	defer probeTicker.Stop()

	wasOffline := a.offline(ctx)
	if !wasOffline {
		a.RunOnce(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			logger.Info("Background agent stopped")
			return
		case <-ticker.C:
			a.RunOnce(ctx)
		case <-a.trigger:
			a.RunOnce(ctx)
		case <-probeTicker.C:
			offline := a.offline(ctx)
			if wasOffline && !offline {
				logger.Info("Connectivity restored; running background jobs")
				a.RunOnce(ctx)
			}
			wasOffline = offline
		}
	}
}

// RunOnce drains the pending queue and then synchronizes drafts of every
// configured app. Errors are logged and recorded in the status.
func (a *Agent) RunOnce(ctx context.Context) {
	start := time.Now()
	report, err := a.queue.Process(ctx)
	a.record(&a.lastDrain, start, err)
	if err != nil {
		logger.WarnCtx(ctx, "Background queue drain failed", logger.Err(err))
	} else if !report.Busy && report.Attempted > 0 {
		logger.InfoCtx(ctx, "Background queue drain finished",
			"succeeded", report.Succeeded,
			"failed", report.Failed)
	}

	if a.drafts == nil || len(a.config.FormsAppIDs) == 0 {
		return
	}
	start = time.Now()
	var syncErr error
	for _, appID := range a.config.FormsAppIDs {
		if ctx.Err() != nil {
			break
		}
		if _, err := a.drafts.SyncDrafts(ctx, drafts.SyncOptions{FormsAppID: appID}); err != nil {
			logger.WarnCtx(ctx, "Background draft sync failed", logger.FormsAppID(appID), logger.Err(err))
			syncErr = fmt.Errorf("forms app %d: %w", appID, err)
		}
	}
	a.record(&a.lastSync, start, syncErr)
}

func (a *Agent) record(dst **handlers.RunStatus, start time.Time, err error) {
	run := &handlers.RunStatus{At: start.UTC(), Duration: time.Since(start).String()}
	if err != nil {
		run.Error = err.Error()
	}
	a.mu.Lock()
	*dst = run
	a.mu.Unlock()
}

// Status implements handlers.StatusSource.
func (a *Agent) Status(ctx context.Context) (*handlers.Status, error) {
	items, err := a.queue.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list pending submissions: %w", err)
	}

	status := &handlers.Status{
		Online: !a.offline(ctx),
		Pending: handlers.PendingStatus{
			Count:    len(items),
			Draining: a.queue.Busy(),
			Items:    items,
		},
	}
	if a.probe != nil {
		status.NetworkClass = string(a.probe.NetworkClass(ctx))
	}
	for _, item := range items {
		if item.Error != "" {
			status.Pending.Failed++
		}
	}

	if a.drafts != nil {
		list, err := a.drafts.GetDrafts(ctx)
		if err != nil {
			return nil, fmt.Errorf("list drafts: %w", err)
		}
		for _, d := range list {
			if d.Synced {
				status.Drafts.Synced++
			} else {
				status.Drafts.Unsynced++
			}
		}
		status.Drafts.Syncing = a.drafts.Busy()
	}

	a.mu.Lock()
	status.LastDrain = a.lastDrain
	status.LastSync = a.lastSync
	a.mu.Unlock()
	return status, nil
}

var _ handlers.StatusSource = (*Agent)(nil)
