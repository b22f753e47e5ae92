// Package metrics defines the metric interfaces used by the upload, queue
// and draft sync components and owns the Prometheus registry they are
// registered on.
//
// All interfaces are optional: components accept nil and skip recording,
// so metrics cost nothing unless InitRegistry was called.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	mu       sync.RWMutex
	registry *prometheus.Registry
)

// InitRegistry creates the registry and enables metrics. Go runtime and
// process collectors are registered alongside the formsync metrics.
// Calling it again resets the registry.
func InitRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	mu.Lock()
	registry = reg
	mu.Unlock()
	return reg
}

// Reset disables metrics again. Used by tests.
func Reset() {
	mu.Lock()
	registry = nil
	mu.Unlock()
}

// IsEnabled reports whether InitRegistry has been called.
func IsEnabled() bool {
	mu.RLock()
	defer mu.RUnlock()
	return registry != nil
}

// GetRegistry returns the registry, or nil when metrics are disabled.
func GetRegistry() *prometheus.Registry {
	mu.RLock()
	defer mu.RUnlock()
	return registry
}

// Handler serves the registry in the Prometheus exposition format.
// When metrics are disabled it responds 404.
func Handler() http.Handler {
	reg := GetRegistry()
	if reg == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// UploadMetrics records blob storage transfers.
type UploadMetrics interface {
	// ObserveAttempt records one whole-object upload attempt.
	ObserveAttempt(duration time.Duration, err error)

	// ObserveUpload records the final outcome of an upload after retries.
	ObserveUpload(bytes int, attempts int, err error)

	// ObserveDownload records a draft data download.
	ObserveDownload(bytes int, duration time.Duration, err error)
}

// QueueMetrics records pending queue activity.
type QueueMetrics interface {
	// SetQueueLength reports the current number of pending submissions.
	SetQueueLength(n int)

	// RecordEnqueue counts a submission captured for later delivery.
	RecordEnqueue()

	// RecordProcessed counts a drained item by outcome: "succeeded",
	// "failed" or "skipped".
	RecordProcessed(outcome string)

	// RecordDrainBusy counts a drain call skipped because one was running.
	RecordDrainBusy()
}

// SyncMetrics records draft synchronization passes.
type SyncMetrics interface {
	// ObserveSync records a full sync pass.
	ObserveSync(duration time.Duration, err error)

	// RecordSyncBusy counts a sync call skipped because one was running.
	RecordSyncBusy()

	// SetDraftCounts reports the size of each local bucket.
	SetDraftCounts(unsynced, synced, deleted int)
}
