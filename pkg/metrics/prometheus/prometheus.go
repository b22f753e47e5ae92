// Package prometheus provides Prometheus implementations of the formsync
// metric interfaces. Every constructor returns nil when metrics are
// disabled so callers get zero overhead.
package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/formsync/pkg/metrics"
)

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// uploadMetrics is the Prometheus implementation of metrics.UploadMetrics.
type uploadMetrics struct {
	attemptsTotal    *prometheus.CounterVec
	attemptDuration  *prometheus.HistogramVec
	uploadsTotal     *prometheus.CounterVec
	uploadAttempts   prometheus.Histogram
	bytesTransferred *prometheus.CounterVec
	downloadDuration *prometheus.HistogramVec
}

// NewUploadMetrics returns nil if metrics are not enabled.
func NewUploadMetrics() metrics.UploadMetrics {
	if !metrics.IsEnabled() {
		return nil
	}
	f := promauto.With(metrics.GetRegistry())

	return &uploadMetrics{
		attemptsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "formsync_upload_attempts_total",
			Help: "Whole-object upload attempts by status",
		}, []string{"status"}),
		attemptDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name: "formsync_upload_attempt_duration_milliseconds",
			Help: "Duration of a single upload attempt in milliseconds",
			Buckets: []float64{
				50,     // small JSON bodies on fast links
				250,    // typical submission
				1000,   // 1s
				5000,   // attachments
				30000,  // multipart on 3g
				120000, // multipart on 2g
			},
		}, []string{"status"}),
		uploadsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "formsync_uploads_total",
			Help: "Uploads by final status after retries",
		}, []string{"status"}),
		uploadAttempts: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "formsync_upload_attempts_per_upload",
			Help:    "Attempts needed per upload",
			Buckets: []float64{1, 2, 3},
		}),
		bytesTransferred: f.NewCounterVec(prometheus.CounterOpts{
			Name: "formsync_storage_bytes_total",
			Help: "Bytes transferred to and from blob storage",
		}, []string{"direction"}),
		downloadDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "formsync_download_duration_milliseconds",
			Help:    "Duration of draft data downloads in milliseconds",
			Buckets: []float64{50, 250, 1000, 5000, 30000},
		}, []string{"status"}),
	}
}

func (m *uploadMetrics) ObserveAttempt(duration time.Duration, err error) {
	s := status(err)
	m.attemptsTotal.WithLabelValues(s).Inc()
	m.attemptDuration.WithLabelValues(s).Observe(float64(duration.Milliseconds()))
}

func (m *uploadMetrics) ObserveUpload(bytes int, attempts int, err error) {
	m.uploadsTotal.WithLabelValues(status(err)).Inc()
	m.uploadAttempts.Observe(float64(attempts))
	if err == nil {
		m.bytesTransferred.WithLabelValues("upload").Add(float64(bytes))
	}
}

func (m *uploadMetrics) ObserveDownload(bytes int, duration time.Duration, err error) {
	m.downloadDuration.WithLabelValues(status(err)).Observe(float64(duration.Milliseconds()))
	if err == nil {
		m.bytesTransferred.WithLabelValues("download").Add(float64(bytes))
	}
}

// queueMetrics is the Prometheus implementation of metrics.QueueMetrics.
type queueMetrics struct {
	length    prometheus.Gauge
	enqueued  prometheus.Counter
	processed *prometheus.CounterVec
	busy      prometheus.Counter
}

// NewQueueMetrics returns nil if metrics are not enabled.
func NewQueueMetrics() metrics.QueueMetrics {
	if !metrics.IsEnabled() {
		return nil
	}
	f := promauto.With(metrics.GetRegistry())

	return &queueMetrics{
		length: f.NewGauge(prometheus.GaugeOpts{
			Name: "formsync_pending_queue_length",
			Help: "Submissions waiting in the pending queue",
		}),
		enqueued: f.NewCounter(prometheus.CounterOpts{
			Name: "formsync_pending_queue_enqueued_total",
			Help: "Submissions captured for later delivery",
		}),
		processed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "formsync_pending_queue_processed_total",
			Help: "Pending submissions handled by a drain, by outcome",
		}, []string{"outcome"}),
		busy: f.NewCounter(prometheus.CounterOpts{
			Name: "formsync_pending_queue_drain_busy_total",
			Help: "Drain calls skipped because a drain was already running",
		}),
	}
}

func (m *queueMetrics) SetQueueLength(n int) { m.length.Set(float64(n)) }
func (m *queueMetrics) RecordEnqueue() { m.enqueued.Inc() }
func (m *queueMetrics) RecordProcessed(outcome string) { m.processed.WithLabelValues(outcome).Inc() }
func (m *queueMetrics) RecordDrainBusy() { m.busy.Inc() }

// syncMetrics is the Prometheus implementation of metrics.SyncMetrics.
type syncMetrics struct {
	passes   *prometheus.CounterVec
	duration prometheus.Histogram
	busy     prometheus.Counter
	drafts   *prometheus.GaugeVec
}

// NewSyncMetrics returns nil if metrics are not enabled.
func NewSyncMetrics() metrics.SyncMetrics {
	if !metrics.IsEnabled() {
		return nil
	}
	f := promauto.With(metrics.GetRegistry())

	return &syncMetrics{
		passes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "formsync_draft_sync_total",
			Help: "Draft sync passes by status",
		}, []string{"status"}),
		duration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "formsync_draft_sync_duration_milliseconds",
			Help:    "Duration of draft sync passes in milliseconds",
			Buckets: []float64{100, 500, 1000, 5000, 30000, 120000},
		}),
		busy: f.NewCounter(prometheus.CounterOpts{
			Name: "formsync_draft_sync_busy_total",
			Help: "Sync calls skipped because a sync was already running",
		}),
		drafts: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "formsync_drafts",
			Help: "Local drafts by bucket",
		}, []string{"bucket"}),
	}
}

func (m *syncMetrics) ObserveSync(duration time.Duration, err error) {
	m.passes.WithLabelValues(status(err)).Inc()
	m.duration.Observe(float64(duration.Milliseconds()))
}

func (m *syncMetrics) RecordSyncBusy() { m.busy.Inc() }

func (m *syncMetrics) SetDraftCounts(unsynced, synced, deleted int) {
	m.drafts.WithLabelValues("unsynced").Set(float64(unsynced))
	m.drafts.WithLabelValues("synced").Set(float64(synced))
	m.drafts.WithLabelValues("deleted").Set(float64(deleted))
}
