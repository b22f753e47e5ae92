// Package pendingqueue is the durable queue of submissions captured while
// the device was offline. Items survive until the remote store accepts
// them; a drain delivers them in insertion order.
package pendingqueue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/marmos91/formsync/internal/guard"
	"github.com/marmos91/formsync/internal/logger"
	"github.com/marmos91/formsync/internal/telemetry"
	"github.com/marmos91/formsync/pkg/apperror"
	"github.com/marmos91/formsync/pkg/environment"
	"github.com/marmos91/formsync/pkg/events"
	"github.com/marmos91/formsync/pkg/kvstore"
	"github.com/marmos91/formsync/pkg/metrics"
)

// Namespace is the KV namespace owned by the queue.
const Namespace = "pending-queue"

const (
	listKey       = "pending-queue"
	itemKeyPrefix = "pending-queue-"
)

// Drain outcomes reported to metrics.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
	OutcomeSkipped   = "skipped"
)

// ErrNotFound is returned by Update when the item no longer exists.
var ErrNotFound = errors.New("pending submission not found")

// errVanished marks an item deleted between listing and submission.
var errVanished = errors.New("pending submission removed during drain")

// Submitter delivers a queued submission to the remote store.
type Submitter interface {
	SubmitPending(ctx context.Context, item PendingSubmission) error
}

// Session reports whether the user is logged in.
type Session interface {
	IsAuthenticated() bool
}

// Queue is the pending submission queue.
type Queue struct {
	store     *kvstore.Store
	probe     environment.Probe
	session   Session
	submitter Submitter
	metrics   metrics.QueueMetrics
	now       func() time.Time

	// mu serializes read-modify-write of the summary list.
	mu      sync.Mutex
	drain   guard.Flag
	emitter *events.Emitter[[]Summary]
}

// Option configures a Queue.
type Option func(*Queue)

// WithProbe sets the connectivity probe consulted during a drain.
func WithProbe(p environment.Probe) Option {
	return func(q *Queue) { q.probe = p }
}

// WithSession sets the session consulted for authenticated forms.
func WithSession(s Session) Option {
	return func(q *Queue) { q.session = s }
}

// WithSubmitter sets the delivery collaborator.
func WithSubmitter(s Submitter) Option {
	return func(q *Queue) { q.submitter = s }
}

// WithMetrics sets queue metrics. nil disables them.
func WithMetrics(m metrics.QueueMetrics) Option {
	return func(q *Queue) { q.metrics = m }
}

// WithClock overrides the clock used for pending timestamps.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) { q.now = now }
}

// New creates a queue over a store dedicated to the queue namespace.
func New(store *kvstore.Store, opts ...Option) *Queue {
	q := &Queue{
		store:   store,
		now:     time.Now,
		emitter: events.NewEmitter[[]Summary]("pending-queue"),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// SetSubmitter sets the delivery collaborator after construction, for
// submitters that themselves depend on the queue.
func (q *Queue) SetSubmitter(s Submitter) {
	q.mu.Lock()
	q.submitter = s
	q.mu.Unlock()
}

func itemKey(ts string) string {
	return itemKeyPrefix + ts
}

// Subscribe registers fn to receive the full summary list after every
// mutation.
func (q *Queue) Subscribe(fn func([]Summary)) (unsubscribe func()) {
	return q.emitter.Subscribe(fn)
}

func (q *Queue) notify(list []Summary) {
	if q.metrics != nil {
		q.metrics.SetQueueLength(len(list))
	}
	q.emitter.Emit(list)
}

// List returns the summaries in FIFO order.
func (q *Queue) List(ctx context.Context) ([]Summary, error) {
	list, _, err := kvstore.GetAs[[]Summary](ctx, q.store, listKey)
	if err != nil {
		return nil, fmt.Errorf("pendingqueue: list: %w", err)
	}
	if list == nil {
		list = []Summary{}
	}
	return list, nil
}

// GetFull returns the full item, nil when it does not exist.
func (q *Queue) GetFull(ctx context.Context, pendingTimestamp string) (*PendingSubmission, error) {
	item, found, err := kvstore.GetAs[PendingSubmission](ctx, q.store, itemKey(pendingTimestamp))
	if err != nil {
		return nil, fmt.Errorf("pendingqueue: get %s: %w", pendingTimestamp, err)
	}
	if !found {
		return nil, nil
	}
	return &item, nil
}

// Enqueue assigns a unique pending timestamp, persists the item and
// appends its summary. Listeners fire once both writes are done.
func (q *Queue) Enqueue(ctx context.Context, item PendingSubmission) (*PendingSubmission, error) {
	q.mu.Lock()
	list, err := q.List(ctx)
	if err != nil {
		q.mu.Unlock()
		return nil, err
	}

	item.PendingTimestamp = q.uniqueTimestamp(list)
	item.IsSubmitting = false
	item.Error = ""

	if err := q.store.Set(ctx, itemKey(item.PendingTimestamp), item); err != nil {
		q.mu.Unlock()
		return nil, fmt.Errorf("pendingqueue: save item: %w", err)
	}
	list = append(list, item.Summary())
	if err := q.store.Set(ctx, listKey, list); err != nil {
		// Without a summary the item is unreachable.
		_ = q.store.Remove(context.WithoutCancel(ctx), itemKey(item.PendingTimestamp))
		q.mu.Unlock()
		return nil, fmt.Errorf("pendingqueue: save list: %w", err)
	}
	q.mu.Unlock()

	if q.metrics != nil {
		q.metrics.RecordEnqueue()
	}
	logger.InfoCtx(ctx, "Submission queued",
		logger.PendingTimestamp(item.PendingTimestamp),
		logger.FormID(item.Definition.ID),
		logger.FormsAppID(item.FormsAppID),
		logger.KeyQueueLength, len(list))
	q.notify(list)
	return &item, nil
}

// uniqueTimestamp returns now as RFC 3339 with nanoseconds, bumped by 1ns
// until it does not collide with a queued item.
func (q *Queue) uniqueTimestamp(list []Summary) string {
	taken := make(map[string]struct{}, len(list))
	for _, s := range list {
		taken[s.PendingTimestamp] = struct{}{}
	}
	t := q.now().UTC()
	for {
		ts := t.Format(time.RFC3339Nano)
		if _, ok := taken[ts]; !ok {
			return ts
		}
		t = t.Add(time.Nanosecond)
	}
}

// Update applies patch to the item and its summary.
func (q *Queue) Update(ctx context.Context, pendingTimestamp string, patch func(*PendingSubmission)) error {
	q.mu.Lock()
	list, err := q.update(ctx, pendingTimestamp, patch)
	q.mu.Unlock()
	if err != nil {
		return err
	}
	q.notify(list)
	return nil
}

func (q *Queue) update(ctx context.Context, pendingTimestamp string, patch func(*PendingSubmission)) ([]Summary, error) {
	item, err := q.GetFull(ctx, pendingTimestamp)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, ErrNotFound
	}

	patch(item)
	item.PendingTimestamp = pendingTimestamp
	if err := q.store.Set(ctx, itemKey(pendingTimestamp), item); err != nil {
		return nil, fmt.Errorf("pendingqueue: save item: %w", err)
	}

	list, err := q.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range list {
		if list[i].PendingTimestamp == pendingTimestamp {
			list[i] = item.Summary()
		}
	}
	if err := q.store.Set(ctx, listKey, list); err != nil {
		return nil, fmt.Errorf("pendingqueue: save list: %w", err)
	}
	return list, nil
}

// Delete removes the item and its summary. Deleting a missing item is not
// an error.
func (q *Queue) Delete(ctx context.Context, pendingTimestamp string) error {
	q.mu.Lock()
	list, err := q.List(ctx)
	if err != nil {
		q.mu.Unlock()
		return err
	}
	if err := q.store.Remove(ctx, itemKey(pendingTimestamp)); err != nil {
		q.mu.Unlock()
		return fmt.Errorf("pendingqueue: remove item: %w", err)
	}
	kept := list[:0]
	for _, s := range list {
		if s.PendingTimestamp != pendingTimestamp {
			kept = append(kept, s)
		}
	}
	if err := q.store.Set(ctx, listKey, kept); err != nil {
		q.mu.Unlock()
		return fmt.Errorf("pendingqueue: save list: %w", err)
	}
	q.mu.Unlock()

	logger.DebugCtx(ctx, "Pending submission removed", logger.PendingTimestamp(pendingTimestamp))
	q.notify(kept)
	return nil
}

// Clear removes every queued item.
func (q *Queue) Clear(ctx context.Context) error {
	q.mu.Lock()
	list, err := q.List(ctx)
	if err != nil {
		q.mu.Unlock()
		return err
	}
	for _, s := range list {
		if err := q.store.Remove(ctx, itemKey(s.PendingTimestamp)); err != nil {
			q.mu.Unlock()
			return fmt.Errorf("pendingqueue: remove item: %w", err)
		}
	}
	if err := q.store.Remove(ctx, listKey); err != nil {
		q.mu.Unlock()
		return fmt.Errorf("pendingqueue: remove list: %w", err)
	}
	q.mu.Unlock()

	logger.InfoCtx(ctx, "Pending queue cleared", logger.KeyCount, len(list))
	q.notify([]Summary{})
	return nil
}

// Busy reports whether a drain is running.
func (q *Queue) Busy() bool {
	return q.drain.Busy()
}

// Process drains the queue in FIFO order. A call made while another drain
// is running returns immediately with Busy set. Items are skipped while
// offline and, for forms requiring login, while logged out. One item's
// failure is recorded on the item and never stops the loop.
func (q *Queue) Process(ctx context.Context) (DrainReport, error) {
	if !q.drain.TryAcquire() {
		if q.metrics != nil {
			q.metrics.RecordDrainBusy()
		}
		logger.DebugCtx(ctx, "Pending queue drain already running")
		return DrainReport{Busy: true}, nil
	}
	defer q.drain.Release()

	q.mu.Lock()
	submitter := q.submitter
	q.mu.Unlock()
	if submitter == nil {
		return DrainReport{}, errors.New("pendingqueue: no submitter configured")
	}

	ctx = logger.WithContext(ctx, logger.NewLogContext("pendingqueue.process"))
	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanDrainQueue)
	defer span.End()

	list, err := q.List(ctx)
	if err != nil {
		telemetry.RecordError(ctx, err)
		return DrainReport{}, err
	}

	var report DrainReport
	for _, summary := range list {
		if err := ctx.Err(); err != nil {
			return report, apperror.Aborted(err)
		}
		if q.skip(ctx, summary) {
			report.Skipped++
			q.recordOutcome(OutcomeSkipped)
			continue
		}

		item, err := q.GetFull(ctx, summary.PendingTimestamp)
		if err != nil {
			// Unreadable item; record it and move on.
			report.Failed++
			q.recordOutcome(OutcomeFailed)
			telemetry.RecordError(ctx, err, telemetry.PendingTimestamp(summary.PendingTimestamp))
			logger.WarnCtx(ctx, "Failed to load pending submission",
				logger.PendingTimestamp(summary.PendingTimestamp), logger.Err(err))
			continue
		}
		if item == nil {
			report.Skipped++
			q.recordOutcome(OutcomeSkipped)
			continue
		}

		err = q.processItem(ctx, submitter, item)
		if errors.Is(err, errVanished) {
			report.Skipped++
			q.recordOutcome(OutcomeSkipped)
			continue
		}
		report.Attempted++
		if err != nil {
			if errors.Is(err, apperror.ErrAborted) {
				return report, err
			}
			report.Failed++
			q.recordOutcome(OutcomeFailed)
			continue
		}
		report.Succeeded++
		q.recordOutcome(OutcomeSucceeded)
	}

	logger.InfoCtx(ctx, "Pending queue drained",
		"attempted", report.Attempted,
		"succeeded", report.Succeeded,
		"failed", report.Failed,
		"skipped", report.Skipped)
	return report, nil
}

func (q *Queue) skip(ctx context.Context, s Summary) bool {
	if q.probe != nil && q.probe.IsOffline(ctx) {
		logger.DebugCtx(ctx, "Skipping pending submission while offline",
			logger.PendingTimestamp(s.PendingTimestamp))
		return true
	}
	if s.Definition.IsAuthenticated && (q.session == nil || !q.session.IsAuthenticated()) {
		logger.DebugCtx(ctx, "Skipping pending submission until login",
			logger.PendingTimestamp(s.PendingTimestamp), logger.FormID(s.Definition.ID))
		return true
	}
	return false
}

func (q *Queue) processItem(ctx context.Context, submitter Submitter, item *PendingSubmission) error {
	ts := item.PendingTimestamp
	err := q.Update(ctx, ts, func(p *PendingSubmission) {
		p.IsSubmitting = true
		p.Error = ""
	})
	if errors.Is(err, ErrNotFound) {
		logger.DebugCtx(ctx, "Pending submission removed before submit", logger.PendingTimestamp(ts))
		return errVanished
	}
	if err != nil {
		return q.recordFailure(ctx, item, err)
	}
	item.IsSubmitting = true
	item.Error = ""

	if err := submitter.SubmitPending(ctx, *item); err != nil {
		if errors.Is(apperror.Normalize(err), apperror.ErrAborted) {
			// Remote state is unknown; leave the item for the next drain.
			_ = q.Update(context.WithoutCancel(ctx), ts, func(p *PendingSubmission) { p.IsSubmitting = false })
			return apperror.Normalize(err)
		}
		return q.recordFailure(ctx, item, err)
	}

	if err := q.Delete(ctx, ts); err != nil {
		// The remote store has the submission; a stale local copy is
		// preferable to failing the item.
		logger.WarnCtx(ctx, "Submitted item could not be removed from queue",
			logger.PendingTimestamp(ts), logger.Err(err))
	}
	logger.InfoCtx(ctx, "Pending submission delivered",
		logger.PendingTimestamp(ts), logger.FormID(item.Definition.ID))
	return nil
}

func (q *Queue) recordFailure(ctx context.Context, item *PendingSubmission, err error) error {
	appErr := apperror.Normalize(err)
	if appErr.Kind == apperror.KindUnknown {
		telemetry.RecordError(ctx, err, telemetry.PendingTimestamp(item.PendingTimestamp))
	}
	logger.WarnCtx(ctx, "Pending submission failed",
		logger.PendingTimestamp(item.PendingTimestamp),
		logger.FormID(item.Definition.ID),
		logger.KeyErrorKind, string(appErr.Kind),
		logger.Err(err))

	message := apperror.UserMessage(appErr)
	if uerr := q.Update(ctx, item.PendingTimestamp, func(p *PendingSubmission) {
		p.IsSubmitting = false
		p.Error = message
	}); uerr != nil && !errors.Is(uerr, ErrNotFound) {
		logger.WarnCtx(ctx, "Failed to record pending submission error",
			logger.PendingTimestamp(item.PendingTimestamp), logger.Err(uerr))
	}
	return appErr
}

func (q *Queue) recordOutcome(outcome string) {
	if q.metrics != nil {
		q.metrics.RecordProcessed(outcome)
	}
}
