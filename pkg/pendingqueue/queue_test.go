package pendingqueue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/formsync/pkg/apperror"
	"github.com/marmos91/formsync/pkg/environment"
	"github.com/marmos91/formsync/pkg/forms"
	"github.com/marmos91/formsync/pkg/kvstore"
	"github.com/marmos91/formsync/pkg/kvstore/memory"
)

type fakeSubmitter struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]error
	hook  func(PendingSubmission)
}

func (f *fakeSubmitter) SubmitPending(ctx context.Context, item PendingSubmission) error {
	f.mu.Lock()
	f.calls = append(f.calls, item.PendingTimestamp)
	err := f.fail[item.PendingTimestamp]
	hook := f.hook
	f.mu.Unlock()
	if hook != nil {
		hook(item)
	}
	return err
}

type staticSession bool

func (s staticSession) IsAuthenticated() bool { return bool(s) }

type fixedClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func newQueue(t *testing.T, opts ...Option) (*Queue, *environment.Static, *fakeSubmitter) {
	t.Helper()
	probe := environment.NewStatic(false, environment.Network4G)
	sub := &fakeSubmitter{fail: map[string]error{}}
	base := []Option{WithProbe(probe), WithSubmitter(sub), WithSession(staticSession(true))}
	q := New(kvstore.New(memory.New(), kvstore.WithName(Namespace)), append(base, opts...)...)
	return q, probe, sub
}

func submission(formID int64) PendingSubmission {
	return FromFormSubmission(forms.FormSubmission{
		FormsAppID: 7,
		Definition: forms.Form{ID: formID, Name: "Inspection"},
		Submission: map[string]any{"name": "Alice"},
		JobID:      "job-1",
	})
}

func TestEnqueuePersistsItemAndSummary(t *testing.T) {
	ctx := context.Background()
	q, _, _ := newQueue(t)

	var seen [][]Summary
	q.Subscribe(func(list []Summary) { seen = append(seen, list) })

	item, err := q.Enqueue(ctx, submission(1))
	require.NoError(t, err)
	require.NotEmpty(t, item.PendingTimestamp)
	_, err = time.Parse(time.RFC3339Nano, item.PendingTimestamp)
	require.NoError(t, err)

	list, err := q.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, item.PendingTimestamp, list[0].PendingTimestamp)
	assert.Equal(t, "job-1", list[0].JobID)

	full, err := q.GetFull(ctx, item.PendingTimestamp)
	require.NoError(t, err)
	require.NotNil(t, full)
	assert.Equal(t, "Alice", full.Submission["name"])

	require.Len(t, seen, 1)
	assert.Len(t, seen[0], 1)
}

func TestEnqueueTimestampsAreUnique(t *testing.T) {
	ctx := context.Background()
	clock := &fixedClock{t: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)}
	q, _, _ := newQueue(t, WithClock(clock.Now))

	var stamps []string
	for i := 0; i < 3; i++ {
		item, err := q.Enqueue(ctx, submission(1))
		require.NoError(t, err)
		stamps = append(stamps, item.PendingTimestamp)
	}

	assert.Equal(t, []string{
		"2024-05-01T10:00:00Z",
		"2024-05-01T10:00:00.000000001Z",
		"2024-05-01T10:00:00.000000002Z",
	}, stamps)
}

func TestGetFullMissing(t *testing.T) {
	q, _, _ := newQueue(t)
	item, err := q.GetFull(context.Background(), "2024-01-01T00:00:00Z")
	require.NoError(t, err)
	assert.Nil(t, item)
}

func TestUpdate(t *testing.T) {
	ctx := context.Background()
	q, _, _ := newQueue(t)
	item, err := q.Enqueue(ctx, submission(1))
	require.NoError(t, err)

	require.NoError(t, q.Update(ctx, item.PendingTimestamp, func(p *PendingSubmission) {
		p.Error = "boom"
	}))

	list, err := q.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, "boom", list[0].Error)

	err = q.Update(ctx, "missing", func(p *PendingSubmission) {})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteAndClear(t *testing.T) {
	ctx := context.Background()
	q, _, _ := newQueue(t)
	a, err := q.Enqueue(ctx, submission(1))
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, submission(2))
	require.NoError(t, err)

	require.NoError(t, q.Delete(ctx, a.PendingTimestamp))
	require.NoError(t, q.Delete(ctx, a.PendingTimestamp))

	list, err := q.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, int64(2), list[0].Definition.ID)

	require.NoError(t, q.Clear(ctx))
	list, err = q.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestProcessDrainsInOrder(t *testing.T) {
	ctx := context.Background()
	q, _, sub := newQueue(t)

	var enqueued []string
	for i := int64(1); i <= 4; i++ {
		item, err := q.Enqueue(ctx, submission(i))
		require.NoError(t, err)
		enqueued = append(enqueued, item.PendingTimestamp)
	}

	var lengths []int
	q.Subscribe(func(list []Summary) { lengths = append(lengths, len(list)) })

	report, err := q.Process(ctx)
	require.NoError(t, err)
	assert.Equal(t, DrainReport{Attempted: 4, Succeeded: 4}, report)
	assert.Equal(t, enqueued, sub.calls)

	list, err := q.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)

	// Summary length never grows during a drain.
	for i := 1; i < len(lengths); i++ {
		assert.LessOrEqual(t, lengths[i], lengths[i-1])
	}
	assert.Equal(t, 0, lengths[len(lengths)-1])
}

func TestProcessRecordsFailureAndContinues(t *testing.T) {
	ctx := context.Background()
	q, _, sub := newQueue(t)

	first, err := q.Enqueue(ctx, submission(1))
	require.NoError(t, err)
	second, err := q.Enqueue(ctx, submission(2))
	require.NoError(t, err)
	third, err := q.Enqueue(ctx, submission(3))
	require.NoError(t, err)

	sub.fail[first.PendingTimestamp] = apperror.FromHTTPStatus(403, "", nil)
	sub.fail[second.PendingTimestamp] = errors.New("internal detail")

	report, err := q.Process(ctx)
	require.NoError(t, err)
	assert.Equal(t, DrainReport{Attempted: 3, Succeeded: 1, Failed: 2}, report)

	list, err := q.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, apperror.MsgAccess, list[0].Error)
	assert.False(t, list[0].IsSubmitting)
	assert.Equal(t, apperror.MsgUnknown, list[1].Error)

	gone, err := q.GetFull(ctx, third.PendingTimestamp)
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestProcessSkipsWhileOffline(t *testing.T) {
	ctx := context.Background()
	q, probe, sub := newQueue(t)
	_, err := q.Enqueue(ctx, submission(1))
	require.NoError(t, err)

	probe.SetOffline(true)
	report, err := q.Process(ctx)
	require.NoError(t, err)
	assert.Equal(t, DrainReport{Skipped: 1}, report)
	assert.Empty(t, sub.calls)
}

func TestProcessSkipsAuthenticatedFormsWhenLoggedOut(t *testing.T) {
	ctx := context.Background()
	q, _, sub := newQueue(t, WithSession(staticSession(false)))

	private := submission(1)
	private.Definition.IsAuthenticated = true
	_, err := q.Enqueue(ctx, private)
	require.NoError(t, err)
	public, err := q.Enqueue(ctx, submission(2))
	require.NoError(t, err)

	report, err := q.Process(ctx)
	require.NoError(t, err)
	assert.Equal(t, DrainReport{Attempted: 1, Succeeded: 1, Skipped: 1}, report)
	assert.Equal(t, []string{public.PendingTimestamp}, sub.calls)
}

func TestProcessSkipsItemsDeletedDuringDrain(t *testing.T) {
	ctx := context.Background()
	q, _, sub := newQueue(t)
	first, err := q.Enqueue(ctx, submission(1))
	require.NoError(t, err)
	second, err := q.Enqueue(ctx, submission(2))
	require.NoError(t, err)

	// The UI deletes the second item while the first is being submitted.
	sub.hook = func(item PendingSubmission) {
		if item.PendingTimestamp == first.PendingTimestamp {
			require.NoError(t, q.Delete(ctx, second.PendingTimestamp))
		}
	}

	report, err := q.Process(ctx)
	require.NoError(t, err)
	assert.Equal(t, DrainReport{Attempted: 1, Succeeded: 1, Skipped: 1}, report)
	assert.Equal(t, []string{first.PendingTimestamp}, sub.calls)
}

// vanishingBackend drops an item on its second read, which is the read
// made when the drain marks the item as submitting.
type vanishingBackend struct {
	kvstore.Backend
	mu    sync.Mutex
	key   string
	reads int
}

func (b *vanishingBackend) GetRecord(ctx context.Context, key string) (*kvstore.Record, error) {
	if key == b.key {
		b.mu.Lock()
		b.reads++
		reads := b.reads
		b.mu.Unlock()
		if reads == 2 {
			if err := b.Backend.DeleteRecord(ctx, key); err != nil {
				return nil, err
			}
		}
	}
	return b.Backend.GetRecord(ctx, key)
}

func TestProcessSkipsItemDeletedBeforeSubmit(t *testing.T) {
	ctx := context.Background()
	backend := &vanishingBackend{Backend: memory.New()}
	sub := &fakeSubmitter{fail: map[string]error{}}
	q := New(kvstore.New(backend, kvstore.WithName(Namespace)),
		WithProbe(environment.NewStatic(false, environment.Network4G)),
		WithSubmitter(sub), WithSession(staticSession(true)))

	item, err := q.Enqueue(ctx, submission(1))
	require.NoError(t, err)
	backend.key = itemKey(item.PendingTimestamp)

	report, err := q.Process(ctx)
	require.NoError(t, err)
	assert.Equal(t, DrainReport{Skipped: 1}, report)
	assert.Empty(t, sub.calls)
}

func TestProcessIsSingleFlight(t *testing.T) {
	ctx := context.Background()
	q, _, sub := newQueue(t)
	_, err := q.Enqueue(ctx, submission(1))
	require.NoError(t, err)

	entered := make(chan struct{})
	release := make(chan struct{})
	sub.hook = func(PendingSubmission) {
		close(entered)
		<-release
	}

	done := make(chan DrainReport)
	go func() {
		report, _ := q.Process(ctx)
		done <- report
	}()

	<-entered
	assert.True(t, q.Busy())
	report, err := q.Process(ctx)
	require.NoError(t, err)
	assert.True(t, report.Busy)

	close(release)
	assert.Equal(t, 1, (<-done).Succeeded)
	assert.Len(t, sub.calls, 1)
	assert.False(t, q.Busy())
}

func TestProcessMarksItemSubmitting(t *testing.T) {
	ctx := context.Background()
	q, _, sub := newQueue(t)
	item, err := q.Enqueue(ctx, submission(1))
	require.NoError(t, err)
	require.NoError(t, q.Update(ctx, item.PendingTimestamp, func(p *PendingSubmission) { p.Error = "old" }))

	var during Summary
	sub.hook = func(PendingSubmission) {
		list, _ := q.List(ctx)
		during = list[0]
	}
	sub.fail[item.PendingTimestamp] = apperror.Offline(nil)

	_, err = q.Process(ctx)
	require.NoError(t, err)
	assert.True(t, during.IsSubmitting)
	assert.Empty(t, during.Error)

	list, err := q.List(ctx)
	require.NoError(t, err)
	assert.False(t, list[0].IsSubmitting)
	assert.Equal(t, apperror.MsgOffline, list[0].Error)
}

func TestProcessAbortLeavesItemQueued(t *testing.T) {
	q, _, sub := newQueue(t)
	item, err := q.Enqueue(context.Background(), submission(1))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	sub.hook = func(PendingSubmission) { cancel() }
	sub.fail[item.PendingTimestamp] = apperror.Aborted(context.Canceled)

	_, err = q.Process(ctx)
	assert.ErrorIs(t, err, apperror.ErrAborted)

	list, err := q.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.False(t, list[0].IsSubmitting)
	assert.Empty(t, list[0].Error)
}

func TestProcessWithoutSubmitter(t *testing.T) {
	q := New(kvstore.New(memory.New()))
	_, err := q.Process(context.Background())
	assert.Error(t, err)
}
