package drafts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/formsync/pkg/apperror"
	"github.com/marmos91/formsync/pkg/environment"
	"github.com/marmos91/formsync/pkg/forms"
	"github.com/marmos91/formsync/pkg/kvstore"
	"github.com/marmos91/formsync/pkg/kvstore/memory"
)

const appID = int64(3)

type harness struct {
	sync   *Synchronizer
	remote *fakeRemote
	probe  *environment.Static
	store  *kvstore.Store
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	clock := newClock()
	remote := newFakeRemote(clock)
	probe := environment.NewStatic(false, environment.Network4G)
	store := kvstore.New(memory.New(), kvstore.WithName(Namespace), kvstore.WithThreshold(64))

	ids := 0
	s := New(store, remote,
		WithProbe(probe),
		WithClock(clock.Now),
		WithIDGenerator(func() string {
			ids++
			return fmt.Sprintf("draft-%d", ids)
		}))
	t.Cleanup(s.Wait)
	return &harness{sync: s, remote: remote, probe: probe, store: store}
}

func input(name string) DraftInput {
	return DraftInput{
		FormsAppID: appID,
		Definition: forms.Form{ID: 1, Name: "Inspection"},
		Submission: map[string]any{
			"name":      name,
			"signature": "data:image/png;base64," + strings.Repeat("A", 200),
		},
		Title: "Draft of " + name,
	}
}

func (h *harness) storage(t *testing.T) LocalDraftsStorage {
	t.Helper()
	st, err := h.sync.load(context.Background())
	require.NoError(t, err)
	return st
}

func TestAddDraftUploads(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	id, err := h.sync.AddDraft(ctx, input("Alice"))
	require.NoError(t, err)
	assert.Equal(t, "draft-1", id)
	assert.True(t, h.remote.has(id))

	drafts, err := h.sync.GetDrafts(ctx)
	require.NoError(t, err)
	require.Len(t, drafts, 1)
	assert.True(t, drafts[0].Synced)
	assert.Equal(t, "Draft of Alice", drafts[0].Title)
	assert.Empty(t, h.storage(t).UnsyncedDraftSubmissions)

	// Data uploaded from this device is served from the local cache.
	_, data, err := h.sync.GetDraftAndData(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Alice", data.Submission["name"])
	h.sync.Wait()
	assert.Equal(t, 0, h.remote.Downloads)
}

func TestAddDraftKeepsDraftWhenUploadFails(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.remote.set(func(f *fakeRemote) { f.UploadErr = errors.New("connection reset") })

	in := input("Bob")
	id, err := h.sync.AddDraft(ctx, in)
	require.NoError(t, err)
	h.sync.Wait()

	drafts, err := h.sync.GetDrafts(ctx)
	require.NoError(t, err)
	require.Len(t, drafts, 1)
	assert.Equal(t, id, drafts[0].FormSubmissionDraftID)
	assert.False(t, drafts[0].Synced)

	_, data, err := h.sync.GetDraftAndData(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, in.Submission, data.Submission)
	assert.Equal(t, in.Definition, data.Definition)

	// The failed upload kicked a background sync, which retried it.
	assert.Equal(t, 2, h.remote.Uploads)
	assert.GreaterOrEqual(t, h.remote.Lists, 1)
}

func TestAddDraftWhileOffline(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.probe.SetOffline(true)

	id, err := h.sync.AddDraft(ctx, input("Carol"))
	require.NoError(t, err)
	h.sync.Wait()

	assert.Equal(t, 0, h.remote.Uploads)
	assert.Equal(t, 0, h.remote.Lists)
	st := h.storage(t)
	require.Len(t, st.UnsyncedDraftSubmissions, 1)
	assert.Equal(t, id, st.UnsyncedDraftSubmissions[0].FormSubmissionDraftID)
	assert.Nil(t, st.UnsyncedDraftSubmissions[0].Submission)

	// Back online, a sync uploads it.
	h.probe.SetOffline(false)
	report, err := h.sync.SyncDrafts(ctx, SyncOptions{FormsAppID: appID})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Uploaded)

	st = h.storage(t)
	assert.Empty(t, st.UnsyncedDraftSubmissions)
	require.Len(t, st.SyncedFormSubmissionDrafts, 1)
	assert.Equal(t, id, st.SyncedFormSubmissionDrafts[0].ID)
	assert.Equal(t, "Carol", h.remote.data[id].Submission["name"])
}

func TestUpdateDraftOfSyncedDraftFailingUploadStaysDisjoint(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	id, err := h.sync.AddDraft(ctx, input("Dan"))
	require.NoError(t, err)

	h.remote.set(func(f *fakeRemote) { f.UploadErr = apperror.Offline(nil) })
	require.NoError(t, h.sync.UpdateDraft(ctx, id, input("Dan v2")))
	h.sync.Wait()

	st := h.storage(t)
	require.Len(t, st.UnsyncedDraftSubmissions, 1)
	assert.Empty(t, st.SyncedFormSubmissionDrafts, "server copy must not shadow the local revision")

	drafts, err := h.sync.GetDrafts(ctx)
	require.NoError(t, err)
	require.Len(t, drafts, 1)

	_, data, err := h.sync.GetDraftAndData(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Dan v2", data.Submission["name"])

	h.remote.set(func(f *fakeRemote) { f.UploadErr = nil })
	_, err = h.sync.SyncDrafts(ctx, SyncOptions{FormsAppID: appID})
	require.NoError(t, err)
	assert.Equal(t, "Dan v2", h.remote.data[id].Submission["name"])
	assert.Empty(t, h.storage(t).UnsyncedDraftSubmissions)
}

func TestSyncDraftsIsSingleFlight(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	entered := make(chan struct{})
	release := make(chan struct{})
	h.remote.set(func(f *fakeRemote) {
		f.ListHook = func() {
			close(entered)
			<-release
		}
	})

	done := make(chan error)
	go func() {
		_, err := h.sync.SyncDrafts(ctx, SyncOptions{FormsAppID: appID})
		done <- err
	}()
	<-entered

	report, err := h.sync.SyncDrafts(ctx, SyncOptions{FormsAppID: appID, ThrowError: true})
	require.NoError(t, err)
	assert.True(t, report.Busy)
	assert.True(t, h.sync.Busy())

	h.remote.set(func(f *fakeRemote) { f.ListHook = nil })
	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, 1, h.remote.Lists)
}

func TestSyncDraftsOffline(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.probe.SetOffline(true)

	_, err := h.sync.SyncDrafts(ctx, SyncOptions{FormsAppID: appID})
	require.NoError(t, err)

	_, err = h.sync.SyncDrafts(ctx, SyncOptions{FormsAppID: appID, ThrowError: true})
	assert.ErrorIs(t, err, apperror.ErrOffline)
	assert.Equal(t, 0, h.remote.Lists)
}

func TestSyncDraftsConnectivityErrorFromServer(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.remote.set(func(f *fakeRemote) { f.ListErr = apperror.Offline(errors.New("dial tcp")) })

	_, err := h.sync.SyncDrafts(ctx, SyncOptions{FormsAppID: appID})
	require.NoError(t, err)

	_, err = h.sync.SyncDrafts(ctx, SyncOptions{FormsAppID: appID, ThrowError: true})
	require.Error(t, err)
	assert.True(t, apperror.IsOffline(err))
}

func TestSyncDraftsFetchesAndPreDownloads(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	other := h.remote.seed(DraftSubmission{
		FormSubmissionDraftID: "remote-1",
		FormsAppID:            appID,
		Definition:            forms.Form{ID: 1},
		Submission:            map[string]any{"name": "From laptop"},
	})
	h.remote.seed(DraftSubmission{FormSubmissionDraftID: "other-app", FormsAppID: 99})

	var notified [][]LocalFormSubmissionDraft
	h.sync.Subscribe(func(d []LocalFormSubmissionDraft) { notified = append(notified, d) })

	report, err := h.sync.SyncDrafts(ctx, SyncOptions{FormsAppID: appID})
	require.NoError(t, err)
	assert.Equal(t, SyncReport{Synced: 1, Downloaded: 1}, report)
	require.NotEmpty(t, notified)

	st := h.storage(t)
	require.Len(t, st.SyncedFormSubmissionDrafts, 1)
	assert.Equal(t, other.ID, st.SyncedFormSubmissionDrafts[0].ID)

	// Available offline now.
	h.probe.SetOffline(true)
	_, data, err := h.sync.GetDraftAndData(ctx, "remote-1")
	require.NoError(t, err)
	assert.Equal(t, "From laptop", data.Submission["name"])

	// A second pass does not download the same version again.
	h.probe.SetOffline(false)
	_, err = h.sync.SyncDrafts(ctx, SyncOptions{FormsAppID: appID})
	require.NoError(t, err)
	assert.Equal(t, 1, h.remote.Downloads)
}

func TestSyncDraftsDownloadFailureIsNotFatal(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.remote.seed(DraftSubmission{FormSubmissionDraftID: "remote-1", FormsAppID: appID})
	h.remote.set(func(f *fakeRemote) { f.DownloadErr = apperror.FromHTTPStatus(403, "", nil) })

	report, err := h.sync.SyncDrafts(ctx, SyncOptions{FormsAppID: appID})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Synced)
	assert.Equal(t, 0, report.Downloaded)
}

func TestSyncDraftsUnexpectedErrorDoesNotStopOtherBuckets(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	h.probe.SetOffline(true)
	_, err := h.sync.AddDraft(ctx, input("Eve"))
	require.NoError(t, err)
	h.sync.Wait()
	h.probe.SetOffline(false)

	h.remote.set(func(f *fakeRemote) { f.ListErr = errors.New("unexpected payload") })
	report, err := h.sync.SyncDrafts(ctx, SyncOptions{FormsAppID: appID})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Uploaded)
	assert.GreaterOrEqual(t, report.Failed, 1)

	// The upload still cleared the unsynced bucket and kept the draft
	// visible although the list could not be refreshed.
	st := h.storage(t)
	assert.Empty(t, st.UnsyncedDraftSubmissions)
	require.Len(t, st.SyncedFormSubmissionDrafts, 1)

	_, err = h.sync.SyncDrafts(ctx, SyncOptions{FormsAppID: appID, ThrowError: true})
	assert.Error(t, err)
}

func TestSyncDraftsKeepsDraftUpdatedDuringUpload(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	h.probe.SetOffline(true)
	id, err := h.sync.AddDraft(ctx, input("Frank"))
	require.NoError(t, err)
	h.sync.Wait()
	h.probe.SetOffline(false)

	// While the sync uploads revision 1 the user saves revision 2 offline.
	h.remote.set(func(f *fakeRemote) {
		f.UploadHook = func(d DraftSubmission) {
			if d.Submission["name"] == "Frank" {
				h.probe.SetOffline(true)
				require.NoError(t, h.sync.UpdateDraft(ctx, id, input("Frank v2")))
				h.probe.SetOffline(false)
			}
		}
	})

	report, err := h.sync.SyncDrafts(ctx, SyncOptions{FormsAppID: appID})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Uploaded)

	st := h.storage(t)
	require.Len(t, st.UnsyncedDraftSubmissions, 1, "the newer revision must survive the sync")
	assert.Empty(t, st.SyncedFormSubmissionDrafts)

	_, data, err := h.sync.GetDraftAndData(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Frank v2", data.Submission["name"])
}

func TestDeleteLocalOnlyDraft(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.probe.SetOffline(true)

	id, err := h.sync.AddDraft(ctx, input("Gina"))
	require.NoError(t, err)
	h.sync.Wait()

	require.NoError(t, h.sync.DeleteDraft(ctx, id, appID))
	st := h.storage(t)
	assert.Empty(t, st.UnsyncedDraftSubmissions)
	assert.Empty(t, st.SyncedFormSubmissionDrafts)
	assert.Empty(t, st.DeletedFormSubmissionDrafts)
	assert.Equal(t, 0, h.remote.Deletes)

	drafts, data, err := h.sync.GetDraftAndData(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, drafts)
	assert.Nil(t, data)
}

func TestDeleteSyncedDraft(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	id, err := h.sync.AddDraft(ctx, input("Hank"))
	require.NoError(t, err)

	require.NoError(t, h.sync.DeleteDraft(ctx, id, appID))
	assert.False(t, h.remote.has(id))
	assert.Empty(t, h.storage(t).DeletedFormSubmissionDrafts)
}

func TestDeleteSyncedDraftFailureCreatesTombstone(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	id, err := h.sync.AddDraft(ctx, input("Ivy"))
	require.NoError(t, err)

	h.probe.SetOffline(true)
	require.NoError(t, h.sync.DeleteDraft(ctx, id, appID))

	st := h.storage(t)
	assert.Empty(t, st.SyncedFormSubmissionDrafts)
	require.Len(t, st.DeletedFormSubmissionDrafts, 1)
	drafts, err := h.sync.GetDrafts(ctx)
	require.NoError(t, err)
	assert.Empty(t, drafts)

	// The server still lists it; the tombstone keeps it hidden.
	h.probe.SetOffline(false)
	h.remote.set(func(f *fakeRemote) { f.DeleteErr = errors.New("gateway timeout") })
	_, err = h.sync.SyncDrafts(ctx, SyncOptions{FormsAppID: appID})
	require.NoError(t, err)
	st = h.storage(t)
	assert.Empty(t, st.SyncedFormSubmissionDrafts)
	assert.Len(t, st.DeletedFormSubmissionDrafts, 1)

	h.remote.set(func(f *fakeRemote) { f.DeleteErr = nil })
	report, err := h.sync.SyncDrafts(ctx, SyncOptions{FormsAppID: appID})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Deleted)
	assert.Empty(t, h.storage(t).DeletedFormSubmissionDrafts)
	assert.False(t, h.remote.has(id))
}

func TestDeleteDraftUpdatedOfflineAfterUploadDeletesServerCopy(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	id, err := h.sync.AddDraft(ctx, input("Kim"))
	require.NoError(t, err)
	require.True(t, h.remote.has(id))

	h.probe.SetOffline(true)
	require.NoError(t, h.sync.UpdateDraft(ctx, id, input("Kim v2")))
	st := h.storage(t)
	require.Len(t, st.UnsyncedDraftSubmissions, 1)
	assert.True(t, st.UnsyncedDraftSubmissions[0].PreviouslySynced)

	require.NoError(t, h.sync.DeleteDraft(ctx, id, appID))
	st = h.storage(t)
	assert.Empty(t, st.UnsyncedDraftSubmissions)
	require.Len(t, st.DeletedFormSubmissionDrafts, 1)
	assert.Equal(t, id, st.DeletedFormSubmissionDrafts[0].ID)

	h.probe.SetOffline(false)
	report, err := h.sync.SyncDrafts(ctx, SyncOptions{FormsAppID: appID})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Deleted)
	assert.False(t, h.remote.has(id))

	drafts, err := h.sync.GetDrafts(ctx)
	require.NoError(t, err)
	assert.Empty(t, drafts)
	assert.Empty(t, h.storage(t).DeletedFormSubmissionDrafts)
}

func TestSyncDraftsUploadFailureDoesNotBlockOtherDrafts(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	h.remote.seed(DraftSubmission{FormSubmissionDraftID: "remote-1", FormsAppID: appID, Definition: forms.Form{ID: 1}})
	_, err := h.sync.SyncDrafts(ctx, SyncOptions{FormsAppID: appID})
	require.NoError(t, err)

	h.probe.SetOffline(true)
	first, err := h.sync.AddDraft(ctx, input("Lee"))
	require.NoError(t, err)
	second, err := h.sync.AddDraft(ctx, input("Max"))
	require.NoError(t, err)
	require.NoError(t, h.sync.DeleteDraft(ctx, "remote-1", appID))
	h.probe.SetOffline(false)

	// Retries exhausted on a large first draft.
	h.remote.set(func(f *fakeRemote) {
		f.FailUpload = map[string]error{first: apperror.Connectivity("upload timed out", errors.New("retries exhausted"))}
	})
	report, err := h.sync.SyncDrafts(ctx, SyncOptions{FormsAppID: appID})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Uploaded)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 1, report.Deleted)

	assert.False(t, h.remote.has(first))
	assert.True(t, h.remote.has(second))
	assert.False(t, h.remote.has("remote-1"))

	st := h.storage(t)
	require.Len(t, st.UnsyncedDraftSubmissions, 1)
	assert.Equal(t, first, st.UnsyncedDraftSubmissions[0].FormSubmissionDraftID)
	assert.Empty(t, st.DeletedFormSubmissionDrafts)

	_, err = h.sync.SyncDrafts(ctx, SyncOptions{FormsAppID: appID, ThrowError: true})
	assert.True(t, apperror.IsOffline(err))
}

func TestTombstoneForDraftAlreadyGoneIsAcknowledged(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	id, err := h.sync.AddDraft(ctx, input("Jack"))
	require.NoError(t, err)
	h.probe.SetOffline(true)
	require.NoError(t, h.sync.DeleteDraft(ctx, id, appID))
	h.probe.SetOffline(false)

	// Deleted from another device meanwhile.
	h.remote.set(func(f *fakeRemote) { delete(f.drafts, id) })

	report, err := h.sync.SyncDrafts(ctx, SyncOptions{FormsAppID: appID})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Deleted)
	assert.Empty(t, h.storage(t).DeletedFormSubmissionDrafts)
}

func TestDraftRemovedOnServerDropsCachedData(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	id, err := h.sync.AddDraft(ctx, input("Kim"))
	require.NoError(t, err)
	h.remote.set(func(f *fakeRemote) { delete(f.drafts, id) })

	_, err = h.sync.SyncDrafts(ctx, SyncOptions{FormsAppID: appID})
	require.NoError(t, err)

	_, found, err := kvstore.GetAs[cachedData](ctx, h.store, draftDataKey(id))
	require.NoError(t, err)
	assert.False(t, found)
}

func TestGetDraftAndDataOfflineWithoutCache(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.remote.seed(DraftSubmission{FormSubmissionDraftID: "remote-1", FormsAppID: appID, Submission: map[string]any{"a": 1}})
	h.remote.set(func(f *fakeRemote) { f.DownloadErr = apperror.Offline(nil) })

	_, err := h.sync.SyncDrafts(ctx, SyncOptions{FormsAppID: appID})
	require.NoError(t, err)

	h.probe.SetOffline(true)
	_, _, err = h.sync.GetDraftAndData(ctx, "remote-1")
	assert.ErrorIs(t, err, apperror.ErrOffline)
}
