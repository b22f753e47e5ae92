// Package drafts keeps locally authored drafts consistent with the remote
// draft store. Local writes always succeed; uploads and deletions that fail
// are retried by SyncDrafts. When the same draft exists locally and on the
// server the server copy is shown until the local revision is uploaded.
package drafts

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/marmos91/formsync/internal/guard"
	"github.com/marmos91/formsync/internal/logger"
	"github.com/marmos91/formsync/pkg/apperror"
	"github.com/marmos91/formsync/pkg/environment"
	"github.com/marmos91/formsync/pkg/events"
	"github.com/marmos91/formsync/pkg/kvstore"
	"github.com/marmos91/formsync/pkg/metrics"
)

// Namespace is the KV namespace owned by the synchronizer.
const Namespace = "drafts"

const (
	storageKey       = "form-submission-drafts"
	draftDataPrefix  = "draft-data-"
	backgroundWindow = 2 * time.Minute
)

func draftDataKey(id string) string {
	return draftDataPrefix + id
}

// Synchronizer owns the local draft buckets.
type Synchronizer struct {
	store   *kvstore.Store
	remote  Remote
	probe   environment.Probe
	metrics metrics.SyncMetrics
	now     func() time.Time
	newID   func() string

	// mu serializes read-modify-write of the local storage record.
	mu      sync.Mutex
	syncing guard.Flag
	wg      sync.WaitGroup
	emitter *events.Emitter[[]LocalFormSubmissionDraft]
}

// Option configures a Synchronizer.
type Option func(*Synchronizer)

// WithProbe sets the connectivity probe.
func WithProbe(p environment.Probe) Option {
	return func(s *Synchronizer) { s.probe = p }
}

// WithMetrics sets sync metrics. nil disables them.
func WithMetrics(m metrics.SyncMetrics) Option {
	return func(s *Synchronizer) { s.metrics = m }
}

// WithClock overrides the clock used for draft revisions.
func WithClock(now func() time.Time) Option {
	return func(s *Synchronizer) { s.now = now }
}

// WithIDGenerator overrides draft id generation.
func WithIDGenerator(fn func() string) Option {
	return func(s *Synchronizer) { s.newID = fn }
}

// New creates a synchronizer over a store dedicated to the drafts
// namespace.
func New(store *kvstore.Store, remote Remote, opts ...Option) *Synchronizer {
	s := &Synchronizer{
		store:   store,
		remote:  remote,
		now:     time.Now,
		newID:   uuid.NewString,
		emitter: events.NewEmitter[[]LocalFormSubmissionDraft]("drafts"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Subscribe registers fn to receive the merged draft list after every
// change to local storage.
func (s *Synchronizer) Subscribe(fn func([]LocalFormSubmissionDraft)) (unsubscribe func()) {
	return s.emitter.Subscribe(fn)
}

// Wait blocks until background syncs started by AddDraft and UpdateDraft
// have finished.
func (s *Synchronizer) Wait() {
	s.wg.Wait()
}

// Busy reports whether a sync is running.
func (s *Synchronizer) Busy() bool {
	return s.syncing.Busy()
}

func (s *Synchronizer) offline(ctx context.Context) bool {
	return s.probe != nil && s.probe.IsOffline(ctx)
}

func (s *Synchronizer) load(ctx context.Context) (LocalDraftsStorage, error) {
	st, _, err := kvstore.GetAs[LocalDraftsStorage](ctx, s.store, storageKey)
	if err != nil {
		return LocalDraftsStorage{}, fmt.Errorf("drafts: load: %w", err)
	}
	return st, nil
}

// mutate applies fn to freshly read storage and persists the result.
// Listeners are notified after the write.
func (s *Synchronizer) mutate(ctx context.Context, fn func(*LocalDraftsStorage)) (LocalDraftsStorage, error) {
	s.mu.Lock()
	st, err := s.load(ctx)
	if err != nil {
		s.mu.Unlock()
		return st, err
	}
	fn(&st)
	if err := s.store.Set(ctx, storageKey, st); err != nil {
		s.mu.Unlock()
		return st, fmt.Errorf("drafts: save: %w", err)
	}
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.SetDraftCounts(len(st.UnsyncedDraftSubmissions),
			len(st.SyncedFormSubmissionDrafts), len(st.DeletedFormSubmissionDrafts))
	}
	s.emitter.Emit(merge(st))
	return st, nil
}

// GetDrafts returns unsynced drafts followed by synced drafts. Drafts
// awaiting remote deletion are hidden.
func (s *Synchronizer) GetDrafts(ctx context.Context) ([]LocalFormSubmissionDraft, error) {
	st, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	return merge(st), nil
}

func merge(st LocalDraftsStorage) []LocalFormSubmissionDraft {
	out := make([]LocalFormSubmissionDraft, 0,
		len(st.UnsyncedDraftSubmissions)+len(st.SyncedFormSubmissionDrafts))
	for _, d := range st.UnsyncedDraftSubmissions {
		out = append(out, LocalFormSubmissionDraft{
			FormSubmissionDraftID: d.FormSubmissionDraftID,
			FormsAppID:            d.FormsAppID,
			FormID:                d.Definition.ID,
			Title:                 d.Title,
			JobID:                 d.JobID,
			CreatedAt:             d.CreatedAt,
		})
	}
	for i := range st.SyncedFormSubmissionDrafts {
		d := st.SyncedFormSubmissionDrafts[i]
		out = append(out, LocalFormSubmissionDraft{
			FormSubmissionDraftID: d.ID,
			FormsAppID:            d.FormsAppID,
			FormID:                d.FormID,
			Title:                 d.Title,
			JobID:                 d.JobID,
			CreatedAt:             d.CreatedAt,
			Synced:                true,
			Draft:                 &d,
		})
	}
	return out
}

// AddDraft saves a new draft and returns its id. The draft is stored
// locally even when the upload fails.
func (s *Synchronizer) AddDraft(ctx context.Context, in DraftInput) (string, error) {
	id := s.newID()
	if err := s.save(ctx, s.build(id, in)); err != nil {
		return "", err
	}
	return id, nil
}

// UpdateDraft replaces the draft with a new revision.
func (s *Synchronizer) UpdateDraft(ctx context.Context, formSubmissionDraftID string, in DraftInput) error {
	return s.save(ctx, s.build(formSubmissionDraftID, in))
}

func (s *Synchronizer) build(id string, in DraftInput) DraftSubmission {
	return DraftSubmission{
		FormSubmissionDraftID:            id,
		FormsAppID:                       in.FormsAppID,
		Definition:                       in.Definition,
		Submission:                       in.Submission,
		Title:                            in.Title,
		CreatedAt:                        s.now().UTC(),
		ExternalID:                       in.ExternalID,
		JobID:                            in.JobID,
		PreviousFormSubmissionApprovalID: in.PreviousFormSubmissionApprovalID,
		TaskID:                           in.TaskID,
	}
}

func (s *Synchronizer) save(ctx context.Context, draft DraftSubmission) error {
	ctx = logger.WithContext(ctx, logger.NewLogContext("drafts.save").WithForm(draft.FormsAppID, draft.Definition.ID))

	s.mu.Lock()
	err := s.store.Set(ctx, draftDataKey(draft.FormSubmissionDraftID), cachedData{Draft: draft})
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("drafts: save data: %w", err)
	}

	var version *FormSubmissionDraftVersion
	if s.offline(ctx) {
		err = apperror.Offline(nil)
	} else {
		version, err = s.remote.UploadDraft(ctx, draft)
	}

	if err == nil {
		logger.InfoCtx(ctx, "Draft uploaded", logger.DraftID(draft.FormSubmissionDraftID))
		s.markUploaded(ctx, draft, version)
		s.afterUpload(ctx, draft.FormsAppID, map[string]time.Time{draft.FormSubmissionDraftID: draft.CreatedAt}, []DraftSubmission{draft})
		return nil
	}

	logger.InfoCtx(ctx, "Draft saved locally until it can be uploaded",
		logger.DraftID(draft.FormSubmissionDraftID),
		logger.KeyErrorKind, string(apperror.KindOf(err)),
		logger.Err(err))

	_, serr := s.mutate(ctx, func(st *LocalDraftsStorage) {
		id := draft.FormSubmissionDraftID
		draft.PreviouslySynced = containsServer(st.SyncedFormSubmissionDrafts, id) ||
			containsServer(st.DeletedFormSubmissionDrafts, id)
		for _, d := range st.UnsyncedDraftSubmissions {
			if d.FormSubmissionDraftID == id && d.PreviouslySynced {
				draft.PreviouslySynced = true
			}
		}
		st.SyncedFormSubmissionDrafts = withoutServerDraft(st.SyncedFormSubmissionDrafts, draft.FormSubmissionDraftID)
		st.DeletedFormSubmissionDrafts = withoutServerDraft(st.DeletedFormSubmissionDrafts, draft.FormSubmissionDraftID)
		st.UnsyncedDraftSubmissions = append(
			withoutLocalDraft(st.UnsyncedDraftSubmissions, draft.FormSubmissionDraftID),
			draft.withoutData())
	})
	if serr != nil {
		return serr
	}

	// Offline, the next sync is triggered by reconnection instead.
	if !s.offline(ctx) {
		s.syncInBackground(ctx, draft.FormsAppID)
	}
	return nil
}

// markUploaded records the server version the cached data corresponds to,
// unless a newer local revision has replaced it.
func (s *Synchronizer) markUploaded(ctx context.Context, draft DraftSubmission, version *FormSubmissionDraftVersion) {
	if version == nil || version.ID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := draftDataKey(draft.FormSubmissionDraftID)
	cached, ok, err := kvstore.GetAs[cachedData](ctx, s.store, key)
	if err != nil || !ok || !cached.Draft.CreatedAt.Equal(draft.CreatedAt) {
		return
	}
	cached.VersionID = version.ID
	if err := s.store.Set(ctx, key, cached); err != nil {
		logger.DebugCtx(ctx, "Failed to record draft version", logger.DraftID(draft.FormSubmissionDraftID), logger.Err(err))
	}
}

// syncInBackground starts a best-effort sync whose errors are dropped.
func (s *Synchronizer) syncInBackground(ctx context.Context, formsAppID int64) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), backgroundWindow)
		defer cancel()
		_, _ = s.SyncDrafts(bg, SyncOptions{FormsAppID: formsAppID})
	}()
}

// afterUpload drops uploaded revisions from the unsynced bucket and
// refreshes the synced bucket. uploaded maps draft id to the revision that
// was sent; a newer local revision written meanwhile is kept.
func (s *Synchronizer) afterUpload(ctx context.Context, formsAppID int64, uploaded map[string]time.Time, sent []DraftSubmission) {
	server, listErr := s.remote.ListDrafts(ctx, formsAppID)
	if listErr != nil {
		logger.DebugCtx(ctx, "Failed to refresh drafts after upload", logger.Err(listErr))
	}

	_, err := s.mutate(ctx, func(st *LocalDraftsStorage) {
		kept := st.UnsyncedDraftSubmissions[:0]
		for _, d := range st.UnsyncedDraftSubmissions {
			if rev, ok := uploaded[d.FormSubmissionDraftID]; ok {
				if !d.CreatedAt.After(rev) {
					continue
				}
				// A newer revision is still local but the server has this id.
				d.PreviouslySynced = true
			}
			kept = append(kept, d)
		}
		st.UnsyncedDraftSubmissions = kept

		if listErr == nil {
			st.SyncedFormSubmissionDrafts = authoritative(server, st)
			return
		}
		// Keep the uploaded drafts visible until the next successful fetch.
		for _, d := range sent {
			if containsLocal(st.UnsyncedDraftSubmissions, d.FormSubmissionDraftID) {
				continue
			}
			st.SyncedFormSubmissionDrafts = append(
				withoutServerDraft(st.SyncedFormSubmissionDrafts, d.FormSubmissionDraftID),
				FormSubmissionDraft{
					ID:         d.FormSubmissionDraftID,
					FormsAppID: d.FormsAppID,
					FormID:     d.Definition.ID,
					Title:      d.Title,
					JobID:      d.JobID,
					CreatedAt:  d.CreatedAt,
					UpdatedAt:  d.CreatedAt,
				})
		}
	})
	if err != nil {
		logger.WarnCtx(ctx, "Failed to persist drafts after upload", logger.Err(err))
	}
}

// authoritative filters the server list so ids held in the unsynced or
// deleted buckets stay out of the synced bucket.
func authoritative(server []FormSubmissionDraft, st *LocalDraftsStorage) []FormSubmissionDraft {
	out := make([]FormSubmissionDraft, 0, len(server))
	for _, d := range server {
		if containsLocal(st.UnsyncedDraftSubmissions, d.ID) || containsServer(st.DeletedFormSubmissionDrafts, d.ID) {
			continue
		}
		out = append(out, d)
	}
	return out
}

// DeleteDraft removes a draft locally and, when the server has a copy, on
// the server. A failed remote delete is kept as a tombstone for SyncDrafts.
func (s *Synchronizer) DeleteDraft(ctx context.Context, formSubmissionDraftID string, formsAppID int64) error {
	ctx = logger.WithContext(ctx, logger.NewLogContext("drafts.delete").WithForm(formsAppID, 0))

	var synced *FormSubmissionDraft
	_, err := s.mutate(ctx, func(st *LocalDraftsStorage) {
		for _, d := range st.UnsyncedDraftSubmissions {
			if d.FormSubmissionDraftID == formSubmissionDraftID && d.PreviouslySynced {
				synced = &FormSubmissionDraft{
					ID:         d.FormSubmissionDraftID,
					FormsAppID: d.FormsAppID,
					FormID:     d.Definition.ID,
					Title:      d.Title,
					JobID:      d.JobID,
					CreatedAt:  d.CreatedAt,
					UpdatedAt:  d.CreatedAt,
				}
			}
		}
		st.UnsyncedDraftSubmissions = withoutLocalDraft(st.UnsyncedDraftSubmissions, formSubmissionDraftID)
		for i := range st.SyncedFormSubmissionDrafts {
			if st.SyncedFormSubmissionDrafts[i].ID == formSubmissionDraftID {
				d := st.SyncedFormSubmissionDrafts[i]
				synced = &d
			}
		}
		st.SyncedFormSubmissionDrafts = withoutServerDraft(st.SyncedFormSubmissionDrafts, formSubmissionDraftID)
	})
	if err != nil {
		return err
	}
	s.mu.Lock()
	err = s.store.Remove(ctx, draftDataKey(formSubmissionDraftID))
	s.mu.Unlock()
	if err != nil {
		logger.WarnCtx(ctx, "Failed to remove draft data", logger.DraftID(formSubmissionDraftID), logger.Err(err))
	}

	if synced == nil {
		logger.DebugCtx(ctx, "Deleted local-only draft", logger.DraftID(formSubmissionDraftID))
		return nil
	}

	err = s.deleteRemote(ctx, formSubmissionDraftID)
	if err == nil {
		logger.InfoCtx(ctx, "Draft deleted", logger.DraftID(formSubmissionDraftID))
		return nil
	}

	logger.InfoCtx(ctx, "Draft delete deferred",
		logger.DraftID(formSubmissionDraftID),
		logger.KeyErrorKind, string(apperror.KindOf(err)),
		logger.Err(err))
	_, err = s.mutate(ctx, func(st *LocalDraftsStorage) {
		st.DeletedFormSubmissionDrafts = append(
			withoutServerDraft(st.DeletedFormSubmissionDrafts, formSubmissionDraftID), *synced)
	})
	return err
}

// deleteRemote deletes a draft on the server. A draft the server no longer
// knows counts as deleted.
func (s *Synchronizer) deleteRemote(ctx context.Context, id string) error {
	if s.offline(ctx) {
		return apperror.Offline(nil)
	}
	err := s.remote.DeleteDraft(ctx, id)
	var appErr *apperror.Error
	if errors.As(err, &appErr) && appErr.Status == 404 {
		return nil
	}
	return err
}

// GetDraftAndData returns a draft and its data. Data for synced drafts is
// downloaded and cached when it is not available locally. Both results are
// nil when the draft does not exist.
func (s *Synchronizer) GetDraftAndData(ctx context.Context, formSubmissionDraftID string) (*LocalFormSubmissionDraft, *DraftSubmission, error) {
	drafts, err := s.GetDrafts(ctx)
	if err != nil {
		return nil, nil, err
	}
	var found *LocalFormSubmissionDraft
	for i := range drafts {
		if drafts[i].FormSubmissionDraftID == formSubmissionDraftID {
			found = &drafts[i]
			break
		}
	}
	if found == nil {
		return nil, nil, nil
	}

	cached, ok, err := kvstore.GetAs[cachedData](ctx, s.store, draftDataKey(formSubmissionDraftID))
	if err != nil {
		return nil, nil, fmt.Errorf("drafts: load data: %w", err)
	}

	if !found.Synced {
		if !ok || cached.Draft.Submission == nil {
			return nil, nil, apperror.Unknown(fmt.Errorf("drafts: data for %s is missing", formSubmissionDraftID))
		}
		return found, &cached.Draft, nil
	}

	if ok && cachedMatches(cached, *found.Draft) {
		return found, &cached.Draft, nil
	}
	if s.offline(ctx) {
		return nil, nil, apperror.Offline(nil)
	}
	data, err := s.download(ctx, *found.Draft)
	if err != nil {
		return nil, nil, err
	}
	return found, data, nil
}

// cachedMatches reports whether cached data is current for the server
// draft. Data authored on this device and uploaded since has no version
// and is current unless the server holds a newer revision.
func cachedMatches(cached cachedData, draft FormSubmissionDraft) bool {
	if cached.Draft.Submission == nil {
		return false
	}
	latest := draft.LatestVersion()
	if latest == nil {
		return true
	}
	if cached.VersionID != "" {
		return cached.VersionID == latest.ID
	}
	return !latest.CreatedAt.After(cached.Draft.CreatedAt)
}

func (s *Synchronizer) download(ctx context.Context, draft FormSubmissionDraft) (*DraftSubmission, error) {
	data, err := s.remote.DownloadDraftData(ctx, draft)
	if err != nil {
		return nil, err
	}
	version := ""
	if v := draft.LatestVersion(); v != nil {
		version = v.ID
	}
	s.mu.Lock()
	err = s.store.Set(ctx, draftDataKey(draft.ID), cachedData{VersionID: version, Draft: *data})
	s.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("drafts: cache data: %w", err)
	}
	return data, nil
}

func withoutLocalDraft(list []DraftSubmission, id string) []DraftSubmission {
	out := make([]DraftSubmission, 0, len(list))
	for _, d := range list {
		if d.FormSubmissionDraftID != id {
			out = append(out, d)
		}
	}
	return out
}

func withoutServerDraft(list []FormSubmissionDraft, id string) []FormSubmissionDraft {
	out := make([]FormSubmissionDraft, 0, len(list))
	for _, d := range list {
		if d.ID != id {
			out = append(out, d)
		}
	}
	return out
}

func containsLocal(list []DraftSubmission, id string) bool {
	for _, d := range list {
		if d.FormSubmissionDraftID == id {
			return true
		}
	}
	return false
}

func containsServer(list []FormSubmissionDraft, id string) bool {
	for _, d := range list {
		if d.ID == id {
			return true
		}
	}
	return false
}
