package drafts

import (
	"context"
	"errors"
	"time"

	"github.com/marmos91/formsync/internal/logger"
	"github.com/marmos91/formsync/internal/telemetry"
	"github.com/marmos91/formsync/pkg/apperror"
	"github.com/marmos91/formsync/pkg/kvstore"
)

// errStop ends a pass early after a connectivity failure.
var errStop = errors.New("drafts: sync stopped")

// syncPass carries error handling state for one SyncDrafts call.
type syncPass struct {
	opts   SyncOptions
	report SyncReport
	first  error
}

// handle classifies a step failure. Connectivity failures stop the pass.
// Anything else is reported and the pass moves on.
func (p *syncPass) handle(ctx context.Context, step string, err error) error {
	appErr := apperror.Normalize(err)
	if appErr.Kind == apperror.KindConnectivity || appErr.Kind == apperror.KindAborted {
		if p.first == nil {
			p.first = appErr
		}
		logger.DebugCtx(ctx, "Draft sync interrupted", logger.KeyOperation, step, logger.Err(err))
		return errStop
	}
	p.fail(ctx, step, appErr)
	return nil
}

// fail records a failure that does not end the pass.
func (p *syncPass) fail(ctx context.Context, step string, err error) {
	appErr := apperror.Normalize(err)
	if p.first == nil {
		p.first = appErr
	}
	p.report.Failed++
	if appErr.Kind == apperror.KindUnknown {
		telemetry.RecordError(ctx, err, telemetry.ErrorKind(string(appErr.Kind)))
	}
	logger.WarnCtx(ctx, "Draft sync step failed",
		logger.KeyOperation, step,
		logger.KeyErrorKind, string(appErr.Kind),
		logger.Err(err))
}

// itemFailed records the failure of one draft. The pass only stops when
// the context ended or the device went offline; otherwise the draft stays
// in its bucket for the next pass and the remaining drafts are tried.
func (s *Synchronizer) itemFailed(ctx context.Context, p *syncPass, step string, err error) error {
	if cerr := ctx.Err(); cerr != nil {
		return p.handle(ctx, step, apperror.Aborted(cerr))
	}
	if s.offline(ctx) {
		return p.handle(ctx, step, apperror.Offline(err))
	}
	p.fail(ctx, step, err)
	return nil
}

// result returns what SyncDrafts reports to the caller. Connectivity
// failures are only surfaced when ThrowError is set.
func (p *syncPass) result() error {
	if p.first == nil {
		return nil
	}
	if p.opts.ThrowError {
		return p.first
	}
	return nil
}

// SyncDrafts reconciles local drafts with the server:
//
//  1. the synced bucket is replaced by the server's list,
//  2. data of synced drafts is pre-downloaded for offline use,
//  3. unsynced drafts are uploaded,
//  4. tombstoned drafts are deleted on the server.
//
// Local storage is re-read between steps so concurrent edits are kept. A
// call made while another sync is running returns immediately with Busy
// set and does no network calls.
func (s *Synchronizer) SyncDrafts(ctx context.Context, opts SyncOptions) (SyncReport, error) {
	if !s.syncing.TryAcquire() {
		if s.metrics != nil {
			s.metrics.RecordSyncBusy()
		}
		logger.DebugCtx(ctx, "Draft sync already running")
		return SyncReport{Busy: true}, nil
	}
	defer s.syncing.Release()

	ctx = logger.WithContext(ctx, logger.NewLogContext("drafts.sync").WithForm(opts.FormsAppID, 0))
	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanSyncDrafts, telemetry.FormsAppID(opts.FormsAppID))
	defer span.End()

	start := time.Now()
	p := &syncPass{opts: opts}
	s.runSync(ctx, p)

	err := p.result()
	if s.metrics != nil {
		s.metrics.ObserveSync(time.Since(start), err)
	}
	logger.InfoCtx(ctx, "Draft sync finished",
		"synced", p.report.Synced,
		"downloaded", p.report.Downloaded,
		"uploaded", p.report.Uploaded,
		"deleted", p.report.Deleted,
		"failed", p.report.Failed,
		logger.KeyDuration, logger.Duration(start))
	return p.report, err
}

func (s *Synchronizer) runSync(ctx context.Context, p *syncPass) {
	if s.offline(ctx) {
		_ = p.handle(ctx, "probe", apperror.Offline(nil))
		return
	}
	for _, step := range []struct {
		name string
		run  func(context.Context, *syncPass) error
	}{
		{"fetch", s.fetchSynced},
		{"download", s.downloadSynced},
		{"upload", s.uploadUnsynced},
		{"delete", s.deleteTombstoned},
	} {
		if err := ctx.Err(); err != nil {
			_ = p.handle(ctx, step.name, apperror.Aborted(err))
			return
		}
		if err := step.run(ctx, p); errors.Is(err, errStop) {
			return
		}
	}
}

// fetchSynced replaces the synced bucket with the server's list.
func (s *Synchronizer) fetchSynced(ctx context.Context, p *syncPass) error {
	server, err := s.remote.ListDrafts(ctx, p.opts.FormsAppID)
	if err != nil {
		return p.handle(ctx, "fetch", err)
	}

	var stale []string
	st, err := s.mutate(ctx, func(st *LocalDraftsStorage) {
		next := authoritative(server, st)
		for _, old := range st.SyncedFormSubmissionDrafts {
			if !containsServer(next, old.ID) && !containsLocal(st.UnsyncedDraftSubmissions, old.ID) {
				stale = append(stale, old.ID)
			}
		}
		st.SyncedFormSubmissionDrafts = next
	})
	if err != nil {
		return p.handle(ctx, "fetch", err)
	}
	p.report.Synced = len(st.SyncedFormSubmissionDrafts)

	// Drafts deleted on another device no longer need their data.
	for _, id := range stale {
		s.mu.Lock()
		err := s.store.Remove(ctx, draftDataKey(id))
		s.mu.Unlock()
		if err != nil {
			logger.DebugCtx(ctx, "Failed to remove stale draft data", logger.DraftID(id), logger.Err(err))
		}
	}
	return nil
}

// downloadSynced caches data for synced drafts. Failures are logged and
// skipped.
func (s *Synchronizer) downloadSynced(ctx context.Context, p *syncPass) error {
	st, err := s.load(ctx)
	if err != nil {
		return p.handle(ctx, "download", err)
	}

	for _, draft := range st.SyncedFormSubmissionDrafts {
		if err := ctx.Err(); err != nil {
			return p.handle(ctx, "download", apperror.Aborted(err))
		}
		cached, ok, err := kvstore.GetAs[cachedData](ctx, s.store, draftDataKey(draft.ID))
		if err == nil && ok && cachedMatches(cached, draft) {
			continue
		}
		if draft.LatestVersion() == nil {
			continue
		}
		if _, err := s.download(ctx, draft); err != nil {
			logger.WarnCtx(ctx, "Failed to download draft data",
				logger.DraftID(draft.ID), logger.Err(err))
			if apperror.IsOffline(err) {
				return errStop
			}
			continue
		}
		p.report.Downloaded++
	}
	return nil
}

// uploadUnsynced uploads every unsynced draft. Storage is re-read once
// after the loop so drafts added or updated meanwhile are kept.
func (s *Synchronizer) uploadUnsynced(ctx context.Context, p *syncPass) error {
	st, err := s.load(ctx)
	if err != nil {
		return p.handle(ctx, "upload", err)
	}
	if len(st.UnsyncedDraftSubmissions) == 0 {
		return nil
	}

	uploaded := make(map[string]time.Time)
	var sent []DraftSubmission
	var stop error
	for _, meta := range st.UnsyncedDraftSubmissions {
		if err := ctx.Err(); err != nil {
			stop = p.handle(ctx, "upload", apperror.Aborted(err))
			break
		}
		cached, ok, err := kvstore.GetAs[cachedData](ctx, s.store, draftDataKey(meta.FormSubmissionDraftID))
		if err != nil || !ok || cached.Draft.Submission == nil {
			// Incomplete local data is never uploaded.
			if err == nil {
				err = errors.New("draft data is missing")
			}
			telemetry.RecordError(ctx, err, telemetry.DraftID(meta.FormSubmissionDraftID))
			logger.ErrorCtx(ctx, "Unsynced draft has no readable data",
				logger.DraftID(meta.FormSubmissionDraftID), logger.Err(err))
			p.report.Failed++
			continue
		}
		// The data key always holds the newest revision.
		draft := cached.Draft

		version, err := s.remote.UploadDraft(ctx, draft)
		if err != nil {
			if stop = s.itemFailed(ctx, p, "upload", err); stop != nil {
				break
			}
			continue
		}
		s.markUploaded(ctx, draft, version)
		uploaded[draft.FormSubmissionDraftID] = draft.CreatedAt
		sent = append(sent, draft)
		p.report.Uploaded++
		logger.InfoCtx(ctx, "Unsynced draft uploaded", logger.DraftID(draft.FormSubmissionDraftID))
	}

	if len(uploaded) > 0 {
		s.afterUpload(ctx, p.opts.FormsAppID, uploaded, sent)
	}
	return stop
}

// deleteTombstoned retries remote deletes. Acknowledged deletes leave the
// tombstone bucket.
func (s *Synchronizer) deleteTombstoned(ctx context.Context, p *syncPass) error {
	st, err := s.load(ctx)
	if err != nil {
		return p.handle(ctx, "delete", err)
	}
	if len(st.DeletedFormSubmissionDrafts) == 0 {
		return nil
	}

	acknowledged := make(map[string]struct{})
	var stop error
	for _, draft := range st.DeletedFormSubmissionDrafts {
		if err := s.deleteRemote(ctx, draft.ID); err != nil {
			if stop = s.itemFailed(ctx, p, "delete", err); stop != nil {
				break
			}
			continue
		}
		acknowledged[draft.ID] = struct{}{}
		p.report.Deleted++
	}

	if len(acknowledged) > 0 {
		_, err := s.mutate(ctx, func(st *LocalDraftsStorage) {
			kept := st.DeletedFormSubmissionDrafts[:0]
			for _, d := range st.DeletedFormSubmissionDrafts {
				if _, ok := acknowledged[d.ID]; !ok {
					kept = append(kept, d)
				}
			}
			st.DeletedFormSubmissionDrafts = kept
		})
		if err != nil {
			_ = p.handle(ctx, "delete", err)
		}
	}
	return stop
}
