// Package submission sequences a form submission: offline detection,
// payment and booking side effects, credential exchange, upload and
// cleanup.
package submission

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/marmos91/formsync/internal/logger"
	"github.com/marmos91/formsync/internal/telemetry"
	"github.com/marmos91/formsync/pkg/apiclient"
	"github.com/marmos91/formsync/pkg/apperror"
	"github.com/marmos91/formsync/pkg/environment"
	"github.com/marmos91/formsync/pkg/forms"
	"github.com/marmos91/formsync/pkg/kvstore"
	"github.com/marmos91/formsync/pkg/objectstore"
	"github.com/marmos91/formsync/pkg/pendingqueue"
)

// Namespace is the KV namespace owned by the service.
const Namespace = "submission"

const (
	awaitingRedirectKey = "submission-awaiting-redirect"

	// RecentJobTTL is how long a submitted job stays marked.
	RecentJobTTL   = time.Hour
	recentJobsSize = 1024
)

var errNoCredentials = errors.New("submission: credential exchange returned no credentials")

// MsgPendingAttachments is returned when a submission still holds
// attachments that were never uploaded.
const MsgPendingAttachments = "Some attachments have not finished uploading. Please wait for them to upload and try again."

// API is the part of the REST client the service uses.
type API interface {
	SubmissionCredentials(ctx context.Context, formID int64, req apiclient.SubmissionCredentialsRequest) (*forms.UploadCredentials, error)
	AttachmentCredentials(ctx context.Context, formID int64, req apiclient.AttachmentCredentialsRequest) (*apiclient.AttachmentCredentials, error)
	PaymentRequest(ctx context.Context, formID int64, req apiclient.PaymentRequest) (*apiclient.RedirectResponse, error)
	SchedulingBooking(ctx context.Context, formID int64, req apiclient.SchedulingRequest) (*apiclient.RedirectResponse, error)
}

// Uploader writes the submission object.
type Uploader interface {
	Upload(ctx context.Context, in objectstore.UploadInput) error
}

// Queue stores submissions made while offline.
type Queue interface {
	Enqueue(ctx context.Context, item pendingqueue.PendingSubmission) (*pendingqueue.PendingSubmission, error)
}

// DraftDeleter removes the draft a submission was completed from.
type DraftDeleter interface {
	DeleteDraft(ctx context.Context, formSubmissionDraftID string, formsAppID int64) error
}

// Identity supplies the forms key a submission is made with, if any.
type Identity interface {
	KeyID() string
}

// Dependencies are the collaborators of a Service. Drafts and Identity are
// optional.
type Dependencies struct {
	API      API
	Uploader Uploader
	Queue    Queue
	Drafts   DraftDeleter
	Probe    environment.Probe
	Identity Identity
	Store    *kvstore.Store
}

// Service is the submission orchestrator.
type Service struct {
	api      API
	uploader Uploader
	queue    Queue
	drafts   DraftDeleter
	probe    environment.Probe
	identity Identity
	store    *kvstore.Store
	prefill  *PrefillCache
	recent   *expirable.LRU[string, time.Time]
	now      func() time.Time
}

// New creates a Service.
func New(deps Dependencies) *Service {
	return &Service{
		api:      deps.API,
		uploader: deps.Uploader,
		queue:    deps.Queue,
		drafts:   deps.Drafts,
		probe:    deps.Probe,
		identity: deps.Identity,
		store:    deps.Store,
		prefill:  NewPrefillCache(deps.Store),
		recent:   expirable.NewLRU[string, time.Time](recentJobsSize, nil, RecentJobTTL),
		now:      time.Now,
	}
}

// Prefill returns the pre-fill data cache.
func (s *Service) Prefill() *PrefillCache {
	return s.prefill
}

// RecentlySubmittedJobs returns the job ids submitted within RecentJobTTL.
func (s *Service) RecentlySubmittedJobs() []string {
	return s.recent.Keys()
}

// IsJobRecentlySubmitted reports whether jobID was submitted within
// RecentJobTTL.
func (s *Service) IsJobRecentlySubmitted(jobID string) bool {
	return s.recent.Contains(jobID)
}

func (s *Service) offline(ctx context.Context) bool {
	return s.probe != nil && s.probe.IsOffline(ctx)
}

// Submit submits a form. While offline the submission is queued, unless
// it requires a payment or booking step, which cannot be deferred.
func (s *Service) Submit(ctx context.Context, in SubmitInput) (*Result, error) {
	fs := in.FormSubmission
	if fs.KeyID == "" && s.identity != nil {
		fs.KeyID = s.identity.KeyID()
	}

	ctx = logger.WithContext(ctx, logger.NewLogContext("submission.submit").WithForm(fs.FormsAppID, fs.Definition.ID))
	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanSubmit,
		telemetry.FormsAppID(fs.FormsAppID), telemetry.FormID(fs.Definition.ID))
	defer span.End()

	scheduling := fs.Definition.SchedulingEvent(fs.Submission)
	payment := fs.Definition.PaymentEvent(fs.Submission)

	if s.offline(ctx) {
		telemetry.SetAttributes(ctx, telemetry.Offline(true))
		if scheduling != nil || payment != nil {
			logger.InfoCtx(ctx, "Offline submission needs an external step; not queued")
			return &Result{FormSubmission: fs, IsOffline: true}, nil
		}
		item, err := s.queue.Enqueue(ctx, pendingqueue.FromFormSubmission(fs))
		if err != nil {
			return nil, apperror.Normalize(err)
		}
		return &Result{
			FormSubmission:   fs,
			IsOffline:        true,
			IsInPendingQueue: true,
			PendingTimestamp: item.PendingTimestamp,
		}, nil
	}

	result, err := s.submitOnline(ctx, fs, in, scheduling, payment)
	if err != nil {
		appErr := apperror.Normalize(err)
		if appErr.Kind == apperror.KindUnknown {
			telemetry.RecordError(ctx, err)
		}
		return nil, appErr
	}
	return result, nil
}

// SubmitPending delivers a queued submission. Queued submissions never
// carry an external step. Attachments captured while offline are uploaded
// first and replaced by references to the uploaded objects.
func (s *Service) SubmitPending(ctx context.Context, item pendingqueue.PendingSubmission) error {
	fs := item.FormSubmission()
	ctx = logger.WithContext(ctx, logger.NewLogContext("submission.pending").WithForm(fs.FormsAppID, fs.Definition.ID))
	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanSubmit,
		telemetry.FormsAppID(fs.FormsAppID), telemetry.FormID(fs.Definition.ID),
		telemetry.PendingTimestamp(item.PendingTimestamp))
	defer span.End()

	submission, err := s.uploadAttachments(ctx, fs)
	if err != nil {
		return err
	}
	fs.Submission = submission

	_, err = s.submitOnline(ctx, fs, SubmitInput{FormSubmission: fs}, nil, nil)
	return err
}

// uploadAttachments uploads every pending attachment of fs and returns the
// submission data with uploaded references in their place.
func (s *Service) uploadAttachments(ctx context.Context, fs forms.FormSubmission) (map[string]any, error) {
	if len(forms.PendingAttachmentPaths(fs.Submission)) == 0 {
		return fs.Submission, nil
	}
	return forms.ReplacePendingAttachments(fs.Submission, func(path string, a forms.Attachment) (forms.Attachment, error) {
		body, err := a.Content()
		if err != nil {
			return forms.Attachment{}, apperror.Validation(MsgPendingAttachments, fmt.Errorf("%s: %w", path, err))
		}
		creds, err := s.api.AttachmentCredentials(ctx, fs.Definition.ID, apiclient.AttachmentCredentialsRequest{
			FileName:    a.FileName,
			ContentType: a.ContentType,
			FormsAppID:  fs.FormsAppID,
		})
		if err != nil {
			return forms.Attachment{}, err
		}
		if creds == nil {
			return forms.Attachment{}, apperror.Unknown(errNoCredentials)
		}
		contentType := a.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		if err := s.uploader.Upload(ctx, objectstore.UploadInput{
			Credentials: creds.UploadCredentials,
			Body:        body,
			ContentType: contentType,
		}); err != nil {
			return forms.Attachment{}, err
		}
		logger.DebugCtx(ctx, "Attachment uploaded", "path", path, "attachment_id", creds.AttachmentID)
		return forms.NewUploadedAttachment(creds.AttachmentID, creds.URL, a.FileName, a.ContentType, creds.IsPrivate), nil
	})
}

func (s *Service) submitOnline(ctx context.Context, fs forms.FormSubmission, in SubmitInput, scheduling, payment *forms.SubmissionEvent) (*Result, error) {
	if paths := forms.PendingAttachmentPaths(fs.Submission); len(paths) > 0 {
		return nil, apperror.Validation(MsgPendingAttachments,
			fmt.Errorf("pending attachments at %s", strings.Join(paths, ", ")))
	}

	creds, err := s.credentials(ctx, fs, in.GenerateCredentials)
	if err != nil {
		return nil, err
	}

	result := &Result{
		FormSubmission:      fs,
		SubmissionID:        creds.SubmissionID,
		SubmissionTimestamp: creds.SubmissionTimestamp,
	}

	awaiting := false
	switch {
	case scheduling != nil:
		resp, err := s.api.SchedulingBooking(ctx, fs.Definition.ID, apiclient.SchedulingRequest{
			SubmissionID:     creds.SubmissionID,
			Event:            *scheduling,
			URLConfiguration: in.SchedulingURLConfiguration,
		})
		if err != nil {
			return nil, err
		}
		result.Scheduling = &ExternalStep{Type: StepScheduling, URL: resp.URL, Event: *scheduling}
		awaiting = true
	case payment != nil:
		resp, err := s.api.PaymentRequest(ctx, fs.Definition.ID, apiclient.PaymentRequest{
			SubmissionID:      creds.SubmissionID,
			PaymentReceiptURL: in.PaymentReceiptURL,
			Event:             *payment,
			Submission:        fs.Submission,
		})
		if err != nil {
			return nil, err
		}
		result.Payment = &ExternalStep{Type: StepPayment, URL: resp.URL, Event: *payment}
		awaiting = true
	}

	if awaiting {
		if err := s.store.Set(ctx, awaitingRedirectKey, AwaitingRedirect{
			Result:            *result,
			PaymentReceiptURL: in.PaymentReceiptURL,
			CreatedAt:         s.now().UTC(),
		}); err != nil {
			return nil, fmt.Errorf("submission: save awaiting redirect: %w", err)
		}
	}

	if err := s.upload(ctx, fs, creds, in.OnProgress); err != nil {
		if awaiting {
			if cerr := s.ClearAwaitingRedirect(context.WithoutCancel(ctx)); cerr != nil {
				logger.WarnCtx(ctx, "Failed to clear awaiting redirect", logger.Err(cerr))
			}
		}
		return nil, err
	}

	logger.InfoCtx(ctx, "Form submitted",
		logger.KeySubmissionID, creds.SubmissionID,
		logger.KeyJobID, fs.JobID)
	s.cleanup(ctx, fs)
	return result, nil
}

func (s *Service) credentials(ctx context.Context, fs forms.FormSubmission, override CredentialsFunc) (*forms.UploadCredentials, error) {
	var (
		creds *forms.UploadCredentials
		err   error
	)
	if override != nil {
		creds, err = override(ctx, fs)
	} else {
		creds, err = s.api.SubmissionCredentials(ctx, fs.Definition.ID, apiclient.NewSubmissionCredentialsRequest(fs))
	}
	if err == nil && creds == nil {
		err = apperror.Unknown(errNoCredentials)
	}
	return creds, err
}

func (s *Service) upload(ctx context.Context, fs forms.FormSubmission, creds *forms.UploadCredentials, onProgress func(objectstore.Progress)) error {
	body, err := json.Marshal(forms.SubmissionBody{
		Definition:                       fs.Definition,
		Submission:                       fs.Submission,
		SubmissionTimestamp:              creds.SubmissionTimestamp,
		FormsAppID:                       fs.FormsAppID,
		KeyID:                            fs.KeyID,
		JobID:                            fs.JobID,
		ExternalID:                       fs.ExternalID,
		PreviousFormSubmissionApprovalID: fs.PreviousFormSubmissionApprovalID,
		TaskID:                           fs.TaskID,
	})
	if err != nil {
		return apperror.Unknown(fmt.Errorf("encode submission: %w", err))
	}

	tags := map[string]string{
		"formId":     strconv.FormatInt(fs.Definition.ID, 10),
		"formsAppId": strconv.FormatInt(fs.FormsAppID, 10),
	}
	if fs.ExternalID != "" {
		tags["externalId"] = fs.ExternalID
	}
	if fs.JobID != "" {
		tags["jobId"] = fs.JobID
	}
	if creds.UsernameToken != "" {
		tags["usernameToken"] = creds.UsernameToken
	}

	return s.uploader.Upload(ctx, objectstore.UploadInput{
		Credentials: *creds,
		Body:        body,
		ContentType: "application/json",
		Tags:        tags,
		OnProgress:  onProgress,
	})
}

// cleanup runs after the remote write succeeded; failures are only logged.
func (s *Service) cleanup(ctx context.Context, fs forms.FormSubmission) {
	ctx = context.WithoutCancel(ctx)

	if fs.FormSubmissionDraftID != "" && s.drafts != nil {
		if err := s.drafts.DeleteDraft(ctx, fs.FormSubmissionDraftID, fs.FormsAppID); err != nil {
			logger.WarnCtx(ctx, "Failed to delete draft after submission",
				logger.DraftID(fs.FormSubmissionDraftID), logger.Err(err))
		}
	}
	if fs.PreFillFormDataID != "" {
		if err := s.prefill.Remove(ctx, fs.PreFillFormDataID); err != nil {
			logger.WarnCtx(ctx, "Failed to remove prefill data after submission",
				logger.KeyPreFillID, fs.PreFillFormDataID, logger.Err(err))
		}
	}
	if fs.JobID != "" {
		s.recent.Add(fs.JobID, s.now())
	}
}

// ResumeAwaitingRedirect returns the submission waiting on an external
// page, nil when there is none.
func (s *Service) ResumeAwaitingRedirect(ctx context.Context) (*AwaitingRedirect, error) {
	rec, found, err := kvstore.GetAs[AwaitingRedirect](ctx, s.store, awaitingRedirectKey)
	if err != nil {
		return nil, fmt.Errorf("submission: load awaiting redirect: %w", err)
	}
	if !found {
		return nil, nil
	}
	return &rec, nil
}

// ClearAwaitingRedirect forgets the submission waiting on an external page.
func (s *Service) ClearAwaitingRedirect(ctx context.Context) error {
	if err := s.store.Remove(ctx, awaitingRedirectKey); err != nil {
		return fmt.Errorf("submission: clear awaiting redirect: %w", err)
	}
	return nil
}

var _ pendingqueue.Submitter = (*Service)(nil)
