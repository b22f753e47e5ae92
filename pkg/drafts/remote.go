package drafts

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/marmos91/formsync/pkg/apiclient"
	"github.com/marmos91/formsync/pkg/apperror"
	"github.com/marmos91/formsync/pkg/forms"
	"github.com/marmos91/formsync/pkg/objectstore"
)

// Remote is the server-side draft store.
type Remote interface {
	ListDrafts(ctx context.Context, formsAppID int64) ([]FormSubmissionDraft, error)
	UploadDraft(ctx context.Context, draft DraftSubmission) (*FormSubmissionDraftVersion, error)
	DownloadDraftData(ctx context.Context, draft FormSubmissionDraft) (*DraftSubmission, error)
	DeleteDraft(ctx context.Context, formSubmissionDraftID string) error
}

// DraftAPI is the part of the REST client the remote uses.
type DraftAPI interface {
	ListDrafts(ctx context.Context, formsAppID int64) ([]FormSubmissionDraft, error)
	DraftCredentials(ctx context.Context, formsAppID int64, req apiclient.DraftCredentialsRequest) (*forms.UploadCredentials, error)
	DraftRetrievalCredentials(ctx context.Context, draftID, versionID string) (*forms.UploadCredentials, error)
	DeleteDraft(ctx context.Context, draftID string) error
}

// Uploader writes one object.
type Uploader interface {
	Upload(ctx context.Context, in objectstore.UploadInput) error
}

// Downloader reads one object.
type Downloader interface {
	Download(ctx context.Context, creds forms.UploadCredentials) ([]byte, error)
}

type remote struct {
	api        DraftAPI
	uploader   Uploader
	downloader Downloader
	now        func() time.Time
}

// NewRemote returns a Remote that exchanges credentials through the API
// and moves draft data through blob storage.
func NewRemote(api DraftAPI, uploader Uploader, downloader Downloader) Remote {
	return &remote{api: api, uploader: uploader, downloader: downloader, now: time.Now}
}

func (r *remote) ListDrafts(ctx context.Context, formsAppID int64) ([]FormSubmissionDraft, error) {
	return r.api.ListDrafts(ctx, formsAppID)
}

func (r *remote) UploadDraft(ctx context.Context, draft DraftSubmission) (*FormSubmissionDraftVersion, error) {
	creds, err := r.api.DraftCredentials(ctx, draft.FormsAppID, apiclient.DraftCredentialsRequest{
		FormSubmissionDraftID:            draft.FormSubmissionDraftID,
		FormID:                           draft.Definition.ID,
		Title:                            draft.Title,
		JobID:                            draft.JobID,
		ExternalID:                       draft.ExternalID,
		PreviousFormSubmissionApprovalID: draft.PreviousFormSubmissionApprovalID,
		TaskID:                           draft.TaskID,
		CreatedAt:                        draft.CreatedAt.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(draft)
	if err != nil {
		return nil, apperror.Unknown(fmt.Errorf("encode draft: %w", err))
	}

	err = r.uploader.Upload(ctx, objectstore.UploadInput{
		Credentials: *creds,
		Body:        body,
		ContentType: "application/json",
		Tags: map[string]string{
			"formId":                strconv.FormatInt(draft.Definition.ID, 10),
			"formsAppId":            strconv.FormatInt(draft.FormsAppID, 10),
			"formSubmissionDraftId": draft.FormSubmissionDraftID,
		},
	})
	if err != nil {
		return nil, err
	}

	return &FormSubmissionDraftVersion{
		ID:                               creds.DraftDataID,
		FormSubmissionDraftID:            draft.FormSubmissionDraftID,
		CreatedAt:                        r.now().UTC(),
		ExternalID:                       draft.ExternalID,
		PreviousFormSubmissionApprovalID: draft.PreviousFormSubmissionApprovalID,
		TaskID:                           draft.TaskID,
	}, nil
}

func (r *remote) DownloadDraftData(ctx context.Context, draft FormSubmissionDraft) (*DraftSubmission, error) {
	version := draft.LatestVersion()
	if version == nil {
		return nil, apperror.Validation(apperror.MsgValidation,
			fmt.Errorf("draft %s has no versions", draft.ID))
	}

	creds, err := r.api.DraftRetrievalCredentials(ctx, draft.ID, version.ID)
	if err != nil {
		return nil, err
	}
	data, err := r.downloader.Download(ctx, *creds)
	if err != nil {
		return nil, err
	}

	var out DraftSubmission
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, apperror.Unknown(fmt.Errorf("decode draft %s: %w", draft.ID, err))
	}
	out.FormSubmissionDraftID = draft.ID
	if out.FormsAppID == 0 {
		out.FormsAppID = draft.FormsAppID
	}
	return &out, nil
}

func (r *remote) DeleteDraft(ctx context.Context, formSubmissionDraftID string) error {
	return r.api.DeleteDraft(ctx, formSubmissionDraftID)
}
