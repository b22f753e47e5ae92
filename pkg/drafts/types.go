package drafts

import (
	"time"

	"github.com/marmos91/formsync/pkg/forms"
)

// Server-side draft records.
type (
	FormSubmissionDraft        = forms.FormSubmissionDraft
	FormSubmissionDraftVersion = forms.FormSubmissionDraftVersion
)

// DraftSubmission is a locally authored draft. CreatedAt changes on every
// update and identifies the revision.
type DraftSubmission struct {
	FormSubmissionDraftID            string         `json:"formSubmissionDraftId"`
	FormsAppID                       int64          `json:"formsAppId"`
	Definition                       forms.Form     `json:"definition"`
	Submission                       map[string]any `json:"submission,omitempty"`
	Title                            string         `json:"title,omitempty"`
	CreatedAt                        time.Time      `json:"createdAt"`
	ExternalID                       string         `json:"externalId,omitempty"`
	JobID                            string         `json:"jobId,omitempty"`
	PreviousFormSubmissionApprovalID string         `json:"previousFormSubmissionApprovalId,omitempty"`
	TaskID                           string         `json:"taskId,omitempty"`

	// PreviouslySynced is set on an unsynced draft when an earlier revision
	// reached the server, so deleting it must also delete the server copy.
	PreviouslySynced bool `json:"previouslySynced,omitempty"`
}

// withoutData returns the draft without its submission data. Data lives
// under its own key so the bucket record stays small.
func (d DraftSubmission) withoutData() DraftSubmission {
	d.Submission = nil
	return d
}

// DraftInput is what the caller supplies to AddDraft and UpdateDraft.
type DraftInput struct {
	FormsAppID                       int64
	Definition                       forms.Form
	Submission                       map[string]any
	Title                            string
	ExternalID                       string
	JobID                            string
	PreviousFormSubmissionApprovalID string
	TaskID                           string
}

// LocalDraftsStorage is the persisted draft state. A draft id appears in at
// most one of the three buckets.
type LocalDraftsStorage struct {
	UnsyncedDraftSubmissions    []DraftSubmission     `json:"unsyncedDraftSubmissions"`
	SyncedFormSubmissionDrafts  []FormSubmissionDraft `json:"syncedFormSubmissionDrafts"`
	DeletedFormSubmissionDrafts []FormSubmissionDraft `json:"deletedFormSubmissionDrafts"`
}

// LocalFormSubmissionDraft is one entry of the merged view returned by
// GetDrafts.
type LocalFormSubmissionDraft struct {
	FormSubmissionDraftID string    `json:"formSubmissionDraftId"`
	FormsAppID            int64     `json:"formsAppId"`
	FormID                int64     `json:"formId"`
	Title                 string    `json:"title,omitempty"`
	JobID                 string    `json:"jobId,omitempty"`
	CreatedAt             time.Time `json:"createdAt"`
	Synced                bool      `json:"synced"`

	// Draft is the server record, set when Synced.
	Draft *FormSubmissionDraft `json:"draft,omitempty"`
}

// SyncOptions configures SyncDrafts.
type SyncOptions struct {
	FormsAppID int64

	// ThrowError makes connectivity failures surface instead of being
	// swallowed.
	ThrowError bool
}

// cachedData is the value stored under a draft data key.
type cachedData struct {
	// VersionID is the server version the data was downloaded from, empty
	// for locally authored data.
	VersionID string          `json:"versionId,omitempty"`
	Draft     DraftSubmission `json:"draft"`
}

// SyncReport counts what one SyncDrafts pass did.
type SyncReport struct {
	Synced     int  `json:"synced"`
	Downloaded int  `json:"downloaded"`
	Uploaded   int  `json:"uploaded"`
	Deleted    int  `json:"deleted"`
	Failed     int  `json:"failed"`
	Busy       bool `json:"busy"`
}
