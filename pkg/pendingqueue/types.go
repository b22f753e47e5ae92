package pendingqueue

import (
	"github.com/marmos91/formsync/pkg/forms"
)

// PendingSubmission is a submission captured while offline and held until
// the remote store acknowledges it.
type PendingSubmission struct {
	// PendingTimestamp is both the item id and its FIFO position.
	PendingTimestamp                 string         `json:"pendingTimestamp"`
	Definition                       forms.Form     `json:"definition"`
	Submission                       map[string]any `json:"submission"`
	FormsAppID                       int64          `json:"formsAppId"`
	KeyID                            string         `json:"keyId,omitempty"`
	DraftID                          string         `json:"formSubmissionDraftId,omitempty"`
	JobID                            string         `json:"jobId,omitempty"`
	ExternalID                       string         `json:"externalId,omitempty"`
	PreFillFormDataID                string         `json:"preFillFormDataId,omitempty"`
	PreviousFormSubmissionApprovalID string         `json:"previousFormSubmissionApprovalId,omitempty"`
	TaskID                           string         `json:"taskId,omitempty"`
	IsSubmitting                     bool           `json:"isSubmitting"`
	Error                            string         `json:"error,omitempty"`
}

// Summary is a PendingSubmission without the submission data. The summary
// list is what listeners and the UI see.
type Summary struct {
	PendingTimestamp  string     `json:"pendingTimestamp"`
	Definition        forms.Form `json:"definition"`
	FormsAppID        int64      `json:"formsAppId"`
	KeyID             string     `json:"keyId,omitempty"`
	DraftID           string     `json:"formSubmissionDraftId,omitempty"`
	JobID             string     `json:"jobId,omitempty"`
	ExternalID        string     `json:"externalId,omitempty"`
	PreFillFormDataID string     `json:"preFillFormDataId,omitempty"`
	IsSubmitting      bool       `json:"isSubmitting"`
	Error             string     `json:"error,omitempty"`
}

// FromFormSubmission captures a submission for the queue.
func FromFormSubmission(s forms.FormSubmission) PendingSubmission {
	return PendingSubmission{
		Definition:                       s.Definition,
		Submission:                       s.Submission,
		FormsAppID:                       s.FormsAppID,
		KeyID:                            s.KeyID,
		DraftID:                          s.FormSubmissionDraftID,
		JobID:                            s.JobID,
		ExternalID:                       s.ExternalID,
		PreFillFormDataID:                s.PreFillFormDataID,
		PreviousFormSubmissionApprovalID: s.PreviousFormSubmissionApprovalID,
		TaskID:                           s.TaskID,
	}
}

// FormSubmission converts the item back into a submission.
func (p PendingSubmission) FormSubmission() forms.FormSubmission {
	return forms.FormSubmission{
		FormsAppID:                       p.FormsAppID,
		Definition:                       p.Definition,
		Submission:                       p.Submission,
		JobID:                            p.JobID,
		ExternalID:                       p.ExternalID,
		FormSubmissionDraftID:            p.DraftID,
		PreFillFormDataID:                p.PreFillFormDataID,
		PreviousFormSubmissionApprovalID: p.PreviousFormSubmissionApprovalID,
		TaskID:                           p.TaskID,
		KeyID:                            p.KeyID,
	}
}

// Summary drops the submission data.
func (p PendingSubmission) Summary() Summary {
	return Summary{
		PendingTimestamp:  p.PendingTimestamp,
		Definition:        p.Definition,
		FormsAppID:        p.FormsAppID,
		KeyID:             p.KeyID,
		DraftID:           p.DraftID,
		JobID:             p.JobID,
		ExternalID:        p.ExternalID,
		PreFillFormDataID: p.PreFillFormDataID,
		IsSubmitting:      p.IsSubmitting,
		Error:             p.Error,
	}
}

// DrainReport describes one Process call.
type DrainReport struct {
	Attempted int  `json:"attempted"`
	Succeeded int  `json:"succeeded"`
	Failed    int  `json:"failed"`
	Skipped   int  `json:"skipped"`
	Busy      bool `json:"busy"`
}
