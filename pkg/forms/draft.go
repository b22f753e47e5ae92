package forms

import "time"

// FormSubmissionDraftVersion points at one uploaded revision of a draft.
type FormSubmissionDraftVersion struct {
	ID                               string    `json:"id"`
	FormSubmissionDraftID            string    `json:"formSubmissionDraftId"`
	CreatedAt                        time.Time `json:"createdAt"`
	CreatedBy                        string    `json:"createdBy,omitempty"`
	ExternalID                       string    `json:"externalId,omitempty"`
	PreviousFormSubmissionApprovalID string    `json:"previousFormSubmissionApprovalId,omitempty"`
	TaskID                           string    `json:"taskId,omitempty"`
}

// FormSubmissionDraft is the server record for a draft. It is replaced
// wholesale whenever the draft list is fetched.
type FormSubmissionDraft struct {
	ID         string                       `json:"id"`
	FormsAppID int64                        `json:"formsAppId"`
	FormID     int64                        `json:"formId"`
	Title      string                       `json:"title,omitempty"`
	JobID      string                       `json:"jobId,omitempty"`
	CreatedAt  time.Time                    `json:"createdAt"`
	UpdatedAt  time.Time                    `json:"updatedAt,omitempty"`
	Versions   []FormSubmissionDraftVersion `json:"versions,omitempty"`
}

// LatestVersion returns the most recently created version, nil when the
// draft has none.
func (d FormSubmissionDraft) LatestVersion() *FormSubmissionDraftVersion {
	var latest *FormSubmissionDraftVersion
	for i := range d.Versions {
		v := &d.Versions[i]
		if latest == nil || v.CreatedAt.After(latest.CreatedAt) {
			latest = v
		}
	}
	return latest
}
