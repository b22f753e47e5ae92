package forms

import "time"

// FormSubmission is a completed form ready to be submitted.
type FormSubmission struct {
	FormsAppID                       int64          `json:"formsAppId"`
	Definition                       Form           `json:"definition"`
	Submission                       map[string]any `json:"submission"`
	JobID                            string         `json:"jobId,omitempty"`
	ExternalID                       string         `json:"externalId,omitempty"`
	FormSubmissionDraftID            string         `json:"formSubmissionDraftId,omitempty"`
	PreFillFormDataID                string         `json:"preFillFormDataId,omitempty"`
	PreviousFormSubmissionApprovalID string         `json:"previousFormSubmissionApprovalId,omitempty"`
	TaskID                           string         `json:"taskId,omitempty"`
	KeyID                            string         `json:"keyId,omitempty"`
}

// TemporaryCredentials are short-lived storage credentials.
type TemporaryCredentials struct {
	AccessKeyID     string    `json:"AccessKeyId"`
	SecretAccessKey string    `json:"SecretAccessKey"`
	SessionToken    string    `json:"SessionToken"`
	Expiration      time.Time `json:"Expiration,omitempty"`
}

// S3Location identifies the single object the credentials are scoped to.
type S3Location struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
	Region string `json:"region"`
}

// UploadCredentials are issued per upload or download attempt and never
// persisted.
type UploadCredentials struct {
	S3                    S3Location           `json:"s3"`
	Credentials           TemporaryCredentials `json:"credentials"`
	SubmissionID          string               `json:"submissionId,omitempty"`
	SubmissionTimestamp   string               `json:"submissionTimestamp,omitempty"`
	FormSubmissionDraftID string               `json:"formSubmissionDraftId,omitempty"`
	DraftDataID           string               `json:"draftDataId,omitempty"`
	UsernameToken         string               `json:"usernameToken,omitempty"`
}

// Expired reports whether the credentials are past their expiration.
// Credentials without an expiration never expire locally.
func (c UploadCredentials) Expired(now time.Time) bool {
	return !c.Credentials.Expiration.IsZero() && !now.Before(c.Credentials.Expiration)
}

// SubmissionBody is the JSON object written to blob storage for a
// submission or a draft.
type SubmissionBody struct {
	Definition                       Form           `json:"definition"`
	Submission                       map[string]any `json:"submission"`
	SubmissionTimestamp              string         `json:"submissionTimestamp,omitempty"`
	FormsAppID                       int64          `json:"formsAppId"`
	KeyID                            string         `json:"keyId,omitempty"`
	JobID                            string         `json:"jobId,omitempty"`
	ExternalID                       string         `json:"externalId,omitempty"`
	PreviousFormSubmissionApprovalID string         `json:"previousFormSubmissionApprovalId,omitempty"`
	TaskID                           string         `json:"taskId,omitempty"`
}
