package apiclient

import (
	"context"

	"github.com/marmos91/formsync/pkg/forms"
)

// SubmissionCredentialsRequest identifies the submission an upload
// location is issued for.
type SubmissionCredentialsRequest struct {
	FormsAppID                       int64  `json:"formsAppId"`
	JobID                            string `json:"jobId,omitempty"`
	ExternalID                       string `json:"externalId,omitempty"`
	FormSubmissionDraftID            string `json:"formSubmissionDraftId,omitempty"`
	PreFillFormDataID                string `json:"preFillFormDataId,omitempty"`
	PreviousFormSubmissionApprovalID string `json:"previousFormSubmissionApprovalId,omitempty"`
	TaskID                           string `json:"taskId,omitempty"`
	KeyID                            string `json:"keyId,omitempty"`
}

// NewSubmissionCredentialsRequest builds the request for a submission.
func NewSubmissionCredentialsRequest(s forms.FormSubmission) SubmissionCredentialsRequest {
	return SubmissionCredentialsRequest{
		FormsAppID:                       s.FormsAppID,
		JobID:                            s.JobID,
		ExternalID:                       s.ExternalID,
		FormSubmissionDraftID:            s.FormSubmissionDraftID,
		PreFillFormDataID:                s.PreFillFormDataID,
		PreviousFormSubmissionApprovalID: s.PreviousFormSubmissionApprovalID,
		TaskID:                           s.TaskID,
		KeyID:                            s.KeyID,
	}
}

// DraftCredentialsRequest identifies the draft version being uploaded.
type DraftCredentialsRequest struct {
	FormSubmissionDraftID            string `json:"formSubmissionDraftId"`
	FormID                           int64  `json:"formId"`
	Title                            string `json:"title,omitempty"`
	JobID                            string `json:"jobId,omitempty"`
	ExternalID                       string `json:"externalId,omitempty"`
	PreviousFormSubmissionApprovalID string `json:"previousFormSubmissionApprovalId,omitempty"`
	TaskID                           string `json:"taskId,omitempty"`
	CreatedAt                        string `json:"createdAt,omitempty"`
}

// AttachmentCredentialsRequest describes a file about to be uploaded.
type AttachmentCredentialsRequest struct {
	FileName    string `json:"fileName"`
	ContentType string `json:"contentType,omitempty"`
	FormsAppID  int64  `json:"formsAppId,omitempty"`
}

// AttachmentCredentials is an upload location for one attachment together
// with the reference the submission stores once the upload is done.
type AttachmentCredentials struct {
	forms.UploadCredentials
	AttachmentID string `json:"attachmentId"`
	URL          string `json:"url"`
	IsPrivate    bool   `json:"isPrivate"`
}

// PaymentRequest asks the platform to start a hosted payment.
type PaymentRequest struct {
	SubmissionID      string                `json:"submissionId"`
	PaymentReceiptURL string                `json:"paymentReceiptUrl"`
	Event             forms.SubmissionEvent `json:"paymentSubmissionEvent"`
	Submission        map[string]any        `json:"submission,omitempty"`
}

// SchedulingRequest asks the platform to start a hosted booking.
type SchedulingRequest struct {
	SubmissionID     string                `json:"submissionId"`
	Event            forms.SubmissionEvent `json:"schedulingSubmissionEvent"`
	URLConfiguration map[string]string     `json:"schedulingUrlConfiguration,omitempty"`
}

// RedirectResponse carries the hosted page the user must visit.
type RedirectResponse struct {
	URL string `json:"url"`
}

// SubmissionCredentials exchanges a form submission for a single-object
// upload location and short-lived credentials.
func (c *Client) SubmissionCredentials(ctx context.Context, formID int64, req SubmissionCredentialsRequest) (*forms.UploadCredentials, error) {
	return createResource[forms.UploadCredentials](ctx, c, resourcePath("/forms/%d/submission-credentials", formID), req)
}

// AttachmentCredentials issues an upload location for a form attachment.
func (c *Client) AttachmentCredentials(ctx context.Context, formID int64, req AttachmentCredentialsRequest) (*AttachmentCredentials, error) {
	return createResource[AttachmentCredentials](ctx, c, resourcePath("/forms/%d/upload-attachment-credentials", formID), req)
}

// DraftCredentials issues upload credentials for a new draft version.
func (c *Client) DraftCredentials(ctx context.Context, formsAppID int64, req DraftCredentialsRequest) (*forms.UploadCredentials, error) {
	return createResource[forms.UploadCredentials](ctx, c, resourcePath("/forms-apps/%d/draft-credentials", formsAppID), req)
}

// ListDrafts returns the server's drafts for the current user in a forms app.
func (c *Client) ListDrafts(ctx context.Context, formsAppID int64) ([]forms.FormSubmissionDraft, error) {
	var resp struct {
		FormSubmissionDrafts []forms.FormSubmissionDraft `json:"formSubmissionDrafts"`
	}
	if err := c.get(ctx, resourcePath("/forms-apps/%d/form-submission-drafts", formsAppID), &resp); err != nil {
		return nil, err
	}
	if resp.FormSubmissionDrafts == nil {
		return []forms.FormSubmissionDraft{}, nil
	}
	return resp.FormSubmissionDrafts, nil
}

// DraftRetrievalCredentials issues read credentials for one draft version.
func (c *Client) DraftRetrievalCredentials(ctx context.Context, draftID, versionID string) (*forms.UploadCredentials, error) {
	return createResource[forms.UploadCredentials](ctx, c,
		resourcePath("/form-submission-drafts/%s/versions/%s/retrieval-credentials", draftID, versionID), nil)
}

// DeleteDraft acknowledges a draft deletion on the server.
func (c *Client) DeleteDraft(ctx context.Context, draftID string) error {
	return deleteResource(ctx, c, resourcePath("/form-submission-drafts/%s", draftID))
}

// PaymentRequest starts a hosted payment and returns its URL.
func (c *Client) PaymentRequest(ctx context.Context, formID int64, req PaymentRequest) (*RedirectResponse, error) {
	return createResource[RedirectResponse](ctx, c, resourcePath("/forms/%d/payment-request", formID), req)
}

// SchedulingBooking starts a hosted booking and returns its URL.
func (c *Client) SchedulingBooking(ctx context.Context, formID int64, req SchedulingRequest) (*RedirectResponse, error) {
	return createResource[RedirectResponse](ctx, c, resourcePath("/forms/%d/scheduling-booking", formID), req)
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}

// Health checks that the API is reachable.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	return getResource[HealthResponse](ctx, c, "/health")
}
