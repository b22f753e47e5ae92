package submission

import (
	"context"
	"time"

	"github.com/marmos91/formsync/pkg/forms"
	"github.com/marmos91/formsync/pkg/objectstore"
)

// Kinds of external step a submission can wait on.
const (
	StepPayment    = "payment"
	StepScheduling = "scheduling"
)

// CredentialsFunc exchanges a submission for upload credentials.
type CredentialsFunc func(ctx context.Context, s forms.FormSubmission) (*forms.UploadCredentials, error)

// SubmitInput is the argument to Submit.
type SubmitInput struct {
	FormSubmission forms.FormSubmission

	// PaymentReceiptURL is where the hosted payment page returns to.
	PaymentReceiptURL string

	// SchedulingURLConfiguration configures the hosted booking page.
	SchedulingURLConfiguration map[string]string

	// GenerateCredentials overrides the default credential exchange.
	GenerateCredentials CredentialsFunc

	// OnProgress receives upload progress.
	OnProgress func(objectstore.Progress)
}

// ExternalStep is a hosted payment or booking page the user must visit
// before the submission is complete.
type ExternalStep struct {
	Type  string                `json:"type"`
	URL   string                `json:"url,omitempty"`
	Event forms.SubmissionEvent `json:"event"`
}

// Result is the outcome of Submit. Exactly one of three states holds:
// submitted (SubmissionID set), queued (IsInPendingQueue), or offline with
// an external step that could not be started (IsOffline only).
type Result struct {
	FormSubmission      forms.FormSubmission `json:"formSubmission"`
	SubmissionID        string               `json:"submissionId,omitempty"`
	SubmissionTimestamp string               `json:"submissionTimestamp,omitempty"`
	IsOffline           bool                 `json:"isOffline"`
	IsInPendingQueue    bool                 `json:"isInPendingQueue"`
	PendingTimestamp    string               `json:"pendingTimestamp,omitempty"`
	Payment             *ExternalStep        `json:"payment,omitempty"`
	Scheduling          *ExternalStep        `json:"scheduling,omitempty"`
}

// AwaitingRedirect is persisted before the user is sent to an external
// page so the flow can resume when they come back.
type AwaitingRedirect struct {
	Result            Result    `json:"result"`
	PaymentReceiptURL string    `json:"paymentReceiptUrl,omitempty"`
	CreatedAt         time.Time `json:"createdAt"`
}
