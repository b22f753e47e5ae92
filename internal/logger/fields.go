package logger

import "log/slog"

// Standard field keys for structured logging. Use these consistently so logs
// from the queue, the draft synchronizer and the uploader can be correlated.
const (
	KeyTraceID   = "trace_id"
	KeyOperation = "operation"
	KeyDuration  = "duration_ms"
	KeyError     = "error"
	KeyErrorKind = "error_kind"
	KeyStatus    = "status"
	KeyUsername  = "username"

	// Forms
	KeyFormsAppID   = "forms_app_id"
	KeyFormID       = "form_id"
	KeyJobID        = "job_id"
	KeySubmissionID = "submission_id"
	KeyExternalID   = "external_id"
	KeyPreFillID    = "pre_fill_form_data_id"

	// Pending queue
	KeyPendingTimestamp = "pending_timestamp"
	KeyQueueLength      = "queue_length"

	// Drafts
	KeyDraftID      = "draft_id"
	KeyDraftVersion = "draft_version_id"
	KeyBucket       = "bucket"
	KeyCount        = "count"

	// Object storage
	KeyObjectBucket = "s3_bucket"
	KeyObjectKey    = "s3_key"
	KeyRegion       = "region"
	KeyAttempt      = "attempt"
	KeyMaxAttempts  = "max_attempts"
	KeySize         = "size"
	KeyParts        = "parts"
	KeyConcurrency  = "concurrency"
	KeyNetworkClass = "network_class"

	// Local storage
	KeyStoreKey  = "store_key"
	KeyNamespace = "namespace"
	KeyBackend   = "backend"
	KeyChunks    = "chunks"
)

// Err returns an error attribute, or an empty attribute for a nil error.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// FormID returns a form id attribute.
func FormID(id int64) slog.Attr {
	return slog.Int64(KeyFormID, id)
}

// FormsAppID returns a forms app id attribute.
func FormsAppID(id int64) slog.Attr {
	return slog.Int64(KeyFormsAppID, id)
}

// DraftID returns a draft id attribute.
func DraftID(id string) slog.Attr {
	return slog.String(KeyDraftID, id)
}

// PendingTimestamp returns a pending queue item id attribute.
func PendingTimestamp(ts string) slog.Attr {
	return slog.String(KeyPendingTimestamp, ts)
}

// Attempt returns a retry attempt attribute.
func Attempt(n int) slog.Attr {
	return slog.Int(KeyAttempt, n)
}
