package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys used on formsync spans.
const (
	AttrFormsAppID       = "forms.app_id"
	AttrFormID           = "forms.form_id"
	AttrDraftID          = "forms.draft_id"
	AttrPendingTimestamp = "forms.pending_timestamp"
	AttrOffline          = "forms.offline"
	AttrErrorKind        = "forms.error_kind"

	AttrBucket       = "storage.bucket"
	AttrKey          = "storage.key"
	AttrRegion       = "storage.region"
	AttrSize         = "storage.size"
	AttrAttempt      = "storage.attempt"
	AttrNetworkClass = "network.class"

	AttrStoreKey = "kv.key"
	AttrBackend  = "kv.backend"
)

// Span names.
const (
	SpanSubmit        = "submission.submit"
	SpanDrainQueue    = "pendingqueue.process"
	SpanSyncDrafts    = "drafts.sync"
	SpanUpload        = "objectstore.upload"
	SpanUploadAttempt = "objectstore.upload_attempt"
	SpanDownload      = "objectstore.download"
	SpanKVGet         = "kvstore.get"
	SpanKVSet         = "kvstore.set"
)

// FormsAppID returns an attribute for the forms app id
func FormsAppID(id int64) attribute.KeyValue {
	return attribute.Int64(AttrFormsAppID, id)
}

// FormID returns an attribute for the form id
func FormID(id int64) attribute.KeyValue {
	return attribute.Int64(AttrFormID, id)
}

// DraftID returns an attribute for a draft id
func DraftID(id string) attribute.KeyValue {
	return attribute.String(AttrDraftID, id)
}

// PendingTimestamp returns an attribute for a pending queue item
func PendingTimestamp(ts string) attribute.KeyValue {
	return attribute.String(AttrPendingTimestamp, ts)
}

// Offline returns an attribute recording the probe result
func Offline(offline bool) attribute.KeyValue {
	return attribute.Bool(AttrOffline, offline)
}

// ErrorKind returns an attribute for a classified error kind
func ErrorKind(kind string) attribute.KeyValue {
	return attribute.String(AttrErrorKind, kind)
}

// Bucket returns an attribute for an S3 bucket name
func Bucket(name string) attribute.KeyValue {
	return attribute.String(AttrBucket, name)
}

// StorageKey returns an attribute for an S3 object key
func StorageKey(key string) attribute.KeyValue {
	return attribute.String(AttrKey, key)
}

// Region returns an attribute for a cloud region
func Region(region string) attribute.KeyValue {
	return attribute.String(AttrRegion, region)
}

// Size returns an attribute for a payload size in bytes
func Size(n int) attribute.KeyValue {
	return attribute.Int(AttrSize, n)
}

// Attempt returns an attribute for an upload attempt number
func Attempt(n int) attribute.KeyValue {
	return attribute.Int(AttrAttempt, n)
}

// NetworkClass returns an attribute for the effective network class
func NetworkClass(class string) attribute.KeyValue {
	return attribute.String(AttrNetworkClass, class)
}

// StoreKey returns an attribute for a logical KV key
func StoreKey(key string) attribute.KeyValue {
	return attribute.String(AttrStoreKey, key)
}

// Backend returns an attribute for the KV backend name
func Backend(name string) attribute.KeyValue {
	return attribute.String(AttrBackend, name)
}
