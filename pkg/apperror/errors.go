// Package apperror defines the single typed error the SDK surfaces to
// callers. Low level network, storage and HTTP failures are normalized into
// an *Error at package boundaries so callers only branch on Kind and the
// boolean flags.
package apperror

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"

	"github.com/aws/smithy-go"
)

// Kind classifies an application error.
type Kind string

const (
	// KindConnectivity: offline, or upload retries exhausted. Data is kept
	// locally and the operation can be retried once connected.
	KindConnectivity Kind = "connectivity"

	// KindAuth: login required (HTTP 401).
	KindAuth Kind = "auth"

	// KindAccess: the user needs an administrator to grant access (HTTP 403).
	KindAccess Kind = "access"

	// KindValidation: bad input or configuration (HTTP 400/404). Not retryable.
	KindValidation Kind = "validation"

	// KindCapacity: local storage is full.
	KindCapacity Kind = "capacity"

	// KindAborted: the caller cancelled the operation. Remote state is
	// indeterminate.
	KindAborted Kind = "aborted"

	// KindUnknown: anything else. Reported to telemetry.
	KindUnknown Kind = "unknown"
)

// User facing messages.
const (
	MsgOffline    = "You are currently offline. Please connect to the internet and try again."
	MsgRetries    = "The upload could not be completed. Please check your connection and try again."
	MsgAuth       = "You need to login to continue. Please login and try again."
	MsgAccess     = "You do not have access to this application. Please contact your administrator to request access."
	MsgValidation = "The request could not be completed. Please contact your administrator to ensure the application configuration is correct."
	MsgCapacity   = "Your device does not have enough storage space. Please free up some space and try again."
	MsgAborted    = "The operation was cancelled."
	MsgUnknown    = "An unknown error has occurred"
)

// Sentinels usable with errors.Is against any *Error.
var (
	// ErrAborted matches errors of KindAborted.
	ErrAborted = errors.New("operation aborted")

	// ErrOffline matches errors with IsOffline set.
	ErrOffline = errors.New("device is offline")
)

// Error is the application error type.
//
// Message is safe to show to end users; Err carries the original error for
// diagnostics and is reachable via errors.Unwrap.
type Error struct {
	Kind                  Kind
	Message               string
	Status                int // HTTP status, 0 when not from an HTTP response
	IsOffline             bool
	RequiresLogin         bool
	RequiresAccessRequest bool
	Err                   error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Status != 0 {
		fmt.Fprintf(&b, " (status %d)", e.Status)
	}
	b.WriteString(": ")
	b.WriteString(e.Message)
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the wrapped original error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match the package sentinels.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrAborted:
		return e.Kind == KindAborted
	case ErrOffline:
		return e.IsOffline
	}
	return false
}

// Offline returns a connectivity error for an operation attempted while the
// device has no network.
func Offline(err error) *Error {
	return &Error{Kind: KindConnectivity, Message: MsgOffline, IsOffline: true, Err: err}
}

// Connectivity returns a connectivity error with a custom message.
func Connectivity(message string, err error) *Error {
	return &Error{Kind: KindConnectivity, Message: message, IsOffline: true, Err: err}
}

// Capacity returns a local storage capacity error.
func Capacity(err error) *Error {
	return &Error{Kind: KindCapacity, Message: MsgCapacity, Err: err}
}

// Aborted returns a cancellation error wrapping the context error.
func Aborted(err error) *Error {
	return &Error{Kind: KindAborted, Message: MsgAborted, Err: err}
}

// Validation returns a validation error with a custom message.
func Validation(message string, err error) *Error {
	return &Error{Kind: KindValidation, Message: message, Err: err}
}

// Unknown returns an unclassified error.
func Unknown(err error) *Error {
	return &Error{Kind: KindUnknown, Message: MsgUnknown, Err: err}
}

// FromHTTPStatus maps a REST response status to an application error.
// message overrides the default user message when non-empty.
func FromHTTPStatus(status int, message string, err error) *Error {
	e := &Error{Status: status, Err: err}
	switch status {
	case http.StatusUnauthorized:
		e.Kind, e.Message, e.RequiresLogin = KindAuth, MsgAuth, true
	case http.StatusForbidden:
		e.Kind, e.Message, e.RequiresAccessRequest = KindAccess, MsgAccess, true
	case http.StatusBadRequest, http.StatusNotFound:
		e.Kind, e.Message = KindValidation, MsgValidation
	default:
		e.Kind, e.Message = KindUnknown, MsgUnknown
	}
	if message != "" {
		e.Message = message
	}
	return e
}

// Normalize converts any error into an *Error. Errors that already are an
// *Error (anywhere in the chain) are returned unchanged; nil stays nil.
func Normalize(err error) *Error {
	if err == nil {
		return nil
	}

	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}

	if errors.Is(err, context.Canceled) {
		return Aborted(err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Offline(err)
	}
	if errors.Is(err, syscall.ENOSPC) || IsCapacityMessage(err.Error()) {
		return Capacity(err)
	}

	// smithy API errors carry the HTTP response; classify by status first so
	// an S3 403 for expired credentials maps to access rather than offline.
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		var statusErr interface{ HTTPStatusCode() int }
		if errors.As(err, &statusErr) {
			return FromHTTPStatus(statusErr.HTTPStatusCode(), "", err)
		}
		return Unknown(err)
	}

	var urlErr *url.Error
	var netErr net.Error
	if errors.As(err, &urlErr) || errors.As(err, &netErr) {
		return Offline(err)
	}
	var opErr *smithy.OperationError
	if errors.As(err, &opErr) {
		// Operation failed before a response was received.
		return Offline(err)
	}

	return Unknown(err)
}

// IsCapacityMessage reports whether a storage driver message indicates the
// disk or database is full.
func IsCapacityMessage(msg string) bool {
	msg = strings.ToLower(msg)
	for _, marker := range []string{
		"database or disk is full",
		"sqlite_full",
		"no space left on device",
		"could not extend file",
		"disk full",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// KindOf returns the kind of err after normalization, or "" for nil.
func KindOf(err error) Kind {
	if e := Normalize(err); e != nil {
		return e.Kind
	}
	return ""
}

// IsOffline reports whether err is an offline/connectivity error.
func IsOffline(err error) bool {
	e := Normalize(err)
	return e != nil && (e.IsOffline || e.Kind == KindConnectivity)
}

// UserMessage returns the message shown for a failed item. Errors that are
// not application errors fall back to a generic message so internal details
// never reach the user.
func UserMessage(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) && appErr.Message != "" {
		return appErr.Message
	}
	return MsgUnknown
}
