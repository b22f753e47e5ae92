package logger

import (
	"context"
	"time"
)

type contextKey struct{}

// LogContext carries operation-scoped fields that the *Ctx functions
// prepend to every record.
type LogContext struct {
	TraceID    string
	Operation  string // submit, drain, sync_drafts, upload, ...
	FormsAppID int64
	FormID     int64
	Username   string
	StartTime  time.Time
}

// NewLogContext starts a LogContext for the named operation.
func NewLogContext(operation string) *LogContext {
	return &LogContext{Operation: operation, StartTime: time.Now()}
}

// WithContext attaches lc to ctx.
func WithContext(ctx context.Context, lc *LogContext) context.Context {
	return context.WithValue(ctx, contextKey{}, lc)
}

// FromContext returns the LogContext attached to ctx, or nil.
func FromContext(ctx context.Context) *LogContext {
	if ctx == nil {
		return nil
	}
	lc, _ := ctx.Value(contextKey{}).(*LogContext)
	return lc
}

// Clone returns a copy; nil stays nil.
func (lc *LogContext) Clone() *LogContext {
	if lc == nil {
		return nil
	}
	c := *lc
	return &c
}

// WithForm returns a copy scoped to a form.
func (lc *LogContext) WithForm(formsAppID, formID int64) *LogContext {
	c := lc.Clone()
	if c != nil {
		c.FormsAppID, c.FormID = formsAppID, formID
	}
	return c
}

// WithTrace returns a copy carrying traceID.
func (lc *LogContext) WithTrace(traceID string) *LogContext {
	c := lc.Clone()
	if c != nil {
		c.TraceID = traceID
	}
	return c
}

// DurationMs is the time since StartTime in milliseconds.
func (lc *LogContext) DurationMs() float64 {
	if lc == nil || lc.StartTime.IsZero() {
		return 0
	}
	return Duration(lc.StartTime)
}

func (lc *LogContext) fields() []any {
	var f []any
	add := func(key string, v any, set bool) {
		if set {
			f = append(f, key, v)
		}
	}
	add(KeyTraceID, lc.TraceID, lc.TraceID != "")
	add(KeyOperation, lc.Operation, lc.Operation != "")
	add(KeyFormsAppID, lc.FormsAppID, lc.FormsAppID != 0)
	add(KeyFormID, lc.FormID, lc.FormID != 0)
	add(KeyUsername, lc.Username, lc.Username != "")
	return f
}

func appendContextFields(ctx context.Context, args []any) []any {
	lc := FromContext(ctx)
	if lc == nil {
		return args
	}
	return append(lc.fields(), args...)
}
