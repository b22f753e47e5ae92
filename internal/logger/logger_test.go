package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureOutput redirects logger output to a buffer for testing.
func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()
	buf := new(bytes.Buffer)

	mu.RLock()
	originalOutput := cur.out
	originalColor := cur.color
	originalFormat := cur.format
	mu.RUnlock()
	originalLevel := CurrentLevel()

	InitWithWriter(buf, "", "", false)

	t.Cleanup(func() {
		InitWithWriter(originalOutput, originalLevel.String(), originalFormat, originalColor)
	})
	return buf
}

func TestLevelFiltering(t *testing.T) {
	t.Run("DebugLevelShowsAllMessages", func(t *testing.T) {
		buf := captureOutput(t)
		SetLevel("DEBUG")

		Debug("debug message")
		Info("info message")
		Warn("warn message")
		Error("error message")

		out := buf.String()
		for _, want := range []string{"DEBUG", "INFO", "WARN", "ERROR", "debug message", "error message"} {
			assert.Contains(t, out, want)
		}
	})

	t.Run("WarnLevelFiltersDebugAndInfo", func(t *testing.T) {
		buf := captureOutput(t)
		SetLevel("WARN")

		Debug("debug message")
		Info("info message")
		Warn("warn message")

		out := buf.String()
		assert.NotContains(t, out, "debug message")
		assert.NotContains(t, out, "info message")
		assert.Contains(t, out, "warn message")
	})

	t.Run("ErrorAlwaysLogged", func(t *testing.T) {
		buf := captureOutput(t)
		SetLevel("ERROR")

		Warn("warn message")
		Error("error message")

		assert.NotContains(t, buf.String(), "warn message")
		assert.Contains(t, buf.String(), "error message")
	})
}

func TestSetLevelIgnoresUnknown(t *testing.T) {
	captureOutput(t)
	SetLevel("INFO")
	SetLevel("VERBOSE")
	assert.Equal(t, slog.LevelInfo, CurrentLevel())
}

func TestTextFormatting(t *testing.T) {
	buf := captureOutput(t)
	SetLevel("INFO")

	Info("pending submission queued", KeyFormID, int64(12), KeyPendingTimestamp, "2024-01-01T00:00:00Z", Err(errors.New("boom here")))

	line := buf.String()
	assert.Contains(t, line, "[INFO] pending submission queued")
	assert.Contains(t, line, "form_id=12")
	assert.Contains(t, line, "pending_timestamp=2024-01-01T00:00:00Z")
	assert.Contains(t, line, `error="boom here"`)
}

func TestTextFormattingSkipsNilError(t *testing.T) {
	buf := captureOutput(t)
	SetLevel("INFO")

	Info("ok", Err(nil))

	assert.NotContains(t, buf.String(), "error=")
}

func TestTextFormattingGroups(t *testing.T) {
	buf := captureOutput(t)
	SetLevel("INFO")

	With(KeyOperation, "upload").WithGroup("s3").Info("put", "bucket", "b1", slog.Group("part", "number", 2))

	line := buf.String()
	assert.Contains(t, line, "operation=upload")
	assert.Contains(t, line, "s3.bucket=b1")
	assert.Contains(t, line, "s3.part.number=2")
}

func TestJSONFormat(t *testing.T) {
	buf := captureOutput(t)
	SetLevel("INFO")
	SetFormat("json")

	Info("draft synced", KeyDraftID, "d-1", KeyCount, 3)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "draft synced", entry["msg"])
	assert.Equal(t, "d-1", entry[KeyDraftID])
	assert.EqualValues(t, 3, entry[KeyCount])
}

func TestContextLogging(t *testing.T) {
	buf := captureOutput(t)
	SetLevel("DEBUG")

	lc := NewLogContext("submit").WithForm(7, 42).WithTrace("abc123")
	ctx := WithContext(context.Background(), lc)

	InfoCtx(ctx, "submitting")

	line := buf.String()
	assert.Contains(t, line, "trace_id=abc123")
	assert.Contains(t, line, "operation=submit")
	assert.Contains(t, line, "forms_app_id=7")
	assert.Contains(t, line, "form_id=42")
}

func TestContextLoggingWithoutLogContext(t *testing.T) {
	buf := captureOutput(t)
	SetLevel("DEBUG")

	DebugCtx(context.Background(), "plain", "k", "v")

	assert.Contains(t, buf.String(), "plain k=v")
}

func TestLogContextClone(t *testing.T) {
	lc := NewLogContext("sync_drafts")
	withForm := lc.WithForm(1, 2)

	assert.Zero(t, lc.FormID)
	assert.Equal(t, int64(2), withForm.FormID)
	assert.Equal(t, "sync_drafts", withForm.Operation)

	var nilCtx *LogContext
	assert.Nil(t, nilCtx.Clone())
	assert.Zero(t, nilCtx.DurationMs())
}

func TestConcurrentLogging(t *testing.T) {
	buf := captureOutput(t)
	SetLevel("INFO")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			Info("concurrent", KeyAttempt, n)
		}(i)
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, 20)
}

func TestParseLevel(t *testing.T) {
	l, ok := ParseLevel("debug")
	assert.True(t, ok)
	assert.Equal(t, slog.LevelDebug, l)

	l, ok = ParseLevel("ERROR")
	assert.True(t, ok)
	assert.Equal(t, slog.LevelError, l)

	_, ok = ParseLevel("TRACE")
	assert.False(t, ok)
}
