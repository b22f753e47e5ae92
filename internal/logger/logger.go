// Package logger is the process-wide structured logger. Records go through
// log/slog; text output uses ColorTextHandler, json output the slog JSON
// handler.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

// Config holds logger configuration
type Config struct {
	Level  string // DEBUG, INFO, WARN, ERROR
	Format string // text, json
	Output string // stdout, stderr, or file path
}

// state is swapped as a whole on reconfiguration so readers never see a
// handler paired with the wrong writer.
type state struct {
	out    io.Writer
	color  bool
	format string
	logger *slog.Logger
}

var (
	level slog.LevelVar

	mu  sync.RWMutex
	cur = state{out: os.Stderr, format: "text"}
)

func init() {
	level.Set(slog.LevelInfo)
	cur.color = isTerminal(os.Stderr)
	cur.logger = build(cur)
}

func build(s state) *slog.Logger {
	opts := &slog.HandlerOptions{Level: &level}
	if s.format == "json" {
		return slog.New(slog.NewJSONHandler(s.out, opts))
	}
	return slog.New(NewColorTextHandler(s.out, opts, s.color))
}

func update(fn func(*state)) {
	mu.Lock()
	defer mu.Unlock()
	fn(&cur)
	cur.logger = build(cur)
}

// Init applies cfg. Output can be "stdout", "stderr", or a file path. The
// SDK logs to stderr by default so command output on stdout stays machine
// readable.
func Init(cfg Config) error {
	var (
		w     io.Writer
		color bool
	)
	switch strings.ToLower(cfg.Output) {
	case "":
	case "stdout":
		w, color = os.Stdout, isTerminal(os.Stdout)
	case "stderr":
		w, color = os.Stderr, isTerminal(os.Stderr)
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("failed to open log file %q: %w", cfg.Output, err)
		}
		w = f
	}

	SetLevel(cfg.Level)
	update(func(s *state) {
		if w != nil {
			s.out, s.color = w, color
		}
		if f := normalizeFormat(cfg.Format); f != "" {
			s.format = f
		}
	})
	return nil
}

// InitWithWriter sends logs to w. Tests use it to capture output.
func InitWithWriter(w io.Writer, lvl, format string, enableColor bool) {
	SetLevel(lvl)
	update(func(s *state) {
		s.out, s.color = w, enableColor
		if f := normalizeFormat(format); f != "" {
			s.format = f
		}
	})
}

// ParseLevel maps DEBUG, INFO, WARN and ERROR, in any case, to slog levels.
func ParseLevel(s string) (slog.Level, bool) {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug, true
	case "INFO":
		return slog.LevelInfo, true
	case "WARN":
		return slog.LevelWarn, true
	case "ERROR":
		return slog.LevelError, true
	}
	return 0, false
}

// SetLevel sets the minimum log level. Unknown levels are ignored.
func SetLevel(s string) {
	if l, ok := ParseLevel(s); ok {
		level.Set(l)
	}
}

// CurrentLevel returns the minimum level being logged.
func CurrentLevel() slog.Level {
	return level.Level()
}

// SetFormat sets the output format (text or json)
func SetFormat(format string) {
	if f := normalizeFormat(format); f != "" {
		update(func(s *state) { s.format = f })
	}
}

func normalizeFormat(f string) string {
	switch f = strings.ToLower(f); f {
	case "text", "json":
		return f
	}
	return ""
}

func current() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return cur.logger
}

func log(ctx context.Context, l slog.Level, msg string, args []any) {
	if l < level.Level() {
		return
	}
	current().Log(ctx, l, msg, appendContextFields(ctx, args)...)
}

// Debug logs at debug level. Usage: Debug("message", "key1", value1)
func Debug(msg string, args ...any) { log(context.Background(), slog.LevelDebug, msg, args) }

// Info logs at info level.
func Info(msg string, args ...any) { log(context.Background(), slog.LevelInfo, msg, args) }

// Warn logs at warn level.
func Warn(msg string, args ...any) { log(context.Background(), slog.LevelWarn, msg, args) }

// Error logs at error level.
func Error(msg string, args ...any) { log(context.Background(), slog.LevelError, msg, args) }

// DebugCtx logs at debug level, prepending the LogContext fields in ctx.
func DebugCtx(ctx context.Context, msg string, args ...any) {
	log(ctx, slog.LevelDebug, msg, args)
}

// InfoCtx logs at info level with context fields.
func InfoCtx(ctx context.Context, msg string, args ...any) {
	log(ctx, slog.LevelInfo, msg, args)
}

// WarnCtx logs at warn level with context fields.
func WarnCtx(ctx context.Context, msg string, args ...any) {
	log(ctx, slog.LevelWarn, msg, args)
}

// ErrorCtx logs at error level with context fields.
func ErrorCtx(ctx context.Context, msg string, args ...any) {
	log(ctx, slog.LevelError, msg, args)
}

// With returns a new slog.Logger with additional attributes
func With(args ...any) *slog.Logger {
	return current().With(args...)
}

// Duration returns milliseconds elapsed since start.
func Duration(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000.0
}
