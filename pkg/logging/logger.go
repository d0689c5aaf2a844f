package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"slices"
	"sync/atomic"
)

// contextKey is a type for context keys to avoid collisions
type contextKey string

const (
	requestIDKey contextKey = "requestID"
	frameIDKey   contextKey = "frameID"
)

// LevelTrace is below debug and only used for per-edge graph chatter.
const LevelTrace = slog.LevelDebug - 4

// current holds the active handler. Component loggers created by New
// resolve it on every record so SetLevel and SetJSONOutput reach them too.
var current atomic.Pointer[slog.Handler]

var logger *slog.Logger

func init() {
	// Initialize with compact handler for readable console output
	setHandler(NewCompactHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	logger = slog.New(&switchHandler{})
}

func setHandler(h slog.Handler) {
	current.Store(&h)
}

// SetLevel changes the logging level
func SetLevel(level slog.Level) {
	SetOutput(os.Stdout, level)
}

// SetOutput switches to the compact handler writing to w.
func SetOutput(w io.Writer, level slog.Level) {
	setHandler(NewCompactHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}

// SetJSONOutput switches to JSON format output
func SetJSONOutput(level slog.Level) {
	setHandler(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
}

// Discard silences all output. Used by tests that exercise failure paths.
func Discard() {
	setHandler(NewCompactHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

// ParseLevel maps a verbosity name and a -v count to a slog level.
// An explicit name wins; otherwise each -v lowers the level by one step.
func ParseLevel(name string, verbose int) slog.Level {
	switch name {
	case "trace":
		return LevelTrace
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	switch {
	case verbose >= 2:
		return LevelTrace
	case verbose == 1:
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}

// New returns a logger tagged with a component name, e.g. "framegraph".
func New(component string) *slog.Logger {
	return logger.With("component", component)
}

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// GetRequestID retrieves the request ID from context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(requestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// WithFrameID tags the context with the frame being built or executed.
func WithFrameID(ctx context.Context, frameID string) context.Context {
	return context.WithValue(ctx, frameIDKey, frameID)
}

// GetFrameID retrieves the frame ID from context
func GetFrameID(ctx context.Context) string {
	if frameID, ok := ctx.Value(frameIDKey).(string); ok {
		return frameID
	}
	return ""
}

// Helper function to add correlation IDs to log attributes if present
func withIDs(ctx context.Context, args []any) []any {
	if frameID := GetFrameID(ctx); frameID != "" {
		args = append([]any{"frameID", frameID}, args...)
	}
	if requestID := GetRequestID(ctx); requestID != "" {
		args = append([]any{"requestID", requestID}, args...)
	}
	return args
}

// Trace logs at TRACE level (very verbose, debug-time only)
func Trace(msg string, args ...any) {
	logger.Log(context.Background(), LevelTrace, msg, args...)
}

// TraceContext logs at TRACE level with context
func TraceContext(ctx context.Context, msg string, args ...any) {
	logger.Log(ctx, LevelTrace, msg, withIDs(ctx, args)...)
}

// Debug logs at DEBUG level (internal component behavior)
func Debug(msg string, args ...any) {
	logger.Debug(msg, args...)
}

// DebugContext logs at DEBUG level with context
func DebugContext(ctx context.Context, msg string, args ...any) {
	logger.DebugContext(ctx, msg, withIDs(ctx, args)...)
}

// Info logs at INFO level (user-facing operations)
func Info(msg string, args ...any) {
	logger.Info(msg, args...)
}

// InfoContext logs at INFO level with context
func InfoContext(ctx context.Context, msg string, args ...any) {
	logger.InfoContext(ctx, msg, withIDs(ctx, args)...)
}

// Warn logs at WARN level (should be monitored)
func Warn(msg string, args ...any) {
	logger.Warn(msg, args...)
}

// WarnContext logs at WARN level with context
func WarnContext(ctx context.Context, msg string, args ...any) {
	logger.WarnContext(ctx, msg, withIDs(ctx, args)...)
}

// Error logs at ERROR level (logical bugs that shouldn't happen)
func Error(msg string, args ...any) {
	logger.Error(msg, args...)
}

// ErrorContext logs at ERROR level with context
func ErrorContext(ctx context.Context, msg string, args ...any) {
	logger.ErrorContext(ctx, msg, withIDs(ctx, args)...)
}

// Fatal logs at ERROR level and exits (unrecoverable bugs)
func Fatal(msg string, args ...any) {
	logger.Error(msg, args...)
	os.Exit(1)
}

// switchHandler forwards to whatever handler is current at Handle time.
// Attributes and groups are replayed in the order they were added.
type switchHandler struct {
	ops []handlerOp
}

// handlerOp is one WithAttrs or WithGroup call.
type handlerOp struct {
	attrs []slog.Attr
	group string
}

func (h *switchHandler) resolve() slog.Handler {
	hh := *current.Load()
	for _, op := range h.ops {
		if op.group != "" {
			hh = hh.WithGroup(op.group)
			continue
		}
		hh = hh.WithAttrs(op.attrs)
	}
	return hh
}

func (h *switchHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return (*current.Load()).Enabled(ctx, level)
}

func (h *switchHandler) Handle(ctx context.Context, r slog.Record) error {
	return h.resolve().Handle(ctx, r)
}

func (h *switchHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	return &switchHandler{ops: append(slices.Clip(h.ops), handlerOp{attrs: attrs})}
}

func (h *switchHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &switchHandler{ops: append(slices.Clip(h.ops), handlerOp{group: name})}
}
