package logging

import (
	"context"
	"log/slog"
	"os"
	"strings"
)

type ctxKey int

const (
	queueIDKey ctxKey = iota
	batchIDKey
	itemIDKey
	sessionIDKey
)

// WithQueueID returns a context with the queue ID set.
func WithQueueID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, queueIDKey, id)
}

// WithBatchID returns a context with the batch ID set.
func WithBatchID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, batchIDKey, id)
}

// WithItemID returns a context with the queue item ID set.
func WithItemID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, itemIDKey, id)
}

// WithSessionID returns a context with the session ID set.
func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionIDKey, id)
}

// QueueID extracts the queue ID from the context, or "" if absent.
func QueueID(ctx context.Context) string {
	v, _ := ctx.Value(queueIDKey).(string)
	return v
}

// BatchID extracts the batch ID from the context, or "" if absent.
func BatchID(ctx context.Context) string {
	v, _ := ctx.Value(batchIDKey).(string)
	return v
}

// ItemID extracts the queue item ID from the context, or 0 if absent.
func ItemID(ctx context.Context) int64 {
	v, _ := ctx.Value(itemIDKey).(int64)
	return v
}

// SessionID extracts the session ID from the context, or "" if absent.
func SessionID(ctx context.Context) string {
	v, _ := ctx.Value(sessionIDKey).(string)
	return v
}

// WithRun sets all execution correlation IDs on the context at once.
func WithRun(ctx context.Context, queueID, batchID string, itemID int64, sessionID string) context.Context {
	ctx = WithQueueID(ctx, queueID)
	ctx = WithBatchID(ctx, batchID)
	ctx = WithItemID(ctx, itemID)
	ctx = WithSessionID(ctx, sessionID)
	return ctx
}

// LogWith returns a logger enriched with correlation IDs from the context.
// Only non-zero values are added as attributes.
func LogWith(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if qID := QueueID(ctx); qID != "" {
		logger = logger.With(slog.String("queue_id", qID))
	}
	if bID := BatchID(ctx); bID != "" {
		logger = logger.With(slog.String("batch_id", bID))
	}
	if iID := ItemID(ctx); iID != 0 {
		logger = logger.With(slog.Int64("item_id", iID))
	}
	if sID := SessionID(ctx); sID != "" {
		logger = logger.With(slog.String("session_id", sID))
	}
	return logger
}

// CorrelationHandler wraps an slog.Handler, automatically injecting
// correlation IDs from the context into every log record.
// Use with slog.New(NewCorrelationHandler(inner)) so callers can use
// logger.InfoContext(ctx, ...) and IDs appear automatically.
type CorrelationHandler struct {
	inner slog.Handler
}

// NewCorrelationHandler wraps the given handler with automatic correlation ID injection.
func NewCorrelationHandler(inner slog.Handler) *CorrelationHandler {
	return &CorrelationHandler{inner: inner}
}

func (h *CorrelationHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *CorrelationHandler) Handle(ctx context.Context, r slog.Record) error {
	if v := QueueID(ctx); v != "" {
		r.AddAttrs(slog.String("queue_id", v))
	}
	if v := BatchID(ctx); v != "" {
		r.AddAttrs(slog.String("batch_id", v))
	}
	if v := ItemID(ctx); v != 0 {
		r.AddAttrs(slog.Int64("item_id", v))
	}
	if v := SessionID(ctx); v != "" {
		r.AddAttrs(slog.String("session_id", v))
	}
	return h.inner.Handle(ctx, r)
}

func (h *CorrelationHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &CorrelationHandler{inner: h.inner.WithAttrs(attrs)}
}

func (h *CorrelationHandler) WithGroup(name string) slog.Handler {
	return &CorrelationHandler{inner: h.inner.WithGroup(name)}
}

// Setup builds the root logger: text or JSON output on stderr at the given
// level, with correlation injection. The result is installed as slog.Default.
func Setup(level string, jsonOutput bool) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var inner slog.Handler
	if jsonOutput {
		inner = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		inner = slog.NewTextHandler(os.Stderr, opts)
	}

	logger := slog.New(NewCorrelationHandler(inner))
	slog.SetDefault(logger)
	return logger
}
