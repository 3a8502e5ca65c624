package logger

import (
	"context"
	"io"
	"log/slog"
)

type logger struct {
	log     *slog.Logger
	traceID func(ctx context.Context) string
}

func (l logger) Debug(ctx context.Context, msg string, meta map[string]string) {
	args := []any{"meta", meta}
	if id := l.traceID(ctx); id != "" {
		args = append(args, "traceId", id)
	}
	l.log.DebugContext(ctx, msg, args...)
}

func (l logger) Error(ctx context.Context, err error) {
	var args []any
	if id := l.traceID(ctx); id != "" {
		args = append(args, "traceId", id)
	}
	l.log.ErrorContext(ctx, err.Error(), args...)
}

// New returns a slog JSON logger that includes the message trace ID, looked
// up via traceID, on every line it writes.
func New(w io.Writer, traceID func(ctx context.Context) string) *logger {
	// LevelDebug is set by default as the engine has a debug configuration.
	opts := slog.HandlerOptions{
		Level: slog.LevelDebug,
	}
	sl := slog.New(slog.NewJSONHandler(w, &opts))
	return &logger{
		log:     sl,
		traceID: traceID,
	}
}
