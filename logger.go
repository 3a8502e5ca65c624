package engine

import "context"

// Logger receives the engine's dispatch diagnostics. Implementations should
// pull the trace ID from ctx (see TraceIDFromContext) so log lines can be
// correlated with the message that produced them.
type Logger interface {
	// Debug records handler progress when debug logging is enabled.
	Debug(ctx context.Context, msg string, meta MKV)
	// Error records a handler or dispatch failure.
	Error(ctx context.Context, err error)
}

// MKV is a multiple key value store for the logger to format into its output.
// It is an alias so implementations outside this package can satisfy Logger
// without importing it.
type MKV = map[string]string
