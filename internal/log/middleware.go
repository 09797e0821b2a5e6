package log

import (
	"context"
	"log/slog"
	"net/http"
)

type loggerKey struct{}

// NewContext returns a copy of ctx carrying logger.
func NewContext(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext returns the request logger, or one over slog.Default when the
// context carries none.
func FromContext(ctx context.Context) *Logger {
	if logger, ok := ctx.Value(loggerKey{}).(*Logger); ok {
		return logger
	}
	def := slog.Default()
	return &Logger{Logger: def, base: def, component: "unknown"}
}

// Middleware puts logger into every request context.
func Middleware(logger *Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(NewContext(r.Context(), logger)))
		})
	}
}

// RequestIDMiddleware tags the request logger with the id returned by
// requestID. It must run after the middleware that assigns the id.
func RequestIDMiddleware(requestID func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			tagged := FromContext(ctx).With(FieldRequestID, requestID(r))
			next.ServeHTTP(w, r.WithContext(NewContext(ctx, tagged)))
		})
	}
}

// LogMutation records an applied document edit.
func LogMutation(ctx context.Context, op, owner, projectID string, rev uint64) {
	attrs := NewFields().WithOperation(op).WithProject(owner, projectID).WithRevision(rev).ToSlice()
	FromContext(ctx).InfoContext(ctx, "Document edited", attrs...)
}

func LogError(ctx context.Context, msg string, err error, operation string) {
	attrs := NewFields().WithError(err).WithOperation(operation).ToSlice()
	FromContext(ctx).ErrorContext(ctx, msg, attrs...)
}
