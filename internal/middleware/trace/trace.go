// Package trace tags every HTTP request with an id and logs its start and
// completion.
package trace

import (
	"context"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"leadboard/internal/log"
)

// RequestIDHeader carries the id back to the client.
const RequestIDHeader = "X-Request-ID"

type requestIDKey struct{}

// Metrics is a snapshot of the request counters.
type Metrics struct {
	TotalRequests    int64 `json:"totalRequests"`
	ServerErrors     int64 `json:"serverErrors"`
	LastResponseTime int64 `json:"lastResponseMicros"`
}

// Middleware assigns request ids and logs each request.
type Middleware struct {
	clientIP func(*http.Request) string

	total   atomic.Int64
	errors  atomic.Int64
	lastDur atomic.Int64
}

// NewMiddleware returns a tracer. clientIP may be nil.
func NewMiddleware(clientIP func(*http.Request) string) *Middleware {
	return &Middleware{clientIP: clientIP}
}

// Middleware keeps an incoming X-Request-ID or generates one, echoes it in
// the response and logs the outcome at a level chosen by status.
func (m *Middleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		m.total.Add(1)

		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = GenerateRequestID()
		}
		w.Header().Set(RequestIDHeader, id)

		ctx := context.WithValue(r.Context(), requestIDKey{}, id)
		r = r.WithContext(ctx)
		logger := log.FromContext(ctx)

		fields := log.NewFields().WithRequestID(id).WithHTTPRequest(r.Method, r.URL.Path, r.URL.RawQuery)
		if m.clientIP != nil {
			fields[log.FieldClientIP] = m.clientIP(r)
		}
		logger.DebugContext(ctx, "HTTP request started", fields.ToSlice()...)

		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		elapsed := time.Since(start)
		m.lastDur.Store(elapsed.Microseconds())
		if sw.status >= http.StatusInternalServerError {
			m.errors.Add(1)
		}
		fields = fields.WithHTTPResponse(sw.status, elapsed.Milliseconds())
		logger.Log(ctx, levelFor(sw.status), "HTTP request completed", fields.ToSlice()...)
	})
}

func levelFor(status int) slog.Level {
	switch {
	case status >= 500:
		return slog.LevelError
	case status >= 400:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func GenerateRequestID() string {
	return "req_" + uuid.NewString()
}

// GetRequestID returns the id assigned by the middleware, or "".
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func (m *Middleware) GetMetrics() Metrics {
	return Metrics{
		TotalRequests:    m.total.Load(),
		ServerErrors:     m.errors.Load(),
		LastResponseTime: m.lastDur.Load(),
	}
}
