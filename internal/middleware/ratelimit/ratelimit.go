// Package ratelimit bounds how many edits one client may send per minute.
package ratelimit

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

const (
	window  = time.Minute
	idleTTL = 10 * time.Minute
)

// Config holds rate limiter configuration
type Config struct {
	RequestsPerMinute int
	CleanupInterval   time.Duration
}

// DefaultConfig returns the limits used by the API. A lead grid is edited
// cell by cell, so the budget is generous.
func DefaultConfig() Config {
	return Config{
		RequestsPerMinute: 600,
		CleanupInterval:   5 * time.Minute,
	}
}

// counter is one client's fixed one-minute window.
type counter struct {
	start time.Time
	seen  time.Time
	n     int
}

// Limiter counts requests per client address.
type Limiter struct {
	limit int
	now   func() time.Time

	mu       sync.Mutex
	counters map[string]*counter
	rejected int64

	stop     chan struct{}
	stopOnce sync.Once
}

// NewLimiter starts a limiter; call Stop to end its sweeper.
func NewLimiter(config Config) *Limiter {
	def := DefaultConfig()
	if config.RequestsPerMinute <= 0 {
		config.RequestsPerMinute = def.RequestsPerMinute
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = def.CleanupInterval
	}

	l := &Limiter{
		limit:    config.RequestsPerMinute,
		now:      time.Now,
		counters: make(map[string]*counter),
		stop:     make(chan struct{}),
	}
	go l.sweepEvery(config.CleanupInterval)
	return l
}

// Allow records one request from client and reports whether it fits the
// client's current window.
func (l *Limiter) Allow(client string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	c, ok := l.counters[client]
	if !ok || now.Sub(c.start) >= window {
		c = &counter{start: now}
		l.counters[client] = c
	}
	c.seen = now
	c.n++
	if c.n > l.limit {
		atomic.AddInt64(&l.rejected, 1)
		return false
	}
	return true
}

func (l *Limiter) sweepEvery(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.sweep()
		case <-l.stop:
			return
		}
	}
}

// sweep forgets clients idle for longer than idleTTL.
func (l *Limiter) sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-idleTTL)
	for client, c := range l.counters {
		if c.seen.Before(cutoff) {
			delete(l.counters, client)
		}
	}
}

// Stop ends the sweeper. It is safe to call more than once.
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
}

// Metrics for monitoring rate limit performance
type Metrics struct {
	Rejected    int64 `json:"rejected"`
	ClientCount int64 `json:"clientCount"`
}

func (l *Limiter) GetMetrics() Metrics {
	l.mu.Lock()
	clients := int64(len(l.counters))
	l.mu.Unlock()
	return Metrics{
		Rejected:    atomic.LoadInt64(&l.rejected),
		ClientCount: clients,
	}
}

// Middleware rejects requests over the limit with 429. onLimit writes the
// body; nil means a plain-text message.
func (l *Limiter) Middleware(clientOf func(*http.Request) string, onLimit func(http.ResponseWriter, *http.Request)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if l.Allow(clientOf(r)) {
				next.ServeHTTP(w, r)
				return
			}
			w.Header().Set("Retry-After", "60")
			if onLimit != nil {
				onLimit(w, r)
				return
			}
			http.Error(w, "Rate limit exceeded. Please try again later.", http.StatusTooManyRequests)
		})
	}
}
