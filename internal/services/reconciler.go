package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"leadboard/internal/core"
	"leadboard/internal/store"
)

var (
	ErrNotLoaded = errors.New("document not loaded")
	ErrClosed    = errors.New("reconciler closed")
)

// ReconcilerConfig holds configuration for the reconciler
type ReconcilerConfig struct {
	// DebounceDelay is how long local edits settle before a write (default: 500ms)
	DebounceDelay time.Duration

	// Team seeds the document when the store has none
	Team core.TeamTemplate
}

// DefaultReconcilerConfig returns the defaults with the built-in roster
func DefaultReconcilerConfig() ReconcilerConfig {
	return ReconcilerConfig{
		DebounceDelay: 500 * time.Millisecond,
		Team:          core.DefaultTeam(),
	}
}

// Status is a point-in-time view of the reconciler flags.
type Status struct {
	Loaded      bool      `json:"loaded"`
	Syncing     bool      `json:"syncing"`
	Connected   bool      `json:"connected"`
	Pending     bool      `json:"pending"`
	Revision    uint64    `json:"revision"`
	TotalLeads  int       `json:"totalLeads"`
	LastSavedAt time.Time `json:"lastSavedAt"`
	// NextWriteAt is when the debounced write fires, nil when none is armed.
	NextWriteAt *time.Time `json:"nextWriteAt,omitempty"`
}

// Reconciler owns the in-memory copy of the shared document.
//
// Local mutations are applied immediately and persisted after a debounce.
// Remote snapshots are merged with local values winning per key and are
// dropped while one of our own writes is in flight, since they are its echo.
type Reconciler struct {
	store    store.Store
	logger   *slog.Logger
	clock    Clock
	config   ReconcilerConfig
	debounce *Debouncer

	mu          sync.Mutex
	doc         core.Document
	revision    uint64
	loaded      bool
	syncing     bool
	connected   bool
	dirty       bool
	flushQueued bool
	lastSavedAt time.Time

	// Lifecycle management
	running     bool
	closed      bool
	ctx         context.Context
	unsubscribe func()
	writes      sync.WaitGroup
}

// NewReconciler creates a reconciler over s. A nil clock means the wall clock.
func NewReconciler(s store.Store, clock Clock, logger *slog.Logger, config ReconcilerConfig) *Reconciler {
	if clock == nil {
		clock = SystemClock
	}
	if logger == nil {
		logger = slog.Default()
	}
	r := &Reconciler{
		store:  s,
		logger: logger,
		clock:  clock,
		config: config,
		ctx:    context.Background(),
	}
	r.debounce = NewDebouncer(clock, config.DebounceDelay, r.onTimer)
	return r
}

// Start loads the document and subscribes to remote changes. A load error is
// fatal and returned; a failing subscription only leaves the reconciler
// disconnected.
func (r *Reconciler) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("reconciler is already running")
	}
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	r.running = true
	r.ctx = context.WithoutCancel(ctx)
	r.mu.Unlock()

	if err := r.Load(ctx); err != nil {
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
		return err
	}

	unsubscribe, err := r.store.Subscribe(ctx, r.onRemote, r.SetConnected)
	if err != nil {
		r.logger.WarnContext(ctx, "Push channel unavailable, continuing offline", "error", err)
		r.SetConnected(false)
		return nil
	}
	r.mu.Lock()
	r.unsubscribe = unsubscribe
	r.mu.Unlock()
	return nil
}

// Load fetches the document once. When the store has none, or an empty one,
// the seed document is built from the team template and written back.
func (r *Reconciler) Load(ctx context.Context) error {
	doc, err := r.store.Load(ctx)
	switch {
	case errors.Is(err, store.ErrNotFound) || (err == nil && doc.IsEmpty()):
		doc = r.config.Team.NewSeedDocument()
		if err := r.store.Save(ctx, doc); err != nil {
			return fmt.Errorf("save seed document: %w", err)
		}
		r.logger.InfoContext(ctx, "Seeded new document",
			"members", len(doc.Members),
			"projects", doc.ProjectCount())
	case err != nil:
		return fmt.Errorf("load document: %w", err)
	default:
		r.logger.InfoContext(ctx, "Document loaded",
			"members", len(doc.Members),
			"total_leads", doc.TotalLeads())
	}

	r.mu.Lock()
	r.doc = doc
	r.revision++
	r.loaded = true
	r.mu.Unlock()
	return nil
}

// ApplyLocal applies m to the in-memory document and schedules a write.
// On error the document is left unchanged. After Close it fails with
// ErrClosed.
func (r *Reconciler) ApplyLocal(m core.Mutation) (uint64, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return 0, ErrClosed
	}
	next, err := m.Apply(r.doc)
	if err != nil {
		r.mu.Unlock()
		return 0, err
	}
	r.doc = next
	r.revision++
	r.dirty = true
	rev := r.revision
	r.mu.Unlock()

	r.debounce.Schedule()
	return rev, nil
}

// ApplyRemote merges a remote snapshot. It reports whether the snapshot was
// merged: snapshots arriving during our own write and invalid ones are
// dropped. A merge never schedules a write.
func (r *Reconciler) ApplyRemote(snapshot core.Document) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.syncing {
		r.logger.Debug("Remote snapshot ignored during write")
		return false
	}
	if err := snapshot.Validate(); err != nil {
		r.logger.Warn("Dropping malformed remote snapshot", "error", err)
		return false
	}
	r.doc = core.MergeLocalWins(r.doc, snapshot)
	r.revision++
	r.logger.Info("Remote snapshot merged",
		"revision", r.revision,
		"total_leads", r.doc.TotalLeads())
	return true
}

func (r *Reconciler) onRemote(snapshot core.Document) {
	r.ApplyRemote(snapshot)
}

// SetConnected records the push channel state. It never blocks editing.
func (r *Reconciler) SetConnected(connected bool) {
	r.mu.Lock()
	changed := r.connected != connected
	r.connected = connected
	r.mu.Unlock()
	if changed {
		r.logger.Info("Push channel status changed", "connected", connected)
	}
}

// Snapshot returns the current document and its revision. The document must
// be treated as read-only.
func (r *Reconciler) Snapshot() (core.Document, uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.doc, r.revision
}

// Document returns the current document, or ErrNotLoaded before the first
// successful load.
func (r *Reconciler) Document() (core.Document, uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.loaded {
		return core.Document{}, 0, ErrNotLoaded
	}
	return r.doc, r.revision, nil
}

func (r *Reconciler) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := Status{
		Loaded:      r.loaded,
		Syncing:     r.syncing,
		Connected:   r.connected,
		Pending:     r.dirty || r.debounce.Pending(),
		Revision:    r.revision,
		TotalLeads:  r.doc.TotalLeads(),
		LastSavedAt: r.lastSavedAt,
	}
	if due := r.debounce.Due(); !due.IsZero() {
		st.NextWriteAt = &due
	}
	return st
}

// FlushIfDue writes right away when a debounced write is pending and reports
// whether one was.
func (r *Reconciler) FlushIfDue(ctx context.Context) bool {
	if !r.debounce.Cancel() {
		return false
	}
	r.flush(ctx)
	return true
}

// Flush cancels any pending timer and writes the current document now,
// subject to the same guards as a debounced write.
func (r *Reconciler) Flush(ctx context.Context) {
	r.debounce.Cancel()
	r.flush(ctx)
}

func (r *Reconciler) onTimer() {
	r.mu.Lock()
	ctx := r.ctx
	r.mu.Unlock()
	r.flush(ctx)
}

// flush writes the current document unless the reconciler is closed.
func (r *Reconciler) flush(ctx context.Context) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		r.logger.DebugContext(ctx, "Write skipped: reconciler closed")
		return
	}
	r.writes.Add(1)
	r.mu.Unlock()
	defer r.writes.Done()
	r.write(ctx)
}

// write saves the current document. A write requested while another is in
// flight is queued and runs once that one settles.
func (r *Reconciler) write(ctx context.Context) {
	for {
		r.mu.Lock()
		if r.syncing {
			r.flushQueued = true
			r.mu.Unlock()
			return
		}
		if !r.loaded {
			r.mu.Unlock()
			r.logger.InfoContext(ctx, "Write skipped: document not loaded yet")
			return
		}
		leads := r.doc.TotalLeads()
		if leads == 0 {
			r.mu.Unlock()
			r.logger.InfoContext(ctx, "Write skipped: document has no lead activity")
			return
		}
		doc := r.doc
		rev := r.revision
		r.syncing = true
		r.dirty = false
		r.mu.Unlock()

		err := r.store.Save(ctx, doc)

		r.mu.Lock()
		r.syncing = false
		if err != nil {
			r.dirty = true
		} else {
			r.lastSavedAt = r.clock.Now()
		}
		again := r.flushQueued
		r.flushQueued = false
		r.mu.Unlock()

		if err != nil {
			r.logger.WarnContext(ctx, "Document write failed", "error", err, "revision", rev)
		} else {
			r.logger.InfoContext(ctx, "Document saved", "revision", rev, "total_leads", leads)
		}
		if !again {
			return
		}
	}
}

// Close stops accepting edits, writes any pending change, unsubscribes and
// waits for in-flight writes to settle. Later edits fail with ErrClosed.
func (r *Reconciler) Close(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = false
	r.closed = true
	// Adds only happen under mu before closed is set, so all of them
	// precede the Wait below.
	r.writes.Add(1)
	unsubscribe := r.unsubscribe
	r.unsubscribe = nil
	r.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	pending := r.debounce.Cancel()
	r.mu.Lock()
	dirty := r.dirty
	r.mu.Unlock()
	if pending || dirty {
		r.write(ctx)
	}
	r.writes.Done()

	done := make(chan struct{})
	go func() {
		r.writes.Wait()
		close(done)
	}()
	select {
	case <-done:
		r.logger.InfoContext(ctx, "Reconciler stopped gracefully")
		return nil
	case <-ctx.Done():
		r.logger.WarnContext(ctx, "Reconciler stop timed out")
		return ctx.Err()
	}
}
