package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"leadboard/internal/core"
	"leadboard/internal/store"

	_ "modernc.org/sqlite"
)

const timeLayout = time.RFC3339Nano

// SQLiteRepository persists the shared document as JSON text in the
// reports table, keyed by a fixed document id.
type SQLiteRepository struct {
	db         *sql.DB
	documentID string
	now        func() time.Time
}

func NewSQLiteRepository(dbPath, documentID string) (*SQLiteRepository, error) {
	if documentID == "" {
		documentID = core.DefaultDocumentID
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// Run migrations
	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db, documentID: documentID, now: time.Now}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// DocumentID returns the key the document is stored under.
func (r *SQLiteRepository) DocumentID() string {
	return r.documentID
}

// Load implements store.Loader
func (r *SQLiteRepository) Load(ctx context.Context) (core.Document, error) {
	var data string
	err := r.db.QueryRowContext(ctx,
		`SELECT data FROM reports WHERE id = ?`, r.documentID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Document{}, store.ErrNotFound
	}
	if err != nil {
		return core.Document{}, fmt.Errorf("select report: %w", err)
	}

	doc, err := core.DecodeDocument([]byte(data))
	if err != nil {
		return core.Document{}, fmt.Errorf("decode report %s: %w", r.documentID, err)
	}
	return doc, nil
}

// Save implements store.Saver
func (r *SQLiteRepository) Save(ctx context.Context, doc core.Document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO reports (id, data, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		r.documentID, string(data), r.now().UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("upsert report: %w", err)
	}

	slog.InfoContext(ctx, "Document saved to SQLite",
		"id", r.documentID,
		"bytes", len(data),
		"total_leads", doc.TotalLeads())
	return nil
}

// UpdatedAt returns when the document was last written.
func (r *SQLiteRepository) UpdatedAt(ctx context.Context) (time.Time, error) {
	var raw string
	err := r.db.QueryRowContext(ctx,
		`SELECT updated_at FROM reports WHERE id = ?`, r.documentID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, store.ErrNotFound
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("select report timestamp: %w", err)
	}
	return time.Parse(timeLayout, raw)
}

// ExportRun records one exporter job.
type ExportRun struct {
	ID         int64
	Kind       string
	Period     string
	Rows       int
	Error      string
	FinishedAt time.Time
}

// RecordExport stores the outcome of an export.
func (r *SQLiteRepository) RecordExport(ctx context.Context, run ExportRun) error {
	if run.FinishedAt.IsZero() {
		run.FinishedAt = r.now()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO export_runs (kind, period, rows, error, finished_at) VALUES (?, ?, ?, ?, ?)`,
		run.Kind, run.Period, run.Rows, run.Error, run.FinishedAt.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("insert export run: %w", err)
	}
	return nil
}

// LastExport returns the latest run of kind for period.
func (r *SQLiteRepository) LastExport(ctx context.Context, kind, period string) (ExportRun, error) {
	var run ExportRun
	var finished string
	err := r.db.QueryRowContext(ctx, `
		SELECT id, kind, period, rows, error, finished_at FROM export_runs
		WHERE kind = ? AND period = ? ORDER BY id DESC LIMIT 1`, kind, period).
		Scan(&run.ID, &run.Kind, &run.Period, &run.Rows, &run.Error, &finished)
	if errors.Is(err, sql.ErrNoRows) {
		return ExportRun{}, store.ErrNotFound
	}
	if err != nil {
		return ExportRun{}, fmt.Errorf("select export run: %w", err)
	}
	run.FinishedAt, err = time.Parse(timeLayout, finished)
	if err != nil {
		return ExportRun{}, fmt.Errorf("parse export time: %w", err)
	}
	return run, nil
}
