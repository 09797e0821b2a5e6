package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"leadboard/internal/sheets"
	"leadboard/internal/stats"
	"leadboard/internal/storage"
	"leadboard/internal/store"
)

// RunRecorder keeps the history of export runs.
type RunRecorder interface {
	RecordExport(ctx context.Context, run storage.ExportRun) error
}

// ExportWorker copies monthly aggregates of the shared document to a
// report writer.
type ExportWorker struct {
	loader store.Loader
	writer sheets.ReportWriter
	runs   RunRecorder
	logger *slog.Logger
	now    func() time.Time
}

// NewExportWorker creates a worker. runs may be nil.
func NewExportWorker(loader store.Loader, writer sheets.ReportWriter, runs RunRecorder, logger *slog.Logger) *ExportWorker {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExportWorker{
		loader: loader,
		writer: writer,
		runs:   runs,
		logger: logger,
		now:    time.Now,
	}
}

// ExportMonth writes the project summary and the bundle table of a month.
// Both are attempted; the first error is returned.
func (w *ExportWorker) ExportMonth(ctx context.Context, year int, month time.Month) error {
	doc, err := w.loader.Load(ctx)
	if errors.Is(err, store.ErrNotFound) {
		w.logger.InfoContext(ctx, "Export skipped: no document yet")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load document: %w", err)
	}

	period := fmt.Sprintf("%04d-%02d", year, int(month))

	rows, err := stats.MonthlyProjects(doc, year, month, stats.DefaultSort)
	if err == nil {
		err = w.writer.WriteMonthlySummary(ctx, year, month, rows)
	}
	summaryErr := w.record(ctx, sheets.KindLeads, period, len(rows), err)

	table, err := stats.MonthlyBundles(doc, year, month)
	if err == nil {
		err = w.writer.WriteBundleTable(ctx, year, month, table)
	}
	bundleErr := w.record(ctx, sheets.KindBundles, period, len(table.Rows), err)

	if summaryErr != nil {
		return summaryErr
	}
	return bundleErr
}

// ExportCurrent exports the current month. During the first days of a month
// the previous month is exported too so late edits reach the report.
func (w *ExportWorker) ExportCurrent(ctx context.Context) error {
	now := w.now()
	err := w.ExportMonth(ctx, now.Year(), now.Month())
	if now.Day() <= 3 {
		prev := now.AddDate(0, 0, -now.Day())
		if perr := w.ExportMonth(ctx, prev.Year(), prev.Month()); err == nil {
			err = perr
		}
	}
	return err
}

func (w *ExportWorker) record(ctx context.Context, kind, period string, rows int, exportErr error) error {
	run := storage.ExportRun{
		Kind:       kind,
		Period:     period,
		Rows:       rows,
		FinishedAt: w.now(),
	}
	if exportErr != nil {
		run.Error = exportErr.Error()
		w.logger.ErrorContext(ctx, "Export failed", "kind", kind, "period", period, "error", exportErr)
	} else {
		w.logger.InfoContext(ctx, "Export completed", "kind", kind, "period", period, "rows", rows)
	}

	if w.runs != nil {
		if err := w.runs.RecordExport(ctx, run); err != nil {
			w.logger.WarnContext(ctx, "Failed to record export run", "error", err)
		}
	}
	if exportErr != nil {
		return fmt.Errorf("export %s %s: %w", kind, period, exportErr)
	}
	return nil
}

// Run exports on the cron schedule until ctx is done. A run still in
// progress when ctx ends is waited for.
func (w *ExportWorker) Run(ctx context.Context, schedule string) error {
	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		if err := w.ExportCurrent(ctx); err != nil {
			w.logger.ErrorContext(ctx, "Scheduled export failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid export schedule %q: %w", schedule, err)
	}

	c.Start()
	w.logger.InfoContext(ctx, "Export scheduler started", "schedule", schedule)

	<-ctx.Done()
	<-c.Stop().Done()
	w.logger.InfoContext(ctx, "Export scheduler stopped")
	return nil
}
