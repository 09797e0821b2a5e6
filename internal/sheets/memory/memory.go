// Package memory keeps exported sheets in process. It backs the exporter
// when no spreadsheet is configured and serves as its test double.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"leadboard/internal/sheets"
	"leadboard/internal/stats"
)

type Writer struct {
	mu     sync.Mutex
	sheets map[string][][]any
	writes int
}

var _ sheets.ReportWriter = (*Writer)(nil)

func New() *Writer {
	return &Writer{sheets: map[string][][]any{}}
}

func (w *Writer) WriteMonthlySummary(ctx context.Context, year int, month time.Month, rows []stats.ProjectMonth) error {
	return w.put(ctx, sheets.SheetTitle(year, month, sheets.KindLeads), sheets.SummaryGrid(rows))
}

func (w *Writer) WriteBundleTable(ctx context.Context, year int, month time.Month, table stats.BundleTable) error {
	return w.put(ctx, sheets.SheetTitle(year, month, sheets.KindBundles), sheets.BundleGrid(table))
}

func (w *Writer) put(ctx context.Context, title string, grid [][]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.sheets[title] = grid
	w.writes++
	return nil
}

// Sheet returns the rows last written to title.
func (w *Writer) Sheet(title string) ([][]any, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	grid, ok := w.sheets[title]
	return grid, ok
}

// Titles lists the written sheets in name order.
func (w *Writer) Titles() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, 0, len(w.sheets))
	for t := range w.sheets {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func (w *Writer) Writes() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.writes
}
