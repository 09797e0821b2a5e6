package sheets

import (
	"context"
	"time"

	"leadboard/internal/stats"
)

// Ports for outbound adapters.
type (
	// ReportWriter publishes monthly aggregates outside the application.
	// Each call replaces the whole content of the month's sheet.
	ReportWriter interface {
		WriteMonthlySummary(ctx context.Context, year int, month time.Month, rows []stats.ProjectMonth) error
		WriteBundleTable(ctx context.Context, year int, month time.Month, table stats.BundleTable) error
	}
)
