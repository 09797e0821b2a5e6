package sheets

import (
	"fmt"
	"math"
	"time"

	"leadboard/internal/stats"
)

const (
	KindLeads   = "Leads"
	KindBundles = "Bundles"
)

// SheetTitle names the sheet of a month, e.g. "2026-01 Leads".
func SheetTitle(year int, month time.Month, kind string) string {
	return fmt.Sprintf("%04d-%02d %s", year, int(month), kind)
}

// SummaryGrid lays out the monthly summary as sheet rows, header first.
func SummaryGrid(rows []stats.ProjectMonth) [][]any {
	grid := make([][]any, 0, len(rows)+1)
	grid = append(grid, []any{"Owner", "Project", "Leads", "Goal", "%", "Budget", "Spend", "CPA", "Target CPA"})
	for _, r := range rows {
		grid = append(grid, []any{
			r.Owner,
			r.ProjectName,
			r.Leads,
			r.Goal,
			round2(r.Percent),
			r.Budget,
			r.Spend,
			round2(r.ActualCPA),
			round2(r.AvgTargetCPA),
		})
	}
	return grid
}

// BundleGrid lays out the bundle cross table: one column per member, a
// total column and a totals row.
func BundleGrid(t stats.BundleTable) [][]any {
	header := make([]any, 0, len(t.Members)+2)
	header = append(header, "Bundle")
	for _, m := range t.Members {
		header = append(header, m)
	}
	header = append(header, "Total")

	grid := [][]any{header}
	for _, r := range t.Rows {
		row := make([]any, 0, len(header))
		row = append(row, r.Bundle)
		for _, m := range t.Members {
			row = append(row, r.ByMember[m])
		}
		row = append(row, r.Total)
		grid = append(grid, row)
	}

	totals := make([]any, 0, len(header))
	totals = append(totals, "Total")
	for _, m := range t.Members {
		totals = append(totals, t.MemberTotals[m])
	}
	totals = append(totals, t.GrandTotal)
	return append(grid, totals)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
