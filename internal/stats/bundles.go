package stats

import (
	"sort"
	"strings"
	"time"

	"leadboard/internal/core"
)

// MonthlyBundleLimit caps the monthly bundle table.
const MonthlyBundleLimit = 15

// Period is the span bundles are resolved for: the Mondays whose week rows
// are read and the days whose leads tell whether the project was active.
type Period struct {
	Weeks []string
	Days  []string
}

func WeekPeriod(weekStart string, days []string) Period {
	return Period{Weeks: []string{weekStart}, Days: days}
}

func MonthPeriod(year int, month time.Month) Period {
	return Period{Weeks: core.MondaysInMonth(year, month), Days: core.MonthDays(year, month)}
}

// ResolveBundles returns the bundle entries that count for a project in a
// period. Week-scoped entries win. The legacy project-level list is used
// only when the period has no week-scoped entry at all and the project
// recorded at least one positive lead in the period.
func ResolveBundles(p core.Project, period Period) []core.BundleEntry {
	var scoped []core.BundleEntry
	for _, w := range period.Weeks {
		if ws, ok := p.Weeks[w]; ok {
			scoped = append(scoped, ws.Bundles...)
		}
	}
	if len(scoped) > 0 {
		return scoped
	}
	if len(p.Bundles) == 0 || !activeIn(p, period.Days) {
		return nil
	}
	out := make([]core.BundleEntry, len(p.Bundles))
	copy(out, p.Bundles)
	return out
}

func activeIn(p core.Project, days []string) bool {
	for _, d := range days {
		if n, ok := p.Leads.At(d).Count(); ok && n > 0 {
			return true
		}
	}
	return false
}

type (
	// BundleRow is one bundle name with its spend per member.
	BundleRow struct {
		Bundle   string             `json:"bundle"`
		ByMember map[string]float64 `json:"byMember"`
		Total    float64            `json:"total"`
	}

	// BundleTable cross-tabulates bundle spend: bundle rows by member columns.
	BundleTable struct {
		Members      []string           `json:"members"`
		Rows         []BundleRow        `json:"rows"`
		MemberTotals map[string]float64 `json:"memberTotals"`
		GrandTotal   float64            `json:"grandTotal"`
	}
)

// WeeklyBundles builds the bundle table for one week.
func WeeklyBundles(d core.Document, weekStart string) (BundleTable, error) {
	days, err := core.WeekDayKeys(weekStart)
	if err != nil {
		return BundleTable{}, err
	}
	return bundleTable(d, WeekPeriod(weekStart, days), 0), nil
}

// MonthlyBundles builds the bundle table over the Mondays of a month,
// keeping the MonthlyBundleLimit largest rows.
func MonthlyBundles(d core.Document, year int, month time.Month) (BundleTable, error) {
	if err := monthRange(year, month); err != nil {
		return BundleTable{}, err
	}
	return bundleTable(d, MonthPeriod(year, month), MonthlyBundleLimit), nil
}

func bundleTable(d core.Document, period Period, limit int) BundleTable {
	table := BundleTable{
		Members:      make([]string, 0, len(d.Members)),
		Rows:         []BundleRow{},
		MemberTotals: make(map[string]float64, len(d.Members)),
	}
	index := make(map[string]int)

	for _, m := range d.Members {
		table.Members = append(table.Members, m.Name)
		table.MemberTotals[m.Name] = 0
		for _, p := range m.Projects {
			for _, e := range ResolveBundles(p, period) {
				name := strings.TrimSpace(e.Bundle)
				if name == "" {
					continue
				}
				i, ok := index[name]
				if !ok {
					i = len(table.Rows)
					index[name] = i
					table.Rows = append(table.Rows, BundleRow{Bundle: name, ByMember: map[string]float64{}})
				}
				table.Rows[i].ByMember[m.Name] += e.Unscrew
				table.Rows[i].Total += e.Unscrew
			}
		}
	}

	sort.SliceStable(table.Rows, func(i, j int) bool {
		return table.Rows[i].Total > table.Rows[j].Total
	})
	if limit > 0 && len(table.Rows) > limit {
		table.Rows = table.Rows[:limit]
	}

	for _, r := range table.Rows {
		for name, v := range r.ByMember {
			table.MemberTotals[name] += v
		}
		table.GrandTotal += r.Total
	}
	return table
}
