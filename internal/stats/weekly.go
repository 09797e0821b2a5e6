// Package stats derives the dashboard views from a document.
//
// Every function here is pure: it reads a core.Document and a reference
// week or month and never modifies its input. Days marked as not tracked,
// and days without a value, never count towards a lead total.
package stats

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"leadboard/internal/core"
)

var ErrUnknownSortKey = errors.New("unknown sort key")

type (
	// MemberStats is one member's line of the weekly ranking.
	MemberStats struct {
		Name       string  `json:"name"`
		Leads      int     `json:"leads"`
		Spend      float64 `json:"spend"`
		Goal       float64 `json:"goal"`
		Completion float64 `json:"completion"`
		CPA        float64 `json:"cpa"`
	}

	// WeeklyReport is the team ranking for one week plus the team totals.
	WeeklyReport struct {
		Week         string        `json:"week"`
		Members      []MemberStats `json:"members"`
		TotalLeads   int           `json:"totalLeads"`
		TotalSpend   float64       `json:"totalSpend"`
		TotalGoal    float64       `json:"totalGoal"`
		AvgCPA       float64       `json:"avgCpa"`
		ProjectCount int           `json:"projectCount"`
	}

	// DayCell is one editable lead cell of a project row.
	DayCell struct {
		Day   core.WeekDay   `json:"day"`
		Value core.LeadValue `json:"value"`
	}

	// ProjectWeek is one project row of a member's weekly workspace.
	ProjectWeek struct {
		ID          string             `json:"id"`
		Name        string             `json:"name"`
		Days        []DayCell          `json:"days"`
		Leads       int                `json:"leads"`
		Stats       core.WeeklyStats   `json:"stats"`
		Explicit    bool               `json:"explicit"`
		ActualCPA   float64            `json:"actualCpa"`
		PlanPercent float64            `json:"planPercent"`
		OnTarget    bool               `json:"onTarget"`
		Bundles     []core.BundleEntry `json:"bundles"`
	}

	// MemberWeek is one member's projects for one week with their totals.
	MemberWeek struct {
		Member      string        `json:"member"`
		Week        string        `json:"week"`
		Projects    []ProjectWeek `json:"projects"`
		TotalLeads  int           `json:"totalLeads"`
		TotalSpend  float64       `json:"totalSpend"`
		TotalGoal   float64       `json:"totalGoal"`
		AvgCPA      float64       `json:"avgCpa"`
		PlanPercent float64       `json:"planPercent"`
	}
)

// Weekly ranks members by plan completion for the week starting at weekStart.
// Ties keep the document order.
func Weekly(d core.Document, weekStart string) (WeeklyReport, error) {
	days, err := core.WeekDayKeys(weekStart)
	if err != nil {
		return WeeklyReport{}, err
	}

	report := WeeklyReport{Week: weekStart, Members: make([]MemberStats, 0, len(d.Members))}
	for _, m := range d.Members {
		ms := MemberStats{Name: m.Name}
		for _, p := range m.Projects {
			ws, _ := p.Week(weekStart)
			ms.Leads += p.LeadsIn(days)
			ms.Spend += ws.Spend
			ms.Goal += ws.Goal
		}
		ms.Completion = percent(float64(ms.Leads), ms.Goal)
		ms.CPA = ratio(ms.Spend, float64(ms.Leads))

		report.TotalLeads += ms.Leads
		report.TotalSpend += ms.Spend
		report.TotalGoal += ms.Goal
		report.ProjectCount += len(m.Projects)
		report.Members = append(report.Members, ms)
	}
	report.AvgCPA = ratio(report.TotalSpend, float64(report.TotalLeads))

	sort.SliceStable(report.Members, func(i, j int) bool {
		return report.Members[i].Completion > report.Members[j].Completion
	})
	return report, nil
}

// MemberWeekView lists the named member's projects for one week.
func MemberWeekView(d core.Document, owner, weekStart string) (MemberWeek, error) {
	start, err := core.ParseDay(weekStart)
	if err != nil {
		return MemberWeek{}, err
	}
	mi := d.Member(owner)
	if mi < 0 {
		return MemberWeek{}, fmt.Errorf("%w: %s", core.ErrMemberNotFound, owner)
	}
	weekDays := core.WeekDays(start)
	keys := isoKeys(weekDays)

	view := MemberWeek{Member: owner, Week: weekStart, Projects: []ProjectWeek{}}
	for _, p := range d.Members[mi].Projects {
		ws, explicit := p.Week(weekStart)
		row := ProjectWeek{
			ID:       p.ID,
			Name:     p.Name,
			Days:     make([]DayCell, len(weekDays)),
			Leads:    p.LeadsIn(keys),
			Stats:    ws,
			Explicit: explicit,
			Bundles:  ResolveBundles(p, WeekPeriod(weekStart, keys)),
		}
		for i, wd := range weekDays {
			row.Days[i] = DayCell{Day: wd, Value: p.Leads.At(wd.ISO)}
		}
		row.ActualCPA = ratio(ws.Spend, float64(row.Leads))
		row.PlanPercent = percent(float64(row.Leads), ws.Goal)
		row.OnTarget = row.ActualCPA <= 0 || ws.TargetCPA <= 0 || row.ActualCPA <= ws.TargetCPA

		view.TotalLeads += row.Leads
		view.TotalSpend += ws.Spend
		view.TotalGoal += ws.Goal
		view.Projects = append(view.Projects, row)
	}
	view.AvgCPA = ratio(view.TotalSpend, float64(view.TotalLeads))
	view.PlanPercent = percent(float64(view.TotalLeads), view.TotalGoal)
	return view, nil
}

// ratio returns a/b, or 0 when b is 0.
func ratio(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	return a / b
}

func percent(a, b float64) float64 {
	return ratio(a, b) * 100
}

// delta is the relative change from prev to cur in percent, 0 when prev is 0.
func delta(cur, prev float64) float64 {
	if prev == 0 {
		return 0
	}
	return (cur - prev) / prev * 100
}

func monthRange(year int, month time.Month) error {
	if month < time.January || month > time.December {
		return fmt.Errorf("%w: month %d", core.ErrInvalidDay, month)
	}
	if year < 1 {
		return fmt.Errorf("%w: year %d", core.ErrInvalidDay, year)
	}
	return nil
}
