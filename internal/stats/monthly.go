package stats

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"leadboard/internal/core"
)

// ProjectMonth is one row of the monthly project summary.
type ProjectMonth struct {
	Owner        string  `json:"owner"`
	ProjectID    string  `json:"projectId"`
	ProjectName  string  `json:"projectName"`
	Leads        int     `json:"leads"`
	Goal         float64 `json:"goal"`
	Budget       float64 `json:"budget"`
	Spend        float64 `json:"spend"`
	ActualCPA    float64 `json:"actualCpa"`
	AvgTargetCPA float64 `json:"avgTargetCpa"`
	Percent      float64 `json:"percent"`
}

// SortKey names a sortable column of the monthly summary.
type SortKey string

const (
	SortOwner        SortKey = "owner"
	SortProjectName  SortKey = "projectName"
	SortLeads        SortKey = "leads"
	SortGoal         SortKey = "goal"
	SortPercent      SortKey = "percent"
	SortBudget       SortKey = "budget"
	SortSpend        SortKey = "spend"
	SortActualCPA    SortKey = "actualCpa"
	SortAvgTargetCPA SortKey = "avgTargetCpa"
)

type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// SortSpec is the column and direction of the monthly summary.
type SortSpec struct {
	Key       SortKey   `json:"key"`
	Direction Direction `json:"direction"`
}

// DefaultSort orders the summary by leads, largest first.
var DefaultSort = SortSpec{Key: SortLeads, Direction: Desc}

// Toggle returns the spec after a click on key's header: the same key flips
// the direction, another key starts descending.
func (s SortSpec) Toggle(key SortKey) SortSpec {
	if s.Key == key {
		if s.Direction == Asc {
			return SortSpec{Key: key, Direction: Desc}
		}
		return SortSpec{Key: key, Direction: Asc}
	}
	return SortSpec{Key: key, Direction: Desc}
}

// ParseSortSpec validates a key and direction as received from a caller.
// Empty values fall back to DefaultSort.
func ParseSortSpec(key, dir string) (SortSpec, error) {
	spec := DefaultSort
	if key != "" {
		spec.Key = SortKey(key)
	}
	if dir != "" {
		spec.Direction = Direction(dir)
	}
	if _, ok := sortValues[spec.Key]; !ok && spec.Key != SortOwner && spec.Key != SortProjectName {
		return SortSpec{}, fmt.Errorf("%w: %q", ErrUnknownSortKey, spec.Key)
	}
	if spec.Direction != Asc && spec.Direction != Desc {
		return SortSpec{}, fmt.Errorf("%w: direction %q", ErrUnknownSortKey, spec.Direction)
	}
	return spec, nil
}

var sortValues = map[SortKey]func(ProjectMonth) float64{
	SortLeads:        func(r ProjectMonth) float64 { return float64(r.Leads) },
	SortGoal:         func(r ProjectMonth) float64 { return r.Goal },
	SortPercent:      func(r ProjectMonth) float64 { return r.Percent },
	SortBudget:       func(r ProjectMonth) float64 { return r.Budget },
	SortSpend:        func(r ProjectMonth) float64 { return r.Spend },
	SortActualCPA:    func(r ProjectMonth) float64 { return r.ActualCPA },
	SortAvgTargetCPA: func(r ProjectMonth) float64 { return r.AvgTargetCPA },
}

// MonthlyProjects summarizes every project of every member over a month,
// sorted by spec.
//
// Leads are the counted days of the month. Goal, budget and target CPA sum
// the rows of the month's Mondays with project defaults for missing rows,
// while spend only counts explicit rows.
func MonthlyProjects(d core.Document, year int, month time.Month, spec SortSpec) ([]ProjectMonth, error) {
	if err := monthRange(year, month); err != nil {
		return nil, err
	}
	less, err := spec.less()
	if err != nil {
		return nil, err
	}
	mondays := core.MondaysInMonth(year, month)

	rows := make([]ProjectMonth, 0, d.ProjectCount())
	for _, m := range d.Members {
		for _, p := range m.Projects {
			rows = append(rows, projectMonth(m.Name, p, year, month, mondays))
		}
	}
	sort.SliceStable(rows, func(i, j int) bool { return less(rows[i], rows[j]) })
	return rows, nil
}

func projectMonth(owner string, p core.Project, year int, month time.Month, mondays []string) ProjectMonth {
	row := ProjectMonth{
		Owner:       owner,
		ProjectID:   p.ID,
		ProjectName: p.Name,
		Leads:       p.LeadsInMonth(year, month),
	}
	var targetSum float64
	for _, monday := range mondays {
		ws, _ := p.Week(monday)
		row.Goal += ws.Goal
		row.Budget += ws.Budget
		row.Spend += ws.Spend
		if ws.TargetCPA > 0 {
			targetSum += ws.TargetCPA
		} else {
			targetSum += p.DefaultTargetCPA
		}
	}
	if len(mondays) > 0 {
		row.AvgTargetCPA = targetSum / float64(len(mondays))
	} else {
		row.AvgTargetCPA = p.DefaultTargetCPA
	}
	row.ActualCPA = ratio(row.Spend, float64(row.Leads))
	row.Percent = percent(float64(row.Leads), row.Goal)
	return row
}

func (s SortSpec) less() (func(a, b ProjectMonth) bool, error) {
	var asc func(a, b ProjectMonth) bool
	switch s.Key {
	case SortOwner:
		asc = func(a, b ProjectMonth) bool { return a.Owner < b.Owner }
	case SortProjectName:
		asc = func(a, b ProjectMonth) bool {
			return strings.ToLower(a.ProjectName) < strings.ToLower(b.ProjectName)
		}
	default:
		value, ok := sortValues[s.Key]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownSortKey, s.Key)
		}
		asc = func(a, b ProjectMonth) bool { return value(a) < value(b) }
	}
	if s.Direction == Asc {
		return asc, nil
	}
	return func(a, b ProjectMonth) bool { return asc(b, a) }, nil
}
