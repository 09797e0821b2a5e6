package core

import (
	"errors"
	"fmt"
	"time"
)

const (
	// MaxBundles is the number of bundle slots a week offers.
	MaxBundles = 4

	DefaultGoal      = 100
	DefaultBudget    = 5000
	DefaultTargetCPA = 500
)

type (
	// BundleEntry is a named sub-allocation of a week's spend.
	BundleEntry struct {
		Bundle  string  `json:"bundle"`
		Unscrew float64 `json:"unscrew"`
	}

	// WeeklyStats holds the planning figures of one project for one week.
	WeeklyStats struct {
		Budget    float64       `json:"budget"`
		Spend     float64       `json:"spend"`
		Goal      float64       `json:"goal"`
		TargetCPA float64       `json:"targetCpa"`
		Bundles   []BundleEntry `json:"bundles,omitempty"`
	}

	Project struct {
		ID               string                 `json:"id"`
		Name             string                 `json:"name"`
		Leads            Leads                  `json:"leads"`
		Weeks            map[string]WeeklyStats `json:"weeks"`
		DefaultGoal      float64                `json:"defaultGoal"`
		DefaultBudget    float64                `json:"defaultBudget"`
		DefaultTargetCPA float64                `json:"defaultTargetCpa"`
		// Bundles is the legacy project-level location; new data lives in WeeklyStats.
		Bundles []BundleEntry `json:"bundles,omitempty"`
	}

	Member struct {
		Name     string
		Projects []Project
		Bundles  []BundleEntry
	}
)

var (
	ErrMemberNotFound   = errors.New("member not found")
	ErrProjectNotFound  = errors.New("project not found")
	ErrEmptyProjectID   = errors.New("empty project id")
	ErrDuplicateProject = errors.New("duplicate project id")
	ErrUnknownStatField = errors.New("unknown weekly stat field")
	ErrBundleSlot       = errors.New("bundle slot out of range")
)

// NewProject returns a project with empty leads/weeks and template defaults.
func NewProject(id, name string) Project {
	return Project{
		ID:               id,
		Name:             name,
		Leads:            Leads{},
		Weeks:            map[string]WeeklyStats{},
		DefaultGoal:      DefaultGoal,
		DefaultBudget:    DefaultBudget,
		DefaultTargetCPA: DefaultTargetCPA,
	}
}

// Week returns the explicit stats row for weekStart, or the defaults with zero spend.
func (p Project) Week(weekStart string) (WeeklyStats, bool) {
	if ws, ok := p.Weeks[weekStart]; ok {
		return ws, true
	}
	return p.fallbackWeek(), false
}

func (p Project) fallbackWeek() WeeklyStats {
	return WeeklyStats{
		Budget:    p.DefaultBudget,
		Spend:     0,
		Goal:      p.DefaultGoal,
		TargetCPA: p.DefaultTargetCPA,
	}
}

// LeadsIn sums the counted leads of the given days. Absent and no-data days are skipped.
func (p Project) LeadsIn(days []string) int {
	total := 0
	for _, d := range days {
		if n, ok := p.Leads.At(d).Count(); ok {
			total += n
		}
	}
	return total
}

// LeadsInMonth sums the counted leads stored for days of the month.
func (p Project) LeadsInMonth(year int, month time.Month) int {
	total := 0
	for day, v := range p.Leads {
		if n, ok := v.Count(); ok && InMonth(day, year, month) {
			total += n
		}
	}
	return total
}

// Validate checks the structural invariants of a project.
func (p Project) Validate() error {
	if p.ID == "" {
		return ErrEmptyProjectID
	}
	for day := range p.Leads {
		if _, err := ParseDay(day); err != nil {
			return fmt.Errorf("project %s lead %q: %w", p.ID, day, err)
		}
	}
	for week := range p.Weeks {
		if err := ValidateMonday(week); err != nil {
			return fmt.Errorf("project %s week %q: %w", p.ID, week, err)
		}
	}
	return nil
}

// StatField names one scalar field of WeeklyStats.
type StatField string

const (
	FieldBudget    StatField = "budget"
	FieldSpend     StatField = "spend"
	FieldGoal      StatField = "goal"
	FieldTargetCPA StatField = "targetCpa"
)

func (f StatField) IsValid() bool {
	switch f {
	case FieldBudget, FieldSpend, FieldGoal, FieldTargetCPA:
		return true
	default:
		return false
	}
}

func (ws WeeklyStats) with(field StatField, value float64) WeeklyStats {
	switch field {
	case FieldBudget:
		ws.Budget = value
	case FieldSpend:
		ws.Spend = value
	case FieldGoal:
		ws.Goal = value
	case FieldTargetCPA:
		ws.TargetCPA = value
	}
	return ws
}
