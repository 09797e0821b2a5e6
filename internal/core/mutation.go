package core

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Mutation is one local edit intent. Apply never modifies its input: it
// returns a new document sharing every untouched member and project with
// the old one, while the edited sub-maps are copied.
type Mutation interface {
	Apply(Document) (Document, error)
}

type (
	RenameProject struct {
		Owner     string
		ProjectID string
		Name      string
	}

	// SetLead sets one day's lead value. An absent value removes the day.
	SetLead struct {
		Owner     string
		ProjectID string
		Day       string
		Value     LeadValue
	}

	// SetWeekStat sets one scalar of a week's stats, creating the row from
	// the project defaults when missing.
	SetWeekStat struct {
		Owner     string
		ProjectID string
		Week      string
		Field     StatField
		Value     float64
	}

	AddProject struct {
		Owner   string
		Project Project
	}

	DeleteProject struct {
		Owner     string
		ProjectID string
	}

	// SetBundle edits one bundle slot of a week.
	SetBundle struct {
		Owner     string
		ProjectID string
		Week      string
		Slot      int
		Entry     BundleEntry
	}

	// SetMonthlyGoal spreads a whole-month goal across the month's Mondays.
	SetMonthlyGoal struct {
		Owner     string
		ProjectID string
		Year      int
		Month     time.Month
		Goal      float64
	}
)

func (m RenameProject) Apply(d Document) (Document, error) {
	return updateProject(d, m.Owner, m.ProjectID, func(p Project) (Project, error) {
		p.Name = m.Name
		return p, nil
	})
}

func (m SetLead) Apply(d Document) (Document, error) {
	if _, err := ParseDay(m.Day); err != nil {
		return d, err
	}
	return updateProject(d, m.Owner, m.ProjectID, func(p Project) (Project, error) {
		leads := p.Leads.clone()
		if m.Value.IsAbsent() {
			delete(leads, m.Day)
		} else {
			leads[m.Day] = m.Value
		}
		p.Leads = leads
		return p, nil
	})
}

func (m SetWeekStat) Apply(d Document) (Document, error) {
	if !m.Field.IsValid() {
		return d, fmt.Errorf("%w: %q", ErrUnknownStatField, m.Field)
	}
	if err := ValidateMonday(m.Week); err != nil {
		return d, err
	}
	if m.Value < 0 {
		return d, fmt.Errorf("%w: %v", ErrInvalidAmount, m.Value)
	}
	return updateProject(d, m.Owner, m.ProjectID, func(p Project) (Project, error) {
		row, _ := p.Week(m.Week)
		row.Bundles = cloneBundles(row.Bundles)
		weeks := cloneWeeks(p.Weeks)
		weeks[m.Week] = row.with(m.Field, m.Value)
		p.Weeks = weeks
		return p, nil
	})
}

func (m AddProject) Apply(d Document) (Document, error) {
	if m.Project.ID == "" {
		return d, ErrEmptyProjectID
	}
	mi := d.Member(m.Owner)
	if mi < 0 {
		return d, fmt.Errorf("%w: %s", ErrMemberNotFound, m.Owner)
	}
	if _, _, exists := d.FindProject(m.Project.ID); exists {
		return d, fmt.Errorf("%w: %s", ErrDuplicateProject, m.Project.ID)
	}
	p := m.Project.clone()
	p.normalize()

	out := d.withMembers()
	member := out.Members[mi]
	projects := make([]Project, len(member.Projects), len(member.Projects)+1)
	copy(projects, member.Projects)
	member.Projects = append(projects, p)
	out.Members[mi] = member
	return out, nil
}

func (m DeleteProject) Apply(d Document) (Document, error) {
	mi := d.Member(m.Owner)
	if mi < 0 {
		return d, fmt.Errorf("%w: %s", ErrMemberNotFound, m.Owner)
	}
	member := d.Members[mi]
	projects := make([]Project, 0, len(member.Projects))
	for _, p := range member.Projects {
		if p.ID != m.ProjectID {
			projects = append(projects, p)
		}
	}
	if len(projects) == len(member.Projects) {
		return d, fmt.Errorf("%w: %s", ErrProjectNotFound, m.ProjectID)
	}
	out := d.withMembers()
	member.Projects = projects
	out.Members[mi] = member
	return out, nil
}

func (m SetBundle) Apply(d Document) (Document, error) {
	if m.Slot < 0 || m.Slot >= MaxBundles {
		return d, fmt.Errorf("%w: %d", ErrBundleSlot, m.Slot)
	}
	if err := ValidateMonday(m.Week); err != nil {
		return d, err
	}
	if m.Entry.Unscrew < 0 {
		return d, fmt.Errorf("%w: %v", ErrInvalidAmount, m.Entry.Unscrew)
	}
	return updateProject(d, m.Owner, m.ProjectID, func(p Project) (Project, error) {
		row, _ := p.Week(m.Week)
		size := len(row.Bundles)
		if size <= m.Slot {
			size = m.Slot + 1
		}
		bundles := make([]BundleEntry, size)
		copy(bundles, row.Bundles)
		bundles[m.Slot] = BundleEntry{Bundle: strings.TrimSpace(m.Entry.Bundle), Unscrew: m.Entry.Unscrew}
		row.Bundles = bundles

		weeks := cloneWeeks(p.Weeks)
		weeks[m.Week] = row
		p.Weeks = weeks
		return p, nil
	})
}

func (m SetMonthlyGoal) Apply(d Document) (Document, error) {
	if m.Goal < 0 {
		return d, fmt.Errorf("%w: %v", ErrInvalidAmount, m.Goal)
	}
	return updateProject(d, m.Owner, m.ProjectID, func(p Project) (Project, error) {
		return UpdateMonthlyGoal(p, m.Year, m.Month, m.Goal), nil
	})
}

// UpdateMonthlyGoal divides goal evenly across the Mondays of the month,
// rounding to a whole number. Every such week gets that goal (other fields
// kept, or taken from the defaults when the row is new) and it becomes the
// project's default goal. A month without Mondays leaves the project as is.
func UpdateMonthlyGoal(p Project, year int, month time.Month, goal float64) Project {
	mondays := MondaysInMonth(year, month)
	if len(mondays) == 0 {
		return p
	}
	weekly := math.Round(goal / float64(len(mondays)))

	weeks := cloneWeeks(p.Weeks)
	for _, monday := range mondays {
		row, ok := weeks[monday]
		if !ok {
			row = p.fallbackWeek()
		}
		row.Goal = weekly
		weeks[monday] = row
	}
	p.Weeks = weeks
	p.DefaultGoal = weekly
	return p
}

// withMembers returns a document with its own member slice, so one entry
// can be replaced without touching d.
func (d Document) withMembers() Document {
	members := make([]Member, len(d.Members))
	copy(members, d.Members)
	return Document{Members: members}
}

func updateProject(d Document, owner, id string, fn func(Project) (Project, error)) (Document, error) {
	mi := d.Member(owner)
	if mi < 0 {
		return d, fmt.Errorf("%w: %s", ErrMemberNotFound, owner)
	}
	member := d.Members[mi]
	for pi, p := range member.Projects {
		if p.ID != id {
			continue
		}
		updated, err := fn(p)
		if err != nil {
			return d, err
		}
		projects := make([]Project, len(member.Projects))
		copy(projects, member.Projects)
		projects[pi] = updated

		out := d.withMembers()
		member.Projects = projects
		out.Members[mi] = member
		return out, nil
	}
	return d, fmt.Errorf("%w: %s", ErrProjectNotFound, id)
}
