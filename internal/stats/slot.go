package stats

import (
	"strconv"

	"leadboard/internal/core"
)

// DaySlot is one day cell of a dynamics table after folding the values
// of several projects.
type DaySlot struct {
	Leads  int
	NoData bool
}

// Add folds one project's value for the day into the slot.
//
// The fold is asymmetric. A no-data marker only shows while nothing
// positive has been counted; a later positive count replaces it; a later
// marker never turns a counted slot back into a marker.
func (s DaySlot) Add(v core.LeadValue) DaySlot {
	if v.IsNoData() {
		if s.Leads == 0 {
			s.NoData = true
		}
		return s
	}
	n, ok := v.Count()
	if !ok {
		return s
	}
	if s.NoData {
		if n > 0 {
			return DaySlot{Leads: n}
		}
		return s
	}
	s.Leads += n
	return s
}

// Merge folds another slot into s the same way a project value is folded.
func (s DaySlot) Merge(o DaySlot) DaySlot {
	if o.NoData {
		return s.Add(core.NoData())
	}
	return s.Add(core.Count(o.Leads))
}

// Value returns the slot as a lead value for display.
func (s DaySlot) Value() core.LeadValue {
	if s.NoData {
		return core.NoData()
	}
	return core.Count(s.Leads)
}

func (s DaySlot) MarshalJSON() ([]byte, error) {
	return s.Value().MarshalJSON()
}

func (s DaySlot) String() string {
	if s.NoData {
		return core.NoDataMarker
	}
	return strconv.Itoa(s.Leads)
}

func foldDays(slots []DaySlot, p core.Project, days []string) {
	for i, d := range days {
		slots[i] = slots[i].Add(p.Leads.At(d))
	}
}
