package stats

import (
	"sort"
	"time"

	"leadboard/internal/core"
)

type (
	// DynamicsRow is one member's daily series with the period totals.
	DynamicsRow struct {
		Name        string    `json:"name"`
		Days        []DaySlot `json:"days"`
		Fact        int       `json:"fact"`
		Plan        float64   `json:"plan"`
		Budget      float64   `json:"budget"`
		CPL         float64   `json:"cpl"`
		PlanPercent float64   `json:"planPercent"`
		DeltaFact   float64   `json:"deltaFact"`
		DeltaBudget float64   `json:"deltaBudget"`
		DeltaCPL    float64   `json:"deltaCpl"`
	}

	// DynamicsFooter folds all rows of a dynamics table. Budget is what was
	// spent in the period.
	DynamicsFooter struct {
		Days        []DaySlot `json:"days"`
		Fact        int       `json:"fact"`
		Plan        float64   `json:"plan"`
		Budget      float64   `json:"budget"`
		CPL         float64   `json:"cpl"`
		PlanPercent float64   `json:"planPercent"`
	}

	// WeeklyDynamicsTable compares each member's week with the previous one.
	WeeklyDynamicsTable struct {
		Week         string         `json:"week"`
		PreviousWeek string         `json:"previousWeek,omitempty"`
		Days         []core.WeekDay `json:"days"`
		Rows         []DynamicsRow  `json:"rows"`
		Footer       DynamicsFooter `json:"footer"`
	}
)

// WeeklyDynamics builds the per-member daily table for the week starting at
// weekStart. The previous week is looked up in weeks; when it does not exist
// or its fact is 0, every delta is 0. Budget is the week's spend.
func WeeklyDynamics(d core.Document, weeks core.WeekSequence, weekStart string) (WeeklyDynamicsTable, error) {
	start, err := core.ParseDay(weekStart)
	if err != nil {
		return WeeklyDynamicsTable{}, err
	}
	weekDays := core.WeekDays(start)
	days := isoKeys(weekDays)

	var prevWeek string
	var prevDays []string
	if prev, ok := weeks.Previous(weekStart); ok {
		prevWeek = prev.ID
		prevDays = isoKeys(core.WeekDays(prev.Start))
	}

	table := WeeklyDynamicsTable{
		Week:         weekStart,
		PreviousWeek: prevWeek,
		Days:         weekDays,
		Rows:         make([]DynamicsRow, 0, len(d.Members)),
	}
	for _, m := range d.Members {
		row := DynamicsRow{Name: m.Name, Days: make([]DaySlot, len(days))}
		var prevFact int
		var prevBudget float64
		for _, p := range m.Projects {
			foldDays(row.Days, p, days)
			ws, _ := p.Week(weekStart)
			row.Fact += p.LeadsIn(days)
			row.Plan += ws.Goal
			row.Budget += ws.Spend

			if prevWeek != "" {
				pws, _ := p.Week(prevWeek)
				prevFact += p.LeadsIn(prevDays)
				prevBudget += pws.Spend
			}
		}
		row.CPL = ratio(row.Budget, float64(row.Fact))
		row.PlanPercent = percent(float64(row.Fact), row.Plan)
		if prevFact != 0 {
			prevCPL := ratio(prevBudget, float64(prevFact))
			row.DeltaFact = delta(float64(row.Fact), float64(prevFact))
			row.DeltaBudget = delta(row.Budget, prevBudget)
			row.DeltaCPL = delta(row.CPL, prevCPL)
		}
		table.Rows = append(table.Rows, row)
	}

	sortByFact(table.Rows)
	table.Footer = footer(table.Rows, len(days))
	return table, nil
}

type (
	// MonthlyDynamicsRow is one member's daily series over a calendar month.
	MonthlyDynamicsRow struct {
		Name        string    `json:"name"`
		Days        []DaySlot `json:"days"`
		Fact        int       `json:"fact"`
		Plan        float64   `json:"plan"`
		Budget      float64   `json:"budget"`
		Spend       float64   `json:"spend"`
		CPL         float64   `json:"cpl"`
		PlanPercent float64   `json:"planPercent"`
	}

	MonthlyDynamicsTable struct {
		Year   int                  `json:"year"`
		Month  time.Month           `json:"month"`
		Days   []string             `json:"days"`
		Rows   []MonthlyDynamicsRow `json:"rows"`
		Footer DynamicsFooter       `json:"footer"`
	}
)

// MonthlyDynamics builds the per-member daily table over every day of the
// month. Plan, budget and spend are summed over the month's Mondays, with
// project defaults for weeks without a row.
func MonthlyDynamics(d core.Document, year int, month time.Month) (MonthlyDynamicsTable, error) {
	if err := monthRange(year, month); err != nil {
		return MonthlyDynamicsTable{}, err
	}
	days := core.MonthDays(year, month)
	mondays := core.MondaysInMonth(year, month)

	table := MonthlyDynamicsTable{
		Year:  year,
		Month: month,
		Days:  days,
		Rows:  make([]MonthlyDynamicsRow, 0, len(d.Members)),
	}
	for _, m := range d.Members {
		row := MonthlyDynamicsRow{Name: m.Name, Days: make([]DaySlot, len(days))}
		for _, p := range m.Projects {
			foldDays(row.Days, p, days)
			row.Fact += p.LeadsIn(days)
			for _, monday := range mondays {
				ws, _ := p.Week(monday)
				row.Plan += ws.Goal
				row.Budget += ws.Budget
				row.Spend += ws.Spend
			}
		}
		row.CPL = ratio(row.Spend, float64(row.Fact))
		row.PlanPercent = percent(float64(row.Fact), row.Plan)
		table.Rows = append(table.Rows, row)
	}

	sort.SliceStable(table.Rows, func(i, j int) bool {
		return table.Rows[i].Fact > table.Rows[j].Fact
	})

	f := DynamicsFooter{Days: make([]DaySlot, len(days))}
	for _, r := range table.Rows {
		for i, s := range r.Days {
			f.Days[i] = f.Days[i].Merge(s)
		}
		f.Fact += r.Fact
		f.Plan += r.Plan
		f.Budget += r.Spend
	}
	f.CPL = ratio(f.Budget, float64(f.Fact))
	f.PlanPercent = percent(float64(f.Fact), f.Plan)
	table.Footer = f
	return table, nil
}

func sortByFact(rows []DynamicsRow) {
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Fact > rows[j].Fact
	})
}

func footer(rows []DynamicsRow, width int) DynamicsFooter {
	f := DynamicsFooter{Days: make([]DaySlot, width)}
	for _, r := range rows {
		for i, s := range r.Days {
			f.Days[i] = f.Days[i].Merge(s)
		}
		f.Fact += r.Fact
		f.Plan += r.Plan
		f.Budget += r.Budget
	}
	f.CPL = ratio(f.Budget, float64(f.Fact))
	f.PlanPercent = percent(float64(f.Fact), f.Plan)
	return f
}

func isoKeys(days []core.WeekDay) []string {
	keys := make([]string, len(days))
	for i, d := range days {
		keys[i] = d.ISO
	}
	return keys
}
