package stats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"leadboard/internal/core"
)

const week = "2026-01-05"

func decode(t *testing.T, raw string) core.Document {
	t.Helper()
	d, err := core.DecodeDocument([]byte(raw))
	require.NoError(t, err)
	return d
}

func calendar(t *testing.T) core.WeekSequence {
	t.Helper()
	start, err := core.ParseDay(core.DefaultCalendarStart)
	require.NoError(t, err)
	return core.WeekWindows(start, core.DefaultCalendarWeeks)
}

func TestWeeklyExcludesNoDataDays(t *testing.T) {
	// D1=5, D2=0, D3=no data; weekly goal 10
	d := decode(t, `{"A": {"projects": [{"id": "p1", "name": "x",
		"leads": {"2026-01-05": 5, "2026-01-06": 0, "2026-01-07": -1},
		"weeks": {"2026-01-05": {"goal": 10, "spend": 100}},
		"defaultGoal": 100, "defaultBudget": 5000, "defaultTargetCpa": 500}]}}`)

	table, err := WeeklyDynamics(d, calendar(t), week)
	require.NoError(t, err)
	require.Len(t, table.Rows, 1)
	row := table.Rows[0]
	require.Equal(t, 5, row.Fact)
	require.InDelta(t, 50, row.PlanPercent, 1e-9)
	require.True(t, row.Days[2].NoData)
	require.Equal(t, DaySlot{}, row.Days[1])

	report, err := Weekly(d, week)
	require.NoError(t, err)
	require.Equal(t, 5, report.Members[0].Leads)
	require.InDelta(t, 50, report.Members[0].Completion, 1e-9)
	require.InDelta(t, 20, report.Members[0].CPA, 1e-9)

	rows, err := MonthlyProjects(d, 2026, time.January, DefaultSort)
	require.NoError(t, err)
	require.Equal(t, 5, rows[0].Leads)

	monthly, err := MonthlyDynamics(d, 2026, time.January)
	require.NoError(t, err)
	require.Equal(t, 5, monthly.Rows[0].Fact)
}

func TestNumericOverridesNoDataSlot(t *testing.T) {
	d := decode(t, `{"A": {"projects": [
		{"id": "p1", "leads": {"2026-01-05": -1}},
		{"id": "p2", "leads": {"2026-01-05": 3}}
	]}}`)
	table, err := WeeklyDynamics(d, calendar(t), week)
	require.NoError(t, err)
	require.Equal(t, DaySlot{Leads: 3}, table.Rows[0].Days[0])
	require.Equal(t, 3, table.Rows[0].Fact)
}

func TestDaySlotFoldIsAsymmetric(t *testing.T) {
	cases := []struct {
		name string
		in   []core.LeadValue
		want DaySlot
	}{
		{"absent only", []core.LeadValue{{}, {}}, DaySlot{}},
		{"no data only", []core.LeadValue{core.NoData()}, DaySlot{NoData: true}},
		{"count then no data", []core.LeadValue{core.Count(2), core.NoData()}, DaySlot{Leads: 2}},
		{"no data then count", []core.LeadValue{core.NoData(), core.Count(2)}, DaySlot{Leads: 2}},
		{"no data then zero", []core.LeadValue{core.NoData(), core.Count(0)}, DaySlot{NoData: true}},
		{"zero then no data", []core.LeadValue{core.Count(0), core.NoData()}, DaySlot{NoData: true}},
		{"counts add up", []core.LeadValue{core.Count(2), core.NoData(), core.Count(3)}, DaySlot{Leads: 5}},
		// a second positive value after a sentinel is added normally
		{"no data then two counts", []core.LeadValue{core.NoData(), core.Count(1), core.Count(4)}, DaySlot{Leads: 5}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var s DaySlot
			for _, v := range tc.in {
				s = s.Add(v)
			}
			require.Equal(t, tc.want, s)
		})
	}
}

func TestWeeklyDynamicsDeltas(t *testing.T) {
	cal := calendar(t)

	t.Run("no previous fact", func(t *testing.T) {
		d := decode(t, `{"A": {"projects": [{"id": "p1", "leads": {"2026-01-05": 4},
			"weeks": {"2026-01-05": {"spend": 100, "goal": 10}}}]}}`)
		table, err := WeeklyDynamics(d, cal, week)
		require.NoError(t, err)
		row := table.Rows[0]
		require.Zero(t, row.DeltaFact)
		require.Zero(t, row.DeltaBudget)
		require.Zero(t, row.DeltaCPL)
	})

	t.Run("first week of the calendar", func(t *testing.T) {
		d := decode(t, `{"A": {"projects": [{"id": "p1", "leads": {"2025-12-29": 4}}]}}`)
		table, err := WeeklyDynamics(d, cal, "2025-12-29")
		require.NoError(t, err)
		require.Empty(t, table.PreviousWeek)
		require.Zero(t, table.Rows[0].DeltaFact)
	})

	t.Run("relative change", func(t *testing.T) {
		d := decode(t, `{"A": {"projects": [{"id": "p1",
			"leads": {"2025-12-29": 10, "2026-01-05": 15},
			"weeks": {"2025-12-29": {"spend": 100}, "2026-01-05": {"spend": 300}}}]}}`)
		table, err := WeeklyDynamics(d, cal, week)
		require.NoError(t, err)
		row := table.Rows[0]
		require.Equal(t, "2025-12-29", table.PreviousWeek)
		require.InDelta(t, 50, row.DeltaFact, 1e-9)
		require.InDelta(t, 200, row.DeltaBudget, 1e-9)
		require.InDelta(t, 100, row.DeltaCPL, 1e-9) // 10 -> 20
	})
}

func TestWeeklyDynamicsOrderAndFooter(t *testing.T) {
	d := decode(t, `{
		"A": {"projects": [{"id": "a1", "leads": {"2026-01-05": -1, "2026-01-06": 1}, "weeks": {"2026-01-05": {"goal": 10, "spend": 50}}}]},
		"B": {"projects": [{"id": "b1", "leads": {"2026-01-05": 2, "2026-01-06": 4}, "weeks": {"2026-01-05": {"goal": 10, "spend": 60}}}]},
		"C": {"projects": [{"id": "c1", "leads": {"2026-01-06": 1, "2026-01-07": -1}, "weeks": {"2026-01-05": {"goal": 20}}}]}
	}`)
	table, err := WeeklyDynamics(d, calendar(t), week)
	require.NoError(t, err)

	var names []string
	for _, r := range table.Rows {
		names = append(names, r.Name)
	}
	require.Equal(t, []string{"B", "A", "C"}, names)

	f := table.Footer
	require.Equal(t, DaySlot{Leads: 2}, f.Days[0])
	require.Equal(t, DaySlot{Leads: 6}, f.Days[1])
	require.Equal(t, DaySlot{NoData: true}, f.Days[2])
	require.Equal(t, 8, f.Fact)
	require.InDelta(t, 40, f.Plan, 1e-9)
	require.InDelta(t, 110.0/8, f.CPL, 1e-9)
	require.InDelta(t, 20, f.PlanPercent, 1e-9)
}

func TestWeeklyRanking(t *testing.T) {
	d := decode(t, `{
		"A": {"projects": [{"id": "a1", "leads": {"2026-01-05": 5}, "weeks": {"2026-01-05": {"goal": 10}}}]},
		"B": {"projects": [{"id": "b1", "leads": {"2026-01-05": 9}, "weeks": {"2026-01-05": {"goal": 10}}}]},
		"C": {"projects": [{"id": "c1", "leads": {"2026-01-05": 1}, "weeks": {"2026-01-05": {"goal": 2}}}]},
		"D": {"projects": []}
	}`)
	report, err := Weekly(d, week)
	require.NoError(t, err)

	var names []string
	for _, m := range report.Members {
		names = append(names, m.Name)
	}
	// A and C tie at 50%: document order is kept
	require.Equal(t, []string{"B", "A", "C", "D"}, names)
	require.Equal(t, 15, report.TotalLeads)
	require.Equal(t, 3, report.ProjectCount)
	require.Zero(t, report.Members[3].Completion)
	require.Zero(t, report.Members[3].CPA)
}

func TestWeeklyUsesDefaultsWithoutRow(t *testing.T) {
	d := decode(t, `{"A": {"projects": [{"id": "a1", "leads": {"2026-01-05": 25}, "defaultGoal": 50, "defaultBudget": 5000}]}}`)
	report, err := Weekly(d, week)
	require.NoError(t, err)
	require.InDelta(t, 50, report.Members[0].Goal, 1e-9)
	require.Zero(t, report.Members[0].Spend)
	require.InDelta(t, 50, report.Members[0].Completion, 1e-9)
}

func TestMemberWeekView(t *testing.T) {
	d := decode(t, `{"A": {"projects": [
		{"id": "a1", "name": "x", "leads": {"2026-01-05": 4, "2026-01-06": -1},
		 "weeks": {"2026-01-05": {"spend": 800, "goal": 8, "targetCpa": 150}}},
		{"id": "a2", "name": "y", "leads": {"2026-01-05": 2}, "defaultGoal": 4, "defaultTargetCpa": 500}
	]}}`)
	view, err := MemberWeekView(d, "A", week)
	require.NoError(t, err)
	require.Len(t, view.Projects, 2)

	x := view.Projects[0]
	require.Equal(t, 4, x.Leads)
	require.True(t, x.Explicit)
	require.InDelta(t, 200, x.ActualCPA, 1e-9)
	require.False(t, x.OnTarget)
	require.True(t, x.Days[1].Value.IsNoData())
	require.Equal(t, "Tue", x.Days[1].Day.Name)

	y := view.Projects[1]
	require.False(t, y.Explicit)
	require.True(t, y.OnTarget)
	require.InDelta(t, 50, y.PlanPercent, 1e-9)

	require.Equal(t, 6, view.TotalLeads)
	require.InDelta(t, 12, view.TotalGoal, 1e-9)

	_, err = MemberWeekView(d, "nobody", week)
	require.ErrorIs(t, err, core.ErrMemberNotFound)
}
