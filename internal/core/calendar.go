package core

import (
	"errors"
	"fmt"
	"time"
)

// DayLayout is the ISO day format used for every key in a document.
const DayLayout = "2006-01-02"

const (
	DefaultCalendarStart = "2025-12-29"
	DefaultCalendarWeeks = 52
)

var (
	ErrInvalidDay = errors.New("invalid day")
	ErrNotMonday  = errors.New("day is not a Monday")
)

var weekdayNames = [7]string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}

type (
	// WeekDay describes one day of a Monday-first week.
	WeekDay struct {
		ISO     string `json:"iso"`
		Display string `json:"display"`
		Name    string `json:"name"`
	}

	// Week is one 7-day window starting on a Monday.
	Week struct {
		ID    string    `json:"id"`
		Label string    `json:"label"`
		Start time.Time `json:"start"`
	}

	// WeekSequence is the canonical ordered list of selectable weeks.
	WeekSequence []Week
)

// ParseDay parses an ISO day as a UTC calendar date.
func ParseDay(s string) (time.Time, error) {
	t, err := time.Parse(DayLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDay, s)
	}
	return t, nil
}

// FormatDay formats the calendar date of t, ignoring its time of day.
func FormatDay(t time.Time) string {
	return t.Format(DayLayout)
}

// ValidateMonday checks that s is an ISO day falling on a Monday.
func ValidateMonday(s string) error {
	t, err := ParseDay(s)
	if err != nil {
		return err
	}
	if t.Weekday() != time.Monday {
		return fmt.Errorf("%w: %s", ErrNotMonday, s)
	}
	return nil
}

// MondayOf returns the Monday of the week containing t.
func MondayOf(t time.Time) time.Time {
	d := date(t.Year(), t.Month(), t.Day())
	offset := (int(d.Weekday()) + 6) % 7
	return d.AddDate(0, 0, -offset)
}

func displayDay(t time.Time) string {
	return t.Format("02.01")
}

// WeekDays returns the 7 days of the week starting at weekStart, Monday first.
func WeekDays(weekStart time.Time) []WeekDay {
	start := date(weekStart.Year(), weekStart.Month(), weekStart.Day())
	days := make([]WeekDay, 7)
	for i := range days {
		d := start.AddDate(0, 0, i)
		days[i] = WeekDay{
			ISO:     FormatDay(d),
			Display: displayDay(d),
			Name:    weekdayNames[i],
		}
	}
	return days
}

// WeekDayKeys returns only the ISO keys of the week starting at weekStart.
func WeekDayKeys(weekStart string) ([]string, error) {
	t, err := ParseDay(weekStart)
	if err != nil {
		return nil, err
	}
	days := WeekDays(t)
	keys := make([]string, len(days))
	for i, d := range days {
		keys[i] = d.ISO
	}
	return keys, nil
}

// MondaysInMonth lists the Mondays whose own date lies in the month.
func MondaysInMonth(year int, month time.Month) []string {
	var mondays []string
	for d := date(year, month, 1); d.Month() == month; d = d.AddDate(0, 0, 1) {
		if d.Weekday() == time.Monday {
			mondays = append(mondays, FormatDay(d))
		}
	}
	return mondays
}

// MonthDays lists every calendar day of the month.
func MonthDays(year int, month time.Month) []string {
	var days []string
	for d := date(year, month, 1); d.Month() == month; d = d.AddDate(0, 0, 1) {
		days = append(days, FormatDay(d))
	}
	return days
}

// InMonth reports whether the ISO day belongs to the given month.
func InMonth(day string, year int, month time.Month) bool {
	t, err := ParseDay(day)
	if err != nil {
		return false
	}
	return t.Year() == year && t.Month() == month
}

// WeekWindows builds count consecutive weeks starting at start.
func WeekWindows(start time.Time, count int) WeekSequence {
	anchor := date(start.Year(), start.Month(), start.Day())
	weeks := make(WeekSequence, 0, count)
	for i := 0; i < count; i++ {
		d := anchor.AddDate(0, 0, i*7)
		end := d.AddDate(0, 0, 6)
		weeks = append(weeks, Week{
			ID:    FormatDay(d),
			Label: displayDay(d) + " - " + displayDay(end),
			Start: d,
		})
	}
	return weeks
}

// Find returns the index of the week with the given id, or -1.
func (s WeekSequence) Find(id string) int {
	for i, w := range s {
		if w.ID == id {
			return i
		}
	}
	return -1
}

// Previous returns the week right before id in the sequence.
func (s WeekSequence) Previous(id string) (Week, bool) {
	i := s.Find(id)
	if i <= 0 {
		return Week{}, false
	}
	return s[i-1], true
}

// Current returns the week containing now, or the first week when now is
// outside the sequence.
func (s WeekSequence) Current(now time.Time) Week {
	if len(s) == 0 {
		return Week{}
	}
	if i := s.Find(FormatDay(MondayOf(now))); i >= 0 {
		return s[i]
	}
	return s[0]
}

func date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}
