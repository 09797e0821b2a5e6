package core

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strconv"
)

// noDataWire is how the "not tracked" marker is stored in documents.
const noDataWire = -1

type leadKind uint8

const (
	leadAbsent leadKind = iota
	leadNoData
	leadCount
)

// LeadValue is the value of one day: absent, explicitly not tracked, or a count.
// The zero value is absent.
type LeadValue struct {
	kind  leadKind
	count int
}

// Count returns a counted lead value.
func Count(n int) LeadValue { return LeadValue{kind: leadCount, count: n} }

// NoData returns the "not tracked" marker.
func NoData() LeadValue { return LeadValue{kind: leadNoData} }

func (v LeadValue) IsAbsent() bool { return v.kind == leadAbsent }
func (v LeadValue) IsNoData() bool { return v.kind == leadNoData }

// Count reports the counted value, if any.
func (v LeadValue) Count() (int, bool) {
	if v.kind != leadCount {
		return 0, false
	}
	return v.count, true
}

// String renders the value the way a cell shows it.
func (v LeadValue) String() string {
	switch v.kind {
	case leadNoData:
		return NoDataMarker
	case leadCount:
		return strconv.Itoa(v.count)
	default:
		return ""
	}
}

func (v LeadValue) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case leadNoData:
		return []byte(strconv.Itoa(noDataWire)), nil
	case leadCount:
		return []byte(strconv.Itoa(v.count)), nil
	default:
		return []byte("null"), nil
	}
}

func (v *LeadValue) UnmarshalJSON(data []byte) error {
	lv, _, err := decodeLead(data)
	if err != nil {
		return err
	}
	*v = lv
	return nil
}

// decodeLead reads a stored day value. Counts are whole numbers; a stored
// fraction is rounded half away from zero and reported as rounded.
func decodeLead(data []byte) (v LeadValue, rounded bool, err error) {
	if string(data) == "null" {
		return LeadValue{}, false, nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return LeadValue{}, false, fmt.Errorf("lead value: %w", err)
	}
	if f < 0 {
		return NoData(), false, nil
	}
	n := math.Round(f)
	return Count(int(n)), n != f, nil
}

// Leads maps ISO days to lead values. A missing key is an absent day.
type Leads map[string]LeadValue

// At returns the value for day; absent when not recorded.
func (l Leads) At(day string) LeadValue {
	return l[day]
}

func (l Leads) clone() Leads {
	out := make(Leads, len(l))
	for k, v := range l {
		out[k] = v
	}
	return out
}

func (l Leads) MarshalJSON() ([]byte, error) {
	out := make(map[string]LeadValue, len(l))
	for k, v := range l {
		if v.IsAbsent() {
			continue
		}
		out[k] = v
	}
	return json.Marshal(out)
}

func (l *Leads) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(Leads, len(raw))
	for day, msg := range raw {
		v, rounded, err := decodeLead(msg)
		if err != nil {
			return err
		}
		if rounded {
			slog.Warn("Rounded fractional lead count", "day", day, "stored", string(msg), "count", v.count)
		}
		if v.IsAbsent() {
			continue
		}
		out[day] = v
	}
	*l = out
	return nil
}
