// Package core provides the lead-tracking domain model.
//
// This file contains the parsing of textual cell input into lead values and
// monetary amounts.
package core

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

// NoDataMarker is how a "not tracked" day is displayed.
const NoDataMarker = "Н"

var (
	ErrInvalidLeadInput = errors.New("invalid lead input")
	ErrInvalidAmount    = errors.New("invalid amount")
)

// noDataInputs are the accepted spellings of the "not tracked" marker
// (Cyrillic and Latin, either case).
var noDataInputs = map[string]struct{}{
	"н": {}, "Н": {}, "n": {}, "N": {},
}

// ParseLeadInput converts what a user typed into a lead cell.
//
// The "not tracked" marker maps to NoData, an empty cell to zero and a number
// (dot or comma decimal separator) to a count rounded half away from zero.
//
// Examples:
//
//	ParseLeadInput("н")   -> NoData
//	ParseLeadInput("")    -> Count(0)
//	ParseLeadInput("12")  -> Count(12)
//	ParseLeadInput("2,5") -> Count(3)
func ParseLeadInput(s string) (LeadValue, error) {
	s = strings.TrimSpace(s)
	if _, ok := noDataInputs[s]; ok {
		return NoData(), nil
	}
	if s == "" {
		return Count(0), nil
	}
	d, err := parseDecimal(s)
	if err != nil {
		return LeadValue{}, ErrInvalidLeadInput
	}
	if d.IsNegative() {
		return LeadValue{}, ErrInvalidLeadInput
	}
	return Count(int(d.Round(0).IntPart())), nil
}

// ParseAmount converts a budget/spend/goal/CPA cell into a non-negative number
// rounded to two decimals. An empty cell is zero.
func ParseAmount(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	d, err := parseDecimal(s)
	if err != nil || d.IsNegative() {
		return 0, ErrInvalidAmount
	}
	return d.Round(2).InexactFloat64(), nil
}

func parseDecimal(s string) (decimal.Decimal, error) {
	// Normalize decimal comma and thousands spaces
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, ",", ".")
	return decimal.NewFromString(s)
}
