// Package coerce turns loosely typed form and file values into typed ones.
// None of the functions fail: unparseable input yields the documented
// fallback so that single-add and bulk-import paths behave the same.
package coerce

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rl1809/shipstore/internal/core/domain"
)

// DateLayout is the canonical textual form of a date.
const DateLayout = "2006-01-02"

var dateLayouts = []string{
	DateLayout,
	"2006/01/02",
	"02-01-2006",
	"02/01/2006",
	"2-Jan-2006",
	"02 Jan 2006",
	"Jan 2, 2006",
	"2006-01-02 15:04:05",
	time.RFC3339,
}

// Text trims s and blanks out the placeholders spreadsheets write for
// missing cells.
func Text(s string) string {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "nan", "none", "null", "<na>":
		return ""
	}
	return s
}

// ParseDecimal parses s without rounding. ok is false for blank or
// unparseable input.
func ParseDecimal(s string) (d decimal.Decimal, ok bool) {
	s = strings.ReplaceAll(Text(s), ",", "")
	if s == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// Decimal parses s as a quantity rounded to the store precision. Values
// outside the storable range yield fallback.
func Decimal(s string, fallback decimal.Decimal) decimal.Decimal {
	d, ok := ParseDecimal(s)
	if !ok || !domain.QuantityInRange(d) {
		return fallback
	}
	return domain.NormalizeQuantity(d)
}

// maxIntFloat is -MinInt; floats strictly inside ±maxIntFloat convert to int.
const maxIntFloat = -float64(math.MinInt)

// Int parses s as an integer, accepting whole-number floats such as "3.0".
func Int(s string, fallback int) int {
	s = Text(s)
	if s == "" {
		return fallback
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || f >= maxIntFloat || f < -maxIntFloat {
		return fallback
	}
	return int(f)
}

func Bool(s string) bool {
	switch strings.ToLower(Text(s)) {
	case "true", "1", "yes", "y", "t":
		return true
	}
	return false
}

// Date normalizes s to midnight UTC of the day it names, or nil.
func Date(s string) *time.Time {
	s = Text(s)
	if s == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		return &d
	}
	return nil
}

func FormatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(DateLayout)
}
