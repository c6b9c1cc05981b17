package domain

import (
	"database/sql/driver"
	"fmt"
	"strconv"
	"strings"
)

// FrequencyUnit is the closed set of recurrence units a liability schedule
// may use. Unknown strings are rejected at parse time, never defaulted.
type FrequencyUnit string

const (
	FrequencyDaily      FrequencyUnit = "daily"
	FrequencyWeekly     FrequencyUnit = "weekly"
	FrequencyBiweekly   FrequencyUnit = "biweekly"
	FrequencyMonthly    FrequencyUnit = "monthly"
	FrequencyBimonthly  FrequencyUnit = "bimonthly"
	FrequencyQuarterly  FrequencyUnit = "quarterly"
	FrequencyHalfyearly FrequencyUnit = "halfyearly"
	FrequencyYearly     FrequencyUnit = "yearly"
	FrequencyCustom     FrequencyUnit = "custom"
)

// Frequency is a recurrence schedule. IntervalDays is meaningful only for
// the custom unit, where it must be positive.
type Frequency struct {
	Unit         FrequencyUnit
	IntervalDays int
}

// ParseFrequency parses the string form produced by String: a bare unit
// name, or "custom:N" with N the interval in days.
func ParseFrequency(s string) (Frequency, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if rest, ok := strings.CutPrefix(s, string(FrequencyCustom)+":"); ok {
		days, err := strconv.Atoi(rest)
		if err != nil || days <= 0 {
			return Frequency{}, Ef(CodeInvalidInput, "invalid custom frequency interval %q", rest)
		}
		return Frequency{Unit: FrequencyCustom, IntervalDays: days}, nil
	}
	switch FrequencyUnit(s) {
	case FrequencyDaily, FrequencyWeekly, FrequencyBiweekly, FrequencyMonthly, FrequencyBimonthly, FrequencyQuarterly, FrequencyHalfyearly, FrequencyYearly:
		return Frequency{Unit: FrequencyUnit(s)}, nil
	case FrequencyCustom:
		return Frequency{}, E(CodeInvalidInput, "custom frequency requires an interval, use custom:<days>")
	}
	return Frequency{}, Ef(CodeInvalidInput, "unknown frequency %q", s)
}

func (f Frequency) String() string {
	if f.Unit == FrequencyCustom {
		return fmt.Sprintf("%s:%d", FrequencyCustom, f.IntervalDays)
	}
	return string(f.Unit)
}

// Valid reports whether f is a well-formed frequency.
func (f Frequency) Valid() bool {
	switch f.Unit {
	case FrequencyDaily, FrequencyWeekly, FrequencyBiweekly, FrequencyMonthly, FrequencyBimonthly, FrequencyQuarterly, FrequencyHalfyearly, FrequencyYearly:
		return true
	case FrequencyCustom:
		return f.IntervalDays > 0
	}
	return false
}

// Months returns the month step for month-based units. ok is false for
// day-based units, whose schedules advance by fixed day counts instead.
func (f Frequency) Months() (int, bool) {
	switch f.Unit {
	case FrequencyMonthly:
		return 1, true
	case FrequencyBimonthly:
		return 2, true
	case FrequencyQuarterly:
		return 3, true
	case FrequencyHalfyearly:
		return 6, true
	case FrequencyYearly:
		return 12, true
	}
	return 0, false
}

// Days returns the day step for day-based units.
func (f Frequency) Days() (int, bool) {
	switch f.Unit {
	case FrequencyDaily:
		return 1, true
	case FrequencyWeekly:
		return 7, true
	case FrequencyBiweekly:
		return 14, true
	case FrequencyCustom:
		return f.IntervalDays, true
	}
	return 0, false
}

func (f Frequency) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(f.String())), nil
}

func (f *Frequency) UnmarshalJSON(data []byte) error {
	s, err := strconv.Unquote(string(data))
	if err != nil {
		return fmt.Errorf("Frequency.UnmarshalJSON: %w", err)
	}
	parsed, err := ParseFrequency(s)
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

// Value implements driver.Valuer so a Frequency can be stored in a text
// column.
func (f Frequency) Value() (driver.Value, error) {
	return f.String(), nil
}

// Scan implements sql.Scanner for the text column form.
func (f *Frequency) Scan(value interface{}) error {
	switch v := value.(type) {
	case string:
		parsed, err := ParseFrequency(v)
		if err != nil {
			return err
		}
		*f = parsed
		return nil
	case []byte:
		return f.Scan(string(v))
	case nil:
		*f = Frequency{}
		return nil
	}
	return fmt.Errorf("Frequency.Scan: unsupported type %T", value)
}
