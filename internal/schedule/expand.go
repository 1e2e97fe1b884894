package schedule

import (
	"errors"
	"fmt"
	"time"

	"github.com/dukerupert/medkeep/internal/model"
)

const (
	// DateLayout is the calendar-date wire format used throughout.
	DateLayout = "2006-01-02"
	// TimeLayout is the time-of-day wire format for dose slots.
	TimeLayout = "15:04"
)

// ErrInvalidConfig is the sentinel for a malformed schedule definition.
// Specific failures are reported as *ConfigError, which unwraps to it.
var ErrInvalidConfig = errors.New("invalid schedule configuration")

// ConfigError describes which part of a schedule definition is invalid.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid schedule: %s: %s", e.Field, e.Reason)
}

func (e *ConfigError) Unwrap() error { return ErrInvalidConfig }

func configErr(field, reason string) error {
	return &ConfigError{Field: field, Reason: reason}
}

// Occurrence is one concrete dose slot produced by expansion: a
// calendar date plus one of the schedule's time entries. It is a
// logical value, not a persisted row.
type Occurrence struct {
	ScheduleID int64
	Date       time.Time // midnight UTC
	Entry      model.TimeEntry
}

// DateString returns the occurrence date in wire format.
func (o Occurrence) DateString() string {
	return o.Date.Format(DateLayout)
}

// ParseDate parses a "YYYY-MM-DD" string to midnight UTC.
func ParseDate(s string) (time.Time, error) {
	return time.Parse(DateLayout, s)
}

// Validate checks a schedule definition against the recurrence rules.
// It is called at create/edit time by the API layer and again by
// Expand, so a schedule that reached the database can still be
// rejected cleanly if it predates a rule change.
func Validate(s model.Schedule) error {
	switch s.Frequency {
	case model.FrequencyDaily, model.FrequencyEveryOtherDay:
	case model.FrequencySpecificDays:
		if len(s.Days) == 0 {
			return configErr("days", "required for specific_days")
		}
		for _, d := range s.Days {
			if d < 1 || d > 7 {
				return configErr("days", fmt.Sprintf("weekday %d out of range 1-7", d))
			}
		}
	case model.FrequencySpecificDates:
		if len(s.Dates) == 0 {
			return configErr("dates", "required for specific_dates")
		}
		for _, ds := range s.Dates {
			if _, err := ParseDate(ds); err != nil {
				return configErr("dates", fmt.Sprintf("bad date %q", ds))
			}
		}
	default:
		return configErr("frequency", fmt.Sprintf("unknown frequency %q", s.Frequency))
	}

	if len(s.Times) == 0 {
		return configErr("times", "at least one time entry is required")
	}
	for _, entry := range s.Times {
		if _, err := time.Parse(TimeLayout, entry.Time); err != nil {
			return configErr("times", fmt.Sprintf("bad time %q", entry.Time))
		}
	}

	start, err := ParseDate(s.StartDate)
	if err != nil {
		return configErr("start_date", fmt.Sprintf("bad date %q", s.StartDate))
	}

	if s.EndDate != nil && s.DurationDays != nil {
		return configErr("end_date", "end_date and duration_days are mutually exclusive")
	}
	if s.EndDate != nil {
		end, err := ParseDate(*s.EndDate)
		if err != nil {
			return configErr("end_date", fmt.Sprintf("bad date %q", *s.EndDate))
		}
		if end.Before(start) {
			return configErr("end_date", "end_date is before start_date")
		}
	}
	if s.DurationDays != nil && *s.DurationDays < 1 {
		return configErr("duration_days", "must be at least 1")
	}

	if s.MealRelation != "" && !model.ValidMealRelation(s.MealRelation) {
		return configErr("meal_relation", fmt.Sprintf("unknown value %q", s.MealRelation))
	}

	return nil
}

// Expand generates the schedule's occurrences with dates inside
// [windowStart, windowEnd] (inclusive, day granularity). It is pure
// and deterministic: the same schedule and window always produce the
// same ordered sequence, dates ascending and time entries in schedule
// order within a date.
//
// An open-ended schedule (no end_date, no duration_days) is bounded
// only by the window; callers must always pass a finite window.
func Expand(s model.Schedule, windowStart, windowEnd time.Time) ([]Occurrence, error) {
	if err := Validate(s); err != nil {
		return nil, err
	}

	start, _ := ParseDate(s.StartDate)

	lo := truncateDay(windowStart)
	if start.After(lo) {
		lo = start
	}
	hi := truncateDay(windowEnd)
	if end, bounded := effectiveEnd(s, start); bounded && end.Before(hi) {
		hi = end
	}
	if hi.Before(lo) {
		return nil, nil
	}

	var wanted map[string]bool
	if s.Frequency == model.FrequencySpecificDates {
		wanted = make(map[string]bool, len(s.Dates))
		for _, ds := range s.Dates {
			wanted[ds] = true
		}
	}

	var out []Occurrence
	for d := lo; !d.After(hi); d = d.AddDate(0, 0, 1) {
		var due bool
		switch s.Frequency {
		case model.FrequencyDaily:
			due = true
		case model.FrequencyEveryOtherDay:
			due = daysBetween(start, d)%2 == 0
		case model.FrequencySpecificDays:
			due = containsInt(s.Days, isoWeekday(d))
		case model.FrequencySpecificDates:
			due = wanted[d.Format(DateLayout)]
		}
		if !due {
			continue
		}
		for _, entry := range s.Times {
			out = append(out, Occurrence{ScheduleID: s.ID, Date: d, Entry: entry})
		}
	}
	return out, nil
}

// effectiveEnd returns the last date on which the schedule can produce
// occurrences, and whether such a bound exists.
func effectiveEnd(s model.Schedule, start time.Time) (time.Time, bool) {
	if s.EndDate != nil {
		end, _ := ParseDate(*s.EndDate)
		return end, true
	}
	if s.DurationDays != nil {
		return start.AddDate(0, 0, *s.DurationDays-1), true
	}
	return time.Time{}, false
}

// isoWeekday maps time.Weekday to ISO numbering: Monday=1 ... Sunday=7.
func isoWeekday(t time.Time) int {
	wd := int(t.Weekday())
	if wd == 0 {
		return 7
	}
	return wd
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func daysBetween(a, b time.Time) int {
	return int(b.Sub(a) / (24 * time.Hour))
}

func containsInt(xs []int, x int) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}
