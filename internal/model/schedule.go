package model

import "time"

// Frequency values for a dosing schedule.
const (
	FrequencyDaily         = "daily"
	FrequencyEveryOtherDay = "every_other_day"
	FrequencySpecificDays  = "specific_days"
	FrequencySpecificDates = "specific_dates"
)

// Meal relation values for a dosing schedule.
const (
	MealBefore     = "before_meal"
	MealAfter      = "after_meal"
	MealWith       = "with_meal"
	MealNoRelation = "no_relation"
)

// ValidMealRelation reports whether rel is a known meal relation.
func ValidMealRelation(rel string) bool {
	switch rel {
	case MealBefore, MealAfter, MealWith, MealNoRelation:
		return true
	}
	return false
}

// TimeEntry is one dose slot within a schedule: a time of day plus the
// amount to take at that time. Dosage is an opaque string; the engine
// only interprets it when decrementing stock.
type TimeEntry struct {
	Time   string `json:"time"`   // "HH:MM", 24-hour
	Dosage string `json:"dosage"` // e.g. "2", "0.5"
	Unit   string `json:"unit"`
}

// Schedule is a recurring dosing rule for one medication. Dates are
// stored as "YYYY-MM-DD" strings, matching the wire format; the
// schedule package parses and validates them.
type Schedule struct {
	ID           int64       `json:"id"`
	MedicationID int64       `json:"medication_id"`
	Frequency    string      `json:"frequency"`
	Days         []int       `json:"days,omitempty"`  // ISO weekdays 1-7, Mon=1; specific_days only
	Dates        []string    `json:"dates,omitempty"` // "YYYY-MM-DD"; specific_dates only
	Times        []TimeEntry `json:"times"`
	MealRelation string      `json:"meal_relation"`
	StartDate    string      `json:"start_date"` // "YYYY-MM-DD"
	EndDate      *string     `json:"end_date,omitempty"`
	DurationDays *int        `json:"duration_days,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}
