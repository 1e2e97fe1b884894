package model

import "time"

// Intake status values.
const (
	IntakePending = "pending"
	IntakeTaken   = "taken"
	IntakeMissed  = "missed"
)

// Intake is the persisted record of one dose occurrence. Rows are
// unique on (schedule_id, scheduled_date, scheduled_time); the display
// fields are copied from the medication and schedule at materialization
// time so a day view needs no joins.
type Intake struct {
	ID            int64      `json:"id"`
	ScheduleID    int64      `json:"schedule_id"`
	MedicationID  int64      `json:"medication_id"`
	ScheduledDate string     `json:"scheduled_date"` // "YYYY-MM-DD"
	ScheduledTime string     `json:"scheduled_time"` // "HH:MM"
	Dosage        string     `json:"dosage"`
	Unit          string     `json:"unit"`
	Status        string     `json:"status"`
	TakenAt       *time.Time `json:"taken_at,omitempty"`

	MedicationName string `json:"medication_name"`
	MealRelation   string `json:"meal_relation"`
	Instructions   string `json:"instructions"`
	IconName       string `json:"icon_name"`
	IconColor      string `json:"icon_color"`

	Version   int64     `json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
