package model

import "time"

// NotificationSettings is a singleton row controlling reminder
// computation. Read-only input to the reminder engine.
type NotificationSettings struct {
	MedicationRemindersEnabled bool      `json:"medication_reminders_enabled"`
	MinutesBeforeScheduledTime int       `json:"minutes_before_scheduled_time"`
	LowStockRemindersEnabled   bool      `json:"low_stock_reminders_enabled"`
	UpdatedAt                  time.Time `json:"updated_at"`
}

// DefaultNotificationSettings returns the settings applied before the
// user has saved any: reminders on, 15 minutes of lead time.
func DefaultNotificationSettings() NotificationSettings {
	return NotificationSettings{
		MedicationRemindersEnabled: true,
		MinutesBeforeScheduledTime: 15,
		LowStockRemindersEnabled:   true,
	}
}

// Setting is one row of the generic key/value settings table used by
// the backup subsystem.
type Setting struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}
