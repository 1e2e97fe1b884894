// Package reminder decides when a notification should fire. It is
// pure computation over the current time, intake rows, and the user's
// notification settings; delivery and dedupe belong to the push
// scheduler.
package reminder

import (
	"time"

	"github.com/dukerupert/medkeep/internal/inventory"
	"github.com/dukerupert/medkeep/internal/model"
	"github.com/dukerupert/medkeep/internal/schedule"
)

type Kind string

const (
	KindUpcomingDose Kind = "upcoming_dose"
	KindLowStock     Kind = "low_stock"
)

// Event is one reminder that is due now.
type Event struct {
	Kind           Kind
	IntakeID       int64
	MedicationID   int64
	MedicationName string
	Dosage         string
	Unit           string
	ScheduledAt    time.Time
	NotifyAt       time.Time

	// Low-stock only.
	Remaining int
	Threshold int
}

// DueReminders returns the upcoming-dose reminders due at now. An
// intake is due iff it is still pending, reminders are enabled, and
// now falls in [scheduledAt - lead, scheduledAt). The function is
// deterministic in its inputs: re-evaluating with the same now and the
// same rows yields the same events, and a terminal intake never
// produces one. Dates and times are interpreted in loc, the user's
// timezone.
func DueReminders(now time.Time, intakes []model.Intake, settings model.NotificationSettings, loc *time.Location) []Event {
	if !settings.MedicationRemindersEnabled {
		return nil
	}

	lead := time.Duration(settings.MinutesBeforeScheduledTime) * time.Minute

	var events []Event
	for _, i := range intakes {
		if i.Status != model.IntakePending {
			continue
		}
		scheduledAt, ok := scheduledAt(i, loc)
		if !ok {
			continue
		}
		notifyAt := scheduledAt.Add(-lead)
		if now.Before(notifyAt) || !now.Before(scheduledAt) {
			continue
		}
		events = append(events, Event{
			Kind:           KindUpcomingDose,
			IntakeID:       i.ID,
			MedicationID:   i.MedicationID,
			MedicationName: i.MedicationName,
			Dosage:         i.Dosage,
			Unit:           i.Unit,
			ScheduledAt:    scheduledAt,
			NotifyAt:       notifyAt,
		})
	}
	return events
}

// LowStock converts inventory threshold crossings into reminder
// events, gated by the user's low-stock setting. Crossings are edge
// events from the inventory tracker; nothing here re-derives them from
// current stock levels.
func LowStock(crossings []inventory.Event, settings model.NotificationSettings) []Event {
	if !settings.LowStockRemindersEnabled {
		return nil
	}

	var events []Event
	for _, c := range crossings {
		events = append(events, Event{
			Kind:           KindLowStock,
			MedicationID:   c.MedicationID,
			MedicationName: c.MedicationName,
			Remaining:      c.Remaining,
			Threshold:      c.Threshold,
		})
	}
	return events
}

func scheduledAt(i model.Intake, loc *time.Location) (time.Time, bool) {
	t, err := time.ParseInLocation(
		schedule.DateLayout+" "+schedule.TimeLayout,
		i.ScheduledDate+" "+i.ScheduledTime,
		loc,
	)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
