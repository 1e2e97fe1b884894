package model

import "time"

// PushSubscription is one device's Web Push registration.
type PushSubscription struct {
	ID        int64     `json:"id"`
	DeviceID  string    `json:"device_id"`
	Endpoint  string    `json:"endpoint"`
	P256dhKey string    `json:"-"`
	AuthKey   string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// Notification types recorded in the dedupe log.
const (
	NotifTypeDoseReminder = "dose_reminder"
	NotifTypeLowStock     = "low_stock"
)

// NotificationRecord marks that a notification was delivered, keyed by
// type and reference, so re-evaluating the same reminder window never
// double-sends.
type NotificationRecord struct {
	ID        int64     `json:"id"`
	NotifType string    `json:"notif_type"`
	RefID     string    `json:"ref_id"`
	SentAt    time.Time `json:"sent_at"`
}
