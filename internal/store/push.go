package store

import (
	"database/sql"
	"fmt"

	"github.com/dukerupert/medkeep/internal/model"
)

type PushStore struct {
	db *sql.DB
}

func NewPushStore(db *sql.DB) *PushStore {
	return &PushStore{db: db}
}

const pushCols = `id, device_id, endpoint, p256dh_key, auth_key, created_at`

func scanSubscription(s scanner) (*model.PushSubscription, error) {
	var sub model.PushSubscription
	err := s.Scan(&sub.ID, &sub.DeviceID, &sub.Endpoint, &sub.P256dhKey, &sub.AuthKey, &sub.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// Upsert registers a device's subscription, replacing the keys if the
// endpoint is already known (browsers rotate keys on re-subscribe).
func (s *PushStore) Upsert(sub model.PushSubscription) (*model.PushSubscription, error) {
	_, err := s.db.Exec(
		`INSERT INTO push_subscriptions (device_id, endpoint, p256dh_key, auth_key)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(endpoint) DO UPDATE SET
			device_id = excluded.device_id,
			p256dh_key = excluded.p256dh_key,
			auth_key = excluded.auth_key`,
		sub.DeviceID, sub.Endpoint, sub.P256dhKey, sub.AuthKey,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert subscription: %w", err)
	}

	row := s.db.QueryRow(`SELECT `+pushCols+` FROM push_subscriptions WHERE endpoint = ?`, sub.Endpoint)
	out, err := scanSubscription(row)
	if err != nil {
		return nil, fmt.Errorf("get subscription: %w", err)
	}
	return out, nil
}

func (s *PushStore) List() ([]model.PushSubscription, error) {
	rows, err := s.db.Query(`SELECT ` + pushCols + ` FROM push_subscriptions ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []model.PushSubscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		subs = append(subs, *sub)
	}
	return subs, rows.Err()
}

func (s *PushStore) DeleteByEndpoint(endpoint string) error {
	_, err := s.db.Exec(`DELETE FROM push_subscriptions WHERE endpoint = ?`, endpoint)
	if err != nil {
		return fmt.Errorf("delete subscription: %w", err)
	}
	return nil
}

// WasSent reports whether a notification with this type and reference
// has already been delivered.
func (s *PushStore) WasSent(notifType, refID string) (bool, error) {
	var n int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM notification_log WHERE notif_type = ? AND ref_id = ?`,
		notifType, refID,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check notification log: %w", err)
	}
	return n > 0, nil
}

// RecordSent marks a notification as delivered. The unique constraint
// makes a concurrent duplicate a no-op.
func (s *PushStore) RecordSent(notifType, refID string) error {
	_, err := s.db.Exec(
		`INSERT INTO notification_log (notif_type, ref_id) VALUES (?, ?)
		 ON CONFLICT (notif_type, ref_id) DO NOTHING`,
		notifType, refID,
	)
	if err != nil {
		return fmt.Errorf("record notification: %w", err)
	}
	return nil
}

// PruneLog drops dedupe records older than the given number of days.
// The log only needs to cover the reminder window, not forever.
func (s *PushStore) PruneLog(days int) error {
	_, err := s.db.Exec(
		`DELETE FROM notification_log WHERE sent_at < datetime('now', ?)`,
		fmt.Sprintf("-%d days", days),
	)
	if err != nil {
		return fmt.Errorf("prune notification log: %w", err)
	}
	return nil
}
