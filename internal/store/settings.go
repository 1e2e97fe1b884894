package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/medkeep/internal/model"
)

var backupKeys = []string{
	"backup_enabled",
	"backup_schedule_hour",
	"backup_retention_days",
	"backup_passphrase_salt",
}

type SettingsStore struct {
	db *sql.DB
}

func NewSettingsStore(db *sql.DB) *SettingsStore {
	return &SettingsStore{db: db}
}

// GetNotification returns the singleton notification settings row.
// The migration seeds it, so a missing row means a broken database and
// is reported as an error rather than silently defaulted.
func (s *SettingsStore) GetNotification() (*model.NotificationSettings, error) {
	var ns model.NotificationSettings
	err := s.db.QueryRow(
		`SELECT medication_reminders_enabled, minutes_before_scheduled_time,
			low_stock_reminders_enabled, updated_at
		 FROM notification_settings WHERE id = 1`,
	).Scan(&ns.MedicationRemindersEnabled, &ns.MinutesBeforeScheduledTime,
		&ns.LowStockRemindersEnabled, &ns.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("get notification settings: %w", err)
	}
	return &ns, nil
}

func (s *SettingsStore) UpdateNotification(ns model.NotificationSettings) (*model.NotificationSettings, error) {
	_, err := s.db.Exec(
		`UPDATE notification_settings
		 SET medication_reminders_enabled = ?, minutes_before_scheduled_time = ?,
			low_stock_reminders_enabled = ?, updated_at = ?
		 WHERE id = 1`,
		ns.MedicationRemindersEnabled, ns.MinutesBeforeScheduledTime,
		ns.LowStockRemindersEnabled, time.Now().UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("update notification settings: %w", err)
	}
	return s.GetNotification()
}

// Get returns one key from the generic settings table.
func (s *SettingsStore) Get(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("setting %q not found", key)
	}
	if err != nil {
		return "", fmt.Errorf("get setting %q: %w", key, err)
	}
	return value, nil
}

func (s *SettingsStore) Set(key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("set setting %q: %w", key, err)
	}
	return nil
}

// GetBackupSettings returns the backup-related keys that exist.
func (s *SettingsStore) GetBackupSettings() (map[string]string, error) {
	settings := make(map[string]string)
	for _, key := range backupKeys {
		var value string
		err := s.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("get backup setting %q: %w", key, err)
		}
		settings[key] = value
	}
	return settings, nil
}
