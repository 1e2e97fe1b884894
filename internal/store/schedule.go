package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/dukerupert/medkeep/internal/model"
)

type ScheduleStore struct {
	db *sql.DB
}

func NewScheduleStore(db *sql.DB) *ScheduleStore {
	return &ScheduleStore{db: db}
}

const scheduleCols = `id, medication_id, frequency, days, dates, times, meal_relation,
	start_date, end_date, duration_days, created_at, updated_at`

// days, dates and times are JSON text columns; the wire format and the
// storage format are the same.
func scanSchedule(s scanner) (*model.Schedule, error) {
	var (
		sc           model.Schedule
		days         string
		dates        string
		times        string
		endDate      sql.NullString
		durationDays sql.NullInt64
	)
	err := s.Scan(
		&sc.ID, &sc.MedicationID, &sc.Frequency, &days, &dates, &times, &sc.MealRelation,
		&sc.StartDate, &endDate, &durationDays, &sc.CreatedAt, &sc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(days), &sc.Days); err != nil {
		return nil, fmt.Errorf("decode days: %w", err)
	}
	if err := json.Unmarshal([]byte(dates), &sc.Dates); err != nil {
		return nil, fmt.Errorf("decode dates: %w", err)
	}
	if err := json.Unmarshal([]byte(times), &sc.Times); err != nil {
		return nil, fmt.Errorf("decode times: %w", err)
	}
	if endDate.Valid {
		sc.EndDate = &endDate.String
	}
	if durationDays.Valid {
		n := int(durationDays.Int64)
		sc.DurationDays = &n
	}
	return &sc, nil
}

func encodeScheduleJSON(sc model.Schedule) (days, dates, times string, err error) {
	if sc.Days == nil {
		sc.Days = []int{}
	}
	if sc.Dates == nil {
		sc.Dates = []string{}
	}
	if sc.Times == nil {
		sc.Times = []model.TimeEntry{}
	}
	d, err := json.Marshal(sc.Days)
	if err != nil {
		return "", "", "", fmt.Errorf("encode days: %w", err)
	}
	dt, err := json.Marshal(sc.Dates)
	if err != nil {
		return "", "", "", fmt.Errorf("encode dates: %w", err)
	}
	tm, err := json.Marshal(sc.Times)
	if err != nil {
		return "", "", "", fmt.Errorf("encode times: %w", err)
	}
	return string(d), string(dt), string(tm), nil
}

func (s *ScheduleStore) Create(sc model.Schedule) (*model.Schedule, error) {
	days, dates, times, err := encodeScheduleJSON(sc)
	if err != nil {
		return nil, err
	}

	result, err := s.db.Exec(
		`INSERT INTO schedules (medication_id, frequency, days, dates, times,
			meal_relation, start_date, end_date, duration_days)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sc.MedicationID, sc.Frequency, days, dates, times,
		sc.MealRelation, sc.StartDate, nullStr(sc.EndDate), nullInt(sc.DurationDays),
	)
	if err != nil {
		return nil, fmt.Errorf("insert schedule: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *ScheduleStore) GetByID(id int64) (*model.Schedule, error) {
	row := s.db.QueryRow(`SELECT `+scheduleCols+` FROM schedules WHERE id = ?`, id)
	sc, err := scanSchedule(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get schedule: %w", err)
	}
	return sc, nil
}

func (s *ScheduleStore) List() ([]model.Schedule, error) {
	return s.list(`SELECT ` + scheduleCols + ` FROM schedules ORDER BY id ASC`)
}

func (s *ScheduleStore) ListByMedication(medicationID int64) ([]model.Schedule, error) {
	return s.list(`SELECT `+scheduleCols+` FROM schedules WHERE medication_id = ? ORDER BY id ASC`, medicationID)
}

func (s *ScheduleStore) list(query string, args ...any) ([]model.Schedule, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list schedules: %w", err)
	}
	defer rows.Close()

	var schedules []model.Schedule
	for rows.Next() {
		sc, err := scanSchedule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan schedule: %w", err)
		}
		schedules = append(schedules, *sc)
	}
	return schedules, rows.Err()
}

func (s *ScheduleStore) Update(sc model.Schedule) (*model.Schedule, error) {
	days, dates, times, err := encodeScheduleJSON(sc)
	if err != nil {
		return nil, err
	}

	_, err = s.db.Exec(
		`UPDATE schedules SET frequency = ?, days = ?, dates = ?, times = ?,
			meal_relation = ?, start_date = ?, end_date = ?, duration_days = ?,
			updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		sc.Frequency, days, dates, times,
		sc.MealRelation, sc.StartDate, nullStr(sc.EndDate), nullInt(sc.DurationDays),
		sc.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("update schedule: %w", err)
	}
	return s.GetByID(sc.ID)
}

// Delete removes the schedule; its intakes cascade at the schema level.
func (s *ScheduleStore) Delete(id int64) error {
	_, err := s.db.Exec(`DELETE FROM schedules WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete schedule: %w", err)
	}
	return nil
}

func nullStr(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

func nullInt(p *int) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}
