package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/medkeep/internal/model"
)

type IntakeStore struct {
	db *sql.DB
}

func NewIntakeStore(db *sql.DB) *IntakeStore {
	return &IntakeStore{db: db}
}

const intakeCols = `id, schedule_id, medication_id, scheduled_date, scheduled_time,
	dosage, unit, status, taken_at, medication_name, meal_relation, instructions,
	icon_name, icon_color, version, created_at, updated_at`

func scanIntake(s scanner) (*model.Intake, error) {
	var (
		i       model.Intake
		takenAt sql.NullTime
	)
	err := s.Scan(
		&i.ID, &i.ScheduleID, &i.MedicationID, &i.ScheduledDate, &i.ScheduledTime,
		&i.Dosage, &i.Unit, &i.Status, &takenAt, &i.MedicationName, &i.MealRelation,
		&i.Instructions, &i.IconName, &i.IconColor, &i.Version, &i.CreatedAt, &i.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if takenAt.Valid {
		t := takenAt.Time
		i.TakenAt = &t
	}
	return &i, nil
}

// InsertIfAbsent materializes one occurrence. The unique index on
// (schedule_id, scheduled_date, scheduled_time) plus ON CONFLICT DO
// NOTHING makes this race-safe under concurrent materialization runs:
// there is no check-then-insert window. Returns whether a row was
// actually created.
func (s *IntakeStore) InsertIfAbsent(i model.Intake) (bool, error) {
	result, err := s.db.Exec(
		`INSERT INTO intakes (schedule_id, medication_id, scheduled_date, scheduled_time,
			dosage, unit, status, medication_name, meal_relation, instructions,
			icon_name, icon_color)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (schedule_id, scheduled_date, scheduled_time) DO NOTHING`,
		i.ScheduleID, i.MedicationID, i.ScheduledDate, i.ScheduledTime,
		i.Dosage, i.Unit, model.IntakePending, i.MedicationName, i.MealRelation,
		i.Instructions, i.IconName, i.IconColor,
	)
	if err != nil {
		return false, fmt.Errorf("insert intake: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return rows > 0, nil
}

func (s *IntakeStore) GetByID(id int64) (*model.Intake, error) {
	row := s.db.QueryRow(`SELECT `+intakeCols+` FROM intakes WHERE id = ?`, id)
	i, err := scanIntake(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get intake: %w", err)
	}
	return i, nil
}

// ListByDateRange returns intakes with scheduled_date in [from, to]
// (inclusive, "YYYY-MM-DD"), ordered by date then time.
func (s *IntakeStore) ListByDateRange(from, to string) ([]model.Intake, error) {
	return s.list(
		`SELECT `+intakeCols+` FROM intakes
		 WHERE scheduled_date >= ? AND scheduled_date <= ?
		 ORDER BY scheduled_date ASC, scheduled_time ASC, id ASC`,
		from, to,
	)
}

// ListPendingInRange returns pending intakes in the window, for
// reminder evaluation.
func (s *IntakeStore) ListPendingInRange(from, to string) ([]model.Intake, error) {
	return s.list(
		`SELECT `+intakeCols+` FROM intakes
		 WHERE status = ? AND scheduled_date >= ? AND scheduled_date <= ?
		 ORDER BY scheduled_date ASC, scheduled_time ASC, id ASC`,
		model.IntakePending, from, to,
	)
}

func (s *IntakeStore) ListBySchedule(scheduleID int64) ([]model.Intake, error) {
	return s.list(
		`SELECT `+intakeCols+` FROM intakes WHERE schedule_id = ?
		 ORDER BY scheduled_date ASC, scheduled_time ASC, id ASC`,
		scheduleID,
	)
}

func (s *IntakeStore) list(query string, args ...any) ([]model.Intake, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list intakes: %w", err)
	}
	defer rows.Close()

	var intakes []model.Intake
	for rows.Next() {
		i, err := scanIntake(rows)
		if err != nil {
			return nil, fmt.Errorf("scan intake: %w", err)
		}
		intakes = append(intakes, *i)
	}
	return intakes, rows.Err()
}

// StockUpdate carries the medication counter write that accompanies a
// status transition.
type StockUpdate struct {
	MedicationID int64
	Version      int64
	Remaining    int
	LowStock     bool
}

// TransitionCAS applies a status change and, when stock is tracked,
// the matching medication counter update in a single transaction.
// Both writes are version-guarded; if either row moved, nothing is
// committed and ErrStaleWrite is returned so the caller can retry
// against fresh state. This is the atomic unit that keeps adherence
// history and inventory consistent.
func (s *IntakeStore) TransitionCAS(intakeID, version int64, status string, takenAt *time.Time, stock *StockUpdate) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var takenVal sql.NullTime
	if takenAt != nil {
		takenVal = sql.NullTime{Time: *takenAt, Valid: true}
	}

	result, err := tx.Exec(
		`UPDATE intakes SET status = ?, taken_at = ?, version = version + 1,
			updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND version = ?`,
		status, takenVal, intakeID, version,
	)
	if err != nil {
		return fmt.Errorf("update intake status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return ErrStaleWrite
	}

	if stock != nil {
		result, err = tx.Exec(
			`UPDATE medications SET remaining_quantity = ?, low_stock = ?,
				version = version + 1, updated_at = CURRENT_TIMESTAMP
			 WHERE id = ? AND version = ?`,
			stock.Remaining, stock.LowStock, stock.MedicationID, stock.Version,
		)
		if err != nil {
			return fmt.Errorf("update medication stock: %w", err)
		}
		rows, err = result.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if rows == 0 {
			return ErrStaleWrite
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transition: %w", err)
	}
	return nil
}

// SettleOverdue persists the implicit missed state for pending intakes
// dated strictly before today ("YYYY-MM-DD"). Returns the number of
// rows settled.
func (s *IntakeStore) SettleOverdue(today string) (int64, error) {
	result, err := s.db.Exec(
		`UPDATE intakes SET status = ?, version = version + 1,
			updated_at = CURRENT_TIMESTAMP
		 WHERE status = ? AND scheduled_date < ?`,
		model.IntakeMissed, model.IntakePending, today,
	)
	if err != nil {
		return 0, fmt.Errorf("settle overdue intakes: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return rows, nil
}

// DeletePendingFrom removes still-pending intakes for a schedule dated
// on or after the given date. Used when a schedule is edited: future
// pending rows are re-materialized from the new definition, while
// terminal rows stay untouched as history.
func (s *IntakeStore) DeletePendingFrom(scheduleID int64, date string) error {
	_, err := s.db.Exec(
		`DELETE FROM intakes WHERE schedule_id = ? AND status = ? AND scheduled_date >= ?`,
		scheduleID, model.IntakePending, date,
	)
	if err != nil {
		return fmt.Errorf("delete pending intakes: %w", err)
	}
	return nil
}
