package store

import (
	"database/sql"
	"fmt"

	"github.com/dukerupert/medkeep/internal/model"
)

type MedicationStore struct {
	db *sql.DB
}

func NewMedicationStore(db *sql.DB) *MedicationStore {
	return &MedicationStore{db: db}
}

const medicationCols = `id, name, form, dosage_per_unit, unit, instructions,
	total_quantity, remaining_quantity, low_stock_threshold, track_stock, low_stock,
	icon_name, icon_color, version, created_at, updated_at`

func scanMedication(s scanner) (*model.Medication, error) {
	var m model.Medication
	err := s.Scan(
		&m.ID, &m.Name, &m.Form, &m.DosagePerUnit, &m.Unit, &m.Instructions,
		&m.TotalQuantity, &m.RemainingQuantity, &m.LowStockThreshold, &m.TrackStock, &m.LowStock,
		&m.IconName, &m.IconColor, &m.Version, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *MedicationStore) Create(m model.Medication) (*model.Medication, error) {
	result, err := s.db.Exec(
		`INSERT INTO medications (name, form, dosage_per_unit, unit, instructions,
			total_quantity, remaining_quantity, low_stock_threshold, track_stock,
			icon_name, icon_color)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.Name, m.Form, m.DosagePerUnit, m.Unit, m.Instructions,
		m.TotalQuantity, m.RemainingQuantity, m.LowStockThreshold, m.TrackStock,
		m.IconName, m.IconColor,
	)
	if err != nil {
		return nil, fmt.Errorf("insert medication: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *MedicationStore) GetByID(id int64) (*model.Medication, error) {
	row := s.db.QueryRow(`SELECT `+medicationCols+` FROM medications WHERE id = ?`, id)
	m, err := scanMedication(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get medication: %w", err)
	}
	return m, nil
}

func (s *MedicationStore) List() ([]model.Medication, error) {
	rows, err := s.db.Query(`SELECT ` + medicationCols + ` FROM medications ORDER BY name ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list medications: %w", err)
	}
	defer rows.Close()

	var meds []model.Medication
	for rows.Next() {
		m, err := scanMedication(rows)
		if err != nil {
			return nil, fmt.Errorf("scan medication: %w", err)
		}
		meds = append(meds, *m)
	}
	return meds, rows.Err()
}

// Update writes the user-editable fields. Remaining quantity and the
// low-stock latch are deliberately excluded: only the inventory paths
// (dose transitions, restock) touch those, via compare-and-set.
func (s *MedicationStore) Update(m model.Medication) (*model.Medication, error) {
	_, err := s.db.Exec(
		`UPDATE medications SET name = ?, form = ?, dosage_per_unit = ?, unit = ?,
			instructions = ?, total_quantity = ?, low_stock_threshold = ?,
			track_stock = ?, icon_name = ?, icon_color = ?,
			updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		m.Name, m.Form, m.DosagePerUnit, m.Unit,
		m.Instructions, m.TotalQuantity, m.LowStockThreshold,
		m.TrackStock, m.IconName, m.IconColor,
		m.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("update medication: %w", err)
	}
	return s.GetByID(m.ID)
}

// Delete removes the medication. Schedules and intakes cascade at the
// schema level.
func (s *MedicationStore) Delete(id int64) error {
	_, err := s.db.Exec(`DELETE FROM medications WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete medication: %w", err)
	}
	return nil
}

// UpdateStockCAS writes new counter values if and only if the row is
// still at the given version. Returns ErrStaleWrite on a lost race.
func (s *MedicationStore) UpdateStockCAS(id, version int64, remaining int, lowStock bool) error {
	result, err := s.db.Exec(
		`UPDATE medications SET remaining_quantity = ?, low_stock = ?,
			version = version + 1, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND version = ?`,
		remaining, lowStock, id, version,
	)
	if err != nil {
		return fmt.Errorf("update stock: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return ErrStaleWrite
	}
	return nil
}
