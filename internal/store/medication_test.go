package store

import (
	"errors"
	"testing"

	"github.com/dukerupert/medkeep/internal/database"
	"github.com/dukerupert/medkeep/internal/model"
)

func setupMedicationTestDB(t *testing.T) *MedicationStore {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewMedicationStore(db)
}

func TestMedicationCRUD(t *testing.T) {
	ms := setupMedicationTestDB(t)

	med, err := ms.Create(model.Medication{
		Name:              "Amoxicillin",
		Form:              model.FormCapsule,
		Unit:              "capsule",
		TotalQuantity:     30,
		RemainingQuantity: 30,
		LowStockThreshold: 5,
		TrackStock:        true,
		IconName:          "pill",
		IconColor:         "#ff8800",
	})
	if err != nil {
		t.Fatalf("create medication: %v", err)
	}
	if med.ID == 0 {
		t.Fatal("expected assigned id")
	}
	if med.Version != 1 {
		t.Errorf("version = %d, want 1", med.Version)
	}
	if med.LowStock {
		t.Error("new medication should not be low on stock")
	}

	got, err := ms.GetByID(med.ID)
	if err != nil {
		t.Fatalf("get medication: %v", err)
	}
	if got.Name != "Amoxicillin" || got.Form != model.FormCapsule {
		t.Errorf("got %q/%q, want Amoxicillin/capsule", got.Name, got.Form)
	}

	med.Name = "Amoxicillin 500mg"
	med.LowStockThreshold = 8
	updated, err := ms.Update(*med)
	if err != nil {
		t.Fatalf("update medication: %v", err)
	}
	if updated.Name != "Amoxicillin 500mg" || updated.LowStockThreshold != 8 {
		t.Errorf("update not applied: %+v", updated)
	}

	if err := ms.Delete(med.ID); err != nil {
		t.Fatalf("delete medication: %v", err)
	}
	got, err = ms.GetByID(med.ID)
	if err != nil {
		t.Fatalf("get after delete: %v", err)
	}
	if got != nil {
		t.Error("medication should be gone after delete")
	}
}

func TestMedicationUpdateLeavesCounters(t *testing.T) {
	ms := setupMedicationTestDB(t)

	med, err := ms.Create(model.Medication{Name: "Iron", TotalQuantity: 20, RemainingQuantity: 7, TrackStock: true})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	med.RemainingQuantity = 99 // must be ignored by Update
	updated, err := ms.Update(*med)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.RemainingQuantity != 7 {
		t.Errorf("remaining = %d, want 7 (Update must not touch counters)", updated.RemainingQuantity)
	}
}

func TestUpdateStockCAS(t *testing.T) {
	ms := setupMedicationTestDB(t)

	med, err := ms.Create(model.Medication{Name: "Zinc", TotalQuantity: 10, RemainingQuantity: 10, TrackStock: true})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := ms.UpdateStockCAS(med.ID, med.Version, 9, false); err != nil {
		t.Fatalf("first CAS write: %v", err)
	}

	// Same version again: the row moved on, the write must be rejected.
	err = ms.UpdateStockCAS(med.ID, med.Version, 8, false)
	if !errors.Is(err, ErrStaleWrite) {
		t.Fatalf("stale CAS err = %v, want ErrStaleWrite", err)
	}

	got, err := ms.GetByID(med.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.RemainingQuantity != 9 {
		t.Errorf("remaining = %d, want 9", got.RemainingQuantity)
	}
	if got.Version != med.Version+1 {
		t.Errorf("version = %d, want %d", got.Version, med.Version+1)
	}

	// Fresh version succeeds and can set the latch.
	if err := ms.UpdateStockCAS(med.ID, got.Version, 2, true); err != nil {
		t.Fatalf("second CAS write: %v", err)
	}
	got, _ = ms.GetByID(med.ID)
	if !got.LowStock || got.RemainingQuantity != 2 {
		t.Errorf("after CAS: remaining=%d low_stock=%v, want 2/true", got.RemainingQuantity, got.LowStock)
	}
}
