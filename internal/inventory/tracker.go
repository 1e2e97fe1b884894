// Package inventory keeps a medication's remaining-quantity counter
// consistent with logged doses. The functions here are pure: they take
// the current medication row and return the counter values to persist
// plus any signals raised. Callers write the result back with a
// compare-and-set so a concurrent update can never lose a decrement.
package inventory

import (
	"strconv"
	"strings"

	"github.com/dukerupert/medkeep/internal/model"
)

// Change is the result of applying or reversing a dose.
type Change struct {
	// Tracked is false when the medication does not track stock; in
	// that case no counter values change and no signals fire.
	Tracked   bool
	Remaining int
	// LowStock is the new value of the persisted low-stock latch.
	LowStock bool
	// Crossed is set when this change moved remaining from at-or-above
	// the threshold to below it. It fires on the crossing only; reads
	// while below the threshold never re-raise it.
	Crossed bool
	// Insufficient is set when the dose amount exceeded the remaining
	// quantity. The dose still applies (clamped at zero): adherence
	// logging is never blocked by a bookkeeping mismatch.
	Insufficient bool
}

// Event describes a low-stock threshold crossing for the notification
// pipeline.
type Event struct {
	MedicationID   int64
	MedicationName string
	Remaining      int
	Threshold      int
}

// ApplyDose computes the counter change for taking a dose of the given
// amount.
func ApplyDose(med model.Medication, amount int) Change {
	if !med.TrackStock {
		return Change{Tracked: false, Remaining: med.RemainingQuantity, LowStock: med.LowStock}
	}

	remaining := med.RemainingQuantity - amount
	insufficient := remaining < 0
	if insufficient {
		remaining = 0
	}

	crossed := !med.LowStock &&
		med.RemainingQuantity >= med.LowStockThreshold &&
		remaining < med.LowStockThreshold

	return Change{
		Tracked:      true,
		Remaining:    remaining,
		LowStock:     med.LowStock || crossed,
		Crossed:      crossed,
		Insufficient: insufficient,
	}
}

// ReverseDose undoes a previously applied dose, clamping at the
// medication's total quantity. Crossing back to or above the threshold
// re-arms the low-stock latch so a later drop can fire again.
func ReverseDose(med model.Medication, amount int) Change {
	if !med.TrackStock {
		return Change{Tracked: false, Remaining: med.RemainingQuantity, LowStock: med.LowStock}
	}

	remaining := med.RemainingQuantity + amount
	if remaining > med.TotalQuantity {
		remaining = med.TotalQuantity
	}

	return Change{
		Tracked:   true,
		Remaining: remaining,
		LowStock:  med.LowStock && remaining < med.LowStockThreshold,
	}
}

// Restock sets the remaining quantity outright (refill from the API).
// Like ReverseDose it re-arms the latch when stock comes back above
// the threshold.
func Restock(med model.Medication, remaining int) Change {
	if !med.TrackStock {
		return Change{Tracked: false, Remaining: med.RemainingQuantity, LowStock: med.LowStock}
	}
	if remaining < 0 {
		remaining = 0
	}
	if remaining > med.TotalQuantity {
		remaining = med.TotalQuantity
	}

	return Change{
		Tracked:   true,
		Remaining: remaining,
		LowStock:  med.LowStock && remaining < med.LowStockThreshold,
	}
}

// DoseAmount interprets an intake's dosage string as a stock decrement.
// Dosage is free-form on the wire ("2", "1.5", "one spray"); anything
// that does not parse as a positive number counts as a single unit.
func DoseAmount(dosage string) int {
	s := strings.TrimSpace(dosage)
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 {
		// Fractional doses round up: half a tablet still opens one.
		n := int(f)
		if f > float64(n) {
			n++
		}
		return n
	}
	return 1
}
