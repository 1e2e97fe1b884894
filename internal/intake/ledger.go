// Package intake owns the lifecycle of persisted dose records: it
// materializes occurrences produced by the schedule expander, applies
// status transitions, and keeps the medication stock counters in step
// with them.
package intake

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/dukerupert/medkeep/internal/inventory"
	"github.com/dukerupert/medkeep/internal/model"
	"github.com/dukerupert/medkeep/internal/schedule"
	"github.com/dukerupert/medkeep/internal/store"
)

var (
	// ErrNotFound is returned when the intake does not exist.
	ErrNotFound = errors.New("intake not found")

	// ErrInvalidTransition is the sentinel for a state-machine move the
	// lifecycle does not permit. Specific rejections are reported as
	// *TransitionError, which unwraps to it.
	ErrInvalidTransition = errors.New("invalid intake transition")
)

// TransitionError reports the rejected move.
type TransitionError struct {
	From string
	To   string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid intake transition: %s -> %s", e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

const (
	casMaxRetries = 3
	casRetryDelay = 25 * time.Millisecond
)

// Ledger coordinates intake materialization and status transitions.
// It holds no state of its own; all state lives in the stores, so any
// number of callers (API handlers, the reminder scheduler, multiple
// devices) can use it concurrently.
type Ledger struct {
	intakes     *store.IntakeStore
	schedules   *store.ScheduleStore
	medications *store.MedicationStore
	loc         *time.Location
	logger      *slog.Logger

	// Now supplies the current time; replaced in tests for
	// deterministic settlement and taken_at stamps.
	Now func() time.Time
}

// NewLedger builds a ledger that settles dose dates in loc. Scheduled
// dates are calendar dates in the deployment timezone, so "overdue"
// must be judged against the local date, not UTC's.
func NewLedger(is *store.IntakeStore, ss *store.ScheduleStore, ms *store.MedicationStore, loc *time.Location, logger *slog.Logger) *Ledger {
	if loc == nil {
		loc = time.UTC
	}
	return &Ledger{
		intakes:     is,
		schedules:   ss,
		medications: ms,
		loc:         loc,
		logger:      logger,
		Now:         time.Now,
	}
}

// TransitionResult is the outcome of a status transition.
type TransitionResult struct {
	Intake *model.Intake
	// Stock is the inventory change applied alongside the transition,
	// nil when the move had no inventory effect.
	Stock *inventory.Change
	// LowStock is non-nil when this transition crossed the low-stock
	// threshold.
	LowStock *inventory.Event
}

// Materialize expands the schedule over [from, to] and inserts a
// pending intake for every occurrence that does not already have a
// row. Existing rows, terminal ones included, are never modified, so
// re-running over overlapping windows is idempotent. Returns the
// number of rows created.
func (l *Ledger) Materialize(ctx context.Context, sched model.Schedule, from, to time.Time) (int, error) {
	med, err := l.medications.GetByID(sched.MedicationID)
	if err != nil {
		return 0, err
	}
	if med == nil {
		return 0, fmt.Errorf("materialize schedule %d: medication %d not found", sched.ID, sched.MedicationID)
	}

	occs, err := schedule.Expand(sched, from, to)
	if err != nil {
		return 0, err
	}

	inserted := 0
	for _, occ := range occs {
		if err := ctx.Err(); err != nil {
			return inserted, err
		}
		ok, err := l.intakes.InsertIfAbsent(buildIntake(sched, *med, occ))
		if err != nil {
			return inserted, err
		}
		if ok {
			inserted++
		}
	}
	return inserted, nil
}

// MaterializeAll materializes every schedule over the window. A
// schedule whose stored definition no longer validates is logged and
// skipped rather than failing the whole pass.
func (l *Ledger) MaterializeAll(ctx context.Context, from, to time.Time) (int, error) {
	schedules, err := l.schedules.List()
	if err != nil {
		return 0, err
	}

	total := 0
	for _, sched := range schedules {
		n, err := l.Materialize(ctx, sched, from, to)
		total += n
		if err != nil {
			if errors.Is(err, schedule.ErrInvalidConfig) {
				l.logger.Warn("skipping invalid schedule", "schedule_id", sched.ID, "error", err)
				continue
			}
			return total, err
		}
	}
	return total, nil
}

// Settle persists the implicit missed state for pending intakes dated
// before today. Settlement is lazy: reads report overdue
// pending rows as missed via EffectiveStatus without writing, and this
// is the write that eventually catches them up. It runs on the
// materialization path, not as a standalone background sweep.
func (l *Ledger) Settle(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return l.intakes.SettleOverdue(l.today())
}

// EffectiveStatus is the status a reader should display: a pending
// intake dated strictly before today reads as missed even though the
// row has not been settled yet.
func EffectiveStatus(i model.Intake, today string) string {
	if i.Status == model.IntakePending && i.ScheduledDate < today {
		return model.IntakeMissed
	}
	return i.Status
}

// MarkTaken moves a pending intake to taken, stamps taken_at, and
// decrements the medication stock in the same transaction. The
// returned result carries the insufficient-stock warning and the
// low-stock crossing, if either was raised.
func (l *Ledger) MarkTaken(ctx context.Context, id int64) (*TransitionResult, error) {
	return l.transition(ctx, id, model.IntakeTaken)
}

// MarkMissed moves a pending intake to missed. No inventory effect.
func (l *Ledger) MarkMissed(ctx context.Context, id int64) (*TransitionResult, error) {
	return l.transition(ctx, id, model.IntakeMissed)
}

// Reset is the administrative correction path: it returns a terminal
// intake to pending, restoring the stock that a taken row had
// consumed. Resetting an already-pending intake is a no-op.
func (l *Ledger) Reset(ctx context.Context, id int64) (*TransitionResult, error) {
	return l.transition(ctx, id, model.IntakePending)
}

// transition runs one status change with bounded compare-and-set
// retries. Each attempt re-reads the intake and medication, validates
// the move against fresh state, and commits both writes atomically; a
// version conflict restarts the attempt. If retries exhaust, the
// ErrStaleWrite surfaces for the caller to retry at its level.
func (l *Ledger) transition(ctx context.Context, id int64, target string) (*TransitionResult, error) {
	var result *TransitionResult

	backoff := retry.WithMaxRetries(casMaxRetries, retry.NewConstant(casRetryDelay))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		i, err := l.intakes.GetByID(id)
		if err != nil {
			return err
		}
		if i == nil {
			return ErrNotFound
		}

		if i.Status == model.IntakePending && target == model.IntakePending {
			// pending -> pending is an explicit no-op.
			result = &TransitionResult{Intake: i}
			return nil
		}
		if err := checkTransition(i.Status, target); err != nil {
			return err
		}

		med, err := l.medications.GetByID(i.MedicationID)
		if err != nil {
			return err
		}
		if med == nil {
			return fmt.Errorf("intake %d: medication %d not found", i.ID, i.MedicationID)
		}

		var (
			takenAt *time.Time
			change  *inventory.Change
		)
		switch {
		case target == model.IntakeTaken:
			now := l.Now().UTC()
			takenAt = &now
			ch := inventory.ApplyDose(*med, inventory.DoseAmount(i.Dosage))
			change = &ch
		case target == model.IntakePending && i.Status == model.IntakeTaken:
			ch := inventory.ReverseDose(*med, inventory.DoseAmount(i.Dosage))
			change = &ch
		}

		var stock *store.StockUpdate
		if change != nil && change.Tracked {
			stock = &store.StockUpdate{
				MedicationID: med.ID,
				Version:      med.Version,
				Remaining:    change.Remaining,
				LowStock:     change.LowStock,
			}
		}

		if err := l.intakes.TransitionCAS(i.ID, i.Version, target, takenAt, stock); err != nil {
			if errors.Is(err, store.ErrStaleWrite) {
				return retry.RetryableError(err)
			}
			return err
		}

		updated, err := l.intakes.GetByID(i.ID)
		if err != nil {
			return err
		}

		result = &TransitionResult{Intake: updated, Stock: change}
		if change != nil && change.Crossed {
			result.LowStock = &inventory.Event{
				MedicationID:   med.ID,
				MedicationName: med.Name,
				Remaining:      change.Remaining,
				Threshold:      med.LowStockThreshold,
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// checkTransition enforces the lifecycle: pending may settle to taken
// or missed; terminal rows may only return to pending through the
// correction path. Everything else, including missed -> taken and
// re-settling an already-terminal row, is rejected.
func checkTransition(from, to string) error {
	switch {
	case from == model.IntakePending && (to == model.IntakeTaken || to == model.IntakeMissed):
		return nil
	case (from == model.IntakeTaken || from == model.IntakeMissed) && to == model.IntakePending:
		return nil
	}
	return &TransitionError{From: from, To: to}
}

func (l *Ledger) today() string {
	return l.Now().In(l.loc).Format(schedule.DateLayout)
}

// Today returns the current calendar date in the ledger's timezone,
// the same date Settle judges overdue rows against. Handlers use it so
// the status they present agrees with what settlement would persist.
func (l *Ledger) Today() string {
	return l.today()
}

func buildIntake(sched model.Schedule, med model.Medication, occ schedule.Occurrence) model.Intake {
	unit := occ.Entry.Unit
	if unit == "" {
		unit = med.Unit
	}
	return model.Intake{
		ScheduleID:     sched.ID,
		MedicationID:   med.ID,
		ScheduledDate:  occ.DateString(),
		ScheduledTime:  occ.Entry.Time,
		Dosage:         occ.Entry.Dosage,
		Unit:           unit,
		Status:         model.IntakePending,
		MedicationName: med.Name,
		MealRelation:   sched.MealRelation,
		Instructions:   med.Instructions,
		IconName:       med.IconName,
		IconColor:      med.IconColor,
	}
}
