package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/medkeep/internal/intake"
	"github.com/dukerupert/medkeep/internal/inventory"
	"github.com/dukerupert/medkeep/internal/model"
	"github.com/dukerupert/medkeep/internal/schedule"
	"github.com/dukerupert/medkeep/internal/store"
	"github.com/dukerupert/medkeep/internal/websocket"
)

// maxWindowDays caps a single list request; larger histories page.
const maxWindowDays = 92

// LowStockNotifier receives threshold crossings raised by dose
// transitions. Satisfied by the push scheduler.
type LowStockNotifier interface {
	NotifyLowStock(inventory.Event)
}

type IntakeHandler struct {
	ledger   *intake.Ledger
	intakes  *store.IntakeStore
	hub      *websocket.Hub
	notifier LowStockNotifier
	logger   *slog.Logger
}

func NewIntakeHandler(ledger *intake.Ledger, is *store.IntakeStore, hub *websocket.Hub, notifier LowStockNotifier, logger *slog.Logger) *IntakeHandler {
	return &IntakeHandler{
		ledger:   ledger,
		intakes:  is,
		hub:      hub,
		notifier: notifier,
		logger:   logger,
	}
}

// List handles GET /api/intakes?from=YYYY-MM-DD&to=YYYY-MM-DD. The
// window is materialized on demand, overdue rows are settled, and each
// returned row carries its effective status.
func (h *IntakeHandler) List(w http.ResponseWriter, r *http.Request) {
	// The ledger owns the notion of "today": same clock, same timezone
	// as settlement, so the effective status shown here matches what
	// Settle would persist.
	today := h.ledger.Today()

	fromStr := r.URL.Query().Get("from")
	toStr := r.URL.Query().Get("to")
	if fromStr == "" {
		fromStr = today
	}
	if toStr == "" {
		toStr = fromStr
	}

	from, err := schedule.ParseDate(fromStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid from date")
		return
	}
	to, err := schedule.ParseDate(toStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid to date")
		return
	}
	if to.Before(from) {
		writeError(w, http.StatusBadRequest, "to must not be before from")
		return
	}
	if to.Sub(from) > maxWindowDays*24*time.Hour {
		writeError(w, http.StatusBadRequest, "window too large")
		return
	}

	if _, err := h.ledger.MaterializeAll(r.Context(), from, to); err != nil {
		h.logger.Error("materialize intakes", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to materialize intakes")
		return
	}
	if _, err := h.ledger.Settle(r.Context()); err != nil {
		h.logger.Error("settle overdue intakes", "error", err)
	}

	rows, err := h.intakes.ListByDateRange(fromStr, toStr)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list intakes")
		return
	}
	if rows == nil {
		rows = []model.Intake{}
	}
	for i := range rows {
		rows[i].Status = intake.EffectiveStatus(rows[i], today)
	}

	writeJSON(w, http.StatusOK, rows)
}

// Take handles POST /api/intakes/{id}/take
func (h *IntakeHandler) Take(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.ledger.MarkTaken, "taken")
}

// Miss handles POST /api/intakes/{id}/miss
func (h *IntakeHandler) Miss(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.ledger.MarkMissed, "missed")
}

// Reset handles POST /api/intakes/{id}/reset
func (h *IntakeHandler) Reset(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.ledger.Reset, "reset")
}

type transitionResponse struct {
	Intake *model.Intake `json:"intake"`
	// Warning is set when the dose was recorded but the stock counter
	// could not cover it.
	Warning string `json:"warning,omitempty"`
}

func (h *IntakeHandler) transition(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, id int64) (*intake.TransitionResult, error), action string) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	result, err := op(r.Context(), id)
	switch {
	case errors.Is(err, intake.ErrNotFound):
		writeError(w, http.StatusNotFound, "intake not found")
		return
	case errors.Is(err, intake.ErrInvalidTransition):
		var terr *intake.TransitionError
		if errors.As(err, &terr) {
			writeJSON(w, http.StatusConflict, map[string]string{
				"error": "invalid transition",
				"from":  terr.From,
				"to":    terr.To,
			})
			return
		}
		writeError(w, http.StatusConflict, "invalid transition")
		return
	case errors.Is(err, store.ErrStaleWrite):
		writeError(w, http.StatusConflict, "intake is being updated concurrently, retry")
		return
	case err != nil:
		h.logger.Error("intake transition", "action", action, "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update intake")
		return
	}

	h.hub.Publish(websocket.NewEvent(websocket.EntityIntake, action, id, nil))
	if result.Stock != nil && result.Stock.Tracked {
		h.hub.Publish(websocket.NewEvent(websocket.EntityMedication, "updated", result.Intake.MedicationID, map[string]any{
			"remaining_quantity": result.Stock.Remaining,
		}))
	}
	if result.LowStock != nil && h.notifier != nil {
		h.notifier.NotifyLowStock(*result.LowStock)
	}

	resp := transitionResponse{Intake: result.Intake}
	if result.Stock != nil && result.Stock.Insufficient {
		resp.Warning = "dose recorded but remaining stock was lower than the dose amount"
	}
	writeJSON(w, http.StatusOK, resp)
}
