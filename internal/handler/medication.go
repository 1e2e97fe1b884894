package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/dukerupert/medkeep/internal/inventory"
	"github.com/dukerupert/medkeep/internal/model"
	"github.com/dukerupert/medkeep/internal/store"
	"github.com/dukerupert/medkeep/internal/websocket"
)

type MedicationHandler struct {
	medications *store.MedicationStore
	hub         *websocket.Hub
	logger      *slog.Logger
}

func NewMedicationHandler(ms *store.MedicationStore, hub *websocket.Hub, logger *slog.Logger) *MedicationHandler {
	return &MedicationHandler{medications: ms, hub: hub, logger: logger}
}

type medicationRequest struct {
	Name              string `json:"name"`
	Form              string `json:"form"`
	DosagePerUnit     string `json:"dosage_per_unit"`
	Unit              string `json:"unit"`
	Instructions      string `json:"instructions"`
	TotalQuantity     int    `json:"total_quantity"`
	RemainingQuantity *int   `json:"remaining_quantity"`
	LowStockThreshold int    `json:"low_stock_threshold"`
	TrackStock        bool   `json:"track_stock"`
	IconName          string `json:"icon_name"`
	IconColor         string `json:"icon_color"`
}

func (r *medicationRequest) validate() string {
	r.Name = strings.TrimSpace(r.Name)
	if r.Name == "" {
		return "name is required"
	}
	if r.Form != "" && !model.ValidForm(r.Form) {
		return "unknown form"
	}
	if r.TotalQuantity < 0 || r.LowStockThreshold < 0 {
		return "quantities must not be negative"
	}
	if r.RemainingQuantity != nil && *r.RemainingQuantity < 0 {
		return "quantities must not be negative"
	}
	return ""
}

// Create handles POST /api/medications
func (h *MedicationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req medicationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if msg := req.validate(); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	remaining := req.TotalQuantity
	if req.RemainingQuantity != nil {
		remaining = *req.RemainingQuantity
	}

	med, err := h.medications.Create(model.Medication{
		Name:              req.Name,
		Form:              req.Form,
		DosagePerUnit:     req.DosagePerUnit,
		Unit:              req.Unit,
		Instructions:      req.Instructions,
		TotalQuantity:     req.TotalQuantity,
		RemainingQuantity: remaining,
		LowStockThreshold: req.LowStockThreshold,
		TrackStock:        req.TrackStock,
		IconName:          req.IconName,
		IconColor:         req.IconColor,
	})
	if err != nil {
		h.logger.Error("create medication", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create medication")
		return
	}

	h.hub.Publish(websocket.NewEvent(websocket.EntityMedication, "created", med.ID, nil))
	writeJSON(w, http.StatusCreated, med)
}

// List handles GET /api/medications
func (h *MedicationHandler) List(w http.ResponseWriter, r *http.Request) {
	meds, err := h.medications.List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list medications")
		return
	}
	if meds == nil {
		meds = []model.Medication{}
	}
	writeJSON(w, http.StatusOK, meds)
}

// Get handles GET /api/medications/{id}
func (h *MedicationHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	med, err := h.medications.GetByID(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get medication")
		return
	}
	if med == nil {
		writeError(w, http.StatusNotFound, "medication not found")
		return
	}
	writeJSON(w, http.StatusOK, med)
}

// Update handles PUT /api/medications/{id}
func (h *MedicationHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	existing, err := h.medications.GetByID(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get medication")
		return
	}
	if existing == nil {
		writeError(w, http.StatusNotFound, "medication not found")
		return
	}

	var req medicationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if msg := req.validate(); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	existing.Name = req.Name
	existing.Form = req.Form
	existing.DosagePerUnit = req.DosagePerUnit
	existing.Unit = req.Unit
	existing.Instructions = req.Instructions
	existing.TotalQuantity = req.TotalQuantity
	existing.LowStockThreshold = req.LowStockThreshold
	existing.TrackStock = req.TrackStock
	existing.IconName = req.IconName
	existing.IconColor = req.IconColor

	med, err := h.medications.Update(*existing)
	if err != nil {
		h.logger.Error("update medication", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update medication")
		return
	}

	h.hub.Publish(websocket.NewEvent(websocket.EntityMedication, "updated", med.ID, nil))
	writeJSON(w, http.StatusOK, med)
}

// Delete handles DELETE /api/medications/{id}
func (h *MedicationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	existing, err := h.medications.GetByID(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get medication")
		return
	}
	if existing == nil {
		writeError(w, http.StatusNotFound, "medication not found")
		return
	}

	if err := h.medications.Delete(id); err != nil {
		h.logger.Error("delete medication", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete medication")
		return
	}

	h.hub.Publish(websocket.NewEvent(websocket.EntityMedication, "deleted", id, nil))
	w.WriteHeader(http.StatusNoContent)
}

type restockRequest struct {
	RemainingQuantity int `json:"remaining_quantity"`
}

// Restock handles POST /api/medications/{id}/restock. The counter write
// is compare-and-set against the row version, retried on conflict with
// a concurrent dose.
func (h *MedicationHandler) Restock(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	var req restockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.RemainingQuantity < 0 {
		writeError(w, http.StatusBadRequest, "remaining_quantity must not be negative")
		return
	}

	backoff := retry.WithMaxRetries(3, retry.NewConstant(25*time.Millisecond))
	err = retry.Do(r.Context(), backoff, func(ctx context.Context) error {
		med, err := h.medications.GetByID(id)
		if err != nil {
			return err
		}
		if med == nil {
			return errNotFound
		}

		change := inventory.Restock(*med, req.RemainingQuantity)
		if !change.Tracked {
			return errUntracked
		}

		if err := h.medications.UpdateStockCAS(id, med.Version, change.Remaining, change.LowStock); err != nil {
			if errors.Is(err, store.ErrStaleWrite) {
				return retry.RetryableError(err)
			}
			return err
		}
		return nil
	})
	switch {
	case errors.Is(err, errNotFound):
		writeError(w, http.StatusNotFound, "medication not found")
		return
	case errors.Is(err, errUntracked):
		writeError(w, http.StatusConflict, "medication does not track stock")
		return
	case errors.Is(err, store.ErrStaleWrite):
		writeError(w, http.StatusConflict, "medication is being updated concurrently, retry")
		return
	case err != nil:
		h.logger.Error("restock medication", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to restock medication")
		return
	}

	med, err := h.medications.GetByID(id)
	if err != nil || med == nil {
		writeError(w, http.StatusInternalServerError, "failed to reload medication")
		return
	}

	h.hub.Publish(websocket.NewEvent(websocket.EntityMedication, "updated", id, nil))
	writeJSON(w, http.StatusOK, med)
}

var (
	errNotFound  = errors.New("not found")
	errUntracked = errors.New("stock not tracked")
)
