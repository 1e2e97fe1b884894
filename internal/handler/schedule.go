package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/dukerupert/medkeep/internal/model"
	"github.com/dukerupert/medkeep/internal/schedule"
	"github.com/dukerupert/medkeep/internal/store"
	"github.com/dukerupert/medkeep/internal/websocket"
)

type ScheduleHandler struct {
	schedules   *store.ScheduleStore
	medications *store.MedicationStore
	intakes     *store.IntakeStore
	hub         *websocket.Hub
	loc         *time.Location
	logger      *slog.Logger

	// now is replaced in tests.
	now func() time.Time
}

func NewScheduleHandler(ss *store.ScheduleStore, ms *store.MedicationStore, is *store.IntakeStore, hub *websocket.Hub, loc *time.Location, logger *slog.Logger) *ScheduleHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &ScheduleHandler{
		schedules:   ss,
		medications: ms,
		intakes:     is,
		hub:         hub,
		loc:         loc,
		logger:      logger,
		now:         time.Now,
	}
}

type scheduleRequest struct {
	MedicationID int64             `json:"medication_id"`
	Frequency    string            `json:"frequency"`
	Days         []int             `json:"days"`
	Dates        []string          `json:"dates"`
	Times        []model.TimeEntry `json:"times"`
	MealRelation string            `json:"meal_relation"`
	StartDate    string            `json:"start_date"`
	EndDate      *string           `json:"end_date"`
	DurationDays *int              `json:"duration_days"`
}

func (r scheduleRequest) toModel(id int64) model.Schedule {
	return model.Schedule{
		ID:           id,
		MedicationID: r.MedicationID,
		Frequency:    r.Frequency,
		Days:         r.Days,
		Dates:        r.Dates,
		Times:        r.Times,
		MealRelation: r.MealRelation,
		StartDate:    r.StartDate,
		EndDate:      r.EndDate,
		DurationDays: r.DurationDays,
	}
}

// writeConfigError maps a schedule validation failure to a 400 with the
// offending field named.
func writeConfigError(w http.ResponseWriter, err error) {
	var cfgErr *schedule.ConfigError
	if errors.As(err, &cfgErr) {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": cfgErr.Reason,
			"field": cfgErr.Field,
		})
		return
	}
	writeError(w, http.StatusBadRequest, err.Error())
}

// Create handles POST /api/schedules
func (h *ScheduleHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req scheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	sched := req.toModel(0)
	if err := schedule.Validate(sched); err != nil {
		writeConfigError(w, err)
		return
	}

	med, err := h.medications.GetByID(req.MedicationID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get medication")
		return
	}
	if med == nil {
		writeError(w, http.StatusBadRequest, "medication not found")
		return
	}

	created, err := h.schedules.Create(sched)
	if err != nil {
		h.logger.Error("create schedule", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create schedule")
		return
	}

	h.hub.Publish(websocket.NewEvent(websocket.EntitySchedule, "created", created.ID, nil))
	writeJSON(w, http.StatusCreated, created)
}

// List handles GET /api/schedules, optionally filtered by medication_id.
func (h *ScheduleHandler) List(w http.ResponseWriter, r *http.Request) {
	var (
		scheds []model.Schedule
		err    error
	)
	if q := r.URL.Query().Get("medication_id"); q != "" {
		medID, perr := strconv.ParseInt(q, 10, 64)
		if perr != nil {
			writeError(w, http.StatusBadRequest, "invalid medication_id")
			return
		}
		scheds, err = h.schedules.ListByMedication(medID)
	} else {
		scheds, err = h.schedules.List()
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list schedules")
		return
	}
	if scheds == nil {
		scheds = []model.Schedule{}
	}
	writeJSON(w, http.StatusOK, scheds)
}

// Get handles GET /api/schedules/{id}
func (h *ScheduleHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	sched, err := h.schedules.GetByID(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get schedule")
		return
	}
	if sched == nil {
		writeError(w, http.StatusNotFound, "schedule not found")
		return
	}
	writeJSON(w, http.StatusOK, sched)
}

// Update handles PUT /api/schedules/{id}. Pending future intakes are
// dropped so the next materialization reflects the new rule; taken and
// missed history keeps its original times.
func (h *ScheduleHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	existing, err := h.schedules.GetByID(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get schedule")
		return
	}
	if existing == nil {
		writeError(w, http.StatusNotFound, "schedule not found")
		return
	}

	var req scheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.MedicationID == 0 {
		req.MedicationID = existing.MedicationID
	}

	sched := req.toModel(id)
	if err := schedule.Validate(sched); err != nil {
		writeConfigError(w, err)
		return
	}

	updated, err := h.schedules.Update(sched)
	if err != nil {
		h.logger.Error("update schedule", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update schedule")
		return
	}

	today := h.now().In(h.loc).Format(schedule.DateLayout)
	if err := h.intakes.DeletePendingFrom(id, today); err != nil {
		h.logger.Error("drop pending intakes after schedule edit", "schedule_id", id, "error", err)
	}

	h.hub.Publish(websocket.NewEvent(websocket.EntitySchedule, "updated", id, nil))
	writeJSON(w, http.StatusOK, updated)
}

// Delete handles DELETE /api/schedules/{id}
func (h *ScheduleHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	existing, err := h.schedules.GetByID(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get schedule")
		return
	}
	if existing == nil {
		writeError(w, http.StatusNotFound, "schedule not found")
		return
	}

	if err := h.schedules.Delete(id); err != nil {
		h.logger.Error("delete schedule", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete schedule")
		return
	}

	h.hub.Publish(websocket.NewEvent(websocket.EntitySchedule, "deleted", id, nil))
	w.WriteHeader(http.StatusNoContent)
}
