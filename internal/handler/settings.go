package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/dukerupert/medkeep/internal/model"
	"github.com/dukerupert/medkeep/internal/store"
	"github.com/dukerupert/medkeep/internal/websocket"
)

type SettingsHandler struct {
	settings *store.SettingsStore
	hub      *websocket.Hub
	logger   *slog.Logger
}

func NewSettingsHandler(ss *store.SettingsStore, hub *websocket.Hub, logger *slog.Logger) *SettingsHandler {
	return &SettingsHandler{settings: ss, hub: hub, logger: logger}
}

// GetNotifications handles GET /api/settings/notifications
func (h *SettingsHandler) GetNotifications(w http.ResponseWriter, r *http.Request) {
	settings, err := h.settings.GetNotification()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get settings")
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

type notificationSettingsRequest struct {
	MedicationRemindersEnabled bool `json:"medication_reminders_enabled"`
	MinutesBeforeScheduledTime int  `json:"minutes_before_scheduled_time"`
	LowStockRemindersEnabled   bool `json:"low_stock_reminders_enabled"`
}

// UpdateNotifications handles PUT /api/settings/notifications
func (h *SettingsHandler) UpdateNotifications(w http.ResponseWriter, r *http.Request) {
	var req notificationSettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.MinutesBeforeScheduledTime < 0 || req.MinutesBeforeScheduledTime > 1440 {
		writeError(w, http.StatusBadRequest, "minutes_before_scheduled_time must be 0-1440")
		return
	}

	settings, err := h.settings.UpdateNotification(model.NotificationSettings{
		MedicationRemindersEnabled: req.MedicationRemindersEnabled,
		MinutesBeforeScheduledTime: req.MinutesBeforeScheduledTime,
		LowStockRemindersEnabled:   req.LowStockRemindersEnabled,
	})
	if err != nil {
		h.logger.Error("update notification settings", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to save settings")
		return
	}

	writeJSON(w, http.StatusOK, settings)
}
