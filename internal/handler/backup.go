package handler

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/dukerupert/medkeep/internal/backup"
	"github.com/dukerupert/medkeep/internal/model"
	"github.com/dukerupert/medkeep/internal/store"
	"github.com/dukerupert/medkeep/internal/websocket"
)

type BackupHandler struct {
	manager  *backup.Manager
	backups  *store.BackupStore
	settings *store.SettingsStore
	hub      *websocket.Hub
	logger   *slog.Logger
}

func NewBackupHandler(m *backup.Manager, bs *store.BackupStore, ss *store.SettingsStore, hub *websocket.Hub, logger *slog.Logger) *BackupHandler {
	return &BackupHandler{manager: m, backups: bs, settings: ss, hub: hub, logger: logger}
}

// Status handles GET /api/backups/status
func (h *BackupHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.manager.Status())
}

// List handles GET /api/backups
func (h *BackupHandler) List(w http.ResponseWriter, r *http.Request) {
	records, err := h.backups.List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list backups")
		return
	}
	if records == nil {
		records = []model.BackupRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

// GetConfig handles GET /api/backups/config
func (h *BackupHandler) GetConfig(w http.ResponseWriter, r *http.Request) {
	settings, err := h.settings.GetBackupSettings()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get backup settings")
		return
	}
	// The salt is an implementation detail; report only whether a
	// passphrase has been configured.
	configured := settings["backup_passphrase_salt"] != ""
	delete(settings, "backup_passphrase_salt")

	writeJSON(w, http.StatusOK, map[string]any{
		"settings":              settings,
		"passphrase_configured": configured,
	})
}

type backupConfigRequest struct {
	Enabled       *bool `json:"enabled"`
	ScheduleHour  *int  `json:"schedule_hour"`
	RetentionDays *int  `json:"retention_days"`
}

// UpdateConfig handles PUT /api/backups/config
func (h *BackupHandler) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	var req backupConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	if req.ScheduleHour != nil && (*req.ScheduleHour < 0 || *req.ScheduleHour > 23) {
		writeError(w, http.StatusBadRequest, "schedule_hour must be 0-23")
		return
	}
	if req.RetentionDays != nil && *req.RetentionDays < 1 {
		writeError(w, http.StatusBadRequest, "retention_days must be at least 1")
		return
	}

	if req.Enabled != nil {
		if err := h.settings.Set("backup_enabled", strconv.FormatBool(*req.Enabled)); err != nil {
			writeError(w, http.StatusInternalServerError, "failed to save settings")
			return
		}
	}
	if req.ScheduleHour != nil {
		if err := h.settings.Set("backup_schedule_hour", strconv.Itoa(*req.ScheduleHour)); err != nil {
			writeError(w, http.StatusInternalServerError, "failed to save settings")
			return
		}
	}
	if req.RetentionDays != nil {
		if err := h.settings.Set("backup_retention_days", strconv.Itoa(*req.RetentionDays)); err != nil {
			writeError(w, http.StatusInternalServerError, "failed to save settings")
			return
		}
	}

	h.GetConfig(w, r)
}

type passphraseRequest struct {
	Passphrase string `json:"passphrase"`
}

// SetPassphrase handles PUT /api/backups/passphrase. Generates a fresh
// salt and caches the key so scheduled backups can run.
func (h *BackupHandler) SetPassphrase(w http.ResponseWriter, r *http.Request) {
	var req passphraseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if len(req.Passphrase) < 8 {
		writeError(w, http.StatusBadRequest, "passphrase must be at least 8 characters")
		return
	}

	salt, err := backup.GenerateSalt()
	if err != nil {
		h.logger.Error("generate backup salt", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to configure passphrase")
		return
	}
	if err := h.settings.Set("backup_passphrase_salt", hex.EncodeToString(salt)); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to save settings")
		return
	}

	h.manager.CacheKey(req.Passphrase, salt)
	writeJSON(w, http.StatusOK, map[string]bool{"passphrase_configured": true})
}

// RunNow handles POST /api/backups/run
func (h *BackupHandler) RunNow(w http.ResponseWriter, r *http.Request) {
	var req passphraseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Passphrase == "" {
		writeError(w, http.StatusBadRequest, "passphrase is required")
		return
	}

	id, err := h.manager.RunNow(r.Context(), req.Passphrase)
	if err != nil {
		h.logger.Error("run backup", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.hub.Publish(websocket.NewEvent(websocket.EntityBackup, "completed", id, nil))
	writeJSON(w, http.StatusOK, map[string]int64{"backup_id": id})
}

// Download handles GET /api/backups/{id}/download, streaming the
// encrypted archive as stored.
func (h *BackupHandler) Download(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	body, size, err := h.manager.Download(r.Context(), id)
	if err != nil {
		h.logger.Error("download backup", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to download backup")
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=backup-%d.db.enc", id))
	if size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	}
	io.Copy(w, body)
}

// Restore handles POST /api/backups/{id}/restore. On success the
// process replaces its database file and exits for restart.
func (h *BackupHandler) Restore(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	var req passphraseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Passphrase == "" {
		writeError(w, http.StatusBadRequest, "passphrase is required")
		return
	}

	if err := h.manager.Restore(r.Context(), id, req.Passphrase); err != nil {
		h.logger.Error("restore backup", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
}
