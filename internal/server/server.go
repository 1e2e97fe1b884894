package server

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/medkeep/internal/backup"
	"github.com/dukerupert/medkeep/internal/handler"
	"github.com/dukerupert/medkeep/internal/intake"
	"github.com/dukerupert/medkeep/internal/middleware"
	"github.com/dukerupert/medkeep/internal/push"
	"github.com/dukerupert/medkeep/internal/store"
	ws "github.com/dukerupert/medkeep/internal/websocket"
)

type Server struct {
	db  *sql.DB
	hub *ws.Hub

	medicationH *handler.MedicationHandler
	scheduleH   *handler.ScheduleHandler
	intakeH     *handler.IntakeHandler
	settingsH   *handler.SettingsHandler
	pushH       *handler.PushHandler
	backupH     *handler.BackupHandler

	ledger        *intake.Ledger
	pushStore     *store.PushStore
	rateLimiter   *middleware.RateLimiter
	backupManager *backup.Manager
	pushService   *push.Service
	pushScheduler *push.Scheduler
	logger        *slog.Logger
}

func New(db *sql.DB, backupCfg backup.Config, pushCfg push.Config, loc *time.Location, logger *slog.Logger) *Server {
	hub := ws.NewHub(logger.With("component", "websocket"))

	medicationStore := store.NewMedicationStore(db)
	scheduleStore := store.NewScheduleStore(db)
	intakeStore := store.NewIntakeStore(db)
	settingsStore := store.NewSettingsStore(db)
	pushStore := store.NewPushStore(db)
	backupStore := store.NewBackupStore(db)

	ledger := intake.NewLedger(intakeStore, scheduleStore, medicationStore, loc, logger.With("component", "ledger"))

	backupMgr := backup.NewManager(backupCfg, db, backupStore, settingsStore, func(st backup.Status) {
		hub.Publish(ws.Event{
			Type:   "backup_status",
			Entity: ws.EntityBackup,
			Action: string(st.State),
			Extra: map[string]any{
				"in_progress": st.InProgress,
				"error":       st.Error,
			},
		})
	}, logger.With("component", "backup"))

	var pushSvc *push.Service
	var pushSched *push.Scheduler
	var pushH *handler.PushHandler
	if pushCfg.VAPIDPublicKey != "" && pushCfg.VAPIDPrivateKey != "" {
		pushSvc = push.NewService(pushCfg.VAPIDPublicKey, pushCfg.VAPIDPrivateKey)
		pushSched = push.NewScheduler(pushSvc, ledger, intakeStore, pushStore, settingsStore, loc, logger.With("component", "push"))
		pushH = handler.NewPushHandler(pushStore, pushSvc, logger.With("component", "push_handler"))
	}

	// The intake handler tolerates a nil notifier when push is not
	// configured. Assign only a non-nil scheduler so the interface
	// stays nil otherwise.
	var notifier handler.LowStockNotifier
	if pushSched != nil {
		notifier = pushSched
	}

	return &Server{
		db:            db,
		hub:           hub,
		medicationH:   handler.NewMedicationHandler(medicationStore, hub, logger.With("component", "medication")),
		scheduleH:     handler.NewScheduleHandler(scheduleStore, medicationStore, intakeStore, hub, loc, logger.With("component", "schedule")),
		intakeH:       handler.NewIntakeHandler(ledger, intakeStore, hub, notifier, logger.With("component", "intake")),
		settingsH:     handler.NewSettingsHandler(settingsStore, hub, logger.With("component", "settings")),
		pushH:         pushH,
		backupH:       handler.NewBackupHandler(backupMgr, backupStore, settingsStore, hub, logger.With("component", "backup_handler")),
		ledger:        ledger,
		pushStore:     pushStore,
		rateLimiter:   middleware.NewRateLimiter(),
		backupManager: backupMgr,
		pushService:   pushSvc,
		pushScheduler: pushSched,
		logger:        logger,
	}
}

// BackupManager returns the backup manager for lifecycle control.
func (s *Server) BackupManager() *backup.Manager {
	return s.backupManager
}

// PushScheduler returns the reminder scheduler, nil when push is not
// configured.
func (s *Server) PushScheduler() *push.Scheduler {
	return s.pushScheduler
}

// Ledger returns the intake ledger for startup materialization.
func (s *Server) Ledger() *intake.Ledger {
	return s.ledger
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.healthHandler)
	mux.HandleFunc("GET /ws", ws.Handler(s.hub))

	// Medication API routes
	mux.HandleFunc("POST /api/medications", s.medicationH.Create)
	mux.HandleFunc("GET /api/medications", s.medicationH.List)
	mux.HandleFunc("GET /api/medications/{id}", s.medicationH.Get)
	mux.HandleFunc("PUT /api/medications/{id}", s.medicationH.Update)
	mux.HandleFunc("DELETE /api/medications/{id}", s.medicationH.Delete)
	mux.HandleFunc("POST /api/medications/{id}/restock", s.medicationH.Restock)

	// Schedule API routes
	mux.HandleFunc("POST /api/schedules", s.scheduleH.Create)
	mux.HandleFunc("GET /api/schedules", s.scheduleH.List)
	mux.HandleFunc("GET /api/schedules/{id}", s.scheduleH.Get)
	mux.HandleFunc("PUT /api/schedules/{id}", s.scheduleH.Update)
	mux.HandleFunc("DELETE /api/schedules/{id}", s.scheduleH.Delete)

	// Intake API routes
	mux.HandleFunc("GET /api/intakes", s.intakeH.List)
	mux.HandleFunc("POST /api/intakes/{id}/take", s.intakeH.Take)
	mux.HandleFunc("POST /api/intakes/{id}/miss", s.intakeH.Miss)
	mux.HandleFunc("POST /api/intakes/{id}/reset", s.intakeH.Reset)

	// Settings API routes
	mux.HandleFunc("GET /api/settings/notifications", s.settingsH.GetNotifications)
	mux.HandleFunc("PUT /api/settings/notifications", s.settingsH.UpdateNotifications)

	// Push notification API routes
	if s.pushH != nil {
		mux.HandleFunc("POST /api/push/subscribe", s.pushH.Subscribe)
		mux.HandleFunc("POST /api/push/unsubscribe", s.pushH.Unsubscribe)
		mux.HandleFunc("GET /api/push/subscriptions", s.pushH.ListSubscriptions)
		mux.HandleFunc("GET /api/push/vapid-key", s.pushH.GetVAPIDKey)
		mux.HandleFunc("POST /api/push/test", s.pushH.TestNotification)
	}

	// Backup API routes
	mux.HandleFunc("GET /api/backups", s.backupH.List)
	mux.HandleFunc("GET /api/backups/status", s.backupH.Status)
	mux.HandleFunc("GET /api/backups/config", s.backupH.GetConfig)
	mux.HandleFunc("PUT /api/backups/config", s.backupH.UpdateConfig)
	mux.HandleFunc("PUT /api/backups/passphrase", s.rateLimitedHandler(s.backupH.SetPassphrase))
	mux.HandleFunc("POST /api/backups/run", s.rateLimitedHandler(s.backupH.RunNow))
	mux.HandleFunc("GET /api/backups/{id}/download", s.backupH.Download)
	mux.HandleFunc("POST /api/backups/{id}/restore", s.rateLimitedHandler(s.backupH.Restore))

	logged := middleware.RequestLogger(s.logger.With("component", "http"))(mux)
	return middleware.WithRequestID(logged)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// rateLimitedHandler guards passphrase-bearing endpoints against
// brute-force attempts.
func (s *Server) rateLimitedHandler(h http.HandlerFunc) http.HandlerFunc {
	keyFunc := func(r *http.Request) string {
		return middleware.RealIP(r)
	}
	rl := middleware.RateLimit(s.rateLimiter, keyFunc, 10, time.Minute)
	return func(w http.ResponseWriter, r *http.Request) {
		rl(http.HandlerFunc(h)).ServeHTTP(w, r)
	}
}
