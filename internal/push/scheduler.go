package push

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dukerupert/medkeep/internal/intake"
	"github.com/dukerupert/medkeep/internal/inventory"
	"github.com/dukerupert/medkeep/internal/model"
	"github.com/dukerupert/medkeep/internal/reminder"
	"github.com/dukerupert/medkeep/internal/schedule"
	"github.com/dukerupert/medkeep/internal/store"
)

const logRetentionDays = 30

// Scheduler periodically materializes upcoming doses and sends reminder
// notifications for the ones entering their lead window.
type Scheduler struct {
	mu       sync.RWMutex
	service  *Service
	ledger   *intake.Ledger
	intakes  *store.IntakeStore
	push     *store.PushStore
	settings *store.SettingsStore
	logger   *slog.Logger
	loc      *time.Location
	interval time.Duration
	now      func() time.Time
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewScheduler creates a reminder scheduler. loc is the timezone dose
// times are interpreted in.
func NewScheduler(svc *Service, ledger *intake.Ledger, intakeStore *store.IntakeStore, pushStore *store.PushStore, settingsStore *store.SettingsStore, loc *time.Location, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		service:  svc,
		ledger:   ledger,
		intakes:  intakeStore,
		push:     pushStore,
		settings: settingsStore,
		logger:   logger,
		loc:      loc,
		interval: 60 * time.Second,
		now:      time.Now,
	}
}

// Start begins the scheduler loop.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.mu.Unlock()

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.tick(ctx)
			}
		}
	}()
}

// Stop gracefully stops the scheduler.
func (s *Scheduler) Stop() {
	s.mu.RLock()
	cancel := s.cancel
	done := s.done
	s.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	now := s.now().In(s.loc)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	// Materialize through tomorrow so reminders whose lead window
	// crosses midnight already have rows to look at.
	if _, err := s.ledger.MaterializeAll(ctx, today, today.AddDate(0, 0, 1)); err != nil {
		s.logger.Error("materialize upcoming doses", "error", err)
		return
	}
	if _, err := s.ledger.Settle(ctx); err != nil {
		s.logger.Error("settle overdue doses", "error", err)
	}

	s.checkDoseReminders(now)
	s.maintainLog(now)
}

func (s *Scheduler) checkDoseReminders(now time.Time) {
	settings, err := s.settings.GetNotification()
	if err != nil {
		s.logger.Error("load notification settings", "error", err)
		return
	}

	from := now.AddDate(0, 0, -1).Format(schedule.DateLayout)
	to := now.AddDate(0, 0, 1).Format(schedule.DateLayout)
	pending, err := s.intakes.ListPendingInRange(from, to)
	if err != nil {
		s.logger.Error("list pending doses", "error", err)
		return
	}

	events := reminder.DueReminders(now, pending, *settings, s.loc)
	for _, ev := range events {
		refID := fmt.Sprintf("intake-%d", ev.IntakeID)
		sent, err := s.push.WasSent(model.NotifTypeDoseReminder, refID)
		if err != nil {
			s.logger.Error("check notification log", "error", err)
			continue
		}
		if sent {
			continue
		}

		body := fmt.Sprintf("%s %s at %s", ev.Dosage, ev.Unit, ev.ScheduledAt.Format("15:04"))
		if ev.Unit == "" {
			body = fmt.Sprintf("Dose at %s", ev.ScheduledAt.Format("15:04"))
		}
		s.broadcast(Payload{
			Title: ev.MedicationName,
			Body:  body,
			URL:   "/today",
			Tag:   refID,
		})

		if err := s.push.RecordSent(model.NotifTypeDoseReminder, refID); err != nil {
			s.logger.Error("record sent notification", "error", err)
		}
	}
}

// NotifyLowStock sends a push notification when a dose crossed a
// medication below its threshold. Called from the intake handler, not
// from the scheduler loop.
func (s *Scheduler) NotifyLowStock(ev inventory.Event) {
	settings, err := s.settings.GetNotification()
	if err != nil {
		s.logger.Error("load notification settings", "error", err)
		return
	}

	events := reminder.LowStock([]inventory.Event{ev}, *settings)
	if len(events) == 0 {
		return
	}

	refID := fmt.Sprintf("medication-%d-%d", ev.MedicationID, ev.Remaining)
	sent, err := s.push.WasSent(model.NotifTypeLowStock, refID)
	if err != nil || sent {
		return
	}

	s.broadcast(Payload{
		Title: "Low Stock",
		Body:  fmt.Sprintf("%s: %d left", ev.MedicationName, ev.Remaining),
		URL:   fmt.Sprintf("/medications/%d", ev.MedicationID),
		Tag:   fmt.Sprintf("lowstock-%d", ev.MedicationID),
	})

	if err := s.push.RecordSent(model.NotifTypeLowStock, refID); err != nil {
		s.logger.Error("record sent notification", "error", err)
	}
}

func (s *Scheduler) broadcast(payload Payload) {
	subs, err := s.push.List()
	if err != nil {
		s.logger.Error("list push subscriptions", "error", err)
		return
	}

	for _, sub := range subs {
		if err := s.service.Send(&sub, payload); err != nil {
			if errors.Is(err, ErrExpired) {
				if err := s.push.DeleteByEndpoint(sub.Endpoint); err != nil {
					s.logger.Error("delete expired subscription", "error", err)
				}
				continue
			}
			s.logger.Error("send push notification", "endpoint", sub.Endpoint, "error", err)
		}
	}
}

// maintainLog prunes old notification log rows once a day.
func (s *Scheduler) maintainLog(now time.Time) {
	if now.Hour() != 3 || now.Minute() != 0 {
		return
	}
	if err := s.push.PruneLog(logRetentionDays); err != nil {
		s.logger.Error("prune notification log", "error", err)
	}
}
