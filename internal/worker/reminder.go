package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/opentutor/tutor-ops-api/internal/models"
)

// Notifier delivers session reminders. The real transport lives in the
// notification product; this service only hands sessions over.
type Notifier interface {
	SessionReminder(ctx context.Context, session models.Session) error
}

// LogNotifier is the default Notifier, useful in development and tests.
type LogNotifier struct {
	Logger *zap.Logger
}

// SessionReminder logs the reminder instead of delivering it.
func (n LogNotifier) SessionReminder(ctx context.Context, session models.Session) error {
	logger := n.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("session reminder",
		zap.String("session_id", session.ID),
		zap.String("batch_id", session.BatchID),
		zap.String("subject", session.Subject),
		zap.String("date", session.ScheduledDate.Format("2006-01-02")),
		zap.String("start_time", session.StartTime))
	return nil
}

type upcomingLister interface {
	ListStartingBetween(ctx context.Context, from, to time.Time) ([]models.Session, error)
}

// ReminderDispatcher enqueues reminder jobs for sessions starting within the
// lead window. Windows are contiguous between runs so a session is enqueued
// once even though the dispatcher fires repeatedly.
type ReminderDispatcher struct {
	sessions upcomingLister
	pool     *reminderPool
	lead     time.Duration
	interval time.Duration
	logger   *zap.Logger

	lastUpper time.Time
}

// NewReminderDispatcher constructs the dispatcher and its delivery pool.
func NewReminderDispatcher(sessions upcomingLister, notifier Notifier, lead, interval time.Duration, workers int, logger *zap.Logger) *ReminderDispatcher {
	if lead <= 0 {
		lead = 30 * time.Minute
	}
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &ReminderDispatcher{
		sessions: sessions,
		pool:     newReminderPool(notifier, workers, logger),
		lead:     lead,
		interval: interval,
		logger:   logger,
	}
}

// Run starts the delivery pool and blocks dispatching until the context is
// cancelled.
func (d *ReminderDispatcher) Run(ctx context.Context) {
	d.pool.start(ctx)
	defer d.pool.stop()

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	d.logger.Info("reminder dispatcher running",
		zap.Duration("lead", d.lead),
		zap.Duration("interval", d.interval))
	for {
		select {
		case <-ctx.Done():
			d.logger.Info("reminder dispatcher stopped")
			return
		case <-ticker.C:
			d.Dispatch(ctx, time.Now().UTC())
		}
	}
}

// Dispatch enqueues reminders for sessions starting inside the window that
// opened at the previous run's upper bound and closes at now+lead.
func (d *ReminderDispatcher) Dispatch(ctx context.Context, now time.Time) {
	lower := d.lastUpper
	if lower.IsZero() {
		lower = now
	}
	upper := now.Add(d.lead)
	if !upper.After(lower) {
		return
	}

	upcoming, err := d.sessions.ListStartingBetween(ctx, lower, upper)
	if err != nil {
		d.logger.Error("reminder listing failed", zap.Error(err))
		return
	}
	d.lastUpper = upper

	for i := range upcoming {
		if err := d.pool.enqueue(upcoming[i]); err != nil {
			d.logger.Warn("reminder enqueue failed", zap.String("session_id", upcoming[i].ID), zap.Error(err))
		}
	}
}
