package worker

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/opentutor/tutor-ops-api/internal/models"
	"github.com/opentutor/tutor-ops-api/internal/service"
	appErrors "github.com/opentutor/tutor-ops-api/pkg/errors"
)

type dueLister interface {
	ListDueForStart(ctx context.Context, now time.Time) ([]models.Session, error)
}

type sessionStarter interface {
	Start(ctx context.Context, id string) (*service.StartSessionResult, error)
}

// AutoStartSweeper periodically starts sessions whose scheduled time has
// arrived. The state machine makes the sweep safe to rerun: a session that
// went live between listing and starting is rejected with a state error, so
// at most one room is ever provisioned per session.
type AutoStartSweeper struct {
	sessions dueLister
	starter  sessionStarter
	interval time.Duration
	logger   *zap.Logger
}

// NewAutoStartSweeper constructs the sweeper.
func NewAutoStartSweeper(sessions dueLister, starter sessionStarter, interval time.Duration, logger *zap.Logger) *AutoStartSweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AutoStartSweeper{sessions: sessions, starter: starter, interval: interval, logger: logger}
}

// Run blocks sweeping until the context is cancelled.
func (w *AutoStartSweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("auto-start sweeper running", zap.Duration("interval", w.interval))
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("auto-start sweeper stopped")
			return
		case <-ticker.C:
			w.Sweep(ctx)
		}
	}
}

// Sweep performs one pass over due sessions.
func (w *AutoStartSweeper) Sweep(ctx context.Context) {
	due, err := w.sessions.ListDueForStart(ctx, time.Now().UTC())
	if err != nil {
		w.logger.Error("auto-start listing failed", zap.Error(err))
		return
	}

	for i := range due {
		if _, err := w.starter.Start(ctx, due[i].ID); err != nil {
			if isStateError(err) {
				// Already started elsewhere; nothing to do.
				continue
			}
			w.logger.Warn("auto-start failed",
				zap.String("session_id", due[i].ID),
				zap.String("batch_id", due[i].BatchID),
				zap.Error(err))
			continue
		}
		w.logger.Info("session auto-started",
			zap.String("session_id", due[i].ID),
			zap.String("batch_id", due[i].BatchID))
	}
}

func isStateError(err error) bool {
	var appErr *appErrors.Error
	return errors.As(err, &appErr) && appErr.Code == appErrors.ErrState.Code
}
