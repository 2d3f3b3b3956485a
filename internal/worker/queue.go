package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/opentutor/tutor-ops-api/internal/models"
)

const (
	defaultReminderAttempts   = 3
	defaultReminderRetryDelay = time.Second
)

// reminderJob is one pending delivery. attempt counts completed tries.
type reminderJob struct {
	session models.Session
	attempt int
}

// reminderPool fans reminder deliveries out to a bounded set of workers so a
// slow notifier never stalls the window sweep. Reminders are best-effort: a
// failed delivery is retried after a fixed delay, and a job that exhausts its
// attempts is dropped with a log line rather than requeued forever.
type reminderPool struct {
	notifier    Notifier
	workers     int
	maxAttempts int
	retryDelay  time.Duration
	logger      *zap.Logger

	jobs    chan reminderJob
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	started bool
}

func newReminderPool(notifier Notifier, workers int, logger *zap.Logger) *reminderPool {
	if workers <= 0 {
		workers = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &reminderPool{
		notifier:    notifier,
		workers:     workers,
		maxAttempts: defaultReminderAttempts,
		retryDelay:  defaultReminderRetryDelay,
		logger:      logger,
		jobs:        make(chan reminderJob, workers*4),
	}
}

func (p *reminderPool) start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.ctx, p.cancel = context.WithCancel(ctx)
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.deliver()
	}
	p.started = true
	p.logger.Info("reminder pool started", zap.Int("workers", p.workers))
}

func (p *reminderPool) stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.cancel()
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *reminderPool) enqueue(session models.Session) error {
	p.mu.Lock()
	ctx := p.ctx
	started := p.started
	p.mu.Unlock()

	if !started {
		return fmt.Errorf("reminder pool not started")
	}

	select {
	case <-ctx.Done():
		return fmt.Errorf("reminder pool stopped: %w", ctx.Err())
	case p.jobs <- reminderJob{session: session}:
		return nil
	}
}

func (p *reminderPool) deliver() {
	defer p.wg.Done()
	for {
		select {
		case <-p.ctx.Done():
			return
		case job := <-p.jobs:
			if err := p.notifier.SessionReminder(p.ctx, job.session); err != nil {
				p.retryLater(job, err)
			}
		}
	}
}

func (p *reminderPool) retryLater(job reminderJob, err error) {
	job.attempt++
	if job.attempt >= p.maxAttempts {
		p.logger.Error("reminder delivery abandoned",
			zap.String("session_id", job.session.ID),
			zap.Int("attempts", job.attempt),
			zap.Error(err))
		return
	}
	p.logger.Warn("reminder delivery failed, retrying",
		zap.String("session_id", job.session.ID),
		zap.Int("attempt", job.attempt),
		zap.Error(err))

	go func(j reminderJob) {
		timer := time.NewTimer(p.retryDelay)
		defer timer.Stop()
		select {
		case <-p.ctx.Done():
			return
		case <-timer.C:
			select {
			case <-p.ctx.Done():
			case p.jobs <- j:
			}
		}
	}(job)
}
