package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/opentutor/tutor-ops-api/internal/meeting"
	"github.com/opentutor/tutor-ops-api/internal/models"
	appErrors "github.com/opentutor/tutor-ops-api/pkg/errors"
)

type sessionRepository interface {
	FindByID(ctx context.Context, id string) (*models.Session, error)
	List(ctx context.Context, filter models.SessionFilter) ([]models.Session, int, error)
	ListActiveByBatchAndDate(ctx context.Context, batchID string, date time.Time) ([]models.Session, error)
	ListByIDs(ctx context.Context, ids []string) ([]models.Session, error)
	Create(ctx context.Context, session *models.Session) error
	MarkLive(ctx context.Context, id, roomReference string, at time.Time) (bool, error)
	MarkEnded(ctx context.Context, id string, at time.Time) (bool, error)
	MarkCancelled(ctx context.Context, id, reason string, at time.Time) (bool, error)
	Delete(ctx context.Context, id string) (bool, error)
}

type batchReader interface {
	FindByID(ctx context.Context, id string) (*models.Batch, error)
	FindSubjectTeacher(ctx context.Context, batchID, subject string) (*string, error)
}

type roomProvisioner interface {
	Provision(ctx context.Context, req meeting.ProvisionRequest) (*meeting.Room, error)
}

type cacheInvalidator interface {
	Invalidate(ctx context.Context, pattern string) error
}

// CreateSessionRequest describes payload for scheduling sessions. When
// Recurrence is present the request acts as the template for every generated
// date.
type CreateSessionRequest struct {
	Subject         string      `json:"subject" validate:"required"`
	TeacherID       *string     `json:"teacher_id"`
	Date            string      `json:"date" validate:"required"`
	StartTime       string      `json:"start_time" validate:"required"`
	DurationMinutes int         `json:"duration_minutes" validate:"required"`
	Topic           *string     `json:"topic"`
	Notes           *string     `json:"notes"`
	Recurrence      *Recurrence `json:"recurrence,omitempty"`
}

// CreateSessionResult reports the committed session plus conflict-resolution
// details when the requested time had to move.
type CreateSessionResult struct {
	Session           *models.Session `json:"session"`
	Adjusted          bool            `json:"adjusted"`
	AdjustedStartTime string          `json:"adjusted_start_time,omitempty"`
	ConflictIDs       []string        `json:"conflict_ids,omitempty"`
	CeilingExceeded   bool            `json:"ceiling_exceeded,omitempty"`
}

// RecurringCreateResult summarises an independent-per-date recurring creation.
type RecurringCreateResult struct {
	CreatedCount int      `json:"created_count"`
	FailedCount  int      `json:"failed_count"`
	SessionIDs   []string `json:"session_ids"`
}

// StartSessionResult carries the provisioned room back to the caller.
type StartSessionResult struct {
	RoomReference string                 `json:"room_reference"`
	HostURL       string                 `json:"host_url,omitempty"`
	JoinArtifacts []meeting.JoinArtifact `json:"join_artifacts"`
}

// CancelSessionRequest carries the mandatory cancellation reason.
type CancelSessionRequest struct {
	Reason string `json:"reason" validate:"required"`
}

// BulkCancelRequest cancels every still-scheduled session in the id set.
type BulkCancelRequest struct {
	SessionIDs []string `json:"session_ids" validate:"required,min=1"`
	Reason     string   `json:"reason" validate:"required"`
}

// BulkDeleteRequest permanently removes every non-live session in the id set.
type BulkDeleteRequest struct {
	SessionIDs []string `json:"session_ids" validate:"required,min=1"`
}

// SessionService coordinates session scheduling and lifecycle transitions.
type SessionService struct {
	repo        sessionRepository
	batches     batchReader
	provisioner roomProvisioner
	cache       cacheInvalidator
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
	now         func() time.Time
}

// NewSessionService instantiates SessionService.
func NewSessionService(repo sessionRepository, batches batchReader, provisioner roomProvisioner, cache cacheInvalidator, validate *validator.Validate, logger *zap.Logger) *SessionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionService{
		repo:        repo,
		batches:     batches,
		provisioner: provisioner,
		cache:       cache,
		validator:   validate,
		logger:      logger,
		now:         time.Now,
	}
}

// WithClock overrides the service clock. Tests use this to pin "now".
func (s *SessionService) WithClock(now func() time.Time) *SessionService {
	s.now = now
	return s
}

// WithMetrics attaches Prometheus instrumentation.
func (s *SessionService) WithMetrics(metrics *MetricsService) *SessionService {
	s.metrics = metrics
	return s
}

// Get loads a single session.
func (s *SessionService) Get(ctx context.Context, id string) (*models.Session, error) {
	session, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}
	return session, nil
}

// List returns a batch's sessions with pagination metadata.
func (s *SessionService) List(ctx context.Context, filter models.SessionFilter) ([]models.Session, *models.Pagination, error) {
	sessions, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list sessions")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return sessions, pagination, nil
}

// Create schedules a single session after validation and conflict resolution.
func (s *SessionService) Create(ctx context.Context, batchID string, req CreateSessionRequest) (*CreateSessionResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid session payload")
	}

	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid session date")
	}

	batch, err := s.loadActiveBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}

	return s.createOne(ctx, batch, req, date)
}

// CreateRecurring expands the recurrence and schedules one session per date.
// Each date succeeds or fails on its own; the result reports counts instead of
// rolling anything back.
func (s *SessionService) CreateRecurring(ctx context.Context, batchID string, req CreateSessionRequest) (*RecurringCreateResult, error) {
	if req.Recurrence == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "recurrence is required")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid session payload")
	}
	if err := s.validator.Struct(req.Recurrence); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid recurrence payload")
	}

	startDate, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid session date")
	}

	weekdays, err := ParseWeekdays(req.Recurrence.Weekdays)
	if err != nil {
		return nil, err
	}

	batch, err := s.loadActiveBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}

	dates := ExpandRecurrence(weekdays, startDate, req.Recurrence.HorizonCount, req.Recurrence.HorizonUnit)

	result := &RecurringCreateResult{}
	for _, date := range dates {
		created, err := s.createOne(ctx, batch, req, date)
		if err != nil {
			result.FailedCount++
			s.logger.Warn("recurring create skipped date",
				zap.String("batch_id", batch.ID),
				zap.String("date", date.Format("2006-01-02")),
				zap.Error(err))
			continue
		}
		result.CreatedCount++
		result.SessionIDs = append(result.SessionIDs, created.Session.ID)
	}

	if result.CreatedCount == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("no sessions created for %d generated dates", len(dates)))
	}
	return result, nil
}

func (s *SessionService) loadActiveBatch(ctx context.Context, batchID string) (*models.Batch, error) {
	batch, err := s.batches.FindByID(ctx, batchID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "batch not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load batch")
	}
	if !batch.Active {
		return nil, appErrors.Clone(appErrors.ErrBatchInactive, "cannot schedule sessions for an inactive batch")
	}
	return batch, nil
}

func (s *SessionService) createOne(ctx context.Context, batch *models.Batch, req CreateSessionRequest, date time.Time) (*CreateSessionResult, error) {
	if !models.DurationAllowed(req.DurationMinutes) {
		return nil, appErrors.Clone(appErrors.ErrInvalidDuration, fmt.Sprintf("duration %d is not an allowed value", req.DurationMinutes))
	}

	startMinutes, err := models.MinutesOfDay(req.StartTime)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid start time")
	}

	// Scheduled date and start time are wall-clock values; anchor them in the
	// clock's zone so the past check doesn't drift by the host UTC offset.
	now := s.now()
	startsAt := time.Date(date.Year(), date.Month(), date.Day(), 0, startMinutes, 0, 0, now.Location())
	if startsAt.Before(now) {
		return nil, appErrors.Clone(appErrors.ErrPastDateTime, fmt.Sprintf("session at %s %s is in the past", date.Format("2006-01-02"), req.StartTime))
	}

	teacherID := req.TeacherID
	if teacherID == nil {
		assigned, err := s.batches.FindSubjectTeacher(ctx, batch.ID, req.Subject)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve subject teacher")
		}
		teacherID = assigned
	}

	existing, err := s.repo.ListActiveByBatchAndDate(ctx, batch.ID, date)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check session conflicts")
	}

	resolution := ResolveStartTime(startMinutes, req.DurationMinutes, existing)
	teaching, prep := models.SplitDuration(req.DurationMinutes)

	session := &models.Session{
		BatchID:           batch.ID,
		Subject:           req.Subject,
		TeacherID:         teacherID,
		ScheduledDate:     date,
		StartTime:         resolution.StartTime(),
		DurationMinutes:   req.DurationMinutes,
		TeachingMinutes:   teaching,
		PrepBufferMinutes: prep,
		Status:            models.SessionScheduled,
		Topic:             req.Topic,
		Notes:             req.Notes,
		CreatedAt:         s.now().UTC(),
	}

	if err := s.repo.Create(ctx, session); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create session")
	}
	s.invalidateTimetable(ctx, batch.ID)

	result := &CreateSessionResult{
		Session:         session,
		Adjusted:        resolution.Shifted,
		ConflictIDs:     resolution.ConflictIDs,
		CeilingExceeded: resolution.CeilingExceeded,
	}
	if resolution.Shifted {
		result.AdjustedStartTime = resolution.StartTime()
	}
	return result, nil
}

// Start transitions a scheduled session to live, provisioning its meeting
// room first. A provisioning failure leaves the session scheduled.
func (s *SessionService) Start(ctx context.Context, id string) (*StartSessionResult, error) {
	session, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !session.Status.CanStart() {
		return nil, appErrors.Clone(appErrors.ErrState, fmt.Sprintf("cannot start a %s session", session.Status))
	}

	hostID := ""
	if session.TeacherID != nil {
		hostID = *session.TeacherID
	}
	provisionStart := s.now()
	room, err := s.provisioner.Provision(ctx, meeting.ProvisionRequest{
		SessionID:       session.ID,
		BatchID:         session.BatchID,
		Subject:         session.Subject,
		StartsAt:        session.ScheduledDate.Format("2006-01-02") + "T" + session.StartTime,
		DurationMinutes: session.DurationMinutes,
		HostID:          hostID,
	})
	s.metrics.RecordProvisioning(err == nil, time.Since(provisionStart))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrProvisioning.Code, appErrors.ErrProvisioning.Status, "meeting room provisioning failed")
	}

	ok, err := s.repo.MarkLive(ctx, session.ID, room.Reference, s.now().UTC())
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to start session")
	}
	if !ok {
		// Another caller won the transition after our status check.
		return nil, appErrors.Clone(appErrors.ErrState, "session is no longer scheduled")
	}
	s.metrics.RecordTransition("start")
	s.invalidateTimetable(ctx, session.BatchID)

	return &StartSessionResult{
		RoomReference: room.Reference,
		HostURL:       room.HostURL,
		JoinArtifacts: room.JoinArtifacts,
	}, nil
}

// End transitions a live session to ended.
func (s *SessionService) End(ctx context.Context, id string) error {
	session, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if !session.Status.CanEnd() {
		return appErrors.Clone(appErrors.ErrState, fmt.Sprintf("cannot end a %s session", session.Status))
	}
	ok, err := s.repo.MarkEnded(ctx, session.ID, s.now().UTC())
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to end session")
	}
	if !ok {
		return appErrors.Clone(appErrors.ErrState, "session is no longer live")
	}
	s.metrics.RecordTransition("end")
	s.invalidateTimetable(ctx, session.BatchID)
	return nil
}

// Cancel soft-cancels a scheduled session, recording the reason.
func (s *SessionService) Cancel(ctx context.Context, id string, req CancelSessionRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "cancellation reason is required")
	}
	session, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if !session.Status.CanCancel() {
		return appErrors.Clone(appErrors.ErrState, fmt.Sprintf("cannot cancel a %s session", session.Status))
	}
	ok, err := s.repo.MarkCancelled(ctx, session.ID, req.Reason, s.now().UTC())
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel session")
	}
	if !ok {
		return appErrors.Clone(appErrors.ErrState, "session is no longer scheduled")
	}
	s.metrics.RecordTransition("cancel")
	s.invalidateTimetable(ctx, session.BatchID)
	return nil
}

// CancelMany cancels every currently-scheduled session in the id set. Ids in
// other states are skipped, not failed: bulk selections routinely mix
// eligible and ineligible rows.
func (s *SessionService) CancelMany(ctx context.Context, req BulkCancelRequest) (int, error) {
	if err := s.validator.Struct(req); err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid bulk cancel payload")
	}
	sessions, err := s.repo.ListByIDs(ctx, req.SessionIDs)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load sessions")
	}

	cancelled := 0
	now := s.now().UTC()
	for i := range sessions {
		if !sessions[i].Status.CanCancel() {
			continue
		}
		ok, err := s.repo.MarkCancelled(ctx, sessions[i].ID, req.Reason, now)
		if err != nil {
			s.logger.Warn("bulk cancel item failed", zap.String("session_id", sessions[i].ID), zap.Error(err))
			continue
		}
		if ok {
			cancelled++
			s.invalidateTimetable(ctx, sessions[i].BatchID)
		}
	}
	return cancelled, nil
}

// Delete permanently removes a session. Live sessions are refused.
func (s *SessionService) Delete(ctx context.Context, id string) error {
	session, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if !session.Status.CanDelete() {
		return appErrors.Clone(appErrors.ErrState, "live sessions must be ended before deletion")
	}
	ok, err := s.repo.Delete(ctx, session.ID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete session")
	}
	if !ok {
		return appErrors.Clone(appErrors.ErrState, "session went live and cannot be deleted")
	}
	s.metrics.RecordTransition("delete")
	s.invalidateTimetable(ctx, session.BatchID)
	return nil
}

// DeleteMany permanently removes every non-live session in the id set and
// reports how many were deleted. Live ids are skipped silently.
func (s *SessionService) DeleteMany(ctx context.Context, req BulkDeleteRequest) (int, error) {
	if err := s.validator.Struct(req); err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid bulk delete payload")
	}
	sessions, err := s.repo.ListByIDs(ctx, req.SessionIDs)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load sessions")
	}

	deleted := 0
	for i := range sessions {
		if !sessions[i].Status.CanDelete() {
			continue
		}
		ok, err := s.repo.Delete(ctx, sessions[i].ID)
		if err != nil {
			s.logger.Warn("bulk delete item failed", zap.String("session_id", sessions[i].ID), zap.Error(err))
			continue
		}
		if ok {
			deleted++
			s.invalidateTimetable(ctx, sessions[i].BatchID)
		}
	}
	return deleted, nil
}

func (s *SessionService) invalidateTimetable(ctx context.Context, batchID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, timetableCacheKey(batchID)); err != nil {
		s.logger.Warn("timetable cache invalidation failed", zap.String("batch_id", batchID), zap.Error(err))
	}
}
