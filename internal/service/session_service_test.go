package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/opentutor/tutor-ops-api/internal/meeting"
	"github.com/opentutor/tutor-ops-api/internal/models"
	appErrors "github.com/opentutor/tutor-ops-api/pkg/errors"
)

type sessionRepoStub struct {
	byID      map[string]*models.Session
	listed    []models.Session
	total     int
	existing  []models.Session
	created   []*models.Session
	createErr error

	// createFailDates rejects inserts for the listed "2006-01-02" dates,
	// leaving the remaining dates to succeed.
	createFailDates map[string]bool

	liveOK    bool
	liveErr   error
	liveCalls int
	endedOK   bool
	cancelOK  bool
	cancelled []string
	deleteOK  bool
	deleted   []string
}

func (s *sessionRepoStub) FindByID(ctx context.Context, id string) (*models.Session, error) {
	if session, ok := s.byID[id]; ok {
		return session, nil
	}
	return nil, sql.ErrNoRows
}

func (s *sessionRepoStub) List(ctx context.Context, filter models.SessionFilter) ([]models.Session, int, error) {
	return s.listed, s.total, nil
}

func (s *sessionRepoStub) ListActiveByBatchAndDate(ctx context.Context, batchID string, date time.Time) ([]models.Session, error) {
	return s.existing, nil
}

func (s *sessionRepoStub) ListByIDs(ctx context.Context, ids []string) ([]models.Session, error) {
	var out []models.Session
	for _, id := range ids {
		if session, ok := s.byID[id]; ok {
			out = append(out, *session)
		}
	}
	return out, nil
}

func (s *sessionRepoStub) Create(ctx context.Context, session *models.Session) error {
	if s.createErr != nil {
		return s.createErr
	}
	if s.createFailDates[session.ScheduledDate.Format("2006-01-02")] {
		return errors.New("insert failed")
	}
	session.ID = fmt.Sprintf("sess-%d", len(s.created)+1)
	s.created = append(s.created, session)
	return nil
}

func (s *sessionRepoStub) MarkLive(ctx context.Context, id, roomReference string, at time.Time) (bool, error) {
	s.liveCalls++
	return s.liveOK, s.liveErr
}

func (s *sessionRepoStub) MarkEnded(ctx context.Context, id string, at time.Time) (bool, error) {
	return s.endedOK, nil
}

func (s *sessionRepoStub) MarkCancelled(ctx context.Context, id, reason string, at time.Time) (bool, error) {
	if s.cancelOK {
		s.cancelled = append(s.cancelled, id)
	}
	return s.cancelOK, nil
}

func (s *sessionRepoStub) Delete(ctx context.Context, id string) (bool, error) {
	if s.deleteOK {
		s.deleted = append(s.deleted, id)
	}
	return s.deleteOK, nil
}

type batchReaderStub struct {
	batch   *models.Batch
	teacher *string
}

func (s batchReaderStub) FindByID(ctx context.Context, id string) (*models.Batch, error) {
	if s.batch == nil {
		return nil, sql.ErrNoRows
	}
	return s.batch, nil
}

func (s batchReaderStub) FindSubjectTeacher(ctx context.Context, batchID, subject string) (*string, error) {
	if s.teacher == nil {
		return nil, sql.ErrNoRows
	}
	return s.teacher, nil
}

type provisionerStub struct {
	room  *meeting.Room
	err   error
	calls int
}

func (s *provisionerStub) Provision(ctx context.Context, req meeting.ProvisionRequest) (*meeting.Room, error) {
	s.calls++
	return s.room, s.err
}

type cacheStub struct {
	patterns []string
}

func (s *cacheStub) Invalidate(ctx context.Context, pattern string) error {
	s.patterns = append(s.patterns, pattern)
	return nil
}

func fixedClock() func() time.Time {
	return func() time.Time {
		return time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)
	}
}

func activeBatch() *models.Batch {
	return &models.Batch{ID: "batch-1", Name: "Grade 10 Physics", Active: true}
}

func newTestService(repo *sessionRepoStub, batches batchReaderStub, provisioner *provisionerStub, cacheRepo *cacheStub) *SessionService {
	return NewSessionService(repo, batches, provisioner, cacheRepo, nil, zap.NewNop()).WithClock(fixedClock())
}

func TestSessionServiceCreateSchedulesSession(t *testing.T) {
	repo := &sessionRepoStub{}
	invalidations := &cacheStub{}
	svc := newTestService(repo, batchReaderStub{batch: activeBatch()}, &provisionerStub{}, invalidations)

	teacher := "teacher-1"
	result, err := svc.Create(context.Background(), "batch-1", CreateSessionRequest{
		Subject:         "physics",
		TeacherID:       &teacher,
		Date:            "2025-01-06",
		StartTime:       "09:00",
		DurationMinutes: 90,
	})
	require.NoError(t, err)
	require.Len(t, repo.created, 1)

	assert.Equal(t, models.SessionScheduled, result.Session.Status)
	assert.Equal(t, "09:00", result.Session.StartTime)
	assert.Equal(t, 75, result.Session.TeachingMinutes)
	assert.Equal(t, 15, result.Session.PrepBufferMinutes)
	assert.False(t, result.Adjusted)
	assert.Equal(t, []string{"timetable:batch:batch-1"}, invalidations.patterns)
}

func TestSessionServiceCreateShiftsPastConflict(t *testing.T) {
	repo := &sessionRepoStub{
		existing: []models.Session{{ID: "s-1", StartTime: "09:30", DurationMinutes: 60, Status: models.SessionScheduled}},
	}
	svc := newTestService(repo, batchReaderStub{batch: activeBatch()}, &provisionerStub{}, &cacheStub{})

	result, err := svc.Create(context.Background(), "batch-1", CreateSessionRequest{
		Subject:         "physics",
		Date:            "2025-01-06",
		StartTime:       "09:00",
		DurationMinutes: 90,
	})
	require.NoError(t, err)
	assert.True(t, result.Adjusted)
	assert.Equal(t, "10:30", result.AdjustedStartTime)
	assert.Equal(t, "10:30", result.Session.StartTime)
	assert.Equal(t, []string{"s-1"}, result.ConflictIDs)
}

func TestSessionServiceCreateDefaultsTeacherFromBatchSubject(t *testing.T) {
	repo := &sessionRepoStub{}
	assigned := "teacher-9"
	svc := newTestService(repo, batchReaderStub{batch: activeBatch(), teacher: &assigned}, &provisionerStub{}, &cacheStub{})

	result, err := svc.Create(context.Background(), "batch-1", CreateSessionRequest{
		Subject:         "chemistry",
		Date:            "2025-01-06",
		StartTime:       "10:00",
		DurationMinutes: 60,
	})
	require.NoError(t, err)
	require.NotNil(t, result.Session.TeacherID)
	assert.Equal(t, "teacher-9", *result.Session.TeacherID)
}

func TestSessionServiceCreateRejectsPastDateTime(t *testing.T) {
	svc := newTestService(&sessionRepoStub{}, batchReaderStub{batch: activeBatch()}, &provisionerStub{}, &cacheStub{})

	_, err := svc.Create(context.Background(), "batch-1", CreateSessionRequest{
		Subject:         "physics",
		Date:            "2024-12-31",
		StartTime:       "09:00",
		DurationMinutes: 60,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPastDateTime.Code, appErrors.FromError(err).Code)
}

func TestSessionServiceCreatePastCheckUsesClockZone(t *testing.T) {
	// 08:00 in a UTC+5 zone; the scheduled wall time must be read in the same
	// zone, not as UTC, or the boundary shifts by the host offset.
	zone := time.FixedZone("UTC+5", 5*60*60)
	clock := func() time.Time {
		return time.Date(2025, 1, 6, 8, 0, 0, 0, zone)
	}
	repo := &sessionRepoStub{}
	svc := NewSessionService(repo, batchReaderStub{batch: activeBatch()}, &provisionerStub{}, &cacheStub{}, nil, zap.NewNop()).WithClock(clock)

	_, err := svc.Create(context.Background(), "batch-1", CreateSessionRequest{
		Subject:         "physics",
		Date:            "2025-01-06",
		StartTime:       "07:00",
		DurationMinutes: 60,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPastDateTime.Code, appErrors.FromError(err).Code)

	created, err := svc.Create(context.Background(), "batch-1", CreateSessionRequest{
		Subject:         "physics",
		Date:            "2025-01-06",
		StartTime:       "09:00",
		DurationMinutes: 60,
	})
	require.NoError(t, err)
	assert.Equal(t, "09:00", created.Session.StartTime)
}

func TestSessionServiceCreateRejectsDisallowedDuration(t *testing.T) {
	svc := newTestService(&sessionRepoStub{}, batchReaderStub{batch: activeBatch()}, &provisionerStub{}, &cacheStub{})

	_, err := svc.Create(context.Background(), "batch-1", CreateSessionRequest{
		Subject:         "physics",
		Date:            "2025-01-06",
		StartTime:       "09:00",
		DurationMinutes: 50,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidDuration.Code, appErrors.FromError(err).Code)
}

func TestSessionServiceCreateRejectsInactiveBatch(t *testing.T) {
	inactive := &models.Batch{ID: "batch-1", Active: false}
	svc := newTestService(&sessionRepoStub{}, batchReaderStub{batch: inactive}, &provisionerStub{}, &cacheStub{})

	_, err := svc.Create(context.Background(), "batch-1", CreateSessionRequest{
		Subject:         "physics",
		Date:            "2025-01-06",
		StartTime:       "09:00",
		DurationMinutes: 60,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrBatchInactive.Code, appErrors.FromError(err).Code)
}

func TestSessionServiceCreateRecurringReportsCounts(t *testing.T) {
	repo := &sessionRepoStub{}
	svc := newTestService(repo, batchReaderStub{batch: activeBatch()}, &provisionerStub{}, &cacheStub{})

	result, err := svc.CreateRecurring(context.Background(), "batch-1", CreateSessionRequest{
		Subject:         "physics",
		Date:            "2025-01-06",
		StartTime:       "09:00",
		DurationMinutes: 60,
		Recurrence: &Recurrence{
			Weekdays:     []string{"monday", "wednesday"},
			HorizonCount: 2,
			HorizonUnit:  HorizonWeeks,
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 4, result.CreatedCount)
	assert.Equal(t, 0, result.FailedCount)
	assert.Len(t, result.SessionIDs, 4)
	assert.Len(t, repo.created, 4)
}

func TestSessionServiceCreateRecurringKeepsPartialResults(t *testing.T) {
	repo := &sessionRepoStub{
		createFailDates: map[string]bool{
			"2025-01-13": true,
			"2025-01-27": true,
			"2025-02-03": true,
		},
	}
	svc := newTestService(repo, batchReaderStub{batch: activeBatch()}, &provisionerStub{}, &cacheStub{})

	result, err := svc.CreateRecurring(context.Background(), "batch-1", CreateSessionRequest{
		Subject:         "physics",
		Date:            "2025-01-06",
		StartTime:       "09:00",
		DurationMinutes: 60,
		Recurrence: &Recurrence{
			Weekdays:     []string{"monday"},
			HorizonCount: 5,
			HorizonUnit:  HorizonWeeks,
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, result.CreatedCount)
	assert.Equal(t, 3, result.FailedCount)
	assert.Equal(t, 5, result.CreatedCount+result.FailedCount)
	assert.Len(t, result.SessionIDs, 2)

	// The successful inserts stay put; a failed date never unwinds them.
	require.Len(t, repo.created, 2)
	assert.Equal(t, "2025-01-06", repo.created[0].ScheduledDate.Format("2006-01-02"))
	assert.Equal(t, "2025-01-20", repo.created[1].ScheduledDate.Format("2006-01-02"))
}

func TestSessionServiceCreateRecurringAllDatesFailed(t *testing.T) {
	repo := &sessionRepoStub{createErr: errors.New("insert failed")}
	svc := newTestService(repo, batchReaderStub{batch: activeBatch()}, &provisionerStub{}, &cacheStub{})

	_, err := svc.CreateRecurring(context.Background(), "batch-1", CreateSessionRequest{
		Subject:         "physics",
		Date:            "2025-01-06",
		StartTime:       "09:00",
		DurationMinutes: 60,
		Recurrence: &Recurrence{
			Weekdays:     []string{"monday"},
			HorizonCount: 1,
			HorizonUnit:  HorizonWeeks,
		},
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestSessionServiceStartProvisionsRoom(t *testing.T) {
	scheduled := &models.Session{
		ID:            "sess-1",
		BatchID:       "batch-1",
		Subject:       "physics",
		ScheduledDate: day("2025-01-06"),
		StartTime:     "09:00",
		Status:        models.SessionScheduled,
	}
	repo := &sessionRepoStub{byID: map[string]*models.Session{"sess-1": scheduled}, liveOK: true}
	provisioner := &provisionerStub{room: &meeting.Room{
		Reference: "room-42",
		HostURL:   "https://rooms.example/host/42",
		JoinArtifacts: []meeting.JoinArtifact{
			{ParticipantID: "student-1", JoinURL: "https://rooms.example/join/1"},
		},
	}}
	svc := newTestService(repo, batchReaderStub{batch: activeBatch()}, provisioner, &cacheStub{})

	result, err := svc.Start(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.Equal(t, "room-42", result.RoomReference)
	assert.Equal(t, "https://rooms.example/host/42", result.HostURL)
	assert.Len(t, result.JoinArtifacts, 1)
	assert.Equal(t, 1, provisioner.calls)
	assert.Equal(t, 1, repo.liveCalls)
}

func TestSessionServiceStartProvisioningFailureLeavesScheduled(t *testing.T) {
	scheduled := &models.Session{ID: "sess-1", BatchID: "batch-1", ScheduledDate: day("2025-01-06"), StartTime: "09:00", Status: models.SessionScheduled}
	repo := &sessionRepoStub{byID: map[string]*models.Session{"sess-1": scheduled}}
	provisioner := &provisionerStub{err: errors.New("provider down")}
	svc := newTestService(repo, batchReaderStub{batch: activeBatch()}, provisioner, &cacheStub{})

	_, err := svc.Start(context.Background(), "sess-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrProvisioning.Code, appErrors.FromError(err).Code)
	assert.Equal(t, 0, repo.liveCalls)
}

func TestSessionServiceStartLostRace(t *testing.T) {
	scheduled := &models.Session{ID: "sess-1", BatchID: "batch-1", ScheduledDate: day("2025-01-06"), StartTime: "09:00", Status: models.SessionScheduled}
	repo := &sessionRepoStub{byID: map[string]*models.Session{"sess-1": scheduled}, liveOK: false}
	svc := newTestService(repo, batchReaderStub{batch: activeBatch()}, &provisionerStub{room: &meeting.Room{Reference: "room-1"}}, &cacheStub{})

	_, err := svc.Start(context.Background(), "sess-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrState.Code, appErrors.FromError(err).Code)
}

func TestSessionServiceStartRejectsNonScheduled(t *testing.T) {
	ended := &models.Session{ID: "sess-1", Status: models.SessionEnded}
	repo := &sessionRepoStub{byID: map[string]*models.Session{"sess-1": ended}}
	provisioner := &provisionerStub{}
	svc := newTestService(repo, batchReaderStub{}, provisioner, &cacheStub{})

	_, err := svc.Start(context.Background(), "sess-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrState.Code, appErrors.FromError(err).Code)
	assert.Equal(t, 0, provisioner.calls)
}

func TestSessionServiceEndRequiresLive(t *testing.T) {
	scheduled := &models.Session{ID: "sess-1", Status: models.SessionScheduled}
	repo := &sessionRepoStub{byID: map[string]*models.Session{"sess-1": scheduled}}
	svc := newTestService(repo, batchReaderStub{}, &provisionerStub{}, &cacheStub{})

	err := svc.End(context.Background(), "sess-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrState.Code, appErrors.FromError(err).Code)
}

func TestSessionServiceCancelRecordsReason(t *testing.T) {
	scheduled := &models.Session{ID: "sess-1", BatchID: "batch-1", Status: models.SessionScheduled}
	repo := &sessionRepoStub{byID: map[string]*models.Session{"sess-1": scheduled}, cancelOK: true}
	svc := newTestService(repo, batchReaderStub{}, &provisionerStub{}, &cacheStub{})

	err := svc.Cancel(context.Background(), "sess-1", CancelSessionRequest{Reason: "teacher unavailable"})
	require.NoError(t, err)
	assert.Equal(t, []string{"sess-1"}, repo.cancelled)
}

func TestSessionServiceCancelRequiresReason(t *testing.T) {
	svc := newTestService(&sessionRepoStub{}, batchReaderStub{}, &provisionerStub{}, &cacheStub{})

	err := svc.Cancel(context.Background(), "sess-1", CancelSessionRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestSessionServiceCancelManySkipsIneligible(t *testing.T) {
	repo := &sessionRepoStub{
		byID: map[string]*models.Session{
			"sess-1": {ID: "sess-1", BatchID: "batch-1", Status: models.SessionScheduled},
			"sess-2": {ID: "sess-2", BatchID: "batch-1", Status: models.SessionLive},
			"sess-3": {ID: "sess-3", BatchID: "batch-1", Status: models.SessionScheduled},
		},
		cancelOK: true,
	}
	svc := newTestService(repo, batchReaderStub{}, &provisionerStub{}, &cacheStub{})

	cancelled, err := svc.CancelMany(context.Background(), BulkCancelRequest{
		SessionIDs: []string{"sess-1", "sess-2", "sess-3", "sess-missing"},
		Reason:     "holiday",
	})
	require.NoError(t, err)
	assert.Equal(t, 2, cancelled)
	assert.ElementsMatch(t, []string{"sess-1", "sess-3"}, repo.cancelled)
}

func TestSessionServiceDeleteRefusesLive(t *testing.T) {
	live := &models.Session{ID: "sess-1", Status: models.SessionLive}
	repo := &sessionRepoStub{byID: map[string]*models.Session{"sess-1": live}, deleteOK: true}
	svc := newTestService(repo, batchReaderStub{}, &provisionerStub{}, &cacheStub{})

	err := svc.Delete(context.Background(), "sess-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrState.Code, appErrors.FromError(err).Code)
	assert.Empty(t, repo.deleted)
}

func TestSessionServiceDeleteManyCountsNonLive(t *testing.T) {
	repo := &sessionRepoStub{
		byID: map[string]*models.Session{
			"sess-1": {ID: "sess-1", BatchID: "batch-1", Status: models.SessionScheduled},
			"sess-2": {ID: "sess-2", BatchID: "batch-1", Status: models.SessionLive},
			"sess-3": {ID: "sess-3", BatchID: "batch-1", Status: models.SessionCancelled},
		},
		deleteOK: true,
	}
	svc := newTestService(repo, batchReaderStub{}, &provisionerStub{}, &cacheStub{})

	deleted, err := svc.DeleteMany(context.Background(), BulkDeleteRequest{SessionIDs: []string{"sess-1", "sess-2", "sess-3"}})
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)
	assert.ElementsMatch(t, []string{"sess-1", "sess-3"}, repo.deleted)
}

func TestSessionServiceGetNotFound(t *testing.T) {
	svc := newTestService(&sessionRepoStub{}, batchReaderStub{}, &provisionerStub{}, &cacheStub{})

	_, err := svc.Get(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
