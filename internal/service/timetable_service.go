package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/opentutor/tutor-ops-api/internal/models"
	appErrors "github.com/opentutor/tutor-ops-api/pkg/errors"
)

type timetableReader interface {
	ListActiveByBatch(ctx context.Context, batchID string) ([]models.Session, error)
}

// timetableDays is the display order of the weekly view. The product teaches
// Monday through Saturday; Sunday sessions are appended only when they exist.
var timetableDays = []time.Weekday{
	time.Monday, time.Tuesday, time.Wednesday,
	time.Thursday, time.Friday, time.Saturday,
}

func timetableCacheKey(batchID string) string {
	return fmt.Sprintf("timetable:batch:%s", batchID)
}

// TimetableService projects a batch's sessions into the weekly view. It holds
// no state of its own: the projection is recomputed from the session records
// and memoised in the cache until a write invalidates it.
type TimetableService struct {
	repo   timetableReader
	cache  *CacheService
	ttl    time.Duration
	logger *zap.Logger
}

// NewTimetableService constructs the service.
func NewTimetableService(repo timetableReader, cache *CacheService, ttl time.Duration, logger *zap.Logger) *TimetableService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TimetableService{repo: repo, cache: cache, ttl: ttl, logger: logger}
}

// Weekly returns the day-grouped timetable for a batch.
func (s *TimetableService) Weekly(ctx context.Context, batchID string) (*models.WeeklyTimetable, error) {
	key := timetableCacheKey(batchID)
	if s.cache.Enabled() {
		var cached models.WeeklyTimetable
		if hit, _ := s.cache.Get(ctx, key, &cached); hit {
			return &cached, nil
		}
	}

	sessions, err := s.repo.ListActiveByBatch(ctx, batchID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load batch sessions")
	}

	timetable := Project(batchID, sessions)

	if s.cache.Enabled() {
		if err := s.cache.Set(ctx, key, timetable, s.ttl); err != nil {
			s.logger.Warn("timetable cache store failed", zap.String("batch_id", batchID), zap.Error(err))
		}
	}
	return timetable, nil
}

// Project groups sessions by weekday name with entries sorted by start time.
func Project(batchID string, sessions []models.Session) *models.WeeklyTimetable {
	byDay := make(map[time.Weekday][]models.TimetableEntry)
	for i := range sessions {
		session := &sessions[i]
		end, err := session.EndMinutes()
		if err != nil {
			continue
		}
		day := session.ScheduledDate.Weekday()
		byDay[day] = append(byDay[day], models.TimetableEntry{
			SessionID:       session.ID,
			Subject:         session.Subject,
			TeacherID:       session.TeacherID,
			StartTime:       session.StartTime,
			EndTime:         models.FormatMinutes(end),
			DurationMinutes: session.DurationMinutes,
			Status:          session.Status,
			Topic:           session.Topic,
		})
	}

	days := timetableDays
	if len(byDay[time.Sunday]) > 0 {
		days = append(append([]time.Weekday{}, timetableDays...), time.Sunday)
	}

	timetable := &models.WeeklyTimetable{BatchID: batchID}
	for _, day := range days {
		entries := byDay[day]
		sort.SliceStable(entries, func(i, j int) bool {
			return entries[i].StartTime < entries[j].StartTime
		})
		timetable.Days = append(timetable.Days, models.TimetableDay{
			Day:     day.String(),
			Entries: entries,
		})
	}
	return timetable
}
