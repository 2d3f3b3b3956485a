package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/opentutor/tutor-ops-api/internal/models"
	"github.com/opentutor/tutor-ops-api/internal/service"
)

type timetableSessionsStub struct {
	sessions []models.Session
	err      error
}

func (s *timetableSessionsStub) ListActiveByBatch(ctx context.Context, batchID string) ([]models.Session, error) {
	return s.sessions, s.err
}

func newTimetableHandler(t *testing.T, stub *timetableSessionsStub) *TimetableHandler {
	t.Helper()
	svc := service.NewTimetableService(stub, nil, time.Minute, zap.NewNop())
	return NewTimetableHandler(svc)
}

func timetableFixture() []models.Session {
	monday := time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)
	return []models.Session{
		{ID: "sess-1", BatchID: "batch-1", Subject: "physics", ScheduledDate: monday, StartTime: "09:00", DurationMinutes: 90, Status: models.SessionScheduled},
	}
}

func timetableRequest(t *testing.T, target string) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, err := http.NewRequest(http.MethodGet, target, nil)
	require.NoError(t, err)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "batch-1"}}
	return c, w
}

func TestTimetableHandlerWeekly(t *testing.T) {
	handler := newTimetableHandler(t, &timetableSessionsStub{sessions: timetableFixture()})

	c, w := timetableRequest(t, "/batches/batch-1/timetable")
	handler.Weekly(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"day":"Monday"`)
	assert.Contains(t, w.Body.String(), `"end_time":"10:30"`)
}

func TestTimetableHandlerWeeklyError(t *testing.T) {
	handler := newTimetableHandler(t, &timetableSessionsStub{err: errors.New("db down")})

	c, w := timetableRequest(t, "/batches/batch-1/timetable")
	handler.Weekly(c)
	require.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestTimetableHandlerExportCSV(t *testing.T) {
	handler := newTimetableHandler(t, &timetableSessionsStub{sessions: timetableFixture()})

	c, w := timetableRequest(t, "/batches/batch-1/timetable/export?format=csv")
	handler.Export(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "timetable-batch-1.csv")
	assert.Contains(t, w.Body.String(), "day,start_time,end_time,subject,teacher,duration_minutes,status")
	assert.Contains(t, w.Body.String(), "Monday,09:00,10:30,physics,,90,scheduled")
}

func TestTimetableHandlerExportPDF(t *testing.T) {
	handler := newTimetableHandler(t, &timetableSessionsStub{sessions: timetableFixture()})

	c, w := timetableRequest(t, "/batches/batch-1/timetable/export?format=pdf")
	handler.Export(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.NotEmpty(t, w.Body.Bytes())
}

func TestTimetableHandlerExportUnknownFormat(t *testing.T) {
	handler := newTimetableHandler(t, &timetableSessionsStub{sessions: timetableFixture()})

	c, w := timetableRequest(t, "/batches/batch-1/timetable/export?format=xml")
	handler.Export(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}
