package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/opentutor/tutor-ops-api/internal/models"
	"github.com/opentutor/tutor-ops-api/internal/service"
	appErrors "github.com/opentutor/tutor-ops-api/pkg/errors"
	"github.com/opentutor/tutor-ops-api/pkg/export"
	"github.com/opentutor/tutor-ops-api/pkg/response"
)

// TimetableHandler serves the weekly timetable projection and its exports.
type TimetableHandler struct {
	service *service.TimetableService
	csv     *export.CSVExporter
	pdf     *export.PDFExporter
}

// NewTimetableHandler constructs handler.
func NewTimetableHandler(svc *service.TimetableService) *TimetableHandler {
	return &TimetableHandler{
		service: svc,
		csv:     export.NewCSVExporter(),
		pdf:     export.NewPDFExporter(),
	}
}

// Weekly godoc
// @Summary Weekly timetable for a batch
// @Description Groups the batch's non-cancelled sessions by weekday, sorted by start time.
// @Tags Timetable
// @Produce json
// @Param id path string true "Batch ID"
// @Success 200 {object} response.Envelope
// @Router /batches/{id}/timetable [get]
func (h *TimetableHandler) Weekly(c *gin.Context) {
	timetable, err := h.service.Weekly(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, timetable, nil)
}

// Export godoc
// @Summary Export a batch's weekly timetable
// @Tags Timetable
// @Produce text/csv
// @Produce application/pdf
// @Param id path string true "Batch ID"
// @Param format query string false "csv or pdf" default(csv)
// @Success 200 {file} binary
// @Router /batches/{id}/timetable/export [get]
func (h *TimetableHandler) Export(c *gin.Context) {
	batchID := c.Param("id")
	timetable, err := h.service.Weekly(c.Request.Context(), batchID)
	if err != nil {
		response.Error(c, err)
		return
	}

	schedule := timetableSchedule(timetable)
	filename := fmt.Sprintf("timetable-%s", batchID)

	switch c.DefaultQuery("format", "csv") {
	case "csv":
		payload, err := h.csv.Render(schedule)
		if err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, http.StatusInternalServerError, "render csv"))
			return
		}
		response.File(c, "text/csv", filename+".csv", payload)
	case "pdf":
		payload, err := h.pdf.Render(schedule)
		if err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, http.StatusInternalServerError, "render pdf"))
			return
		}
		response.File(c, "application/pdf", filename+".pdf", payload)
	default:
		response.Error(c, appErrors.New(appErrors.ErrValidation.Code, http.StatusBadRequest, "format must be csv or pdf"))
	}
}

func timetableSchedule(timetable *models.WeeklyTimetable) export.Schedule {
	schedule := export.Schedule{BatchID: timetable.BatchID}
	for _, day := range timetable.Days {
		scheduleDay := export.ScheduleDay{Name: day.Day}
		for _, entry := range day.Entries {
			teacher := ""
			if entry.TeacherID != nil {
				teacher = *entry.TeacherID
			}
			scheduleDay.Entries = append(scheduleDay.Entries, export.ScheduleEntry{
				Start:           entry.StartTime,
				End:             entry.EndTime,
				Subject:         entry.Subject,
				Teacher:         teacher,
				DurationMinutes: entry.DurationMinutes,
				Status:          string(entry.Status),
			})
		}
		schedule.Days = append(schedule.Days, scheduleDay)
	}
	return schedule
}
