package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/opentutor/tutor-ops-api/internal/models"
	"github.com/opentutor/tutor-ops-api/internal/service"
	appErrors "github.com/opentutor/tutor-ops-api/pkg/errors"
	"github.com/opentutor/tutor-ops-api/pkg/response"
)

type sessionService interface {
	Get(ctx context.Context, id string) (*models.Session, error)
	List(ctx context.Context, filter models.SessionFilter) ([]models.Session, *models.Pagination, error)
	Create(ctx context.Context, batchID string, req service.CreateSessionRequest) (*service.CreateSessionResult, error)
	CreateRecurring(ctx context.Context, batchID string, req service.CreateSessionRequest) (*service.RecurringCreateResult, error)
	Start(ctx context.Context, id string) (*service.StartSessionResult, error)
	End(ctx context.Context, id string) error
	Cancel(ctx context.Context, id string, req service.CancelSessionRequest) error
	CancelMany(ctx context.Context, req service.BulkCancelRequest) (int, error)
	Delete(ctx context.Context, id string) error
	DeleteMany(ctx context.Context, req service.BulkDeleteRequest) (int, error)
}

// SessionHandler manages session scheduling and lifecycle endpoints.
type SessionHandler struct {
	service sessionService
}

// NewSessionHandler constructs handler.
func NewSessionHandler(svc sessionService) *SessionHandler {
	return &SessionHandler{service: svc}
}

// Create godoc
// @Summary Schedule sessions for a batch
// @Description Creates one session, or one per generated date when a recurrence is supplied.
// @Tags Sessions
// @Accept json
// @Produce json
// @Param id path string true "Batch ID"
// @Param payload body service.CreateSessionRequest true "Session payload"
// @Success 201 {object} response.Envelope
// @Router /batches/{id}/sessions [post]
func (h *SessionHandler) Create(c *gin.Context) {
	var req service.CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	batchID := c.Param("id")
	if req.Recurrence != nil {
		result, err := h.service.CreateRecurring(c.Request.Context(), batchID, req)
		if err != nil {
			response.Error(c, err)
			return
		}
		response.Created(c, result)
		return
	}

	result, err := h.service.Create(c.Request.Context(), batchID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// List godoc
// @Summary List a batch's sessions
// @Tags Sessions
// @Produce json
// @Param id path string true "Batch ID"
// @Param status query string false "Filter by status"
// @Param dateFrom query string false "Earliest date (YYYY-MM-DD)"
// @Param dateTo query string false "Latest date (YYYY-MM-DD)"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /batches/{id}/sessions [get]
func (h *SessionHandler) List(c *gin.Context) {
	filter := models.SessionFilter{BatchID: c.Param("id")}
	filter.Status = c.Query("status")
	if raw := c.Query("dateFrom"); raw != "" {
		if date, err := time.Parse("2006-01-02", raw); err == nil {
			filter.DateFrom = &date
		}
	}
	if raw := c.Query("dateTo"); raw != "" {
		if date, err := time.Parse("2006-01-02", raw); err == nil {
			filter.DateTo = &date
		}
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if limit, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = limit
	}
	filter.SortOrder = c.Query("order")

	sessions, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sessions, pagination)
}

// Get godoc
// @Summary Fetch a session
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id} [get]
func (h *SessionHandler) Get(c *gin.Context) {
	session, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, session, nil)
}

// Start godoc
// @Summary Start a session
// @Description Provisions the meeting room and transitions the session to live.
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/start [post]
func (h *SessionHandler) Start(c *gin.Context) {
	result, err := h.service.Start(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// End godoc
// @Summary End a live session
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 204
// @Router /sessions/{id}/end [post]
func (h *SessionHandler) End(c *gin.Context) {
	if err := h.service.End(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Cancel godoc
// @Summary Cancel a scheduled session
// @Tags Sessions
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param payload body service.CancelSessionRequest true "Cancellation payload"
// @Success 204
// @Router /sessions/{id}/cancel [post]
func (h *SessionHandler) Cancel(c *gin.Context) {
	var req service.CancelSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if err := h.service.Cancel(c.Request.Context(), c.Param("id"), req); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// BulkCancel godoc
// @Summary Cancel multiple sessions
// @Description Cancels every still-scheduled session in the id set and reports the count.
// @Tags Sessions
// @Accept json
// @Produce json
// @Param payload body service.BulkCancelRequest true "Bulk cancel payload"
// @Success 200 {object} response.Envelope
// @Router /sessions/cancel [post]
func (h *SessionHandler) BulkCancel(c *gin.Context) {
	var req service.BulkCancelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	cancelled, err := h.service.CancelMany(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"cancelled_count": cancelled}, nil)
}

// Delete godoc
// @Summary Permanently delete a session
// @Description Live sessions are refused; end them first.
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 204
// @Router /sessions/{id} [delete]
func (h *SessionHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// BulkDelete godoc
// @Summary Permanently delete multiple sessions
// @Description Deletes every non-live session in the id set and reports the count.
// @Tags Sessions
// @Accept json
// @Produce json
// @Param payload body service.BulkDeleteRequest true "Bulk delete payload"
// @Success 200 {object} response.Envelope
// @Router /sessions/delete [post]
func (h *SessionHandler) BulkDelete(c *gin.Context) {
	var req service.BulkDeleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	deleted, err := h.service.DeleteMany(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"deleted_count": deleted}, nil)
}
