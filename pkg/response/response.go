package response

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/opentutor/tutor-ops-api/internal/models"
	appErrors "github.com/opentutor/tutor-ops-api/pkg/errors"
	"github.com/opentutor/tutor-ops-api/pkg/middleware/requestid"
)

// Envelope is the JSON body every API endpoint returns. Exactly one of Data
// or Error is set; Pagination accompanies list payloads.
type Envelope struct {
	Data       interface{}            `json:"data,omitempty"`
	Error      *appErrors.Error       `json:"error,omitempty"`
	Pagination *models.Pagination     `json:"pagination,omitempty"`
	Meta       map[string]interface{} `json:"meta,omitempty"`
}

// Timetables and session lists change under clients whenever the conflict
// resolver shifts a slot, so responses are never cacheable.
func writeEnvelope(c *gin.Context, status int, envelope Envelope) {
	c.Header("Cache-Control", "no-store")
	c.Header("Pragma", "no-cache")
	c.JSON(status, envelope)
}

// JSON sends a success envelope with optional pagination metadata.
func JSON(c *gin.Context, status int, data interface{}, pagination *models.Pagination, meta ...map[string]interface{}) {
	envelope := Envelope{Data: data, Pagination: pagination}
	if len(meta) > 0 && meta[0] != nil {
		envelope.Meta = meta[0]
	}
	writeEnvelope(c, status, envelope)
}

// Created responds with HTTP 201 Created.
func Created(c *gin.Context, data interface{}) {
	JSON(c, http.StatusCreated, data, nil)
}

// Error maps any error onto the envelope via the typed error catalogue. The
// request ID rides along in meta so a client report can be matched to logs.
func Error(c *gin.Context, err error) {
	appErr := appErrors.FromError(err)
	envelope := Envelope{Error: appErr}
	if reqID := requestid.Value(c); reqID != "" {
		envelope.Meta = map[string]interface{}{"request_id": reqID}
	}
	writeEnvelope(c, appErr.Status, envelope)
}

// NoContent sends a 204 response.
func NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// File streams a generated document as an attachment download.
func File(c *gin.Context, contentType, filename string, payload []byte) {
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))
	c.Data(http.StatusOK, contentType, payload)
}
