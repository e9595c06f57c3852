package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/escolaware/escola-api/internal/service"
	appErrors "github.com/escolaware/escola-api/pkg/errors"
	"github.com/escolaware/escola-api/pkg/response"
)

// AttendanceHandler manages attendance-recording endpoints.
type AttendanceHandler struct {
	service *service.AttendanceService
}

// NewAttendanceHandler constructs handler.
func NewAttendanceHandler(svc *service.AttendanceService) *AttendanceHandler {
	return &AttendanceHandler{service: svc}
}

// Record applies a bulk attendance submission for the session in the path.
func (h *AttendanceHandler) Record(c *gin.Context) {
	var req service.RecordAttendanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	req.SessionID = c.Param("id")

	recordedBy := ""
	if claims := claimsFromContext(c); claims != nil {
		recordedBy = claims.UserID
	}

	records, err := h.service.Record(c.Request.Context(), recordedBy, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, nil)
}

// SessionAttendance returns the session roster with marks and counts.
func (h *AttendanceHandler) SessionAttendance(c *gin.Context) {
	view, err := h.service.SessionAttendance(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view, nil)
}
