package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/escolaware/escola-api/internal/models"
	"github.com/escolaware/escola-api/internal/service"
	appErrors "github.com/escolaware/escola-api/pkg/errors"
	"github.com/escolaware/escola-api/pkg/response"
)

// ReportHandler serves read-only attendance aggregates.
type ReportHandler struct {
	service *service.ReportService
}

// NewReportHandler constructs handler.
func NewReportHandler(svc *service.ReportService) *ReportHandler {
	return &ReportHandler{service: svc}
}

// StudentAttendance returns a student's attendance summary within the
// optional from/to window.
func (h *ReportHandler) StudentAttendance(c *gin.Context) {
	filter, err := parseAttendanceFilter(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	summary, err := h.service.StudentReport(c.Request.Context(), c.Param("id"), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}

// ClassAttendance returns per-student aggregates for a class within the
// optional from/to window.
func (h *ReportHandler) ClassAttendance(c *gin.Context) {
	filter, err := parseAttendanceFilter(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	report, err := h.service.ClassReport(c.Request.Context(), c.Param("id"), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}

func parseAttendanceFilter(c *gin.Context) (models.AttendanceFilter, error) {
	var filter models.AttendanceFilter
	if raw := c.Query("from"); raw != "" {
		from, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return filter, appErrors.Clone(appErrors.ErrValidation, "invalid from date, expected YYYY-MM-DD")
		}
		filter.DateFrom = &from
	}
	if raw := c.Query("to"); raw != "" {
		to, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return filter, appErrors.Clone(appErrors.ErrValidation, "invalid to date, expected YYYY-MM-DD")
		}
		filter.DateTo = &to
	}
	if filter.DateFrom != nil && filter.DateTo != nil && filter.DateTo.Before(*filter.DateFrom) {
		return filter, appErrors.Clone(appErrors.ErrValidation, "to date must not precede from date")
	}
	return filter, nil
}
