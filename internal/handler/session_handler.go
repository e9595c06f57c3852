package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/escolaware/escola-api/internal/service"
	appErrors "github.com/escolaware/escola-api/pkg/errors"
	"github.com/escolaware/escola-api/pkg/response"
)

// SessionHandler manages class-session endpoints.
type SessionHandler struct {
	service *service.SessionService
}

// NewSessionHandler constructs handler.
func NewSessionHandler(svc *service.SessionService) *SessionHandler {
	return &SessionHandler{service: svc}
}

// Create schedules a session.
func (h *SessionHandler) Create(c *gin.Context) {
	var req service.CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	session, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, session)
}

// Reschedule applies a partial update to a session.
func (h *SessionHandler) Reschedule(c *gin.Context) {
	var req service.RescheduleSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	session, err := h.service.Reschedule(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, session, nil)
}

// Hold marks a session as held.
func (h *SessionHandler) Hold(c *gin.Context) {
	session, err := h.service.Hold(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, session, nil)
}

// MarkMakeup marks a cancelled session as made up.
func (h *SessionHandler) MarkMakeup(c *gin.Context) {
	session, err := h.service.MarkMakeup(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, session, nil)
}

// Cancel cancels a session with an optional reason.
func (h *SessionHandler) Cancel(c *gin.Context) {
	var req struct {
		Reason string `json:"reason"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
			return
		}
	}
	session, err := h.service.Cancel(c.Request.Context(), c.Param("id"), req.Reason)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, session, nil)
}

// Delete cancels the session; rows are never removed.
func (h *SessionHandler) Delete(c *gin.Context) {
	if _, err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ListByClass lists a class's sessions on one date.
func (h *SessionHandler) ListByClass(c *gin.Context) {
	date := c.Query("date")
	if date == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "date query parameter is required"))
		return
	}
	sessions, err := h.service.ListForClassOnDate(c.Request.Context(), c.Param("id"), date)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sessions, nil)
}
