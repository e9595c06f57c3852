package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/escolaware/escola-api/internal/service"
	appErrors "github.com/escolaware/escola-api/pkg/errors"
	"github.com/escolaware/escola-api/pkg/response"
)

// JustificationHandler manages absence-justification endpoints.
type JustificationHandler struct {
	service *service.JustificationService
}

// NewJustificationHandler constructs handler.
func NewJustificationHandler(svc *service.JustificationService) *JustificationHandler {
	return &JustificationHandler{service: svc}
}

// Create submits a new justification.
func (h *JustificationHandler) Create(c *gin.Context) {
	var req service.CreateJustificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	justification, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, justification)
}

// Get loads one justification.
func (h *JustificationHandler) Get(c *gin.Context) {
	justification, err := h.service.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, justification, nil)
}

// Update edits a pending justification.
func (h *JustificationHandler) Update(c *gin.Context) {
	var req service.UpdateJustificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	justification, err := h.service.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, justification, nil)
}

// Delete removes a justification that was never approved.
func (h *JustificationHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ListPending lists pending justifications oldest-first, optionally scoped
// to one class.
func (h *JustificationHandler) ListPending(c *gin.Context) {
	justifications, err := h.service.ListPending(c.Request.Context(), c.Query("classId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, justifications, nil)
}

// Decide approves or rejects a pending justification.
func (h *JustificationHandler) Decide(c *gin.Context) {
	var req service.DecideJustificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	decidedBy := ""
	if claims := claimsFromContext(c); claims != nil {
		decidedBy = claims.UserID
	}

	justification, rewrite, err := h.service.Decide(c.Request.Context(), c.Param("id"), decidedBy, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	payload := gin.H{"justification": justification}
	if rewrite != nil {
		payload["rewrite"] = rewrite
	}
	response.JSON(c, http.StatusOK, payload, nil)
}

// RetryRewrite re-runs the retroactive rewrite of an approved justification.
func (h *JustificationHandler) RetryRewrite(c *gin.Context) {
	result, err := h.service.RetryRewrite(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
