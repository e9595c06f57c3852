package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/escolaware/escola-api/internal/service"
	appErrors "github.com/escolaware/escola-api/pkg/errors"
	"github.com/escolaware/escola-api/pkg/response"
)

// SlotHandler manages weekly-slot endpoints.
type SlotHandler struct {
	service *service.SlotService
}

// NewSlotHandler constructs handler.
func NewSlotHandler(svc *service.SlotService) *SlotHandler {
	return &SlotHandler{service: svc}
}

// Allocate creates a weekly slot.
func (h *SlotHandler) Allocate(c *gin.Context) {
	var req service.AllocateSlotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	slot, err := h.service.Allocate(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, slot)
}

// Reassign updates teacher, weekday, or time of a slot.
func (h *SlotHandler) Reassign(c *gin.Context) {
	var req service.ReassignSlotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	slot, err := h.service.Reassign(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, slot, nil)
}

// Deallocate removes an unused slot.
func (h *SlotHandler) Deallocate(c *gin.Context) {
	if err := h.service.Deallocate(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Get loads one slot.
func (h *SlotHandler) Get(c *gin.Context) {
	slot, err := h.service.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, slot, nil)
}

// DeallocateForClassSubject removes the slot allocated to a class+subject pair.
func (h *SlotHandler) DeallocateForClassSubject(c *gin.Context) {
	if err := h.service.DeallocateForClassSubject(c.Request.Context(), c.Param("id"), c.Param("subjectId")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// GetForClassSubject resolves the slot allocated to a class+subject pair.
func (h *SlotHandler) GetForClassSubject(c *gin.Context) {
	slot, err := h.service.FindForClassSubject(c.Request.Context(), c.Param("id"), c.Param("subjectId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, slot, nil)
}

// ListByTeacher lists a teacher's slots on one weekday.
func (h *SlotHandler) ListByTeacher(c *gin.Context) {
	weekday := c.Query("weekday")
	if weekday == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "weekday query parameter is required"))
		return
	}
	slots, err := h.service.TeacherDay(c.Request.Context(), c.Param("id"), weekday)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, slots, nil)
}
