package service

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/escolaware/escola-api/internal/models"
	appErrors "github.com/escolaware/escola-api/pkg/errors"
)

type slotRepository interface {
	FindByID(ctx context.Context, id string) (*models.WeeklySlot, error)
	FindByClassAndSubject(ctx context.Context, classID, subjectID string) (*models.WeeklySlot, error)
	ExistsForClassSubject(ctx context.Context, classID, subjectID, excludeID string) (bool, error)
	ListDetailByTeacherAndWeekday(ctx context.Context, teacherID string, weekday models.Weekday) ([]models.WeeklySlotDetail, error)
	Create(ctx context.Context, slot *models.WeeklySlot) error
	Update(ctx context.Context, slot *models.WeeklySlot) error
	Delete(ctx context.Context, id string) error
}

type slotUsageCounter interface {
	CountBySlot(ctx context.Context, slotID string) (int, error)
}

// AllocateSlotRequest assigns a teacher to a class+subject weekly slot.
type AllocateSlotRequest struct {
	ClassID   string `json:"class_id" validate:"required"`
	SubjectID string `json:"subject_id" validate:"required"`
	TeacherID string `json:"teacher_id" validate:"required"`
	Weekday   string `json:"weekday" validate:"required,weekday"`
	StartTime string `json:"start_time" validate:"required"`
	EndTime   string `json:"end_time" validate:"required"`
}

// ReassignSlotRequest moves or retimes an existing slot.
type ReassignSlotRequest struct {
	TeacherID *string `json:"teacher_id"`
	Weekday   *string `json:"weekday" validate:"omitempty,weekday"`
	StartTime *string `json:"start_time"`
	EndTime   *string `json:"end_time"`
}

// SlotService manages the weekly teaching grid.
type SlotService struct {
	slots     slotRepository
	sessions  slotUsageCounter
	validator *validator.Validate
	logger    *zap.Logger
}

// NewSlotService instantiates SlotService.
func NewSlotService(slots slotRepository, sessions slotUsageCounter, validate *validator.Validate, logger *zap.Logger) *SlotService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &SlotService{slots: slots, sessions: sessions, validator: validate, logger: logger}
	svc.validator.RegisterValidation("weekday", func(fl validator.FieldLevel) bool {
		return models.Weekday(strings.ToUpper(fl.Field().String())).Valid()
	})
	return svc
}

// Allocate creates a weekly slot. A class holds at most one slot per subject,
// and the teacher must be free across all classes for the requested window.
func (s *SlotService) Allocate(ctx context.Context, req AllocateSlotRequest) (*models.WeeklySlot, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid slot payload")
	}
	window, err := parseWindow(req.StartTime, req.EndTime)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}

	taken, err := s.slots.ExistsForClassSubject(ctx, req.ClassID, req.SubjectID, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check class subject allocation")
	}
	if taken {
		return nil, appErrors.Clone(appErrors.ErrConflict, "class already has a slot for this subject")
	}

	slot := models.WeeklySlot{
		ClassID:   req.ClassID,
		SubjectID: req.SubjectID,
		TeacherID: req.TeacherID,
		Weekday:   models.Weekday(strings.ToUpper(req.Weekday)),
		StartMin:  window.StartMin,
		EndMin:    window.EndMin,
	}
	if err := s.ensureTeacherFree(ctx, &slot, ""); err != nil {
		return nil, err
	}

	if err := s.slots.Create(ctx, &slot); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create slot")
	}
	return &slot, nil
}

// Reassign updates teacher, weekday, or time of an existing slot. The teacher
// availability check runs against the effective post-update values with the
// slot itself excluded.
func (s *SlotService) Reassign(ctx context.Context, id string, req ReassignSlotRequest) (*models.WeeklySlot, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid slot payload")
	}

	slot, err := s.loadSlot(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.TeacherID != nil {
		slot.TeacherID = *req.TeacherID
	}
	if req.Weekday != nil {
		slot.Weekday = models.Weekday(strings.ToUpper(*req.Weekday))
	}
	if req.StartTime != nil {
		start, err := models.ParseClock(*req.StartTime)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
		}
		slot.StartMin = start
	}
	if req.EndTime != nil {
		end, err := models.ParseClock(*req.EndTime)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
		}
		slot.EndMin = end
	}
	if !slot.Range().Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "start time must be before end time")
	}

	if err := s.ensureTeacherFree(ctx, slot, slot.ID); err != nil {
		return nil, err
	}

	if err := s.slots.Update(ctx, slot); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update slot")
	}
	return slot, nil
}

// Deallocate removes a slot that has no sessions scheduled against it.
func (s *SlotService) Deallocate(ctx context.Context, id string) error {
	slot, err := s.loadSlot(ctx, id)
	if err != nil {
		return err
	}
	return s.deallocate(ctx, slot)
}

// DeallocateForClassSubject removes the slot allocated to a class+subject
// pair, subject to the same no-sessions rule.
func (s *SlotService) DeallocateForClassSubject(ctx context.Context, classID, subjectID string) error {
	slot, err := s.FindForClassSubject(ctx, classID, subjectID)
	if err != nil {
		return err
	}
	return s.deallocate(ctx, slot)
}

func (s *SlotService) deallocate(ctx context.Context, slot *models.WeeklySlot) error {
	count, err := s.sessions.CountBySlot(ctx, slot.ID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count slot sessions")
	}
	if count > 0 {
		return appErrors.Clone(appErrors.ErrInvalidState, fmt.Sprintf("slot has %d scheduled sessions and cannot be removed", count))
	}
	if err := s.slots.Delete(ctx, slot.ID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete slot")
	}
	return nil
}

// GetByID loads a slot.
func (s *SlotService) GetByID(ctx context.Context, id string) (*models.WeeklySlot, error) {
	return s.loadSlot(ctx, id)
}

// FindForClassSubject resolves the slot allocated to a class+subject pair.
func (s *SlotService) FindForClassSubject(ctx context.Context, classID, subjectID string) (*models.WeeklySlot, error) {
	slot, err := s.slots.FindByClassAndSubject(ctx, classID, subjectID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no slot allocated for class and subject")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load slot")
	}
	return slot, nil
}

// TeacherDay lists a teacher's slots on one weekday ordered by start time.
func (s *SlotService) TeacherDay(ctx context.Context, teacherID, weekday string) ([]models.WeeklySlotDetail, error) {
	day := models.Weekday(strings.ToUpper(weekday))
	if !day.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid weekday")
	}
	slots, err := s.slots.ListDetailByTeacherAndWeekday(ctx, teacherID, day)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list teacher slots")
	}
	if slots == nil {
		slots = []models.WeeklySlotDetail{}
	}
	return slots, nil
}

func (s *SlotService) ensureTeacherFree(ctx context.Context, slot *models.WeeklySlot, ignoreID string) error {
	existing, err := s.slots.ListDetailByTeacherAndWeekday(ctx, slot.TeacherID, slot.Weekday)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check teacher availability")
	}
	window := slot.Range()
	for i := range existing {
		item := &existing[i]
		if item.ID == ignoreID {
			continue
		}
		if window.Overlaps(item.Range()) {
			return s.wrapConflict(item)
		}
	}
	return nil
}

func (s *SlotService) wrapConflict(existing *models.WeeklySlotDetail) error {
	conflict := models.SlotConflict{
		SlotID:      existing.ID,
		ClassID:     existing.ClassID,
		ClassName:   existing.ClassName,
		SubjectID:   existing.SubjectID,
		SubjectName: existing.SubjectName,
		TeacherID:   existing.TeacherID,
		Weekday:     existing.Weekday,
		StartTime:   models.FormatClock(existing.StartMin),
		EndTime:     models.FormatClock(existing.EndMin),
	}
	subject := existing.SubjectID
	if existing.SubjectName != nil {
		subject = *existing.SubjectName
	}
	class := existing.ClassID
	if existing.ClassName != nil {
		class = *existing.ClassName
	}
	message := fmt.Sprintf("teacher already teaches %s to %s on %s from %s to %s", subject, class, existing.Weekday, conflict.StartTime, conflict.EndTime)
	domainErr := &models.SlotConflictError{Message: message, Conflict: conflict}
	return appErrors.Wrap(domainErr, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, fmt.Sprintf("slot conflict: %s", message))
}

func (s *SlotService) loadSlot(ctx context.Context, id string) (*models.WeeklySlot, error) {
	slot, err := s.slots.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "slot not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load slot")
	}
	return slot, nil
}
