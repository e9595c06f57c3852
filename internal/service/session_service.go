package service

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/escolaware/escola-api/internal/models"
	appErrors "github.com/escolaware/escola-api/pkg/errors"
)

type sessionRepository interface {
	FindByID(ctx context.Context, id string) (*models.ClassSession, error)
	ListActiveByClassAndDate(ctx context.Context, classID string, date time.Time) ([]models.ClassSession, error)
	ListForClassOnDate(ctx context.Context, classID string, date time.Time) ([]models.SessionListItem, error)
	Create(ctx context.Context, session *models.ClassSession) error
	Update(ctx context.Context, session *models.ClassSession) error
}

type slotReader interface {
	FindByID(ctx context.Context, id string) (*models.WeeklySlot, error)
}

// ReportInvalidator receives write notifications that affect cached report
// aggregates. Mutating services publish through it and never build cache
// keys themselves.
type ReportInvalidator interface {
	AttendanceChanged(ctx context.Context, classID string, studentIDs ...string)
	SessionChanged(ctx context.Context, classID, sessionID string)
}

// CreateSessionRequest describes payload for scheduling a session.
type CreateSessionRequest struct {
	ClassID      string  `json:"class_id" validate:"required"`
	WeeklySlotID string  `json:"weekly_slot_id" validate:"required"`
	Date         string  `json:"date" validate:"required"`
	StartTime    string  `json:"start_time" validate:"required"`
	EndTime      string  `json:"end_time" validate:"required"`
	Content      *string `json:"content"`
}

// RescheduleSessionRequest merges partial updates onto a session.
type RescheduleSessionRequest struct {
	Date      *string `json:"date"`
	StartTime *string `json:"start_time"`
	EndTime   *string `json:"end_time"`
	Content   *string `json:"content"`
	Status    *string `json:"status" validate:"omitempty,session_status"`
}

// SessionService coordinates the class-session lifecycle.
type SessionService struct {
	sessions    sessionRepository
	slots       slotReader
	invalidator ReportInvalidator
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewSessionService instantiates SessionService.
func NewSessionService(sessions sessionRepository, slots slotReader, invalidator ReportInvalidator, validate *validator.Validate, logger *zap.Logger) *SessionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &SessionService{sessions: sessions, slots: slots, invalidator: invalidator, validator: validate, logger: logger}
	svc.validator.RegisterValidation("session_status", func(fl validator.FieldLevel) bool {
		return models.SessionStatus(strings.ToUpper(fl.Field().String())).Valid()
	})
	return svc
}

// Create schedules a new session after checking the class for overlapping
// non-cancelled sessions on the same date.
func (s *SessionService) Create(ctx context.Context, req CreateSessionRequest) (*models.ClassSession, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid session payload")
	}
	date, err := parseDate(req.Date)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid date format, expected YYYY-MM-DD")
	}
	window, err := parseWindow(req.StartTime, req.EndTime)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}

	if _, err := s.slots.FindByID(ctx, req.WeeklySlotID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "weekly slot not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load weekly slot")
	}

	session := models.ClassSession{
		ClassID:      req.ClassID,
		WeeklySlotID: req.WeeklySlotID,
		Date:         date,
		StartMin:     window.StartMin,
		EndMin:       window.EndMin,
		Content:      req.Content,
		Status:       models.SessionStatusPlanned,
	}

	if err := s.ensureNoOverlap(ctx, &session, ""); err != nil {
		return nil, err
	}

	if err := s.sessions.Create(ctx, &session); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create session")
	}
	s.notify(ctx, session.ClassID, session.ID)
	return &session, nil
}

// Reschedule merges supplied fields onto an existing session, re-running the
// overlap check only when date or time fields change.
func (s *SessionService) Reschedule(ctx context.Context, id string, req RescheduleSessionRequest) (*models.ClassSession, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid reschedule payload")
	}

	session, err := s.loadSession(ctx, id)
	if err != nil {
		return nil, err
	}

	timingChanged := false
	if req.Date != nil {
		date, err := parseDate(*req.Date)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "invalid date format, expected YYYY-MM-DD")
		}
		if !date.Equal(session.Date) {
			session.Date = date
			timingChanged = true
		}
	}
	if req.StartTime != nil {
		start, err := models.ParseClock(*req.StartTime)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
		}
		if start != session.StartMin {
			session.StartMin = start
			timingChanged = true
		}
	}
	if req.EndTime != nil {
		end, err := models.ParseClock(*req.EndTime)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
		}
		if end != session.EndMin {
			session.EndMin = end
			timingChanged = true
		}
	}
	if !session.Range().Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "start time must be before end time")
	}
	if req.Content != nil {
		session.Content = req.Content
	}
	if req.Status != nil {
		next := models.SessionStatus(strings.ToUpper(*req.Status))
		if next != session.Status {
			if !session.Status.CanTransitionTo(next) {
				return nil, appErrors.Clone(appErrors.ErrInvalidState, fmt.Sprintf("cannot transition session from %s to %s", session.Status, next))
			}
			session.Status = next
		}
	}

	if timingChanged {
		if err := s.ensureNoOverlap(ctx, session, session.ID); err != nil {
			return nil, err
		}
	}

	if err := s.sessions.Update(ctx, session); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update session")
	}
	s.notify(ctx, session.ClassID, session.ID)
	return session, nil
}

// Hold marks a planned session as held.
func (s *SessionService) Hold(ctx context.Context, id string) (*models.ClassSession, error) {
	return s.transition(ctx, id, models.SessionStatusHeld)
}

// MarkMakeup flags a cancelled session as the makeup of a later occurrence.
func (s *SessionService) MarkMakeup(ctx context.Context, id string) (*models.ClassSession, error) {
	return s.transition(ctx, id, models.SessionStatusMakeup)
}

// Cancel cancels a session and stamps the content note with the reason.
// Sessions are never hard-deleted; Delete delegates here.
func (s *SessionService) Cancel(ctx context.Context, id, reason string) (*models.ClassSession, error) {
	session, err := s.loadSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if session.Status == models.SessionStatusCancelled {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "session already cancelled")
	}
	if !session.Status.CanTransitionTo(models.SessionStatusCancelled) {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, fmt.Sprintf("cannot cancel session in status %s", session.Status))
	}
	session.Status = models.SessionStatusCancelled
	if reason != "" {
		stamp := fmt.Sprintf("cancelled: %s", reason)
		if session.Content != nil && *session.Content != "" {
			stamp = fmt.Sprintf("%s\n%s", *session.Content, stamp)
		}
		session.Content = &stamp
	}
	if err := s.sessions.Update(ctx, session); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel session")
	}
	s.notify(ctx, session.ClassID, session.ID)
	return session, nil
}

// Delete is cancellation with a fixed reason; the row is retained.
func (s *SessionService) Delete(ctx context.Context, id string) (*models.ClassSession, error) {
	return s.Cancel(ctx, id, "removed from schedule")
}

// ListForClassOnDate returns non-cancelled sessions ordered by start time,
// each carrying its aggregate attendance-presence flag.
func (s *SessionService) ListForClassOnDate(ctx context.Context, classID, rawDate string) ([]models.SessionListItem, error) {
	date, err := parseDate(rawDate)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid date format, expected YYYY-MM-DD")
	}
	items, err := s.sessions.ListForClassOnDate(ctx, classID, date)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list sessions")
	}
	return items, nil
}

func (s *SessionService) transition(ctx context.Context, id string, next models.SessionStatus) (*models.ClassSession, error) {
	session, err := s.loadSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if !session.Status.CanTransitionTo(next) {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, fmt.Sprintf("cannot transition session from %s to %s", session.Status, next))
	}
	session.Status = next
	if err := s.sessions.Update(ctx, session); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update session")
	}
	s.notify(ctx, session.ClassID, session.ID)
	return session, nil
}

func (s *SessionService) loadSession(ctx context.Context, id string) (*models.ClassSession, error) {
	session, err := s.sessions.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}
	return session, nil
}

func (s *SessionService) ensureNoOverlap(ctx context.Context, session *models.ClassSession, ignoreID string) error {
	existing, err := s.sessions.ListActiveByClassAndDate(ctx, session.ClassID, session.Date)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check session conflicts")
	}
	window := session.Range()
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

func (s *SessionService) wrapConflict(existing *models.ClassSession) error {
	conflict := models.SessionConflict{
		SessionID: existing.ID,
		ClassID:   existing.ClassID,
		Date:      existing.Date.Format("2006-01-02"),
		StartTime: models.FormatClock(existing.StartMin),
		EndTime:   models.FormatClock(existing.EndMin),
		Status:    existing.Status,
	}
	message := fmt.Sprintf("conflicts with session %s on %s from %s to %s", existing.ID, conflict.Date, conflict.StartTime, conflict.EndTime)
	domainErr := &models.SessionConflictError{Message: message, Conflict: conflict}
	return appErrors.Wrap(domainErr, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, fmt.Sprintf("session conflict: %s", message))
}

func (s *SessionService) notify(ctx context.Context, classID, sessionID string) {
	if s.invalidator == nil {
		return
	}
	s.invalidator.SessionChanged(ctx, classID, sessionID)
}

func parseDate(raw string) (time.Time, error) {
	return time.Parse("2006-01-02", raw)
}

func parseWindow(startRaw, endRaw string) (models.TimeRange, error) {
	start, err := models.ParseClock(startRaw)
	if err != nil {
		return models.TimeRange{}, err
	}
	end, err := models.ParseClock(endRaw)
	if err != nil {
		return models.TimeRange{}, err
	}
	window := models.TimeRange{StartMin: start, EndMin: end}
	if !window.Valid() {
		return models.TimeRange{}, fmt.Errorf("start time must be before end time")
	}
	return window, nil
}
