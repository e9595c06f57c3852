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

type justificationRepository interface {
	FindByID(ctx context.Context, id string) (*models.AbsenceJustification, error)
	Create(ctx context.Context, justification *models.AbsenceJustification) error
	Update(ctx context.Context, justification *models.AbsenceJustification) error
	Delete(ctx context.Context, id string) error
	ListPending(ctx context.Context, classID string) ([]models.AbsenceJustification, error)
}

type reclassifier interface {
	SelectReclassifyCandidates(ctx context.Context, studentID string, startDate, endDate time.Time) ([]models.ReclassifyCandidate, error)
	Reclassify(ctx context.Context, recordID, justificationID string) (bool, error)
}

// CreateJustificationRequest submits a new absence justification.
type CreateJustificationRequest struct {
	StudentID   string  `json:"student_id" validate:"required"`
	StartDate   string  `json:"start_date" validate:"required"`
	EndDate     string  `json:"end_date" validate:"required"`
	Reason      string  `json:"reason" validate:"required"`
	DocumentRef *string `json:"document_ref"`
}

// UpdateJustificationRequest edits a still-pending justification.
type UpdateJustificationRequest struct {
	Reason      *string `json:"reason"`
	DocumentRef *string `json:"document_ref"`
}

// DecideJustificationRequest resolves a pending justification.
type DecideJustificationRequest struct {
	Decision string `json:"decision" validate:"required,justification_decision"`
}

// JustificationService owns the absence-justification workflow, including
// the retroactive rewrite that approval triggers.
type JustificationService struct {
	justifications justificationRepository
	records        reclassifier
	invalidator    ReportInvalidator
	validator      *validator.Validate
	logger         *zap.Logger
}

// NewJustificationService instantiates JustificationService.
func NewJustificationService(justifications justificationRepository, records reclassifier, invalidator ReportInvalidator, validate *validator.Validate, logger *zap.Logger) *JustificationService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &JustificationService{
		justifications: justifications,
		records:        records,
		invalidator:    invalidator,
		validator:      validate,
		logger:         logger,
	}
	svc.validator.RegisterValidation("justification_decision", func(fl validator.FieldLevel) bool {
		switch models.JustificationStatus(strings.ToUpper(fl.Field().String())) {
		case models.JustificationStatusApproved, models.JustificationStatusRejected:
			return true
		default:
			return false
		}
	})
	return svc
}

// Create submits a new justification in PENDING state. The date range is
// closed on both ends and must not be inverted.
func (s *JustificationService) Create(ctx context.Context, req CreateJustificationRequest) (*models.AbsenceJustification, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid justification payload")
	}
	startDate, err := parseDate(req.StartDate)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid start_date format, expected YYYY-MM-DD")
	}
	endDate, err := parseDate(req.EndDate)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid end_date format, expected YYYY-MM-DD")
	}
	if endDate.Before(startDate) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "end_date must not precede start_date")
	}

	justification := models.AbsenceJustification{
		StudentID:   req.StudentID,
		StartDate:   startDate,
		EndDate:     endDate,
		Reason:      req.Reason,
		DocumentRef: req.DocumentRef,
		Status:      models.JustificationStatusPending,
	}
	if err := s.justifications.Create(ctx, &justification); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create justification")
	}
	return &justification, nil
}

// GetByID loads a justification.
func (s *JustificationService) GetByID(ctx context.Context, id string) (*models.AbsenceJustification, error) {
	return s.load(ctx, id)
}

// Update edits reason or document reference. Only pending justifications
// may change; decided ones are immutable.
func (s *JustificationService) Update(ctx context.Context, id string, req UpdateJustificationRequest) (*models.AbsenceJustification, error) {
	justification, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if justification.Status != models.JustificationStatusPending {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, fmt.Sprintf("justification already %s", strings.ToLower(string(justification.Status))))
	}
	if req.Reason != nil {
		if *req.Reason == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "reason must not be empty")
		}
		justification.Reason = *req.Reason
	}
	if req.DocumentRef != nil {
		justification.DocumentRef = req.DocumentRef
	}
	if err := s.justifications.Update(ctx, justification); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update justification")
	}
	return justification, nil
}

// Delete removes a justification that was never decided. Decided ones are
// kept: approvals anchor reclassified records and rejections document the
// refusal.
func (s *JustificationService) Delete(ctx context.Context, id string) error {
	justification, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if justification.Status != models.JustificationStatusPending {
		return appErrors.Clone(appErrors.ErrInvalidState, fmt.Sprintf("justification already %s", strings.ToLower(string(justification.Status))))
	}
	if err := s.justifications.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete justification")
	}
	return nil
}

// ListPending returns pending justifications oldest-first, optionally scoped
// to students actively enrolled in one class.
func (s *JustificationService) ListPending(ctx context.Context, classID string) ([]models.AbsenceJustification, error) {
	justifications, err := s.justifications.ListPending(ctx, classID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list pending justifications")
	}
	if justifications == nil {
		justifications = []models.AbsenceJustification{}
	}
	return justifications, nil
}

// Decide resolves a pending justification exactly once. The decision is
// committed first; on approval the retroactive rewrite then runs as a
// second phase, so a rewrite failure never undoes the decision and can be
// retried through RetryRewrite.
func (s *JustificationService) Decide(ctx context.Context, id, decidedBy string, req DecideJustificationRequest) (*models.AbsenceJustification, *models.RewriteResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid decision payload")
	}

	justification, err := s.load(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if justification.Status != models.JustificationStatusPending {
		return nil, nil, appErrors.Clone(appErrors.ErrInvalidState, fmt.Sprintf("justification already %s", strings.ToLower(string(justification.Status))))
	}

	decision := models.JustificationStatus(strings.ToUpper(req.Decision))
	now := time.Now().UTC()
	justification.Status = decision
	justification.DecidedBy = &decidedBy
	justification.DecidedAt = &now
	if err := s.justifications.Update(ctx, justification); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record decision")
	}

	if decision != models.JustificationStatusApproved {
		return justification, nil, nil
	}

	result, err := s.rewrite(ctx, justification)
	if err != nil {
		// The decision stands. Report the rewrite failure so the caller
		// can retry it without re-deciding.
		s.logger.Error("retroactive rewrite failed after approval",
			zap.String("justification_id", justification.ID),
			zap.Error(err))
		return justification, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "justification approved but retroactive rewrite failed; retry the rewrite")
	}
	return justification, result, nil
}

// RetryRewrite re-runs the retroactive rewrite of an approved justification.
// Records already reclassified are skipped by the status guard, so the pass
// is safe to repeat until the candidate set drains.
func (s *JustificationService) RetryRewrite(ctx context.Context, id string) (*models.RewriteResult, error) {
	justification, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if justification.Status != models.JustificationStatusApproved {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "rewrite applies only to approved justifications")
	}
	result, err := s.rewrite(ctx, justification)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "retroactive rewrite failed")
	}
	return result, nil
}

func (s *JustificationService) rewrite(ctx context.Context, justification *models.AbsenceJustification) (*models.RewriteResult, error) {
	candidates, err := s.records.SelectReclassifyCandidates(ctx, justification.StudentID, justification.StartDate, justification.EndDate)
	if err != nil {
		return nil, err
	}
	result := models.RewriteResult{JustificationID: justification.ID, Candidates: len(candidates)}
	for _, candidate := range candidates {
		changed, err := s.records.Reclassify(ctx, candidate.RecordID, justification.ID)
		if err != nil {
			return nil, err
		}
		if changed {
			result.Reclassified++
		}
	}
	s.logger.Info("retroactive rewrite applied",
		zap.String("justification_id", justification.ID),
		zap.String("student_id", justification.StudentID),
		zap.Int("candidates", result.Candidates),
		zap.Int("reclassified", result.Reclassified))
	if result.Reclassified > 0 && s.invalidator != nil {
		s.invalidator.AttendanceChanged(ctx, "", justification.StudentID)
	}
	return &result, nil
}

func (s *JustificationService) load(ctx context.Context, id string) (*models.AbsenceJustification, error) {
	justification, err := s.justifications.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "justification not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load justification")
	}
	return justification, nil
}
