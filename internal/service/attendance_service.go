package service

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/escolaware/escola-api/internal/models"
	appErrors "github.com/escolaware/escola-api/pkg/errors"
)

type attendanceRepository interface {
	Upsert(ctx context.Context, record *models.AttendanceRecord) (*models.AttendanceRecord, error)
	SessionRoster(ctx context.Context, sessionID, classID string) ([]models.SessionRosterEntry, error)
	StudentStatusCounts(ctx context.Context, studentID string, filter models.AttendanceFilter) ([]models.AttendanceStatusCount, error)
	ClassStatusCounts(ctx context.Context, classID string, filter models.AttendanceFilter) ([]models.ClassStatusCount, error)
}

type sessionReader interface {
	FindByID(ctx context.Context, id string) (*models.ClassSession, error)
}

type rosterReader interface {
	ListActiveRoster(ctx context.Context, classID string) ([]models.RosterMember, error)
}

// AttendanceMark is one student's mark inside a bulk recording request.
type AttendanceMark struct {
	StudentID string  `json:"student_id" validate:"required"`
	Status    string  `json:"status" validate:"required,attendance_status"`
	Notes     *string `json:"notes"`
}

// RecordAttendanceRequest carries a bulk attendance submission for a session.
type RecordAttendanceRequest struct {
	SessionID string           `json:"session_id" validate:"required"`
	Marks     []AttendanceMark `json:"marks" validate:"required,min=1,dive"`
}

// AttendanceService records marks and computes attendance aggregates.
type AttendanceService struct {
	records       attendanceRepository
	sessions      sessionReader
	enrollments   rosterReader
	invalidator   ReportInvalidator
	riskThreshold float64
	validator     *validator.Validate
	logger        *zap.Logger
}

// NewAttendanceService instantiates AttendanceService. riskThreshold is the
// attendance percentage below which a student is flagged at risk.
func NewAttendanceService(records attendanceRepository, sessions sessionReader, enrollments rosterReader, invalidator ReportInvalidator, riskThreshold float64, validate *validator.Validate, logger *zap.Logger) *AttendanceService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if riskThreshold <= 0 || riskThreshold > 100 {
		riskThreshold = 75
	}
	svc := &AttendanceService{
		records:       records,
		sessions:      sessions,
		enrollments:   enrollments,
		invalidator:   invalidator,
		riskThreshold: riskThreshold,
		validator:     validate,
		logger:        logger,
	}
	svc.validator.RegisterValidation("attendance_status", func(fl validator.FieldLevel) bool {
		return models.AttendanceStatus(strings.ToUpper(fl.Field().String())).Valid()
	})
	return svc
}

// SetInvalidator attaches the report invalidator after construction. The
// report service aggregates through this service, so the two cannot be
// built in one pass.
func (s *AttendanceService) SetInvalidator(invalidator ReportInvalidator) {
	s.invalidator = invalidator
}

// Record applies a bulk attendance submission. The whole batch is validated
// against the session's active roster before any write happens; a single
// off-roster or duplicated student rejects the entire request. Replaying the
// same batch converges on the same rows.
func (s *AttendanceService) Record(ctx context.Context, recordedBy string, req RecordAttendanceRequest) ([]models.AttendanceRecord, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid attendance payload")
	}

	session, err := s.sessions.FindByID(ctx, req.SessionID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}
	if session.Status == models.SessionStatusCancelled {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "cannot record attendance for a cancelled session")
	}

	roster, err := s.enrollments.ListActiveRoster(ctx, session.ClassID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class roster")
	}
	onRoster := make(map[string]bool, len(roster))
	for _, member := range roster {
		onRoster[member.StudentID] = true
	}

	seen := make(map[string]bool, len(req.Marks))
	var offRoster, duplicated []string
	for _, mark := range req.Marks {
		if seen[mark.StudentID] {
			duplicated = append(duplicated, mark.StudentID)
			continue
		}
		seen[mark.StudentID] = true
		if !onRoster[mark.StudentID] {
			offRoster = append(offRoster, mark.StudentID)
		}
	}
	if len(duplicated) > 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("duplicate student marks in batch: %s", strings.Join(duplicated, ", ")))
	}
	if len(offRoster) > 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("students not on active class roster: %s", strings.Join(offRoster, ", ")))
	}

	stored := make([]models.AttendanceRecord, 0, len(req.Marks))
	studentIDs := make([]string, 0, len(req.Marks))
	for _, mark := range req.Marks {
		record := models.AttendanceRecord{
			SessionID:  req.SessionID,
			StudentID:  mark.StudentID,
			Status:     models.AttendanceStatus(strings.ToUpper(mark.Status)),
			Notes:      mark.Notes,
			RecordedBy: recordedBy,
		}
		result, err := s.records.Upsert(ctx, &record)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store attendance record")
		}
		stored = append(stored, *result)
		studentIDs = append(studentIDs, mark.StudentID)
	}

	s.logger.Info("attendance recorded",
		zap.String("session_id", req.SessionID),
		zap.String("class_id", session.ClassID),
		zap.Int("marks", len(stored)))
	if s.invalidator != nil {
		s.invalidator.AttendanceChanged(ctx, session.ClassID, studentIDs...)
	}
	return stored, nil
}

// SessionAttendance returns the session's full roster with marks and counts.
// Unrecorded students appear with a nil status.
func (s *AttendanceService) SessionAttendance(ctx context.Context, sessionID string) (*models.SessionAttendanceView, error) {
	session, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}

	entries, err := s.records.SessionRoster(ctx, sessionID, session.ClassID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session roster")
	}

	view := models.SessionAttendanceView{SessionID: sessionID, Entries: entries}
	view.Counts.Total = len(entries)
	for _, entry := range entries {
		if entry.Status == nil {
			view.Counts.Unrecorded++
			continue
		}
		switch *entry.Status {
		case models.AttendanceStatusPresent:
			view.Counts.Present++
		case models.AttendanceStatusAbsent:
			view.Counts.Absent++
		case models.AttendanceStatusJustified:
			view.Counts.Justified++
		}
	}
	return &view, nil
}

// StudentSummary aggregates a student's marks inside the optional date window.
// Percent is PRESENT over all recorded marks; JUSTIFIED clears the absence on
// the record but does not count as presence.
func (s *AttendanceService) StudentSummary(ctx context.Context, studentID string, filter models.AttendanceFilter) (*models.AttendanceSummary, error) {
	rows, err := s.records.StudentStatusCounts(ctx, studentID, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to aggregate attendance")
	}
	summary := s.summarize(rows)
	return &summary, nil
}

// ClassSummary aggregates marks per student across a class inside the
// optional date window, ordered by student name.
func (s *AttendanceService) ClassSummary(ctx context.Context, classID string, filter models.AttendanceFilter) ([]models.ClassAttendanceRow, error) {
	rows, err := s.records.ClassStatusCounts(ctx, classID, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to aggregate class attendance")
	}

	var report []models.ClassAttendanceRow
	index := make(map[string]int)
	for _, row := range rows {
		pos, ok := index[row.StudentID]
		if !ok {
			report = append(report, models.ClassAttendanceRow{StudentID: row.StudentID, StudentName: row.StudentName})
			pos = len(report) - 1
			index[row.StudentID] = pos
		}
		applyCount(&report[pos].AttendanceSummary, row.Status, row.Count)
	}
	for i := range report {
		finalize(&report[i].AttendanceSummary, s.riskThreshold)
	}
	if report == nil {
		report = []models.ClassAttendanceRow{}
	}
	return report, nil
}

// RiskThreshold exposes the configured at-risk cutoff.
func (s *AttendanceService) RiskThreshold() float64 {
	return s.riskThreshold
}

func (s *AttendanceService) summarize(rows []models.AttendanceStatusCount) models.AttendanceSummary {
	var summary models.AttendanceSummary
	for _, row := range rows {
		applyCount(&summary, row.Status, row.Count)
	}
	finalize(&summary, s.riskThreshold)
	return summary
}

func applyCount(summary *models.AttendanceSummary, status models.AttendanceStatus, count int) {
	switch status {
	case models.AttendanceStatusPresent:
		summary.Present += count
	case models.AttendanceStatusAbsent:
		summary.Absent += count
	case models.AttendanceStatusJustified:
		summary.Justified += count
	}
	summary.Total += count
}

func finalize(summary *models.AttendanceSummary, threshold float64) {
	if summary.Total == 0 {
		summary.Percent = 0
		summary.AtRisk = false
		return
	}
	summary.Percent = round2(float64(summary.Present) / float64(summary.Total) * 100)
	summary.AtRisk = summary.Percent < threshold
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
