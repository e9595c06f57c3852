package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/escolaware/escola-api/internal/models"
)

type attendanceAggregator interface {
	StudentSummary(ctx context.Context, studentID string, filter models.AttendanceFilter) (*models.AttendanceSummary, error)
	ClassSummary(ctx context.Context, classID string, filter models.AttendanceFilter) ([]models.ClassAttendanceRow, error)
}

// ReportService serves attendance aggregates through a read-through cache.
// It also implements ReportInvalidator so that writes flowing through the
// scheduling and recording services evict what they made stale.
type ReportService struct {
	aggregator attendanceAggregator
	cache      *CacheService
	ttl        time.Duration
	logger     *zap.Logger
}

// NewReportService instantiates ReportService.
func NewReportService(aggregator attendanceAggregator, cache *CacheService, ttl time.Duration, logger *zap.Logger) *ReportService {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportService{aggregator: aggregator, cache: cache, ttl: ttl, logger: logger}
}

// StudentReport returns a student's attendance summary, cached per student
// and date window.
func (s *ReportService) StudentReport(ctx context.Context, studentID string, filter models.AttendanceFilter) (*models.AttendanceSummary, error) {
	key := fmt.Sprintf("reports:student:%s:%s", studentID, filterKey(filter))
	var cached models.AttendanceSummary
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return &cached, nil
	}

	summary, err := s.aggregator.StudentSummary(ctx, studentID, filter)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, key, summary, s.ttl); err != nil {
		s.logger.Warn("failed to cache student report", zap.String("student_id", studentID), zap.Error(err))
	}
	return summary, nil
}

// ClassReport returns per-student attendance aggregates for a class, cached
// per class and date window.
func (s *ReportService) ClassReport(ctx context.Context, classID string, filter models.AttendanceFilter) ([]models.ClassAttendanceRow, error) {
	key := fmt.Sprintf("reports:class:%s:%s", classID, filterKey(filter))
	var cached []models.ClassAttendanceRow
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return cached, nil
	}

	report, err := s.aggregator.ClassSummary(ctx, classID, filter)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, key, report, s.ttl); err != nil {
		s.logger.Warn("failed to cache class report", zap.String("class_id", classID), zap.Error(err))
	}
	return report, nil
}

// AttendanceChanged evicts report entries affected by new or reclassified
// marks. An empty classID widens the class eviction to every class, which
// covers the retroactive rewrite where the touched classes are unknown.
func (s *ReportService) AttendanceChanged(ctx context.Context, classID string, studentIDs ...string) {
	classPattern := "reports:class:*"
	if classID != "" {
		classPattern = fmt.Sprintf("reports:class:%s:*", classID)
	}
	if err := s.cache.Invalidate(ctx, classPattern); err != nil {
		s.logger.Warn("failed to invalidate class reports", zap.String("pattern", classPattern), zap.Error(err))
	}
	for _, studentID := range studentIDs {
		pattern := fmt.Sprintf("reports:student:%s:*", studentID)
		if err := s.cache.Invalidate(ctx, pattern); err != nil {
			s.logger.Warn("failed to invalidate student reports", zap.String("pattern", pattern), zap.Error(err))
		}
	}
}

// SessionChanged evicts class-level report entries after a session lifecycle
// change.
func (s *ReportService) SessionChanged(ctx context.Context, classID, sessionID string) {
	pattern := fmt.Sprintf("reports:class:%s:*", classID)
	if err := s.cache.Invalidate(ctx, pattern); err != nil {
		s.logger.Warn("failed to invalidate class reports",
			zap.String("pattern", pattern),
			zap.String("session_id", sessionID),
			zap.Error(err))
	}
}

func filterKey(filter models.AttendanceFilter) string {
	from, to := "all", "all"
	if filter.DateFrom != nil {
		from = filter.DateFrom.Format("2006-01-02")
	}
	if filter.DateTo != nil {
		to = filter.DateTo.Format("2006-01-02")
	}
	return from + ":" + to
}
