package service

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/escolaware/escola-api/internal/models"
	appErrors "github.com/escolaware/escola-api/pkg/errors"
)

type memoryCacheRepo struct {
	entries map[string][]byte
}

func newMemoryCacheRepo() *memoryCacheRepo {
	return &memoryCacheRepo{entries: make(map[string][]byte)}
}

func (m *memoryCacheRepo) Get(ctx context.Context, key string, dest interface{}) error {
	raw, ok := m.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *memoryCacheRepo) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.entries[key] = raw
	return nil
}

func (m *memoryCacheRepo) DeleteByPattern(ctx context.Context, pattern string) error {
	prefix := strings.TrimSuffix(pattern, "*")
	for key := range m.entries {
		if strings.HasPrefix(key, prefix) {
			delete(m.entries, key)
		}
	}
	return nil
}

type aggregatorStub struct {
	studentCalls int
	classCalls   int
	summary      models.AttendanceSummary
	rows         []models.ClassAttendanceRow
}

func (s *aggregatorStub) StudentSummary(ctx context.Context, studentID string, filter models.AttendanceFilter) (*models.AttendanceSummary, error) {
	s.studentCalls++
	copied := s.summary
	return &copied, nil
}

func (s *aggregatorStub) ClassSummary(ctx context.Context, classID string, filter models.AttendanceFilter) ([]models.ClassAttendanceRow, error) {
	s.classCalls++
	return s.rows, nil
}

func newCachedReportService(aggregator *aggregatorStub) (*ReportService, *memoryCacheRepo) {
	repo := newMemoryCacheRepo()
	cacheSvc := NewCacheService(repo, nil, time.Minute, zap.NewNop(), true)
	return NewReportService(aggregator, cacheSvc, time.Minute, zap.NewNop()), repo
}

func TestReportServiceStudentReportCaches(t *testing.T) {
	aggregator := &aggregatorStub{summary: models.AttendanceSummary{Present: 9, Absent: 1, Total: 10, Percent: 90}}
	svc, _ := newCachedReportService(aggregator)

	first, err := svc.StudentReport(context.Background(), "stu-1", models.AttendanceFilter{})
	require.NoError(t, err)
	second, err := svc.StudentReport(context.Background(), "stu-1", models.AttendanceFilter{})
	require.NoError(t, err)

	assert.Equal(t, first.Percent, second.Percent)
	assert.Equal(t, 1, aggregator.studentCalls, "second read must come from cache")
}

func TestReportServiceDistinctWindowsDistinctEntries(t *testing.T) {
	aggregator := &aggregatorStub{}
	svc, _ := newCachedReportService(aggregator)

	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	_, err := svc.StudentReport(context.Background(), "stu-1", models.AttendanceFilter{})
	require.NoError(t, err)
	_, err = svc.StudentReport(context.Background(), "stu-1", models.AttendanceFilter{DateFrom: &from})
	require.NoError(t, err)

	assert.Equal(t, 2, aggregator.studentCalls, "different date windows must not share entries")
}

func TestReportServiceAttendanceChangedEvicts(t *testing.T) {
	aggregator := &aggregatorStub{rows: []models.ClassAttendanceRow{{StudentID: "stu-1"}}}
	svc, _ := newCachedReportService(aggregator)

	_, err := svc.ClassReport(context.Background(), "class-1", models.AttendanceFilter{})
	require.NoError(t, err)
	_, err = svc.StudentReport(context.Background(), "stu-1", models.AttendanceFilter{})
	require.NoError(t, err)

	svc.AttendanceChanged(context.Background(), "class-1", "stu-1")

	_, err = svc.ClassReport(context.Background(), "class-1", models.AttendanceFilter{})
	require.NoError(t, err)
	_, err = svc.StudentReport(context.Background(), "stu-1", models.AttendanceFilter{})
	require.NoError(t, err)

	assert.Equal(t, 2, aggregator.classCalls)
	assert.Equal(t, 2, aggregator.studentCalls)
}

func TestReportServiceRewriteEvictsAllClasses(t *testing.T) {
	aggregator := &aggregatorStub{}
	svc, repo := newCachedReportService(aggregator)

	_, err := svc.ClassReport(context.Background(), "class-1", models.AttendanceFilter{})
	require.NoError(t, err)
	_, err = svc.ClassReport(context.Background(), "class-2", models.AttendanceFilter{})
	require.NoError(t, err)

	// Empty class scope mirrors the retroactive rewrite, where the touched
	// classes are unknown.
	svc.AttendanceChanged(context.Background(), "", "stu-1")
	assert.Empty(t, repo.entries)
}

func TestReportServiceCacheDisabledStillServes(t *testing.T) {
	aggregator := &aggregatorStub{summary: models.AttendanceSummary{Total: 4, Percent: 50}}
	cacheSvc := NewCacheService(nil, nil, time.Minute, zap.NewNop(), false)
	svc := NewReportService(aggregator, cacheSvc, time.Minute, zap.NewNop())

	for i := 0; i < 2; i++ {
		summary, err := svc.StudentReport(context.Background(), "stu-1", models.AttendanceFilter{})
		require.NoError(t, err)
		assert.InDelta(t, 50.0, summary.Percent, 0.001)
	}
	assert.Equal(t, 2, aggregator.studentCalls)
}
