package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/escolaware/escola-api/internal/models"
	appErrors "github.com/escolaware/escola-api/pkg/errors"
)

type attendanceRepoStub struct {
	stored        map[string]models.AttendanceRecord
	upserts       int
	roster        []models.SessionRosterEntry
	studentCounts []models.AttendanceStatusCount
	classCounts   []models.ClassStatusCount
	candidates    []models.ReclassifyCandidate
	reclassified  map[string]string
	upsertErr     error
	reclassifyErr error
}

func newAttendanceRepoStub() *attendanceRepoStub {
	return &attendanceRepoStub{
		stored:       make(map[string]models.AttendanceRecord),
		reclassified: make(map[string]string),
	}
}

func (s *attendanceRepoStub) Upsert(ctx context.Context, record *models.AttendanceRecord) (*models.AttendanceRecord, error) {
	if s.upsertErr != nil {
		return nil, s.upsertErr
	}
	s.upserts++
	key := record.SessionID + "/" + record.StudentID
	existing, ok := s.stored[key]
	if ok {
		existing.Status = record.Status
		existing.Notes = record.Notes
		existing.RecordedBy = record.RecordedBy
	} else {
		existing = *record
		existing.ID = key
	}
	s.stored[key] = existing
	return &existing, nil
}

func (s *attendanceRepoStub) SessionRoster(ctx context.Context, sessionID, classID string) ([]models.SessionRosterEntry, error) {
	return s.roster, nil
}

func (s *attendanceRepoStub) StudentStatusCounts(ctx context.Context, studentID string, filter models.AttendanceFilter) ([]models.AttendanceStatusCount, error) {
	return s.studentCounts, nil
}

func (s *attendanceRepoStub) ClassStatusCounts(ctx context.Context, classID string, filter models.AttendanceFilter) ([]models.ClassStatusCount, error) {
	return s.classCounts, nil
}

func (s *attendanceRepoStub) SelectReclassifyCandidates(ctx context.Context, studentID string, startDate, endDate time.Time) ([]models.ReclassifyCandidate, error) {
	return s.candidates, nil
}

func (s *attendanceRepoStub) Reclassify(ctx context.Context, recordID, justificationID string) (bool, error) {
	if s.reclassifyErr != nil {
		return false, s.reclassifyErr
	}
	if _, done := s.reclassified[recordID]; done {
		return false, nil
	}
	s.reclassified[recordID] = justificationID
	return true, nil
}

type sessionFinderStub struct {
	session *models.ClassSession
}

func (s sessionFinderStub) FindByID(ctx context.Context, id string) (*models.ClassSession, error) {
	if s.session == nil {
		return nil, sql.ErrNoRows
	}
	copied := *s.session
	return &copied, nil
}

type rosterStub struct {
	members []models.RosterMember
}

func (s rosterStub) ListActiveRoster(ctx context.Context, classID string) ([]models.RosterMember, error) {
	return s.members, nil
}

func plannedSession() *models.ClassSession {
	return &models.ClassSession{
		ID:      "ses-1",
		ClassID: "class-1",
		Date:    time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
		Status:  models.SessionStatusPlanned,
	}
}

func classRoster() rosterStub {
	return rosterStub{members: []models.RosterMember{
		{StudentID: "stu-1", StudentName: "Ana"},
		{StudentID: "stu-2", StudentName: "Bruno"},
	}}
}

func TestAttendanceServiceRecord(t *testing.T) {
	repo := newAttendanceRepoStub()
	invalidator := &invalidatorStub{}
	svc := NewAttendanceService(repo, sessionFinderStub{session: plannedSession()}, classRoster(), invalidator, 75, nil, zap.NewNop())

	records, err := svc.Record(context.Background(), "user-1", RecordAttendanceRequest{
		SessionID: "ses-1",
		Marks: []AttendanceMark{
			{StudentID: "stu-1", Status: "PRESENT"},
			{StudentID: "stu-2", Status: "ABSENT"},
		},
	})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, models.AttendanceStatusPresent, records[0].Status)
	assert.Equal(t, "user-1", records[0].RecordedBy)
	assert.Equal(t, 1, invalidator.attendanceCalls)
	assert.Contains(t, invalidator.classIDs, "class-1")
}

func TestAttendanceServiceRecordIdempotent(t *testing.T) {
	repo := newAttendanceRepoStub()
	svc := NewAttendanceService(repo, sessionFinderStub{session: plannedSession()}, classRoster(), nil, 75, nil, zap.NewNop())

	req := RecordAttendanceRequest{
		SessionID: "ses-1",
		Marks:     []AttendanceMark{{StudentID: "stu-1", Status: "ABSENT"}},
	}
	first, err := svc.Record(context.Background(), "user-1", req)
	require.NoError(t, err)
	second, err := svc.Record(context.Background(), "user-1", req)
	require.NoError(t, err)

	assert.Equal(t, first[0].ID, second[0].ID, "replay must converge on the same row")
	assert.Len(t, repo.stored, 1)
}

func TestAttendanceServiceRecordOffRosterRejectsBatch(t *testing.T) {
	repo := newAttendanceRepoStub()
	svc := NewAttendanceService(repo, sessionFinderStub{session: plannedSession()}, classRoster(), nil, 75, nil, zap.NewNop())

	_, err := svc.Record(context.Background(), "user-1", RecordAttendanceRequest{
		SessionID: "ses-1",
		Marks: []AttendanceMark{
			{StudentID: "stu-1", Status: "PRESENT"},
			{StudentID: "stu-intruder", Status: "PRESENT"},
		},
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	assert.Contains(t, err.Error(), "stu-intruder")
	assert.Equal(t, 0, repo.upserts, "off-roster mark must reject the whole batch")
}

func TestAttendanceServiceRecordDuplicateStudent(t *testing.T) {
	repo := newAttendanceRepoStub()
	svc := NewAttendanceService(repo, sessionFinderStub{session: plannedSession()}, classRoster(), nil, 75, nil, zap.NewNop())

	_, err := svc.Record(context.Background(), "user-1", RecordAttendanceRequest{
		SessionID: "ses-1",
		Marks: []AttendanceMark{
			{StudentID: "stu-1", Status: "PRESENT"},
			{StudentID: "stu-1", Status: "ABSENT"},
		},
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	assert.Equal(t, 0, repo.upserts)
}

func TestAttendanceServiceRecordCancelledSession(t *testing.T) {
	session := plannedSession()
	session.Status = models.SessionStatusCancelled
	svc := NewAttendanceService(newAttendanceRepoStub(), sessionFinderStub{session: session}, classRoster(), nil, 75, nil, zap.NewNop())

	_, err := svc.Record(context.Background(), "user-1", RecordAttendanceRequest{
		SessionID: "ses-1",
		Marks:     []AttendanceMark{{StudentID: "stu-1", Status: "PRESENT"}},
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidState.Code, appErrors.FromError(err).Code)
}

func TestAttendanceServiceSessionAttendanceCounts(t *testing.T) {
	present := models.AttendanceStatusPresent
	absent := models.AttendanceStatusAbsent
	repo := newAttendanceRepoStub()
	repo.roster = []models.SessionRosterEntry{
		{StudentID: "stu-1", StudentName: "Ana", Status: &present},
		{StudentID: "stu-2", StudentName: "Bruno", Status: &absent},
		{StudentID: "stu-3", StudentName: "Clara"},
	}
	svc := NewAttendanceService(repo, sessionFinderStub{session: plannedSession()}, classRoster(), nil, 75, nil, zap.NewNop())

	view, err := svc.SessionAttendance(context.Background(), "ses-1")
	require.NoError(t, err)
	assert.Equal(t, 1, view.Counts.Present)
	assert.Equal(t, 1, view.Counts.Absent)
	assert.Equal(t, 0, view.Counts.Justified)
	assert.Equal(t, 1, view.Counts.Unrecorded)
	assert.Equal(t, 3, view.Counts.Total)
}

func TestAttendanceServiceStudentSummary(t *testing.T) {
	repo := newAttendanceRepoStub()
	repo.studentCounts = []models.AttendanceStatusCount{
		{Status: models.AttendanceStatusPresent, Count: 20},
		{Status: models.AttendanceStatusAbsent, Count: 8},
		{Status: models.AttendanceStatusJustified, Count: 2},
	}
	svc := NewAttendanceService(repo, sessionFinderStub{session: plannedSession()}, classRoster(), nil, 75, nil, zap.NewNop())

	summary, err := svc.StudentSummary(context.Background(), "stu-1", models.AttendanceFilter{})
	require.NoError(t, err)
	assert.Equal(t, 30, summary.Total)
	assert.InDelta(t, 66.67, summary.Percent, 0.001, "percent is present over total, rounded to two decimals")
	assert.True(t, summary.AtRisk)
}

func TestAttendanceServiceStudentSummaryJustifiedNotPresence(t *testing.T) {
	repo := newAttendanceRepoStub()
	repo.studentCounts = []models.AttendanceStatusCount{
		{Status: models.AttendanceStatusPresent, Count: 7},
		{Status: models.AttendanceStatusJustified, Count: 1},
		{Status: models.AttendanceStatusAbsent, Count: 2},
	}
	svc := NewAttendanceService(repo, sessionFinderStub{session: plannedSession()}, classRoster(), nil, 75, nil, zap.NewNop())

	summary, err := svc.StudentSummary(context.Background(), "stu-1", models.AttendanceFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Justified)
	assert.InDelta(t, 70.0, summary.Percent, 0.001, "a justified mark does not raise the presence percent")
	assert.True(t, summary.AtRisk)
}

func TestAttendanceServiceStudentSummaryEmpty(t *testing.T) {
	svc := NewAttendanceService(newAttendanceRepoStub(), sessionFinderStub{session: plannedSession()}, classRoster(), nil, 75, nil, zap.NewNop())

	summary, err := svc.StudentSummary(context.Background(), "stu-1", models.AttendanceFilter{})
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Total)
	assert.Zero(t, summary.Percent)
	assert.False(t, summary.AtRisk, "no marks means no risk flag")
}

func TestAttendanceServiceClassSummary(t *testing.T) {
	repo := newAttendanceRepoStub()
	repo.classCounts = []models.ClassStatusCount{
		{StudentID: "stu-1", StudentName: "Ana", Status: models.AttendanceStatusPresent, Count: 9},
		{StudentID: "stu-1", StudentName: "Ana", Status: models.AttendanceStatusAbsent, Count: 1},
		{StudentID: "stu-2", StudentName: "Bruno", Status: models.AttendanceStatusAbsent, Count: 6},
		{StudentID: "stu-2", StudentName: "Bruno", Status: models.AttendanceStatusPresent, Count: 4},
	}
	svc := NewAttendanceService(repo, sessionFinderStub{session: plannedSession()}, classRoster(), nil, 75, nil, zap.NewNop())

	report, err := svc.ClassSummary(context.Background(), "class-1", models.AttendanceFilter{})
	require.NoError(t, err)
	require.Len(t, report, 2)

	assert.Equal(t, "stu-1", report[0].StudentID)
	assert.InDelta(t, 90.0, report[0].Percent, 0.001)
	assert.False(t, report[0].AtRisk)

	assert.Equal(t, "stu-2", report[1].StudentID)
	assert.InDelta(t, 40.0, report[1].Percent, 0.001)
	assert.True(t, report[1].AtRisk)
}

func TestAttendanceServiceThresholdDefault(t *testing.T) {
	svc := NewAttendanceService(newAttendanceRepoStub(), sessionFinderStub{}, rosterStub{}, nil, 0, nil, zap.NewNop())
	assert.Equal(t, 75.0, svc.RiskThreshold())

	svc = NewAttendanceService(newAttendanceRepoStub(), sessionFinderStub{}, rosterStub{}, nil, 120, nil, zap.NewNop())
	assert.Equal(t, 75.0, svc.RiskThreshold())

	svc = NewAttendanceService(newAttendanceRepoStub(), sessionFinderStub{}, rosterStub{}, nil, 80, nil, zap.NewNop())
	assert.Equal(t, 80.0, svc.RiskThreshold())
}
