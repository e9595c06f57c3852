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

type sessionRepoStub struct {
	sessions  map[string]*models.ClassSession
	active    []models.ClassSession
	listItems []models.SessionListItem
	created   []*models.ClassSession
	updated   []*models.ClassSession
	slotCount int
	listErr   error
	createErr error
	updateErr error
}

func (s *sessionRepoStub) FindByID(ctx context.Context, id string) (*models.ClassSession, error) {
	if session, ok := s.sessions[id]; ok {
		copied := *session
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (s *sessionRepoStub) ListActiveByClassAndDate(ctx context.Context, classID string, date time.Time) ([]models.ClassSession, error) {
	return s.active, s.listErr
}

func (s *sessionRepoStub) ListForClassOnDate(ctx context.Context, classID string, date time.Time) ([]models.SessionListItem, error) {
	return s.listItems, s.listErr
}

func (s *sessionRepoStub) Create(ctx context.Context, session *models.ClassSession) error {
	if s.createErr != nil {
		return s.createErr
	}
	session.ID = "ses-new"
	s.created = append(s.created, session)
	return nil
}

func (s *sessionRepoStub) Update(ctx context.Context, session *models.ClassSession) error {
	if s.updateErr != nil {
		return s.updateErr
	}
	s.updated = append(s.updated, session)
	return nil
}

func (s *sessionRepoStub) CountBySlot(ctx context.Context, slotID string) (int, error) {
	return s.slotCount, nil
}

type slotReaderStub struct {
	slot *models.WeeklySlot
	err  error
}

func (s slotReaderStub) FindByID(ctx context.Context, id string) (*models.WeeklySlot, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.slot != nil {
		return s.slot, nil
	}
	return nil, sql.ErrNoRows
}

type invalidatorStub struct {
	attendanceCalls int
	sessionCalls    int
	classIDs        []string
	studentIDs      []string
}

func (s *invalidatorStub) AttendanceChanged(ctx context.Context, classID string, studentIDs ...string) {
	s.attendanceCalls++
	s.classIDs = append(s.classIDs, classID)
	s.studentIDs = append(s.studentIDs, studentIDs...)
}

func (s *invalidatorStub) SessionChanged(ctx context.Context, classID, sessionID string) {
	s.sessionCalls++
	s.classIDs = append(s.classIDs, classID)
}

func existingSession(id string, startMin, endMin int) models.ClassSession {
	return models.ClassSession{
		ID:       id,
		ClassID:  "class-1",
		Date:     time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
		StartMin: startMin,
		EndMin:   endMin,
		Status:   models.SessionStatusPlanned,
	}
}

func TestSessionServiceCreate(t *testing.T) {
	repo := &sessionRepoStub{}
	invalidator := &invalidatorStub{}
	svc := NewSessionService(repo, slotReaderStub{slot: &models.WeeklySlot{ID: "slot-1"}}, invalidator, nil, zap.NewNop())

	session, err := svc.Create(context.Background(), CreateSessionRequest{
		ClassID:      "class-1",
		WeeklySlotID: "slot-1",
		Date:         "2026-03-02",
		StartTime:    "08:00",
		EndTime:      "08:50",
	})
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusPlanned, session.Status)
	assert.Equal(t, 480, session.StartMin)
	assert.Equal(t, 530, session.EndMin)
	require.Len(t, repo.created, 1)
	assert.Equal(t, 1, invalidator.sessionCalls)
}

func TestSessionServiceCreateTouchingSessionsAllowed(t *testing.T) {
	repo := &sessionRepoStub{active: []models.ClassSession{existingSession("ses-1", 480, 530)}}
	svc := NewSessionService(repo, slotReaderStub{slot: &models.WeeklySlot{ID: "slot-1"}}, nil, nil, zap.NewNop())

	_, err := svc.Create(context.Background(), CreateSessionRequest{
		ClassID:      "class-1",
		WeeklySlotID: "slot-1",
		Date:         "2026-03-02",
		StartTime:    "08:50",
		EndTime:      "09:40",
	})
	require.NoError(t, err, "back-to-back sessions must not conflict")
}

func TestSessionServiceCreateConflict(t *testing.T) {
	repo := &sessionRepoStub{active: []models.ClassSession{existingSession("ses-1", 480, 530)}}
	svc := NewSessionService(repo, slotReaderStub{slot: &models.WeeklySlot{ID: "slot-1"}}, nil, nil, zap.NewNop())

	_, err := svc.Create(context.Background(), CreateSessionRequest{
		ClassID:      "class-1",
		WeeklySlotID: "slot-1",
		Date:         "2026-03-02",
		StartTime:    "08:20",
		EndTime:      "09:00",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
	assert.Contains(t, err.Error(), "ses-1")
	assert.Empty(t, repo.created)
}

func TestSessionServiceCreateMissingSlot(t *testing.T) {
	svc := NewSessionService(&sessionRepoStub{}, slotReaderStub{}, nil, nil, zap.NewNop())

	_, err := svc.Create(context.Background(), CreateSessionRequest{
		ClassID:      "class-1",
		WeeklySlotID: "slot-missing",
		Date:         "2026-03-02",
		StartTime:    "08:00",
		EndTime:      "08:50",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestSessionServiceCreateInvalidWindow(t *testing.T) {
	svc := NewSessionService(&sessionRepoStub{}, slotReaderStub{slot: &models.WeeklySlot{ID: "slot-1"}}, nil, nil, zap.NewNop())

	_, err := svc.Create(context.Background(), CreateSessionRequest{
		ClassID:      "class-1",
		WeeklySlotID: "slot-1",
		Date:         "2026-03-02",
		StartTime:    "09:00",
		EndTime:      "08:00",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestSessionServiceRescheduleExcludesSelf(t *testing.T) {
	current := existingSession("ses-1", 480, 530)
	repo := &sessionRepoStub{
		sessions: map[string]*models.ClassSession{"ses-1": &current},
		active:   []models.ClassSession{current},
	}
	svc := NewSessionService(repo, slotReaderStub{}, nil, nil, zap.NewNop())

	start := "08:10"
	session, err := svc.Reschedule(context.Background(), "ses-1", RescheduleSessionRequest{StartTime: &start})
	require.NoError(t, err, "a session never conflicts with itself")
	assert.Equal(t, 490, session.StartMin)
	require.Len(t, repo.updated, 1)
}

func TestSessionServiceRescheduleConflict(t *testing.T) {
	current := existingSession("ses-1", 480, 530)
	other := existingSession("ses-2", 540, 590)
	repo := &sessionRepoStub{
		sessions: map[string]*models.ClassSession{"ses-1": &current},
		active:   []models.ClassSession{current, other},
	}
	svc := NewSessionService(repo, slotReaderStub{}, nil, nil, zap.NewNop())

	end := "09:10"
	_, err := svc.Reschedule(context.Background(), "ses-1", RescheduleSessionRequest{EndTime: &end})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
	assert.Contains(t, err.Error(), "ses-2")
}

func TestSessionServiceLifecycle(t *testing.T) {
	planned := existingSession("ses-1", 480, 530)
	repo := &sessionRepoStub{sessions: map[string]*models.ClassSession{"ses-1": &planned}}
	svc := NewSessionService(repo, slotReaderStub{}, nil, nil, zap.NewNop())

	session, err := svc.Hold(context.Background(), "ses-1")
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusHeld, session.Status)

	cancelled := existingSession("ses-2", 480, 530)
	cancelled.Status = models.SessionStatusCancelled
	repo.sessions["ses-2"] = &cancelled

	_, err = svc.Hold(context.Background(), "ses-2")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidState.Code, appErrors.FromError(err).Code)

	session, err = svc.MarkMakeup(context.Background(), "ses-2")
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusMakeup, session.Status)
}

func TestSessionServiceCancelStampsReason(t *testing.T) {
	content := "algebra review"
	planned := existingSession("ses-1", 480, 530)
	planned.Content = &content
	repo := &sessionRepoStub{sessions: map[string]*models.ClassSession{"ses-1": &planned}}
	svc := NewSessionService(repo, slotReaderStub{}, nil, nil, zap.NewNop())

	session, err := svc.Cancel(context.Background(), "ses-1", "teacher illness")
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusCancelled, session.Status)
	require.NotNil(t, session.Content)
	assert.Contains(t, *session.Content, "algebra review")
	assert.Contains(t, *session.Content, "teacher illness")
}

func TestSessionServiceCancelTwice(t *testing.T) {
	cancelled := existingSession("ses-1", 480, 530)
	cancelled.Status = models.SessionStatusCancelled
	repo := &sessionRepoStub{sessions: map[string]*models.ClassSession{"ses-1": &cancelled}}
	svc := NewSessionService(repo, slotReaderStub{}, nil, nil, zap.NewNop())

	_, err := svc.Cancel(context.Background(), "ses-1", "again")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidState.Code, appErrors.FromError(err).Code)
}

func TestSessionServiceDeleteCancels(t *testing.T) {
	planned := existingSession("ses-1", 480, 530)
	repo := &sessionRepoStub{sessions: map[string]*models.ClassSession{"ses-1": &planned}}
	svc := NewSessionService(repo, slotReaderStub{}, nil, nil, zap.NewNop())

	session, err := svc.Delete(context.Background(), "ses-1")
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusCancelled, session.Status)
	require.Len(t, repo.updated, 1, "delete must update, never remove")
}

func TestSessionServiceNotFound(t *testing.T) {
	svc := NewSessionService(&sessionRepoStub{}, slotReaderStub{}, nil, nil, zap.NewNop())

	_, err := svc.Hold(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
