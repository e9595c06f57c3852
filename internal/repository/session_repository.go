package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/escolaware/escola-api/internal/models"
)

// SessionRepository provides persistence for class sessions.
type SessionRepository struct {
	db *sqlx.DB
}

// NewSessionRepository creates a new session repository.
func NewSessionRepository(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

const sessionColumns = "id, class_id, weekly_slot_id, date, start_min, end_min, content, status, created_at, updated_at"

// FindByID loads a session by id.
func (r *SessionRepository) FindByID(ctx context.Context, id string) (*models.ClassSession, error) {
	query := fmt.Sprintf("SELECT %s FROM class_sessions WHERE id = $1", sessionColumns)
	var session models.ClassSession
	if err := r.db.GetContext(ctx, &session, query, id); err != nil {
		return nil, err
	}
	return &session, nil
}

// ListActiveByClassAndDate returns all non-cancelled sessions for a class on
// a date, the candidate set for overlap checking.
func (r *SessionRepository) ListActiveByClassAndDate(ctx context.Context, classID string, date time.Time) ([]models.ClassSession, error) {
	query := fmt.Sprintf(`SELECT %s FROM class_sessions
WHERE class_id = $1 AND date = $2 AND status <> $3
ORDER BY start_min ASC`, sessionColumns)
	var sessions []models.ClassSession
	if err := r.db.SelectContext(ctx, &sessions, query, classID, date, models.SessionStatusCancelled); err != nil {
		return nil, fmt.Errorf("list active sessions: %w", err)
	}
	return sessions, nil
}

// ListForClassOnDate returns non-cancelled sessions ordered by start time,
// each flagged with whether any attendance records exist yet.
func (r *SessionRepository) ListForClassOnDate(ctx context.Context, classID string, date time.Time) ([]models.SessionListItem, error) {
	query := fmt.Sprintf(`SELECT %s,
EXISTS (SELECT 1 FROM attendance_records ar WHERE ar.session_id = class_sessions.id) AS has_attendance
FROM class_sessions
WHERE class_id = $1 AND date = $2 AND status <> $3
ORDER BY start_min ASC`, sessionColumns)
	var items []models.SessionListItem
	if err := r.db.SelectContext(ctx, &items, query, classID, date, models.SessionStatusCancelled); err != nil {
		return nil, fmt.Errorf("list sessions for class: %w", err)
	}
	return items, nil
}

// Create stores a new session record.
func (r *SessionRepository) Create(ctx context.Context, session *models.ClassSession) error {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	session.UpdatedAt = now

	const query = `INSERT INTO class_sessions (id, class_id, weekly_slot_id, date, start_min, end_min, content, status, created_at, updated_at)
VALUES (:id, :class_id, :weekly_slot_id, :date, :start_min, :end_min, :content, :status, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, session); err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// Update modifies a session record.
func (r *SessionRepository) Update(ctx context.Context, session *models.ClassSession) error {
	session.UpdatedAt = time.Now().UTC()
	const query = `UPDATE class_sessions SET date = :date, start_min = :start_min, end_min = :end_min, content = :content, status = :status, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, session); err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	return nil
}

// CountBySlot returns the number of non-cancelled sessions referencing a
// weekly slot. Slots with live sessions cannot be deallocated.
func (r *SessionRepository) CountBySlot(ctx context.Context, slotID string) (int, error) {
	const query = `SELECT COUNT(*) FROM class_sessions WHERE weekly_slot_id = $1 AND status <> $2`
	var count int
	if err := r.db.GetContext(ctx, &count, query, slotID, models.SessionStatusCancelled); err != nil {
		return 0, fmt.Errorf("count sessions by slot: %w", err)
	}
	return count, nil
}
