package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/escolaware/escola-api/internal/models"
)

// SlotRepository provides persistence for weekly teaching slots.
type SlotRepository struct {
	db *sqlx.DB
}

// NewSlotRepository creates a new slot repository.
func NewSlotRepository(db *sqlx.DB) *SlotRepository {
	return &SlotRepository{db: db}
}

const slotColumns = "id, class_id, subject_id, teacher_id, weekday, start_min, end_min, created_at, updated_at"

// FindByID loads a slot by id.
func (r *SlotRepository) FindByID(ctx context.Context, id string) (*models.WeeklySlot, error) {
	query := fmt.Sprintf("SELECT %s FROM weekly_slots WHERE id = $1", slotColumns)
	var slot models.WeeklySlot
	if err := r.db.GetContext(ctx, &slot, query, id); err != nil {
		return nil, err
	}
	return &slot, nil
}

// FindByClassAndSubject loads the slot allocated for a class+subject pair.
func (r *SlotRepository) FindByClassAndSubject(ctx context.Context, classID, subjectID string) (*models.WeeklySlot, error) {
	query := fmt.Sprintf("SELECT %s FROM weekly_slots WHERE class_id = $1 AND subject_id = $2", slotColumns)
	var slot models.WeeklySlot
	if err := r.db.GetContext(ctx, &slot, query, classID, subjectID); err != nil {
		return nil, err
	}
	return &slot, nil
}

// ExistsForClassSubject checks whether the class+subject pair already has a
// slot, optionally excluding one id.
func (r *SlotRepository) ExistsForClassSubject(ctx context.Context, classID, subjectID, excludeID string) (bool, error) {
	query := "SELECT 1 FROM weekly_slots WHERE class_id = $1 AND subject_id = $2"
	args := []interface{}{classID, subjectID}
	if excludeID != "" {
		query += fmt.Sprintf(" AND id <> $%d", len(args)+1)
		args = append(args, excludeID)
	}
	query += " LIMIT 1"
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check class subject slot: %w", err)
	}
	return true, nil
}

// ListDetailByTeacherAndWeekday returns the teacher's slots on a weekday
// with class and subject names for conflict messages.
func (r *SlotRepository) ListDetailByTeacherAndWeekday(ctx context.Context, teacherID string, weekday models.Weekday) ([]models.WeeklySlotDetail, error) {
	const query = `SELECT ws.id, ws.class_id, ws.subject_id, ws.teacher_id, ws.weekday, ws.start_min, ws.end_min, ws.created_at, ws.updated_at,
c.name AS class_name, sub.name AS subject_name
FROM weekly_slots ws
LEFT JOIN classes c ON c.id = ws.class_id
LEFT JOIN subjects sub ON sub.id = ws.subject_id
WHERE ws.teacher_id = $1 AND ws.weekday = $2
ORDER BY ws.start_min ASC`
	var slots []models.WeeklySlotDetail
	if err := r.db.SelectContext(ctx, &slots, query, teacherID, weekday); err != nil {
		return nil, fmt.Errorf("list teacher slots: %w", err)
	}
	return slots, nil
}

// Create stores a new slot record.
func (r *SlotRepository) Create(ctx context.Context, slot *models.WeeklySlot) error {
	if slot.ID == "" {
		slot.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if slot.CreatedAt.IsZero() {
		slot.CreatedAt = now
	}
	slot.UpdatedAt = now

	const query = `INSERT INTO weekly_slots (id, class_id, subject_id, teacher_id, weekday, start_min, end_min, created_at, updated_at)
VALUES (:id, :class_id, :subject_id, :teacher_id, :weekday, :start_min, :end_min, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, slot); err != nil {
		return fmt.Errorf("create slot: %w", err)
	}
	return nil
}

// Update modifies a slot record.
func (r *SlotRepository) Update(ctx context.Context, slot *models.WeeklySlot) error {
	slot.UpdatedAt = time.Now().UTC()
	const query = `UPDATE weekly_slots SET teacher_id = :teacher_id, weekday = :weekday, start_min = :start_min, end_min = :end_min, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, slot); err != nil {
		return fmt.Errorf("update slot: %w", err)
	}
	return nil
}

// Delete removes a slot by id.
func (r *SlotRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM weekly_slots WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete slot: %w", err)
	}
	return nil
}
