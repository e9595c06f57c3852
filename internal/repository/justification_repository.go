package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/escolaware/escola-api/internal/models"
)

// JustificationRepository handles persistence for absence justifications.
type JustificationRepository struct {
	db *sqlx.DB
}

// NewJustificationRepository constructs the repository.
func NewJustificationRepository(db *sqlx.DB) *JustificationRepository {
	return &JustificationRepository{db: db}
}

const justificationColumns = "id, student_id, start_date, end_date, reason, document_ref, status, decided_by, decided_at, created_at, updated_at"

// FindByID loads a justification by id.
func (r *JustificationRepository) FindByID(ctx context.Context, id string) (*models.AbsenceJustification, error) {
	query := fmt.Sprintf("SELECT %s FROM absence_justifications WHERE id = $1", justificationColumns)
	var justification models.AbsenceJustification
	if err := r.db.GetContext(ctx, &justification, query, id); err != nil {
		return nil, err
	}
	return &justification, nil
}

// Create stores a new justification record.
func (r *JustificationRepository) Create(ctx context.Context, justification *models.AbsenceJustification) error {
	if justification.ID == "" {
		justification.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if justification.CreatedAt.IsZero() {
		justification.CreatedAt = now
	}
	justification.UpdatedAt = now
	if justification.Status == "" {
		justification.Status = models.JustificationStatusPending
	}

	const query = `INSERT INTO absence_justifications (id, student_id, start_date, end_date, reason, document_ref, status, decided_by, decided_at, created_at, updated_at)
VALUES (:id, :student_id, :start_date, :end_date, :reason, :document_ref, :status, :decided_by, :decided_at, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, justification); err != nil {
		return fmt.Errorf("create justification: %w", err)
	}
	return nil
}

// Update persists mutable fields of a pending justification.
func (r *JustificationRepository) Update(ctx context.Context, justification *models.AbsenceJustification) error {
	justification.UpdatedAt = time.Now().UTC()
	const query = `UPDATE absence_justifications SET reason = :reason, document_ref = :document_ref, status = :status, decided_by = :decided_by, decided_at = :decided_at, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, justification); err != nil {
		return fmt.Errorf("update justification: %w", err)
	}
	return nil
}

// Delete removes a justification by id.
func (r *JustificationRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM absence_justifications WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete justification: %w", err)
	}
	return nil
}

// ListPending returns PENDING justifications oldest-first, optionally
// restricted to students actively enrolled in a class.
func (r *JustificationRepository) ListPending(ctx context.Context, classID string) ([]models.AbsenceJustification, error) {
	const selectList = `j.id, j.student_id, j.start_date, j.end_date, j.reason, j.document_ref, j.status, j.decided_by, j.decided_at, j.created_at, j.updated_at`
	query := fmt.Sprintf("SELECT %s FROM absence_justifications j WHERE j.status = $1", selectList)
	args := []interface{}{models.JustificationStatusPending}
	if classID != "" {
		query = fmt.Sprintf(`SELECT %s
FROM absence_justifications j
JOIN enrollments e ON e.student_id = j.student_id AND e.class_id = $2 AND e.status = $3
WHERE j.status = $1`, selectList)
		args = append(args, classID, models.EnrollmentStatusActive)
	}
	query += " ORDER BY j.created_at ASC"
	var justifications []models.AbsenceJustification
	if err := r.db.SelectContext(ctx, &justifications, query, args...); err != nil {
		return nil, fmt.Errorf("list pending justifications: %w", err)
	}
	return justifications, nil
}
