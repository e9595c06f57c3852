package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/escolaware/escola-api/internal/models"
)

// EnrollmentRepository reads class rosters. Enrollment lifecycle is owned by
// the surrounding entity-management system; the attendance core only needs
// active membership.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// ListActiveRoster returns the active roster of a class with student names.
func (r *EnrollmentRepository) ListActiveRoster(ctx context.Context, classID string) ([]models.RosterMember, error) {
	const query = `SELECT e.student_id, s.full_name AS student_name
FROM enrollments e
JOIN students s ON s.id = e.student_id
WHERE e.class_id = $1 AND e.status = $2
ORDER BY s.full_name ASC`
	var roster []models.RosterMember
	if err := r.db.SelectContext(ctx, &roster, query, classID, models.EnrollmentStatusActive); err != nil {
		return nil, fmt.Errorf("list active roster: %w", err)
	}
	return roster, nil
}
