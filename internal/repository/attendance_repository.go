package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/escolaware/escola-api/internal/models"
)

// AttendanceRepository handles persistence for attendance records.
type AttendanceRepository struct {
	db *sqlx.DB
}

// NewAttendanceRepository constructs the repository.
func NewAttendanceRepository(db *sqlx.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

// Upsert inserts or updates the mark for a (session, student) pair. Replays
// of the same mark converge on the same row, which is what makes the bulk
// recording retryable.
func (r *AttendanceRepository) Upsert(ctx context.Context, record *models.AttendanceRecord) (*models.AttendanceRecord, error) {
	now := time.Now().UTC()
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	if record.RecordedAt.IsZero() {
		record.RecordedAt = now
	}
	record.UpdatedAt = now
	query := `INSERT INTO attendance_records (id, session_id, student_id, status, notes, recorded_by, recorded_at, justification_id, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (session_id, student_id)
DO UPDATE SET status = EXCLUDED.status, notes = EXCLUDED.notes, recorded_by = EXCLUDED.recorded_by, recorded_at = EXCLUDED.recorded_at, justification_id = EXCLUDED.justification_id, updated_at = EXCLUDED.updated_at
RETURNING id, session_id, student_id, status, notes, recorded_by, recorded_at, justification_id, created_at, updated_at`
	var stored models.AttendanceRecord
	if err := r.db.GetContext(ctx, &stored, query, record.ID, record.SessionID, record.StudentID, record.Status, record.Notes, record.RecordedBy, record.RecordedAt, record.JustificationID, record.CreatedAt, record.UpdatedAt); err != nil {
		return nil, fmt.Errorf("upsert attendance record: %w", err)
	}
	return &stored, nil
}

// SessionRoster returns every active roster member of the session's class
// paired with their mark when one exists.
func (r *AttendanceRepository) SessionRoster(ctx context.Context, sessionID, classID string) ([]models.SessionRosterEntry, error) {
	query := `SELECT e.student_id, s.full_name AS student_name, ar.status, ar.notes, ar.recorded_at
FROM enrollments e
JOIN students s ON s.id = e.student_id
LEFT JOIN attendance_records ar ON ar.session_id = $1 AND ar.student_id = e.student_id
WHERE e.class_id = $2 AND e.status = $3
ORDER BY s.full_name ASC`
	var entries []models.SessionRosterEntry
	if err := r.db.SelectContext(ctx, &entries, query, sessionID, classID, models.EnrollmentStatusActive); err != nil {
		return nil, fmt.Errorf("session roster: %w", err)
	}
	return entries, nil
}

// StudentStatusCounts aggregates a student's marks, optionally windowed by
// the owning session's date.
func (r *AttendanceRepository) StudentStatusCounts(ctx context.Context, studentID string, filter models.AttendanceFilter) ([]models.AttendanceStatusCount, error) {
	where := []string{"ar.student_id = $1"}
	args := []interface{}{studentID}
	if filter.DateFrom != nil {
		where = append(where, fmt.Sprintf("cs.date >= $%d", len(args)+1))
		args = append(args, *filter.DateFrom)
	}
	if filter.DateTo != nil {
		where = append(where, fmt.Sprintf("cs.date <= $%d", len(args)+1))
		args = append(args, *filter.DateTo)
	}
	query := fmt.Sprintf(`SELECT ar.status, COUNT(*) AS cnt
FROM attendance_records ar
JOIN class_sessions cs ON cs.id = ar.session_id
WHERE %s
GROUP BY ar.status`, strings.Join(where, " AND "))
	var rows []models.AttendanceStatusCount
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("student status counts: %w", err)
	}
	return rows, nil
}

// ClassStatusCounts aggregates marks per student across a class.
func (r *AttendanceRepository) ClassStatusCounts(ctx context.Context, classID string, filter models.AttendanceFilter) ([]models.ClassStatusCount, error) {
	where := []string{"cs.class_id = $1"}
	args := []interface{}{classID}
	if filter.DateFrom != nil {
		where = append(where, fmt.Sprintf("cs.date >= $%d", len(args)+1))
		args = append(args, *filter.DateFrom)
	}
	if filter.DateTo != nil {
		where = append(where, fmt.Sprintf("cs.date <= $%d", len(args)+1))
		args = append(args, *filter.DateTo)
	}
	query := fmt.Sprintf(`SELECT ar.student_id, s.full_name AS student_name, ar.status, COUNT(*) AS cnt
FROM attendance_records ar
JOIN class_sessions cs ON cs.id = ar.session_id
JOIN students s ON s.id = ar.student_id
WHERE %s
GROUP BY ar.student_id, s.full_name, ar.status
ORDER BY s.full_name ASC`, strings.Join(where, " AND "))
	var rows []models.ClassStatusCount
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("class status counts: %w", err)
	}
	return rows, nil
}

// SelectReclassifyCandidates returns the student's ABSENT records whose
// session date falls inside the closed range. Records already reclassified
// no longer match the status filter, so re-running after a partial failure
// only touches what is left.
func (r *AttendanceRepository) SelectReclassifyCandidates(ctx context.Context, studentID string, startDate, endDate time.Time) ([]models.ReclassifyCandidate, error) {
	query := `SELECT ar.id, ar.session_id, cs.date AS session_date
FROM attendance_records ar
JOIN class_sessions cs ON cs.id = ar.session_id
WHERE ar.student_id = $1 AND ar.status = $2 AND cs.date >= $3 AND cs.date <= $4
ORDER BY cs.date ASC`
	var candidates []models.ReclassifyCandidate
	if err := r.db.SelectContext(ctx, &candidates, query, studentID, models.AttendanceStatusAbsent, startDate, endDate); err != nil {
		return nil, fmt.Errorf("select reclassify candidates: %w", err)
	}
	return candidates, nil
}

// Reclassify flips one ABSENT record to JUSTIFIED and attaches the
// justification. The status guard makes each update idempotent; a false
// return means another pass already handled the record.
func (r *AttendanceRepository) Reclassify(ctx context.Context, recordID, justificationID string) (bool, error) {
	const query = `UPDATE attendance_records
SET status = $2, justification_id = $3, updated_at = $4
WHERE id = $1 AND status = $5`
	result, err := r.db.ExecContext(ctx, query, recordID, models.AttendanceStatusJustified, justificationID, time.Now().UTC(), models.AttendanceStatusAbsent)
	if err != nil {
		return false, fmt.Errorf("reclassify attendance record: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reclassify rows affected: %w", err)
	}
	return affected > 0, nil
}
