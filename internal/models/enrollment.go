package models

import "time"

// EnrollmentStatus marks whether a student is actively on a class roster.
type EnrollmentStatus string

const (
	EnrollmentStatusActive      EnrollmentStatus = "ACTIVE"
	EnrollmentStatusTransferred EnrollmentStatus = "TRANSFERRED"
	EnrollmentStatusWithdrawn   EnrollmentStatus = "WITHDRAWN"
)

// Enrollment links a student to a class. The attendance core reads rosters
// through this table; enrollment lifecycle itself is managed elsewhere.
type Enrollment struct {
	ID        string           `db:"id" json:"id"`
	StudentID string           `db:"student_id" json:"student_id"`
	ClassID   string           `db:"class_id" json:"class_id"`
	Status    EnrollmentStatus `db:"status" json:"status"`
	JoinedAt  time.Time        `db:"joined_at" json:"joined_at"`
	LeftAt    *time.Time       `db:"left_at" json:"left_at,omitempty"`
}

// RosterMember is an active roster entry with the student's display name.
type RosterMember struct {
	StudentID   string `db:"student_id" json:"student_id"`
	StudentName string `db:"student_name" json:"student_name"`
}
