package models

import "time"

// AttendanceStatus represents a student's mark for one session.
type AttendanceStatus string

const (
	AttendanceStatusPresent   AttendanceStatus = "PRESENT"
	AttendanceStatusAbsent    AttendanceStatus = "ABSENT"
	AttendanceStatusJustified AttendanceStatus = "JUSTIFIED"
)

// Valid returns true when the status is a supported value.
func (s AttendanceStatus) Valid() bool {
	switch s {
	case AttendanceStatusPresent, AttendanceStatusAbsent, AttendanceStatusJustified:
		return true
	default:
		return false
	}
}

// AttendanceRecord is one student's mark for one session. At most one record
// exists per (session, student) pair; writes go through an upsert keyed on
// that pair.
type AttendanceRecord struct {
	ID              string           `db:"id" json:"id"`
	SessionID       string           `db:"session_id" json:"session_id"`
	StudentID       string           `db:"student_id" json:"student_id"`
	Status          AttendanceStatus `db:"status" json:"status"`
	Notes           *string          `db:"notes" json:"notes,omitempty"`
	RecordedBy      string           `db:"recorded_by" json:"recorded_by"`
	RecordedAt      time.Time        `db:"recorded_at" json:"recorded_at"`
	JustificationID *string          `db:"justification_id" json:"justification_id,omitempty"`
	CreatedAt       time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time        `db:"updated_at" json:"updated_at"`
}

// SessionRosterEntry pairs a roster member with their mark, if any. A nil
// status means the student is unrecorded for the session.
type SessionRosterEntry struct {
	StudentID   string            `db:"student_id" json:"student_id"`
	StudentName string            `db:"student_name" json:"student_name"`
	Status      *AttendanceStatus `db:"status" json:"status,omitempty"`
	Notes       *string           `db:"notes" json:"notes,omitempty"`
	RecordedAt  *time.Time        `db:"recorded_at" json:"recorded_at,omitempty"`
}

// SessionAttendanceCounts summarises a session's roster.
type SessionAttendanceCounts struct {
	Present    int `json:"present"`
	Absent     int `json:"absent"`
	Justified  int `json:"justified"`
	Unrecorded int `json:"unrecorded"`
	Total      int `json:"total"`
}

// SessionAttendanceView is the roster-by-mark view for one session.
type SessionAttendanceView struct {
	SessionID string                  `json:"session_id"`
	Entries   []SessionRosterEntry    `json:"entries"`
	Counts    SessionAttendanceCounts `json:"counts"`
}

// AttendanceSummary aggregates recorded marks for one student.
type AttendanceSummary struct {
	Present   int     `json:"present"`
	Absent    int     `json:"absent"`
	Justified int     `json:"justified"`
	Total     int     `json:"total"`
	Percent   float64 `json:"percent"`
	AtRisk    bool    `json:"at_risk"`
}

// ClassAttendanceRow is one student's aggregate within a class report.
type ClassAttendanceRow struct {
	StudentID   string `db:"student_id" json:"student_id"`
	StudentName string `db:"student_name" json:"student_name"`
	AttendanceSummary
}

// AttendanceStatusCount is a raw per-status count from the store.
type AttendanceStatusCount struct {
	Status AttendanceStatus `db:"status"`
	Count  int              `db:"cnt"`
}

// ClassStatusCount is a raw per-student, per-status count within a class.
type ClassStatusCount struct {
	StudentID   string           `db:"student_id"`
	StudentName string           `db:"student_name"`
	Status      AttendanceStatus `db:"status"`
	Count       int              `db:"cnt"`
}

// AttendanceFilter scopes aggregation queries by date window.
type AttendanceFilter struct {
	DateFrom *time.Time
	DateTo   *time.Time
}
