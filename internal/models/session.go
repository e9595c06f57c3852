package models

import "time"

// SessionStatus represents the lifecycle state of a class session.
type SessionStatus string

const (
	SessionStatusPlanned   SessionStatus = "PLANNED"
	SessionStatusHeld      SessionStatus = "HELD"
	SessionStatusCancelled SessionStatus = "CANCELLED"
	SessionStatusMakeup    SessionStatus = "MAKEUP"
)

// Valid returns true when the status is a supported value.
func (s SessionStatus) Valid() bool {
	switch s {
	case SessionStatusPlanned, SessionStatusHeld, SessionStatusCancelled, SessionStatusMakeup:
		return true
	default:
		return false
	}
}

// CanTransitionTo enforces the session state machine: a planned session can
// be held or cancelled, a held session can be cancelled, and a cancelled
// session can be flagged as the makeup of a later occurrence. Everything
// else is rejected.
func (s SessionStatus) CanTransitionTo(next SessionStatus) bool {
	switch s {
	case SessionStatusPlanned:
		return next == SessionStatusHeld || next == SessionStatusCancelled
	case SessionStatusHeld:
		return next == SessionStatusCancelled
	case SessionStatusCancelled:
		return next == SessionStatusMakeup
	default:
		return false
	}
}

// ClassSession is one dated, timed occurrence of a class meeting.
type ClassSession struct {
	ID           string        `db:"id" json:"id"`
	ClassID      string        `db:"class_id" json:"class_id"`
	WeeklySlotID string        `db:"weekly_slot_id" json:"weekly_slot_id"`
	Date         time.Time     `db:"date" json:"date"`
	StartMin     int           `db:"start_min" json:"start_min"`
	EndMin       int           `db:"end_min" json:"end_min"`
	Content      *string       `db:"content" json:"content,omitempty"`
	Status       SessionStatus `db:"status" json:"status"`
	CreatedAt    time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time     `db:"updated_at" json:"updated_at"`
}

// Range returns the session's time window.
func (s *ClassSession) Range() TimeRange {
	return TimeRange{StartMin: s.StartMin, EndMin: s.EndMin}
}

// SessionListItem extends a session with an aggregate attendance flag.
type SessionListItem struct {
	ClassSession
	HasAttendance bool `db:"has_attendance" json:"has_attendance"`
}

// SessionConflict describes the existing session that blocks a write.
type SessionConflict struct {
	SessionID string        `json:"session_id"`
	ClassID   string        `json:"class_id"`
	Date      string        `json:"date"`
	StartTime string        `json:"start_time"`
	EndTime   string        `json:"end_time"`
	Status    SessionStatus `json:"status"`
}

// SessionConflictError is returned when a session collides with an existing one.
type SessionConflictError struct {
	Message  string          `json:"message"`
	Conflict SessionConflict `json:"conflict"`
}

// Error implements the error interface for conflict errors.
func (e *SessionConflictError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return e.Message
}
