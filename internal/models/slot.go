package models

import "time"

// WeeklySlot is a recurring weekly allocation of a teacher to one
// class+subject on a fixed weekday and time range.
type WeeklySlot struct {
	ID        string    `db:"id" json:"id"`
	ClassID   string    `db:"class_id" json:"class_id"`
	SubjectID string    `db:"subject_id" json:"subject_id"`
	TeacherID string    `db:"teacher_id" json:"teacher_id"`
	Weekday   Weekday   `db:"weekday" json:"weekday"`
	StartMin  int       `db:"start_min" json:"start_min"`
	EndMin    int       `db:"end_min" json:"end_min"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Range returns the slot's time window.
func (s *WeeklySlot) Range() TimeRange {
	return TimeRange{StartMin: s.StartMin, EndMin: s.EndMin}
}

// WeeklySlotDetail extends a slot with display names for conflict messages.
type WeeklySlotDetail struct {
	WeeklySlot
	ClassName   *string `db:"class_name" json:"class_name,omitempty"`
	SubjectName *string `db:"subject_name" json:"subject_name,omitempty"`
}

// SlotConflict names the existing allocation that blocks a write.
type SlotConflict struct {
	SlotID      string  `json:"slot_id"`
	ClassID     string  `json:"class_id"`
	ClassName   *string `json:"class_name,omitempty"`
	SubjectID   string  `json:"subject_id"`
	SubjectName *string `json:"subject_name,omitempty"`
	TeacherID   string  `json:"teacher_id"`
	Weekday     Weekday `json:"weekday"`
	StartTime   string  `json:"start_time"`
	EndTime     string  `json:"end_time"`
}

// SlotConflictError is returned when an allocation collides with an existing
// slot for the same teacher.
type SlotConflictError struct {
	Message  string       `json:"message"`
	Conflict SlotConflict `json:"conflict"`
}

// Error implements the error interface for conflict errors.
func (e *SlotConflictError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return e.Message
}
