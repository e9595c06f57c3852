package models

import "time"

// JustificationStatus tracks the approval state of an absence justification.
type JustificationStatus string

const (
	JustificationStatusPending  JustificationStatus = "PENDING"
	JustificationStatusApproved JustificationStatus = "APPROVED"
	JustificationStatusRejected JustificationStatus = "REJECTED"
)

// Valid returns true when the status is a supported value.
func (s JustificationStatus) Valid() bool {
	switch s {
	case JustificationStatusPending, JustificationStatusApproved, JustificationStatusRejected:
		return true
	default:
		return false
	}
}

// AbsenceJustification is a student's claim that absences within a closed
// date range [StartDate, EndDate] should be excused. It transitions out of
// PENDING exactly once; once decided it is immutable and, if approved, can
// never be deleted.
type AbsenceJustification struct {
	ID          string              `db:"id" json:"id"`
	StudentID   string              `db:"student_id" json:"student_id"`
	StartDate   time.Time           `db:"start_date" json:"start_date"`
	EndDate     time.Time           `db:"end_date" json:"end_date"`
	Reason      string              `db:"reason" json:"reason"`
	DocumentRef *string             `db:"document_ref" json:"document_ref,omitempty"`
	Status      JustificationStatus `db:"status" json:"status"`
	DecidedBy   *string             `db:"decided_by" json:"decided_by,omitempty"`
	DecidedAt   *time.Time          `db:"decided_at" json:"decided_at,omitempty"`
	CreatedAt   time.Time           `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time           `db:"updated_at" json:"updated_at"`
}

// ReclassifyCandidate identifies an ABSENT record eligible for the
// retroactive rewrite of an approved justification.
type ReclassifyCandidate struct {
	RecordID    string    `db:"id" json:"record_id"`
	SessionID   string    `db:"session_id" json:"session_id"`
	SessionDate time.Time `db:"session_date" json:"session_date"`
}

// RewriteResult reports the outcome of a retroactive rewrite pass.
type RewriteResult struct {
	JustificationID string `json:"justification_id"`
	Candidates      int    `json:"candidates"`
	Reclassified    int    `json:"reclassified"`
}
