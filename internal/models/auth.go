package models

import "github.com/golang-jwt/jwt/v5"

// UserRole identifies the actor's role inside access tokens.
type UserRole string

const (
	RoleAdmin   UserRole = "ADMIN"
	RoleTeacher UserRole = "TEACHER"
	RoleStaff   UserRole = "STAFF"
)

// Capability names an operation a role may perform. Checks run once at the
// use-case boundary, not per route internals.
type Capability string

const (
	CapabilitySessionManage        Capability = "session:manage"
	CapabilityAttendanceRecord     Capability = "attendance:record"
	CapabilityJustificationManage  Capability = "justification:manage"
	CapabilityJustificationDecide  Capability = "justification:decide"
	CapabilitySlotAllocate         Capability = "slot:allocate"
	CapabilityReportRead           Capability = "report:read"
)

var roleCapabilities = map[UserRole][]Capability{
	RoleAdmin: {
		CapabilitySessionManage,
		CapabilityAttendanceRecord,
		CapabilityJustificationManage,
		CapabilityJustificationDecide,
		CapabilitySlotAllocate,
		CapabilityReportRead,
	},
	RoleTeacher: {
		CapabilitySessionManage,
		CapabilityAttendanceRecord,
		CapabilityJustificationManage,
		CapabilityReportRead,
	},
	RoleStaff: {
		CapabilityJustificationManage,
		CapabilityReportRead,
	},
}

// HasCapability reports whether the role includes the capability.
func (r UserRole) HasCapability(cap Capability) bool {
	for _, c := range roleCapabilities[r] {
		if c == cap {
			return true
		}
	}
	return false
}

// JWTClaims represents the JWT payload for access tokens.
type JWTClaims struct {
	UserID   string   `json:"user_id"`
	Role     UserRole `json:"role"`
	Email    string   `json:"email"`
	FullName string   `json:"full_name"`
	jwt.RegisteredClaims
}
