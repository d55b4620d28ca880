package domain

import "time"

// MemberRole is the membership tier of a member.
type MemberRole string

const (
	RoleMember  MemberRole = "MEMBER"
	RoleFPAide  MemberRole = "FP_AIDE"
	RoleManager MemberRole = "MANAGER"
)

// NextRole returns the role directly above the given one in the
// promotion ladder.
func NextRole(role MemberRole) (MemberRole, bool) {
	switch role {
	case RoleMember:
		return RoleFPAide, true
	case RoleFPAide:
		return RoleManager, true
	default:
		return "", false
	}
}

// MemberStatus represents lifecycle states for a member.
type MemberStatus string

const (
	MemberStatusActive    MemberStatus = "ACTIVE"
	MemberStatusSuspended MemberStatus = "SUSPENDED"
	MemberStatusWithdrawn MemberStatus = "WITHDRAWN"
)

// Member is the domain model for members of the association. Only ACTIVE
// managers holding a range participate in rank assessment.
type Member struct {
	ID           string
	Name         string
	Email        string
	Role         MemberRole
	CurrentRange *int
	Status       MemberStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
