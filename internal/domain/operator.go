package domain

import "time"

// OperatorRole enumerates back-office roles. Demotion is restricted to
// ADMIN; assessment execution and confirmation are open to both.
type OperatorRole string

const (
	OperatorRoleAssessor OperatorRole = "ASSESSOR"
	OperatorRoleAdmin    OperatorRole = "ADMIN"
)

// Operator is a back-office staff account acting on assessments and
// promotion applications.
type Operator struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Role         OperatorRole
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
