package domain

import dErrors "certledger/pkg/domain-errors"

// Role is the closed set of account roles. Validated once at the boundary;
// services compare against the constants, never against raw strings.
type Role string

const (
	RoleStudent     Role = "STUDENT"
	RoleInstitution Role = "INSTITUTION"
	RoleAdmin       Role = "ADMIN"
)

// ParseRole validates a raw role string against the closed enumeration.
func ParseRole(raw string) (Role, error) {
	switch Role(raw) {
	case RoleStudent, RoleInstitution, RoleAdmin:
		return Role(raw), nil
	default:
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid role")
	}
}

func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleInstitution, RoleAdmin:
		return true
	}
	return false
}

func (r Role) String() string { return string(r) }
