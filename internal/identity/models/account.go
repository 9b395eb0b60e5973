package models

import (
	"strings"
	"time"

	id "certledger/pkg/domain"
	dErrors "certledger/pkg/domain-errors"
	"certledger/pkg/email"
)

// Account is the durable identity record.
//
// Invariants:
//   - Email is stored normalized (lowercased, trimmed) and unique
//   - Role is one of the closed enumeration in pkg/domain
//   - CreatedAt is immutable after construction
//
// An account that owns an issuer profile with issued certificates can never
// be deleted; that check lives in the identity service, not here, because it
// spans stores.
type Account struct {
	ID         id.AccountID `json:"id"`
	Name       string       `json:"name"`
	Email      string       `json:"email"`
	SecretHash string       `json:"-"`
	Role       id.Role      `json:"role"`
	Banned     bool         `json:"banned"`
	// DateOfBirth is only populated for student self-signups; it is carried
	// on the account rather than a separate profile record.
	DateOfBirth *time.Time `json:"date_of_birth,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// NewAccount constructs a validated account with a normalized email.
// The secret hash is attached by the service after hashing.
func NewAccount(accountID id.AccountID, name, emailAddr string, role id.Role, now time.Time) (*Account, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "account name cannot be empty")
	}
	normalized := email.Normalize(emailAddr)
	if normalized == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "account email cannot be empty")
	}
	if !role.Valid() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "account role is invalid")
	}
	return &Account{
		ID:        accountID,
		Name:      name,
		Email:     normalized,
		Role:      role,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// ApplyRole changes the account role.
func (a *Account) ApplyRole(role id.Role, now time.Time) {
	a.Role = role
	a.UpdatedAt = now
}

// ApplyBan sets or clears the ban flag.
func (a *Account) ApplyBan(banned bool, now time.Time) {
	a.Banned = banned
	a.UpdatedAt = now
}
