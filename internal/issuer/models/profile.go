package models

import (
	"strings"
	"time"

	id "certledger/pkg/domain"
	dErrors "certledger/pkg/domain-errors"
)

// Profile is the issuing organization attached to an INSTITUTION account.
//
// Invariants:
//   - Exactly one profile per account
//   - Name is a copy of the organization name at creation time; later
//     account display-name edits do not sync back
//
// Certificates reference the profile by its own id, never by the account id,
// so the account can change without touching issued certificates.
type Profile struct {
	ID            id.IssuerID  `json:"id"`
	AccountID     id.AccountID `json:"account_id"`
	Name          string       `json:"name"`
	ContactNumber string       `json:"contact_number"`
	Address       string       `json:"address"`
	LocationURL   string       `json:"location_url"`
	// LogoPath is an opaque reference into the external document store.
	LogoPath  string    `json:"logo_path,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewProfile constructs a validated issuer profile.
func NewProfile(issuerID id.IssuerID, accountID id.AccountID, name string, now time.Time) (*Profile, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "issuer name cannot be empty")
	}
	if accountID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "issuer profile requires an account")
	}
	return &Profile{
		ID:        issuerID,
		AccountID: accountID,
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}
