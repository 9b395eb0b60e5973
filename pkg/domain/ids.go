// Package domain holds the typed identifiers and closed enumerations shared
// across services. IDs are distinct types over uuid.UUID so the compiler
// rejects cross-entity assignment (an AccountID can never be passed where a
// CertificateID is expected).
package domain

import (
	"github.com/google/uuid"

	dErrors "certledger/pkg/domain-errors"
)

type (
	// AccountID identifies a durable account (student, institution or admin).
	AccountID uuid.UUID
	// IssuerID identifies an issuer profile, not the account that owns it.
	IssuerID uuid.UUID
	// RequestID identifies an onboarding request.
	RequestID uuid.UUID
	// CertificateID identifies an issued certificate.
	CertificateID uuid.UUID
	// NotificationID identifies a notification ledger entry.
	NotificationID uuid.UUID
)

func (id AccountID) String() string      { return uuid.UUID(id).String() }
func (id IssuerID) String() string       { return uuid.UUID(id).String() }
func (id RequestID) String() string      { return uuid.UUID(id).String() }
func (id CertificateID) String() string  { return uuid.UUID(id).String() }
func (id NotificationID) String() string { return uuid.UUID(id).String() }

func (id AccountID) IsNil() bool      { return uuid.UUID(id) == uuid.Nil }
func (id IssuerID) IsNil() bool       { return uuid.UUID(id) == uuid.Nil }
func (id RequestID) IsNil() bool      { return uuid.UUID(id) == uuid.Nil }
func (id CertificateID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }
func (id NotificationID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

// NewAccountID generates a fresh server-side account id.
func NewAccountID() AccountID { return AccountID(uuid.New()) }

func NewIssuerID() IssuerID             { return IssuerID(uuid.New()) }
func NewRequestID() RequestID           { return RequestID(uuid.New()) }
func NewCertificateID() CertificateID   { return CertificateID(uuid.New()) }
func NewNotificationID() NotificationID { return NotificationID(uuid.New()) }

// parseUUID enforces the trust-boundary invariant: ids must be valid,
// non-nil UUIDs. Nil UUIDs are rejected because they are the zero value of
// an unset field, never a real identifier.
func parseUUID(raw string) (uuid.UUID, error) {
	parsed, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid id format")
	}
	if parsed == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id must not be nil")
	}
	return parsed, nil
}

func ParseAccountID(raw string) (AccountID, error) {
	parsed, err := parseUUID(raw)
	if err != nil {
		return AccountID{}, err
	}
	return AccountID(parsed), nil
}

func ParseIssuerID(raw string) (IssuerID, error) {
	parsed, err := parseUUID(raw)
	if err != nil {
		return IssuerID{}, err
	}
	return IssuerID(parsed), nil
}

func ParseRequestID(raw string) (RequestID, error) {
	parsed, err := parseUUID(raw)
	if err != nil {
		return RequestID{}, err
	}
	return RequestID(parsed), nil
}

func ParseCertificateID(raw string) (CertificateID, error) {
	parsed, err := parseUUID(raw)
	if err != nil {
		return CertificateID{}, err
	}
	return CertificateID(parsed), nil
}

func ParseNotificationID(raw string) (NotificationID, error) {
	parsed, err := parseUUID(raw)
	if err != nil {
		return NotificationID{}, err
	}
	return NotificationID(parsed), nil
}
