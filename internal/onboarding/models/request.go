package models

import (
	"strings"
	"time"

	id "certledger/pkg/domain"
	dErrors "certledger/pkg/domain-errors"
	"certledger/pkg/email"
)

// Status is the onboarding request state machine. PENDING is initial;
// APPROVED and REJECTED are terminal.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
	StatusRejected Status = "REJECTED"
)

// Request is a candidate issuer signup awaiting an operator decision.
//
// Invariants:
//   - Email is stored normalized and must not collide with an account email
//   - At most one PENDING request per email at a time
//   - The status transitions exactly once, from PENDING to a terminal state;
//     the record is immutable afterward
type Request struct {
	ID              id.RequestID `json:"id"`
	InstitutionName string       `json:"institution_name"`
	Email           string       `json:"email"`
	Phone           string       `json:"phone"`
	Address         string       `json:"address"`
	// DocumentPath and DocumentName reference the uploaded verification
	// document in the external document store; only the reference is kept.
	DocumentPath string `json:"document_path,omitempty"`
	DocumentName string `json:"document_name,omitempty"`
	Status       Status `json:"status"`
	// Decision metadata, stamped exactly once.
	DecidedBy *id.AccountID `json:"decided_by,omitempty"`
	DecidedAt *time.Time    `json:"decided_at,omitempty"`
	// CreatedAccountID links an APPROVED request to the account it produced.
	CreatedAccountID *id.AccountID `json:"created_account_id,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

// NewRequest constructs a validated PENDING request.
func NewRequest(requestID id.RequestID, institutionName, emailAddr string, now time.Time) (*Request, error) {
	institutionName = strings.TrimSpace(institutionName)
	if institutionName == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "institution name cannot be empty")
	}
	normalized := email.Normalize(emailAddr)
	if normalized == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "institution email cannot be empty")
	}
	return &Request{
		ID:              requestID,
		InstitutionName: institutionName,
		Email:           normalized,
		Status:          StatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// CanDecide checks the request is still PENDING.
// Use with ApplyApproval/ApplyRejection in Execute callbacks; the store
// holds the lock across validation and mutation.
func (r *Request) CanDecide() error {
	if r.Status != StatusPending {
		return dErrors.New(dErrors.CodeInvariantViolation, "request is already decided")
	}
	return nil
}

// ApplyApproval transitions the request to APPROVED, stamping the actor,
// the decision time and the account the approval created.
func (r *Request) ApplyApproval(actorID, createdAccountID id.AccountID, now time.Time) {
	r.Status = StatusApproved
	r.DecidedBy = &actorID
	r.DecidedAt = &now
	r.CreatedAccountID = &createdAccountID
	r.UpdatedAt = now
}

// ApplyRejection transitions the request to REJECTED with actor and time
// stamped. No account is created.
func (r *Request) ApplyRejection(actorID id.AccountID, now time.Time) {
	r.Status = StatusRejected
	r.DecidedBy = &actorID
	r.DecidedAt = &now
	r.UpdatedAt = now
}

// ApplyRevert returns an APPROVED request to PENDING. Used only as a
// compensation when account creation failed after the decision transition;
// under a SQL transaction the rollback makes it a no-op.
func (r *Request) ApplyRevert(now time.Time) {
	r.Status = StatusPending
	r.DecidedBy = nil
	r.DecidedAt = nil
	r.CreatedAccountID = nil
	r.UpdatedAt = now
}
