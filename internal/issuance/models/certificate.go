package models

import (
	"strings"
	"time"

	id "certledger/pkg/domain"
	dErrors "certledger/pkg/domain-errors"
	"certledger/pkg/email"
)

// TemplateClassic is the only template currently shipped. Unknown template
// names fall back to it rather than failing the issuance.
const TemplateClassic = "classic"

var validTemplates = map[string]struct{}{
	TemplateClassic: {},
}

// ResolveTemplate returns the requested template when it is on the allowlist,
// the default otherwise.
func ResolveTemplate(requested string) string {
	requested = strings.TrimSpace(requested)
	if _, ok := validTemplates[requested]; ok {
		return requested
	}
	return TemplateClassic
}

// Certificate is an issued credential.
//
// Issuer and recipient identity are captured as snapshots at issuance time,
// deliberately decoupled from later profile edits. The recipient is addressed
// by email string, not an account reference: a certificate can be issued to
// an email with no account, and account changes never orphan the record.
//
// AttestationID starts nil and is filled in once after a successful
// attestation call. It is the only field mutated after creation.
type Certificate struct {
	ID                     id.CertificateID `json:"id"`
	IssuerID               id.IssuerID      `json:"issuer_id"`
	IssuerNameSnapshot     string           `json:"issuer_name_snapshot"`
	RecipientNameSnapshot  string           `json:"recipient_name_snapshot"`
	RecipientEmailSnapshot string           `json:"recipient_email_snapshot,omitempty"`
	Subject                string           `json:"subject"`
	TimePeriod             string           `json:"time_period,omitempty"`
	ExtraContent           string           `json:"extra_content,omitempty"`
	Template               string           `json:"template"`
	CertificateCode        string           `json:"certificate_code"`
	AttestationID          *string          `json:"attestation_id,omitempty"`
	IssuedAt               time.Time        `json:"issued_at"`
}

// NewCertificate constructs a validated, not-yet-attested certificate. The
// issuer name snapshot is taken from the issuer profile as it stands now; the
// recipient email is normalized before snapshotting.
func NewCertificate(
	certID id.CertificateID,
	issuerID id.IssuerID,
	issuerName, recipientName, recipientEmail, subject string,
	now time.Time,
) (*Certificate, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "subject cannot be empty")
	}
	recipientName = strings.TrimSpace(recipientName)
	if recipientName == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "recipient name cannot be empty")
	}
	if issuerID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "certificate requires an issuer")
	}
	return &Certificate{
		ID:                     certID,
		IssuerID:               issuerID,
		IssuerNameSnapshot:     strings.TrimSpace(issuerName),
		RecipientNameSnapshot:  recipientName,
		RecipientEmailSnapshot: email.Normalize(recipientEmail),
		Subject:                subject,
		Template:               TemplateClassic,
		CertificateCode:        NewCertificateCode(),
		IssuedAt:               now,
	}, nil
}

// Attested reports whether the external attestation reference is recorded.
func (c *Certificate) Attested() bool {
	return c.AttestationID != nil
}

// Filter narrows admin certificate listings. Zero values mean "no filter".
type Filter struct {
	// Query is a case-insensitive substring match across subject and the
	// issuer/recipient snapshots.
	Query    string
	IssuerID *id.IssuerID
	// IssuedFrom/IssuedTo bound the issuance timestamp, inclusive.
	IssuedFrom *time.Time
	IssuedTo   *time.Time
	Limit      int
	Offset     int
}
