package models

import (
	"fmt"
	"time"

	id "certledger/pkg/domain"
	dErrors "certledger/pkg/domain-errors"
	"certledger/pkg/email"
)

// TypeCertificateIssued is the only notification type currently produced.
const TypeCertificateIssued = "CERTIFICATE_ISSUED"

// Notification is one entry in a recipient's append-only inbox. Entries are
// addressed by email, reference a certificate, and are never deleted; the
// only mutation is the read-state transition.
type Notification struct {
	ID             id.NotificationID `json:"id"`
	RecipientEmail string            `json:"recipient_email"`
	Type           string            `json:"type"`
	Title          string            `json:"title"`
	Message        string            `json:"message"`
	CertificateID  id.CertificateID  `json:"certificate_id"`
	IsRead         bool              `json:"is_read"`
	ReadAt         *time.Time        `json:"read_at,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
}

// NewCertificateIssued builds the notification for a freshly issued
// certificate, templating the recipient-facing message.
func NewCertificateIssued(
	notifID id.NotificationID,
	recipientEmail, issuerName, subject string,
	certID id.CertificateID,
	now time.Time,
) (*Notification, error) {
	normalized := email.Normalize(recipientEmail)
	if normalized == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "recipient email cannot be empty")
	}
	if certID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "notification requires a certificate")
	}
	return &Notification{
		ID:             notifID,
		RecipientEmail: normalized,
		Type:           TypeCertificateIssued,
		Title:          "New certificate issued",
		Message:        fmt.Sprintf("%s issued you a certificate for %q.", issuerName, subject),
		CertificateID:  certID,
		CreatedAt:      now,
	}, nil
}

// ApplyRead marks the notification read. Idempotent: the first transition
// stamps ReadAt, later calls leave it untouched.
func (n *Notification) ApplyRead(now time.Time) {
	if n.IsRead {
		return
	}
	n.IsRead = true
	n.ReadAt = &now
}
