// Package attestor integrates the external attestation service: one call per
// issued certificate, returning an opaque reference that proves the record
// was registered on the append-only ledger.
package attestor

import (
	"context"
	"errors"
)

// Request is the idempotency-relevant payload for one attestation. The
// certificate id keys the call; the remaining fields describe the credential.
type Request struct {
	CertificateID  string `json:"certificate_id"`
	Subject        string `json:"subject"`
	RecipientName  string `json:"recipient_name"`
	RecipientEmail string `json:"recipient_email,omitempty"`
}

// Attestor submits certificate data for external attestation and returns the
// opaque reference. Implementations must respect ctx cancellation; the
// issuance engine owns the timeout.
type Attestor interface {
	Attest(ctx context.Context, req Request) (string, error)
}

// Disabled is used when no attestation endpoint is configured. Every call
// fails, so certificates are issued as partial results without a reference.
type Disabled struct{}

func (Disabled) Attest(context.Context, Request) (string, error) {
	return "", errors.New("attestation is not configured")
}
