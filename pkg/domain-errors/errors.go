// Package domainerrors provides coded errors for the service layer.
//
// Services translate store sentinels and collaborator failures into coded
// errors; the transport layer maps codes onto HTTP statuses. Codes are part
// of the API contract: callers branch on them with HasCode, never on error
// message text.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code classifies a domain error.
type Code string

const (
	// Validation and lookup failures. Rejected before any mutation.
	CodeInvalidInput Code = "invalid_input"
	CodeValidation   Code = "validation"
	CodeNotFound     Code = "not_found"

	// Identity failures.
	CodeDuplicateEmail     Code = "duplicate_email"
	CodeInvalidCredentials Code = "invalid_credentials"
	CodeBanned             Code = "banned"

	// Onboarding failures.
	CodeDuplicatePending Code = "duplicate_pending"
	CodeAlreadyDecided   Code = "already_decided"

	// Issuance failures.
	CodeNoIssuerProfile       Code = "no_issuer_profile"
	CodeHasIssuedCertificates Code = "has_issued_certificates"
	// CodeAttestationFailed and CodeNotificationFailed classify the degraded
	// legs of a partial issuance result. The certificate itself persisted.
	CodeAttestationFailed  Code = "attestation_failed"
	CodeNotificationFailed Code = "notification_failed"

	CodeTimeout            Code = "timeout"
	CodeConflict           Code = "conflict"
	CodeForbidden          Code = "forbidden"
	CodeInvariantViolation Code = "invariant_violation"
	CodeInternal           Code = "internal"
)

// Error is a coded error with an optional wrapped cause.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// New constructs a coded error without a cause.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Newf constructs a coded error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying cause. The cause stays
// reachable through errors.Is/As for callers that need the raw failure.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, Err: err}
}

// HasCode reports whether err or anything it wraps carries the given code.
func HasCode(err error, code Code) bool {
	var coded *Error
	for errors.As(err, &coded) {
		if coded.Code == code {
			return true
		}
		err = coded.Err
		coded = nil
	}
	return false
}

// CodeOf returns the outermost code carried by err, or CodeInternal when the
// error is uncoded.
func CodeOf(err error) Code {
	var coded *Error
	if errors.As(err, &coded) {
		return coded.Code
	}
	return CodeInternal
}
