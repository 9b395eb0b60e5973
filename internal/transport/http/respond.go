package http

import (
	"encoding/json"
	"errors"
	"net/http"

	dErrors "certledger/pkg/domain-errors"
)

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

// writeError maps a coded domain error onto an HTTP status. Unknown errors
// collapse to a generic 500 so internals never leak to clients.
func writeError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	status := statusFor(code)
	message := "internal server error"
	if status != http.StatusInternalServerError {
		var domainErr *dErrors.Error
		if errors.As(err, &domainErr) {
			message = domainErr.Message
		}
	}
	writeJSON(w, status, errorBody{Error: string(code), Message: message})
}

func statusFor(code dErrors.Code) int {
	switch code {
	case dErrors.CodeInvalidInput, dErrors.CodeValidation:
		return http.StatusBadRequest
	case dErrors.CodeInvalidCredentials:
		return http.StatusUnauthorized
	case dErrors.CodeBanned, dErrors.CodeForbidden, dErrors.CodeNoIssuerProfile:
		return http.StatusForbidden
	case dErrors.CodeNotFound:
		return http.StatusNotFound
	case dErrors.CodeDuplicateEmail, dErrors.CodeDuplicatePending, dErrors.CodeAlreadyDecided,
		dErrors.CodeConflict, dErrors.CodeHasIssuedCertificates:
		return http.StatusConflict
	case dErrors.CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
