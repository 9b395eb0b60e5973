package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	id "certledger/pkg/domain"
	"certledger/pkg/requestcontext"

	"certledger/internal/issuance/models"
	issuanceservice "certledger/internal/issuance/service"
)

// CertificateHandler serves issuance and certificate lookup.
type CertificateHandler struct {
	issuance *issuanceservice.Service
	logger   *slog.Logger
}

func NewCertificateHandler(issuance *issuanceservice.Service, logger *slog.Logger) *CertificateHandler {
	return &CertificateHandler{issuance: issuance, logger: logger}
}

// Register mounts the public verification route.
func (h *CertificateHandler) Register(r chi.Router) {
	r.Get("/certificates/{id}", h.get)
}

// RegisterAuthenticated mounts the issuer and recipient routes; the router
// wraps them in RequireAuth.
func (h *CertificateHandler) RegisterAuthenticated(r chi.Router) {
	r.Post("/certificates", h.issue)
	r.Get("/certificates", h.listByIssuer)
	r.Get("/certificates/recipient", h.listByRecipient)
}

type issueRequest struct {
	RecipientName  string `json:"recipient_name" validate:"required"`
	RecipientEmail string `json:"recipient_email" validate:"omitempty,email"`
	Subject        string `json:"subject" validate:"required"`
	TimePeriod     string `json:"time_period"`
	ExtraContent   string `json:"extra_content"`
	Template       string `json:"template"`
}

type issueResponse struct {
	Certificate       *models.Certificate `json:"certificate"`
	AttestationError  string              `json:"attestation_error,omitempty"`
	NotificationError string              `json:"notification_error,omitempty"`
}

// issue creates a certificate. The response is 201 even when attestation or
// notification failed: the credential exists, and the degraded legs are
// reported next to it.
func (h *CertificateHandler) issue(w http.ResponseWriter, r *http.Request) {
	var req issueRequest
	if !decode(w, r, &req) {
		return
	}
	actor := requestcontext.Actor(r.Context())
	result, err := h.issuance.Issue(r.Context(), actor.AccountID, issuanceservice.IssueParams{
		RecipientName:  req.RecipientName,
		RecipientEmail: req.RecipientEmail,
		Subject:        req.Subject,
		TimePeriod:     req.TimePeriod,
		ExtraContent:   req.ExtraContent,
		Template:       req.Template,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	resp := issueResponse{Certificate: result.Certificate}
	if result.AttestationErr != nil {
		resp.AttestationError = result.AttestationErr.Error()
	}
	if result.NotificationErr != nil {
		resp.NotificationError = result.NotificationErr.Error()
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (h *CertificateHandler) listByIssuer(w http.ResponseWriter, r *http.Request) {
	actor := requestcontext.Actor(r.Context())
	certs, err := h.issuance.ListByIssuer(r.Context(), actor.AccountID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"certificates": certs})
}

func (h *CertificateHandler) listByRecipient(w http.ResponseWriter, r *http.Request) {
	actor := requestcontext.Actor(r.Context())
	certs, err := h.issuance.ListByRecipientEmail(r.Context(), actor.Email)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"certificates": certs})
}

func (h *CertificateHandler) get(w http.ResponseWriter, r *http.Request) {
	certID, err := id.ParseCertificateID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	cert, err := h.issuance.GetByID(r.Context(), certID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cert)
}
