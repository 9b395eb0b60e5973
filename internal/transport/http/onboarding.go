package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	id "certledger/pkg/domain"

	onboardingservice "certledger/internal/onboarding/service"
)

// OnboardingHandler serves institution signup and the operator review queue.
type OnboardingHandler struct {
	onboarding *onboardingservice.Service
	logger     *slog.Logger
}

func NewOnboardingHandler(onboarding *onboardingservice.Service, logger *slog.Logger) *OnboardingHandler {
	return &OnboardingHandler{onboarding: onboarding, logger: logger}
}

// Register mounts the public submission route.
func (h *OnboardingHandler) Register(r chi.Router) {
	r.Post("/onboarding", h.submit)
}

// RegisterAdmin mounts the operator review routes; the router gates them to
// ADMIN.
func (h *OnboardingHandler) RegisterAdmin(r chi.Router) {
	r.Get("/onboarding/pending", h.listPending)
	r.Get("/onboarding/{id}", h.get)
	r.Post("/onboarding/{id}/approve", h.approve)
	r.Post("/onboarding/{id}/reject", h.reject)
}

type submitRequest struct {
	InstitutionName string `json:"institution_name" validate:"required"`
	Email           string `json:"email" validate:"required,email"`
	Phone           string `json:"phone"`
	Address         string `json:"address"`
	DocumentPath    string `json:"document_path"`
	DocumentName    string `json:"document_name"`
}

func (h *OnboardingHandler) submit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if !decode(w, r, &req) {
		return
	}
	created, err := h.onboarding.Submit(r.Context(), onboardingservice.SubmitParams{
		InstitutionName: req.InstitutionName,
		Email:           req.Email,
		Phone:           req.Phone,
		Address:         req.Address,
		DocumentPath:    req.DocumentPath,
		DocumentName:    req.DocumentName,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *OnboardingHandler) listPending(w http.ResponseWriter, r *http.Request) {
	pending, err := h.onboarding.ListPending(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"requests": pending})
}

func (h *OnboardingHandler) get(w http.ResponseWriter, r *http.Request) {
	requestID, err := id.ParseRequestID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	req, err := h.onboarding.GetRequest(r.Context(), requestID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (h *OnboardingHandler) approve(w http.ResponseWriter, r *http.Request) {
	requestID, err := id.ParseRequestID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	approved, err := h.onboarding.Approve(r.Context(), requestID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, approved)
}

func (h *OnboardingHandler) reject(w http.ResponseWriter, r *http.Request) {
	requestID, err := id.ParseRequestID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	rejected, err := h.onboarding.Reject(r.Context(), requestID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rejected)
}
