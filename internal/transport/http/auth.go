package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	id "certledger/pkg/domain"
	dErrors "certledger/pkg/domain-errors"
	"certledger/pkg/requestcontext"
	"certledger/pkg/token"

	identityservice "certledger/internal/identity/service"
)

var validate = validator.New()

// AuthHandler serves signup, login and account self-service.
type AuthHandler struct {
	identity *identityservice.Service
	tokens   *token.Manager
	logger   *slog.Logger
}

func NewAuthHandler(identity *identityservice.Service, tokens *token.Manager, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{identity: identity, tokens: tokens, logger: logger}
}

// Register mounts the public auth routes.
func (h *AuthHandler) Register(r chi.Router) {
	r.Post("/auth/signup", h.signup)
	r.Post("/auth/login", h.login)
}

// RegisterAuthenticated mounts the self-service routes; the router wraps
// them in RequireAuth.
func (h *AuthHandler) RegisterAuthenticated(r chi.Router) {
	r.Get("/me", h.me)
	r.Patch("/me", h.updateProfile)
	r.Post("/me/secret", h.changeSecret)
	r.Delete("/me", h.deleteAccount)
	r.Get("/me/issuer-profile", h.issuerProfile)
	r.Patch("/me/issuer-profile", h.updateIssuerProfile)
}

type signupRequest struct {
	Name        string `json:"name" validate:"required"`
	Email       string `json:"email" validate:"required,email"`
	Secret      string `json:"secret" validate:"required,min=6"`
	DateOfBirth string `json:"date_of_birth" validate:"omitempty,datetime=2006-01-02"`
}

func (h *AuthHandler) signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if !decode(w, r, &req) {
		return
	}
	var dob *time.Time
	if req.DateOfBirth != "" {
		parsed, err := time.Parse("2006-01-02", req.DateOfBirth)
		if err != nil {
			writeError(w, dErrors.New(dErrors.CodeValidation, "date_of_birth must be YYYY-MM-DD"))
			return
		}
		dob = &parsed
	}
	account, err := h.identity.CreateAccount(r.Context(), identityservice.CreateAccountParams{
		Name:        req.Name,
		Email:       req.Email,
		Secret:      req.Secret,
		Role:        id.RoleStudent,
		DateOfBirth: dob,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, account)
}

type loginRequest struct {
	Email  string `json:"email" validate:"required,email"`
	Secret string `json:"secret" validate:"required"`
}

type loginResponse struct {
	Token   string `json:"token"`
	Account any    `json:"account"`
}

func (h *AuthHandler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decode(w, r, &req) {
		return
	}
	account, err := h.identity.Authenticate(r.Context(), req.Email, req.Secret)
	if err != nil {
		writeError(w, err)
		return
	}
	signed, err := h.tokens.Mint(account.ID, account.Email, account.Role, requestcontext.Now(r.Context()))
	if err != nil {
		writeError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to mint token"))
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{Token: signed, Account: account})
}

func (h *AuthHandler) me(w http.ResponseWriter, r *http.Request) {
	actor := requestcontext.Actor(r.Context())
	account, err := h.identity.GetAccount(r.Context(), actor.AccountID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

type updateProfileRequest struct {
	Name  *string `json:"name"`
	Email *string `json:"email" validate:"omitempty,email"`
}

func (h *AuthHandler) updateProfile(w http.ResponseWriter, r *http.Request) {
	var req updateProfileRequest
	if !decode(w, r, &req) {
		return
	}
	actor := requestcontext.Actor(r.Context())
	account, err := h.identity.UpdateProfile(r.Context(), actor.AccountID, identityservice.UpdateProfileParams{
		Name:  req.Name,
		Email: req.Email,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

type changeSecretRequest struct {
	Current string `json:"current" validate:"required"`
	Next    string `json:"next" validate:"required,min=6"`
}

func (h *AuthHandler) changeSecret(w http.ResponseWriter, r *http.Request) {
	var req changeSecretRequest
	if !decode(w, r, &req) {
		return
	}
	actor := requestcontext.Actor(r.Context())
	if err := h.identity.ChangeSecret(r.Context(), actor.AccountID, req.Current, req.Next); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) issuerProfile(w http.ResponseWriter, r *http.Request) {
	actor := requestcontext.Actor(r.Context())
	profile, err := h.identity.GetIssuerProfile(r.Context(), actor.AccountID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

type updateIssuerProfileRequest struct {
	Name          *string `json:"name"`
	ContactNumber *string `json:"contact_number"`
	Address       *string `json:"address"`
	LocationURL   *string `json:"location_url" validate:"omitempty,url"`
	LogoPath      *string `json:"logo_path"`
}

func (h *AuthHandler) updateIssuerProfile(w http.ResponseWriter, r *http.Request) {
	var req updateIssuerProfileRequest
	if !decode(w, r, &req) {
		return
	}
	actor := requestcontext.Actor(r.Context())
	profile, err := h.identity.UpdateIssuerProfile(r.Context(), actor.AccountID, identityservice.UpdateIssuerProfileParams{
		Name:          req.Name,
		ContactNumber: req.ContactNumber,
		Address:       req.Address,
		LocationURL:   req.LocationURL,
		LogoPath:      req.LogoPath,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (h *AuthHandler) deleteAccount(w http.ResponseWriter, r *http.Request) {
	actor := requestcontext.Actor(r.Context())
	if err := h.identity.DeleteAccount(r.Context(), actor.AccountID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// decode unmarshals and validates a JSON request body, writing the error
// response itself when the input is bad.
func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid request body"))
		return false
	}
	if err := validate.Struct(dst); err != nil {
		writeError(w, dErrors.New(dErrors.CodeValidation, err.Error()))
		return false
	}
	return true
}
