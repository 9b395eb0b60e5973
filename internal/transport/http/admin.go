package http

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	id "certledger/pkg/domain"
	dErrors "certledger/pkg/domain-errors"

	adminservice "certledger/internal/admin/service"
	identitymodels "certledger/internal/identity/models"
	issuancemodels "certledger/internal/issuance/models"
)

// AdminHandler serves the read-only admin surface plus delegated role/ban
// actions.
type AdminHandler struct {
	admin  *adminservice.Service
	logger *slog.Logger
}

func NewAdminHandler(admin *adminservice.Service, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{admin: admin, logger: logger}
}

// RegisterAdmin mounts the admin routes; the router gates them to ADMIN.
func (h *AdminHandler) RegisterAdmin(r chi.Router) {
	r.Get("/accounts", h.listAccounts)
	r.Get("/issuers", h.listIssuers)
	r.Get("/certificates", h.listCertificates)
	r.Get("/stats", h.stats)
	r.Post("/accounts/{id}/role", h.setRole)
	r.Post("/accounts/{id}/ban", h.setBanned)
}

func (h *AdminHandler) listAccounts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := identitymodels.AccountFilter{
		Query:  q.Get("q"),
		Limit:  intParam(q.Get("limit")),
		Offset: intParam(q.Get("offset")),
	}
	if raw := q.Get("role"); raw != "" {
		role, err := id.ParseRole(raw)
		if err != nil {
			writeError(w, err)
			return
		}
		filter.Role = role
	}

	page, err := h.admin.ListAccounts(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"accounts": page.Accounts, "total": page.Total})
}

func (h *AdminHandler) listIssuers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	overviews, err := h.admin.ListIssuers(r.Context(), q.Get("q"), intParam(q.Get("limit")))
	if err != nil {
		writeError(w, err)
		return
	}

	type issuerItem struct {
		Profile any    `json:"profile"`
		Email   string `json:"email"`
		Banned  bool   `json:"banned"`
	}
	items := make([]issuerItem, 0, len(overviews))
	for _, o := range overviews {
		items = append(items, issuerItem{Profile: o.Profile, Email: o.Email, Banned: o.Banned})
	}
	writeJSON(w, http.StatusOK, map[string]any{"issuers": items})
}

func (h *AdminHandler) listCertificates(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := issuancemodels.Filter{
		Query:  q.Get("q"),
		Limit:  intParam(q.Get("limit")),
		Offset: intParam(q.Get("offset")),
	}
	if raw := q.Get("issuer_id"); raw != "" {
		issuerID, err := id.ParseIssuerID(raw)
		if err != nil {
			writeError(w, err)
			return
		}
		filter.IssuerID = &issuerID
	}
	var err error
	if filter.IssuedFrom, err = timeParam(q.Get("from")); err != nil {
		writeError(w, err)
		return
	}
	if filter.IssuedTo, err = timeParam(q.Get("to")); err != nil {
		writeError(w, err)
		return
	}

	page, err := h.admin.ListCertificates(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"certificates": page.Certificates, "total": page.Total})
}

func (h *AdminHandler) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.admin.Stats(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

type setRoleRequest struct {
	Role string `json:"role" validate:"required"`
}

func (h *AdminHandler) setRole(w http.ResponseWriter, r *http.Request) {
	accountID, err := id.ParseAccountID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	var req setRoleRequest
	if !decode(w, r, &req) {
		return
	}
	role, err := id.ParseRole(req.Role)
	if err != nil {
		writeError(w, err)
		return
	}
	account, err := h.admin.SetRole(r.Context(), accountID, role)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

type setBannedRequest struct {
	Banned bool `json:"banned"`
}

func (h *AdminHandler) setBanned(w http.ResponseWriter, r *http.Request) {
	accountID, err := id.ParseAccountID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	var req setBannedRequest
	if !decode(w, r, &req) {
		return
	}
	account, err := h.admin.SetBanned(r.Context(), accountID, req.Banned)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

func intParam(raw string) int {
	n, _ := strconv.Atoi(raw)
	return n
}

func timeParam(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "timestamps must be RFC 3339")
	}
	return &t, nil
}
