// Package http wires the service layer onto a chi router. Handlers decode
// and validate input, call one service method, and translate coded errors to
// HTTP statuses; no business rule lives here.
package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	id "certledger/pkg/domain"
	"certledger/pkg/token"
)

// Handlers bundles the per-domain handlers the router mounts.
type Handlers struct {
	Auth          *AuthHandler
	Onboarding    *OnboardingHandler
	Certificates  *CertificateHandler
	Notifications *NotificationHandler
	Admin         *AdminHandler
}

// NewRouter assembles the full route tree: public endpoints, authenticated
// self-service, and the ADMIN-gated review and query surface.
func NewRouter(h Handlers, tokens *token.Manager, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(RequestMetadata)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		// Public: signup, login, onboarding submission, certificate
		// verification.
		h.Auth.Register(r)
		h.Onboarding.Register(r)
		h.Certificates.Register(r)

		r.Group(func(r chi.Router) {
			r.Use(RequireAuth(tokens, logger))
			h.Auth.RegisterAuthenticated(r)
			h.Certificates.RegisterAuthenticated(r)
			h.Notifications.RegisterAuthenticated(r)

			r.Group(func(r chi.Router) {
				r.Use(RequireRole(id.RoleAdmin))
				h.Onboarding.RegisterAdmin(r)
				r.Route("/admin", func(r chi.Router) {
					h.Admin.RegisterAdmin(r)
				})
			})
		})
	})

	return r
}
