package http

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	id "certledger/pkg/domain"
	dErrors "certledger/pkg/domain-errors"
	"certledger/pkg/requestcontext"
	"certledger/pkg/token"
)

// RequestMetadata stamps every request with a correlation id and a fixed
// request time, both readable downstream through requestcontext.
func RequestMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-Id")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		ctx := requestcontext.WithRequestID(r.Context(), requestID)
		ctx = requestcontext.WithTime(ctx, time.Now())
		w.Header().Set("X-Request-Id", requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAuth validates the bearer token and injects the caller identity.
func RequireAuth(tokens *token.Manager, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || raw == "" {
				writeError(w, dErrors.New(dErrors.CodeInvalidCredentials, "missing bearer token"))
				return
			}

			claims, err := tokens.Verify(raw)
			if err != nil {
				logger.WarnContext(r.Context(), "rejected invalid token",
					"request_id", requestcontext.RequestID(r.Context()))
				writeError(w, err)
				return
			}

			accountID, err := id.ParseAccountID(claims.AccountID)
			if err != nil {
				writeError(w, dErrors.New(dErrors.CodeInvalidCredentials, "invalid token"))
				return
			}
			role, err := id.ParseRole(claims.Role)
			if err != nil {
				writeError(w, dErrors.New(dErrors.CodeInvalidCredentials, "invalid token"))
				return
			}

			ctx := requestcontext.WithActor(r.Context(), requestcontext.Identity{
				AccountID: accountID,
				Email:     claims.Email,
				Role:      role,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole gates a subtree to callers holding one of the given roles.
// Must run inside RequireAuth.
func RequireRole(roles ...id.Role) func(http.Handler) http.Handler {
	allowed := make(map[id.Role]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor := requestcontext.Actor(r.Context())
			if _, ok := allowed[actor.Role]; !ok {
				writeError(w, dErrors.New(dErrors.CodeForbidden, "insufficient role"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
