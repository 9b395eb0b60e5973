package http

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	id "certledger/pkg/domain"
	"certledger/pkg/requestcontext"

	notificationservice "certledger/internal/notification/service"
)

// NotificationHandler serves the caller's notification inbox. The recipient
// is always the authenticated caller's email; there is no way to address
// another inbox.
type NotificationHandler struct {
	notifications *notificationservice.Service
	logger        *slog.Logger
}

func NewNotificationHandler(notifications *notificationservice.Service, logger *slog.Logger) *NotificationHandler {
	return &NotificationHandler{notifications: notifications, logger: logger}
}

// RegisterAuthenticated mounts the inbox routes; the router wraps them in
// RequireAuth.
func (h *NotificationHandler) RegisterAuthenticated(r chi.Router) {
	r.Get("/notifications", h.list)
	r.Get("/notifications/unread-count", h.unreadCount)
	r.Post("/notifications/{id}/read", h.markRead)
	r.Post("/notifications/read-all", h.markAllRead)
}

func (h *NotificationHandler) list(w http.ResponseWriter, r *http.Request) {
	actor := requestcontext.Actor(r.Context())
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	notifications, err := h.notifications.List(r.Context(), actor.Email, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"notifications": notifications})
}

func (h *NotificationHandler) unreadCount(w http.ResponseWriter, r *http.Request) {
	actor := requestcontext.Actor(r.Context())
	count, err := h.notifications.UnreadCount(r.Context(), actor.Email)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"unread_count": count})
}

func (h *NotificationHandler) markRead(w http.ResponseWriter, r *http.Request) {
	notifID, err := id.ParseNotificationID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	actor := requestcontext.Actor(r.Context())
	if err := h.notifications.MarkRead(r.Context(), notifID, actor.Email); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *NotificationHandler) markAllRead(w http.ResponseWriter, r *http.Request) {
	actor := requestcontext.Actor(r.Context())
	updated, err := h.notifications.MarkAllRead(r.Context(), actor.Email)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"updated": updated})
}
