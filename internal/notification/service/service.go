package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	id "certledger/pkg/domain"
	dErrors "certledger/pkg/domain-errors"
	emailpkg "certledger/pkg/email"
	"certledger/pkg/platform/sentinel"
	"certledger/pkg/requestcontext"

	"certledger/internal/notification/cache"
	notificationmetrics "certledger/internal/notification/metrics"
	"certledger/internal/notification/models"
)

// List limits: client input is clamped server-side regardless of what was
// asked for.
const (
	DefaultListLimit = 50
	MaxListLimit     = 200
)

// NotificationStore is the persistence contract for the notification ledger.
type NotificationStore interface {
	Create(ctx context.Context, n *models.Notification) error
	MarkRead(ctx context.Context, notifID id.NotificationID, recipientEmail string, readAt time.Time) error
	MarkAllRead(ctx context.Context, recipientEmail string, readAt time.Time) (int, error)
	CountUnread(ctx context.Context, recipientEmail string) (int, error)
	ListByRecipient(ctx context.Context, recipientEmail string, limit int) ([]*models.Notification, error)
}

// Service implements the notification ledger: append on issuance, read-state
// transitions, and bounded reads.
type Service struct {
	store   NotificationStore
	unread  cache.UnreadCounts
	logger  *slog.Logger
	metrics *notificationmetrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *notificationmetrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithUnreadCache enables the per-recipient unread-count cache.
func WithUnreadCache(c cache.UnreadCounts) Option {
	return func(s *Service) { s.unread = c }
}

func New(store NotificationStore, opts ...Option) *Service {
	s := &Service{store: store}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NotifyIssued appends the certificate-issued notification for the
// recipient. Called by the issuance engine exactly once per issuance with a
// non-empty recipient email.
func (s *Service) NotifyIssued(ctx context.Context, recipientEmail, issuerName, subject string, certID id.CertificateID) error {
	n, err := models.NewCertificateIssued(
		id.NewNotificationID(), recipientEmail, issuerName, subject, certID, requestcontext.Now(ctx))
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
			return dErrors.New(dErrors.CodeValidation, err.Error())
		}
		return err
	}
	if err := s.store.Create(ctx, n); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to create notification")
	}
	s.invalidate(ctx, n.RecipientEmail)
	if s.metrics != nil {
		s.metrics.Created.Inc()
	}
	s.log(ctx, "notification created",
		"notification_id", n.ID.String(), "certificate_id", certID.String())
	return nil
}

// MarkRead marks one notification read for the calling recipient. An unknown
// id and a recipient mismatch both return NotFound: the ledger never reveals
// another recipient's entries.
func (s *Service) MarkRead(ctx context.Context, notifID id.NotificationID, recipientEmail string) error {
	normalized := emailpkg.Normalize(recipientEmail)
	err := s.store.MarkRead(ctx, notifID, normalized, requestcontext.Now(ctx))
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "notification not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to mark notification read")
	}
	s.invalidate(ctx, normalized)
	if s.metrics != nil {
		s.metrics.ReadMarks.WithLabelValues("single").Inc()
	}
	return nil
}

// MarkAllRead marks every unread notification for the recipient and returns
// the updated count. Idempotent: a second call reports zero.
func (s *Service) MarkAllRead(ctx context.Context, recipientEmail string) (int, error) {
	normalized := emailpkg.Normalize(recipientEmail)
	updated, err := s.store.MarkAllRead(ctx, normalized, requestcontext.Now(ctx))
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to mark notifications read")
	}
	if updated > 0 {
		s.invalidate(ctx, normalized)
	}
	if s.metrics != nil {
		s.metrics.ReadMarks.WithLabelValues("bulk").Inc()
	}
	return updated, nil
}

// UnreadCount returns the recipient's unread total, served from the cache
// when warm.
func (s *Service) UnreadCount(ctx context.Context, recipientEmail string) (int, error) {
	normalized := emailpkg.Normalize(recipientEmail)
	if s.unread != nil {
		if count, ok := s.unread.Get(ctx, normalized); ok {
			s.countCache("hit")
			return count, nil
		}
		s.countCache("miss")
	}
	count, err := s.store.CountUnread(ctx, normalized)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to count unread notifications")
	}
	if s.unread != nil {
		s.unread.Set(ctx, normalized, count)
	}
	return count, nil
}

// List returns the recipient's notifications, newest first. The limit is
// clamped to [1, MaxListLimit]; non-positive input gets the default.
func (s *Service) List(ctx context.Context, recipientEmail string, limit int) ([]*models.Notification, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	notifications, err := s.store.ListByRecipient(ctx, emailpkg.Normalize(recipientEmail), limit)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list notifications")
	}
	return notifications, nil
}

func (s *Service) invalidate(ctx context.Context, recipientEmail string) {
	if s.unread != nil {
		s.unread.Invalidate(ctx, recipientEmail)
	}
}

func (s *Service) countCache(result string) {
	if s.metrics != nil {
		s.metrics.CacheHits.WithLabelValues(result).Inc()
	}
}

func (s *Service) log(ctx context.Context, msg string, args ...any) {
	if s.logger == nil {
		return
	}
	if requestID := requestcontext.RequestID(ctx); requestID != "" {
		args = append(args, "request_id", requestID)
	}
	s.logger.InfoContext(ctx, msg, args...)
}
