package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	id "certledger/pkg/domain"
	dErrors "certledger/pkg/domain-errors"
	emailpkg "certledger/pkg/email"
	"certledger/pkg/platform/sentinel"
	"certledger/pkg/requestcontext"

	"certledger/internal/events"
	"certledger/internal/issuance/attestor"
	issuancemetrics "certledger/internal/issuance/metrics"
	"certledger/internal/issuance/models"
	issuermodels "certledger/internal/issuer/models"
)

var tracer = otel.Tracer("certledger/issuance")

// DefaultAttestTimeout bounds the external attestation call when no explicit
// timeout is configured.
const DefaultAttestTimeout = 10 * time.Second

// CertificateStore is the persistence contract for certificates.
// SetAttestationID must be compare-and-set: it applies only while the
// attestation id is still unset.
type CertificateStore interface {
	Create(ctx context.Context, cert *models.Certificate) error
	FindByID(ctx context.Context, certID id.CertificateID) (*models.Certificate, error)
	SetAttestationID(ctx context.Context, certID id.CertificateID, ref string) error
	ListByIssuer(ctx context.Context, issuerID id.IssuerID) ([]*models.Certificate, error)
	ListByRecipientEmail(ctx context.Context, emailAddr string) ([]*models.Certificate, error)
	List(ctx context.Context, filter models.Filter) ([]*models.Certificate, int, error)
}

// ProfileFinder resolves the issuer profile that authorizes issuance.
type ProfileFinder interface {
	FindByAccountID(ctx context.Context, accountID id.AccountID) (*issuermodels.Profile, error)
}

// Notifier records the recipient-facing notification for an issued
// certificate.
type Notifier interface {
	NotifyIssued(ctx context.Context, recipientEmail, issuerName, subject string, certID id.CertificateID) error
}

// Service is the issuance engine: it authorizes the issuer, persists the
// certificate, requests the external attestation and triggers the recipient
// notification, with well-defined partial results when the later steps fail.
type Service struct {
	certs         CertificateStore
	profiles      ProfileFinder
	attestor      attestor.Attestor
	notifier      Notifier
	attestTimeout time.Duration
	events        events.Publisher
	logger        *slog.Logger
	metrics       *issuancemetrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *issuancemetrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithEvents(p events.Publisher) Option {
	return func(s *Service) { s.events = p }
}

// WithAttestTimeout overrides the engine-owned bound on the attestation call.
func WithAttestTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.attestTimeout = d
		}
	}
}

func New(certs CertificateStore, profiles ProfileFinder, att attestor.Attestor, notifier Notifier, opts ...Option) *Service {
	s := &Service{
		certs:         certs,
		profiles:      profiles,
		attestor:      att,
		notifier:      notifier,
		attestTimeout: DefaultAttestTimeout,
		events:        events.NoopPublisher{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IssueParams carries one issuance request. RecipientEmail is optional; when
// empty no notification is created. Template falls back to the default when
// not on the allowlist.
type IssueParams struct {
	RecipientName  string
	RecipientEmail string
	Subject        string
	TimePeriod     string
	ExtraContent   string
	Template       string
}

// IssueResult is the outcome of one issuance. Certificate is always set once
// persistence succeeded; AttestationErr and NotificationErr mark the partial
// failures of the later steps.
type IssueResult struct {
	Certificate     *models.Certificate
	AttestationErr  error
	NotificationErr error
}

// Degraded reports whether any secondary step failed.
func (r *IssueResult) Degraded() bool {
	return r.AttestationErr != nil || r.NotificationErr != nil
}

// Issue runs the issuance saga: authorize, persist, attest, notify.
//
// Authorization and validation failures reject before any mutation. Once the
// certificate row is written the operation cannot fail outright anymore:
// attestation and notification failures are reported on the result next to
// the created certificate. The certificate write uses a context detached
// from cancellation, so a client disconnect mid-call never loses the record.
func (s *Service) Issue(ctx context.Context, issuerAccountID id.AccountID, params IssueParams) (*IssueResult, error) {
	ctx, span := tracer.Start(ctx, "issuance.Issue")
	defer span.End()

	profile, err := s.profiles.FindByAccountID(ctx, issuerAccountID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNoIssuerProfile, "account has no issuer profile")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve issuer profile")
	}

	cert, err := models.NewCertificate(
		id.NewCertificateID(),
		profile.ID,
		profile.Name,
		params.RecipientName,
		params.RecipientEmail,
		params.Subject,
		requestcontext.Now(ctx),
	)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
			return nil, dErrors.New(dErrors.CodeValidation, err.Error())
		}
		return nil, err
	}
	cert.TimePeriod = params.TimePeriod
	cert.ExtraContent = params.ExtraContent
	cert.Template = models.ResolveTemplate(params.Template)
	span.SetAttributes(
		attribute.String("certificate.id", cert.ID.String()),
		attribute.String("issuer.id", profile.ID.String()),
	)

	// The record must survive the caller going away; everything from here on
	// runs detached from the request's cancellation.
	detached := context.WithoutCancel(ctx)
	if err := s.certs.Create(detached, cert); err != nil {
		span.SetStatus(codes.Error, "persist failed")
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to persist certificate")
	}

	result := &IssueResult{Certificate: cert}
	result.AttestationErr = s.attest(detached, cert)
	if cert.RecipientEmailSnapshot != "" {
		result.NotificationErr = s.notify(detached, cert)
	}

	outcome := "attested"
	if result.AttestationErr != nil {
		outcome = "unattested"
		span.SetStatus(codes.Error, "attestation failed")
	}
	if s.metrics != nil {
		s.metrics.CertificatesIssued.WithLabelValues(outcome).Inc()
	}
	s.log(ctx, "certificate issued",
		"certificate_id", cert.ID.String(),
		"issuer_id", profile.ID.String(),
		"attested", result.AttestationErr == nil)
	s.publish(detached, events.Event{
		Type:        events.TypeCertificateIssued,
		AggregateID: cert.ID.String(),
		OccurredAt:  cert.IssuedAt,
		Attributes: map[string]string{
			"issuer_id": profile.ID.String(),
			"outcome":   outcome,
		},
	})
	return result, nil
}

// attest calls the external collaborator under the engine-owned timeout and
// records the reference. Any failure leaves the certificate unattested
// (AttestationID nil) for an external reconciliation job to pick up.
func (s *Service) attest(ctx context.Context, cert *models.Certificate) error {
	ctx, span := tracer.Start(ctx, "issuance.attest",
		trace.WithAttributes(attribute.String("certificate.id", cert.ID.String())))
	defer span.End()

	attestCtx, cancel := context.WithTimeout(ctx, s.attestTimeout)
	defer cancel()

	start := time.Now()
	ref, err := s.attestor.Attest(attestCtx, attestor.Request{
		CertificateID:  cert.ID.String(),
		Subject:        cert.Subject,
		RecipientName:  cert.RecipientNameSnapshot,
		RecipientEmail: cert.RecipientEmailSnapshot,
	})
	if s.metrics != nil {
		s.metrics.AttestationSeconds.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		span.RecordError(err)
		s.log(ctx, "attestation failed", "certificate_id", cert.ID.String(), "error", err.Error())
		return dErrors.Wrap(err, dErrors.CodeAttestationFailed, "attestation failed")
	}

	if err := s.certs.SetAttestationID(ctx, cert.ID, ref); err != nil {
		span.RecordError(err)
		s.log(ctx, "failed to record attestation reference",
			"certificate_id", cert.ID.String(), "error", err.Error())
		return dErrors.Wrap(err, dErrors.CodeAttestationFailed, "failed to record attestation reference")
	}
	cert.AttestationID = &ref
	return nil
}

func (s *Service) notify(ctx context.Context, cert *models.Certificate) error {
	err := s.notifier.NotifyIssued(ctx,
		cert.RecipientEmailSnapshot, cert.IssuerNameSnapshot, cert.Subject, cert.ID)
	if err != nil {
		if s.metrics != nil {
			s.metrics.NotificationErrors.Inc()
		}
		s.log(ctx, "notification failed", "certificate_id", cert.ID.String(), "error", err.Error())
		return dErrors.Wrap(err, dErrors.CodeNotificationFailed, "failed to notify recipient")
	}
	return nil
}

// ListByIssuer returns the caller's issued certificates, newest first.
func (s *Service) ListByIssuer(ctx context.Context, issuerAccountID id.AccountID) ([]*models.Certificate, error) {
	profile, err := s.profiles.FindByAccountID(ctx, issuerAccountID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNoIssuerProfile, "account has no issuer profile")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve issuer profile")
	}
	certs, err := s.certs.ListByIssuer(ctx, profile.ID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list certificates")
	}
	return certs, nil
}

// ListByRecipientEmail returns certificates snapshotted to the email,
// case-insensitively, newest first.
func (s *Service) ListByRecipientEmail(ctx context.Context, emailAddr string) ([]*models.Certificate, error) {
	certs, err := s.certs.ListByRecipientEmail(ctx, emailpkg.Normalize(emailAddr))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list certificates")
	}
	return certs, nil
}

// GetByID returns one certificate. Deliberately unauthenticated: a
// certificate's existence is publicly verifiable.
func (s *Service) GetByID(ctx context.Context, certID id.CertificateID) (*models.Certificate, error) {
	cert, err := s.certs.FindByID(ctx, certID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "certificate not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load certificate")
	}
	return cert, nil
}

// List returns a filtered page of certificates plus the total match count.
func (s *Service) List(ctx context.Context, filter models.Filter) ([]*models.Certificate, int, error) {
	certs, total, err := s.certs.List(ctx, filter)
	if err != nil {
		return nil, 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list certificates")
	}
	return certs, total, nil
}

func (s *Service) publish(ctx context.Context, event events.Event) {
	if err := s.events.Publish(ctx, event); err != nil {
		s.log(ctx, "failed to publish lifecycle event", "event_type", event.Type, "error", err.Error())
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
