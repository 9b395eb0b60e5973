package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	id "certledger/pkg/domain"
	dErrors "certledger/pkg/domain-errors"
	"certledger/pkg/platform/sentinel"
	txcontext "certledger/pkg/platform/tx"
	"certledger/pkg/requestcontext"

	"certledger/internal/events"
	identitymodels "certledger/internal/identity/models"
	identityservice "certledger/internal/identity/service"
	issuermodels "certledger/internal/issuer/models"
	onboardingmetrics "certledger/internal/onboarding/metrics"
	"certledger/internal/onboarding/models"
)

// RequestStore is the persistence contract for onboarding requests.
// Execute must hold the request exclusively across validate and mutate so
// concurrent decisions serialize.
type RequestStore interface {
	CreateIfNoPending(ctx context.Context, req *models.Request) error
	FindByID(ctx context.Context, requestID id.RequestID) (*models.Request, error)
	Execute(ctx context.Context, requestID id.RequestID,
		validate func(*models.Request) error, mutate func(*models.Request)) (*models.Request, error)
	ListPending(ctx context.Context) ([]*models.Request, error)
	CountPending(ctx context.Context) (int, error)
}

// Accounts is the slice of the identity service onboarding needs: duplicate
// detection on submit and account provisioning on approval.
type Accounts interface {
	FindByEmail(ctx context.Context, emailAddr string) (*identitymodels.Account, error)
	CreateAccount(ctx context.Context, params identityservice.CreateAccountParams) (*identitymodels.Account, error)
	DeleteAccount(ctx context.Context, accountID id.AccountID) error
}

// ProfileStore creates the issuer profile an approval provisions.
type ProfileStore interface {
	Create(ctx context.Context, profile *issuermodels.Profile) error
}

// Service implements the onboarding workflow: submission, operator review
// and the approve/reject decision.
type Service struct {
	requests RequestStore
	accounts Accounts
	profiles ProfileStore
	runner   txcontext.Runner
	events   events.Publisher
	logger   *slog.Logger
	metrics  *onboardingmetrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *onboardingmetrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithEvents(p events.Publisher) Option {
	return func(s *Service) { s.events = p }
}

func New(requests RequestStore, accounts Accounts, profiles ProfileStore, runner txcontext.Runner, opts ...Option) *Service {
	s := &Service{
		requests: requests,
		accounts: accounts,
		profiles: profiles,
		runner:   runner,
		events:   events.NoopPublisher{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SubmitParams carries a candidate issuer's signup input.
type SubmitParams struct {
	InstitutionName string
	Email           string
	Phone           string
	Address         string
	DocumentPath    string
	DocumentName    string
}

// Submit files a new PENDING onboarding request.
//
// Rejected up front when the email already belongs to an account; rejected
// with DuplicatePending when a PENDING request for the email exists. Both
// checks leave existing state untouched.
func (s *Service) Submit(ctx context.Context, params SubmitParams) (*models.Request, error) {
	req, err := models.NewRequest(id.NewRequestID(), params.InstitutionName, params.Email, requestcontext.Now(ctx))
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
			return nil, dErrors.New(dErrors.CodeValidation, err.Error())
		}
		return nil, err
	}
	req.Phone = params.Phone
	req.Address = params.Address
	req.DocumentPath = params.DocumentPath
	req.DocumentName = params.DocumentName

	if _, err := s.accounts.FindByEmail(ctx, req.Email); err == nil {
		return nil, dErrors.New(dErrors.CodeDuplicateEmail, "email already registered")
	} else if !dErrors.HasCode(err, dErrors.CodeNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check email availability")
	}

	if err := s.requests.CreateIfNoPending(ctx, req); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeDuplicatePending, "a pending request already exists for this email")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create onboarding request")
	}

	s.log(ctx, "onboarding request submitted", "request_id", req.ID.String(), "institution", req.InstitutionName)
	if s.metrics != nil {
		s.metrics.RequestsSubmitted.Inc()
	}
	s.publish(ctx, events.Event{
		Type:        events.TypeOnboardingSubmitted,
		AggregateID: req.ID.String(),
		OccurredAt:  req.CreatedAt,
		Attributes:  map[string]string{"institution": req.InstitutionName},
	})
	return req, nil
}

// Approve transitions a PENDING request to APPROVED and provisions the
// institution: an account whose first-login secret is the institution email,
// and an issuer profile bound to it.
//
// The decision transition runs first, so of two concurrent approvers exactly
// one wins and the loser gets AlreadyDecided. If account provisioning then
// fails on a duplicate email that appeared after submission, the request is
// reverted to PENDING and the caller gets DuplicateEmail; under a SQL runner
// the rollback makes the revert a no-op.
func (s *Service) Approve(ctx context.Context, requestID id.RequestID) (*models.Request, error) {
	actor := requestcontext.Actor(ctx)
	if actor.AccountID.IsNil() {
		return nil, dErrors.New(dErrors.CodeForbidden, "approval requires an authenticated operator")
	}
	now := requestcontext.Now(ctx)
	accountID := id.NewAccountID()

	var approved *models.Request
	err := s.runner.RunInTx(ctx, func(txCtx context.Context) error {
		req, err := s.requests.Execute(txCtx, requestID,
			validatePending,
			func(r *models.Request) { r.ApplyApproval(actor.AccountID, accountID, now) },
		)
		if err != nil {
			return err
		}

		if _, err := s.accounts.CreateAccount(txCtx, identityservice.CreateAccountParams{
			ID:     &accountID,
			Name:   req.InstitutionName,
			Email:  req.Email,
			Secret: req.Email,
			Role:   id.RoleInstitution,
		}); err != nil {
			if dErrors.HasCode(err, dErrors.CodeDuplicateEmail) {
				s.revert(txCtx, requestID, now)
				return dErrors.New(dErrors.CodeDuplicateEmail, "email was registered after the request was filed")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to create institution account")
		}

		profile, err := issuermodels.NewProfile(id.NewIssuerID(), accountID, req.InstitutionName, now)
		if err != nil {
			return err
		}
		profile.ContactNumber = req.Phone
		profile.Address = req.Address
		if err := s.profiles.Create(txCtx, profile); err != nil {
			s.revert(txCtx, requestID, now)
			if deleteErr := s.accounts.DeleteAccount(txCtx, accountID); deleteErr != nil {
				s.log(txCtx, "failed to clean up account after profile creation failure",
					"account_id", accountID.String(), "error", deleteErr.Error())
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to create issuer profile")
		}

		approved = req
		return nil
	})
	if err != nil {
		return nil, s.translateDecisionErr(err)
	}

	s.log(ctx, "onboarding request approved",
		"request_id", requestID.String(), "account_id", accountID.String(), "decided_by", actor.AccountID.String())
	if s.metrics != nil {
		s.metrics.Decisions.WithLabelValues("approved").Inc()
	}
	s.publish(ctx, events.Event{
		Type:        events.TypeOnboardingApproved,
		AggregateID: requestID.String(),
		OccurredAt:  now,
		Attributes:  map[string]string{"account_id": accountID.String()},
	})
	return approved, nil
}

// Reject transitions a PENDING request to REJECTED. No account is created;
// the email becomes free for a future request immediately.
func (s *Service) Reject(ctx context.Context, requestID id.RequestID) (*models.Request, error) {
	actor := requestcontext.Actor(ctx)
	if actor.AccountID.IsNil() {
		return nil, dErrors.New(dErrors.CodeForbidden, "rejection requires an authenticated operator")
	}
	now := requestcontext.Now(ctx)

	rejected, err := s.requests.Execute(ctx, requestID,
		validatePending,
		func(r *models.Request) { r.ApplyRejection(actor.AccountID, now) },
	)
	if err != nil {
		return nil, s.translateDecisionErr(err)
	}

	s.log(ctx, "onboarding request rejected",
		"request_id", requestID.String(), "decided_by", actor.AccountID.String())
	if s.metrics != nil {
		s.metrics.Decisions.WithLabelValues("rejected").Inc()
	}
	s.publish(ctx, events.Event{
		Type:        events.TypeOnboardingRejected,
		AggregateID: requestID.String(),
		OccurredAt:  now,
	})
	return rejected, nil
}

// GetRequest returns one request by id.
func (s *Service) GetRequest(ctx context.Context, requestID id.RequestID) (*models.Request, error) {
	req, err := s.requests.FindByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "onboarding request not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load onboarding request")
	}
	return req, nil
}

// ListPending returns the review queue, newest submissions first.
func (s *Service) ListPending(ctx context.Context) ([]*models.Request, error) {
	pending, err := s.requests.ListPending(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list pending requests")
	}
	return pending, nil
}

// CountPending returns the size of the review queue.
func (s *Service) CountPending(ctx context.Context) (int, error) {
	count, err := s.requests.CountPending(ctx)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to count pending requests")
	}
	return count, nil
}

func validatePending(r *models.Request) error {
	if err := r.CanDecide(); err != nil {
		return fmt.Errorf("request %s: %w", r.ID.String(), sentinel.ErrAlreadyDecided)
	}
	return nil
}

// revert is the compensation path for a failed approval. Under a SQL runner
// the enclosing rollback already undoes the transition, so a revert failure
// is only logged.
func (s *Service) revert(ctx context.Context, requestID id.RequestID, now time.Time) {
	_, err := s.requests.Execute(ctx, requestID,
		func(*models.Request) error { return nil },
		func(r *models.Request) { r.ApplyRevert(now) },
	)
	if err != nil {
		s.log(ctx, "failed to revert onboarding request", "request_id", requestID.String(), "error", err.Error())
	}
}

func (s *Service) translateDecisionErr(err error) error {
	switch {
	case errors.Is(err, sentinel.ErrAlreadyDecided):
		return dErrors.New(dErrors.CodeAlreadyDecided, "request is already decided")
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "onboarding request not found")
	}
	var domainErr *dErrors.Error
	if errors.As(err, &domainErr) {
		return err
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "failed to decide onboarding request")
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
