package service

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/sync/errgroup"

	id "certledger/pkg/domain"
	dErrors "certledger/pkg/domain-errors"
	"certledger/pkg/platform/sentinel"
	"certledger/pkg/requestcontext"

	identitymodels "certledger/internal/identity/models"
	issuancemodels "certledger/internal/issuance/models"
	issuermodels "certledger/internal/issuer/models"
)

// MaxPageSize caps every admin listing regardless of client input.
const MaxPageSize = 100

// AccountReader is the read-side slice of the account store.
type AccountReader interface {
	FindByID(ctx context.Context, accountID id.AccountID) (*identitymodels.Account, error)
	List(ctx context.Context, filter identitymodels.AccountFilter) ([]*identitymodels.Account, int, error)
	Count(ctx context.Context) (int, error)
	CountByRole(ctx context.Context) (map[id.Role]int, error)
}

// ProfileReader is the read-side slice of the issuer profile store.
type ProfileReader interface {
	List(ctx context.Context, query string, limit int) ([]*issuermodels.Profile, error)
}

// CertificateReader is the read-side slice of the certificate store.
type CertificateReader interface {
	List(ctx context.Context, filter issuancemodels.Filter) ([]*issuancemodels.Certificate, int, error)
	Count(ctx context.Context) (int, error)
}

// OnboardingCounter reports the pending review queue size.
type OnboardingCounter interface {
	CountPending(ctx context.Context) (int, error)
}

// AccountAdmin is the mutation surface admin delegates to the identity
// service. Role change and ban/unban are the only mutations this module
// performs, and never directly.
type AccountAdmin interface {
	SetRole(ctx context.Context, accountID id.AccountID, role id.Role) (*identitymodels.Account, error)
	SetBanned(ctx context.Context, accountID id.AccountID, banned bool) (*identitymodels.Account, error)
}

// Service is the read-only admin query surface over every other module,
// plus delegated role/ban actions.
type Service struct {
	accounts   AccountReader
	profiles   ProfileReader
	certs      CertificateReader
	onboarding OnboardingCounter
	identity   AccountAdmin
	logger     *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func New(accounts AccountReader, profiles ProfileReader, certs CertificateReader,
	onboarding OnboardingCounter, identity AccountAdmin, opts ...Option) *Service {
	s := &Service{
		accounts:   accounts,
		profiles:   profiles,
		certs:      certs,
		onboarding: onboarding,
		identity:   identity,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AccountPage is one page of accounts plus the total match count.
type AccountPage struct {
	Accounts []*identitymodels.Account
	Total    int
}

// ListAccounts returns a filtered account page, capped at MaxPageSize.
func (s *Service) ListAccounts(ctx context.Context, filter identitymodels.AccountFilter) (*AccountPage, error) {
	filter.Limit = clampLimit(filter.Limit)
	accounts, total, err := s.accounts.List(ctx, filter)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list accounts")
	}
	return &AccountPage{Accounts: accounts, Total: total}, nil
}

// IssuerOverview joins an issuer profile with its owning account.
type IssuerOverview struct {
	Profile *issuermodels.Profile
	Email   string
	Banned  bool
}

// ListIssuers returns issuer profiles joined to their accounts. A profile
// whose account has gone missing is skipped rather than failing the listing.
func (s *Service) ListIssuers(ctx context.Context, query string, limit int) ([]*IssuerOverview, error) {
	profiles, err := s.profiles.List(ctx, query, clampLimit(limit))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list issuer profiles")
	}

	overviews := make([]*IssuerOverview, 0, len(profiles))
	for _, profile := range profiles {
		account, err := s.accounts.FindByID(ctx, profile.AccountID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				s.log(ctx, "issuer profile without account skipped", "issuer_id", profile.ID.String())
				continue
			}
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load issuer account")
		}
		overviews = append(overviews, &IssuerOverview{
			Profile: profile,
			Email:   account.Email,
			Banned:  account.Banned,
		})
	}
	return overviews, nil
}

// CertificatePage is one page of certificates plus the total match count.
type CertificatePage struct {
	Certificates []*issuancemodels.Certificate
	Total        int
}

// ListCertificates returns a filtered certificate page, capped at
// MaxPageSize.
func (s *Service) ListCertificates(ctx context.Context, filter issuancemodels.Filter) (*CertificatePage, error) {
	filter.Limit = clampLimit(filter.Limit)
	certs, total, err := s.certs.List(ctx, filter)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list certificates")
	}
	return &CertificatePage{Certificates: certs, Total: total}, nil
}

// Stats is the admin dashboard aggregate.
type Stats struct {
	TotalAccounts          int             `json:"total_accounts"`
	TotalByRole            map[id.Role]int `json:"total_by_role"`
	TotalCertificates      int             `json:"total_certificates"`
	PendingOnboardingCount int             `json:"pending_onboarding_count"`
}

// Stats gathers the aggregate counts, fanning the four reads out
// concurrently.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	var stats Stats
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		total, err := s.accounts.Count(gctx)
		stats.TotalAccounts = total
		return err
	})
	g.Go(func() error {
		byRole, err := s.accounts.CountByRole(gctx)
		stats.TotalByRole = byRole
		return err
	})
	g.Go(func() error {
		total, err := s.certs.Count(gctx)
		stats.TotalCertificates = total
		return err
	})
	g.Go(func() error {
		pending, err := s.onboarding.CountPending(gctx)
		stats.PendingOnboardingCount = pending
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to gather stats")
	}
	return &stats, nil
}

// SetRole delegates a role change to the identity service.
func (s *Service) SetRole(ctx context.Context, accountID id.AccountID, role id.Role) (*identitymodels.Account, error) {
	return s.identity.SetRole(ctx, accountID, role)
}

// SetBanned delegates a ban/unban to the identity service.
func (s *Service) SetBanned(ctx context.Context, accountID id.AccountID, banned bool) (*identitymodels.Account, error) {
	return s.identity.SetBanned(ctx, accountID, banned)
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > MaxPageSize {
		return MaxPageSize
	}
	return limit
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
