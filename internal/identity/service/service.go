package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	id "certledger/pkg/domain"
	dErrors "certledger/pkg/domain-errors"
	emailpkg "certledger/pkg/email"
	"certledger/pkg/platform/sentinel"
	"certledger/pkg/requestcontext"
	"certledger/pkg/secrets"

	identitymetrics "certledger/internal/identity/metrics"
	"certledger/internal/identity/models"
	issuermodels "certledger/internal/issuer/models"
)

// AccountStore is the persistence contract for accounts. Implementations
// return sentinel errors; the service translates them into coded errors.
type AccountStore interface {
	CreateIfEmailAvailable(ctx context.Context, account *models.Account) error
	FindByID(ctx context.Context, accountID id.AccountID) (*models.Account, error)
	FindByEmail(ctx context.Context, emailAddr string) (*models.Account, error)
	Update(ctx context.Context, account *models.Account) error
	Delete(ctx context.Context, accountID id.AccountID) error
}

// IssuerProfileStore is the slice of the issuer store the identity service
// needs for issuer self-service and deletion safety.
type IssuerProfileStore interface {
	FindByAccountID(ctx context.Context, accountID id.AccountID) (*issuermodels.Profile, error)
	Update(ctx context.Context, profile *issuermodels.Profile) error
	DeleteByAccountID(ctx context.Context, accountID id.AccountID) error
}

// CertificateCounter answers how many certificates reference an issuer
// profile. Deletion of an issuing account is forbidden while the count is
// non-zero.
type CertificateCounter interface {
	CountByIssuer(ctx context.Context, issuerID id.IssuerID) (int, error)
}

// Hasher abstracts credential hashing. The default adapter delegates to
// pkg/secrets; tests may swap in a cheaper implementation.
type Hasher interface {
	Hash(secret string) (string, error)
	Compare(hash, secret string) error
}

type secretsHasher struct{}

func (secretsHasher) Hash(secret string) (string, error) { return secrets.Hash(secret) }
func (secretsHasher) Compare(hash, secret string) error  { return secrets.Compare(hash, secret) }

// Service implements the identity contract: account lifecycle,
// authentication and deletion safety.
type Service struct {
	accounts AccountStore
	profiles IssuerProfileStore
	certs    CertificateCounter
	hasher   Hasher
	logger   *slog.Logger
	metrics  *identitymetrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *identitymetrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithHasher(h Hasher) Option {
	return func(s *Service) { s.hasher = h }
}

func New(accounts AccountStore, profiles IssuerProfileStore, certs CertificateCounter, opts ...Option) *Service {
	s := &Service{
		accounts: accounts,
		profiles: profiles,
		certs:    certs,
		hasher:   secretsHasher{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateAccountParams carries validated signup input. ID is optional; when
// nil a fresh id is generated. Onboarding approval pre-generates the id so it
// can be stamped on the request record in the same transition.
type CreateAccountParams struct {
	ID     *id.AccountID
	Name   string
	Email  string
	Secret string
	Role   id.Role
	// DateOfBirth is only supplied by student self-signups.
	DateOfBirth *time.Time
}

// CreateAccount registers a new account with a hashed secret.
func (s *Service) CreateAccount(ctx context.Context, params CreateAccountParams) (*models.Account, error) {
	accountID := id.NewAccountID()
	if params.ID != nil {
		accountID = *params.ID
	}
	account, err := models.NewAccount(accountID, params.Name, params.Email, params.Role, requestcontext.Now(ctx))
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
			return nil, dErrors.New(dErrors.CodeValidation, err.Error())
		}
		return nil, err
	}
	if params.Secret == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "secret is required")
	}
	account.DateOfBirth = params.DateOfBirth

	hash, err := s.hasher.Hash(params.Secret)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to hash secret")
	}
	account.SecretHash = hash

	if err := s.accounts.CreateIfEmailAvailable(ctx, account); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeDuplicateEmail, "email already registered")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create account")
	}

	s.log(ctx, "account created", "account_id", account.ID.String(), "role", account.Role.String())
	if s.metrics != nil {
		s.metrics.AccountsCreated.WithLabelValues(account.Role.String()).Inc()
	}
	return account, nil
}

// Authenticate resolves an account by email and secret.
//
// The failure mode is deliberately uniform: an unknown email and a wrong
// secret produce the same InvalidCredentials error, so callers cannot
// enumerate registered addresses. The ban state is only revealed after the
// credentials match.
func (s *Service) Authenticate(ctx context.Context, emailAddr, secret string) (*models.Account, error) {
	account, err := s.accounts.FindByEmail(ctx, emailpkg.Normalize(emailAddr))
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			s.countAuthFailure()
			return nil, dErrors.New(dErrors.CodeInvalidCredentials, "invalid credentials")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up account")
	}
	if err := s.hasher.Compare(account.SecretHash, secret); err != nil {
		s.countAuthFailure()
		return nil, dErrors.New(dErrors.CodeInvalidCredentials, "invalid credentials")
	}
	if account.Banned {
		return nil, dErrors.New(dErrors.CodeBanned, "account is banned")
	}
	return account, nil
}

// SetRole changes an account's role.
func (s *Service) SetRole(ctx context.Context, accountID id.AccountID, role id.Role) (*models.Account, error) {
	if !role.Valid() {
		return nil, dErrors.New(dErrors.CodeValidation, "invalid role")
	}
	account, err := s.find(ctx, accountID)
	if err != nil {
		return nil, err
	}
	account.ApplyRole(role, requestcontext.Now(ctx))
	if err := s.accounts.Update(ctx, account); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update account")
	}
	s.log(ctx, "account role changed", "account_id", accountID.String(), "role", role.String())
	return account, nil
}

// SetBanned flips the ban flag. Banning takes effect at the next
// authentication attempt; existing work is unaffected.
func (s *Service) SetBanned(ctx context.Context, accountID id.AccountID, banned bool) (*models.Account, error) {
	account, err := s.find(ctx, accountID)
	if err != nil {
		return nil, err
	}
	account.ApplyBan(banned, requestcontext.Now(ctx))
	if err := s.accounts.Update(ctx, account); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update account")
	}
	s.log(ctx, "account ban state changed", "account_id", accountID.String(), "banned", banned)
	return account, nil
}

// UpdateProfileParams carries the mutable self-service fields. Nil means
// "leave unchanged".
type UpdateProfileParams struct {
	Name  *string
	Email *string
}

// UpdateProfile updates the account's own display name and email.
func (s *Service) UpdateProfile(ctx context.Context, accountID id.AccountID, params UpdateProfileParams) (*models.Account, error) {
	account, err := s.find(ctx, accountID)
	if err != nil {
		return nil, err
	}

	changed := false
	if params.Name != nil {
		name := strings.TrimSpace(*params.Name)
		if name != "" {
			account.Name = name
			changed = true
		}
	}
	if params.Email != nil {
		newEmail := emailpkg.Normalize(*params.Email)
		if newEmail != "" && newEmail != account.Email {
			account.Email = newEmail
			changed = true
		}
	}
	if !changed {
		return nil, dErrors.New(dErrors.CodeValidation, "no valid fields to update")
	}

	account.UpdatedAt = requestcontext.Now(ctx)
	if err := s.accounts.Update(ctx, account); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeDuplicateEmail, "email already in use")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update account")
	}
	return account, nil
}

// UpdateIssuerProfileParams carries the issuer self-service fields. Nil means
// "leave unchanged". LogoPath and LocationURL are opaque references handed
// out by the external document store; this service only records them.
type UpdateIssuerProfileParams struct {
	Name          *string
	ContactNumber *string
	Address       *string
	LocationURL   *string
	LogoPath      *string
}

// UpdateIssuerProfile updates the caller's issuer profile. Changing the
// display name here does not touch snapshots on already-issued certificates.
func (s *Service) UpdateIssuerProfile(ctx context.Context, accountID id.AccountID, params UpdateIssuerProfileParams) (*issuermodels.Profile, error) {
	profile, err := s.profiles.FindByAccountID(ctx, accountID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNoIssuerProfile, "account has no issuer profile")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load issuer profile")
	}

	changed := false
	if params.Name != nil {
		if name := strings.TrimSpace(*params.Name); name != "" {
			profile.Name = name
			changed = true
		}
	}
	if params.ContactNumber != nil {
		profile.ContactNumber = strings.TrimSpace(*params.ContactNumber)
		changed = true
	}
	if params.Address != nil {
		profile.Address = strings.TrimSpace(*params.Address)
		changed = true
	}
	if params.LocationURL != nil {
		profile.LocationURL = strings.TrimSpace(*params.LocationURL)
		changed = true
	}
	if params.LogoPath != nil {
		profile.LogoPath = strings.TrimSpace(*params.LogoPath)
		changed = true
	}
	if !changed {
		return nil, dErrors.New(dErrors.CodeValidation, "no valid fields to update")
	}

	profile.UpdatedAt = requestcontext.Now(ctx)
	if err := s.profiles.Update(ctx, profile); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update issuer profile")
	}
	s.log(ctx, "issuer profile updated", "account_id", accountID.String(), "issuer_id", profile.ID.String())
	return profile, nil
}

// GetIssuerProfile returns the caller's issuer profile.
func (s *Service) GetIssuerProfile(ctx context.Context, accountID id.AccountID) (*issuermodels.Profile, error) {
	profile, err := s.profiles.FindByAccountID(ctx, accountID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNoIssuerProfile, "account has no issuer profile")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load issuer profile")
	}
	return profile, nil
}

// ChangeSecret rotates the account's credential after verifying the current
// one.
func (s *Service) ChangeSecret(ctx context.Context, accountID id.AccountID, current, next string) error {
	if len(next) < 6 {
		return dErrors.New(dErrors.CodeValidation, "new secret must be at least 6 characters")
	}
	account, err := s.find(ctx, accountID)
	if err != nil {
		return err
	}
	if err := s.hasher.Compare(account.SecretHash, current); err != nil {
		return dErrors.New(dErrors.CodeInvalidCredentials, "current secret is incorrect")
	}
	hash, err := s.hasher.Hash(next)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to hash secret")
	}
	account.SecretHash = hash
	account.UpdatedAt = requestcontext.Now(ctx)
	if err := s.accounts.Update(ctx, account); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update account")
	}
	s.log(ctx, "account secret changed", "account_id", accountID.String())
	return nil
}

// GetAccount returns an account by id.
func (s *Service) GetAccount(ctx context.Context, accountID id.AccountID) (*models.Account, error) {
	return s.find(ctx, accountID)
}

// FindByEmail returns an account by its normalized email.
func (s *Service) FindByEmail(ctx context.Context, emailAddr string) (*models.Account, error) {
	account, err := s.accounts.FindByEmail(ctx, emailpkg.Normalize(emailAddr))
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "account not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up account")
	}
	return account, nil
}

// DeleteAccount removes an account and its issuer profile, unless the
// profile has issued certificates.
//
// The certificate check is a hard safety invariant: certificates reference
// the issuer profile by id, and deleting the profile would orphan them. No
// cascading deletion of certificates or notifications ever happens here.
func (s *Service) DeleteAccount(ctx context.Context, accountID id.AccountID) error {
	account, err := s.find(ctx, accountID)
	if err != nil {
		return err
	}

	if account.Role == id.RoleInstitution {
		profile, err := s.profiles.FindByAccountID(ctx, accountID)
		switch {
		case err == nil:
			issued, err := s.certs.CountByIssuer(ctx, profile.ID)
			if err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to count issued certificates")
			}
			if issued > 0 {
				return dErrors.New(dErrors.CodeHasIssuedCertificates,
					"cannot delete an institution account with issued certificates")
			}
			if err := s.profiles.DeleteByAccountID(ctx, accountID); err != nil && !errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete issuer profile")
			}
		case errors.Is(err, sentinel.ErrNotFound):
			// Institution account without a profile; nothing to guard.
		default:
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load issuer profile")
		}
	}

	if err := s.accounts.Delete(ctx, accountID); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "account not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete account")
	}
	s.log(ctx, "account deleted", "account_id", accountID.String())
	return nil
}

func (s *Service) find(ctx context.Context, accountID id.AccountID) (*models.Account, error) {
	account, err := s.accounts.FindByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "account not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load account")
	}
	return account, nil
}

func (s *Service) countAuthFailure() {
	if s.metrics != nil {
		s.metrics.AuthFailures.Inc()
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
