package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	identityservice "certledger/internal/identity/service"
	accountstore "certledger/internal/identity/store/account"
	profilestore "certledger/internal/issuer/store/profile"
	"certledger/internal/onboarding/models"
	requeststore "certledger/internal/onboarding/store/request"
	id "certledger/pkg/domain"
	dErrors "certledger/pkg/domain-errors"
	"certledger/pkg/platform/tx"
	"certledger/pkg/requestcontext"
)

type plainHasher struct{}

func (plainHasher) Hash(secret string) (string, error) { return "hashed:" + secret, nil }
func (plainHasher) Compare(hash, secret string) error {
	if hash != "hashed:"+secret {
		return errors.New("mismatch")
	}
	return nil
}

type noCertificates struct{}

func (noCertificates) CountByIssuer(context.Context, id.IssuerID) (int, error) { return 0, nil }

type OnboardingServiceSuite struct {
	suite.Suite
	requests *requeststore.InMemory
	accounts *accountstore.InMemory
	profiles *profilestore.InMemory
	identity *identityservice.Service
	service  *Service
	ctx      context.Context
	actor    id.AccountID
	now      time.Time
}

func (s *OnboardingServiceSuite) SetupTest() {
	s.requests = requeststore.NewInMemory()
	s.accounts = accountstore.NewInMemory()
	s.profiles = profilestore.NewInMemory()
	s.identity = identityservice.New(s.accounts, s.profiles, noCertificates{},
		identityservice.WithHasher(plainHasher{}))
	s.service = New(s.requests, s.identity, s.profiles, tx.NewNoopRunner())

	s.actor = id.NewAccountID()
	s.now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	ctx := requestcontext.WithTime(context.Background(), s.now)
	s.ctx = requestcontext.WithActor(ctx, requestcontext.Identity{
		AccountID: s.actor,
		Email:     "operator@certledger.io",
		Role:      id.RoleAdmin,
	})
}

func TestOnboardingServiceSuite(t *testing.T) {
	suite.Run(t, new(OnboardingServiceSuite))
}

func (s *OnboardingServiceSuite) submit(name, emailAddr string) *models.Request {
	req, err := s.service.Submit(s.ctx, SubmitParams{
		InstitutionName: name,
		Email:           emailAddr,
		Phone:           "+1-555-0100",
		Address:         "1 Campus Way",
	})
	s.Require().NoError(err)
	return req
}

func (s *OnboardingServiceSuite) TestSubmit() {
	s.Run("creates a pending request with a normalized email", func() {
		req := s.submit("Acme U", " Admin@Acme.EDU ")
		s.Equal(models.StatusPending, req.Status)
		s.Equal("admin@acme.edu", req.Email)
	})

	s.Run("rejects a second pending request with DuplicatePending", func() {
		_, err := s.service.Submit(s.ctx, SubmitParams{
			InstitutionName: "Acme Again", Email: "admin@acme.edu",
		})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeDuplicatePending))
	})

	s.Run("rejects an email that already has an account", func() {
		_, err := s.identity.CreateAccount(s.ctx, identityservice.CreateAccountParams{
			Name: "Taken", Email: "taken@acme.edu", Secret: "secret1", Role: id.RoleStudent,
		})
		s.Require().NoError(err)

		_, err = s.service.Submit(s.ctx, SubmitParams{
			InstitutionName: "Acme", Email: "taken@acme.edu",
		})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeDuplicateEmail))
	})

	s.Run("rejects blank institution name with Validation", func() {
		_, err := s.service.Submit(s.ctx, SubmitParams{Email: "blank@acme.edu"})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func (s *OnboardingServiceSuite) TestApprove() {
	req := s.submit("Acme U", "approve@acme.edu")

	approved, err := s.service.Approve(s.ctx, req.ID)
	s.Require().NoError(err)

	s.Run("stamps the decision", func() {
		s.Equal(models.StatusApproved, approved.Status)
		s.Require().NotNil(approved.DecidedBy)
		s.Equal(s.actor, *approved.DecidedBy)
		s.Require().NotNil(approved.DecidedAt)
		s.Equal(s.now, *approved.DecidedAt)
		s.Require().NotNil(approved.CreatedAccountID)
	})

	s.Run("provisions an institution account with first-login secret equal to the email", func() {
		account, err := s.identity.Authenticate(s.ctx, "approve@acme.edu", "approve@acme.edu")
		s.Require().NoError(err)
		s.Equal(id.RoleInstitution, account.Role)
		s.Equal(*approved.CreatedAccountID, account.ID)
	})

	s.Run("provisions an issuer profile seeded from the request", func() {
		issuerProfile, err := s.profiles.FindByAccountID(s.ctx, *approved.CreatedAccountID)
		s.Require().NoError(err)
		s.Equal("Acme U", issuerProfile.Name)
		s.Equal("+1-555-0100", issuerProfile.ContactNumber)
	})

	s.Run("a second decision fails AlreadyDecided", func() {
		_, err := s.service.Approve(s.ctx, req.ID)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeAlreadyDecided))

		_, err = s.service.Reject(s.ctx, req.ID)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeAlreadyDecided))
	})
}

func (s *OnboardingServiceSuite) TestApproveFailures() {
	s.Run("unknown request fails NotFound", func() {
		_, err := s.service.Approve(s.ctx, id.NewRequestID())
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("requires an authenticated operator", func() {
		req := s.submit("NoActor U", "noactor@acme.edu")
		_, err := s.service.Approve(context.Background(), req.ID)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("email registered after submission reverts the request to pending", func() {
		req := s.submit("Late U", "late@acme.edu")

		// The email gets an account out-of-band between submit and approve.
		_, err := s.identity.CreateAccount(s.ctx, identityservice.CreateAccountParams{
			Name: "Squatter", Email: "late@acme.edu", Secret: "secret1", Role: id.RoleStudent,
		})
		s.Require().NoError(err)

		_, err = s.service.Approve(s.ctx, req.ID)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeDuplicateEmail))

		found, err := s.service.GetRequest(s.ctx, req.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusPending, found.Status)
		s.Nil(found.DecidedBy)
	})
}

func (s *OnboardingServiceSuite) TestConcurrentApprove() {
	req := s.submit("Race U", "race@acme.edu")

	const attempts = 4
	errs := make([]error, attempts)
	var wg sync.WaitGroup
	for i := range attempts {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.service.Approve(s.ctx, req.ID)
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
		} else {
			s.True(dErrors.HasCode(err, dErrors.CodeAlreadyDecided))
		}
	}
	s.Equal(1, winners)

	// Exactly one account exists for the email.
	account, err := s.accounts.FindByEmail(s.ctx, "race@acme.edu")
	s.Require().NoError(err)
	s.Equal(id.RoleInstitution, account.Role)
}

func (s *OnboardingServiceSuite) TestReject() {
	req := s.submit("Reject U", "reject@acme.edu")

	rejected, err := s.service.Reject(s.ctx, req.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusRejected, rejected.Status)
	s.Require().NotNil(rejected.DecidedBy)
	s.Nil(rejected.CreatedAccountID)

	// No account was created; the email is free again.
	_, err = s.accounts.FindByEmail(s.ctx, "reject@acme.edu")
	s.Require().Error(err)

	resubmitted := s.submit("Reject U", "reject@acme.edu")
	s.Equal(models.StatusPending, resubmitted.Status)
}

func (s *OnboardingServiceSuite) TestListAndCountPending() {
	s.submit("One U", "one@u.edu")
	second := s.submit("Two U", "two@u.edu")
	_, err := s.service.Reject(s.ctx, second.ID)
	s.Require().NoError(err)

	pending, err := s.service.ListPending(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(pending, 1)
	s.Equal("One U", pending[0].InstitutionName)

	count, err := s.service.CountPending(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, count)
}
