package service

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"certledger/internal/issuance/attestor"
	attestormocks "certledger/internal/issuance/attestor/mocks"
	"certledger/internal/issuance/models"
	"certledger/internal/issuance/service/mocks"
	"certledger/internal/issuance/store/certificate"
	issuermodels "certledger/internal/issuer/models"
	"certledger/internal/issuer/store/profile"
	id "certledger/pkg/domain"
	dErrors "certledger/pkg/domain-errors"
	"certledger/pkg/requestcontext"
)

type IssuanceServiceSuite struct {
	suite.Suite
	ctrl     *gomock.Controller
	certs    *certificate.InMemory
	profiles *profile.InMemory
	attestor *attestormocks.MockAttestor
	notifier *mocks.MockNotifier
	service  *Service
	ctx      context.Context
	now      time.Time
	account  id.AccountID
	issuer   *issuermodels.Profile
}

func (s *IssuanceServiceSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.certs = certificate.NewInMemory()
	s.profiles = profile.NewInMemory()
	s.attestor = attestormocks.NewMockAttestor(s.ctrl)
	s.notifier = mocks.NewMockNotifier(s.ctrl)
	s.service = New(s.certs, s.profiles, s.attestor, s.notifier,
		WithAttestTimeout(50*time.Millisecond))

	s.now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)

	s.account = id.NewAccountID()
	issuerProfile, err := issuermodels.NewProfile(id.NewIssuerID(), s.account, "Acme University", s.now)
	s.Require().NoError(err)
	s.Require().NoError(s.profiles.Create(s.ctx, issuerProfile))
	s.issuer = issuerProfile
}

func TestIssuanceServiceSuite(t *testing.T) {
	suite.Run(t, new(IssuanceServiceSuite))
}

func (s *IssuanceServiceSuite) params() IssueParams {
	return IssueParams{
		RecipientName:  "Jane Doe",
		RecipientEmail: "Jane@Example.COM",
		Subject:        "Go 101",
		TimePeriod:     "Spring 2025",
	}
}

func (s *IssuanceServiceSuite) TestIssueRequiresProfile() {
	_, err := s.service.Issue(s.ctx, id.NewAccountID(), s.params())
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeNoIssuerProfile))
}

func (s *IssuanceServiceSuite) TestIssueValidation() {
	params := s.params()
	params.Subject = "  "

	_, err := s.service.Issue(s.ctx, s.account, params)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	listed, err := s.certs.ListByIssuer(s.ctx, s.issuer.ID)
	s.Require().NoError(err)
	s.Empty(listed)
}

func (s *IssuanceServiceSuite) TestIssueHappyPath() {
	s.attestor.EXPECT().Attest(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req attestor.Request) (string, error) {
			s.Equal("Go 101", req.Subject)
			s.Equal("Jane Doe", req.RecipientName)
			s.Equal("jane@example.com", req.RecipientEmail)
			return "att-ref-1", nil
		})
	s.notifier.EXPECT().
		NotifyIssued(gomock.Any(), "jane@example.com", "Acme University", "Go 101", gomock.Any()).
		Return(nil)

	result, err := s.service.Issue(s.ctx, s.account, s.params())
	s.Require().NoError(err)
	s.False(result.Degraded())

	cert := result.Certificate
	s.Equal(s.issuer.ID, cert.IssuerID)
	s.Equal("Acme University", cert.IssuerNameSnapshot)
	s.Equal("jane@example.com", cert.RecipientEmailSnapshot)
	s.Equal(models.TemplateClassic, cert.Template)
	s.Equal(s.now, cert.IssuedAt)
	s.True(strings.HasPrefix(cert.CertificateCode, "CERT-"))
	s.Require().NotNil(cert.AttestationID)
	s.Equal("att-ref-1", *cert.AttestationID)

	stored, err := s.certs.FindByID(s.ctx, cert.ID)
	s.Require().NoError(err)
	s.Require().NotNil(stored.AttestationID)
	s.Equal("att-ref-1", *stored.AttestationID)
}

func (s *IssuanceServiceSuite) TestIssueTemplateFallback() {
	s.attestor.EXPECT().Attest(gomock.Any(), gomock.Any()).Return("att-ref-2", nil)
	s.notifier.EXPECT().NotifyIssued(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)

	params := s.params()
	params.Template = "baroque"

	result, err := s.service.Issue(s.ctx, s.account, params)
	s.Require().NoError(err)
	s.Equal(models.TemplateClassic, result.Certificate.Template)
}

func (s *IssuanceServiceSuite) TestIssueAttestationFailure() {
	s.attestor.EXPECT().Attest(gomock.Any(), gomock.Any()).
		Return("", errors.New("ledger unreachable"))
	// Notification is not gated on attestation.
	s.notifier.EXPECT().
		NotifyIssued(gomock.Any(), "jane@example.com", gomock.Any(), gomock.Any(), gomock.Any()).
		Return(nil)

	result, err := s.service.Issue(s.ctx, s.account, s.params())
	s.Require().NoError(err)
	s.True(result.Degraded())
	s.Require().Error(result.AttestationErr)
	s.True(dErrors.HasCode(result.AttestationErr, dErrors.CodeAttestationFailed))
	s.NoError(result.NotificationErr)

	// The certificate survived unattested and stays retrievable.
	stored, err := s.service.GetByID(s.ctx, result.Certificate.ID)
	s.Require().NoError(err)
	s.Nil(stored.AttestationID)
}

func (s *IssuanceServiceSuite) TestIssueAttestationTimeout() {
	s.attestor.EXPECT().Attest(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, _ attestor.Request) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		})
	s.notifier.EXPECT().NotifyIssued(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)

	result, err := s.service.Issue(s.ctx, s.account, s.params())
	s.Require().NoError(err)
	s.Require().Error(result.AttestationErr)
	s.True(dErrors.HasCode(result.AttestationErr, dErrors.CodeAttestationFailed))
	s.Require().ErrorIs(result.AttestationErr, context.DeadlineExceeded)
	s.Nil(result.Certificate.AttestationID)
}

func (s *IssuanceServiceSuite) TestIssueNotificationFailure() {
	s.attestor.EXPECT().Attest(gomock.Any(), gomock.Any()).Return("att-ref-3", nil)
	s.notifier.EXPECT().NotifyIssued(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(errors.New("store down"))

	result, err := s.service.Issue(s.ctx, s.account, s.params())
	s.Require().NoError(err)
	s.True(result.Degraded())
	s.NoError(result.AttestationErr)
	s.Require().Error(result.NotificationErr)
	s.True(dErrors.HasCode(result.NotificationErr, dErrors.CodeNotificationFailed))

	// Attestation is unaffected by the notification failure.
	s.Require().NotNil(result.Certificate.AttestationID)
	s.Equal("att-ref-3", *result.Certificate.AttestationID)
}

func (s *IssuanceServiceSuite) TestIssueWithoutRecipientEmail() {
	s.attestor.EXPECT().Attest(gomock.Any(), gomock.Any()).Return("att-ref-4", nil)
	// No NotifyIssued expectation: the controller fails the test if it fires.

	params := s.params()
	params.RecipientEmail = ""

	result, err := s.service.Issue(s.ctx, s.account, params)
	s.Require().NoError(err)
	s.NoError(result.NotificationErr)
	s.Empty(result.Certificate.RecipientEmailSnapshot)
}

func (s *IssuanceServiceSuite) TestListByRecipientEmail() {
	s.attestor.EXPECT().Attest(gomock.Any(), gomock.Any()).Return("att-ref-5", nil)
	s.notifier.EXPECT().NotifyIssued(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)

	result, err := s.service.Issue(s.ctx, s.account, s.params())
	s.Require().NoError(err)

	listed, err := s.service.ListByRecipientEmail(s.ctx, " JANE@Example.com ")
	s.Require().NoError(err)
	s.Require().Len(listed, 1)
	s.Equal(result.Certificate.ID, listed[0].ID)
}

func (s *IssuanceServiceSuite) TestListByIssuer() {
	s.attestor.EXPECT().Attest(gomock.Any(), gomock.Any()).Return("att-ref-6", nil).Times(2)
	s.notifier.EXPECT().NotifyIssued(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).Times(2)

	for _, subject := range []string{"Go 101", "Go 201"} {
		params := s.params()
		params.Subject = subject
		_, err := s.service.Issue(s.ctx, s.account, params)
		s.Require().NoError(err)
	}

	listed, err := s.service.ListByIssuer(s.ctx, s.account)
	s.Require().NoError(err)
	s.Len(listed, 2)

	_, err = s.service.ListByIssuer(s.ctx, id.NewAccountID())
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeNoIssuerProfile))
}

func (s *IssuanceServiceSuite) TestGetByID() {
	_, err := s.service.GetByID(s.ctx, id.NewCertificateID())
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}
