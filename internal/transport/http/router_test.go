package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	adminservice "certledger/internal/admin/service"
	identityservice "certledger/internal/identity/service"
	"certledger/internal/identity/store/account"
	"certledger/internal/issuance/attestor"
	issuanceservice "certledger/internal/issuance/service"
	"certledger/internal/issuance/store/certificate"
	"certledger/internal/issuer/store/profile"
	onboardingservice "certledger/internal/onboarding/service"
	"certledger/internal/onboarding/store/request"
	notificationservice "certledger/internal/notification/service"
	"certledger/internal/notification/store/notification"
	id "certledger/pkg/domain"
	"certledger/pkg/platform/tx"
	"certledger/pkg/token"
)

// fastHasher keeps the end-to-end tests off bcrypt.
type fastHasher struct{}

func (fastHasher) Hash(secret string) (string, error) { return "h:" + secret, nil }
func (fastHasher) Compare(hash, secret string) error {
	if hash != "h:"+secret {
		return errors.New("mismatch")
	}
	return nil
}

// stubAttestor returns a fixed reference, or the configured error.
type stubAttestor struct {
	mu  sync.Mutex
	err error
}

func (a *stubAttestor) Attest(context.Context, attestor.Request) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return "", a.err
	}
	return "att-ref-1", nil
}

func (a *stubAttestor) failWith(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.err = err
}

type RouterSuite struct {
	suite.Suite
	router     http.Handler
	tokens     *token.Manager
	identity   *identityservice.Service
	attestor   *stubAttestor
	adminToken string
}

func (s *RouterSuite) SetupTest() {
	accounts := account.NewInMemory()
	profiles := profile.NewInMemory()
	certs := certificate.NewInMemory()
	requests := request.NewInMemory()
	notifications := notification.NewInMemory()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.tokens = token.NewManager("router-test-key", time.Hour)
	s.attestor = &stubAttestor{}

	s.identity = identityservice.New(accounts, profiles, certs,
		identityservice.WithHasher(fastHasher{}))
	notificationSvc := notificationservice.New(notifications)
	issuanceSvc := issuanceservice.New(certs, profiles, s.attestor, notificationSvc,
		issuanceservice.WithAttestTimeout(time.Second))
	onboardingSvc := onboardingservice.New(requests, s.identity, profiles, tx.NewNoopRunner())
	adminSvc := adminservice.New(accounts, profiles, certs, requests, s.identity)

	s.router = NewRouter(Handlers{
		Auth:          NewAuthHandler(s.identity, s.tokens, logger),
		Onboarding:    NewOnboardingHandler(onboardingSvc, logger),
		Certificates:  NewCertificateHandler(issuanceSvc, logger),
		Notifications: NewNotificationHandler(notificationSvc, logger),
		Admin:         NewAdminHandler(adminSvc, logger),
	}, s.tokens, logger)

	admin, err := s.identity.CreateAccount(context.Background(), identityservice.CreateAccountParams{
		Name: "Operator", Email: "operator@certledger.io", Secret: "operator-secret", Role: id.RoleAdmin,
	})
	s.Require().NoError(err)
	s.adminToken = s.mint(admin.ID, admin.Email, admin.Role)
}

func TestRouterSuite(t *testing.T) {
	suite.Run(t, new(RouterSuite))
}

func (s *RouterSuite) mint(accountID id.AccountID, emailAddr string, role id.Role) string {
	signed, err := s.tokens.Mint(accountID, emailAddr, role, time.Now())
	s.Require().NoError(err)
	return signed
}

func (s *RouterSuite) do(method, path, bearer string, body any) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		s.Require().NoError(err)
		reader = bytes.NewReader(encoded)
	}
	req := httptest.NewRequest(method, path, reader)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *RouterSuite) decode(rec *httptest.ResponseRecorder, dst any) {
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), dst))
}

// submitAndApprove walks an institution through onboarding and returns a
// logged-in institution token.
func (s *RouterSuite) submitAndApprove(name, emailAddr string) string {
	rec := s.do(http.MethodPost, "/api/onboarding", "", map[string]string{
		"institution_name": name,
		"email":            emailAddr,
		"phone":            "+1-555-0100",
		"address":          "1 Campus Way",
	})
	s.Require().Equal(http.StatusCreated, rec.Code)

	var submitted struct {
		ID string `json:"id"`
	}
	s.decode(rec, &submitted)

	rec = s.do(http.MethodPost, "/api/onboarding/"+submitted.ID+"/approve", s.adminToken, nil)
	s.Require().Equal(http.StatusOK, rec.Code)

	// First login uses the institution email as the secret.
	rec = s.do(http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": emailAddr, "secret": emailAddr,
	})
	s.Require().Equal(http.StatusOK, rec.Code)

	var login struct {
		Token string `json:"token"`
	}
	s.decode(rec, &login)
	return login.Token
}

func (s *RouterSuite) signupAndLogin(name, emailAddr, secret string) string {
	rec := s.do(http.MethodPost, "/api/auth/signup", "", map[string]string{
		"name": name, "email": emailAddr, "secret": secret,
	})
	s.Require().Equal(http.StatusCreated, rec.Code)

	rec = s.do(http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": emailAddr, "secret": secret,
	})
	s.Require().Equal(http.StatusOK, rec.Code)

	var login struct {
		Token string `json:"token"`
	}
	s.decode(rec, &login)
	return login.Token
}

func (s *RouterSuite) TestOnboardingToIssuanceFlow() {
	issuerToken := s.submitAndApprove("Acme University", "registrar@acme.edu")

	rec := s.do(http.MethodPost, "/api/certificates", issuerToken, map[string]string{
		"recipient_name":  "Jane Doe",
		"recipient_email": "jane@example.com",
		"subject":         "Go 101",
	})
	s.Require().Equal(http.StatusCreated, rec.Code)

	var issued struct {
		Certificate struct {
			ID            string  `json:"id"`
			AttestationID *string `json:"attestation_id"`
			Template      string  `json:"template"`
		} `json:"certificate"`
		AttestationError string `json:"attestation_error"`
	}
	s.decode(rec, &issued)
	s.Empty(issued.AttestationError)
	s.Require().NotNil(issued.Certificate.AttestationID)
	s.Equal("att-ref-1", *issued.Certificate.AttestationID)
	s.Equal("classic", issued.Certificate.Template)

	// The certificate is publicly verifiable without a token.
	rec = s.do(http.MethodGet, "/api/certificates/"+issued.Certificate.ID, "", nil)
	s.Equal(http.StatusOK, rec.Code)

	// The recipient signs up and finds the notification and the certificate.
	studentToken := s.signupAndLogin("Jane Doe", "jane@example.com", "jane-secret")

	rec = s.do(http.MethodGet, "/api/notifications/unread-count", studentToken, nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	var unread struct {
		UnreadCount int `json:"unread_count"`
	}
	s.decode(rec, &unread)
	s.Equal(1, unread.UnreadCount)

	rec = s.do(http.MethodGet, "/api/notifications", studentToken, nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	var inbox struct {
		Notifications []struct {
			ID      string `json:"id"`
			Message string `json:"message"`
		} `json:"notifications"`
	}
	s.decode(rec, &inbox)
	s.Require().Len(inbox.Notifications, 1)
	s.Equal(`Acme University issued you a certificate for "Go 101".`, inbox.Notifications[0].Message)

	rec = s.do(http.MethodGet, "/api/certificates/recipient", studentToken, nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	var received struct {
		Certificates []json.RawMessage `json:"certificates"`
	}
	s.decode(rec, &received)
	s.Len(received.Certificates, 1)

	// Mark read and watch the count drop.
	rec = s.do(http.MethodPost, "/api/notifications/"+inbox.Notifications[0].ID+"/read", studentToken, nil)
	s.Equal(http.StatusNoContent, rec.Code)

	rec = s.do(http.MethodGet, "/api/notifications/unread-count", studentToken, nil)
	s.decode(rec, &unread)
	s.Equal(0, unread.UnreadCount)
}

func (s *RouterSuite) TestIssueDegradedWhenAttestationFails() {
	issuerToken := s.submitAndApprove("Acme University", "registrar@acme.edu")
	s.attestor.failWith(errors.New("ledger unreachable"))

	rec := s.do(http.MethodPost, "/api/certificates", issuerToken, map[string]string{
		"recipient_name": "Jane Doe",
		"subject":        "Go 101",
	})
	s.Require().Equal(http.StatusCreated, rec.Code)

	var issued struct {
		Certificate struct {
			ID            string  `json:"id"`
			AttestationID *string `json:"attestation_id"`
		} `json:"certificate"`
		AttestationError string `json:"attestation_error"`
	}
	s.decode(rec, &issued)
	s.NotEmpty(issued.AttestationError)
	s.Nil(issued.Certificate.AttestationID)

	// Degraded issuance still produced a verifiable certificate.
	rec = s.do(http.MethodGet, "/api/certificates/"+issued.Certificate.ID, "", nil)
	s.Equal(http.StatusOK, rec.Code)
}

func (s *RouterSuite) TestAuthGating() {
	s.Run("missing token is 401", func() {
		rec := s.do(http.MethodGet, "/api/me", "", nil)
		s.Equal(http.StatusUnauthorized, rec.Code)
	})

	s.Run("garbage token is 401", func() {
		rec := s.do(http.MethodGet, "/api/me", "not-a-token", nil)
		s.Equal(http.StatusUnauthorized, rec.Code)
	})

	s.Run("wrong login secret is 401", func() {
		s.signupAndLogin("Jane Doe", "jane@example.com", "jane-secret")
		rec := s.do(http.MethodPost, "/api/auth/login", "", map[string]string{
			"email": "jane@example.com", "secret": "wrong",
		})
		s.Equal(http.StatusUnauthorized, rec.Code)
	})

	s.Run("duplicate signup is 409", func() {
		rec := s.do(http.MethodPost, "/api/auth/signup", "", map[string]string{
			"name": "Jane Again", "email": "jane@example.com", "secret": "other-secret",
		})
		s.Equal(http.StatusConflict, rec.Code)
	})

	s.Run("student cannot reach the review queue", func() {
		studentToken := s.signupAndLogin("John Doe", "john@example.com", "john-secret")
		rec := s.do(http.MethodGet, "/api/onboarding/pending", studentToken, nil)
		s.Equal(http.StatusForbidden, rec.Code)
	})

	s.Run("student without issuer profile cannot issue", func() {
		studentToken := s.signupAndLogin("Kim Lee", "kim@example.com", "kim-secret")
		rec := s.do(http.MethodPost, "/api/certificates", studentToken, map[string]string{
			"recipient_name": "Jane Doe", "subject": "Go 101",
		})
		s.Equal(http.StatusForbidden, rec.Code)
	})
}

func (s *RouterSuite) TestSignupWithDateOfBirth() {
	rec := s.do(http.MethodPost, "/api/auth/signup", "", map[string]string{
		"name":          "Jane Doe",
		"email":         "jane@example.com",
		"secret":        "jane-secret",
		"date_of_birth": "2001-03-14",
	})
	s.Require().Equal(http.StatusCreated, rec.Code)

	var created struct {
		DateOfBirth *string `json:"date_of_birth"`
	}
	s.decode(rec, &created)
	s.Require().NotNil(created.DateOfBirth)
	s.Contains(*created.DateOfBirth, "2001-03-14")

	s.Run("rejects a malformed date", func() {
		rec := s.do(http.MethodPost, "/api/auth/signup", "", map[string]string{
			"name":          "John Doe",
			"email":         "john@example.com",
			"secret":        "john-secret",
			"date_of_birth": "14/03/2001",
		})
		s.Equal(http.StatusBadRequest, rec.Code)
	})
}

func (s *RouterSuite) TestIssuerProfileSelfService() {
	issuerToken := s.submitAndApprove("Acme University", "registrar@acme.edu")

	rec := s.do(http.MethodPatch, "/api/me/issuer-profile", issuerToken, map[string]string{
		"logo_path":    "uploads/logos/acme.png",
		"location_url": "https://maps.example.com/acme",
	})
	s.Require().Equal(http.StatusOK, rec.Code)

	var updated struct {
		LogoPath    string `json:"logo_path"`
		LocationURL string `json:"location_url"`
	}
	s.decode(rec, &updated)
	s.Equal("uploads/logos/acme.png", updated.LogoPath)
	s.Equal("https://maps.example.com/acme", updated.LocationURL)

	// The stored profile reflects the change.
	rec = s.do(http.MethodGet, "/api/me/issuer-profile", issuerToken, nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	s.decode(rec, &updated)
	s.Equal("uploads/logos/acme.png", updated.LogoPath)

	s.Run("student without a profile gets 403", func() {
		studentToken := s.signupAndLogin("Jane Doe", "jane@example.com", "jane-secret")
		rec := s.do(http.MethodPatch, "/api/me/issuer-profile", studentToken, map[string]string{
			"logo_path": "uploads/logos/jane.png",
		})
		s.Equal(http.StatusForbidden, rec.Code)
	})
}

func (s *RouterSuite) TestMarkAllRead() {
	issuerToken := s.submitAndApprove("Acme University", "registrar@acme.edu")
	for _, subject := range []string{"Go 101", "Go 201"} {
		rec := s.do(http.MethodPost, "/api/certificates", issuerToken, map[string]string{
			"recipient_name":  "Jane Doe",
			"recipient_email": "jane@example.com",
			"subject":         subject,
		})
		s.Require().Equal(http.StatusCreated, rec.Code)
	}

	studentToken := s.signupAndLogin("Jane Doe", "jane@example.com", "jane-secret")

	rec := s.do(http.MethodPost, "/api/notifications/read-all", studentToken, nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	var result struct {
		Updated int `json:"updated"`
	}
	s.decode(rec, &result)
	s.Equal(2, result.Updated)

	// Second call is a no-op.
	rec = s.do(http.MethodPost, "/api/notifications/read-all", studentToken, nil)
	s.decode(rec, &result)
	s.Equal(0, result.Updated)
}

func (s *RouterSuite) TestAdminSurface() {
	s.submitAndApprove("Acme University", "registrar@acme.edu")

	s.Run("stats aggregates the modules", func() {
		rec := s.do(http.MethodGet, "/api/admin/stats", s.adminToken, nil)
		s.Require().Equal(http.StatusOK, rec.Code)
		var stats struct {
			TotalAccounts          int `json:"total_accounts"`
			PendingOnboardingCount int `json:"pending_onboarding_count"`
		}
		s.decode(rec, &stats)
		s.Equal(2, stats.TotalAccounts)
		s.Equal(0, stats.PendingOnboardingCount)
	})

	s.Run("lists issuers with their account join", func() {
		rec := s.do(http.MethodGet, "/api/admin/issuers", s.adminToken, nil)
		s.Require().Equal(http.StatusOK, rec.Code)
		var issuers struct {
			Issuers []struct {
				Email string `json:"email"`
			} `json:"issuers"`
		}
		s.decode(rec, &issuers)
		s.Require().Len(issuers.Issuers, 1)
		s.Equal("registrar@acme.edu", issuers.Issuers[0].Email)
	})

	s.Run("bans an account through the admin route", func() {
		var accounts struct {
			Accounts []struct {
				ID    string `json:"id"`
				Email string `json:"email"`
			} `json:"accounts"`
		}
		rec := s.do(http.MethodGet, "/api/admin/accounts?q=registrar", s.adminToken, nil)
		s.Require().Equal(http.StatusOK, rec.Code)
		s.decode(rec, &accounts)
		s.Require().Len(accounts.Accounts, 1)

		rec = s.do(http.MethodPost, "/api/admin/accounts/"+accounts.Accounts[0].ID+"/ban",
			s.adminToken, map[string]bool{"banned": true})
		s.Require().Equal(http.StatusOK, rec.Code)

		// The banned institution can no longer log in.
		rec = s.do(http.MethodPost, "/api/auth/login", "", map[string]string{
			"email": "registrar@acme.edu", "secret": "registrar@acme.edu",
		})
		s.Equal(http.StatusForbidden, rec.Code)
	})
}
