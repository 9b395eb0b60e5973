// Package token mints and verifies the bearer tokens the HTTP layer uses to
// establish caller identity. Token lifetime and signing are transport
// concerns; services only ever see the resolved requestcontext.Identity.
package token

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	id "certledger/pkg/domain"
	dErrors "certledger/pkg/domain-errors"
)

// Claims is the signed payload carried by a bearer token.
type Claims struct {
	AccountID string `json:"account_id"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	jwt.RegisteredClaims
}

// Manager signs and verifies HS256 tokens with a shared key.
type Manager struct {
	signingKey []byte
	ttl        time.Duration
}

func NewManager(signingKey string, ttl time.Duration) *Manager {
	return &Manager{signingKey: []byte(signingKey), ttl: ttl}
}

// Mint issues a token for the given account identity.
func (m *Manager) Mint(accountID id.AccountID, emailAddr string, role id.Role, now time.Time) (string, error) {
	claims := Claims{
		AccountID: accountID.String(),
		Email:     emailAddr,
		Role:      role.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.signingKey)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify parses a raw token and returns its claims. Expired, malformed and
// wrongly signed tokens all map to the same invalid-credentials code.
func (m *Manager) Verify(raw string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return m.signingKey, nil
	})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidCredentials, "invalid token")
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeInvalidCredentials, "invalid token")
	}
	return claims, nil
}
