package certificate

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	id "certledger/pkg/domain"
	"certledger/pkg/platform/sentinel"

	"certledger/internal/issuance/models"
)

// InMemory stores certificates in memory for tests/dev.
type InMemory struct {
	mu    sync.RWMutex
	certs map[id.CertificateID]*models.Certificate
}

// NewInMemory constructs an empty in-memory certificate store.
func NewInMemory() *InMemory {
	return &InMemory{certs: make(map[id.CertificateID]*models.Certificate)}
}

func (s *InMemory) Create(_ context.Context, cert *models.Certificate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.certs[cert.ID]; exists {
		return fmt.Errorf("certificate already exists: %w", sentinel.ErrConflict)
	}
	stored := *cert
	s.certs[cert.ID] = &stored
	return nil
}

func (s *InMemory) FindByID(_ context.Context, certID id.CertificateID) (*models.Certificate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cert, ok := s.certs[certID]
	if !ok {
		return nil, fmt.Errorf("certificate not found: %w", sentinel.ErrNotFound)
	}
	copied := *cert
	return &copied, nil
}

// SetAttestationID records the external attestation reference. Set-once: a
// second write is a conflict, preserving the only-mutation-is-attestation
// invariant under the write lock.
func (s *InMemory) SetAttestationID(_ context.Context, certID id.CertificateID, ref string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cert, ok := s.certs[certID]
	if !ok {
		return fmt.Errorf("certificate not found: %w", sentinel.ErrNotFound)
	}
	if cert.AttestationID != nil {
		return fmt.Errorf("certificate already attested: %w", sentinel.ErrConflict)
	}
	cert.AttestationID = &ref
	return nil
}

// ListByIssuer returns an issuer's certificates, newest first.
func (s *InMemory) ListByIssuer(_ context.Context, issuerID id.IssuerID) ([]*models.Certificate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var certs []*models.Certificate
	for _, cert := range s.certs {
		if cert.IssuerID != issuerID {
			continue
		}
		copied := *cert
		certs = append(certs, &copied)
	}
	sortByIssuedAtDesc(certs)
	return certs, nil
}

// ListByRecipientEmail returns certificates snapshotted to the given
// normalized email, newest first.
func (s *InMemory) ListByRecipientEmail(_ context.Context, emailAddr string) ([]*models.Certificate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var certs []*models.Certificate
	for _, cert := range s.certs {
		if cert.RecipientEmailSnapshot != emailAddr {
			continue
		}
		copied := *cert
		certs = append(certs, &copied)
	}
	sortByIssuedAtDesc(certs)
	return certs, nil
}

// List returns a filtered page of certificates, newest first, plus the total
// match count before paging.
func (s *InMemory) List(_ context.Context, filter models.Filter) ([]*models.Certificate, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*models.Certificate
	for _, cert := range s.certs {
		if !matchesCertificate(cert, filter) {
			continue
		}
		copied := *cert
		matched = append(matched, &copied)
	}
	sortByIssuedAtDesc(matched)

	total := len(matched)
	if filter.Offset > 0 {
		if filter.Offset >= total {
			return nil, total, nil
		}
		matched = matched[filter.Offset:]
	}
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	return matched, total, nil
}

func (s *InMemory) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.certs), nil
}

func (s *InMemory) CountByIssuer(_ context.Context, issuerID id.IssuerID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, cert := range s.certs {
		if cert.IssuerID == issuerID {
			count++
		}
	}
	return count, nil
}

func matchesCertificate(cert *models.Certificate, filter models.Filter) bool {
	if filter.IssuerID != nil && cert.IssuerID != *filter.IssuerID {
		return false
	}
	if filter.IssuedFrom != nil && cert.IssuedAt.Before(*filter.IssuedFrom) {
		return false
	}
	if filter.IssuedTo != nil && cert.IssuedAt.After(*filter.IssuedTo) {
		return false
	}
	if q := strings.ToLower(strings.TrimSpace(filter.Query)); q != "" {
		haystack := strings.ToLower(strings.Join([]string{
			cert.Subject,
			cert.RecipientNameSnapshot,
			cert.RecipientEmailSnapshot,
			cert.IssuerNameSnapshot,
		}, "\n"))
		if !strings.Contains(haystack, q) {
			return false
		}
	}
	return true
}

func sortByIssuedAtDesc(certs []*models.Certificate) {
	sort.Slice(certs, func(i, j int) bool {
		return certs[i].IssuedAt.After(certs[j].IssuedAt)
	})
}
