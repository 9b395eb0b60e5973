package profile

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	id "certledger/pkg/domain"
	"certledger/pkg/platform/sentinel"

	"certledger/internal/issuer/models"
)

// InMemory stores issuer profiles in memory for tests/dev. The one-profile-
// per-account invariant is enforced under the write lock.
type InMemory struct {
	mu        sync.RWMutex
	profiles  map[id.IssuerID]*models.Profile
	byAccount map[id.AccountID]id.IssuerID
}

// NewInMemory constructs an empty in-memory profile store.
func NewInMemory() *InMemory {
	return &InMemory{
		profiles:  make(map[id.IssuerID]*models.Profile),
		byAccount: make(map[id.AccountID]id.IssuerID),
	}
}

func (s *InMemory) Create(_ context.Context, profile *models.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byAccount[profile.AccountID]; exists {
		return fmt.Errorf("account already has an issuer profile: %w", sentinel.ErrConflict)
	}
	stored := *profile
	s.profiles[profile.ID] = &stored
	s.byAccount[profile.AccountID] = profile.ID
	return nil
}

func (s *InMemory) FindByID(_ context.Context, issuerID id.IssuerID) (*models.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	profile, ok := s.profiles[issuerID]
	if !ok {
		return nil, fmt.Errorf("issuer profile not found: %w", sentinel.ErrNotFound)
	}
	copied := *profile
	return &copied, nil
}

func (s *InMemory) FindByAccountID(_ context.Context, accountID id.AccountID) (*models.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	issuerID, ok := s.byAccount[accountID]
	if !ok {
		return nil, fmt.Errorf("issuer profile not found: %w", sentinel.ErrNotFound)
	}
	copied := *s.profiles[issuerID]
	return &copied, nil
}

func (s *InMemory) Update(_ context.Context, profile *models.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.profiles[profile.ID]; !ok {
		return fmt.Errorf("issuer profile not found: %w", sentinel.ErrNotFound)
	}
	stored := *profile
	s.profiles[profile.ID] = &stored
	return nil
}

func (s *InMemory) DeleteByAccountID(_ context.Context, accountID id.AccountID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	issuerID, ok := s.byAccount[accountID]
	if !ok {
		return fmt.Errorf("issuer profile not found: %w", sentinel.ErrNotFound)
	}
	delete(s.profiles, issuerID)
	delete(s.byAccount, accountID)
	return nil
}

// List returns profiles whose name matches the query, newest first.
func (s *InMemory) List(_ context.Context, query string, limit int) ([]*models.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q := strings.ToLower(strings.TrimSpace(query))
	matched := make([]*models.Profile, 0, len(s.profiles))
	for _, profile := range s.profiles {
		if q != "" && !strings.Contains(strings.ToLower(profile.Name), q) {
			continue
		}
		copied := *profile
		matched = append(matched, &copied)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}
