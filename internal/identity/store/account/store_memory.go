package account

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	id "certledger/pkg/domain"
	"certledger/pkg/platform/sentinel"

	"certledger/internal/identity/models"
)

// Error Contract:
// All store methods follow this pattern:
// - Return ErrNotFound when the requested record does not exist
// - Return ErrConflict when the email uniqueness constraint is violated
// - Return nil for successful operations
//
// InMemory stores accounts in memory for tests/dev. Email uniqueness is
// enforced on the normalized form under the write lock.
type InMemory struct {
	mu       sync.RWMutex
	accounts map[id.AccountID]*models.Account
	byEmail  map[string]id.AccountID
}

// NewInMemory constructs an empty in-memory account store.
func NewInMemory() *InMemory {
	return &InMemory{
		accounts: make(map[id.AccountID]*models.Account),
		byEmail:  make(map[string]id.AccountID),
	}
}

func (s *InMemory) CreateIfEmailAvailable(_ context.Context, account *models.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byEmail[account.Email]; exists {
		return fmt.Errorf("email %q already registered: %w", account.Email, sentinel.ErrConflict)
	}
	stored := *account
	s.accounts[account.ID] = &stored
	s.byEmail[account.Email] = account.ID
	return nil
}

func (s *InMemory) FindByID(_ context.Context, accountID id.AccountID) (*models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	account, ok := s.accounts[accountID]
	if !ok {
		return nil, fmt.Errorf("account not found: %w", sentinel.ErrNotFound)
	}
	copied := *account
	return &copied, nil
}

func (s *InMemory) FindByEmail(_ context.Context, emailAddr string) (*models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	accountID, ok := s.byEmail[emailAddr]
	if !ok {
		return nil, fmt.Errorf("account not found: %w", sentinel.ErrNotFound)
	}
	copied := *s.accounts[accountID]
	return &copied, nil
}

func (s *InMemory) Update(_ context.Context, account *models.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.accounts[account.ID]
	if !ok {
		return fmt.Errorf("account not found: %w", sentinel.ErrNotFound)
	}
	if account.Email != current.Email {
		if _, taken := s.byEmail[account.Email]; taken {
			return fmt.Errorf("email %q already registered: %w", account.Email, sentinel.ErrConflict)
		}
		delete(s.byEmail, current.Email)
		s.byEmail[account.Email] = account.ID
	}
	stored := *account
	s.accounts[account.ID] = &stored
	return nil
}

func (s *InMemory) Delete(_ context.Context, accountID id.AccountID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	account, ok := s.accounts[accountID]
	if !ok {
		return fmt.Errorf("account not found: %w", sentinel.ErrNotFound)
	}
	delete(s.byEmail, account.Email)
	delete(s.accounts, accountID)
	return nil
}

// List returns accounts matching the filter, newest first.
// A nil-field filter matches everything.
func (s *InMemory) List(_ context.Context, filter models.AccountFilter) ([]*models.Account, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]*models.Account, 0, len(s.accounts))
	for _, account := range s.accounts {
		if !matchesAccount(account, filter) {
			continue
		}
		copied := *account
		matched = append(matched, &copied)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	start := filter.Offset
	if start > total {
		start = total
	}
	end := total
	if filter.Limit > 0 && start+filter.Limit < end {
		end = start + filter.Limit
	}
	return matched[start:end], total, nil
}

func (s *InMemory) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.accounts), nil
}

func (s *InMemory) CountByRole(_ context.Context) (map[id.Role]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[id.Role]int)
	for _, account := range s.accounts {
		counts[account.Role]++
	}
	return counts, nil
}

func matchesAccount(account *models.Account, filter models.AccountFilter) bool {
	if filter.Role != "" && account.Role != filter.Role {
		return false
	}
	if filter.Query != "" {
		q := strings.ToLower(filter.Query)
		if !strings.Contains(strings.ToLower(account.Name), q) &&
			!strings.Contains(account.Email, q) {
			return false
		}
	}
	return true
}
