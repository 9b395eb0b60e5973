package request

import (
	"context"
	"fmt"
	"sort"
	"sync"

	id "certledger/pkg/domain"
	"certledger/pkg/platform/sentinel"

	"certledger/internal/onboarding/models"
)

// InMemory stores onboarding requests in memory for tests/dev.
//
// Execute is the atomic validate-then-mutate primitive: the write lock is
// held across both callbacks, so two concurrent decisions on the same
// request serialize and the loser fails validation.
type InMemory struct {
	mu       sync.RWMutex
	requests map[id.RequestID]*models.Request
	// pendingByEmail enforces at-most-one-PENDING-request-per-email.
	pendingByEmail map[string]id.RequestID
}

// NewInMemory constructs an empty in-memory request store.
func NewInMemory() *InMemory {
	return &InMemory{
		requests:       make(map[id.RequestID]*models.Request),
		pendingByEmail: make(map[string]id.RequestID),
	}
}

func (s *InMemory) CreateIfNoPending(_ context.Context, req *models.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.pendingByEmail[req.Email]; exists {
		return fmt.Errorf("pending request exists for %q: %w", req.Email, sentinel.ErrConflict)
	}
	stored := *req
	s.requests[req.ID] = &stored
	s.pendingByEmail[req.Email] = req.ID
	return nil
}

func (s *InMemory) FindByID(_ context.Context, requestID id.RequestID) (*models.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	req, ok := s.requests[requestID]
	if !ok {
		return nil, fmt.Errorf("onboarding request not found: %w", sentinel.ErrNotFound)
	}
	copied := *req
	return &copied, nil
}

// Execute atomically validates and mutates a request. The lock is held for
// the whole callback pair; mutate only runs when validate returns nil.
// Returns the mutated request.
func (s *InMemory) Execute(
	_ context.Context,
	requestID id.RequestID,
	validate func(*models.Request) error,
	mutate func(*models.Request),
) (*models.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.requests[requestID]
	if !ok {
		return nil, fmt.Errorf("onboarding request not found: %w", sentinel.ErrNotFound)
	}
	if err := validate(req); err != nil {
		return nil, err
	}

	wasPending := req.Status == models.StatusPending
	mutate(req)

	// Keep the pending index consistent with status transitions either way.
	if wasPending && req.Status != models.StatusPending {
		delete(s.pendingByEmail, req.Email)
	}
	if !wasPending && req.Status == models.StatusPending {
		s.pendingByEmail[req.Email] = req.ID
	}

	copied := *req
	return &copied, nil
}

// ListPending returns PENDING requests ordered by creation time, newest
// first, for operator review.
func (s *InMemory) ListPending(_ context.Context) ([]*models.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pending := make([]*models.Request, 0, len(s.pendingByEmail))
	for _, req := range s.requests {
		if req.Status != models.StatusPending {
			continue
		}
		copied := *req
		pending = append(pending, &copied)
	}
	sort.Slice(pending, func(i, j int) bool {
		return pending[i].CreatedAt.After(pending[j].CreatedAt)
	})
	return pending, nil
}

func (s *InMemory) CountPending(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.pendingByEmail), nil
}
