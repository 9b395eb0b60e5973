package notification

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	id "certledger/pkg/domain"
	"certledger/pkg/platform/sentinel"

	"certledger/internal/notification/models"
)

// InMemory stores notifications in memory for tests/dev.
type InMemory struct {
	mu            sync.RWMutex
	notifications map[id.NotificationID]*models.Notification
}

// NewInMemory constructs an empty in-memory notification store.
func NewInMemory() *InMemory {
	return &InMemory{notifications: make(map[id.NotificationID]*models.Notification)}
}

func (s *InMemory) Create(_ context.Context, n *models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.notifications[n.ID]; exists {
		return fmt.Errorf("notification already exists: %w", sentinel.ErrConflict)
	}
	stored := *n
	s.notifications[n.ID] = &stored
	return nil
}

// MarkRead flips a notification to read for the given recipient. A missing
// notification and a recipient mismatch are indistinguishable: both are
// NotFound, so existence never leaks to the wrong recipient.
func (s *InMemory) MarkRead(_ context.Context, notifID id.NotificationID, recipientEmail string, readAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notifications[notifID]
	if !ok || n.RecipientEmail != recipientEmail {
		return fmt.Errorf("notification not found: %w", sentinel.ErrNotFound)
	}
	n.ApplyRead(readAt)
	return nil
}

// MarkAllRead marks every unread notification for the recipient and returns
// how many were updated. Zero is a valid result, not an error.
func (s *InMemory) MarkAllRead(_ context.Context, recipientEmail string, readAt time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	updated := 0
	for _, n := range s.notifications {
		if n.RecipientEmail != recipientEmail || n.IsRead {
			continue
		}
		n.ApplyRead(readAt)
		updated++
	}
	return updated, nil
}

func (s *InMemory) CountUnread(_ context.Context, recipientEmail string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, n := range s.notifications {
		if n.RecipientEmail == recipientEmail && !n.IsRead {
			count++
		}
	}
	return count, nil
}

// ListByRecipient returns the recipient's notifications, newest first,
// bounded by limit.
func (s *InMemory) ListByRecipient(_ context.Context, recipientEmail string, limit int) ([]*models.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*models.Notification
	for _, n := range s.notifications {
		if n.RecipientEmail != recipientEmail {
			continue
		}
		copied := *n
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
