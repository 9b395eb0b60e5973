// Package events publishes domain lifecycle events to Kafka. Publishing is
// best-effort: services log and continue when the broker is unavailable, so
// the event stream never blocks or fails a user-facing operation.
package events

import (
	"context"
	"time"
)

// Topic is the single lifecycle topic all domain events are produced to.
// Consumers fan out by the Type field.
const Topic = "certledger.lifecycle"

// Event types.
const (
	TypeOnboardingSubmitted = "onboarding.submitted"
	TypeOnboardingApproved  = "onboarding.approved"
	TypeOnboardingRejected  = "onboarding.rejected"
	TypeCertificateIssued   = "certificate.issued"
)

// Event is a lifecycle fact about an aggregate, keyed by the aggregate id so
// per-aggregate ordering is preserved within a partition.
type Event struct {
	Type        string            `json:"type"`
	AggregateID string            `json:"aggregate_id"`
	OccurredAt  time.Time         `json:"occurred_at"`
	Attributes  map[string]string `json:"attributes,omitempty"`
}

// Publisher emits lifecycle events.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// NoopPublisher discards events. The default when no broker is configured.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, Event) error { return nil }
