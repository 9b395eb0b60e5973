// Package requestcontext provides HTTP-independent accessors for
// request-scoped values.
//
// The original system kept the acting user in ambient session state; here the
// caller identity is explicit: middleware injects it into context, services
// read it back. Keeping this package free of net/http lets services import
// only what they need.
//
// Usage in services (read values):
//
//	actor := requestcontext.Actor(ctx)
//	now := requestcontext.Now(ctx)
//
// Usage in middleware (set values):
//
//	ctx = requestcontext.WithActor(ctx, actor)
//	ctx = requestcontext.WithRequestID(ctx, requestID)
//
// Usage in tests (inject values):
//
//	ctx = requestcontext.WithTime(ctx, fixedTime)
package requestcontext

import (
	"context"
	"time"

	id "certledger/pkg/domain"
)

// Identity is the authenticated caller as established by the auth middleware.
type Identity struct {
	AccountID id.AccountID
	Email     string
	Role      id.Role
}

type (
	actorKey       struct{}
	requestIDKey   struct{}
	requestTimeKey struct{}
)

// Actor retrieves the authenticated caller from the context.
// Returns the zero Identity if not set.
func Actor(ctx context.Context) Identity {
	if actor, ok := ctx.Value(actorKey{}).(Identity); ok {
		return actor
	}
	return Identity{}
}

// WithActor injects the authenticated caller into the context.
func WithActor(ctx context.Context, actor Identity) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// RequestID retrieves the correlation id from the context.
func RequestID(ctx context.Context) string {
	if reqID, ok := ctx.Value(requestIDKey{}).(string); ok {
		return reqID
	}
	return ""
}

// WithRequestID injects a correlation id into the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// Now retrieves the request-scoped time from context.
// Falls back to time.Now() for non-HTTP contexts (workers, CLI, tests).
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(requestTimeKey{}).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime injects a specific time into a context. Useful for service unit
// tests that don't run the full HTTP middleware chain.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, requestTimeKey{}, t)
}
