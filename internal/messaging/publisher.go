// Package messaging defines the event publishing seam between the ledger and
// the message broker. Publishing is best-effort: the ledger mutation has
// already committed when an event goes out, so a publish failure is logged and
// never rolls anything back.
package messaging

import (
	"context"

	"github.com/openreward/reward-distributor/internal/domain"
)

// Publisher publishes entitlement lifecycle events
type Publisher interface {
	// PublishEntitlementEvent publishes an entitlement lifecycle event to the broker
	PublishEntitlementEvent(ctx context.Context, event *domain.EntitlementEvent) error
	// Close closes the broker connection
	Close()
}

// NoopPublisher discards all events. Used when no broker is configured.
type NoopPublisher struct{}

// NewNoopPublisher creates a publisher that drops everything
func NewNoopPublisher() Publisher {
	return &NoopPublisher{}
}

func (p *NoopPublisher) PublishEntitlementEvent(ctx context.Context, event *domain.EntitlementEvent) error {
	return nil
}

func (p *NoopPublisher) Close() {}
