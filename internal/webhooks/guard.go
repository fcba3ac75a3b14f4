package webhooks

import (
	"context"
	"time"

	"github.com/qrmint/qrmint-backend/pkg/enums"
	"github.com/qrmint/qrmint-backend/pkg/redis"
)

// eventGuardTTL keeps a processed-event marker long enough to absorb
// gateway retry schedules.
const eventGuardTTL = 24 * time.Hour

// EventGuard deduplicates webhook deliveries across instances. Gateways
// redeliver on slow or ambiguous responses, so the same event id can
// arrive concurrently more than once.
type EventGuard struct {
	store redis.IdempotencyStore
}

// NewEventGuard builds a guard over the shared Redis client.
func NewEventGuard(store redis.IdempotencyStore) *EventGuard {
	return &EventGuard{store: store}
}

// FirstDelivery reports whether this is the first time the event id has
// been seen. Errors degrade open: a Redis outage must not drop webhooks,
// since reconciliation itself is idempotent.
func (g *EventGuard) FirstDelivery(ctx context.Context, provider enums.Provider, eventID string) bool {
	if g == nil || g.store == nil || eventID == "" {
		return true
	}
	key := g.store.IdempotencyKey("webhook:"+provider.String(), eventID)
	acquired, err := g.store.SetNX(ctx, key, "1", eventGuardTTL)
	if err != nil {
		return true
	}
	return acquired
}

// Release removes the marker so a failed delivery can be retried by the
// gateway without being swallowed as a duplicate.
func (g *EventGuard) Release(ctx context.Context, provider enums.Provider, eventID string) {
	if g == nil || g.store == nil || eventID == "" {
		return
	}
	key := g.store.IdempotencyKey("webhook:"+provider.String(), eventID)
	_ = g.store.Del(ctx, key)
}
