// Package invalidation broadcasts tenant directory changes so every instance drops its
// cached snapshot after a tenant is created, updated or deactivated.
package invalidation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hyvewellness/tenantgate/logger"
)

// ErrInvalidEvent is returned for events without a kind.
var ErrInvalidEvent = errors.New("invalidation: event kind is required")

// Kind is the tenant change that triggered an event.
type Kind string

const (
	KindCreated     Kind = "created"
	KindUpdated     Kind = "updated"
	KindDeactivated Kind = "deactivated"
	// KindRefresh asks for a reload without naming a tenant.
	KindRefresh Kind = "refresh"
)

// Event is the payload carried on every transport.
type Event struct {
	TenantID int64     `json:"tenant_id,omitempty"`
	Kind     Kind      `json:"kind"`
	At       time.Time `json:"at"`
}

// NewEvent stamps an event with the current time.
func NewEvent(tenantID int64, kind Kind) Event {
	return Event{TenantID: tenantID, Kind: kind, At: time.Now().UTC()}
}

// Handler receives events. It runs on the transport's delivery goroutine and must not
// block for long.
type Handler func(ctx context.Context, ev Event)

// Bus publishes events to every subscribed instance, the publisher included.
type Bus interface {
	Publish(ctx context.Context, ev Event) error
	// Subscribe registers h until ctx is cancelled. It returns once the subscription
	// is established.
	Subscribe(ctx context.Context, h Handler) error
	Close() error
}

// Invalidator is implemented by caches that can drop their contents.
type Invalidator interface {
	Invalidate()
}

// InvalidateOn subscribes target to bus.
func InvalidateOn(ctx context.Context, bus Bus, target Invalidator, log logger.Logger) error {
	if log == nil {
		log = logger.Nop()
	}
	return bus.Subscribe(ctx, func(_ context.Context, ev Event) {
		target.Invalidate()
		log.Debug().
			Int64("tenant_id", ev.TenantID).
			Str("kind", string(ev.Kind)).
			Msg("Tenant directory invalidated")
	})
}

func encode(ev Event) ([]byte, error) {
	if ev.Kind == "" {
		return nil, ErrInvalidEvent
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	return json.Marshal(ev)
}

func decode(data []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return Event{}, fmt.Errorf("invalidation: decode event: %w", err)
	}
	if ev.Kind == "" {
		return Event{}, ErrInvalidEvent
	}
	return ev, nil
}
