/*
events.go - Domain events and the injected pricing strategy

PURPOSE:
  Collaborators outside the core (billing, notifications) react to
  reservation lifecycle changes. The engine publishes explicit events
  after each commit instead of triggering hidden cascading writes: a
  subscriber can never re-enter the allocation path mid-transaction.

PRICING:
  The core does not price anything. It computes a billable unit count
  from the window and asks an injected PricingStrategy for an optional
  price to pass along. The default strategy prices nothing; the billing
  collaborator injects its own. See billing/.

DELIVERY:
  The in-process Bus delivers synchronously after commit, in subscribe
  order. Subscribers must not block; anything slow belongs behind the
  subscriber's own queue.

SEE ALSO:
  - engine.go: Publishes after each committed mutation
  - billing/billing.go: The charge-line subscriber
*/
package reservation

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// EVENTS
// =============================================================================

type EventKind string

const (
	EventReservationConfirmed EventKind = "reservation_confirmed"
	EventReservationCompleted EventKind = "reservation_completed"
	EventReservationCancelled EventKind = "reservation_cancelled"
)

// Event describes one committed lifecycle change.
type Event struct {
	Kind EventKind
	At   time.Time

	ReservationID ReservationID
	GroupID       GroupID
	RequesterID   RequesterID
	ResourceID    ResourceID
	UnitID        UnitID
	Window        Window

	// Units is the billable quantity (days, hours, or item count) for the
	// collaborator to price. The core never computes money beyond this.
	Units decimal.Decimal

	// Price is set only when the injected PricingStrategy quotes one.
	Price *decimal.Decimal
}

// Publisher delivers events to collaborators.
type Publisher interface {
	Publish(ctx context.Context, e Event)
}

// NopPublisher drops events. Useful in tests and batch tools.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) {}

// =============================================================================
// BUS - In-process synchronous publisher
// =============================================================================

type Bus struct {
	mu   sync.RWMutex
	subs []func(Event)
}

func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers a handler for all events.
func (b *Bus) Subscribe(fn func(Event)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, fn)
}

func (b *Bus) Publish(_ context.Context, e Event) {
	b.mu.RLock()
	subs := make([]func(Event), len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()

	for _, fn := range subs {
		fn(e)
	}
}

// =============================================================================
// PRICING STRATEGY - Injected by the billing collaborator
// =============================================================================

// PricingStrategy quotes a committed reservation. Quote returns the
// billable unit count and an optional price; ok=false means the strategy
// does not price this resource and the event ships units only.
type PricingStrategy interface {
	Quote(res Resource, w Window) (units decimal.Decimal, price decimal.Decimal, ok bool)
}

// NoPricing is the documented default: one unit per open-ended hold,
// whole days for bounded windows, never a price.
type NoPricing struct{}

func (NoPricing) Quote(_ Resource, w Window) (decimal.Decimal, decimal.Decimal, bool) {
	return decimal.NewFromInt(int64(w.BillableDays())), decimal.Zero, false
}
