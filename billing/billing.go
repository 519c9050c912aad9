/*
Package billing turns reservation lifecycle events into charge lines.

PURPOSE:
  Billing never talks to the engine directly - it subscribes to the
  engine's event bus and keeps one charge line per reservation, updated
  as the reservation moves through its lifecycle. Pricing happens in the
  engine's pricing strategy; this package just records what was quoted.

CHARGE LIFECYCLE:
  confirmed  -> pending charge at the quoted price
  completed  -> charge finalized at the last quote
  cancelled  -> charge voided (kept for audit, amount still visible)

  Events without a price (unpriced resource kinds such as blood bags and
  ambulances under the default strategy) produce no charge line.
*/
package billing

import (
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/reservation-engine/reservation"
)

// =============================================================================
// CHARGE LINES
// =============================================================================

type ChargeStatus string

const (
	ChargePending   ChargeStatus = "pending"
	ChargeFinalized ChargeStatus = "finalized"
	ChargeVoided    ChargeStatus = "voided"
)

// ChargeLine is one billable reservation.
type ChargeLine struct {
	ReservationID reservation.ReservationID
	RequesterID   reservation.RequesterID
	ResourceID    reservation.ResourceID
	Units         decimal.Decimal
	Amount        decimal.Decimal
	Status        ChargeStatus
	UpdatedAt     time.Time
}

// =============================================================================
// RECORDER
// =============================================================================

// Recorder accumulates charge lines from reservation events. Safe for
// concurrent use; Attach subscribes it to a bus.
type Recorder struct {
	mu      sync.Mutex
	charges map[reservation.ReservationID]ChargeLine
}

func NewRecorder() *Recorder {
	return &Recorder{charges: make(map[reservation.ReservationID]ChargeLine)}
}

// Attach subscribes the recorder to the bus.
func (rc *Recorder) Attach(bus *reservation.Bus) {
	bus.Subscribe(rc.Record)
}

// Record folds one event into the charge ledger.
func (rc *Recorder) Record(ev reservation.Event) {
	if ev.Price == nil {
		return
	}

	rc.mu.Lock()
	defer rc.mu.Unlock()

	line := ChargeLine{
		ReservationID: ev.ReservationID,
		RequesterID:   ev.RequesterID,
		ResourceID:    ev.ResourceID,
		Units:         ev.Units,
		Amount:        *ev.Price,
		UpdatedAt:     ev.At,
	}
	switch ev.Kind {
	case reservation.EventReservationConfirmed:
		line.Status = ChargePending
	case reservation.EventReservationCompleted:
		line.Status = ChargeFinalized
	case reservation.EventReservationCancelled:
		line.Status = ChargeVoided
	default:
		return
	}
	rc.charges[ev.ReservationID] = line
}

// Charges returns the requester's charge lines, ordered by update time.
func (rc *Recorder) Charges(requester reservation.RequesterID) []ChargeLine {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	var out []ChargeLine
	for _, line := range rc.charges {
		if line.RequesterID == requester {
			out = append(out, line)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	return out
}

// Outstanding sums the requester's pending and finalized charges.
// Voided charges do not count.
func (rc *Recorder) Outstanding(requester reservation.RequesterID) decimal.Decimal {
	total := decimal.Zero
	for _, line := range rc.Charges(requester) {
		if line.Status == ChargeVoided {
			continue
		}
		total = total.Add(line.Amount)
	}
	return total
}
