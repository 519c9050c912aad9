package reservation

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// WINDOW - Half-open time interval [Start, End)
// =============================================================================

// Window is the interval during which a reservation holds its unit.
// A zero End means the hold is open-ended: it lasts until the reservation
// is completed or cancelled. Open-ended windows behave as [Start, +inf).
type Window struct {
	Start time.Time
	End   time.Time
}

// NewWindow builds a bounded window. End must be strictly after Start;
// otherwise ErrInvalidWindow is returned and nothing reaches the ledger.
func NewWindow(start, end time.Time) (Window, error) {
	if start.IsZero() || end.IsZero() {
		return Window{}, &InvalidWindowError{Start: start, End: end, Reason: "start and end are required"}
	}
	if !end.After(start) {
		return Window{}, &InvalidWindowError{Start: start, End: end, Reason: "end must be after start"}
	}
	return Window{Start: start, End: end}, nil
}

// OpenWindow builds an open-ended hold starting at start.
func OpenWindow(start time.Time) Window {
	return Window{Start: start}
}

// InstantWindow is the degenerate window covering exactly the instant t.
// The resolver uses it to answer "what is the state right now".
func InstantWindow(t time.Time) Window {
	return Window{Start: t, End: t.Add(time.Nanosecond)}
}

// OpenEnded reports whether the window is a hold-until-released window.
func (w Window) OpenEnded() bool { return w.End.IsZero() }

// Validate rejects malformed windows. Open-ended windows only need a start.
func (w Window) Validate() error {
	if w.Start.IsZero() {
		return &InvalidWindowError{Start: w.Start, End: w.End, Reason: "start is required"}
	}
	if !w.OpenEnded() && !w.End.After(w.Start) {
		return &InvalidWindowError{Start: w.Start, End: w.End, Reason: "end must be after start"}
	}
	return nil
}

// Overlaps reports whether two windows intersect in time. Half-open
// semantics: [10:00, 12:00) and [12:00, 14:00) do NOT overlap. Open ends
// are treated as +infinity, so two open-ended holds always overlap.
func (w Window) Overlaps(o Window) bool {
	startsBeforeEndOf := func(a, b Window) bool {
		return b.OpenEnded() || a.Start.Before(b.End)
	}
	return startsBeforeEndOf(w, o) && startsBeforeEndOf(o, w)
}

// Duration returns the bounded length, or zero for open-ended windows.
func (w Window) Duration() time.Duration {
	if w.OpenEnded() {
		return 0
	}
	return w.End.Sub(w.Start)
}

// BillableHours is the window length in hours, fractional. Open-ended
// windows bill as a single unit (the collaborator re-prices on release).
func (w Window) BillableHours() decimal.Decimal {
	if w.OpenEnded() {
		return decimal.NewFromInt(1)
	}
	return decimal.NewFromFloat(w.Duration().Hours())
}

// BillableDays is the window length in whole days, rounding any partial
// day up: a stay of 2 days and 3 hours bills as 3 days.
func (w Window) BillableDays() int {
	if w.OpenEnded() {
		return 1
	}
	d := w.Duration()
	days := int(d / (24 * time.Hour))
	if d%(24*time.Hour) > 0 {
		days++
	}
	return days
}

func (w Window) String() string {
	if w.OpenEnded() {
		return fmt.Sprintf("[%s, ...)", w.Start.Format(time.RFC3339))
	}
	return fmt.Sprintf("[%s, %s)", w.Start.Format(time.RFC3339), w.End.Format(time.RFC3339))
}
