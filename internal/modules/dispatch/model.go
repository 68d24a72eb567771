// README: Dispatch bookkeeping: per-order state and the driver suggestion ledger.
package dispatch

import (
	"time"

	"taybat/internal/modules/order"
	"taybat/internal/types"
)

// State tracks the matching protocol for one order. Created lazily the first
// time the loop sees the order; never deleted while the order exists.
type State struct {
	OrderID types.ID
	// Cycle counts successful broadcasts. It only moves forward, and only
	// when a cycle actually went out.
	Cycle int
	// IsActive false means dispatch has given up; only operator action can
	// resurrect the order.
	IsActive         bool
	LastDispatchedAt *time.Time
	NextRetryAt      *time.Time
	UpdatedAt        time.Time
}

type SuggestionStatus string

const (
	SuggestionSent     SuggestionStatus = "sent"
	SuggestionAccepted SuggestionStatus = "accepted"
	SuggestionRejected SuggestionStatus = "rejected"
	SuggestionExpired  SuggestionStatus = "expired"
)

// Suggestion is a single offer of one order to one driver during one cycle.
// Append-mostly: the only mutation is the transition out of sent.
type Suggestion struct {
	ID       int64
	OrderID  types.ID
	DriverID types.ID
	Cycle    int
	// DistanceKm is a snapshot of the driver's distance to pickup when the
	// offer went out; never recomputed.
	DistanceKm  float64
	Status      SuggestionStatus
	NotifiedAt  time.Time
	ExpiresAt   time.Time
	RespondedAt *time.Time
}

// Live reports whether the suggestion is still open for a response.
func (s *Suggestion) Live(now time.Time) bool {
	return s.Status == SuggestionSent && s.ExpiresAt.After(now)
}

// Candidate is a ranked driver produced by the selector.
type Candidate struct {
	DriverID   types.ID
	DistanceKm float64
}

// Offer is the driver-facing projection of a live suggestion.
type Offer struct {
	Order      *order.Order
	DistanceKm float64
	ExpiresAt  time.Time
}
