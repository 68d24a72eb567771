// README: Dispatch persistence contract. The (order, dispatch state) pair is
// the unit of serialization; every read-modify-write path runs under
// WithOrderLock.
package dispatch

import (
	"context"
	"errors"
	"time"

	"taybat/internal/modules/order"
	"taybat/internal/types"
)

var (
	ErrNotFound     = errors.New("order not found")
	ErrConflict     = errors.New("order already taken")
	ErrForbidden    = errors.New("driver not allowed")
	ErrInvalidState = errors.New("order not in a valid state")
)

// Tx exposes the operations available inside an order's critical section.
// Implementations guarantee that everything called on a Tx reads and writes
// atomically with respect to other WithOrderLock sections for the same order.
type Tx interface {
	// Order returns the locked order row.
	Order() *order.Order
	// State returns the locked dispatch state, creating it on first use.
	State(ctx context.Context) (*State, error)
	SaveState(ctx context.Context, st *State) error

	// SetOrderStatus updates the order status and appends a history row.
	SetOrderStatus(ctx context.Context, to order.Status) error
	// AssignDriver sets the driver, moves the order to accepted, and appends
	// a history row.
	AssignDriver(ctx context.Context, driverID types.ID) error

	// SuggestedDriverIDs lists every driver ever offered this order, any
	// cycle, any outcome.
	SuggestedDriverIDs(ctx context.Context) ([]types.ID, error)
	// LiveSentExists reports whether any sent suggestion is still inside its
	// acceptance window.
	LiveSentExists(ctx context.Context, now time.Time) (bool, error)
	// SentSuggestion returns this driver's suggestion in status sent, expired
	// or not, or nil when none exists.
	SentSuggestion(ctx context.Context, driverID types.ID) (*Suggestion, error)
	// LiveSentSuggestion is SentSuggestion restricted to unexpired offers.
	LiveSentSuggestion(ctx context.Context, driverID types.ID, now time.Time) (*Suggestion, error)

	InsertSuggestions(ctx context.Context, suggestions []*Suggestion) error
	// ResolveSuggestion performs the single allowed transition out of sent.
	ResolveSuggestion(ctx context.Context, id int64, status SuggestionStatus, at time.Time) error
	// ExpireCycleSent expires every sent suggestion of one cycle and returns
	// how many rows changed.
	ExpireCycleSent(ctx context.Context, cycle int, at time.Time) (int64, error)
	// ExpireOtherSent expires every sent suggestion except the given one,
	// across all cycles.
	ExpireOtherSent(ctx context.Context, keepID int64, at time.Time) (int64, error)
}

type Store interface {
	// WithOrderLock runs fn while holding exclusive ownership of the
	// (order, dispatch state) aggregate. Returns ErrNotFound when the order
	// does not exist. fn's error aborts the whole critical section.
	WithOrderLock(ctx context.Context, orderID types.ID, fn func(ctx context.Context, tx Tx) error) error

	// ListDispatchable returns ids of unassigned orders the loop should
	// visit: status searching_for_driver or driver_notification_sent.
	ListDispatchable(ctx context.Context) ([]types.ID, error)

	// ListOffers returns a driver's live, unexpired offers on unassigned,
	// still-dispatchable orders.
	ListOffers(ctx context.Context, driverID types.ID, now time.Time) ([]Offer, error)
}
