// README: Order service implements creation and driver progress transitions.
package order

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"taybat/internal/types"
)

var (
	ErrNotFound     = errors.New("order not found")
	ErrConflict     = errors.New("order state conflict")
	ErrInvalidState = errors.New("invalid state transition")
	ErrBadRequest   = errors.New("bad request")
)

// Store defines persistence for orders. The postgres implementation lives in
// store.go; tests substitute an in-memory fake.
type Store interface {
	Create(ctx context.Context, o *Order) error
	Get(ctx context.Context, id types.ID) (*Order, error)
	// UpdateStatus performs a compare-and-set on the order status, optionally
	// assigning a driver, and reports whether the row was updated.
	UpdateStatus(ctx context.Context, id types.ID, from, to Status, driverID *types.ID) (bool, error)
	AppendHistory(ctx context.Context, h *StatusHistory) error
}

type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

type CreateCommand struct {
	Type             Type
	CustomerID       types.ID
	Pickup           types.Point
	Dropoff          types.Point
	RequestedVehicle *VehicleType
	DistanceKm       *float64
}

type AdvanceCommand struct {
	OrderID  types.ID
	DriverID types.ID
	To       Status
}

// Create registers an order handed over by the checkout flow. The order
// starts in searching_for_driver; the dispatch loop picks it up on its next
// pass.
func (s *Service) Create(ctx context.Context, cmd CreateCommand) (types.ID, error) {
	switch cmd.Type {
	case TypeFood, TypeParcel, TypeRide:
	default:
		return "", ErrBadRequest
	}
	if cmd.CustomerID == "" {
		return "", ErrBadRequest
	}

	now := time.Now()
	o := &Order{
		ID:               NewID(),
		Type:             cmd.Type,
		CustomerID:       cmd.CustomerID,
		Status:           StatusSearching,
		Pickup:           cmd.Pickup,
		Dropoff:          cmd.Dropoff,
		RequestedVehicle: cmd.RequestedVehicle,
		DistanceKm:       cmd.DistanceKm,
		CreatedAt:        now,
	}
	if err := s.store.Create(ctx, o); err != nil {
		return "", err
	}
	_ = s.store.AppendHistory(ctx, &StatusHistory{OrderID: o.ID, Status: StatusSearching, At: now})
	return o.ID, nil
}

func (s *Service) Get(ctx context.Context, id types.ID) (*Order, error) {
	return s.store.Get(ctx, id)
}

// Advance moves an assigned order along the delivery chain
// (accepted → on_the_way → delivered → completed) on behalf of its driver.
func (s *Service) Advance(ctx context.Context, cmd AdvanceCommand) error {
	o, err := s.store.Get(ctx, cmd.OrderID)
	if err != nil {
		return err
	}
	if o.DriverID == nil || *o.DriverID != cmd.DriverID {
		return ErrNotFound
	}
	switch cmd.To {
	case StatusOnTheWay, StatusDelivered, StatusCompleted:
	default:
		return ErrBadRequest
	}
	if !CanTransition(o.Status, cmd.To) {
		return ErrInvalidState
	}
	ok, err := s.store.UpdateStatus(ctx, o.ID, o.Status, cmd.To, nil)
	if err != nil {
		return err
	}
	if !ok {
		return ErrConflict
	}
	_ = s.store.AppendHistory(ctx, &StatusHistory{OrderID: o.ID, Status: cmd.To, At: time.Now()})
	return nil
}

// NewID returns a 32-char hex identifier.
func NewID() types.ID {
	var b [16]byte
	_, _ = rand.Read(b[:])
	return types.ID(hex.EncodeToString(b[:]))
}
