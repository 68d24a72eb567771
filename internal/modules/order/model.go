// README: Order aggregate, service types, and status definitions.
package order

import (
	"time"

	"taybat/internal/types"
)

// Type is the service vertical an order belongs to.
type Type string

const (
	TypeFood   Type = "food"
	TypeParcel Type = "parcel"
	TypeRide   Type = "ride"
)

type Status string

const (
	StatusPending          Status = "pending"
	StatusSearching        Status = "searching_for_driver"
	StatusNotificationSent Status = "driver_notification_sent"
	StatusAccepted         Status = "accepted"
	StatusOnTheWay         Status = "on_the_way"
	StatusDelivered        Status = "delivered"
	StatusCompleted        Status = "completed"
	StatusRejected         Status = "rejected"
	StatusCancelled        Status = "cancelled"
)

type VehicleType string

const (
	VehicleBike  VehicleType = "bike"
	VehicleMotor VehicleType = "motor"
	VehicleCar   VehicleType = "car"
	VehicleVan   VehicleType = "van"
)

type Order struct {
	ID         types.ID
	Type       Type
	CustomerID types.ID
	DriverID   *types.ID
	Status     Status
	Pickup     types.Point
	Dropoff    types.Point
	// RequestedVehicle constrains parcel and ride orders to an exact
	// vehicle type when set.
	RequestedVehicle *VehicleType
	// DistanceKm is precomputed by the pricing engine at checkout.
	DistanceKm *float64
	CreatedAt  time.Time
}

// StatusHistory is an immutable audit row; one per status the order takes.
type StatusHistory struct {
	ID      int64
	OrderID types.ID
	Status  Status
	At      time.Time
}

// AllowedTransitions represents the order state flow as code. Dispatch flips
// orders between searching and notification-sent; drivers walk the tail of
// the chain after acceptance.
var AllowedTransitions = map[Status][]Status{
	StatusPending:          {StatusSearching, StatusCancelled},
	StatusSearching:        {StatusNotificationSent, StatusAccepted, StatusRejected, StatusCancelled},
	StatusNotificationSent: {StatusSearching, StatusAccepted, StatusRejected, StatusCancelled},
	StatusAccepted:         {StatusOnTheWay, StatusCancelled},
	StatusOnTheWay:         {StatusDelivered},
	StatusDelivered:        {StatusCompleted},
}

func CanTransition(from, to Status) bool {
	for _, s := range AllowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Dispatchable reports whether the matching engine may still act on an order
// in this status.
func Dispatchable(s Status) bool {
	return s == StatusSearching || s == StatusNotificationSent
}
