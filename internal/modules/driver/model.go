// README: Driver profile and live-location definitions.
package driver

import (
	"time"

	"taybat/internal/modules/order"
	"taybat/internal/types"
)

type ApprovalStatus string

const (
	StatusPending  ApprovalStatus = "pending"
	StatusApproved ApprovalStatus = "approved"
	StatusRejected ApprovalStatus = "rejected"
)

// Profile is the operational record for a driver: approval, vehicle, and
// which service verticals they accept work from.
type Profile struct {
	ID            types.ID
	Status        ApprovalStatus
	VehicleType   order.VehicleType
	AcceptsFood   bool
	AcceptsParcel bool
	AcceptsRide   bool
	Online        bool
	CreatedAt     time.Time
}

func (p Profile) Approved() bool {
	return p.Status == StatusApproved
}

// Location is a driver's last reported position. Held in Redis; UpdatedAt
// drives the staleness window during candidate selection.
type Location struct {
	DriverID  types.ID
	Position  types.Point
	UpdatedAt time.Time
}

// Available is a profile joined with a fresh location, ready for ranking.
type Available struct {
	Profile  Profile
	Location Location
}
