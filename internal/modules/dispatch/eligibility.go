// README: Driver eligibility rules for orders. Pure predicate, one call per
// candidate per cycle.
package dispatch

import (
	"taybat/internal/modules/driver"
	"taybat/internal/modules/order"
)

// IsEligible reports whether a driver profile may serve an order:
// food needs the food flag; parcel and ride need their flags plus an exact
// vehicle match when the order requests one. Unknown order types fail closed.
func IsEligible(p driver.Profile, o *order.Order) bool {
	switch o.Type {
	case order.TypeFood:
		return p.AcceptsFood

	case order.TypeParcel:
		if !p.AcceptsParcel {
			return false
		}
		return vehicleMatches(p, o)

	case order.TypeRide:
		if !p.AcceptsRide {
			return false
		}
		return vehicleMatches(p, o)

	default:
		return false
	}
}

func vehicleMatches(p driver.Profile, o *order.Order) bool {
	return o.RequestedVehicle == nil || p.VehicleType == *o.RequestedVehicle
}
