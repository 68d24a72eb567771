package dispatch

import (
	"testing"

	"taybat/internal/modules/driver"
	"taybat/internal/modules/order"
)

func TestIsEligible(t *testing.T) {
	car := order.VehicleCar
	van := order.VehicleVan

	tests := []struct {
		name    string
		profile driver.Profile
		order   order.Order
		want    bool
	}{
		{
			name:    "food order, driver takes food",
			profile: driver.Profile{AcceptsFood: true, VehicleType: order.VehicleBike},
			order:   order.Order{Type: order.TypeFood},
			want:    true,
		},
		{
			name:    "food order, driver does not take food",
			profile: driver.Profile{AcceptsParcel: true, AcceptsRide: true},
			order:   order.Order{Type: order.TypeFood},
			want:    false,
		},
		{
			name:    "food order ignores requested vehicle",
			profile: driver.Profile{AcceptsFood: true, VehicleType: order.VehicleBike},
			order:   order.Order{Type: order.TypeFood, RequestedVehicle: &van},
			want:    true,
		},
		{
			name:    "parcel order, no vehicle requested",
			profile: driver.Profile{AcceptsParcel: true, VehicleType: order.VehicleMotor},
			order:   order.Order{Type: order.TypeParcel},
			want:    true,
		},
		{
			name:    "parcel order, vehicle matches",
			profile: driver.Profile{AcceptsParcel: true, VehicleType: order.VehicleVan},
			order:   order.Order{Type: order.TypeParcel, RequestedVehicle: &van},
			want:    true,
		},
		{
			name:    "parcel order, vehicle mismatch",
			profile: driver.Profile{AcceptsParcel: true, VehicleType: order.VehicleMotor},
			order:   order.Order{Type: order.TypeParcel, RequestedVehicle: &van},
			want:    false,
		},
		{
			name:    "parcel order, driver does not take parcels",
			profile: driver.Profile{AcceptsFood: true, VehicleType: order.VehicleVan},
			order:   order.Order{Type: order.TypeParcel, RequestedVehicle: &van},
			want:    false,
		},
		{
			name:    "ride order, vehicle matches",
			profile: driver.Profile{AcceptsRide: true, VehicleType: order.VehicleCar},
			order:   order.Order{Type: order.TypeRide, RequestedVehicle: &car},
			want:    true,
		},
		{
			name:    "ride order, vehicle mismatch",
			profile: driver.Profile{AcceptsRide: true, VehicleType: order.VehicleVan},
			order:   order.Order{Type: order.TypeRide, RequestedVehicle: &car},
			want:    false,
		},
		{
			name:    "ride order, driver does not take rides",
			profile: driver.Profile{AcceptsFood: true, AcceptsParcel: true, VehicleType: order.VehicleCar},
			order:   order.Order{Type: order.TypeRide, RequestedVehicle: &car},
			want:    false,
		},
		{
			name:    "unknown order type fails closed",
			profile: driver.Profile{AcceptsFood: true, AcceptsParcel: true, AcceptsRide: true},
			order:   order.Order{Type: order.Type("freight")},
			want:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsEligible(tt.profile, &tt.order); got != tt.want {
				t.Errorf("IsEligible() = %v, want %v", got, tt.want)
			}
		})
	}
}
