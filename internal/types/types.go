// README: Shared scalar types used across modules.
package types

// ID identifies users, drivers, and orders. Generated as 32-char hex.
type ID string

// Point is a WGS84 coordinate in decimal degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}
