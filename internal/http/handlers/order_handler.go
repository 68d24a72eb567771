// README: Customer-facing order handlers: create and status lookup.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"taybat/internal/modules/order"
	"taybat/internal/types"
)

type OrderHandler struct {
	order *order.Service
}

func NewOrderHandler(svc *order.Service) *OrderHandler {
	return &OrderHandler{order: svc}
}

type createOrderReq struct {
	OrderType        string   `json:"order_type"`
	CustomerID       string   `json:"customer_id"`
	PickupLat        float64  `json:"pickup_lat"`
	PickupLng        float64  `json:"pickup_lng"`
	DropoffLat       float64  `json:"dropoff_lat"`
	DropoffLng       float64  `json:"dropoff_lng"`
	RequestedVehicle string   `json:"requested_vehicle_type"`
	DistanceKm       *float64 `json:"distance_km"`
}

func (h *OrderHandler) Create(c *gin.Context) {
	var req createOrderReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if req.OrderType == "" || !isValidID(req.CustomerID) {
		writeError(c, http.StatusBadRequest, "missing fields")
		return
	}

	cmd := order.CreateCommand{
		Type:       order.Type(req.OrderType),
		CustomerID: types.ID(req.CustomerID),
		Pickup:     types.Point{Lat: req.PickupLat, Lng: req.PickupLng},
		Dropoff:    types.Point{Lat: req.DropoffLat, Lng: req.DropoffLng},
		DistanceKm: req.DistanceKm,
	}
	if req.RequestedVehicle != "" {
		v := order.VehicleType(req.RequestedVehicle)
		cmd.RequestedVehicle = &v
	}

	id, err := h.order.Create(c.Request.Context(), cmd)
	if err != nil {
		writeOrderError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, gin.H{"order_id": id, "status": order.StatusSearching})
}

func (h *OrderHandler) Get(c *gin.Context) {
	id := c.Param("id")
	if !isValidID(id) {
		writeError(c, http.StatusBadRequest, "missing order id")
		return
	}
	o, err := h.order.Get(c.Request.Context(), types.ID(id))
	if err != nil {
		writeOrderError(c, err)
		return
	}
	resp := gin.H{
		"order_id":   o.ID,
		"order_type": o.Type,
		"status":     o.Status,
		"pickup":     o.Pickup,
		"dropoff":    o.Dropoff,
	}
	if o.DriverID != nil {
		resp["driver_id"] = *o.DriverID
	}
	writeJSON(c, http.StatusOK, resp)
}
