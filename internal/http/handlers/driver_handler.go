// README: Driver-facing handlers: availability, location, offer browsing,
// accept/reject, and delivery progress.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"taybat/internal/modules/dispatch"
	"taybat/internal/modules/driver"
	"taybat/internal/modules/order"
	"taybat/internal/types"
)

type DriverHandler struct {
	order    *order.Service
	driver   *driver.Service
	dispatch *dispatch.Service
}

func NewDriverHandler(orderSvc *order.Service, driverSvc *driver.Service, dispatchSvc *dispatch.Service) *DriverHandler {
	return &DriverHandler{order: orderSvc, driver: driverSvc, dispatch: dispatchSvc}
}

type availabilityReq struct {
	DriverID string `json:"driver_id"`
	Online   *bool  `json:"online"`
}

func (h *DriverHandler) SetAvailability(c *gin.Context) {
	var req availabilityReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if !isValidID(req.DriverID) || req.Online == nil {
		writeError(c, http.StatusBadRequest, "missing fields")
		return
	}
	if err := h.driver.SetOnline(c.Request.Context(), types.ID(req.DriverID), *req.Online); err != nil {
		writeDriverError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"driver_id": req.DriverID, "online": *req.Online})
}

type locationReq struct {
	DriverID string  `json:"driver_id"`
	Lat      float64 `json:"lat"`
	Lng      float64 `json:"lng"`
}

func (h *DriverHandler) UpdateLocation(c *gin.Context) {
	var req locationReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if !isValidID(req.DriverID) {
		writeError(c, http.StatusBadRequest, "missing driver_id")
		return
	}
	if req.Lat < -90 || req.Lat > 90 || req.Lng < -180 || req.Lng > 180 {
		writeError(c, http.StatusBadRequest, "coordinates out of range")
		return
	}
	err := h.driver.UpdateLocation(c.Request.Context(), types.ID(req.DriverID), types.Point{Lat: req.Lat, Lng: req.Lng})
	if err != nil {
		writeDriverError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"driver_id": req.DriverID})
}

func (h *DriverHandler) ListSuggested(c *gin.Context) {
	driverID := c.Query("driver_id")
	if !isValidID(driverID) {
		writeError(c, http.StatusBadRequest, "missing driver_id")
		return
	}
	offers, err := h.dispatch.ListSuggested(c.Request.Context(), types.ID(driverID))
	if err != nil {
		writeDispatchError(c, err)
		return
	}

	out := make([]gin.H, 0, len(offers))
	for _, of := range offers {
		out = append(out, gin.H{
			"order_id":    of.Order.ID,
			"order_type":  of.Order.Type,
			"pickup":      of.Order.Pickup,
			"dropoff":     of.Order.Dropoff,
			"distance_km": of.DistanceKm,
			"expires_at":  of.ExpiresAt,
		})
	}
	writeJSON(c, http.StatusOK, gin.H{"orders": out})
}

func (h *DriverHandler) Accept(c *gin.Context) {
	orderID, driverID, ok := h.offerParams(c)
	if !ok {
		return
	}
	err := h.dispatch.Accept(c.Request.Context(), dispatch.AcceptCommand{
		OrderID:  orderID,
		DriverID: driverID,
	})
	if err != nil {
		writeDispatchError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"order_id": orderID, "status": order.StatusAccepted})
}

func (h *DriverHandler) Reject(c *gin.Context) {
	orderID, driverID, ok := h.offerParams(c)
	if !ok {
		return
	}
	err := h.dispatch.Reject(c.Request.Context(), dispatch.RejectCommand{
		OrderID:  orderID,
		DriverID: driverID,
	})
	if err != nil {
		writeDispatchError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"order_id": orderID})
}

type progressReq struct {
	DriverID string `json:"driver_id"`
	Status   string `json:"status"`
}

// Progress moves an assigned order along on_the_way, delivered, completed.
func (h *DriverHandler) Progress(c *gin.Context) {
	id := c.Param("id")
	if !isValidID(id) {
		writeError(c, http.StatusBadRequest, "missing order id")
		return
	}
	var req progressReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if !isValidID(req.DriverID) || req.Status == "" {
		writeError(c, http.StatusBadRequest, "missing fields")
		return
	}
	err := h.order.Advance(c.Request.Context(), order.AdvanceCommand{
		OrderID:  types.ID(id),
		DriverID: types.ID(req.DriverID),
		To:       order.Status(req.Status),
	})
	if err != nil {
		writeOrderError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"order_id": id, "status": req.Status})
}

func (h *DriverHandler) offerParams(c *gin.Context) (types.ID, types.ID, bool) {
	id := c.Param("id")
	if !isValidID(id) {
		writeError(c, http.StatusBadRequest, "missing order id")
		return "", "", false
	}
	driverID := c.Query("driver_id")
	if !isValidID(driverID) {
		writeError(c, http.StatusBadRequest, "missing driver_id")
		return "", "", false
	}
	return types.ID(id), types.ID(driverID), true
}
