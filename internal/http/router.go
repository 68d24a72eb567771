// README: HTTP router registration.
package http

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"taybat/internal/http/handlers"
	"taybat/internal/http/middleware"
	"taybat/internal/modules/dispatch"
	"taybat/internal/modules/driver"
	"taybat/internal/modules/order"
)

type RouterDeps struct {
	Order    *order.Service
	Driver   *driver.Service
	Dispatch *dispatch.Service
	Logger   *slog.Logger
}

func NewRouter(deps RouterDeps) http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.Logging(deps.Logger))

	orderHandler := handlers.NewOrderHandler(deps.Order)
	r.POST("/api/orders", orderHandler.Create)
	r.GET("/api/orders/:id", orderHandler.Get)

	driverHandler := handlers.NewDriverHandler(deps.Order, deps.Driver, deps.Dispatch)
	r.POST("/api/drivers/availability", driverHandler.SetAvailability)
	r.PUT("/api/drivers/location", driverHandler.UpdateLocation)
	r.GET("/api/drivers/suggested-orders", driverHandler.ListSuggested)
	r.POST("/api/drivers/orders/:id/accept", driverHandler.Accept)
	r.POST("/api/drivers/orders/:id/reject", driverHandler.Reject)
	r.POST("/api/drivers/orders/:id/status", driverHandler.Progress)

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})

	return r
}
