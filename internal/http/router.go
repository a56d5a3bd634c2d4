// README: HTTP router registration.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"travelmate/internal/http/handlers"
	"travelmate/internal/http/middleware"
)

func NewRouter(deps ServerDeps) *gin.Engine {
	r := gin.New()
	r.Use(middleware.Logging(deps.Logger), middleware.Recovery(deps.Logger))
	if deps.Metrics != nil {
		r.Use(deps.Metrics.GinMiddleware())
		r.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}

	api := r.Group("/api")

	discoveryHandler := handlers.NewDiscoveryHandler(deps.Discovery)
	api.POST("/discovery/:requester/activate", discoveryHandler.Activate)
	api.POST("/discovery/:requester/samples", discoveryHandler.Samples)
	api.POST("/discovery/:requester/cancel", discoveryHandler.Cancel)
	api.GET("/discovery/:requester", discoveryHandler.Status)

	travelerHandler := handlers.NewTravelerHandler(deps.Locations, deps.Positions, deps.Profiles)
	api.PUT("/travelers/:id/location", travelerHandler.UpdateLocation)
	api.PUT("/travelers/:id/profile", travelerHandler.UpdateProfile)

	addressHandler := handlers.NewAddressHandler(deps.Addresses)
	api.GET("/location/address", addressHandler.Reverse)

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})

	return r
}
