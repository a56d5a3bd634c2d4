// README: Reverse geocoding handler with coordinate fallback.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"travelmate/internal/logging"
	"travelmate/internal/maps"
	"travelmate/internal/types"
)

// AddressLookup is the subset of *maps.AddressService used here.
type AddressLookup interface {
	Lookup(ctx context.Context, p types.GeoPoint) (maps.Address, error)
}

type AddressHandler struct {
	addresses AddressLookup
}

func NewAddressHandler(addresses AddressLookup) *AddressHandler {
	return &AddressHandler{addresses: addresses}
}

type addressFailure struct {
	Error    string `json:"error"`
	Fallback string `json:"fallback"`
}

func (h *AddressHandler) Reverse(c *gin.Context) {
	lat, latErr := strconv.ParseFloat(c.Query("lat"), 64)
	lng, lngErr := strconv.ParseFloat(c.Query("lng"), 64)
	p := types.GeoPoint{Lat: lat, Lng: lng}
	if latErr != nil || lngErr != nil || !p.Valid() {
		writeError(c, http.StatusBadRequest, maps.ErrInvalidCoordinates.Error())
		return
	}

	ctx := c.Request.Context()
	a, err := h.addresses.Lookup(ctx, p)
	switch {
	case err == nil:
		writeJSON(c, http.StatusOK, a)
	case errors.Is(err, maps.ErrInvalidCoordinates):
		writeError(c, http.StatusBadRequest, err.Error())
	default:
		logging.FromContext(ctx, nil).Warn("reverse geocoding failed", "lat", lat, "lng", lng, "error", err)
		writeJSON(c, http.StatusBadGateway, addressFailure{
			Error:    maps.ErrLookupFailed.Error(),
			Fallback: maps.CoordinateFallback(p),
		})
	}
}
