// README: Traveler handlers: device location reports and profile upserts.
package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"travelmate/internal/logging"
	"travelmate/internal/modules/candidate"
	"travelmate/internal/modules/location"
	"travelmate/internal/types"
)

type TravelerHandler struct {
	locations *location.Service
	positions candidate.PositionWriter
	profiles  candidate.ProfileWriter
	clock     func() time.Time
}

// NewTravelerHandler wires the location fan-out and, when the configured pool
// keeps its own copy of travelers, the pool writers. Either writer may be nil.
func NewTravelerHandler(locations *location.Service, positions candidate.PositionWriter, profiles candidate.ProfileWriter) *TravelerHandler {
	return &TravelerHandler{locations: locations, positions: positions, profiles: profiles, clock: time.Now}
}

type locationRequest struct {
	Lat         *float64 `json:"lat" binding:"required"`
	Lng         *float64 `json:"lng" binding:"required"`
	TimestampMs int64    `json:"ts_ms"`
}

type profileRequest struct {
	TravelStyle string   `json:"travel_style" binding:"max=40"`
	Interests   []string `json:"interests" binding:"max=20"`
	Languages   []string `json:"languages" binding:"max=10"`
	Online      *bool    `json:"online"`
}

type statusResponse struct {
	Status string `json:"status"`
}

func (h *TravelerHandler) UpdateLocation(c *gin.Context) {
	id, ok := travelerParam(c, "id")
	if !ok {
		return
	}
	var req locationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "lat and lng are required")
		return
	}
	pos := types.GeoPoint{Lat: *req.Lat, Lng: *req.Lng}
	if !pos.Valid() {
		writeError(c, http.StatusBadRequest, location.ErrInvalidPoint.Error())
		return
	}
	at := h.clock()
	if req.TimestampMs > 0 {
		at = time.UnixMilli(req.TimestampMs)
	}

	ctx := c.Request.Context()
	logger := logging.FromContext(ctx, nil)
	err := h.locations.Update(ctx, location.Update{UserID: id, Position: pos, RecordedAt: at})
	if errors.Is(err, location.ErrInvalidPoint) {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		logger.Error("location update failed", "traveler_id", string(id), "error", err)
		writeError(c, http.StatusServiceUnavailable, "location store unavailable")
		return
	}
	if h.positions != nil {
		if err := h.positions.UpdatePosition(ctx, id, pos, at); err != nil {
			logger.Error("pool position update failed", "traveler_id", string(id), "error", err)
			writeError(c, http.StatusServiceUnavailable, "candidate pool unavailable")
			return
		}
	}
	writeJSON(c, http.StatusOK, statusResponse{Status: "ok"})
}

func (h *TravelerHandler) UpdateProfile(c *gin.Context) {
	id, ok := travelerParam(c, "id")
	if !ok {
		return
	}
	if h.profiles == nil {
		writeError(c, http.StatusNotImplemented, "the configured candidate pool does not accept profiles")
		return
	}
	var req profileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid profile")
		return
	}
	attrs := candidate.Attributes{
		TravelStyle:  req.TravelStyle,
		Interests:    req.Interests,
		Languages:    req.Languages,
		Online:       true,
		LastActiveAt: h.clock(),
	}
	if req.Online != nil {
		attrs.Online = *req.Online
	}

	ctx := c.Request.Context()
	err := h.profiles.UpsertProfile(ctx, id, attrs)
	switch {
	case errors.Is(err, candidate.ErrUnknownTraveler):
		writeError(c, http.StatusNotFound, "report a location before the profile")
	case err != nil:
		logging.FromContext(ctx, nil).Error("profile upsert failed", "traveler_id", string(id), "error", err)
		writeError(c, http.StatusServiceUnavailable, "candidate pool unavailable")
	default:
		writeJSON(c, http.StatusOK, statusResponse{Status: "ok"})
	}
}
