// README: Discovery handlers: activate (event stream), samples, cancel and status.
package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"travelmate/internal/logging"
	"travelmate/internal/modules/discovery"
	"travelmate/internal/modules/motion"
	"travelmate/internal/modules/ranking"
)

// maxSamplesPerRequest bounds one upload; clients batch at 10 Hz.
const maxSamplesPerRequest = 200

type DiscoveryHandler struct {
	manager *discovery.Manager
	clock   func() time.Time
}

func NewDiscoveryHandler(m *discovery.Manager) *DiscoveryHandler {
	return &DiscoveryHandler{manager: m, clock: time.Now}
}

type sampleRequest struct {
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	Z           float64 `json:"z"`
	TimestampMs int64   `json:"ts_ms"`
}

type samplesRequest struct {
	Samples []sampleRequest `json:"samples" binding:"required,min=1,max=200"`
}

type cancelResponse struct {
	Cancelled bool `json:"cancelled"`
}

// eventPayload is the data line of one server-sent event. Results shadows
// the embedded field so a completed event always carries a list.
type eventPayload struct {
	discovery.Event
	Results *[]ranking.MatchResult `json:"results,omitempty"`
	Error   *errorResponse         `json:"error,omitempty"`
}

func newEventPayload(e discovery.Event) eventPayload {
	p := eventPayload{Event: e}
	if e.Type == discovery.EventCompleted {
		results := e.Results
		if results == nil {
			results = []ranking.MatchResult{}
		}
		p.Results = &results
	}
	if e.Err != nil {
		p.Error = &errorResponse{Error: e.Err.Error(), Kind: string(discovery.KindOf(e.Err))}
	}
	return p
}

// Activate starts listening for a shake and streams the session events as
// SSE until the activation completes, fails or is superseded. A client that
// disconnects cancels its own activation.
func (h *DiscoveryHandler) Activate(c *gin.Context) {
	requester, ok := travelerParam(c, "requester")
	if !ok {
		return
	}
	var radiusKm float64
	if q := c.Query("radius_km"); q != "" {
		v, err := strconv.ParseFloat(q, 64)
		if err != nil {
			writeError(c, http.StatusBadRequest, "invalid radius_km")
			return
		}
		radiusKm = v
	}

	events, err := h.manager.Activate(requester, radiusKm)
	if err != nil {
		writeDiscoveryError(c, err)
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	ctx := c.Request.Context()
	logger := logging.FromContext(ctx, nil)

	// Activate buffers the listening event before it returns, so this
	// receive does not block and pins the generation this stream owns.
	first, ok := <-events
	if !ok {
		return
	}
	gen := first.Generation
	c.SSEvent(string(first.Type), newEventPayload(first))
	c.Writer.Flush()

	for {
		select {
		case <-ctx.Done():
			if h.manager.CancelGeneration(requester, gen) {
				logger.Info("discovery stream closed by client", "requester_id", string(requester), "generation", gen)
			}
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			c.SSEvent(string(e.Type), newEventPayload(e))
			c.Writer.Flush()
		}
	}
}

// Samples feeds accelerometer readings to the requester's session and
// returns the resulting status.
func (h *DiscoveryHandler) Samples(c *gin.Context) {
	requester, ok := travelerParam(c, "requester")
	if !ok {
		return
	}
	var req samplesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "samples must hold between 1 and "+strconv.Itoa(maxSamplesPerRequest)+" readings")
		return
	}

	now := h.clock()
	samples := make([]motion.Sample, 0, len(req.Samples))
	for _, s := range req.Samples {
		at := now
		if s.TimestampMs > 0 {
			at = time.UnixMilli(s.TimestampMs)
		}
		samples = append(samples, motion.Sample{X: s.X, Y: s.Y, Z: s.Z, At: at})
	}

	st, err := h.manager.Observe(requester, samples...)
	if err != nil {
		writeDiscoveryError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, st)
}

func (h *DiscoveryHandler) Cancel(c *gin.Context) {
	requester, ok := travelerParam(c, "requester")
	if !ok {
		return
	}
	writeJSON(c, http.StatusOK, cancelResponse{Cancelled: h.manager.Cancel(requester)})
}

func (h *DiscoveryHandler) Status(c *gin.Context) {
	requester, ok := travelerParam(c, "requester")
	if !ok {
		return
	}
	st, err := h.manager.Status(requester)
	if err != nil {
		writeDiscoveryError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, st)
}
