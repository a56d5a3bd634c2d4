// README: Prometheus collector for discovery outcomes and the HTTP surface.
package observability

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector bundles the service metrics. It implements discovery.Recorder.
type Collector struct {
	gatherer prometheus.Gatherer

	Activations      prometheus.Counter
	Triggers         prometheus.Counter
	TriggerIntensity prometheus.Histogram
	Outcomes         *prometheus.CounterVec
	DegradedFixes    prometheus.Counter
	Results          prometheus.Histogram
	ResolveDuration  *prometheus.HistogramVec

	HTTPRequests  *prometheus.CounterVec
	HTTPDurations *prometheus.HistogramVec
}

// NewCollector registers metrics against reg, defaulting to the global
// registry when nil.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	activations, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "discovery_activations_total",
		Help: "Discovery sessions that started listening.",
	}), "discovery_activations_total")
	if err != nil {
		return nil, err
	}
	triggers, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "discovery_triggers_total",
		Help: "Shakes that crossed the motion threshold.",
	}), "discovery_triggers_total")
	if err != nil {
		return nil, err
	}
	intensity, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "discovery_trigger_intensity",
		Help:    "Acceleration magnitude of triggering samples in m/s².",
		Buckets: []float64{15, 20, 25, 30, 40, 50, 75, 100},
	}), "discovery_trigger_intensity")
	if err != nil {
		return nil, err
	}
	outcomes, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "discovery_outcomes_total",
		Help: "Terminal discovery outcomes, labeled by outcome and error kind.",
	}, []string{"outcome", "kind"}), "discovery_outcomes_total")
	if err != nil {
		return nil, err
	}
	degraded, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "discovery_degraded_locations_total",
		Help: "Completed passes ranked around the fallback location.",
	}), "discovery_degraded_locations_total")
	if err != nil {
		return nil, err
	}
	results, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "discovery_results",
		Help:    "Number of companions returned per completed pass.",
		Buckets: []float64{0, 1, 2, 5, 10, 20, 50, 100},
	}), "discovery_results")
	if err != nil {
		return nil, err
	}
	resolve, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "discovery_resolve_duration_seconds",
		Help:    "Time from trigger to terminal event.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 15},
	}, []string{"outcome"}), "discovery_resolve_duration_seconds")
	if err != nil {
		return nil, err
	}
	requests, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Handled HTTP requests, labeled by method, route and status code.",
	}, []string{"method", "route", "code"}), "http_requests_total")
	if err != nil {
		return nil, err
	}
	durations, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency in seconds.",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"method", "route"}), "http_request_duration_seconds")
	if err != nil {
		return nil, err
	}

	return &Collector{
		gatherer:         gatherer,
		Activations:      activations,
		Triggers:         triggers,
		TriggerIntensity: intensity,
		Outcomes:         outcomes,
		DegradedFixes:    degraded,
		Results:          results,
		ResolveDuration:  resolve,
		HTTPRequests:     requests,
		HTTPDurations:    durations,
	}, nil
}

func (c *Collector) SessionActivated() {
	c.Activations.Inc()
}

func (c *Collector) SessionTriggered(intensity float64) {
	c.Triggers.Inc()
	c.TriggerIntensity.Observe(intensity)
}

func (c *Collector) SessionCompleted(results int, degraded bool, elapsed time.Duration) {
	c.Outcomes.WithLabelValues("completed", "").Inc()
	c.Results.Observe(float64(results))
	c.ResolveDuration.WithLabelValues("completed").Observe(elapsed.Seconds())
	if degraded {
		c.DegradedFixes.Inc()
	}
}

// SessionFailed records a failure. Listen timeouts never resolve, so they
// carry no duration sample.
func (c *Collector) SessionFailed(kind string, elapsed time.Duration) {
	c.Outcomes.WithLabelValues("failed", kind).Inc()
	if elapsed > 0 {
		c.ResolveDuration.WithLabelValues("failed").Observe(elapsed.Seconds())
	}
}

func (c *Collector) SessionCancelled() {
	c.Outcomes.WithLabelValues("cancelled", "").Inc()
}

// GinMiddleware records request counts and durations by route template.
// Long-lived event streams are included; their duration is the stream length.
func (c *Collector) GinMiddleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		start := time.Now()
		ctx.Next()

		route := ctx.FullPath()
		if route == "" {
			route = "unmatched"
		}
		method := ctx.Request.Method
		c.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(ctx.Writer.Status())).Inc()
		c.HTTPDurations.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	}
}

// Handler exposes a ready-to-use /metrics handler.
func (c *Collector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func registerCounter(reg prometheus.Registerer, c prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return c, nil
}

func registerHistogram(reg prometheus.Registerer, h prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(h); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return h, nil
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}
