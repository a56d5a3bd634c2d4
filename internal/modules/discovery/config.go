package discovery

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"travelmate/internal/modules/candidate"
	"travelmate/internal/modules/location"
	"travelmate/internal/modules/motion"
	"travelmate/internal/modules/ranking"
	"travelmate/internal/types"
)

const (
	DefaultResolveTimeout = 15 * time.Second
	DefaultRadiusKm       = 1.0
	DefaultIdleTTL        = 30 * time.Minute
	// eventBuffer holds every event one activation can emit.
	eventBuffer = 8
	// addressBudget bounds the best-effort address lookup.
	addressBudget = 2 * time.Second
)

type Config struct {
	Gate            motion.GateConfig
	ResolveTimeout  time.Duration
	DefaultRadiusKm float64
	// Fallback, when set, replaces an unavailable location; results are
	// then marked degraded.
	Fallback *types.GeoPoint
}

func DefaultConfig() Config {
	return Config{
		Gate:            motion.DefaultGateConfig(),
		ResolveTimeout:  DefaultResolveTimeout,
		DefaultRadiusKm: DefaultRadiusKm,
	}
}

func (c Config) withDefaults() Config {
	if c.Gate.Threshold <= 0 {
		c.Gate.Threshold = motion.DefaultThreshold
	}
	if c.Gate.ListenWindow <= 0 {
		c.Gate.ListenWindow = motion.DefaultListenWindow
	}
	if c.ResolveTimeout <= 0 {
		c.ResolveTimeout = DefaultResolveTimeout
	}
	if c.DefaultRadiusKm <= 0 {
		c.DefaultRadiusKm = DefaultRadiusKm
	}
	return c
}

// Addresser resolves a human-readable address for the origin of a pass.
type Addresser interface {
	Address(ctx context.Context, p types.GeoPoint) (string, error)
}

// Dependencies are the collaborators a session resolves through.
// Location, Pool and Ranker are required.
type Dependencies struct {
	Location  location.Provider
	Pool      candidate.Pool
	Ranker    *ranking.Ranker
	Addresser Addresser
	Logger    *slog.Logger
	Clock     func() time.Time
	Tracer    trace.Tracer
}

func (d Dependencies) withDefaults() Dependencies {
	if d.Ranker == nil {
		d.Ranker = ranking.NewRanker(ranking.DefaultWeights())
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Clock == nil {
		d.Clock = time.Now
	}
	if d.Tracer == nil {
		d.Tracer = otel.Tracer("travelmate/discovery")
	}
	return d
}
