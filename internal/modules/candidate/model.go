// README: Discoverable travelers and the pool contract ranking consumes.
package candidate

import (
	"context"
	"errors"
	"slices"
	"time"

	"travelmate/internal/types"
)

// ErrPoolUnavailable is wrapped by pool implementations when the backing
// source cannot be reached.
var ErrPoolUnavailable = errors.New("candidate pool unavailable")

// ErrUnknownTraveler is returned when a profile arrives before any position.
var ErrUnknownTraveler = errors.New("unknown traveler")

type Attributes struct {
	TravelStyle  string    `json:"travel_style"`
	Interests    []string  `json:"interests"`
	Languages    []string  `json:"languages"`
	Online       bool      `json:"online"`
	LastActiveAt time.Time `json:"last_active_at"`
}

type Candidate struct {
	ID         types.ID       `json:"id"`
	Location   types.GeoPoint `json:"location"`
	Attributes Attributes     `json:"attributes"`
}

// Query narrows a snapshot. Implementations may return a superset of the
// radius; the ranker applies the exact filter.
type Query struct {
	RequesterID types.ID
	Origin      types.GeoPoint
	RadiusKm    float64
}

// Pool supplies the candidates for a single ranking pass.
type Pool interface {
	Snapshot(ctx context.Context, q Query) ([]Candidate, error)
}

// ProfileWriter is implemented by pools that store traveler attributes.
type ProfileWriter interface {
	UpsertProfile(ctx context.Context, id types.ID, attrs Attributes) error
}

// PositionWriter is implemented by pools that keep their own copy of
// traveler positions rather than reading the shared geo index.
type PositionWriter interface {
	UpdatePosition(ctx context.Context, id types.ID, p types.GeoPoint, at time.Time) error
}

const (
	// supersetFactor widens backend range queries so boundary candidates are
	// not lost to index rounding before the exact haversine filter.
	supersetFactor = 1.5
	// minQueryRadiusKm keeps backend queries meaningful for tiny radii.
	minQueryRadiusKm = 0.5
)

func queryRadiusKm(radiusKm float64) float64 {
	r := radiusKm * supersetFactor
	if r < minQueryRadiusKm {
		return minQueryRadiusKm
	}
	return r
}

// normalizeInterests returns a sorted, de-duplicated copy; interests are a set.
func normalizeInterests(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	slices.Sort(out)
	return out
}

func cloneCandidate(c Candidate) Candidate {
	c.Attributes.Interests = append([]string(nil), c.Attributes.Interests...)
	c.Attributes.Languages = append([]string(nil), c.Attributes.Languages...)
	return c
}
