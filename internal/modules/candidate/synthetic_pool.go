package candidate

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"travelmate/internal/types"
)

var (
	travelStyles = []string{
		"backpacker", "luxury", "cultural", "adventurer", "foodie",
		"photographer", "history_buff", "nature_lover", "urban_explorer", "healing",
	}
	interestPool = []string{
		"photography", "food", "history", "nature", "shopping",
		"performances", "sports", "night_views", "cafes", "museums",
	}
	languageSets = [][]string{
		{"ko", "en"}, {"ko", "zh"}, {"ko", "ja"},
		{"ko", "en", "zh"}, {"ko", "es"}, {"ko", "fr"},
	}
)

const (
	syntheticMin      = 3
	syntheticMax      = 10
	syntheticOnline   = 0.7
	syntheticLastSeen = time.Hour
	// kmPerDegreeLat is the small-offset approximation used to scatter points.
	kmPerDegreeLat = 111.0
)

// SyntheticPool fabricates companions around the query origin. It stands in
// for a real traveler index in demos and local development; the same seed
// and call sequence produce the same candidates.
type SyntheticPool struct {
	mu    sync.Mutex
	rng   *rand.Rand
	clock func() time.Time
	calls int
}

func NewSyntheticPool(seed uint64, clock func() time.Time) *SyntheticPool {
	if clock == nil {
		clock = time.Now
	}
	return &SyntheticPool{
		rng:   rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		clock: clock,
	}
}

func (p *SyntheticPool) Snapshot(ctx context.Context, q Query) ([]Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !q.Origin.Valid() {
		return nil, fmt.Errorf("%w: invalid origin", ErrPoolUnavailable)
	}
	radius := q.RadiusKm
	if radius <= 0 {
		radius = minQueryRadiusKm
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	now := p.clock()
	n := syntheticMin + p.rng.IntN(syntheticMax-syntheticMin+1)

	out := make([]Candidate, 0, n)
	for i := 0; i < n; i++ {
		angle := p.rng.Float64() * 2 * math.Pi
		dist := p.rng.Float64() * radius
		dLat := dist * math.Cos(angle) / kmPerDegreeLat
		dLng := dist * math.Sin(angle) / (kmPerDegreeLat * math.Cos(q.Origin.Lat*math.Pi/180))

		out = append(out, Candidate{
			ID: types.ID(fmt.Sprintf("mate_%d_%d", p.calls, i+1)),
			Location: types.GeoPoint{
				Lat: q.Origin.Lat + dLat,
				Lng: q.Origin.Lng + dLng,
			},
			Attributes: Attributes{
				TravelStyle:  travelStyles[p.rng.IntN(len(travelStyles))],
				Interests:    normalizeInterests(p.pick(interestPool, 2, 4)),
				Languages:    append([]string(nil), languageSets[p.rng.IntN(len(languageSets))]...),
				Online:       p.rng.Float64() < syntheticOnline,
				LastActiveAt: now.Add(-time.Duration(p.rng.Int64N(int64(syntheticLastSeen)))),
			},
		})
	}
	return out, nil
}

// pick draws between min and max distinct items.
func (p *SyntheticPool) pick(from []string, min, max int) []string {
	n := min + p.rng.IntN(max-min+1)
	idx := p.rng.Perm(len(from))
	out := make([]string, 0, n)
	for _, i := range idx[:n] {
		out = append(out, from[i])
	}
	return out
}
