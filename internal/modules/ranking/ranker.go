package ranking

import (
	"cmp"
	"fmt"
	"math"
	"slices"
	"time"

	"travelmate/internal/modules/candidate"
	"travelmate/internal/types"
)

// MatchResult is one ranked candidate. Results of a pass are totally ordered
// by distance asc, score desc, candidate ID asc.
type MatchResult struct {
	CandidateID types.ID `json:"candidate_id"`
	DistanceKm  float64  `json:"distance_km"`
	Score       int      `json:"score"`
}

// Weights tune the score. Zero values disable the matching penalty.
type Weights struct {
	KmWeight       float64
	StaleStep      time.Duration
	StalePenalty   int
	StaleCap       int
	OfflinePenalty int
}

func DefaultWeights() Weights {
	return Weights{
		KmWeight:       10,
		StaleStep:      10 * time.Minute,
		StalePenalty:   2,
		StaleCap:       30,
		OfflinePenalty: 10,
	}
}

type RankRequest struct {
	RequesterID types.ID
	Origin      types.GeoPoint
	RadiusKm    float64
	Now         time.Time
}

// Ranker holds only configuration; Rank is safe for concurrent use.
type Ranker struct {
	w Weights
}

// Validate rejects weights that would make the score grow with distance or
// staleness.
func (w Weights) Validate() error {
	if math.IsNaN(w.KmWeight) || math.IsInf(w.KmWeight, 0) || w.KmWeight < 0 {
		return fmt.Errorf("km weight must be finite and non-negative, got %v", w.KmWeight)
	}
	if w.StaleStep < 0 {
		return fmt.Errorf("stale step must not be negative, got %v", w.StaleStep)
	}
	if w.StalePenalty < 0 || w.StaleCap < 0 || w.OfflinePenalty < 0 {
		return fmt.Errorf("penalties must not be negative, got stale=%d cap=%d offline=%d",
			w.StalePenalty, w.StaleCap, w.OfflinePenalty)
	}
	return nil
}

// NewRanker zeroes any weight Validate would reject, disabling that term.
func NewRanker(w Weights) *Ranker {
	if math.IsNaN(w.KmWeight) || math.IsInf(w.KmWeight, 0) || w.KmWeight < 0 {
		w.KmWeight = 0
	}
	w.StaleStep = max(0, w.StaleStep)
	w.StalePenalty = max(0, w.StalePenalty)
	w.StaleCap = max(0, w.StaleCap)
	w.OfflinePenalty = max(0, w.OfflinePenalty)
	return &Ranker{w: w}
}

// Rank filters candidates to the radius (inclusive, on the rounded distance)
// and orders them. The requester, invalid coordinates and repeated IDs are
// skipped. An empty result is not an error.
func (r *Ranker) Rank(req RankRequest, cands []candidate.Candidate) []MatchResult {
	if !req.Origin.Valid() || math.IsNaN(req.RadiusKm) || req.RadiusKm < 0 {
		return nil
	}

	seen := make(map[types.ID]struct{}, len(cands))
	out := make([]MatchResult, 0, len(cands))
	for _, c := range cands {
		if c.ID == req.RequesterID || !c.Location.Valid() {
			continue
		}
		if _, dup := seen[c.ID]; dup {
			continue
		}
		seen[c.ID] = struct{}{}

		d := DistanceKm(req.Origin, c.Location)
		if d > req.RadiusKm {
			continue
		}
		out = append(out, MatchResult{
			CandidateID: c.ID,
			DistanceKm:  d,
			Score:       r.Score(c.Attributes, d, req.Now),
		})
	}

	slices.SortFunc(out, compareResults)
	return out
}

// Score is a pure function of its inputs, clamped to [0, 100].
func (r *Ranker) Score(attrs candidate.Attributes, distanceKm float64, now time.Time) int {
	score := 100 - int(math.Round(distanceKm*r.w.KmWeight)) - r.staleness(attrs, now)
	return max(0, min(100, score))
}

func (r *Ranker) staleness(attrs candidate.Attributes, now time.Time) int {
	penalty := 0
	if !attrs.Online {
		penalty += r.w.OfflinePenalty
	}
	// Unknown last activity carries no age penalty.
	if !attrs.LastActiveAt.IsZero() && r.w.StaleStep > 0 {
		age := max(0, now.Sub(attrs.LastActiveAt))
		penalty += r.w.StalePenalty * int(age/r.w.StaleStep)
	}
	if r.w.StaleCap > 0 && penalty > r.w.StaleCap {
		penalty = r.w.StaleCap
	}
	return penalty
}

func compareResults(a, b MatchResult) int {
	if c := cmp.Compare(a.DistanceKm, b.DistanceKm); c != 0 {
		return c
	}
	if c := cmp.Compare(b.Score, a.Score); c != 0 {
		return c
	}
	return cmp.Compare(a.CandidateID, b.CandidateID)
}
