package ranking

import (
	"math"
	"math/rand/v2"
	"slices"
	"testing"
	"time"

	"travelmate/internal/modules/candidate"
	"travelmate/internal/types"
)

const kmPerDegree = earthRadiusKm * math.Pi / 180

var testNow = time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

func northOf(origin types.GeoPoint, km float64) types.GeoPoint {
	return types.GeoPoint{Lat: origin.Lat + km/kmPerDegree, Lng: origin.Lng}
}

func online(id string, p types.GeoPoint) candidate.Candidate {
	return candidate.Candidate{
		ID:       types.ID(id),
		Location: p,
		Attributes: candidate.Attributes{
			Online:       true,
			LastActiveAt: testNow,
		},
	}
}

func TestRank_SeoulScenario(t *testing.T) {
	var cands []candidate.Candidate
	for i, km := range []float64{0.2, 0.5, 0.8, 1.0, 1.2} {
		cands = append(cands, online(string(rune('a'+i)), northOf(seoulCityHall, km)))
	}

	got := NewRanker(DefaultWeights()).Rank(RankRequest{
		RequesterID: "me",
		Origin:      seoulCityHall,
		RadiusKm:    1,
		Now:         testNow,
	}, cands)

	want := []MatchResult{
		{CandidateID: "a", DistanceKm: 0.2, Score: 98},
		{CandidateID: "b", DistanceKm: 0.5, Score: 95},
		{CandidateID: "c", DistanceKm: 0.8, Score: 92},
		{CandidateID: "d", DistanceKm: 1.0, Score: 90},
	}
	if !slices.Equal(got, want) {
		t.Fatalf("Rank() = %+v, want %+v", got, want)
	}
}

func TestRank_EmptyPool(t *testing.T) {
	got := NewRanker(DefaultWeights()).Rank(RankRequest{Origin: seoulCityHall, RadiusKm: 5, Now: testNow}, nil)
	if len(got) != 0 {
		t.Fatalf("Rank() = %v, want empty", got)
	}
}

func TestRank_SkipsRequesterInvalidAndDuplicates(t *testing.T) {
	cands := []candidate.Candidate{
		online("me", northOf(seoulCityHall, 0.1)),
		online("bad", types.GeoPoint{Lat: 91, Lng: 0}),
		online("x", northOf(seoulCityHall, 0.3)),
		online("x", northOf(seoulCityHall, 0.4)),
	}
	got := NewRanker(DefaultWeights()).Rank(RankRequest{RequesterID: "me", Origin: seoulCityHall, RadiusKm: 2, Now: testNow}, cands)
	if len(got) != 1 || got[0].CandidateID != "x" || got[0].DistanceKm != 0.3 {
		t.Fatalf("Rank() = %+v, want only x at 0.3", got)
	}
}

func TestRank_InvalidRequest(t *testing.T) {
	r := NewRanker(DefaultWeights())
	cands := []candidate.Candidate{online("a", seoulCityHall)}
	tests := []struct {
		name string
		req  RankRequest
	}{
		{"negative radius", RankRequest{Origin: seoulCityHall, RadiusKm: -1}},
		{"invalid origin", RankRequest{Origin: types.GeoPoint{Lat: 100}, RadiusKm: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := r.Rank(tt.req, cands); len(got) != 0 {
				t.Errorf("Rank() = %v, want empty", got)
			}
		})
	}
}

func TestRank_RadiusBoundAndTotalOrder(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	r := NewRanker(DefaultWeights())

	for round := 0; round < 20; round++ {
		var cands []candidate.Candidate
		for i := 0; i < 40; i++ {
			c := online(string(rune('A'+i%26))+string(rune('a'+i/26)), types.GeoPoint{
				Lat: seoulCityHall.Lat + (rng.Float64()-0.5)*0.05,
				Lng: seoulCityHall.Lng + (rng.Float64()-0.5)*0.05,
			})
			c.Attributes.Online = rng.IntN(2) == 0
			c.Attributes.LastActiveAt = testNow.Add(-time.Duration(rng.IntN(120)) * time.Minute)
			cands = append(cands, c)
		}
		radius := float64(rng.IntN(30)) / 10
		req := RankRequest{RequesterID: "me", Origin: seoulCityHall, RadiusKm: radius, Now: testNow}

		got := r.Rank(req, cands)
		for i, m := range got {
			if m.DistanceKm > radius {
				t.Fatalf("result %v beyond radius %v", m, radius)
			}
			if m.Score < 0 || m.Score > 100 {
				t.Fatalf("score %d out of range", m.Score)
			}
			if i > 0 && compareResults(got[i-1], m) >= 0 {
				t.Fatalf("results not strictly ordered at %d: %v then %v", i, got[i-1], m)
			}
		}

		// Order of the input must not matter.
		shuffled := slices.Clone(cands)
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
		if again := r.Rank(req, shuffled); !slices.Equal(got, again) {
			t.Fatalf("Rank() not idempotent over input order:\n%v\n%v", got, again)
		}
	}
}

func TestRank_TieBreaks(t *testing.T) {
	p := northOf(seoulCityHall, 0.5)
	stale := online("a", p)
	stale.Attributes.Online = false
	cands := []candidate.Candidate{online("c", p), stale, online("b", p)}

	got := NewRanker(DefaultWeights()).Rank(RankRequest{Origin: seoulCityHall, RadiusKm: 1, Now: testNow}, cands)
	ids := []types.ID{got[0].CandidateID, got[1].CandidateID, got[2].CandidateID}
	if !slices.Equal(ids, []types.ID{"b", "c", "a"}) {
		t.Fatalf("order = %v, want [b c a]", ids)
	}
}

func TestScore(t *testing.T) {
	r := NewRanker(DefaultWeights())
	tests := []struct {
		name  string
		attrs candidate.Attributes
		km    float64
		want  int
	}{
		{"online now at origin", candidate.Attributes{Online: true, LastActiveAt: testNow}, 0, 100},
		{"distance only", candidate.Attributes{Online: true, LastActiveAt: testNow}, 1.5, 85},
		{"offline", candidate.Attributes{LastActiveAt: testNow}, 0, 90},
		{"25 minutes idle", candidate.Attributes{Online: true, LastActiveAt: testNow.Add(-25 * time.Minute)}, 0, 96},
		{"staleness capped", candidate.Attributes{LastActiveAt: testNow.Add(-48 * time.Hour)}, 0, 70},
		{"future activity counts as now", candidate.Attributes{Online: true, LastActiveAt: testNow.Add(time.Hour)}, 0, 100},
		{"unknown activity", candidate.Attributes{Online: true}, 0.2, 98},
		{"clamped at zero", candidate.Attributes{Online: true, LastActiveAt: testNow}, 25, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := r.Score(tt.attrs, tt.km, testNow); got != tt.want {
				t.Errorf("Score() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestScore_MonotonicInDistance(t *testing.T) {
	r := NewRanker(DefaultWeights())
	attrs := candidate.Attributes{Online: true, LastActiveAt: testNow}
	prev := 101
	for km := 0.0; km <= 12; km += 0.1 {
		s := r.Score(attrs, roundTenth(km), testNow)
		if s > prev {
			t.Fatalf("score rose from %d to %d at %.1f km", prev, s, km)
		}
		prev = s
	}
}

func TestNewRanker_NegativeWeightsDisableTerm(t *testing.T) {
	r := NewRanker(Weights{
		KmWeight:       -10,
		StaleStep:      10 * time.Minute,
		StalePenalty:   -2,
		StaleCap:       30,
		OfflinePenalty: -10,
	})
	attrs := candidate.Attributes{LastActiveAt: testNow.Add(-time.Hour)}
	near := r.Score(attrs, 0.5, testNow)
	far := r.Score(attrs, 3, testNow)
	if near != 100 || far != 100 {
		t.Fatalf("expected negative weights to be ignored, got near=%d far=%d", near, far)
	}
	if err := (Weights{KmWeight: math.NaN()}).Validate(); err == nil {
		t.Fatalf("expected NaN km weight to be rejected")
	}
	if err := DefaultWeights().Validate(); err != nil {
		t.Fatalf("expected default weights to validate, got %v", err)
	}
}
