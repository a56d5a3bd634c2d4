// README: Handler tests against a gin engine wired with in-memory collaborators.
package handlers_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"travelmate/internal/http/handlers"
	"travelmate/internal/logging"
	"travelmate/internal/maps"
	"travelmate/internal/modules/candidate"
	"travelmate/internal/modules/discovery"
	"travelmate/internal/modules/location"
	"travelmate/internal/modules/motion"
	"travelmate/internal/types"
)

var seoul = types.GeoPoint{Lat: 37.5665, Lng: 126.9780}

type fakeAddresses struct {
	addr maps.Address
	err  error
}

func (f fakeAddresses) Lookup(ctx context.Context, p types.GeoPoint) (maps.Address, error) {
	return f.addr, f.err
}

type testEnv struct {
	router  *gin.Engine
	manager *discovery.Manager
	memory  *location.MemoryProvider
	pool    *candidate.StaticPool
}

// buildTestRouter wires the handlers to a static pool holding one companion
// about 300 m north of Seoul City Hall.
func buildTestRouter(t *testing.T, profiles bool, addresses handlers.AddressLookup) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	memory := location.NewMemoryProvider(location.DefaultMaxAge, nil)
	pool := candidate.NewStaticPool(candidate.Candidate{
		ID:       "mate_1",
		Location: types.GeoPoint{Lat: seoul.Lat + 0.0027, Lng: seoul.Lng},
		Attributes: candidate.Attributes{
			TravelStyle:  "foodie",
			Online:       true,
			LastActiveAt: time.Now(),
		},
	})
	manager := discovery.NewManager(discovery.Config{
		Gate:            motion.GateConfig{Threshold: 15, ListenWindow: 2 * time.Second},
		ResolveTimeout:  2 * time.Second,
		DefaultRadiusKm: 1,
	}, discovery.Dependencies{
		Location: memory,
		Pool:     pool,
		Logger:   logging.Discard(),
	}, time.Minute)
	t.Cleanup(manager.Close)

	var profileWriter candidate.ProfileWriter
	if profiles {
		profileWriter = pool
	}
	if addresses == nil {
		addresses = fakeAddresses{err: maps.ErrLookupFailed}
	}

	r := gin.New()
	dh := handlers.NewDiscoveryHandler(manager)
	r.POST("/api/discovery/:requester/activate", dh.Activate)
	r.POST("/api/discovery/:requester/samples", dh.Samples)
	r.POST("/api/discovery/:requester/cancel", dh.Cancel)
	r.GET("/api/discovery/:requester", dh.Status)
	th := handlers.NewTravelerHandler(location.NewService(memory, nil, logging.Discard()), pool, profileWriter)
	r.PUT("/api/travelers/:id/location", th.UpdateLocation)
	r.PUT("/api/travelers/:id/profile", th.UpdateProfile)
	ah := handlers.NewAddressHandler(addresses)
	r.GET("/api/location/address", ah.Reverse)

	return &testEnv{router: r, manager: manager, memory: memory, pool: pool}
}

func doRequest(r http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return v
}

type sseEvent struct {
	name string
	data string
}

// readEvents forwards every server-sent event in body to out until EOF.
func readEvents(body io.Reader, out chan<- sseEvent) {
	defer close(out)
	scanner := bufio.NewScanner(body)
	var ev sseEvent
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event:"):
			ev.name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			ev.data = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		case line == "" && ev.name != "":
			out <- ev
			ev = sseEvent{}
		}
	}
}

func nextEvent(t *testing.T, events <-chan sseEvent) sseEvent {
	t.Helper()
	select {
	case ev, ok := <-events:
		if !ok {
			t.Fatal("event stream closed early")
		}
		return ev
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for an event")
	}
	return sseEvent{}
}

func TestActivate_StreamsEventsUntilCompleted(t *testing.T) {
	env := buildTestRouter(t, false, nil)
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	if w := doRequest(env.router, http.MethodPut, "/api/travelers/me/location", map[string]float64{"lat": seoul.Lat, "lng": seoul.Lng}); w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	resp, err := http.Post(srv.URL+"/api/discovery/me/activate?radius_km=1", "application/json", nil)
	if err != nil {
		t.Fatalf("activate: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Fatalf("expected event stream, got %q", ct)
	}

	events := make(chan sseEvent, 8)
	go readEvents(resp.Body, events)

	if ev := nextEvent(t, events); ev.name != "listening" {
		t.Fatalf("expected listening first, got %q", ev.name)
	}

	w := doRequest(env.router, http.MethodPost, "/api/discovery/me/samples", map[string]any{
		"samples": []map[string]float64{{"x": 0.1, "y": 0.2, "z": 9.8}, {"x": 12, "y": 9, "z": 14}},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var got []string
	var last sseEvent
	for last.name != "completed" && last.name != "failed" {
		last = nextEvent(t, events)
		got = append(got, last.name)
	}
	if strings.Join(got, ",") != "triggered,resolving,completed" {
		t.Fatalf("unexpected event sequence: %v", got)
	}

	var payload struct {
		Type    string `json:"type"`
		Results []struct {
			CandidateID string  `json:"candidate_id"`
			DistanceKm  float64 `json:"distance_km"`
			Score       int     `json:"score"`
		} `json:"results"`
		Location struct {
			Degraded bool `json:"degraded"`
		} `json:"location"`
	}
	if err := json.Unmarshal([]byte(last.data), &payload); err != nil {
		t.Fatalf("decode completed payload %q: %v", last.data, err)
	}
	if len(payload.Results) != 1 || payload.Results[0].CandidateID != "mate_1" {
		t.Fatalf("expected mate_1, got %+v", payload.Results)
	}
	if payload.Results[0].DistanceKm != 0.3 || payload.Results[0].Score != 97 {
		t.Fatalf("unexpected ranking: %+v", payload.Results[0])
	}
	if payload.Location.Degraded {
		t.Fatal("expected a device fix, not the fallback")
	}
}

func TestActivate_ListenTimeoutIsStreamedAsFailure(t *testing.T) {
	env := buildTestRouter(t, false, nil)
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/discovery/me/activate", "application/json", nil)
	if err != nil {
		t.Fatalf("activate: %v", err)
	}
	defer resp.Body.Close()

	events := make(chan sseEvent, 8)
	go readEvents(resp.Body, events)
	nextEvent(t, events)

	ev := nextEvent(t, events)
	if ev.name != "failed" {
		t.Fatalf("expected failed, got %q", ev.name)
	}
	var payload struct {
		Error struct {
			Kind string `json:"kind"`
		} `json:"error"`
	}
	if err := json.Unmarshal([]byte(ev.data), &payload); err != nil {
		t.Fatalf("decode failed payload: %v", err)
	}
	if payload.Error.Kind != string(discovery.KindListenTimeout) {
		t.Fatalf("expected listen_timeout, got %q", payload.Error.Kind)
	}
}

func TestActivate_ClientGoneBeforeFirstEventCancels(t *testing.T) {
	env := buildTestRouter(t, false, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPost, "/api/discovery/me/activate", nil).WithContext(ctx)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	if !strings.Contains(w.Body.String(), "event:listening") {
		t.Fatalf("expected the listening event to be written, got %q", w.Body.String())
	}
	st, err := env.manager.Status("me")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st.State != discovery.StateIdle {
		t.Fatalf("expected idle after the client left, got %s", st.State)
	}
}

func TestActivate_InvalidRequests(t *testing.T) {
	env := buildTestRouter(t, false, nil)
	tests := []struct {
		name string
		path string
	}{
		{"radius not a number", "/api/discovery/me/activate?radius_km=far"},
		{"negative radius", "/api/discovery/me/activate?radius_km=-2"},
		{"invalid requester", "/api/discovery/me.you/activate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(env.router, http.MethodPost, tt.path, nil)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", w.Code)
			}
		})
	}
}

func TestSamples(t *testing.T) {
	env := buildTestRouter(t, false, nil)

	w := doRequest(env.router, http.MethodPost, "/api/discovery/nobody/samples", map[string]any{
		"samples": []map[string]float64{{"z": 30}},
	})
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 without a session, got %d", w.Code)
	}

	w = doRequest(env.router, http.MethodPost, "/api/discovery/me/samples", map[string]any{"samples": []any{}})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for an empty batch, got %d", w.Code)
	}

	if _, err := env.manager.Activate("me", 0); err != nil {
		t.Fatalf("activate: %v", err)
	}
	w = doRequest(env.router, http.MethodPost, "/api/discovery/me/samples", map[string]any{
		"samples": []map[string]float64{{"x": 1, "y": 1, "z": 9.8, "ts_ms": 1714550400000}},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	st := decode[discovery.Status](t, w)
	if st.State != discovery.StateListening || st.RadiusKm != 1 {
		t.Fatalf("expected listening at the default radius, got %+v", st)
	}
}

func TestCancelAndStatus(t *testing.T) {
	env := buildTestRouter(t, false, nil)

	if w := doRequest(env.router, http.MethodGet, "/api/discovery/me", nil); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
	w := doRequest(env.router, http.MethodPost, "/api/discovery/me/cancel", nil)
	if got := decode[map[string]bool](t, w); got["cancelled"] {
		t.Fatal("expected nothing to cancel")
	}

	if _, err := env.manager.Activate("me", 2); err != nil {
		t.Fatalf("activate: %v", err)
	}
	w = doRequest(env.router, http.MethodGet, "/api/discovery/me", nil)
	st := decode[discovery.Status](t, w)
	if st.State != discovery.StateListening || st.ListenDeadline == nil {
		t.Fatalf("unexpected status: %+v", st)
	}

	w = doRequest(env.router, http.MethodPost, "/api/discovery/me/cancel", nil)
	if got := decode[map[string]bool](t, w); !got["cancelled"] {
		t.Fatal("expected the activation to be cancelled")
	}
	w = doRequest(env.router, http.MethodGet, "/api/discovery/me", nil)
	if st := decode[discovery.Status](t, w); st.State != discovery.StateIdle {
		t.Fatalf("expected idle, got %s", st.State)
	}
}

func TestUpdateLocation(t *testing.T) {
	tests := []struct {
		name string
		path string
		body any
		want int
	}{
		{"missing lng", "/api/travelers/me/location", map[string]any{"lat": 37.5}, http.StatusBadRequest},
		{"out of range", "/api/travelers/me/location", map[string]any{"lat": 91.0, "lng": 126.9}, http.StatusBadRequest},
		{"invalid id", "/api/travelers/a.b/location", map[string]any{"lat": 37.5, "lng": 126.9}, http.StatusBadRequest},
		{"ok", "/api/travelers/me/location", map[string]any{"lat": 37.5, "lng": 126.9}, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := buildTestRouter(t, false, nil)
			w := doRequest(env.router, http.MethodPut, tt.path, tt.body)
			if w.Code != tt.want {
				t.Fatalf("expected %d, got %d: %s", tt.want, w.Code, w.Body.String())
			}
			if tt.want != http.StatusOK {
				return
			}
			p, err := env.memory.CurrentLocation(context.Background(), "me")
			if err != nil || p != (types.GeoPoint{Lat: 37.5, Lng: 126.9}) {
				t.Fatalf("expected fix to be stored, got %+v (%v)", p, err)
			}
			if env.pool.Len() != 2 {
				t.Fatalf("expected the pool to learn the traveler, got %d entries", env.pool.Len())
			}
		})
	}
}

func TestUpdateProfile(t *testing.T) {
	profile := map[string]any{"travel_style": "foodie", "interests": []string{"food", "cafes"}, "languages": []string{"ko", "en"}}

	env := buildTestRouter(t, false, nil)
	if w := doRequest(env.router, http.MethodPut, "/api/travelers/me/profile", profile); w.Code != http.StatusNotImplemented {
		t.Fatalf("expected 501 without a profile store, got %d", w.Code)
	}

	env = buildTestRouter(t, true, nil)
	if w := doRequest(env.router, http.MethodPut, "/api/travelers/me/profile", profile); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 before any location, got %d", w.Code)
	}
	doRequest(env.router, http.MethodPut, "/api/travelers/me/location", map[string]any{"lat": 37.5, "lng": 126.9})
	if w := doRequest(env.router, http.MethodPut, "/api/travelers/me/profile", profile); w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	snap, _ := env.pool.Snapshot(context.Background(), candidate.Query{RequesterID: "mate_1"})
	if len(snap) != 1 || snap[0].Attributes.TravelStyle != "foodie" || !snap[0].Attributes.Online {
		t.Fatalf("unexpected pool entry: %+v", snap)
	}
}

func TestReverseAddress(t *testing.T) {
	tests := []struct {
		name      string
		query     string
		addresses handlers.AddressLookup
		want      int
		wantBody  string
	}{
		{"ok", "?lat=37.5665&lng=126.978", fakeAddresses{addr: maps.Address{Address: "서울특별시 중구 세종대로 110"}}, http.StatusOK, "세종대로"},
		{"upstream failure", "?lat=48.8566&lng=2.3522", fakeAddresses{err: errors.New("boom")}, http.StatusBadGateway, "위도 48.8566, 경도 2.3522"},
		{"missing lng", "?lat=37.5", fakeAddresses{}, http.StatusBadRequest, maps.ErrInvalidCoordinates.Error()},
		{"out of range", "?lat=37.5&lng=200", fakeAddresses{}, http.StatusBadRequest, maps.ErrInvalidCoordinates.Error()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := buildTestRouter(t, false, tt.addresses)
			w := doRequest(env.router, http.MethodGet, "/api/location/address"+tt.query, nil)
			if w.Code != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, w.Code)
			}
			if !strings.Contains(w.Body.String(), tt.wantBody) {
				t.Fatalf("expected body to contain %q, got %s", tt.wantBody, w.Body.String())
			}
		})
	}
}
