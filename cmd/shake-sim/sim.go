package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	gravity = 9.81
	// kmPerDegree is the small-offset approximation used to scatter mates.
	kmPerDegree = 111.0
)

var mateStyles = []string{"backpacker", "foodie", "photographer", "history_buff", "healing"}

type Simulator struct {
	cfg     Config
	httpc   *http.Client
	rng     *rand.Rand
	printer *printer
}

func NewSimulator(cfg Config, w io.Writer) *Simulator {
	return &Simulator{
		cfg: cfg,
		// No client timeout: the event stream stays open for the whole run.
		httpc:   &http.Client{},
		rng:     rand.New(rand.NewPCG(cfg.Seed, cfg.Seed+1)),
		printer: newPrinter(w),
	}
}

type sseEvent struct {
	name string
	data string
}

type locationBody struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type profileBody struct {
	TravelStyle string   `json:"travel_style"`
	Interests   []string `json:"interests"`
	Languages   []string `json:"languages"`
}

type sampleBody struct {
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	Z           float64 `json:"z"`
	TimestampMs int64   `json:"ts_ms"`
}

// Run drives one activation end to end and returns the terminal event name.
func (s *Simulator) Run(ctx context.Context) (string, error) {
	if err := s.seedMates(ctx); err != nil {
		return "", err
	}
	self := locationBody{Lat: s.cfg.Lat, Lng: s.cfg.Lng}
	if _, err := s.send(ctx, http.MethodPut, "/api/travelers/"+s.cfg.Requester+"/location", self); err != nil {
		return "", fmt.Errorf("report location: %w", err)
	}

	events, err := s.activate(ctx)
	if err != nil {
		return "", err
	}

	first, ok := <-events
	if !ok {
		return "", errors.New("event stream closed before listening")
	}
	s.printer.event(first)

	samplesCtx, stopSamples := context.WithCancel(ctx)
	defer stopSamples()
	go s.streamSamples(samplesCtx)

	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return "", errors.New("event stream closed without a terminal event")
			}
			s.printer.event(ev)
			if ev.name == "completed" || ev.name == "failed" {
				return ev.name, nil
			}
		}
	}
}

// seedMates reports companions around the requester so a static, redis or
// postgres pool has someone to rank.
func (s *Simulator) seedMates(ctx context.Context) error {
	radius := s.cfg.RadiusKm
	if radius <= 0 {
		radius = 1
	}
	for i := 1; i <= s.cfg.Mates; i++ {
		id := "mate_sim_" + strconv.Itoa(i)
		angle := s.rng.Float64() * 2 * math.Pi
		dist := s.rng.Float64() * radius
		pos := locationBody{
			Lat: s.cfg.Lat + dist*math.Cos(angle)/kmPerDegree,
			Lng: s.cfg.Lng + dist*math.Sin(angle)/(kmPerDegree*math.Cos(s.cfg.Lat*math.Pi/180)),
		}
		if _, err := s.send(ctx, http.MethodPut, "/api/travelers/"+id+"/location", pos); err != nil {
			return fmt.Errorf("report %s: %w", id, err)
		}
		status, err := s.send(ctx, http.MethodPut, "/api/travelers/"+id+"/profile", profileBody{
			TravelStyle: mateStyles[s.rng.IntN(len(mateStyles))],
			Interests:   []string{"food", "cafes"},
			Languages:   []string{"ko", "en"},
		})
		if err != nil && status != http.StatusNotImplemented {
			return fmt.Errorf("profile %s: %w", id, err)
		}
	}
	if s.cfg.Mates > 0 {
		s.printer.note("reported %d companions within %.1f km", s.cfg.Mates, radius)
	}
	return nil
}

func (s *Simulator) activate(ctx context.Context) (<-chan sseEvent, error) {
	u := s.cfg.BaseURL + "/api/discovery/" + url.PathEscape(s.cfg.Requester) + "/activate"
	if s.cfg.RadiusKm > 0 {
		u += "?radius_km=" + strconv.FormatFloat(s.cfg.RadiusKm, 'f', -1, 64)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	resp, err := s.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("activate: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, fmt.Errorf("activate: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	events := make(chan sseEvent, 8)
	go func() {
		defer resp.Body.Close()
		readEvents(resp.Body, events)
	}()
	return events, nil
}

// streamSamples posts one reading per tick: resting gravity plus noise,
// and a single spike once SpikeAfter has elapsed.
func (s *Simulator) streamSamples(ctx context.Context) {
	ticker := time.NewTicker(time.Second / time.Duration(s.cfg.Rate))
	defer ticker.Stop()
	start := time.Now()
	spiked := false

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			sample := sampleBody{
				X:           s.noise(),
				Y:           s.noise(),
				Z:           gravity + s.noise(),
				TimestampMs: now.UnixMilli(),
			}
			if !spiked && now.Sub(start) >= s.cfg.SpikeAfter {
				// 0.6² + 0.48² + 0.64² = 1
				sample.X, sample.Y, sample.Z = 0.6*s.cfg.Spike, 0.48*s.cfg.Spike, 0.64*s.cfg.Spike
				spiked = true
				s.printer.note("shake! %.1f m/s²", s.cfg.Spike)
			}
			status, err := s.send(ctx, http.MethodPost, "/api/discovery/"+s.cfg.Requester+"/samples", map[string][]sampleBody{
				"samples": {sample},
			})
			if status == http.StatusNotFound || ctx.Err() != nil {
				return
			}
			if err != nil {
				s.printer.fail("sample upload: %v", err)
			}
		}
	}
}

func (s *Simulator) noise() float64 {
	return (s.rng.Float64()*2 - 1) * s.cfg.Noise
}

// send issues a JSON request and returns the status; non-2xx is an error.
func (s *Simulator) send(ctx context.Context, method, path string, body any) (int, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(ctx, method, s.cfg.BaseURL+path, &buf)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.httpc.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return resp.StatusCode, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

// readEvents forwards server-sent events from body until EOF.
func readEvents(body io.Reader, out chan<- sseEvent) {
	defer close(out)
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
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
