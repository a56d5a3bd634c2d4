// README: Shake simulator; reports a position, opens a discovery stream and pushes 10 Hz accelerometer samples with one spike.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

func main() {
	cfg := loadConfig()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	sim := NewSimulator(cfg, os.Stdout)
	outcome, err := sim.Run(ctx)
	if err != nil {
		sim.printer.fail("simulation aborted: %v", err)
		os.Exit(1)
	}
	if outcome != "completed" {
		os.Exit(1)
	}
}

type Config struct {
	BaseURL    string
	Requester  string
	Lat        float64
	Lng        float64
	RadiusKm   float64
	Rate       int
	SpikeAfter time.Duration
	Spike      float64
	Noise      float64
	Mates      int
	Seed       uint64
	Timeout    time.Duration
}

func loadConfig() Config {
	var cfg Config
	flag.StringVar(&cfg.BaseURL, "base-url", envOrDefault("TRAVELMATE_SIM_BASE_URL", "http://localhost:8080"), "API base URL")
	flag.StringVar(&cfg.Requester, "requester", envOrDefault("TRAVELMATE_SIM_REQUESTER", "sim_traveler"), "Requester id")
	flag.Float64Var(&cfg.Lat, "lat", envOrDefaultFloat("TRAVELMATE_SIM_LAT", 37.5665), "Requester latitude")
	flag.Float64Var(&cfg.Lng, "lng", envOrDefaultFloat("TRAVELMATE_SIM_LNG", 126.9780), "Requester longitude")
	flag.Float64Var(&cfg.RadiusKm, "radius", envOrDefaultFloat("TRAVELMATE_SIM_RADIUS_KM", 1.0), "Search radius in km (0 = server default)")
	flag.IntVar(&cfg.Rate, "rate", envOrDefaultInt("TRAVELMATE_SIM_RATE", 10), "Samples per second")
	flag.DurationVar(&cfg.SpikeAfter, "spike-after", envOrDefaultDuration("TRAVELMATE_SIM_SPIKE_AFTER", 2*time.Second), "Delay before the shake; longer than the listen window simulates a timeout")
	flag.Float64Var(&cfg.Spike, "spike", envOrDefaultFloat("TRAVELMATE_SIM_SPIKE", 25), "Shake magnitude in m/s²")
	flag.Float64Var(&cfg.Noise, "noise", envOrDefaultFloat("TRAVELMATE_SIM_NOISE", 0.3), "Idle sensor noise in m/s²")
	flag.IntVar(&cfg.Mates, "mates", envOrDefaultInt("TRAVELMATE_SIM_MATES", 5), "Companions to report around the requester before shaking")
	flag.Uint64Var(&cfg.Seed, "seed", uint64(envOrDefaultInt("TRAVELMATE_SIM_SEED", 1)), "Random seed")
	flag.DurationVar(&cfg.Timeout, "timeout", envOrDefaultDuration("TRAVELMATE_SIM_TIMEOUT", 45*time.Second), "Total timeout")
	flag.Parse()
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Rate <= 0 {
		cfg.Rate = 10
	}
	return cfg
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		var n int
		_, _ = fmt.Sscanf(v, "%d", &n)
		if n > 0 {
			return n
		}
	}
	return def
}

func envOrDefaultDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
