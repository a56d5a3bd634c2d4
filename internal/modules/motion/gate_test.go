package motion

import (
	"errors"
	"math"
	"testing"
	"time"
)

var t0 = time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)

// along returns a sample with the given magnitude on the z axis.
func along(m float64, at time.Time) Sample {
	return Sample{Z: m, At: at}
}

func TestSample_Magnitude(t *testing.T) {
	s := Sample{X: 3, Y: 4, Z: 12}
	if got := s.Magnitude(); math.Abs(got-13) > 1e-9 {
		t.Errorf("Magnitude() = %f, want 13", got)
	}
}

func TestGate_Sequences(t *testing.T) {
	tests := []struct {
		name          string
		magnitudes    []float64
		wantTriggers  int
		wantMagnitude float64
	}{
		{"below threshold", []float64{5, 10, 14.9}, 0, 0},
		{"single trigger", []float64{15.01, 20.0}, 1, 15.01},
		{"exactly threshold", []float64{15.0, 15.0}, 0, 0},
		{"later spike", []float64{9.8, 9.8, 9.8, 31.2, 9.8}, 1, 31.2},
		{"empty", nil, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewGate(DefaultGateConfig())
			g.StartListening(t0)

			var triggers []TriggerEvent
			for i, m := range tt.magnitudes {
				if ev, ok := g.Observe(along(m, t0.Add(time.Duration(i)*100*time.Millisecond))); ok {
					triggers = append(triggers, ev)
				}
			}
			if len(triggers) != tt.wantTriggers {
				t.Fatalf("triggers = %d, want %d", len(triggers), tt.wantTriggers)
			}
			if tt.wantTriggers > 0 && math.Abs(triggers[0].Magnitude-tt.wantMagnitude) > 1e-9 {
				t.Errorf("trigger magnitude = %f, want %f", triggers[0].Magnitude, tt.wantMagnitude)
			}
		})
	}
}

func TestGate_IgnoresSamplesWhenNotListening(t *testing.T) {
	g := NewGate(DefaultGateConfig())
	if _, ok := g.Observe(along(50, t0)); ok {
		t.Fatal("idle gate triggered")
	}
	if g.State() != GateIdle {
		t.Errorf("state = %v, want idle", g.State())
	}
}

func TestGate_ExpireOnce(t *testing.T) {
	g := NewGate(GateConfig{Threshold: 15, ListenWindow: 10 * time.Second})
	g.StartListening(t0)

	if err := g.Expire(t0.Add(9 * time.Second)); err != nil {
		t.Fatalf("Expire() before deadline = %v", err)
	}
	if err := g.Expire(t0.Add(10 * time.Second)); !errors.Is(err, ErrListenTimeout) {
		t.Fatalf("Expire() = %v, want ErrListenTimeout", err)
	}
	if err := g.Expire(t0.Add(11 * time.Second)); err != nil {
		t.Fatalf("second Expire() = %v, want nil", err)
	}
	if g.State() != GateIdle {
		t.Errorf("state = %v, want idle", g.State())
	}
}

func TestGate_ExpireAfterTriggerIsNoop(t *testing.T) {
	g := NewGate(DefaultGateConfig())
	g.StartListening(t0)
	if _, ok := g.Observe(along(16, t0)); !ok {
		t.Fatal("expected trigger")
	}
	if err := g.Expire(t0.Add(time.Minute)); err != nil {
		t.Fatalf("Expire() = %v, want nil", err)
	}
	if g.State() != GateTriggered {
		t.Errorf("state = %v, want triggered", g.State())
	}
}

func TestGate_RestartAfterTrigger(t *testing.T) {
	g := NewGate(DefaultGateConfig())
	g.StartListening(t0)
	g.Observe(along(16, t0))

	g.StartListening(t0.Add(time.Second))
	if _, ok := g.Observe(along(16, t0.Add(2*time.Second))); !ok {
		t.Fatal("re-armed gate did not trigger")
	}
}

func TestNewGate_Defaults(t *testing.T) {
	g := NewGate(GateConfig{})
	if g.Config() != DefaultGateConfig() {
		t.Errorf("Config() = %+v, want defaults", g.Config())
	}
}
