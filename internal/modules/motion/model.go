// README: Shake detection over accelerometer samples.
package motion

import (
	"errors"
	"math"
	"time"
)

var ErrListenTimeout = errors.New("listen window elapsed without a shake")

const (
	DefaultThreshold    = 15.0
	DefaultListenWindow = 10 * time.Second
)

// Sample is one accelerometer reading in m/s².
type Sample struct {
	X, Y, Z float64
	At      time.Time
}

func (s Sample) Magnitude() float64 {
	return math.Sqrt(s.X*s.X + s.Y*s.Y + s.Z*s.Z)
}

type TriggerEvent struct {
	Magnitude float64
	At        time.Time
}

type GateConfig struct {
	// Threshold must be strictly exceeded.
	Threshold    float64
	ListenWindow time.Duration
}

func DefaultGateConfig() GateConfig {
	return GateConfig{Threshold: DefaultThreshold, ListenWindow: DefaultListenWindow}
}

type GateState int

const (
	GateIdle GateState = iota
	GateListening
	GateTriggered
)

func (s GateState) String() string {
	switch s {
	case GateIdle:
		return "idle"
	case GateListening:
		return "listening"
	case GateTriggered:
		return "triggered"
	default:
		return "unknown"
	}
}
