package motion

import "time"

// Gate turns a sample stream into at most one trigger per listen window.
// It is not safe for concurrent use; the owning session serialises calls.
type Gate struct {
	cfg      GateConfig
	state    GateState
	deadline time.Time
}

func NewGate(cfg GateConfig) *Gate {
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultThreshold
	}
	if cfg.ListenWindow <= 0 {
		cfg.ListenWindow = DefaultListenWindow
	}
	return &Gate{cfg: cfg}
}

func (g *Gate) Config() GateConfig { return g.cfg }

func (g *Gate) State() GateState { return g.state }

// Deadline is the end of the current listen window; zero when not listening.
func (g *Gate) Deadline() time.Time { return g.deadline }

// StartListening re-arms the gate from any state.
func (g *Gate) StartListening(now time.Time) {
	g.state = GateListening
	g.deadline = now.Add(g.cfg.ListenWindow)
}

// Observe reports a trigger for the first sample whose magnitude exceeds the
// threshold while listening. Sample timestamps are informational only; the
// window is enforced by Expire against the owner's clock.
func (g *Gate) Observe(s Sample) (TriggerEvent, bool) {
	if g.state != GateListening {
		return TriggerEvent{}, false
	}
	m := s.Magnitude()
	if !(m > g.cfg.Threshold) {
		return TriggerEvent{}, false
	}
	g.state = GateTriggered
	g.deadline = time.Time{}
	return TriggerEvent{Magnitude: m, At: s.At}, true
}

// Expire returns ErrListenTimeout once when the window has passed without a
// trigger, returning the gate to idle.
func (g *Gate) Expire(now time.Time) error {
	if g.state != GateListening || now.Before(g.deadline) {
		return nil
	}
	g.Reset()
	return ErrListenTimeout
}

func (g *Gate) Reset() {
	g.state = GateIdle
	g.deadline = time.Time{}
}
