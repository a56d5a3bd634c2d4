// README: Manager keeps one discovery session per requester and evicts idle ones.
package discovery

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"travelmate/internal/modules/motion"
	"travelmate/internal/types"
)

type Manager struct {
	cfg     Config
	deps    Dependencies
	idleTTL time.Duration
	ctx     context.Context
	stop    context.CancelFunc
	logger  *slog.Logger

	mu        sync.Mutex
	sessions  map[types.ID]*Session
	observers []Observer
	closed    bool
}

func NewManager(cfg Config, deps Dependencies, idleTTL time.Duration) *Manager {
	if idleTTL <= 0 {
		idleTTL = DefaultIdleTTL
	}
	deps = deps.withDefaults()
	ctx, stop := context.WithCancel(context.Background())
	return &Manager{
		cfg:      cfg.withDefaults(),
		deps:     deps,
		idleTTL:  idleTTL,
		ctx:      ctx,
		stop:     stop,
		logger:   deps.Logger,
		sessions: make(map[types.ID]*Session),
	}
}

// Subscribe attaches o to every current and future session.
func (m *Manager) Subscribe(o Observer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, o)
	for _, s := range m.sessions {
		s.Subscribe(o)
	}
}

// Activate starts a new activation for the requester. The session is looked
// up and activated under the manager lock so Sweep cannot evict it in between.
func (m *Manager) Activate(requesterID types.ID, radiusKm float64) (<-chan Event, error) {
	if requesterID == "" {
		return nil, ErrInvalidRequester
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := m.sessionLocked(requesterID)
	if err != nil {
		return nil, err
	}
	return s.Activate(radiusKm)
}

// Observe feeds samples in order and returns the resulting status.
func (m *Manager) Observe(requesterID types.ID, samples ...motion.Sample) (Status, error) {
	s, ok := m.lookup(requesterID)
	if !ok {
		return Status{}, ErrNoSession
	}
	for _, sample := range samples {
		if s.Observe(sample) {
			break
		}
	}
	return s.Status(), nil
}

func (m *Manager) Cancel(requesterID types.ID) bool {
	s, ok := m.lookup(requesterID)
	if !ok {
		return false
	}
	return s.Cancel()
}

// CancelGeneration cancels the requester's activation only if it is still gen.
func (m *Manager) CancelGeneration(requesterID types.ID, gen uint64) bool {
	s, ok := m.lookup(requesterID)
	if !ok {
		return false
	}
	return s.CancelGeneration(gen)
}

func (m *Manager) Status(requesterID types.ID) (Status, error) {
	s, ok := m.lookup(requesterID)
	if !ok {
		return Status{}, ErrNoSession
	}
	return s.Status(), nil
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// RunJanitor evicts idle sessions every interval until ctx is done.
func (m *Manager) RunJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			if n := m.Sweep(m.deps.Clock()); n > 0 {
				m.logger.Debug("evicted idle discovery sessions", "count", n)
			}
		}
	}
}

// Sweep removes sessions idle for longer than the idle TTL and returns how
// many were removed.
func (m *Manager) Sweep(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, s := range m.sessions {
		since, idle := s.idleSince()
		if idle && now.Sub(since) > m.idleTTL {
			s.Close()
			delete(m.sessions, id)
			n++
		}
	}
	return n
}

// Close cancels every session; later calls fail with ErrClosed.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	m.stop()
	for id, s := range m.sessions {
		s.Close()
		delete(m.sessions, id)
	}
}

func (m *Manager) sessionLocked(requesterID types.ID) (*Session, error) {
	if m.closed {
		return nil, ErrClosed
	}
	if s, ok := m.sessions[requesterID]; ok {
		return s, nil
	}
	s, err := NewSession(m.ctx, requesterID, m.cfg, m.deps)
	if err != nil {
		return nil, err
	}
	for _, o := range m.observers {
		s.Subscribe(o)
	}
	m.sessions[requesterID] = s
	return s, nil
}

func (m *Manager) lookup(requesterID types.ID) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[requesterID]
	return s, ok
}
