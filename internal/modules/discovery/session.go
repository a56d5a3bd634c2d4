// README: Single-flight discovery session: shake gate, location, pool and ranking per requester.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"travelmate/internal/modules/candidate"
	"travelmate/internal/modules/motion"
	"travelmate/internal/modules/ranking"
	"travelmate/internal/types"
)

// Session runs at most one activation at a time for a requester. A new
// Activate supersedes the previous one; the generation counter makes sure
// results of a superseded activation are never delivered.
type Session struct {
	id          string
	requesterID types.ID
	cfg         Config
	deps        Dependencies
	base        context.Context
	logger      *slog.Logger

	mu            sync.Mutex
	state         State
	gen           uint64
	gate          *motion.Gate
	radiusKm      float64
	startedAt     time.Time
	intensity     float64
	timer         *time.Timer
	cancelResolve context.CancelFunc
	out           chan Event
	observers     []Observer
	lastOutcome   EventType
	lastError     ErrorKind
	lastActive    time.Time
	closed        bool
}

// NewSession creates an idle session. base bounds every resolve pass.
func NewSession(base context.Context, requesterID types.ID, cfg Config, deps Dependencies) (*Session, error) {
	if requesterID == "" {
		return nil, ErrInvalidRequester
	}
	if deps.Location == nil || deps.Pool == nil {
		return nil, errors.New("discovery: location provider and candidate pool are required")
	}
	if base == nil {
		base = context.Background()
	}
	cfg = cfg.withDefaults()
	deps = deps.withDefaults()
	id := uuid.NewString()
	return &Session{
		id:          id,
		requesterID: requesterID,
		cfg:         cfg,
		deps:        deps,
		base:        base,
		logger:      deps.Logger.With("session_id", id, "requester_id", string(requesterID)),
		state:       StateIdle,
		gate:        motion.NewGate(cfg.Gate),
		lastActive:  deps.Clock(),
	}, nil
}

func (s *Session) ID() string { return s.id }

func (s *Session) RequesterID() types.ID { return s.requesterID }

// Subscribe registers an observer for all later transitions.
func (s *Session) Subscribe(o Observer) {
	s.mu.Lock()
	s.observers = append(s.observers, o)
	s.mu.Unlock()
}

// Activate starts listening for a shake. radiusKm == 0 selects the configured
// default. Any in-flight activation is cancelled first.
func (s *Session) Activate(radiusKm float64) (<-chan Event, error) {
	if math.IsNaN(radiusKm) || math.IsInf(radiusKm, 0) || radiusKm < 0 {
		return nil, ErrInvalidRadius
	}
	if radiusKm == 0 {
		radiusKm = s.cfg.DefaultRadiusKm
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}

	s.abortLocked()

	now := s.deps.Clock()
	s.gen++
	gen := s.gen
	s.state = StateListening
	s.radiusKm = radiusKm
	s.startedAt = now
	s.intensity = 0
	s.lastActive = now
	s.gate.StartListening(now)
	s.out = make(chan Event, eventBuffer)
	s.timer = time.AfterFunc(s.cfg.Gate.ListenWindow, func() { s.onListenDeadline(gen) })

	out := s.out
	s.emitLocked(Event{Type: EventListening})
	return out, nil
}

// Observe feeds one accelerometer sample. It reports whether the sample
// triggered the resolve pass; samples outside Listening are ignored.
func (s *Session) Observe(sample motion.Sample) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateListening {
		return false
	}
	trig, ok := s.gate.Observe(sample)
	if !ok {
		return false
	}
	s.stopTimerLocked()
	s.intensity = trig.Magnitude
	s.lastActive = s.deps.Clock()

	s.state = StateTriggered
	s.emitLocked(Event{Type: EventTriggered, Intensity: trig.Magnitude})
	s.state = StateResolving
	s.emitLocked(Event{Type: EventResolving, Intensity: trig.Magnitude})

	ctx, cancel := context.WithTimeout(s.base, s.cfg.ResolveTimeout)
	s.cancelResolve = cancel
	go s.resolve(ctx, cancel, s.gen, s.radiusKm)
	return true
}

// Cancel abandons the current activation. The caller stream is closed
// without a terminal event. It reports whether anything was running.
func (s *Session) Cancel() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.abortLocked()
}

// CancelGeneration cancels only if gen is still the current activation, so
// a stale stream cannot abort a newer one.
func (s *Session) CancelGeneration(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return false
	}
	return s.abortLocked()
}

// Close cancels and refuses further activations.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.abortLocked()
	s.closed = true
}

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{
		SessionID:   s.id,
		RequesterID: s.requesterID,
		State:       s.state,
		Generation:  s.gen,
		RadiusKm:    s.radiusKm,
		Intensity:   s.intensity,
		LastOutcome: s.lastOutcome,
		LastError:   s.lastError,
	}
	if s.state != StateIdle {
		started := s.startedAt
		st.StartedAt = &started
	}
	if d := s.gate.Deadline(); s.state == StateListening && !d.IsZero() {
		st.ListenDeadline = &d
	}
	return st
}

// idleSince returns when the session last did anything, and whether it is
// idle now.
func (s *Session) idleSince() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive, s.state == StateIdle
}

func (s *Session) onListenDeadline(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen || s.state != StateListening {
		return
	}
	// The timer fired, so the window has elapsed even if an injected clock
	// lags behind the real one.
	now := s.deps.Clock()
	if d := s.gate.Deadline(); now.Before(d) {
		now = d
	}
	if err := s.gate.Expire(now); err != nil {
		s.timer = nil
		s.failLocked(&Error{Kind: KindListenTimeout, Err: err})
	}
}

func (s *Session) resolve(ctx context.Context, cancel context.CancelFunc, gen uint64, radiusKm float64) {
	defer cancel()
	ctx, span := s.deps.Tracer.Start(ctx, "discovery.resolve", trace.WithAttributes(
		attribute.String("requester_id", string(s.requesterID)),
		attribute.Float64("radius_km", radiusKm),
	))
	defer span.End()

	start := s.deps.Clock()
	resolved, results, err := s.runPipeline(ctx, radiusKm)
	elapsed := s.deps.Clock().Sub(start)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetAttributes(attribute.Int("results", len(results)), attribute.Bool("degraded", resolved.Degraded))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen || s.state != StateResolving {
		s.logger.Debug("dropping superseded resolve result", "generation", gen)
		return
	}
	if err != nil {
		var de *Error
		if !errors.As(err, &de) {
			// Cancelled from outside the session; nothing to deliver.
			s.logger.Debug("resolve aborted", "error", err)
			return
		}
		s.failLocked(de, withElapsed(elapsed))
		return
	}
	s.completeLocked(results, resolved, elapsed)
}

// runPipeline performs location, snapshot and ranking sequentially. Each
// collaborator call is raced against ctx so the deadline holds even when a
// collaborator ignores cancellation.
func (s *Session) runPipeline(ctx context.Context, radiusKm float64) (Resolved, []ranking.MatchResult, error) {
	origin, degraded, err := s.locate(ctx)
	if err != nil {
		return Resolved{}, nil, classify(ctx, KindLocationUnavailable, err)
	}

	cands, err := call(ctx, func(ctx context.Context) ([]candidate.Candidate, error) {
		return s.deps.Pool.Snapshot(ctx, candidate.Query{
			RequesterID: s.requesterID,
			Origin:      origin,
			RadiusKm:    radiusKm,
		})
	})
	if err != nil {
		return Resolved{}, nil, classify(ctx, KindPoolUnavailable, err)
	}

	results := s.deps.Ranker.Rank(ranking.RankRequest{
		RequesterID: s.requesterID,
		Origin:      origin,
		RadiusKm:    radiusKm,
		Now:         s.deps.Clock(),
	}, cands)

	resolved := Resolved{Point: origin, Degraded: degraded}
	if s.deps.Addresser != nil {
		actx, cancel := context.WithTimeout(ctx, addressBudget)
		addr, err := call(actx, func(ctx context.Context) (string, error) {
			return s.deps.Addresser.Address(ctx, origin)
		})
		cancel()
		if err != nil {
			s.logger.Debug("address lookup failed", "error", err)
		} else {
			resolved.Address = addr
		}
	}
	if err := ctx.Err(); err != nil {
		return Resolved{}, nil, classify(ctx, KindResolutionTimeout, err)
	}
	return resolved, results, nil
}

func (s *Session) locate(ctx context.Context) (types.GeoPoint, bool, error) {
	p, err := call(ctx, func(ctx context.Context) (types.GeoPoint, error) {
		return s.deps.Location.CurrentLocation(ctx, s.requesterID)
	})
	if err == nil && !p.Valid() {
		err = fmt.Errorf("provider returned invalid point %v", p)
	}
	if err == nil {
		return p, false, nil
	}
	if ctx.Err() != nil || s.cfg.Fallback == nil {
		return types.GeoPoint{}, false, err
	}
	s.logger.Warn("location unavailable, using fallback",
		"error", err,
		"fallback_lat", s.cfg.Fallback.Lat,
		"fallback_lng", s.cfg.Fallback.Lng,
	)
	return *s.cfg.Fallback, true, nil
}

// classify maps a collaborator error onto the session taxonomy. A context
// cancelled from outside yields the raw context error so the caller drops it.
func classify(ctx context.Context, kind ErrorKind, err error) error {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return &Error{Kind: KindResolutionTimeout, Err: err}
	case ctx.Err() != nil:
		return ctx.Err()
	default:
		return &Error{Kind: kind, Err: err}
	}
}

// call runs fn on its own goroutine and returns early when ctx is done.
func call[T any](ctx context.Context, fn func(context.Context) (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := fn(ctx)
		ch <- result{v, err}
	}()
	select {
	case r := <-ch:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

type eventOption func(*Event)

func withElapsed(d time.Duration) eventOption {
	return func(e *Event) { e.Elapsed = d }
}

func (s *Session) completeLocked(results []ranking.MatchResult, resolved Resolved, elapsed time.Duration) {
	if results == nil {
		results = []ranking.MatchResult{}
	}
	s.state = StateCompleted
	s.lastOutcome, s.lastError = EventCompleted, ""
	s.emitLocked(Event{
		Type:      EventCompleted,
		Intensity: s.intensity,
		Results:   results,
		Location:  &resolved,
		Elapsed:   elapsed,
	})
	s.finishLocked()
}

func (s *Session) failLocked(err *Error, opts ...eventOption) {
	s.state = StateFailed
	s.lastOutcome, s.lastError = EventFailed, err.Kind
	ev := Event{Type: EventFailed, Intensity: s.intensity, Err: err}
	for _, o := range opts {
		o(&ev)
	}
	s.emitLocked(ev)
	s.finishLocked()
}

func (s *Session) finishLocked() {
	if s.out != nil {
		close(s.out)
		s.out = nil
	}
	s.stopTimerLocked()
	if s.cancelResolve != nil {
		s.cancelResolve()
		s.cancelResolve = nil
	}
	s.gate.Reset()
	s.state = StateIdle
	s.lastActive = s.deps.Clock()
}

// abortLocked tears down a running activation and reports whether there was one.
func (s *Session) abortLocked() bool {
	if s.state == StateIdle {
		return false
	}
	s.stopTimerLocked()
	if s.cancelResolve != nil {
		s.cancelResolve()
		s.cancelResolve = nil
	}
	s.lastOutcome, s.lastError = EventCancelled, ""
	s.notifyLocked(s.stampLocked(Event{Type: EventCancelled, State: StateIdle, Intensity: s.intensity}))
	if s.out != nil {
		close(s.out)
		s.out = nil
	}
	s.gate.Reset()
	s.state = StateIdle
	s.lastActive = s.deps.Clock()
	return true
}

func (s *Session) stopTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Session) stampLocked(e Event) Event {
	e.SessionID = s.id
	e.Generation = s.gen
	e.RequesterID = s.requesterID
	e.RadiusKm = s.radiusKm
	if e.State == "" {
		e.State = s.state
	}
	e.At = s.deps.Clock()
	return e
}

// emitLocked delivers e to the caller stream and to observers. The stream
// buffer covers a full activation, so the send never blocks.
func (s *Session) emitLocked(e Event) {
	e = s.stampLocked(e)
	if s.out != nil {
		select {
		case s.out <- e:
		default:
			s.logger.Error("event stream full, dropping event", "type", e.Type)
		}
	}
	s.notifyLocked(e)
}

func (s *Session) notifyLocked(e Event) {
	for _, o := range s.observers {
		o.OnEvent(e)
	}
}
