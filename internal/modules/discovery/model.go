// README: Discovery session states, events and the error taxonomy delivered to callers.
package discovery

import (
	"errors"
	"fmt"
	"time"

	"travelmate/internal/modules/motion"
	"travelmate/internal/modules/ranking"
	"travelmate/internal/types"
)

type State string

const (
	StateIdle      State = "idle"
	StateListening State = "listening"
	StateTriggered State = "triggered"
	StateResolving State = "resolving"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// AllowedTransitions is the session state flow as code. Cancel and
// re-activation may move any non-idle state back to idle or listening.
var AllowedTransitions = map[State][]State{
	StateIdle:      {StateListening},
	StateListening: {StateTriggered, StateFailed},
	StateTriggered: {StateResolving},
	StateResolving: {StateCompleted, StateFailed},
	StateCompleted: {StateIdle},
	StateFailed:    {StateIdle},
}

func CanTransition(from, to State) bool {
	for _, s := range AllowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

type ErrorKind string

const (
	KindListenTimeout       ErrorKind = "listen_timeout"
	KindLocationUnavailable ErrorKind = "location_unavailable"
	KindPoolUnavailable     ErrorKind = "pool_unavailable"
	KindResolutionTimeout   ErrorKind = "resolution_timeout"
)

var (
	ErrListenTimeout       = motion.ErrListenTimeout
	ErrLocationUnavailable = errors.New("location unavailable")
	ErrPoolUnavailable     = errors.New("candidate pool unavailable")
	ErrResolutionTimeout   = errors.New("resolution timed out")

	ErrInvalidRadius    = errors.New("radius must be a finite non-negative number")
	ErrInvalidRequester = errors.New("requester id is required")
	ErrNoSession        = errors.New("no discovery session for requester")
	ErrClosed           = errors.New("discovery session closed")
)

var kindSentinels = map[ErrorKind]error{
	KindListenTimeout:       ErrListenTimeout,
	KindLocationUnavailable: ErrLocationUnavailable,
	KindPoolUnavailable:     ErrPoolUnavailable,
	KindResolutionTimeout:   ErrResolutionTimeout,
}

// Error is the failure carried by a failed event. errors.Is matches both the
// kind sentinel and the wrapped cause.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	s, ok := kindSentinels[e.Kind]
	return ok && s == target
}

// KindOf returns the error kind of err, or "" when err is not a session error.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

type EventType string

const (
	EventListening EventType = "listening"
	EventTriggered EventType = "triggered"
	EventResolving EventType = "resolving"
	EventCompleted EventType = "completed"
	EventFailed    EventType = "failed"
	// EventCancelled is delivered to observers only.
	EventCancelled EventType = "cancelled"
)

func (t EventType) Terminal() bool {
	return t == EventCompleted || t == EventFailed || t == EventCancelled
}

// Resolved describes the origin a completed pass was ranked around.
type Resolved struct {
	Point    types.GeoPoint `json:"point"`
	Degraded bool           `json:"degraded"`
	Address  string         `json:"address,omitempty"`
}

type Event struct {
	SessionID   string                `json:"session_id"`
	Generation  uint64                `json:"generation"`
	RequesterID types.ID              `json:"requester_id"`
	Type        EventType             `json:"type"`
	State       State                 `json:"state"`
	Intensity   float64               `json:"intensity,omitempty"`
	RadiusKm    float64               `json:"radius_km"`
	Results     []ranking.MatchResult `json:"results,omitempty"`
	Location    *Resolved             `json:"location,omitempty"`
	Err         error                 `json:"-"`
	Elapsed     time.Duration         `json:"-"`
	At          time.Time             `json:"at"`
}

// Observer receives every transition of a session, including cancellation.
// OnEvent runs while the session lock is held and must not call back into
// the session.
type Observer interface {
	OnEvent(Event)
}

type ObserverFunc func(Event)

func (f ObserverFunc) OnEvent(e Event) { f(e) }

// Status is a point-in-time view of a session.
type Status struct {
	SessionID      string     `json:"session_id"`
	RequesterID    types.ID   `json:"requester_id"`
	State          State      `json:"state"`
	Generation     uint64     `json:"generation"`
	RadiusKm       float64    `json:"radius_km"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	ListenDeadline *time.Time `json:"listen_deadline,omitempty"`
	Intensity      float64    `json:"trigger_intensity,omitempty"`
	LastOutcome    EventType  `json:"last_outcome,omitempty"`
	LastError      ErrorKind  `json:"last_error,omitempty"`
}
