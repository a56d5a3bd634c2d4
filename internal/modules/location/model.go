// README: Location contracts: where a requester is right now, and how fixes are reported.
package location

import (
	"context"
	"errors"
	"time"

	"travelmate/internal/types"
)

// ErrUnavailable covers denied permission, no fix yet, stale fixes and
// unreachable backends.
var ErrUnavailable = errors.New("location unavailable")

var ErrInvalidPoint = errors.New("invalid coordinates")

// Provider supplies the current position of a requester.
type Provider interface {
	CurrentLocation(ctx context.Context, requesterID types.ID) (types.GeoPoint, error)
}

// Watcher is the optional continuous mode. The returned func unwatches.
type Watcher interface {
	Watch(requesterID types.ID, fn func(types.GeoPoint)) (unwatch func())
}

// Update is a device-reported fix.
type Update struct {
	UserID     types.ID
	Position   types.GeoPoint
	RecordedAt time.Time
}

// DefaultMaxAge mirrors the mobile client's maximumAge for cached fixes.
const DefaultMaxAge = 5 * time.Minute
