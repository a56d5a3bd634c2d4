// README: Device fixes written to Firebase RTDB by the mobile client.
package location

import (
	"context"
	"fmt"
	"time"

	"firebase.google.com/go/v4/db"

	"travelmate/internal/types"
)

// TravelerLocationsNode is the RTDB node the mobile client writes to.
const TravelerLocationsNode = "traveler_locations"

// RTDBEntry mirrors a single traveler entry under /traveler_locations.
type RTDBEntry struct {
	Lat          float64  `json:"lat"`
	Lng          float64  `json:"lng"`
	Status       string   `json:"status"`
	Timestamp    int64    `json:"timestamp"` // unix millis
	TravelStyle  string   `json:"travel_style,omitempty"`
	Interests    []string `json:"interests,omitempty"`
	Languages    []string `json:"languages,omitempty"`
	Online       bool     `json:"online"`
	LastActiveMs int64    `json:"last_active,omitempty"`
}

// FirebaseProvider resolves the requester's position from RTDB.
type FirebaseProvider struct {
	dbClient *db.Client
	maxAge   time.Duration
	clock    func() time.Time
}

func NewFirebaseProvider(dbClient *db.Client, maxAge time.Duration) *FirebaseProvider {
	return &FirebaseProvider{dbClient: dbClient, maxAge: maxAge, clock: time.Now}
}

func (p *FirebaseProvider) CurrentLocation(ctx context.Context, requesterID types.ID) (types.GeoPoint, error) {
	ref := p.dbClient.NewRef(TravelerLocationsNode).Child(string(requesterID))

	var entry *RTDBEntry
	if err := ref.Get(ctx, &entry); err != nil {
		return types.GeoPoint{}, fmt.Errorf("%w: reading %s: %v", ErrUnavailable, ref.Path, err)
	}
	if entry == nil {
		return types.GeoPoint{}, fmt.Errorf("%w: no fix for %s", ErrUnavailable, requesterID)
	}
	pos := types.GeoPoint{Lat: entry.Lat, Lng: entry.Lng}
	if !pos.Valid() {
		return types.GeoPoint{}, fmt.Errorf("%w: invalid fix for %s", ErrUnavailable, requesterID)
	}
	if p.maxAge > 0 && entry.Timestamp > 0 && p.clock().Sub(time.UnixMilli(entry.Timestamp)) > p.maxAge {
		return types.GeoPoint{}, fmt.Errorf("%w: fix for %s is stale", ErrUnavailable, requesterID)
	}
	return pos, nil
}
