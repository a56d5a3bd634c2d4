package candidate

import (
	"context"
	"fmt"
	"time"

	"firebase.google.com/go/v4/db"

	"travelmate/internal/modules/location"
	"travelmate/internal/types"
)

// discoverableStatus marks travelers who opted into discovery.
const discoverableStatus = "discoverable"

// FirebasePool reads discoverable travelers from the RTDB node the mobile
// client maintains. RTDB has no geo index, so the whole discoverable set is
// returned and the ranker filters by radius.
type FirebasePool struct {
	dbClient *db.Client
}

func NewFirebasePool(dbClient *db.Client) *FirebasePool {
	return &FirebasePool{dbClient: dbClient}
}

func (p *FirebasePool) Snapshot(ctx context.Context, q Query) ([]Candidate, error) {
	ref := p.dbClient.NewRef(location.TravelerLocationsNode)

	var data map[string]location.RTDBEntry
	if err := ref.OrderByChild("status").EqualTo(discoverableStatus).Get(ctx, &data); err != nil {
		return nil, fmt.Errorf("%w: querying discoverable travelers: %v", ErrPoolUnavailable, err)
	}

	out := make([]Candidate, 0, len(data))
	for id, e := range data {
		if id == string(q.RequesterID) {
			continue
		}
		c := Candidate{
			ID:       types.ID(id),
			Location: types.GeoPoint{Lat: e.Lat, Lng: e.Lng},
			Attributes: Attributes{
				TravelStyle: e.TravelStyle,
				Interests:   normalizeInterests(e.Interests),
				Languages:   e.Languages,
				Online:      e.Online,
			},
		}
		switch {
		case e.LastActiveMs > 0:
			c.Attributes.LastActiveAt = time.UnixMilli(e.LastActiveMs)
		case e.Timestamp > 0:
			c.Attributes.LastActiveAt = time.UnixMilli(e.Timestamp)
		}
		out = append(out, c)
	}
	return out, nil
}
