// README: Traveler geo index backed by Redis GEO plus a last-seen hash.
package location

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"travelmate/internal/types"
)

const (
	TravelerGeoKey  = "geo:travelers"
	travelerSeenKey = "geo:travelers:seen"
)

// GeoHit is a traveler position returned by a radius search.
type GeoHit struct {
	ID       types.ID
	Position types.GeoPoint
}

type RedisStore struct {
	redis  *redis.Client
	maxAge time.Duration
	clock  func() time.Time
}

func NewRedisStore(rdb *redis.Client, maxAge time.Duration) *RedisStore {
	return &RedisStore{redis: rdb, maxAge: maxAge, clock: time.Now}
}

func (s *RedisStore) SetGeo(ctx context.Context, u Update) error {
	if !u.Position.Valid() {
		return ErrInvalidPoint
	}
	at := u.RecordedAt
	if at.IsZero() {
		at = s.clock()
	}
	pipe := s.redis.TxPipeline()
	pipe.GeoAdd(ctx, TravelerGeoKey, &redis.GeoLocation{
		Name:      string(u.UserID),
		Longitude: u.Position.Lng,
		Latitude:  u.Position.Lat,
	})
	pipe.HSet(ctx, travelerSeenKey, string(u.UserID), at.UnixMilli())
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisStore) Remove(ctx context.Context, id types.ID) error {
	pipe := s.redis.TxPipeline()
	pipe.ZRem(ctx, TravelerGeoKey, string(id))
	pipe.HDel(ctx, travelerSeenKey, string(id))
	_, err := pipe.Exec(ctx)
	return err
}

// CurrentLocation implements Provider from the last reported position.
func (s *RedisStore) CurrentLocation(ctx context.Context, requesterID types.ID) (types.GeoPoint, error) {
	pos, err := s.redis.GeoPos(ctx, TravelerGeoKey, string(requesterID)).Result()
	if err != nil {
		return types.GeoPoint{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(pos) == 0 || pos[0] == nil {
		return types.GeoPoint{}, fmt.Errorf("%w: no fix for %s", ErrUnavailable, requesterID)
	}
	if s.maxAge > 0 {
		seen, err := s.lastSeen(ctx, requesterID)
		if err != nil {
			return types.GeoPoint{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		if s.clock().Sub(seen) > s.maxAge {
			return types.GeoPoint{}, fmt.Errorf("%w: fix for %s is stale", ErrUnavailable, requesterID)
		}
	}
	return types.GeoPoint{Lat: pos[0].Latitude, Lng: pos[0].Longitude}, nil
}

// Nearby returns travelers within radiusKm of origin, closest first.
func (s *RedisStore) Nearby(ctx context.Context, origin types.GeoPoint, radiusKm float64) ([]GeoHit, error) {
	results, err := s.redis.GeoSearchLocation(ctx, TravelerGeoKey, &redis.GeoSearchLocationQuery{
		GeoSearchQuery: redis.GeoSearchQuery{
			Longitude:  origin.Lng,
			Latitude:   origin.Lat,
			Radius:     radiusKm,
			RadiusUnit: "km",
			Sort:       "ASC",
		},
		WithCoord: true,
	}).Result()
	if err != nil {
		return nil, err
	}
	hits := make([]GeoHit, len(results))
	for i, r := range results {
		hits[i] = GeoHit{
			ID:       types.ID(r.Name),
			Position: types.GeoPoint{Lat: r.Latitude, Lng: r.Longitude},
		}
	}
	return hits, nil
}

func (s *RedisStore) lastSeen(ctx context.Context, id types.ID) (time.Time, error) {
	val, err := s.redis.HGet(ctx, travelerSeenKey, string(id)).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	return parseSeen(val)
}

// LastSeen returns the last report time of each id that has one.
func (s *RedisStore) LastSeen(ctx context.Context, ids []types.ID) (map[types.ID]time.Time, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	fields := make([]string, len(ids))
	for i, id := range ids {
		fields[i] = string(id)
	}
	vals, err := s.redis.HMGet(ctx, travelerSeenKey, fields...).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[types.ID]time.Time, len(ids))
	for i, v := range vals {
		str, ok := v.(string)
		if !ok {
			continue
		}
		at, err := parseSeen(str)
		if err != nil {
			return nil, fmt.Errorf("last seen for %s: %w", ids[i], err)
		}
		out[ids[i]] = at
	}
	return out, nil
}

// Stale reports whether a fix reported at seen is older than the store's
// max age. Unknown report times are never stale.
func (s *RedisStore) Stale(seen time.Time) bool {
	return s.maxAge > 0 && !seen.IsZero() && s.clock().Sub(seen) > s.maxAge
}

func parseSeen(val string) (time.Time, error) {
	ms, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(ms), nil
}
