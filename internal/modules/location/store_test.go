package location

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"travelmate/internal/types"
)

func setupRedisStore(t *testing.T, maxAge time.Duration) *RedisStore {
	t.Helper()
	addr := os.Getenv("TRAVELMATE_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TRAVELMATE_TEST_REDIS_ADDR not set; skipping Redis-backed tests")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { rdb.Close() })
	if err := rdb.Del(context.Background(), TravelerGeoKey, travelerSeenKey).Err(); err != nil {
		t.Fatalf("reset keys: %v", err)
	}
	return NewRedisStore(rdb, maxAge)
}

func TestRedisStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := setupRedisStore(t, time.Minute)

	if err := s.SetGeo(ctx, Update{UserID: "u1", Position: seoul}); err != nil {
		t.Fatalf("set geo: %v", err)
	}
	got, err := s.CurrentLocation(ctx, "u1")
	if err != nil {
		t.Fatalf("current location: %v", err)
	}
	// GEO hashes positions to ~0.6 m precision.
	if d := (got.Lat-seoul.Lat)*(got.Lat-seoul.Lat) + (got.Lng-seoul.Lng)*(got.Lng-seoul.Lng); d > 1e-10 {
		t.Fatalf("expected ~%v, got %v", seoul, got)
	}

	hits, err := s.Nearby(ctx, seoul, 1)
	if err != nil || len(hits) != 1 || hits[0].ID != "u1" {
		t.Fatalf("expected u1 nearby, got %v (%v)", hits, err)
	}

	if err := s.Remove(ctx, "u1"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := s.CurrentLocation(ctx, "u1"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable after remove, got %v", err)
	}
}

func TestRedisStore_StaleFix(t *testing.T) {
	ctx := context.Background()
	s := setupRedisStore(t, time.Minute)

	old := time.Now().Add(-time.Hour)
	if err := s.SetGeo(ctx, Update{UserID: "u1", Position: seoul, RecordedAt: old}); err != nil {
		t.Fatalf("set geo: %v", err)
	}
	if _, err := s.CurrentLocation(ctx, "u1"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected stale fix to be unavailable, got %v", err)
	}
	if err := s.SetGeo(ctx, Update{UserID: "u1", Position: types.GeoPoint{Lat: 100}}); !errors.Is(err, ErrInvalidPoint) {
		t.Fatalf("expected ErrInvalidPoint, got %v", err)
	}
}
