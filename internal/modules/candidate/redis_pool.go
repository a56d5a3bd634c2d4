// README: Candidate pool backed by the Redis traveler geo index and profile hashes.
package candidate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"travelmate/internal/modules/location"
	"travelmate/internal/types"
)

const (
	profileKeyPrefix = "traveler:%s:profile"
	// Profiles outlive positions; a traveler absent this long drops out.
	profileTTL = 7 * 24 * time.Hour
)

type RedisPool struct {
	redis *redis.Client
	geo   *location.RedisStore
}

func NewRedisPool(rdb *redis.Client, geo *location.RedisStore) *RedisPool {
	return &RedisPool{redis: rdb, geo: geo}
}

// UpsertProfile stores the attributes used for scoring.
func (p *RedisPool) UpsertProfile(ctx context.Context, id types.ID, attrs Attributes) error {
	attrs.Interests = normalizeInterests(attrs.Interests)
	data, err := json.Marshal(attrs)
	if err != nil {
		return err
	}
	return p.redis.Set(ctx, profileKey(id), data, profileTTL).Err()
}

func (p *RedisPool) RemoveProfile(ctx context.Context, id types.ID) error {
	return p.redis.Del(ctx, profileKey(id)).Err()
}

func (p *RedisPool) Snapshot(ctx context.Context, q Query) ([]Candidate, error) {
	hits, err := p.geo.Nearby(ctx, q.Origin, queryRadiusKm(q.RadiusKm))
	if err != nil {
		return nil, fmt.Errorf("%w: geo search: %v", ErrPoolUnavailable, err)
	}

	ids := make([]types.ID, 0, len(hits))
	for _, h := range hits {
		if h.ID != q.RequesterID {
			ids = append(ids, h.ID)
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}
	seen, err := p.geo.LastSeen(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("%w: loading last seen: %v", ErrPoolUnavailable, err)
	}

	// Positions nobody has refreshed within the store's max age drop out.
	filtered := hits[:0]
	for _, h := range hits {
		if h.ID != q.RequesterID && !p.geo.Stale(seen[h.ID]) {
			filtered = append(filtered, h)
		}
	}
	if len(filtered) == 0 {
		return nil, nil
	}

	pipe := p.redis.Pipeline()
	cmds := make([]*redis.StringCmd, len(filtered))
	for i, h := range filtered {
		cmds[i] = pipe.Get(ctx, profileKey(h.ID))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: loading profiles: %v", ErrPoolUnavailable, err)
	}

	out := make([]Candidate, 0, len(filtered))
	for i, h := range filtered {
		c := Candidate{ID: h.ID, Location: h.Position}
		raw, err := cmds[i].Bytes()
		switch {
		case errors.Is(err, redis.Nil):
			// Position without a profile: rank on distance alone.
		case err != nil:
			return nil, fmt.Errorf("%w: loading profile %s: %v", ErrPoolUnavailable, h.ID, err)
		default:
			if err := json.Unmarshal(raw, &c.Attributes); err != nil {
				return nil, fmt.Errorf("decoding profile %s: %w", h.ID, err)
			}
		}
		// A location report is activity too.
		if at, ok := seen[h.ID]; ok && at.After(c.Attributes.LastActiveAt) {
			c.Attributes.LastActiveAt = at
		}
		out = append(out, c)
	}
	return out, nil
}

func profileKey(id types.ID) string {
	return fmt.Sprintf(profileKeyPrefix, string(id))
}
