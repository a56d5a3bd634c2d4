// README: Backend selection for the location provider and the candidate pool.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"firebase.google.com/go/v4/db"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"travelmate/internal/config"
	"travelmate/internal/infra"
	"travelmate/internal/modules/candidate"
	"travelmate/internal/modules/location"
)

type backends struct {
	provider  location.Provider
	locations *location.Service
	pool      candidate.Pool
	positions candidate.PositionWriter
	profiles  candidate.ProfileWriter
	closers   []func()
}

func (b *backends) close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

// openBackends connects only the stores the configured backends need.
func openBackends(ctx context.Context, cfg config.Config, logger *slog.Logger) (*backends, error) {
	d := cfg.Discovery
	b := &backends{}

	var (
		rdb *redis.Client
		pg  *pgxpool.Pool
		fb  *db.Client
		err error
	)
	if d.PoolBackend == "redis" || d.LocationBackend == "redis" {
		rdb, err = infra.NewRedis(ctx, infra.RedisOptions{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, func() { _ = rdb.Close() })
	}
	if d.PoolBackend == "postgres" {
		pg, err = infra.NewDB(ctx, cfg.DB.DSN)
		if err != nil {
			b.close()
			return nil, err
		}
		b.closers = append(b.closers, pg.Close)
	}
	if d.PoolBackend == "firebase" || d.LocationBackend == "firebase" {
		fb, err = infra.NewFirebaseDB(ctx, infra.FirebaseOptions{
			ProjectID:       cfg.Firebase.ProjectID,
			DatabaseURL:     cfg.Firebase.DatabaseURL,
			CredentialsFile: cfg.Firebase.CredentialsFile,
		})
		if err != nil {
			b.close()
			return nil, err
		}
	}

	memory := location.NewMemoryProvider(d.LocationMaxAge, nil)
	var geo *location.RedisStore
	if rdb != nil {
		geo = location.NewRedisStore(rdb, d.LocationMaxAge)
	}
	b.locations = location.NewService(memory, geo, logger)

	switch d.LocationBackend {
	case "redis":
		b.provider = geo
	case "firebase":
		b.provider = location.NewFirebaseProvider(fb, d.LocationMaxAge)
	default:
		b.provider = memory
	}

	switch d.PoolBackend {
	case "redis":
		p := candidate.NewRedisPool(rdb, geo)
		b.pool, b.profiles = p, p
	case "postgres":
		p := candidate.NewPostgresPool(pg)
		b.pool, b.positions, b.profiles = p, p, p
	case "firebase":
		b.pool = candidate.NewFirebasePool(fb)
	case "static":
		p := candidate.NewStaticPool()
		b.pool, b.positions, b.profiles = p, p, p
	case "synthetic":
		seed := d.SyntheticSeed
		if seed == 0 {
			seed = uint64(time.Now().UnixNano())
		}
		b.pool = candidate.NewSyntheticPool(seed, nil)
	default:
		b.close()
		return nil, fmt.Errorf("unknown pool backend %q", d.PoolBackend)
	}
	return b, nil
}
