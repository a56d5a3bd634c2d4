// README: Redis client initialization for the traveler geo index and profiles.
package infra

import (
	"context"

	"github.com/redis/go-redis/v9"
)

type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

// NewRedis connects and waits for PING to succeed.
func NewRedis(ctx context.Context, opts RedisOptions) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	err := waitReady(ctx, "redis", func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	})
	if err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return rdb, nil
}
