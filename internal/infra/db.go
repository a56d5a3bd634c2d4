// README: Postgres connection pool initialization using pgxpool.
package infra

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// NewDB opens a pool and waits for the server to answer.
func NewDB(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	if err := waitReady(ctx, "postgres", pool.Ping); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}
