package infra

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/codeGROOVE-dev/retry"
)

// startupAttempts covers a dependency container that is still booting.
const startupAttempts = 5

func waitReady(ctx context.Context, name string, ping func(context.Context) error) error {
	err := retry.Do(
		func() error { return ping(ctx) },
		retry.Context(ctx),
		retry.Attempts(startupAttempts),
		retry.Delay(500*time.Millisecond),
		retry.MaxDelay(5*time.Second),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			slog.Warn("dependency not ready, retrying", "dependency", name, "attempt", n+1, "error", err)
		}),
	)
	if err != nil {
		return fmt.Errorf("%s not ready: %w", name, err)
	}
	return nil
}
