// README: Location service fans a device fix out to every configured sink.
package location

import (
	"context"
	"log/slog"
	"time"
)

type Service struct {
	memory *MemoryProvider
	store  *RedisStore
	logger *slog.Logger
	clock  func() time.Time
}

// NewService wires the in-process fix cache and, optionally, the shared
// Redis geo index. Either may be nil.
func NewService(memory *MemoryProvider, store *RedisStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{memory: memory, store: store, logger: logger, clock: time.Now}
}

func (s *Service) Update(ctx context.Context, u Update) error {
	if u.UserID == "" || !u.Position.Valid() {
		return ErrInvalidPoint
	}
	if u.RecordedAt.IsZero() {
		u.RecordedAt = s.clock()
	}
	if s.store != nil {
		if err := s.store.SetGeo(ctx, u); err != nil {
			return err
		}
	}
	if s.memory != nil {
		if err := s.memory.Report(u); err != nil {
			return err
		}
	}
	s.logger.Debug("location updated", "user_id", u.UserID, "lat", u.Position.Lat, "lng", u.Position.Lng)
	return nil
}
