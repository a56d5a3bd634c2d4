package location

import (
	"context"
	"fmt"
	"sync"
	"time"

	"travelmate/internal/types"
)

type fix struct {
	pos types.GeoPoint
	at  time.Time
}

// MemoryProvider keeps the latest device-reported fix per user and notifies
// watchers on every accepted report.
type MemoryProvider struct {
	mu       sync.RWMutex
	fixes    map[types.ID]fix
	watchers map[types.ID]map[int]func(types.GeoPoint)
	nextID   int
	maxAge   time.Duration
	clock    func() time.Time
}

func NewMemoryProvider(maxAge time.Duration, clock func() time.Time) *MemoryProvider {
	if clock == nil {
		clock = time.Now
	}
	return &MemoryProvider{
		fixes:    make(map[types.ID]fix),
		watchers: make(map[types.ID]map[int]func(types.GeoPoint)),
		maxAge:   maxAge,
		clock:    clock,
	}
}

func (p *MemoryProvider) Report(u Update) error {
	if !u.Position.Valid() {
		return ErrInvalidPoint
	}
	at := u.RecordedAt
	if at.IsZero() {
		at = p.clock()
	}

	p.mu.Lock()
	if prev, ok := p.fixes[u.UserID]; ok && prev.at.After(at) {
		p.mu.Unlock()
		return nil
	}
	p.fixes[u.UserID] = fix{pos: u.Position, at: at}
	fns := make([]func(types.GeoPoint), 0, len(p.watchers[u.UserID]))
	for _, fn := range p.watchers[u.UserID] {
		fns = append(fns, fn)
	}
	p.mu.Unlock()

	for _, fn := range fns {
		fn(u.Position)
	}
	return nil
}

func (p *MemoryProvider) CurrentLocation(ctx context.Context, requesterID types.ID) (types.GeoPoint, error) {
	if err := ctx.Err(); err != nil {
		return types.GeoPoint{}, err
	}
	p.mu.RLock()
	f, ok := p.fixes[requesterID]
	p.mu.RUnlock()
	if !ok {
		return types.GeoPoint{}, fmt.Errorf("%w: no fix for %s", ErrUnavailable, requesterID)
	}
	if p.maxAge > 0 && p.clock().Sub(f.at) > p.maxAge {
		return types.GeoPoint{}, fmt.Errorf("%w: fix for %s is stale", ErrUnavailable, requesterID)
	}
	return f.pos, nil
}

func (p *MemoryProvider) Watch(requesterID types.ID, fn func(types.GeoPoint)) func() {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	if p.watchers[requesterID] == nil {
		p.watchers[requesterID] = make(map[int]func(types.GeoPoint))
	}
	p.watchers[requesterID][id] = fn
	p.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.watchers[requesterID], id)
			if len(p.watchers[requesterID]) == 0 {
				delete(p.watchers, requesterID)
			}
			p.mu.Unlock()
		})
	}
}
