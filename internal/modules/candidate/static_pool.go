package candidate

import (
	"context"
	"sync"
	"time"

	"travelmate/internal/types"
)

// StaticPool is an in-memory pool refreshed from outside via Replace/Upsert.
// Snapshots are copies, so a caller never observes a later refresh.
type StaticPool struct {
	mu    sync.RWMutex
	items map[string]Candidate
}

func NewStaticPool(initial ...Candidate) *StaticPool {
	p := &StaticPool{items: make(map[string]Candidate, len(initial))}
	p.Replace(initial)
	return p
}

func (p *StaticPool) Replace(cands []Candidate) {
	items := make(map[string]Candidate, len(cands))
	for _, c := range cands {
		c.Attributes.Interests = normalizeInterests(c.Attributes.Interests)
		items[string(c.ID)] = cloneCandidate(c)
	}
	p.mu.Lock()
	p.items = items
	p.mu.Unlock()
}

func (p *StaticPool) Upsert(c Candidate) {
	c.Attributes.Interests = normalizeInterests(c.Attributes.Interests)
	p.mu.Lock()
	p.items[string(c.ID)] = cloneCandidate(c)
	p.mu.Unlock()
}

func (p *StaticPool) Remove(id string) {
	p.mu.Lock()
	delete(p.items, id)
	p.mu.Unlock()
}

func (p *StaticPool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.items)
}

func (p *StaticPool) Snapshot(ctx context.Context, q Query) ([]Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Candidate, 0, len(p.items))
	for id, c := range p.items {
		if id == string(q.RequesterID) {
			continue
		}
		out = append(out, cloneCandidate(c))
	}
	return out, nil
}

// UpdatePosition moves a traveler, creating it when unknown.
func (p *StaticPool) UpdatePosition(ctx context.Context, id types.ID, pos types.GeoPoint, at time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.items[string(id)]
	if !ok {
		c = Candidate{ID: id}
	}
	c.Location = pos
	c.Attributes.Online = true
	c.Attributes.LastActiveAt = at
	p.items[string(id)] = c
	return nil
}

func (p *StaticPool) UpsertProfile(ctx context.Context, id types.ID, attrs Attributes) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.items[string(id)]
	if !ok {
		return ErrUnknownTraveler
	}
	attrs.Interests = normalizeInterests(attrs.Interests)
	c.Attributes = attrs
	p.items[string(id)] = cloneCandidate(c)
	return nil
}
