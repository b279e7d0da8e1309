package profile

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore is an in-memory profile store for development and testing.
type MemoryStore struct {
	mu       sync.RWMutex
	profiles map[string]*Profile
	ratings  map[string]*Rating // keyed by "sessionID/rater"
	byRated  map[string][]*Rating
}

// NewMemoryStore creates a new in-memory profile store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		profiles: make(map[string]*Profile),
		ratings:  make(map[string]*Rating),
		byRated:  make(map[string][]*Rating),
	}
}

func (m *MemoryStore) Get(ctx context.Context, account string) (*Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.profiles[account]
	if !ok {
		return nil, ErrProfileNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *MemoryStore) Save(ctx context.Context, p *Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.profiles[p.Account] = &cp
	return nil
}

func (m *MemoryStore) InsertRating(ctx context.Context, r *Rating) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := ratingKey(r.SessionID, r.Rater)
	if _, exists := m.ratings[key]; exists {
		return false, nil
	}
	cp := *r
	m.ratings[key] = &cp
	m.byRated[r.Rated] = append(m.byRated[r.Rated], &cp)
	return true, nil
}

func (m *MemoryStore) ListRatingsFor(ctx context.Context, rated string, limit int) ([]*Rating, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	all := m.byRated[rated]
	out := make([]*Rating, 0, limit)
	// newest first
	for i := len(all) - 1; i >= 0 && len(out) < limit; i-- {
		cp := *all[i]
		out = append(out, &cp)
	}
	return out, nil
}

func ratingKey(sessionID int64, rater string) string {
	return fmt.Sprintf("%d/%s", sessionID, rater)
}
