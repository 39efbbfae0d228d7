package state

import (
	"context"
	"sync"
)

// Store caches the persisted state and serializes updates to it, so that
// independent owners of state fields can share one Repository.
type Store struct {
	mu     sync.Mutex
	repo   Repository
	cur    State
	loaded bool
}

// NewStore wraps repo. The state is read from repo by Load, or by the first
// Update if Load was not called.
func NewStore(repo Repository) *Store {
	return &Store{repo: repo, cur: Empty()}
}

// Load reads the persisted state and caches it.
func (s *Store) Load(ctx context.Context) (State, error) {
	st, err := s.repo.Load(ctx)
	if err != nil {
		return Empty(), err
	}
	s.mu.Lock()
	s.cur = st.Clone()
	s.loaded = true
	s.mu.Unlock()
	return st, nil
}

// Update applies fn to the cached state and saves the result. The cache is
// updated even if the save fails so the next successful save carries it.
func (s *Store) Update(ctx context.Context, fn func(*State)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded {
		st, err := s.repo.Load(ctx)
		if err != nil {
			return err
		}
		s.cur = st
		s.loaded = true
	}
	fn(&s.cur)
	return s.repo.Save(ctx, s.cur.Clone())
}

// Snapshot returns a copy of the cached state.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur.Clone()
}
