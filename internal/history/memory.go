package history

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/sha1n/relic-rag/internal/domain"
)

// MemoryStore keeps conversations in process. Histories are lost on restart.
type MemoryStore struct {
	cache    *cache.Cache
	maxTurns int
	mu       sync.Mutex
}

// NewMemoryStore creates a store. A ttl of zero keeps conversations until cleared.
func NewMemoryStore(maxTurns int, ttl time.Duration) *MemoryStore {
	expiration, cleanup := cache.NoExpiration, time.Duration(0)
	if ttl > 0 {
		expiration, cleanup = ttl, 10*time.Minute
	}
	return &MemoryStore{
		cache:    cache.New(expiration, cleanup),
		maxTurns: normalizeMaxTurns(maxTurns),
	}
}

// Append stores a new slice on every call; slices handed out by History are never mutated.
func (s *MemoryStore) Append(_ context.Context, user, conversationID string, turns ...domain.Turn) error {
	key, err := Key(user, conversationID)
	if err != nil {
		return err
	}
	if len(turns) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var current []domain.Turn
	if v, found := s.cache.Get(key); found {
		current = v.([]domain.Turn)
	}

	next := make([]domain.Turn, 0, len(current)+len(turns))
	next = append(next, current...)
	next = append(next, turns...)
	if excess := len(next) - s.maxTurns; excess > 0 {
		next = next[excess:]
	}

	s.cache.Set(key, next, cache.DefaultExpiration)
	return nil
}

func (s *MemoryStore) History(_ context.Context, user, conversationID string) ([]domain.Turn, error) {
	key, err := Key(user, conversationID)
	if err != nil {
		return nil, err
	}

	v, found := s.cache.Get(key)
	if !found {
		return []domain.Turn{}, nil
	}
	return slices.Clone(v.([]domain.Turn)), nil
}

// Clear shares Append's lock, so a clear cannot be undone by an append that read the turns before it.
func (s *MemoryStore) Clear(_ context.Context, user, conversationID string) error {
	key, err := Key(user, conversationID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Delete(key)
	return nil
}
