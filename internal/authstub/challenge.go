package authstub

import (
	"context"
	"sync"
	"time"
)

// challenge is a pending 2FA login. Only the code hash is kept.
type challenge struct {
	userID    string
	codeHash  string
	expiresAt time.Time
	attempts  int
}

// ChallengeStore holds pending 2FA challenges by id.
type ChallengeStore interface {
	Put(ctx context.Context, id string, c challenge)
	// Get returns the challenge if present and not expired.
	Get(ctx context.Context, id string) (challenge, bool)
	// Fail counts a wrong code and returns the attempts so far.
	Fail(ctx context.Context, id string) int
	Delete(ctx context.Context, id string)
}

// MemoryChallengeStore is an in-memory ChallengeStore.
type MemoryChallengeStore struct {
	mu   sync.RWMutex
	m    map[string]challenge
	nowF func() time.Time
}

// NewMemoryChallengeStore returns an empty store.
func NewMemoryChallengeStore() *MemoryChallengeStore {
	return &MemoryChallengeStore{m: make(map[string]challenge), nowF: time.Now}
}

func (s *MemoryChallengeStore) Put(ctx context.Context, id string, c challenge) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[id] = c
}

func (s *MemoryChallengeStore) Get(ctx context.Context, id string) (challenge, bool) {
	s.mu.RLock()
	c, ok := s.m[id]
	s.mu.RUnlock()
	if !ok {
		return challenge{}, false
	}
	if !c.expiresAt.After(s.nowF()) {
		s.Delete(ctx, id)
		return challenge{}, false
	}
	return c, true
}

func (s *MemoryChallengeStore) Fail(ctx context.Context, id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.m[id]
	if !ok {
		return 0
	}
	c.attempts++
	s.m[id] = c
	return c.attempts
}

func (s *MemoryChallengeStore) Delete(ctx context.Context, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, id)
}
