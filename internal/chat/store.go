package chat

import (
	"context"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"medreport/internal/models"
)

// Store keeps per-session conversation history.
type Store interface {
	History(ctx context.Context, sessionID string) ([]models.Message, error)
	Append(ctx context.Context, sessionID string, msgs ...models.Message) error
	Clear(ctx context.Context, sessionID string) error
}

// MemoryStore keeps histories in process memory. Each session expires after
// ttl without activity, holds at most maxTurns messages, and at most
// maxSessions sessions are kept; the least recently used one is evicted to
// make room.
type MemoryStore struct {
	mu          sync.Mutex
	sessions    *cache.Cache
	maxTurns    int
	maxSessions int
}

func NewMemoryStore(maxTurns, maxSessions int, ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	cleanup := ttl / 2
	if cleanup < time.Second {
		cleanup = time.Second
	}
	return &MemoryStore{
		sessions:    cache.New(ttl, cleanup),
		maxTurns:    maxTurns,
		maxSessions: maxSessions,
	}
}

func (s *MemoryStore) History(ctx context.Context, sessionID string) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.sessions.Get(sessionID)
	if !ok {
		return nil, nil
	}
	history := v.([]models.Message)
	// touch to slide the expiry
	s.sessions.Set(sessionID, history, cache.DefaultExpiration)
	out := make([]models.Message, len(history))
	copy(out, history)
	return out, nil
}

func (s *MemoryStore) Append(ctx context.Context, sessionID string, msgs ...models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var history []models.Message
	if v, ok := s.sessions.Get(sessionID); ok {
		history = v.([]models.Message)
	} else {
		s.makeRoom()
	}
	next := make([]models.Message, 0, len(history)+len(msgs))
	next = append(next, history...)
	next = append(next, msgs...)
	s.sessions.Set(sessionID, models.LastTurns(next, s.maxTurns), cache.DefaultExpiration)
	return nil
}

func (s *MemoryStore) Clear(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions.Delete(sessionID)
	return nil
}

// Len returns the number of live sessions.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions.ItemCount()
}

// makeRoom evicts until a new session fits. Expiry slides on every access, so
// the earliest expiration is the least recently used session.
func (s *MemoryStore) makeRoom() {
	if s.maxSessions <= 0 || s.sessions.ItemCount() < s.maxSessions {
		return
	}
	s.sessions.DeleteExpired()
	for s.sessions.ItemCount() >= s.maxSessions {
		var (
			oldestKey string
			oldestExp int64
		)
		for k, item := range s.sessions.Items() {
			if oldestKey == "" || item.Expiration < oldestExp {
				oldestKey, oldestExp = k, item.Expiration
			}
		}
		if oldestKey == "" {
			return
		}
		s.sessions.Delete(oldestKey)
	}
}
