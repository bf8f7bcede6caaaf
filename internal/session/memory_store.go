package session

import (
	"context"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryStore keeps sessions in process. Used when no Redis is configured
// and in tests.
type MemoryStore struct {
	c *gocache.Cache
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{c: gocache.New(gocache.NoExpiration, time.Minute)}
}

func (m *MemoryStore) Create(_ context.Context, s Session) error {
	if s.SessionID == "" {
		return fmt.Errorf("session: missing session_id")
	}
	ttl := time.Until(s.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("session: expires_at must be in the future")
	}
	if err := m.c.Add(s.SessionID, s, ttl); err != nil {
		return ErrSessionExists
	}
	return nil
}

func (m *MemoryStore) Get(_ context.Context, sessionID string) (*Session, error) {
	v, ok := m.c.Get(sessionID)
	if !ok {
		return nil, nil
	}
	s := v.(Session)
	return &s, nil
}

func (m *MemoryStore) Update(_ context.Context, s Session) error {
	if s.SessionID == "" {
		return fmt.Errorf("session: missing session_id")
	}
	ttl := time.Until(s.ExpiresAt)
	if ttl <= 0 {
		m.c.Delete(s.SessionID)
		return nil
	}
	m.c.Set(s.SessionID, s, ttl)
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, sessionID string) error {
	m.c.Delete(sessionID)
	return nil
}
