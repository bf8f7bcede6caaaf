package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "admin:session:"

// RedisStore keeps sessions as JSON values that expire with the session.
type RedisStore struct {
	client *redis.Client
	prefix string
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: redisKeyPrefix,
	}
}

func (r *RedisStore) key(sessionID string) string {
	return r.prefix + sessionID
}

// Create stores s unless a session with the same id exists.
func (r *RedisStore) Create(ctx context.Context, s Session) error {
	data, ttl, err := encode(s)
	if err != nil {
		return err
	}
	if ttl <= 0 {
		return fmt.Errorf("session: expires_at must be in the future")
	}

	created, err := r.client.SetNX(ctx, r.key(s.SessionID), data, ttl).Result()
	if err != nil {
		return fmt.Errorf("session: redis create: %w", err)
	}
	if !created {
		return ErrSessionExists
	}
	return nil
}

func (r *RedisStore) Get(ctx context.Context, sessionID string) (*Session, error) {
	val, err := r.client.Get(ctx, r.key(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("session: redis get: %w", err)
	}

	var s Session
	if err := json.Unmarshal(val, &s); err != nil {
		return nil, fmt.Errorf("session: failed to unmarshal: %w", err)
	}
	return &s, nil
}

// Update replaces s. A session past its expiry is deleted instead.
func (r *RedisStore) Update(ctx context.Context, s Session) error {
	data, ttl, err := encode(s)
	if err != nil {
		return err
	}
	if ttl <= 0 {
		return r.Delete(ctx, s.SessionID)
	}

	if err := r.client.Set(ctx, r.key(s.SessionID), data, ttl).Err(); err != nil {
		return fmt.Errorf("session: redis update: %w", err)
	}
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, sessionID string) error {
	return r.client.Del(ctx, r.key(sessionID)).Err()
}

func encode(s Session) ([]byte, time.Duration, error) {
	if s.SessionID == "" {
		return nil, 0, fmt.Errorf("session: missing session_id")
	}
	data, err := json.Marshal(s)
	if err != nil {
		return nil, 0, fmt.Errorf("session: failed to marshal: %w", err)
	}
	return data, time.Until(s.ExpiresAt), nil
}
