// Package redis implements the auth session store on Redis. Sessions
// are written with a TTL so the callback leg of the external auth flow
// works on any instance and abandoned sessions expire on their own.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"batch-disburser/internal/domain"

	"github.com/redis/go-redis/v9"
)

const sessionKeyPrefix = "disburse:session:"

type sessionStore struct {
	rdb *redis.Client
}

// NewClient connects to Redis and verifies the connection.
func NewClient(addr string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis connect failed: %w", err)
	}
	return rdb, nil
}

// NewSessionStore creates a Redis-backed auth session store.
func NewSessionStore(rdb *redis.Client) domain.SessionStore {
	return &sessionStore{rdb: rdb}
}

func (s *sessionStore) Save(ctx context.Context, state string, sess domain.AuthSession, ttl time.Duration) error {
	payload, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to marshal auth session: %w", err)
	}
	if err := s.rdb.Set(ctx, sessionKeyPrefix+state, payload, ttl).Err(); err != nil {
		return fmt.Errorf("failed to save auth session %s: %w", state, err)
	}
	return nil
}

func (s *sessionStore) Get(ctx context.Context, state string) (domain.AuthSession, error) {
	payload, err := s.rdb.Get(ctx, sessionKeyPrefix+state).Bytes()
	if err == redis.Nil {
		return domain.AuthSession{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.AuthSession{}, fmt.Errorf("failed to get auth session %s: %w", state, err)
	}

	var sess domain.AuthSession
	if err := json.Unmarshal(payload, &sess); err != nil {
		return domain.AuthSession{}, fmt.Errorf("corrupt auth session %s: %w", state, err)
	}
	return sess, nil
}

func (s *sessionStore) Delete(ctx context.Context, state string) error {
	return s.rdb.Del(ctx, sessionKeyPrefix+state).Err()
}
