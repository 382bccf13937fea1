package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "palmyra:session:pending-invitation:"

// RedisStore keeps pending invitation tokens in Redis with a TTL.
type RedisStore struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewRedisClient parses url and pings the server.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return client, nil
}

// NewRedisStore builds a RedisStore.
func NewRedisStore(client redis.UniversalClient, ttl time.Duration) *RedisStore {
	if client == nil {
		panic("redis session store requires client")
	}
	return &RedisStore{client: client, ttl: ttl}
}

// PutPendingInvitation implements Store.
func (s *RedisStore) PutPendingInvitation(ctx context.Context, sessionID, token string) error {
	if err := s.client.Set(ctx, keyPrefix+sessionID, token, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set pending invitation: %w", err)
	}
	return nil
}

// PendingInvitation implements Store.
func (s *RedisStore) PendingInvitation(ctx context.Context, sessionID string) (string, bool, error) {
	token, err := s.client.Get(ctx, keyPrefix+sessionID).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get pending invitation: %w", err)
	}
	return token, true, nil
}

// ForgetPendingInvitation implements Store.
func (s *RedisStore) ForgetPendingInvitation(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, keyPrefix+sessionID).Err(); err != nil {
		return fmt.Errorf("redis forget pending invitation: %w", err)
	}
	return nil
}
