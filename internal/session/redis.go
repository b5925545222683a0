package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// redisKeyPrefix namespaces session keys in a shared Redis database.
const redisKeyPrefix = "authflow:session:"

// RedisBackend stores sessions as JSON strings in Redis.
// Keys carry no TTL: a session is emptied, never deleted.
type RedisBackend struct {
	client redis.UniversalClient
	prefix string
}

// RedisBackendOption configures a RedisBackend.
type RedisBackendOption func(*RedisBackend)

// WithKeyPrefix overrides the key prefix.
func WithKeyPrefix(prefix string) RedisBackendOption {
	return func(b *RedisBackend) {
		b.prefix = prefix
	}
}

// NewRedisBackend constructs a Redis-backed session backend.
func NewRedisBackend(client redis.UniversalClient, opts ...RedisBackendOption) *RedisBackend {
	b := &RedisBackend{
		client: client,
		prefix: redisKeyPrefix,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

// NewRedisClient parses a redis:// URL and verifies the connection.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

// Load implements Backend.
func (b *RedisBackend) Load(ctx context.Context, accountID string) (Session, error) {
	data, err := b.client.Get(ctx, b.prefix+accountID).Bytes()
	if errors.Is(err, redis.Nil) {
		return Session{}, nil
	}
	if err != nil {
		return Session{}, fmt.Errorf("redis get: %w", err)
	}

	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return Session{}, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return s, nil
}

// Save implements Backend.
func (b *RedisBackend) Save(ctx context.Context, accountID string, s Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	if err := b.client.Set(ctx, b.prefix+accountID, data, 0).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}
