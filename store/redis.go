package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements CredentialStore using Redis. Useful when several
// dashboard processes should share one session.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a Redis credential store from a Redis client and
// a key prefix. prefix typically ends with a colon.
func NewRedisStore(client *redis.Client, keyPrefix string) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: keyPrefix,
	}
}

// RedisConfig contains configuration options for Redis.
type RedisConfig struct {
	// Addr is the Redis server address (e.g., "localhost:6379")
	Addr string

	// Password is the Redis password (empty for no auth)
	Password string

	// DB is the Redis database number (0-15)
	DB int

	// KeyPrefix is prepended to all keys (default: "telesync:")
	// typically ends with a colon.
	KeyPrefix string
}

// NewRedisFromConfig creates a Redis credential store and verifies the
// connection.
func NewRedisFromConfig(cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis: failed to connect: %w", err)
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "telesync:"
	}

	return &RedisStore{
		client: client,
		prefix: prefix,
	}, nil
}

func (s *RedisStore) set(name string, value []byte) error {
	ctx := context.Background()
	if err := s.client.Set(ctx, s.prefix+name, value, 0).Err(); err != nil {
		return fmt.Errorf("redis: failed to set %s: %w", name, err)
	}
	return nil
}

func (s *RedisStore) get(name string) ([]byte, error) {
	ctx := context.Background()
	value, err := s.client.Get(ctx, s.prefix+name).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis: failed to get %s: %w", name, err)
	}
	return value, nil
}

// SaveToken persists the bearer token.
func (s *RedisStore) SaveToken(token string) error {
	return s.set(nameToken, []byte(token))
}

// Token returns the stored bearer token, or "" when absent.
func (s *RedisStore) Token() (string, error) {
	value, err := s.get(nameToken)
	if err != nil {
		return "", err
	}
	return string(value), nil
}

// SaveUser persists the serialized user profile.
func (s *RedisStore) SaveUser(data []byte) error {
	return s.set(nameUser, data)
}

// User returns the stored serialized user, or nil when absent.
func (s *RedisStore) User() ([]byte, error) {
	return s.get(nameUser)
}

// Clear removes the token and the user together.
func (s *RedisStore) Clear() error {
	ctx := context.Background()
	if err := s.client.Del(ctx, s.prefix+nameToken, s.prefix+nameUser).Err(); err != nil {
		return fmt.Errorf("redis: failed to clear credentials: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
