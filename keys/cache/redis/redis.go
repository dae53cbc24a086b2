// Package redis provides a Redis-backed cache.Store so that several
// verifier processes can share fetched signing keys.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ggoodman/cognito-jwt-go/keys/cache"
	"github.com/redis/go-redis/v9"
)

// Config contains configuration options for the Redis store
type Config struct {
	// Client is the Redis client instance
	Client *redis.Client

	// KeyPrefix is the prefix for all Redis keys
	// Default: "jwks:keys:"
	KeyPrefix string
}

// Store implements cache.Store using Redis
type Store struct {
	client    *redis.Client
	keyPrefix string
}

// storedItem represents the structure stored in Redis
type storedItem struct {
	Data      []byte     `json:"data"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// New creates a new Redis-backed store.
func New(config Config) (*Store, error) {
	if config.Client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = "jwks:keys:"
	}
	return &Store{
		client:    config.Client,
		keyPrefix: config.KeyPrefix,
	}, nil
}

// Get retrieves data for kid within the given namespace
func (s *Store) Get(ctx context.Context, kid string, opts ...cache.Option) (*cache.Item, error) {
	redisKey := s.buildKey(cache.Apply(opts...).Namespace, kid)

	raw, err := s.client.Get(ctx, redisKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get key %s: %w", redisKey, err)
	}

	var item storedItem
	if err := json.Unmarshal(raw, &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal stored data: %w", err)
	}

	out := &cache.Item{
		Data:      item.Data,
		CreatedAt: item.CreatedAt,
		ExpiresAt: item.ExpiresAt,
	}
	if out.IsExpired() {
		s.client.Del(ctx, redisKey)
		return nil, nil
	}
	return out, nil
}

// Set stores data for kid within the given namespace
func (s *Store) Set(ctx context.Context, kid string, data []byte, opts ...cache.Option) error {
	options := cache.Apply(opts...)
	redisKey := s.buildKey(options.Namespace, kid)

	now := time.Now()
	item := storedItem{
		Data:      data,
		CreatedAt: now,
	}

	var redisTTL time.Duration
	if options.TTL != nil {
		expiresAt := now.Add(*options.TTL)
		item.ExpiresAt = &expiresAt
		redisTTL = *options.TTL
	}

	itemData, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to marshal cache item: %w", err)
	}

	if err := s.client.Set(ctx, redisKey, itemData, redisTTL).Err(); err != nil {
		return fmt.Errorf("failed to set key %s: %w", redisKey, err)
	}
	return nil
}

// Delete removes kid from the given namespace
func (s *Store) Delete(ctx context.Context, kid string, opts ...cache.Option) error {
	redisKey := s.buildKey(cache.Apply(opts...).Namespace, kid)
	if err := s.client.Del(ctx, redisKey).Err(); err != nil {
		return fmt.Errorf("failed to delete key %s: %w", redisKey, err)
	}
	return nil
}

// Close closes the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) buildKey(namespace, kid string) string {
	if namespace == "" {
		return s.keyPrefix + "global:" + kid
	}
	return s.keyPrefix + namespace + ":" + kid
}

// Compile-time interface check
var _ cache.Store = (*Store)(nil)
