// Package memory provides an in-process cache.Store backed by
// github.com/hashicorp/golang-lru/v2 with TTL support.
package memory

import (
	"context"
	"time"

	"github.com/ggoodman/cognito-jwt-go/keys/cache"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Store implements cache.Store in memory. It is safe for concurrent use.
type Store struct {
	lru *expirable.LRU[string, *cache.Item]
}

// New creates a store holding at most maxItems entries. defaultTTL bounds
// the lifetime of every entry; per-call TTLs can only shorten it. Zero
// disables the default bound.
func New(maxItems int, defaultTTL time.Duration) *Store {
	if maxItems <= 0 {
		maxItems = 5
	}
	return &Store{lru: expirable.NewLRU[string, *cache.Item](maxItems, nil, defaultTTL)}
}

// Get retrieves data for kid within the given namespace
func (s *Store) Get(ctx context.Context, kid string, opts ...cache.Option) (*cache.Item, error) {
	key := buildKey(cache.Apply(opts...).Namespace, kid)
	item, ok := s.lru.Get(key)
	if !ok {
		return nil, nil
	}
	if item.IsExpired() {
		s.lru.Remove(key)
		return nil, nil
	}
	return item, nil
}

// Set stores a copy of data for kid
func (s *Store) Set(ctx context.Context, kid string, data []byte, opts ...cache.Option) error {
	options := cache.Apply(opts...)

	now := time.Now()
	item := &cache.Item{
		Data:      append([]byte(nil), data...),
		CreatedAt: now,
	}
	if options.TTL != nil {
		expiresAt := now.Add(*options.TTL)
		item.ExpiresAt = &expiresAt
	}

	s.lru.Add(buildKey(options.Namespace, kid), item)
	return nil
}

// Delete removes kid from the given namespace
func (s *Store) Delete(ctx context.Context, kid string, opts ...cache.Option) error {
	s.lru.Remove(buildKey(cache.Apply(opts...).Namespace, kid))
	return nil
}

// Len reports the number of live entries.
func (s *Store) Len() int { return s.lru.Len() }

// Close drops all entries.
func (s *Store) Close() error {
	s.lru.Purge()
	return nil
}

func buildKey(namespace, kid string) string {
	if namespace == "" {
		return "global:kid:" + kid
	}
	return namespace + ":kid:" + kid
}

var _ cache.Store = (*Store)(nil)
