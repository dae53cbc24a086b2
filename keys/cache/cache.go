// Package cache defines the store used by key resolvers to keep fetched
// signing keys between verifications.
package cache

import (
	"context"
	"time"
)

// Store holds serialized keys addressed by key id within an optional
// namespace (typically the JWKS URL the key was fetched from).
type Store interface {
	// Get returns nil Item if the key doesn't exist or has expired.
	// Returns error only for legitimate storage system failures.
	Get(ctx context.Context, kid string, opts ...Option) (*Item, error)

	// Set stores data for kid.
	Set(ctx context.Context, kid string, data []byte, opts ...Option) error

	// Delete removes kid. Deleting an absent key is not an error.
	Delete(ctx context.Context, kid string, opts ...Option) error

	// Close releases resources held by the store.
	Close() error
}

// Item is a cached value with metadata.
type Item struct {
	Data      []byte
	CreatedAt time.Time
	ExpiresAt *time.Time // nil = no expiration
}

// IsExpired checks if the item has expired
func (i *Item) IsExpired() bool {
	return i.ExpiresAt != nil && time.Now().After(*i.ExpiresAt)
}

// Option configures store operations
type Option func(*Options)

// Options contains configuration for store operations
type Options struct {
	Namespace string
	TTL       *time.Duration
}

// Apply folds opts into an Options value.
func Apply(opts ...Option) *Options {
	o := &Options{}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithNamespace scopes the operation, e.g. to a single JWKS URL.
func WithNamespace(ns string) Option {
	return func(o *Options) { o.Namespace = ns }
}

// WithTTL sets a time-to-live for stored data
func WithTTL(ttl time.Duration) Option {
	return func(o *Options) { o.TTL = &ttl }
}
