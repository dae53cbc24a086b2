// Package keys defines the contract between the token verifier and whatever
// supplies signing keys.
//
// A Resolver maps a key identifier (the JWT "kid" header) to a public key.
// Implementations own caching, rate limiting and transport; the verifier only
// borrows the returned key for a single verification. Implementations must be
// safe for concurrent use.
//
// Two failure classes are distinguished. Errors wrapping ErrKeyNotFound mean
// the identifier does not name any currently published key; every other
// error is treated as a provider failure.
package keys

import (
	"context"
	"crypto"
	"errors"
	"fmt"
)

// ErrKeyNotFound indicates that no published key matches the requested kid.
var ErrKeyNotFound = errors.New("signing key not found")

// SigningKey is a resolved verification key.
type SigningKey struct {
	ID        string
	Algorithm string
	PublicKey crypto.PublicKey
}

// Resolver resolves signing keys by key identifier.
type Resolver interface {
	Resolve(ctx context.Context, kid string) (*SigningKey, error)
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(ctx context.Context, kid string) (*SigningKey, error)

func (f ResolverFunc) Resolve(ctx context.Context, kid string) (*SigningKey, error) {
	return f(ctx, kid)
}

// NotFound returns an error wrapping ErrKeyNotFound for kid.
func NotFound(kid string) error {
	return fmt.Errorf("%w: unable to find a signing key that matches %q", ErrKeyNotFound, kid)
}

// PublicOnly strips private material from key if present.
func PublicOnly(key any) crypto.PublicKey {
	if pk, ok := key.(interface{ Public() crypto.PublicKey }); ok {
		return pk.Public()
	}
	return key
}
