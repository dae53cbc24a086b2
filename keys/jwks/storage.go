package jwks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MicahParks/jwkset"
	"github.com/ggoodman/cognito-jwt-go/keys/cache"
)

// cacheStorage is the jwkset.Storage a fetch writes into. The fetched set
// is held in memory and every signing key is written through to a
// cache.Store, namespaced by JWKS URL. Keys whose use is not "sig" are
// dropped.
type cacheStorage struct {
	*jwkset.MemoryJWKSet

	store     cache.Store
	namespace string
	ttl       time.Duration
	log       *slog.Logger
}

func newCacheStorage(store cache.Store, namespace string, ttl time.Duration, log *slog.Logger) *cacheStorage {
	return &cacheStorage{
		MemoryJWKSet: jwkset.NewMemoryStorage(),
		store:        store,
		namespace:    namespace,
		ttl:          ttl,
		log:          log,
	}
}

func (s *cacheStorage) KeyRead(ctx context.Context, kid string) (jwkset.JWK, error) {
	jwk, err := s.MemoryJWKSet.KeyRead(ctx, kid)
	if err == nil || !errors.Is(err, jwkset.ErrKeyNotFound) || s.store == nil {
		return jwk, err
	}
	jwk, ok, cerr := readCached(ctx, s.store, s.namespace, kid)
	if cerr != nil {
		return jwkset.JWK{}, cerr
	}
	if !ok {
		return jwkset.JWK{}, err
	}
	return jwk, nil
}

func (s *cacheStorage) KeyWrite(ctx context.Context, jwk jwkset.JWK) error {
	if !signing(jwk) {
		return nil
	}
	if err := s.MemoryJWKSet.KeyWrite(ctx, jwk); err != nil {
		return err
	}
	s.remember(ctx, jwk)
	return nil
}

func (s *cacheStorage) KeyReplaceAll(ctx context.Context, given []jwkset.JWK) error {
	sig := make([]jwkset.JWK, 0, len(given))
	for _, jwk := range given {
		if signing(jwk) {
			sig = append(sig, jwk)
		}
	}
	if err := s.MemoryJWKSet.KeyReplaceAll(ctx, sig); err != nil {
		return err
	}
	for _, jwk := range sig {
		s.remember(ctx, jwk)
	}
	return nil
}

func (s *cacheStorage) KeyDelete(ctx context.Context, kid string) (bool, error) {
	ok, err := s.MemoryJWKSet.KeyDelete(ctx, kid)
	if err != nil || s.store == nil {
		return ok, err
	}
	if err := s.store.Delete(ctx, kid, cache.WithNamespace(s.namespace)); err != nil {
		return ok, fmt.Errorf("jwks: cache delete %q: %w", kid, err)
	}
	return ok, nil
}

// remember writes jwk to the cache store. Failures are logged; the fetched
// set stays usable.
func (s *cacheStorage) remember(ctx context.Context, jwk jwkset.JWK) {
	m := publicMarshal(jwk.Marshal())
	if s.store == nil || m.KID == "" {
		return
	}
	b, err := json.Marshal(m)
	if err != nil {
		return
	}
	opts := []cache.Option{cache.WithNamespace(s.namespace)}
	if s.ttl > 0 {
		opts = append(opts, cache.WithTTL(s.ttl))
	}
	if err := s.store.Set(ctx, m.KID, b, opts...); err != nil {
		s.log.WarnContext(ctx, "jwks cache write failed", slog.String("kid", m.KID), slog.String("err", err.Error()))
	}
}

// readCached loads kid from store. ok is false on a miss or an unreadable
// entry.
func readCached(ctx context.Context, store cache.Store, namespace, kid string) (jwkset.JWK, bool, error) {
	item, err := store.Get(ctx, kid, cache.WithNamespace(namespace))
	if err != nil || item == nil {
		return jwkset.JWK{}, false, err
	}
	jwk, err := jwkset.NewJWKFromRawJSON(item.Data, jwkset.JWKMarshalOptions{}, jwkset.JWKValidateOptions{})
	if err != nil {
		return jwkset.JWK{}, false, fmt.Errorf("jwks: cache entry for %q: %w", kid, err)
	}
	return jwk, true, nil
}

func signing(jwk jwkset.JWK) bool {
	use := jwk.Marshal().USE
	return use == "" || use == jwkset.UseSig
}

// publicMarshal strips private and symmetric key material.
func publicMarshal(m jwkset.JWKMarshal) jwkset.JWKMarshal {
	m.D, m.P, m.Q, m.DP, m.DQ, m.QI, m.K = "", "", "", "", "", "", ""
	m.OTH = nil
	return m
}

var _ jwkset.Storage = (*cacheStorage)(nil)
