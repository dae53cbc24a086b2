// Package jwks resolves signing keys from a remote JSON Web Key Set.
//
// Documents are fetched and parsed with jwkset. The Resolver caches every
// key it fetches (per kid, in a pluggable cache.Store), limits how often
// the remote endpoint is contacted, and coalesces concurrent fetches into
// a single upstream request.
package jwks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/MicahParks/jwkset"
	"github.com/ggoodman/cognito-jwt-go/keys"
	"github.com/ggoodman/cognito-jwt-go/keys/cache"
	"github.com/ggoodman/cognito-jwt-go/keys/cache/memory"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

// Config controls fetching, caching and rate limiting.
type Config struct {
	// URL of the JWK Set document.
	URL string

	// Cache enables the per-kid key cache.
	Cache bool
	// CacheTTL bounds how long a fetched key is reused.
	CacheTTL time.Duration
	// CacheMaxEntries sizes the default in-memory store. Ignored when Store
	// is set.
	CacheMaxEntries int
	// Store overrides the default in-memory store, e.g. with Redis.
	Store cache.Store

	// RateLimit enables the upstream request limiter.
	RateLimit bool
	// RequestsPerMinute is the sustained upstream request rate, also used
	// as burst.
	RequestsPerMinute int

	HTTPClient *http.Client
	// Timeout bounds a single upstream fetch, including any wait for the
	// rate limiter.
	Timeout time.Duration

	// LogHandler is an optional slog.Handler. If nil, logging is discarded.
	LogHandler slog.Handler
}

// DefaultConfig returns a Config with caching and rate limiting enabled.
func DefaultConfig(jwksURL string) Config {
	return Config{
		URL:               jwksURL,
		Cache:             true,
		CacheTTL:          10 * time.Minute,
		CacheMaxEntries:   5,
		RateLimit:         true,
		RequestsPerMinute: 5,
		Timeout:           30 * time.Second,
	}
}

// Resolver implements keys.Resolver over a remote JWKS endpoint.
type Resolver struct {
	url     string
	ttl     time.Duration
	timeout time.Duration
	client  *http.Client
	store   cache.Store
	owned   bool
	limiter *rate.Limiter
	group   singleflight.Group
	log     *slog.Logger

	// ctx ends in-flight fetches on Close.
	ctx    context.Context
	cancel context.CancelFunc
}

// New validates cfg and builds a Resolver. No request is made until the
// first Resolve.
func New(cfg Config) (*Resolver, error) {
	if cfg.URL == "" {
		return nil, errors.New("jwks: url is required")
	}
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("jwks: invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("jwks: unsupported url scheme %q", u.Scheme)
	}

	logHandler := cfg.LogHandler
	if logHandler == nil {
		logHandler = slog.DiscardHandler
	}

	r := &Resolver{
		url:     cfg.URL,
		ttl:     cfg.CacheTTL,
		timeout: cfg.Timeout,
		client:  cfg.HTTPClient,
		log:     slog.New(logHandler).With(slog.String("jwks_url", cfg.URL)),
	}
	if r.client == nil {
		r.client = http.DefaultClient
	}
	if r.timeout <= 0 {
		r.timeout = 30 * time.Second
	}

	if cfg.Cache {
		r.store = cfg.Store
		if r.store == nil {
			r.store = memory.New(cfg.CacheMaxEntries, cfg.CacheTTL)
			r.owned = true
		}
	}

	if cfg.RateLimit {
		rpm := cfg.RequestsPerMinute
		if rpm <= 0 {
			rpm = 5
		}
		r.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), rpm)
	}

	r.ctx, r.cancel = context.WithCancel(context.Background())
	return r, nil
}

// Resolve returns the published key identified by kid.
func (r *Resolver) Resolve(ctx context.Context, kid string) (*keys.SigningKey, error) {
	if kid == "" {
		return nil, keys.NotFound(kid)
	}

	if r.store != nil {
		jwk, ok, err := readCached(ctx, r.store, r.url, kid)
		if err != nil {
			r.log.WarnContext(ctx, "jwks cache read failed", slog.String("kid", kid), slog.String("err", err.Error()))
		}
		if ok {
			return signingKey(jwk), nil
		}
	}

	var res singleflight.Result
	select {
	case res = <-r.group.DoChan(r.url, func() (any, error) { return r.fetch(ctx) }):
	case <-ctx.Done():
		return nil, fmt.Errorf("jwks: waiting for fetch: %w", context.Cause(ctx))
	}
	if res.Err != nil {
		return nil, res.Err
	}
	if res.Shared {
		r.log.DebugContext(ctx, "jwks fetch shared", slog.String("kid", kid))
	}

	jwk, err := res.Val.(jwkset.Storage).KeyRead(ctx, kid)
	if err != nil {
		if errors.Is(err, jwkset.ErrKeyNotFound) {
			return nil, keys.NotFound(kid)
		}
		return nil, fmt.Errorf("jwks: read key %q: %w", kid, err)
	}
	return signingKey(jwk), nil
}

// Close cancels in-flight fetches and releases the default store.
// Caller-provided stores are left open.
func (r *Resolver) Close() error {
	r.cancel()
	if r.owned && r.store != nil {
		return r.store.Close()
	}
	return nil
}

// fetch downloads the document into a fresh cacheStorage. Callers share
// the result, so the fetch keeps the values of ctx but not its deadline or
// cancellation.
func (r *Resolver) fetch(ctx context.Context) (jwkset.Storage, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()
	stop := context.AfterFunc(r.ctx, cancel)
	defer stop()

	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("jwks: rate limited: %w", err)
		}
	}

	set := newCacheStorage(r.store, r.url, r.ttl, r.log)
	_, err := jwkset.NewStorageFromHTTP(r.url, jwkset.HTTPClientStorageOptions{
		Client:      r.client,
		Ctx:         ctx,
		HTTPTimeout: r.timeout,
		Storage:     set,
	})
	if err != nil {
		return nil, fmt.Errorf("jwks: fetch: %w", err)
	}

	if all, err := set.MemoryJWKSet.KeyReadAll(ctx); err == nil {
		r.log.DebugContext(ctx, "jwks fetched", slog.Int("keys", len(all)))
	}
	return set, nil
}

func signingKey(k jwkset.JWK) *keys.SigningKey {
	m := k.Marshal()
	return &keys.SigningKey{ID: m.KID, Algorithm: string(m.ALG), PublicKey: keys.PublicOnly(k.Key())}
}

var _ keys.Resolver = (*Resolver)(nil)
