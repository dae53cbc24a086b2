package cognitojwt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/ggoodman/cognito-jwt-go/autherr"
	"github.com/ggoodman/cognito-jwt-go/internal/jwtauth"
	"github.com/ggoodman/cognito-jwt-go/internal/logctx"
	"github.com/ggoodman/cognito-jwt-go/keys"
	"github.com/ggoodman/cognito-jwt-go/keys/jwks"
)

// ErrInvalidArgument is wrapped by constructor errors caused by bad options.
var ErrInvalidArgument = errors.New("cognitojwt: invalid argument")

// ErrDisallowedAlgorithm matches verification failures for tokens signed
// with an algorithm other than RS256. Such errors are not *autherr.Error.
var ErrDisallowedAlgorithm = jwtauth.ErrDisallowedAlgorithm

// Options configures NewTokenVerifier.
type Options struct {
	// JWKSURI is the JWK Set endpoint. Required unless Resolver is set.
	JWKSURI string
	// Resolver overrides the JWKS resolver built from JWKSURI. The verifier
	// does not close a caller-supplied Resolver.
	Resolver keys.Resolver
	// JWKS tunes the resolver built from JWKSURI. Nil means
	// jwks.DefaultConfig(JWKSURI). The URL field is always JWKSURI.
	JWKS *jwks.Config

	UserIDGenerator UserIDGenerator

	// Optional standard-claim expectations. Empty values are not enforced.
	Audience string
	Issuer   string
	Subject  string
	JWTID    string
	// Leeway is the clock skew tolerated for exp and nbf.
	Leeway time.Duration

	// LogHandler is an optional slog.Handler. If nil, logging is discarded.
	LogHandler slog.Handler
	// Now overrides the clock used for temporal claims. Nil means time.Now.
	Now func() time.Time

	// debug is attached to provider failures; set by the specialised
	// constructors.
	debug map[string]any
}

// VerifyOption adjusts a single Verify call.
type VerifyOption func(*verifyOptions)

type verifyOptions struct {
	ips []string
}

// WithIPs records the request addresses on the resulting AuthToken.
func WithIPs(ips ...string) VerifyOption {
	return func(o *verifyOptions) { o.ips = append(o.ips, ips...) }
}

// VerifyFunc is the shape of TokenVerifier.Verify, accepted by integrations
// such as the bearer middleware.
type VerifyFunc func(ctx context.Context, jwt string, opts ...VerifyOption) (*AuthToken, error)

// TokenVerifier runs the verification pipeline. It is safe for concurrent
// use; the only shared state is the key resolver's cache.
type TokenVerifier struct {
	resolver keys.Resolver
	closers  []io.Closer
	verifier *jwtauth.Verifier
	userID   UserIDGenerator
	now      func() time.Time
	debug    map[string]any
	log      *slog.Logger
}

// NewTokenVerifier builds a TokenVerifier that resolves keys from a JWKS
// endpoint (or opts.Resolver).
func NewTokenVerifier(opts Options) (*TokenVerifier, error) {
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	v := &TokenVerifier{
		resolver: opts.Resolver,
		userID:   opts.UserIDGenerator,
		now:      now,
		debug:    opts.debug,
		log:      logctx.New(opts.LogHandler),
		verifier: jwtauth.NewVerifier(jwtauth.Config{
			Expect: jwtauth.Expectations{
				Audience: opts.Audience,
				Issuer:   opts.Issuer,
				Subject:  opts.Subject,
				JWTID:    opts.JWTID,
			},
			Leeway: opts.Leeway,
			Now:    now,
		}),
	}

	if v.resolver == nil {
		if opts.JWKSURI == "" {
			return nil, fmt.Errorf("%w: jwks uri is required", ErrInvalidArgument)
		}
		cfg := jwks.DefaultConfig(opts.JWKSURI)
		if opts.JWKS != nil {
			cfg = *opts.JWKS
			cfg.URL = opts.JWKSURI
		}
		if cfg.LogHandler == nil {
			cfg.LogHandler = opts.LogHandler
		}
		r, err := jwks.New(cfg)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
		}
		v.resolver = r
		v.closers = append(v.closers, r)
	}
	if v.debug == nil && opts.JWKSURI != "" {
		v.debug = map[string]any{"jwksUri": opts.JWKSURI}
	}

	return v, nil
}

// Func returns v.Verify as a VerifyFunc.
func (v *TokenVerifier) Func() VerifyFunc { return v.Verify }

// Verify decodes, authenticates and validates jwt, returning the resulting
// AuthToken. Failures are *autherr.Error values, except subject mismatches,
// disallowed algorithms and errors returned by the UserIDGenerator.
func (v *TokenVerifier) Verify(ctx context.Context, jwt string, opts ...VerifyOption) (*AuthToken, error) {
	var vo verifyOptions
	for _, o := range opts {
		o(&vo)
	}

	env, err := jwtauth.Decode(jwt)
	if err != nil {
		return nil, v.reject(ctx, err)
	}

	td := &logctx.TokenData{KeyID: env.Header.KeyID}
	ctx = logctx.WithTokenData(ctx, td)

	key, err := v.resolveKey(ctx, env.Header.KeyID)
	if err != nil {
		return nil, v.reject(ctx, err)
	}

	claims, err := v.verifier.Verify(jwt, key)
	if err != nil {
		return nil, v.reject(ctx, err)
	}
	td.Subject, _ = claims["sub"].(string)

	if err := jwtauth.CheckPolicy(claims); err != nil {
		return nil, v.reject(ctx, err)
	}

	tok, err := buildAuthToken(ctx, jwt, claims, vo.ips, v.userID, v.now)
	if err != nil {
		return nil, v.reject(ctx, err)
	}

	v.log.DebugContext(ctx, "token verified", slog.Int64("ttl", tok.TTL))
	return tok, nil
}

func (v *TokenVerifier) resolveKey(ctx context.Context, kid string) (*keys.SigningKey, error) {
	key, err := v.resolver.Resolve(ctx, kid)
	if err == nil {
		return key, nil
	}
	if errors.Is(err, keys.ErrKeyNotFound) {
		return nil, autherr.TokenInvalid(err.Error(), err).
			WithDebug(map[string]any{"kid": kid})
	}
	return nil, autherr.AuthProvider("Error handling JWT signing key", err).
		WithDebug(v.debug).
		WithDebug(map[string]any{"kid": kid})
}

func (v *TokenVerifier) reject(ctx context.Context, err error) error {
	if aerr, ok := autherr.As(err); ok && aerr.Kind == autherr.KindAuthProvider {
		v.log.WarnContext(ctx, "token rejected", slog.Any("err", aerr))
	} else {
		v.log.DebugContext(ctx, "token rejected", slog.Any("err", err))
	}
	return err
}

// Close releases the resolver and any cache client built by the verifier.
func (v *TokenVerifier) Close() error {
	var errs []error
	for _, c := range v.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
