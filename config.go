package cognitojwt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ggoodman/cognito-jwt-go/keys/cache/redis"
	"github.com/ggoodman/cognito-jwt-go/keys/jwks"
	"github.com/ggoodman/cognito-jwt-go/keys/static"
	"github.com/joeshaw/envdecode"
	goredis "github.com/redis/go-redis/v9"
)

// Config is the environment-driven configuration used by NewFromConfig.
// Exactly one key source is used, in order of precedence: OIDCIssuer,
// Region + UserPoolID, JWKSURI, JWKSFile.
type Config struct {
	Region     string `env:"COGNITO_REGION"`
	UserPoolID string `env:"COGNITO_USER_POOL_ID"`
	JWKSURI    string `env:"JWKS_URI"`
	// JWKSFile is a local JWK Set, reloaded when the file changes.
	JWKSFile   string `env:"JWKS_FILE"`
	// OIDCIssuer enables discovery of jwks_uri from the issuer.
	OIDCIssuer string `env:"OIDC_ISSUER"`

	// Issuer is enforced for JWKS_URI sources. With COGNITO_REGION any
	// non-empty value enforces the user pool issuer instead.
	Issuer   string        `env:"TOKEN_ISSUER"`
	Audience string        `env:"TOKEN_AUDIENCE"`
	Leeway   time.Duration `env:"TOKEN_LEEWAY,default=0s"`

	Cache             bool          `env:"JWKS_CACHE,default=true"`
	CacheTTL          time.Duration `env:"JWKS_CACHE_TTL,default=10m"`
	RateLimit         bool          `env:"JWKS_RATE_LIMIT,default=true"`
	RequestsPerMinute int           `env:"JWKS_REQUESTS_PER_MINUTE,default=5"`

	// RedisAddr like "localhost:6379" switches the key cache to Redis.
	RedisAddr      string `env:"REDIS_ADDR"`
	RedisKeyPrefix string `env:"REDIS_KEY_PREFIX,default=jwks:keys:"`
}

// ConfigFromEnv decodes Config from the process environment.
func ConfigFromEnv() (Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return Config{}, fmt.Errorf("decode env: %w", err)
	}
	return cfg, nil
}

// NewFromConfig builds a TokenVerifier from cfg. gen may be nil. ctx bounds
// OIDC discovery and the lifetime of a JWKS_FILE watch.
func NewFromConfig(ctx context.Context, cfg Config, gen UserIDGenerator, logHandler slog.Handler) (*TokenVerifier, error) {
	jc := jwks.Config{
		Cache:             cfg.Cache,
		CacheTTL:          cfg.CacheTTL,
		CacheMaxEntries:   5,
		RateLimit:         cfg.RateLimit,
		RequestsPerMinute: cfg.RequestsPerMinute,
		Timeout:           30 * time.Second,
		LogHandler:        logHandler,
	}

	var store *redis.Store
	if cfg.RedisAddr != "" && cfg.Cache {
		client := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		s, err := redis.New(redis.Config{Client: client, KeyPrefix: cfg.RedisKeyPrefix})
		if err != nil {
			_ = client.Close()
			return nil, err
		}
		store = s
		jc.Store = s
	}

	v, err := newFromConfig(ctx, cfg, &jc, gen, logHandler)
	if err != nil {
		if store != nil {
			_ = store.Close()
		}
		return nil, err
	}
	if store != nil {
		v.closers = append(v.closers, store)
	}
	return v, nil
}

func newFromConfig(ctx context.Context, cfg Config, jc *jwks.Config, gen UserIDGenerator, logHandler slog.Handler) (*TokenVerifier, error) {
	switch {
	case cfg.OIDCIssuer != "":
		return NewDiscoveryTokenVerifier(ctx, cfg.OIDCIssuer, Options{
			JWKS:            jc,
			UserIDGenerator: gen,
			Audience:        cfg.Audience,
			Leeway:          cfg.Leeway,
			LogHandler:      logHandler,
		})
	case cfg.Region != "":
		return NewCognitoTokenVerifier(CognitoOptions{
			Region:          cfg.Region,
			UserPoolID:      cfg.UserPoolID,
			UserIDGenerator: gen,
			EnforceIssuer:   cfg.Issuer != "",
			Audience:        cfg.Audience,
			Leeway:          cfg.Leeway,
			JWKS:            jc,
			LogHandler:      logHandler,
		})
	case cfg.JWKSURI != "":
		return NewTokenVerifier(Options{
			JWKSURI:         cfg.JWKSURI,
			JWKS:            jc,
			UserIDGenerator: gen,
			Audience:        cfg.Audience,
			Issuer:          cfg.Issuer,
			Leeway:          cfg.Leeway,
			LogHandler:      logHandler,
		})
	case cfg.JWKSFile != "":
		r, err := static.WatchFile(ctx, cfg.JWKSFile, logHandler)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
		}
		v, err := NewTokenVerifier(Options{
			Resolver:        r,
			UserIDGenerator: gen,
			Audience:        cfg.Audience,
			Issuer:          cfg.Issuer,
			Leeway:          cfg.Leeway,
			LogHandler:      logHandler,
			debug:           map[string]any{"jwksFile": cfg.JWKSFile},
		})
		if err != nil {
			_ = r.Close()
			return nil, err
		}
		v.closers = append(v.closers, r)
		return v, nil
	default:
		return nil, fmt.Errorf("%w: one of OIDC_ISSUER, COGNITO_REGION, JWKS_URI or JWKS_FILE is required", ErrInvalidArgument)
	}
}
