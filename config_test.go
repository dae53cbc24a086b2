package cognitojwt

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ggoodman/cognito-jwt-go/keys/keystest"
)

var configEnv = []string{
	"COGNITO_REGION", "COGNITO_USER_POOL_ID", "JWKS_URI", "JWKS_FILE", "OIDC_ISSUER",
	"TOKEN_ISSUER", "TOKEN_AUDIENCE", "TOKEN_LEEWAY", "JWKS_CACHE",
	"JWKS_CACHE_TTL", "JWKS_RATE_LIMIT", "JWKS_REQUESTS_PER_MINUTE",
	"REDIS_ADDR", "REDIS_KEY_PREFIX",
}

func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, name := range configEnv {
		t.Setenv(name, "")
	}
}

func TestConfigFromEnv_Defaults(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("JWKS_URI", "https://issuer.example/jwks.json")

	cfg, err := ConfigFromEnv()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if cfg.JWKSURI != "https://issuer.example/jwks.json" {
		t.Fatalf("jwks uri: %q", cfg.JWKSURI)
	}
	if !cfg.Cache || !cfg.RateLimit || cfg.RequestsPerMinute != 5 || cfg.CacheTTL != 10*time.Minute {
		t.Fatalf("defaults: %+v", cfg)
	}
	if cfg.RedisKeyPrefix != "jwks:keys:" {
		t.Fatalf("prefix: %q", cfg.RedisKeyPrefix)
	}
}

func TestConfigFromEnv_Overrides(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("COGNITO_REGION", "us-east-1")
	t.Setenv("COGNITO_USER_POOL_ID", "us-east-1_pool")
	t.Setenv("TOKEN_LEEWAY", "30s")
	t.Setenv("JWKS_CACHE", "false")
	t.Setenv("JWKS_REQUESTS_PER_MINUTE", "10")

	cfg, err := ConfigFromEnv()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if cfg.Region != "us-east-1" || cfg.UserPoolID != "us-east-1_pool" {
		t.Fatalf("pool: %+v", cfg)
	}
	if cfg.Leeway != 30*time.Second || cfg.Cache || cfg.RequestsPerMinute != 10 {
		t.Fatalf("overrides: %+v", cfg)
	}
}

func TestNewFromConfig(t *testing.T) {
	k := keystest.NewRSAKey(t, "k1")
	srv := keystest.NewServer(t, k)

	v, err := NewFromConfig(context.Background(), Config{
		JWKSURI:           srv.JWKSURL(),
		Cache:             true,
		CacheTTL:          time.Minute,
		RateLimit:         true,
		RequestsPerMinute: 5,
	}, nil, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer v.Close()

	c := testClaims()
	c["iat"] = time.Now().Unix()
	c["exp"] = time.Now().Add(time.Hour).Unix()
	if _, err := v.Verify(context.Background(), k.Sign(t, c)); err != nil {
		t.Fatalf("verify: %v", err)
	}
}

func TestNewFromConfig_Sources(t *testing.T) {
	v, err := NewFromConfig(context.Background(), Config{Region: testRegion, UserPoolID: testPool, Cache: true}, nil, nil)
	if err != nil {
		t.Fatalf("cognito: %v", err)
	}
	_ = v.Close()

	if _, err := NewFromConfig(context.Background(), Config{}, nil, nil); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("want ErrInvalidArgument, got %v", err)
	}
}

func TestNewFromConfig_Redis(t *testing.T) {
	mini, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mini.Close)

	k := keystest.NewRSAKey(t, "k1")
	srv := keystest.NewServer(t, k)

	v, err := NewFromConfig(context.Background(), Config{
		JWKSURI:        srv.JWKSURL(),
		Cache:          true,
		CacheTTL:       time.Minute,
		RedisAddr:      mini.Addr(),
		RedisKeyPrefix: "test:",
	}, nil, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer v.Close()

	c := testClaims()
	c["iat"] = time.Now().Unix()
	c["exp"] = time.Now().Add(time.Hour).Unix()
	if _, err := v.Verify(context.Background(), k.Sign(t, c)); err != nil {
		t.Fatalf("verify: %v", err)
	}

	keys := mini.Keys()
	if len(keys) != 1 || !strings.HasPrefix(keys[0], "test:") || !strings.HasSuffix(keys[0], ":k1") {
		t.Fatalf("redis keys: %v", keys)
	}
}

func TestNewFromConfig_RedisUnavailable(t *testing.T) {
	_, err := NewFromConfig(context.Background(), Config{
		JWKSURI:   "https://issuer.example/jwks.json",
		Cache:     true,
		RedisAddr: "127.0.0.1:1",
	}, nil, nil)
	if err == nil {
		t.Fatal("want redis ping error")
	}
}

func TestNewFromConfig_JWKSFile(t *testing.T) {
	k := keystest.NewRSAKey(t, "k1")
	path := filepath.Join(t.TempDir(), "jwks.json")
	if err := os.WriteFile(path, keystest.JWKS(t, k), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	v, err := NewFromConfig(context.Background(), Config{JWKSFile: path}, nil, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer v.Close()

	c := testClaims()
	c["iat"] = time.Now().Unix()
	c["exp"] = time.Now().Add(time.Hour).Unix()
	if _, err := v.Verify(context.Background(), k.Sign(t, c)); err != nil {
		t.Fatalf("verify: %v", err)
	}

	if _, err := NewFromConfig(context.Background(), Config{JWKSFile: filepath.Join(t.TempDir(), "missing.json")}, nil, nil); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("missing file: %v", err)
	}
}
