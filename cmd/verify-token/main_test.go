package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	cognitojwt "github.com/ggoodman/cognito-jwt-go"
	"github.com/ggoodman/cognito-jwt-go/autherr"
	"github.com/ggoodman/cognito-jwt-go/keys/keystest"
	"github.com/golang-jwt/jwt/v5"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"COGNITO_REGION", "COGNITO_USER_POOL_ID", "JWKS_URI", "JWKS_FILE", "OIDC_ISSUER",
		"TOKEN_ISSUER", "TOKEN_AUDIENCE", "TOKEN_LEEWAY", "REDIS_ADDR",
	} {
		t.Setenv(name, "")
	}
}

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestSchema(t *testing.T) {
	out, err := execute(t, "", "--schema")
	if err != nil {
		t.Fatalf("schema: %v", err)
	}
	var s map[string]any
	if err := json.Unmarshal([]byte(out), &s); err != nil {
		t.Fatalf("decode: %v\n%s", err, out)
	}
	props, _ := s["properties"].(map[string]any)
	for _, field := range []string{"jwt", "claims", "clientId", "ttl", "scope", "ips"} {
		if _, ok := props[field]; !ok {
			t.Fatalf("schema missing %q", field)
		}
	}
}

func TestVerify(t *testing.T) {
	clearEnv(t)
	k := keystest.NewRSAKey(t, "k1")
	srv := keystest.NewServer(t, k)
	t.Setenv("JWKS_URI", srv.JWKSURL())

	raw := k.Sign(t, jwt.MapClaims{
		"sub":       "cli-subject",
		"token_use": "access",
		"scope":     "read write",
		"iat":       time.Now().Unix(),
		"exp":       time.Now().Add(time.Hour).Unix(),
	})

	out, err := execute(t, raw+"\n", "--ip", "10.0.0.1")
	if err != nil {
		t.Fatalf("verify: %v\n%s", err, out)
	}
	var tok cognitojwt.AuthToken
	if err := json.Unmarshal([]byte(out), &tok); err != nil {
		t.Fatalf("decode: %v\n%s", err, out)
	}
	if tok.Subject() != "cli-subject" || len(tok.Scope) != 2 || len(tok.IPs) != 1 {
		t.Fatalf("token: %+v", tok)
	}
}

func TestVerify_Rejected(t *testing.T) {
	clearEnv(t)
	k := keystest.NewRSAKey(t, "k1")
	srv := keystest.NewServer(t, k)
	t.Setenv("JWKS_URI", srv.JWKSURL())

	out, err := execute(t, "", "not-a-token")
	if !errors.Is(err, autherr.ErrTokenInvalid) {
		t.Fatalf("want TokenInvalid, got %v", err)
	}
	if !strings.Contains(out, `"TokenInvalidError"`) {
		t.Fatalf("output: %s", out)
	}
}

func TestVerify_NoConfiguration(t *testing.T) {
	clearEnv(t)
	if _, err := execute(t, "", "a.b.c"); !errors.Is(err, cognitojwt.ErrInvalidArgument) {
		t.Fatalf("want ErrInvalidArgument, got %v", err)
	}
}
