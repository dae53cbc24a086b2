package cognitojwt

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/ggoodman/cognito-jwt-go/autherr"
	"github.com/ggoodman/cognito-jwt-go/keys/keystest"
)

const (
	testRegion = "ap-southeast-2"
	testPool   = "ap-southeast-2_AbCdEf"
)

func TestCognitoURLs(t *testing.T) {
	if got, want := CognitoIssuer(testRegion, testPool), "https://cognito-idp.ap-southeast-2.amazonaws.com/ap-southeast-2_AbCdEf"; got != want {
		t.Fatalf("issuer: %q", got)
	}
	if got, want := CognitoJWKSURI(testRegion, testPool), "https://cognito-idp.ap-southeast-2.amazonaws.com/ap-southeast-2_AbCdEf/.well-known/jwks.json"; got != want {
		t.Fatalf("jwks: %q", got)
	}
}

func TestNewCognitoTokenVerifier_MissingArguments(t *testing.T) {
	_, err := NewCognitoTokenVerifier(CognitoOptions{UserPoolID: testPool})
	if !errors.Is(err, ErrInvalidArgument) || !strings.Contains(err.Error(), "Missing/undefined issuer argument") {
		t.Fatalf("missing region: %v", err)
	}
	if _, err := NewCognitoTokenVerifier(CognitoOptions{Region: testRegion}); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("missing pool: %v", err)
	}
}

func newCognitoVerifier(t *testing.T, srv *keystest.Server, enforce bool) (*TokenVerifier, *rewriteTransport) {
	t.Helper()
	cfg, rt := cognitoJWKS(t, srv)
	v, err := NewCognitoTokenVerifier(CognitoOptions{
		Region:        testRegion,
		UserPoolID:    testPool,
		EnforceIssuer: enforce,
		JWKS:          cfg,
		Now:           clock,
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	t.Cleanup(func() { _ = v.Close() })
	return v, rt
}

func TestCognitoVerifier_FetchesPoolJWKS(t *testing.T) {
	k := keystest.NewRSAKey(t, "k1")
	srv := keystest.NewServer(t, k)
	v, rt := newCognitoVerifier(t, srv, false)

	if _, err := v.Verify(context.Background(), k.Sign(t, testClaims())); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if len(rt.seen) != 1 || rt.seen[0] != CognitoJWKSURI(testRegion, testPool) {
		t.Fatalf("requested: %v", rt.seen)
	}
}

func TestCognitoVerifier_EnforceIssuer(t *testing.T) {
	k := keystest.NewRSAKey(t, "k1")
	srv := keystest.NewServer(t, k)
	v, _ := newCognitoVerifier(t, srv, true)

	good := testClaims()
	good["iss"] = CognitoIssuer(testRegion, testPool)
	if _, err := v.Verify(context.Background(), k.Sign(t, good)); err != nil {
		t.Fatalf("verify: %v", err)
	}

	bad := testClaims()
	bad["iss"] = "https://elsewhere.example"
	_, err := v.Verify(context.Background(), k.Sign(t, bad))
	want := &autherr.Error{Kind: autherr.KindTokenUnsuitable, Message: "jwt issuer invalid. expected: " + CognitoIssuer(testRegion, testPool)}
	if !errors.Is(err, want) {
		t.Fatalf("want %v, got %v", want, err)
	}
}

func TestCognitoVerifier_IssuerNotEnforcedByDefault(t *testing.T) {
	k := keystest.NewRSAKey(t, "k1")
	srv := keystest.NewServer(t, k)
	v, _ := newCognitoVerifier(t, srv, false)

	c := testClaims()
	c["iss"] = "https://elsewhere.example"
	if _, err := v.Verify(context.Background(), k.Sign(t, c)); err != nil {
		t.Fatalf("verify: %v", err)
	}
}

func TestCognitoVerifier_ProviderDebugContext(t *testing.T) {
	k := keystest.NewRSAKey(t, "k1")
	srv := keystest.NewServer(t, k)
	srv.SetStatus(502)
	v, _ := newCognitoVerifier(t, srv, false)

	_, err := v.Verify(context.Background(), k.Sign(t, testClaims()))
	aerr, ok := autherr.As(err)
	if !ok || aerr.Kind != autherr.KindAuthProvider {
		t.Fatalf("want AuthProvider, got %v", err)
	}
	if aerr.Debug["region"] != testRegion || aerr.Debug["userPoolId"] != testPool {
		t.Fatalf("debug: %v", aerr.Debug)
	}
	if aerr.PublicMessage() == aerr.Message {
		t.Fatalf("public message must be redacted")
	}
}
