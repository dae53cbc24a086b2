package cognitojwt

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ggoodman/cognito-jwt-go/autherr"
	"github.com/ggoodman/cognito-jwt-go/keys/keystest"
)

// newIssuer serves an OpenID discovery document whose jwks_uri points at
// jwksURL.
func newIssuer(t *testing.T, jwksURL string) *httptest.Server {
	t.Helper()
	var issuer string
	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"issuer":                                issuer,
			"jwks_uri":                              jwksURL,
			"authorization_endpoint":                issuer + "/oauth2/authorize",
			"token_endpoint":                        issuer + "/oauth2/token",
			"id_token_signing_alg_values_supported": []string{"RS256"},
		})
	})
	srv := httptest.NewServer(mux)
	issuer = srv.URL
	t.Cleanup(srv.Close)
	return srv
}

func TestDiscoveryVerifier(t *testing.T) {
	k := keystest.NewRSAKey(t, "k1")
	keySrv := keystest.NewServer(t, k)
	iss := newIssuer(t, keySrv.JWKSURL())

	v, err := NewDiscoveryTokenVerifier(context.Background(), iss.URL, Options{Now: clock})
	if err != nil {
		t.Fatalf("discovery: %v", err)
	}
	defer v.Close()

	good := testClaims()
	good["iss"] = iss.URL
	if _, err := v.Verify(context.Background(), k.Sign(t, good)); err != nil {
		t.Fatalf("verify: %v", err)
	}

	bad := testClaims()
	bad["iss"] = "https://elsewhere.example"
	if _, err := v.Verify(context.Background(), k.Sign(t, bad)); !errors.Is(err, autherr.ErrTokenUnsuitable) {
		t.Fatalf("foreign issuer should be unsuitable, got %v", err)
	}
}

func TestDiscoveryVerifier_Failures(t *testing.T) {
	if _, err := NewDiscoveryTokenVerifier(context.Background(), "", Options{}); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("empty issuer: %v", err)
	}

	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()
	if _, err := NewDiscoveryTokenVerifier(context.Background(), srv.URL, Options{}); err == nil {
		t.Fatal("want discovery error")
	}

	noJWKS := newIssuer(t, "")
	if _, err := NewDiscoveryTokenVerifier(context.Background(), noJWKS.URL, Options{}); err == nil {
		t.Fatal("want error for missing jwks_uri")
	}
}
