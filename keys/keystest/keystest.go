// Package keystest provides helpers for tests that need signing keys, JWK
// Sets, signed tokens and a local JWKS endpoint.
package keystest

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"
)

// JWKSPath is the path served by Server, matching the Cognito layout.
const JWKSPath = "/.well-known/jwks.json"

// Key is an RSA key pair with a key id.
type Key struct {
	ID      string
	Private *rsa.PrivateKey
}

// NewRSAKey generates a 2048-bit RSA key.
func NewRSAKey(t testing.TB, kid string) *Key {
	t.Helper()
	pk, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("gen key: %v", err)
	}
	return &Key{ID: kid, Private: pk}
}

// JWK returns the public JWK for the key.
func (k *Key) JWK() jose.JSONWebKey {
	return jose.JSONWebKey{Key: &k.Private.PublicKey, KeyID: k.ID, Algorithm: "RS256", Use: "sig"}
}

// JWKS marshals a JWK Set containing the public halves of keys.
func JWKS(t testing.TB, keys ...*Key) []byte {
	t.Helper()
	set := jose.JSONWebKeySet{}
	for _, k := range keys {
		set.Keys = append(set.Keys, k.JWK())
	}
	b, err := json.Marshal(set)
	if err != nil {
		t.Fatalf("marshal jwks: %v", err)
	}
	return b
}

// Sign signs claims with RS256 and sets the kid header.
func (k *Key) Sign(t testing.TB, claims jwt.MapClaims) string {
	t.Helper()
	return SignWith(t, jwt.SigningMethodRS256, k.Private, map[string]any{"kid": k.ID}, claims)
}

// SignWith signs claims with an arbitrary method and header overrides. A nil
// header value deletes that header.
func SignWith(t testing.TB, method jwt.SigningMethod, key any, header map[string]any, claims jwt.MapClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(method, claims)
	for h, v := range header {
		if v == nil {
			delete(tok.Header, h)
			continue
		}
		tok.Header[h] = v
	}
	s, err := tok.SignedString(key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

// Server is an httptest JWKS endpoint that counts requests.
type Server struct {
	*httptest.Server

	hits atomic.Int64

	mu      sync.Mutex
	body    []byte
	status  int
	started chan struct{}
	release chan struct{}
}

// NewServer starts a JWKS endpoint publishing keys. It is closed on test
// cleanup.
func NewServer(t testing.TB, keys ...*Key) *Server {
	t.Helper()
	s := &Server{body: JWKS(t, keys...), status: http.StatusOK}
	mux := http.NewServeMux()
	mux.HandleFunc(JWKSPath, s.serveJWKS)
	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

func (s *Server) serveJWKS(w http.ResponseWriter, r *http.Request) {
	s.hits.Add(1)

	s.mu.Lock()
	body, status, started, release := s.body, s.status, s.started, s.release
	s.mu.Unlock()

	if started != nil {
		select {
		case started <- struct{}{}:
		default:
		}
	}
	if release != nil {
		select {
		case <-release:
		case <-r.Context().Done():
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// JWKSURL is the absolute JWKS URL.
func (s *Server) JWKSURL() string { return s.URL + JWKSPath }

// Hits reports how many JWKS requests were served.
func (s *Server) Hits() int64 { return s.hits.Load() }

// SetKeys replaces the published key set.
func (s *Server) SetKeys(t testing.TB, keys ...*Key) {
	t.Helper()
	b := JWKS(t, keys...)
	s.mu.Lock()
	s.body = b
	s.mu.Unlock()
}

// SetStatus makes the endpoint respond with status and an empty object.
func (s *Server) SetStatus(status int) {
	s.mu.Lock()
	s.status = status
	if status != http.StatusOK {
		s.body = []byte(`{}`)
	}
	s.mu.Unlock()
}

// Hold makes every request block until the returned release function is
// called. The started channel receives once per request that begins.
func (s *Server) Hold() (started <-chan struct{}, release func()) {
	st := make(chan struct{}, 16)
	rel := make(chan struct{})
	s.mu.Lock()
	s.started = st
	s.release = rel
	s.mu.Unlock()
	var once sync.Once
	return st, func() { once.Do(func() { close(rel) }) }
}
