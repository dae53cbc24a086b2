package cognitojwt

import (
	"context"
	"errors"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
)

// NewDiscoveryTokenVerifier performs OIDC discovery against issuer to learn
// its jwks_uri, then builds a TokenVerifier that also enforces the
// discovered issuer. opts.JWKSURI and opts.Issuer are overwritten.
//
// For a Cognito user pool, issuer is CognitoIssuer(region, poolID).
func NewDiscoveryTokenVerifier(ctx context.Context, issuer string, opts Options) (*TokenVerifier, error) {
	if issuer == "" {
		return nil, fmt.Errorf("%w: issuer is required", ErrInvalidArgument)
	}

	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc discovery failed: %w", err)
	}
	var meta struct {
		Issuer  string `json:"issuer"`
		JwksURI string `json:"jwks_uri"`
	}
	if err := provider.Claims(&meta); err != nil {
		return nil, fmt.Errorf("decode discovery metadata: %w", err)
	}
	if meta.JwksURI == "" {
		return nil, errors.New("discovery document has no jwks_uri")
	}

	opts.JWKSURI = meta.JwksURI
	opts.Issuer = meta.Issuer
	if opts.debug == nil {
		opts.debug = map[string]any{"issuer": meta.Issuer, "jwksUri": meta.JwksURI}
	}
	return NewTokenVerifier(opts)
}
