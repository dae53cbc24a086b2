package cognitojwt

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/ggoodman/cognito-jwt-go/keys/jwks"
)

// CognitoOptions configures NewCognitoTokenVerifier.
type CognitoOptions struct {
	Region     string
	UserPoolID string

	UserIDGenerator UserIDGenerator

	// EnforceIssuer rejects tokens whose iss is not the user pool issuer.
	EnforceIssuer bool
	Audience      string
	Leeway        time.Duration

	JWKS       *jwks.Config
	LogHandler slog.Handler
	Now        func() time.Time
}

// CognitoIssuer returns the issuer URL of a Cognito user pool.
func CognitoIssuer(region, userPoolID string) string {
	return fmt.Sprintf("https://cognito-idp.%s.amazonaws.com/%s", region, userPoolID)
}

// CognitoJWKSURI returns the JWK Set URL of a Cognito user pool.
func CognitoJWKSURI(region, userPoolID string) string {
	return CognitoIssuer(region, userPoolID) + "/.well-known/jwks.json"
}

// NewCognitoTokenVerifier derives the issuer and JWKS endpoint of a Cognito
// user pool and delegates to NewTokenVerifier.
func NewCognitoTokenVerifier(opts CognitoOptions) (*TokenVerifier, error) {
	if opts.Region == "" {
		return nil, fmt.Errorf("%w: Missing/undefined issuer argument", ErrInvalidArgument)
	}
	if opts.UserPoolID == "" {
		return nil, fmt.Errorf("%w: Missing/undefined user pool argument", ErrInvalidArgument)
	}

	issuer := CognitoIssuer(opts.Region, opts.UserPoolID)
	o := Options{
		JWKSURI:         CognitoJWKSURI(opts.Region, opts.UserPoolID),
		JWKS:            opts.JWKS,
		UserIDGenerator: opts.UserIDGenerator,
		Audience:        opts.Audience,
		Leeway:          opts.Leeway,
		LogHandler:      opts.LogHandler,
		Now:             opts.Now,
		debug: map[string]any{
			"region":     opts.Region,
			"userPoolId": opts.UserPoolID,
		},
	}
	if opts.EnforceIssuer {
		o.Issuer = issuer
	}
	return NewTokenVerifier(o)
}
