package jwtauth

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/ggoodman/cognito-jwt-go/autherr"
	"github.com/ggoodman/cognito-jwt-go/keys"
	"github.com/golang-jwt/jwt/v5"
)

// AllowedAlgs is the fixed algorithm allow-list.
var AllowedAlgs = []string{"RS256"}

// ErrDisallowedAlgorithm is raised from the key function when the token's
// alg is outside AllowedAlgs or disagrees with the resolved key.
var ErrDisallowedAlgorithm = errors.New("jwtauth: disallowed algorithm")

// Expectations are optional standard-claim constraints. Empty fields are
// not enforced.
type Expectations struct {
	Audience string
	Issuer   string
	Subject  string
	JWTID    string
}

// Config controls signature and standard-claim verification.
type Config struct {
	Expect Expectations
	// Leeway is the clock skew tolerance applied to exp and nbf.
	Leeway time.Duration
	// Now overrides the clock; nil means time.Now.
	Now func() time.Time
}

// Verifier checks signatures and standard claims. It holds no mutable
// state and is safe for concurrent use.
type Verifier struct {
	expect Expectations
	parser *jwt.Parser
}

// NewVerifier builds a Verifier for cfg.
func NewVerifier(cfg Config) *Verifier {
	opts := []jwt.ParserOption{jwt.WithLeeway(cfg.Leeway)}
	if cfg.Now != nil {
		opts = append(opts, jwt.WithTimeFunc(cfg.Now))
	}
	if cfg.Expect.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Expect.Audience))
	}
	if cfg.Expect.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Expect.Issuer))
	}
	if cfg.Expect.Subject != "" {
		opts = append(opts, jwt.WithSubject(cfg.Expect.Subject))
	}
	return &Verifier{expect: cfg.Expect, parser: jwt.NewParser(opts...)}
}

// Verify checks tok's signature against key and evaluates the standard
// claims. It returns the verified claims.
//
// Library failures are translated by reason. Reasons without a mapping
// (subject mismatch, disallowed algorithm, anything unrecognised) are
// returned as the raw library error.
func (v *Verifier) Verify(tok string, key *keys.SigningKey) (map[string]any, error) {
	parsed, err := v.parser.Parse(tok, func(t *jwt.Token) (any, error) {
		alg := t.Method.Alg()
		if !slices.Contains(AllowedAlgs, alg) {
			return nil, fmt.Errorf("%w: %s", ErrDisallowedAlgorithm, alg)
		}
		if key.Algorithm != "" && key.Algorithm != alg {
			return nil, fmt.Errorf("%w: key %s is for %s, token uses %s", ErrDisallowedAlgorithm, key.ID, key.Algorithm, alg)
		}
		return key.PublicKey, nil
	})
	if err != nil {
		return nil, v.remap(err)
	}

	if parsed == nil || !parsed.Valid {
		return nil, autherr.TokenUnsuitable("Token verify failed", nil)
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || claims == nil {
		return nil, autherr.TokenUnsuitable("Unexpected token verify result", nil).
			WithDebug(map[string]any{"claims_type": fmt.Sprintf("%T", parsed.Claims)})
	}

	if v.expect.JWTID != "" {
		if jti, _ := claims["jti"].(string); jti != v.expect.JWTID {
			return nil, autherr.TokenUnsuitable(fmt.Sprintf("jwt jwtid invalid. expected: %s", v.expect.JWTID), nil).
				WithDetails(autherr.Violation{Field: "jti", Description: "Token id does not match"})
		}
	}

	return claims, nil
}

func (v *Verifier) remap(err error) error {
	switch {
	case errors.Is(err, ErrDisallowedAlgorithm):
		return err
	case errors.Is(err, jwt.ErrTokenExpired):
		return autherr.TokenExpired("jwt expired", err).
			WithDetails(autherr.Violation{Field: "exp", Description: "Authorisation has expired"})
	case errors.Is(err, jwt.ErrTokenNotValidYet):
		return autherr.TokenUnsuitable("jwt not active", err).
			WithDetails(autherr.Violation{Field: "exp", Description: "Authorisation is not valid yet"})
	case errors.Is(err, jwt.ErrTokenMalformed), errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return autherr.TokenInvalid(err.Error(), err)
	case errors.Is(err, jwt.ErrTokenInvalidAudience):
		return autherr.TokenUnsuitable(fmt.Sprintf("jwt audience invalid. expected: %s", v.expect.Audience), err).
			WithDetails(autherr.Violation{Field: "aud", Description: "Audience does not match"})
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return autherr.TokenUnsuitable(fmt.Sprintf("jwt issuer invalid. expected: %s", v.expect.Issuer), err).
			WithDetails(autherr.Violation{Field: "iss", Description: "Issuer does not match"})
	case errors.Is(err, jwt.ErrTokenInvalidId):
		return autherr.TokenUnsuitable(fmt.Sprintf("jwt jwtid invalid. expected: %s", v.expect.JWTID), err).
			WithDetails(autherr.Violation{Field: "jti", Description: "Token id does not match"})
	default:
		return err
	}
}
