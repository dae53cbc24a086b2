package cognitojwt

import (
	"context"
	"encoding/json"
	"math"
	"slices"
	"strings"
	"time"
)

// UserIDGenerator derives an application user id from verified claims. An
// empty result leaves AuthToken.UserID unset. Errors are returned to the
// caller of Verify unchanged.
type UserIDGenerator func(ctx context.Context, claims map[string]any) (string, error)

// AuthToken is the result of a successful verification. It is only ever
// constructed after every verification stage has passed.
type AuthToken struct {
	// JWT is the original compact token, kept for forwarding downstream.
	JWT string `json:"jwt"`
	// Claims is the verified payload, unmodified.
	Claims map[string]any `json:"claims"`

	ClientID  string    `json:"clientId,omitempty"`
	ID        string    `json:"id,omitempty"`
	IssuedAt  time.Time `json:"issuedAt,omitzero"`
	ExpiresAt time.Time `json:"expiresAt,omitzero"`
	// TTL is exp - iat in seconds, or zero when either claim is absent.
	TTL int64 `json:"ttl"`
	// Scope is the space-delimited scope claim, de-duplicated in order.
	Scope []string `json:"scope"`
	// IPs are the caller-supplied request addresses, de-duplicated in order.
	IPs    []string `json:"ips"`
	UserID string   `json:"userId,omitempty"`

	now func() time.Time
}

// IsValid reports whether the token has not expired as of now. It is
// recomputed on every call. Tokens without an exp claim never expire.
func (t *AuthToken) IsValid() bool {
	if t.ExpiresAt.IsZero() {
		return true
	}
	now := time.Now
	if t.now != nil {
		now = t.now
	}
	return now().Before(t.ExpiresAt)
}

// HasScope reports whether scope was granted.
func (t *AuthToken) HasScope(scope string) bool {
	return slices.Contains(t.Scope, scope)
}

// Subject returns the sub claim.
func (t *AuthToken) Subject() string {
	sub, _ := t.Claims["sub"].(string)
	return sub
}

func buildAuthToken(ctx context.Context, jwt string, claims map[string]any, ips []string, gen UserIDGenerator, now func() time.Time) (*AuthToken, error) {
	tok := &AuthToken{
		JWT:    jwt,
		Claims: claims,
		Scope:  dedupe(strings.Fields(stringClaim(claims, "scope"))),
		IPs:    dedupe(ips),
		now:    now,
	}
	tok.ClientID = stringClaim(claims, "client_id")
	tok.ID = stringClaim(claims, "jti")

	iat, hasIat := numericClaim(claims, "iat")
	exp, hasExp := numericClaim(claims, "exp")
	if hasIat {
		tok.IssuedAt = time.Unix(iat, 0).UTC()
	}
	if hasExp {
		tok.ExpiresAt = time.Unix(exp, 0).UTC()
	}
	if hasIat && hasExp {
		tok.TTL = exp - iat
	}

	if gen != nil {
		userID, err := gen(ctx, claims)
		if err != nil {
			return nil, err
		}
		tok.UserID = userID
	}
	return tok, nil
}

func stringClaim(claims map[string]any, name string) string {
	s, _ := claims[name].(string)
	return s
}

// maxNumericDate bounds NumericDate claims to integers a float64 holds
// exactly. Values outside it are treated as absent.
const maxNumericDate = 1 << 53

func numericClaim(claims map[string]any, name string) (int64, bool) {
	switch v := claims[name].(type) {
	case float64:
		return roundNumericDate(v)
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i, inNumericRange(i)
		}
		if f, err := v.Float64(); err == nil {
			return roundNumericDate(f)
		}
	case int64:
		return v, inNumericRange(v)
	case int:
		return int64(v), inNumericRange(int64(v))
	}
	return 0, false
}

func roundNumericDate(f float64) (int64, bool) {
	if math.IsNaN(f) || math.Abs(f) > maxNumericDate {
		return 0, false
	}
	return int64(math.Round(f)), true
}

func inNumericRange(i int64) bool {
	return i >= -maxNumericDate && i <= maxNumericDate
}

func dedupe(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
