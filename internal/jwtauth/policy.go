package jwtauth

import (
	"github.com/ggoodman/cognito-jwt-go/autherr"
)

// AccessTokenUse is the only accepted value of the token_use claim.
const AccessTokenUse = "access"

// CheckPolicy applies the application-level claim rules that follow a
// successful signature and standard-claims verification. An absent
// token_use claim is accepted.
func CheckPolicy(claims map[string]any) error {
	if sub, _ := claims["sub"].(string); sub == "" {
		return autherr.TokenUnsuitable("Missing subject", nil).
			WithDetails(autherr.Violation{Field: "sub", Description: "Subject is required"})
	}

	if use, ok := claims["token_use"]; ok && use != AccessTokenUse {
		return autherr.TokenUnsuitable("Unsuitable Token Use", nil).
			WithDetails(autherr.Violation{Field: "token_use", Description: "Only access tokens are accepted"}).
			WithDebug(map[string]any{"token_use": use})
	}

	return nil
}
