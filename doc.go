// Package cognitojwt verifies bearer tokens issued by AWS Cognito user pools
// (or any issuer publishing a JWK Set) and turns them into an AuthToken.
//
// Verification is a fail-fast pipeline:
//
//	decode -> resolve signing key -> verify signature and standard claims
//	       -> check token_use / sub policy -> build AuthToken
//
// Every stage either succeeds or returns an error. Domain failures are
// *autherr.Error values of five kinds (TokenInvalid, TokenUnsuitable,
// TokenExpired, AuthProvider, MissingAuthorization) carrying a status
// classification and a sensitivity flag for HTTP integrations.
//
// Two verification failures deliberately escape untranslated: a subject
// mismatch (when Options.Subject is set) and a token signed with an
// algorithm other than RS256. Callers see the underlying golang-jwt error;
// the latter also matches ErrDisallowedAlgorithm via errors.Is.
//
// Example:
//
//	v, err := cognitojwt.NewCognitoTokenVerifier(cognitojwt.CognitoOptions{
//	    Region:     "ap-southeast-2",
//	    UserPoolID: "ap-southeast-2_AbCdEf",
//	})
//	if err != nil { log.Fatal(err) }
//	defer v.Close()
//
//	tok, err := v.Verify(ctx, raw, cognitojwt.WithIPs(r.RemoteAddr))
//	if errors.Is(err, autherr.ErrTokenExpired) { /* ask the client to refresh */ }
//
// Keys are fetched through keys/jwks, which caches per kid, rate limits the
// upstream endpoint and coalesces concurrent fetches. Any keys.Resolver can
// be supplied instead, for example keys/static for a local JWK Set file.
package cognitojwt
