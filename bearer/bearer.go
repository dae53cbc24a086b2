// Package bearer connects a token verifier to net/http. Middleware extracts
// the Authorization header, verifies the bearer token, stores the resulting
// AuthToken in the request context and renders failures with the status
// code their kind calls for.
package bearer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/elnormous/contenttype"
	cognitojwt "github.com/ggoodman/cognito-jwt-go"
	"github.com/ggoodman/cognito-jwt-go/autherr"
	"github.com/ggoodman/cognito-jwt-go/internal/logctx"
	"github.com/google/uuid"
)

const (
	authorizationHeader   = "Authorization"
	wwwAuthenticateHeader = "WWW-Authenticate"
	requestIDHeader       = "X-Request-Id"
	forwardedForHeader    = "X-Forwarded-For"
)

var (
	jsonMediaType  = contenttype.NewMediaType("application/json")
	textMediaType  = contenttype.NewMediaType("text/plain")
	errorMediaType = []contenttype.MediaType{jsonMediaType, textMediaType}
)

// Config configures Middleware.
type Config struct {
	// Verify is required, typically (*cognitojwt.TokenVerifier).Verify.
	Verify cognitojwt.VerifyFunc
	// Realm is advertised in WWW-Authenticate challenges when set.
	Realm string
	// TrustForwardedFor adds X-Forwarded-For addresses to AuthToken.IPs.
	TrustForwardedFor bool
	// LogHandler is an optional slog.Handler. If nil, logging is discarded.
	LogHandler slog.Handler
}

type tokenKey struct{}

// NewContext returns a copy of ctx carrying tok.
func NewContext(ctx context.Context, tok *cognitojwt.AuthToken) context.Context {
	return context.WithValue(ctx, tokenKey{}, tok)
}

// FromContext returns the AuthToken stored by Middleware.
func FromContext(ctx context.Context) (*cognitojwt.AuthToken, bool) {
	tok, ok := ctx.Value(tokenKey{}).(*cognitojwt.AuthToken)
	return tok, ok && tok != nil
}

// ExtractToken returns the credentials of a Bearer Authorization header
// value. The scheme is matched case-insensitively.
func ExtractToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", autherr.MissingAuthorization("Invalid or Missing Bearer token", nil)
	}
	scheme, credentials, _ := strings.Cut(header, " ")
	if !strings.EqualFold(scheme, "bearer") {
		return "", autherr.MissingAuthorization(fmt.Sprintf("Expected Authorization method: Bearer - saw %s", scheme), nil).
			WithDebug(map[string]any{"scheme": scheme})
	}
	credentials = strings.TrimSpace(credentials)
	if credentials == "" {
		return "", autherr.MissingAuthorization("Invalid or Missing Bearer token", nil).
			WithDebug(map[string]any{"scheme": scheme})
	}
	return credentials, nil
}

// Middleware returns an http middleware that rejects requests without a
// valid bearer token.
func Middleware(cfg Config) func(http.Handler) http.Handler {
	if cfg.Verify == nil {
		panic("bearer: Config.Verify is required")
	}
	log := logctx.New(cfg.LogHandler)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := r.Header.Get(requestIDHeader)
			if reqID == "" {
				reqID = uuid.NewString()
			}
			w.Header().Set(requestIDHeader, reqID)

			ctx := logctx.WithRequestData(r.Context(), &logctx.RequestData{
				RequestID:  reqID,
				Method:     r.Method,
				UserAgent:  r.UserAgent(),
				RemoteAddr: r.RemoteAddr,
				Path:       r.URL.Path,
			})
			r = r.WithContext(ctx)

			jwt, err := ExtractToken(r.Header.Get(authorizationHeader))
			if err != nil {
				log.InfoContext(ctx, "auth.check.missing", slog.Any("err", err))
				WriteError(w, r, err, cfg.Realm)
				return
			}

			tok, err := cfg.Verify(ctx, jwt, cognitojwt.WithIPs(clientIPs(r, cfg.TrustForwardedFor)...))
			if err != nil {
				log.InfoContext(ctx, "auth.check.fail", slog.Any("err", err))
				WriteError(w, r, err, cfg.Realm)
				return
			}

			next.ServeHTTP(w, r.WithContext(NewContext(ctx, tok)))
		})
	}
}

func clientIPs(r *http.Request, trustForwarded bool) []string {
	var ips []string
	if trustForwarded {
		for _, v := range r.Header.Values(forwardedForHeader) {
			for _, ip := range strings.Split(v, ",") {
				if ip = strings.TrimSpace(ip); ip != "" {
					ips = append(ips, ip)
				}
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if host != "" {
		ips = append(ips, host)
	}
	return ips
}

type internalError struct {
	Code    string `json:"code"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// WriteError renders err as a JSON or plain-text body, negotiated from the
// Accept header. Domain errors use their HTTP status; anything else is a
// 500. Sensitive messages are never written.
func WriteError(w http.ResponseWriter, r *http.Request, err error, realm string) {
	status := http.StatusInternalServerError
	var body any = internalError{Code: "InternalServerError", Status: "internal", Message: http.StatusText(status)}
	text := http.StatusText(status)

	if aerr, ok := autherr.As(err); ok {
		status = aerr.HTTPStatus()
		body = aerr
		text = aerr.PublicMessage()
		if status == http.StatusUnauthorized {
			w.Header().Add(wwwAuthenticateHeader, challenge(realm, aerr))
		}
	}

	mt, _, nerr := contenttype.GetAcceptableMediaType(r, errorMediaType)
	if nerr == nil && mt.Matches(textMediaType) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.WriteHeader(status)
		_, _ = fmt.Fprintln(w, text)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// challenge builds a Bearer challenge. Requests without credentials get no
// error code.
func challenge(realm string, aerr *autherr.Error) string {
	esc := strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace
	var pieces []string
	if realm != "" {
		pieces = append(pieces, fmt.Sprintf(`realm="%s"`, esc(realm)))
	}
	if aerr.Kind != autherr.KindMissingAuthorization {
		pieces = append(pieces,
			`error="invalid_token"`,
			fmt.Sprintf(`error_description="%s"`, esc(aerr.PublicMessage())),
		)
	}
	if len(pieces) == 0 {
		return "Bearer"
	}
	return "Bearer " + strings.Join(pieces, ", ")
}
