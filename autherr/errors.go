// Package autherr defines the closed set of errors produced while verifying
// bearer tokens.
//
// Every failure that leaves the verification pipeline as a domain error is an
// *Error carrying one of five kinds. Callers pattern-match with errors.Is
// against the exported sentinels (ErrTokenInvalid, ErrTokenExpired, ...) or
// switch on Kind after errors.As:
//
//	var aerr *autherr.Error
//	if errors.As(err, &aerr) {
//	    switch aerr.Kind {
//	    case autherr.KindTokenExpired:
//	        // prompt the client to refresh
//	    case autherr.KindAuthProvider:
//	        // retry later; never echo aerr.Message to the client
//	    }
//	}
//
// Details are client-safe violation records. Debug holds raw internal state
// that is written to logs (via slog.LogValuer) but never serialized by
// MarshalJSON.
package autherr

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
)

// Kind identifies the variant of an Error.
type Kind int

const (
	// KindTokenInvalid: malformed token, bad signature or unresolvable key.
	KindTokenInvalid Kind = iota + 1
	// KindTokenUnsuitable: well-formed and signed, but fails a claim policy.
	KindTokenUnsuitable
	// KindTokenExpired: the exp claim is in the past.
	KindTokenExpired
	// KindAuthProvider: the identity provider's keys could not be obtained.
	KindAuthProvider
	// KindMissingAuthorization: no usable bearer credentials on the request.
	KindMissingAuthorization
)

func (k Kind) String() string {
	switch k {
	case KindTokenInvalid:
		return "TokenInvalidError"
	case KindTokenUnsuitable:
		return "TokenUnsuitableError"
	case KindTokenExpired:
		return "TokenExpiredError"
	case KindAuthProvider:
		return "AuthProviderError"
	case KindMissingAuthorization:
		return "MissingAuthorizationError"
	default:
		return "UnknownAuthError"
	}
}

// Status is the coarse classification an integration layer uses to pick a
// response code.
type Status int

const (
	StatusInvalidArgument Status = iota + 1
	StatusUnauthenticated
	StatusUnavailable
)

func (s Status) String() string {
	switch s {
	case StatusInvalidArgument:
		return "invalid-argument"
	case StatusUnauthenticated:
		return "unauthenticated"
	case StatusUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// HTTPStatus maps the classification onto an HTTP status code.
func (s Status) HTTPStatus() int {
	switch s {
	case StatusInvalidArgument:
		return http.StatusBadRequest
	case StatusUnauthenticated:
		return http.StatusUnauthorized
	case StatusUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Status returns the status classification of the kind.
func (k Kind) Status() Status {
	switch k {
	case KindTokenInvalid, KindTokenUnsuitable:
		return StatusInvalidArgument
	case KindTokenExpired, KindMissingAuthorization:
		return StatusUnauthenticated
	case KindAuthProvider:
		return StatusUnavailable
	default:
		return 0
	}
}

// Sensitive reports whether messages of this kind must stay internal.
func (k Kind) Sensitive() bool { return k == KindAuthProvider }

// Violation names the claim (or header field) that failed and a description
// safe to show to the client.
type Violation struct {
	Field       string `json:"field"`
	Description string `json:"description,omitempty"`
}

// Error is the single concrete domain error type.
type Error struct {
	Kind    Kind
	Message string
	Details []Violation
	Debug   map[string]any
	Cause   error
}

// Sentinels for errors.Is. A sentinel matches any *Error of the same kind.
var (
	ErrTokenInvalid         = &Error{Kind: KindTokenInvalid}
	ErrTokenUnsuitable      = &Error{Kind: KindTokenUnsuitable}
	ErrTokenExpired         = &Error{Kind: KindTokenExpired}
	ErrAuthProvider         = &Error{Kind: KindAuthProvider}
	ErrMissingAuthorization = &Error{Kind: KindMissingAuthorization}
)

func newError(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

// TokenInvalid builds a KindTokenInvalid error.
func TokenInvalid(msg string, cause error) *Error {
	return newError(KindTokenInvalid, msg, cause)
}

// TokenUnsuitable builds a KindTokenUnsuitable error.
func TokenUnsuitable(msg string, cause error) *Error {
	return newError(KindTokenUnsuitable, msg, cause)
}

// TokenExpired builds a KindTokenExpired error.
func TokenExpired(msg string, cause error) *Error {
	return newError(KindTokenExpired, msg, cause)
}

// AuthProvider builds a KindAuthProvider error. Its message is never shown
// to clients.
func AuthProvider(msg string, cause error) *Error {
	return newError(KindAuthProvider, msg, cause)
}

// MissingAuthorization builds a KindMissingAuthorization error.
func MissingAuthorization(msg string, cause error) *Error {
	return newError(KindMissingAuthorization, msg, cause)
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Kind.String()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches sentinels of the same kind. A target carrying a message only
// matches errors with that exact message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Message == "" || t.Message == e.Message)
}

// Status returns the status classification.
func (e *Error) Status() Status { return e.Kind.Status() }

// Sensitive reports whether Message and Debug must not reach the client.
func (e *Error) Sensitive() bool { return e.Kind.Sensitive() }

// HTTPStatus is shorthand for e.Status().HTTPStatus().
func (e *Error) HTTPStatus() int { return e.Status().HTTPStatus() }

// PublicMessage is the message that may be shown to an untrusted caller.
func (e *Error) PublicMessage() string {
	if e.Sensitive() {
		return "Authentication provider unavailable"
	}
	return e.Error()
}

// WithDetails appends violations and returns the receiver.
func (e *Error) WithDetails(v ...Violation) *Error {
	e.Details = append(e.Details, v...)
	return e
}

// WithDebug merges debug context and returns the receiver.
func (e *Error) WithDebug(kv map[string]any) *Error {
	if e.Debug == nil {
		e.Debug = make(map[string]any, len(kv))
	}
	for k, v := range kv {
		e.Debug[k] = v
	}
	return e
}

type wireError struct {
	Code    string      `json:"code"`
	Status  string      `json:"status"`
	Message string      `json:"message"`
	Details []Violation `json:"details,omitempty"`
}

// MarshalJSON renders the client-safe representation. Debug and Cause are
// omitted; sensitive errors also drop their details.
func (e *Error) MarshalJSON() ([]byte, error) {
	w := wireError{
		Code:    e.Kind.String(),
		Status:  e.Status().String(),
		Message: e.PublicMessage(),
	}
	if !e.Sensitive() {
		w.Details = e.Details
	}
	return json.Marshal(w)
}

// LogValue exposes the full record, debug context included, to slog.
func (e *Error) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("kind", e.Kind.String()),
		slog.String("status", e.Status().String()),
		slog.String("message", e.Message),
	}
	if len(e.Details) > 0 {
		attrs = append(attrs, slog.Any("details", e.Details))
	}
	if len(e.Debug) > 0 {
		attrs = append(attrs, slog.Any("debug", e.Debug))
	}
	if e.Cause != nil {
		attrs = append(attrs, slog.String("cause", e.Cause.Error()))
	}
	return slog.GroupValue(attrs...)
}

// As is a convenience wrapper around errors.As.
func As(err error) (*Error, bool) {
	var aerr *Error
	if errors.As(err, &aerr) {
		return aerr, true
	}
	return nil, false
}

var _ slog.LogValuer = (*Error)(nil)
