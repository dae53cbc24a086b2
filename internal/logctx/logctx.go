package logctx

import (
	"context"
	"log/slog"
)

type Handler struct {
	slog.Handler
}

func (h Handler) Handle(ctx context.Context, r slog.Record) error {
	if rd, ok := ctx.Value(requestDataKey{}).(*RequestData); ok {
		r.AddAttrs(slog.Group("req",
			slog.String("id", rd.RequestID),
			slog.String("method", rd.Method),
			slog.String("user_agent", rd.UserAgent),
			slog.String("remote_addr", rd.RemoteAddr),
			slog.String("path", rd.Path),
		))
	}

	if td, ok := ctx.Value(tokenDataKey{}).(*TokenData); ok {
		attrs := []any{slog.String("kid", td.KeyID)}
		if td.Subject != "" {
			attrs = append(attrs, slog.String("sub", td.Subject))
		}
		r.AddAttrs(slog.Group("token", attrs...))
	}

	return h.Handler.Handle(ctx, r)
}

func (h Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return Handler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h Handler) WithGroup(name string) slog.Handler {
	return Handler{Handler: h.Handler.WithGroup(name)}
}

type requestDataKey struct{}

type RequestData struct {
	RequestID  string
	Method     string
	UserAgent  string
	RemoteAddr string
	Path       string
}

func WithRequestData(ctx context.Context, data *RequestData) context.Context {
	return context.WithValue(ctx, requestDataKey{}, data)
}

type tokenDataKey struct{}

// TokenData describes the token being verified. Subject is only known once
// the signature has been checked.
type TokenData struct {
	KeyID   string
	Subject string
}

func WithTokenData(ctx context.Context, data *TokenData) context.Context {
	return context.WithValue(ctx, tokenDataKey{}, data)
}

// New wraps h so records pick up request and token attributes from context.
// A nil h discards everything.
func New(h slog.Handler) *slog.Logger {
	if h == nil {
		h = slog.DiscardHandler
	}
	return slog.New(Handler{Handler: h})
}
