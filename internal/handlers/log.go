package handlers

import (
	"context"
	"log/slog"
)

// ContextHandler enriches every log record with slog.Attr values stashed in
// the request context under the given keys by middleware (lobby id, lobby
// status, username, request type). Handlers never pass these explicitly;
// they are picked up automatically wherever the context flows.
type ContextHandler struct {
	slog.Handler
	Keys []any
}

func (h ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, key := range h.Keys {
		if attr, ok := ctx.Value(key).(slog.Attr); ok {
			r.AddAttrs(attr)
		}
	}
	return h.Handler.Handle(ctx, r)
}

func (h ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return ContextHandler{Handler: h.Handler.WithAttrs(attrs), Keys: h.Keys}
}

func (h ContextHandler) WithGroup(name string) slog.Handler {
	return ContextHandler{Handler: h.Handler.WithGroup(name), Keys: h.Keys}
}
