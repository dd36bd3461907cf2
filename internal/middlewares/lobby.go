package middlewares

import (
	"context"
	"log/slog"
	"net/http"

	"sevenquiz-backend/api"
	errs "sevenquiz-backend/internal/errors"
	"sevenquiz-backend/internal/lobby"
)

type ctxKey int

const (
	LobbyKey ctxKey = iota
	LobbyIDKey
	LobbyStateKey
	LobbyUsernameKey
	LobbyRequestKey
	IdentityKey
)

// NewLobby loads a snapshot of the lobby named by the request's {id} path
// value into the request context, along with its id and status as log
// attributes. A missing or unknown lobby id fails the request before any
// handler code runs.
func NewLobby(registry *lobby.Registry) func(http.Handler) http.Handler {
	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			id := r.PathValue("id")
			snapshot, ok := registry.Get(id)
			if id == "" || !ok {
				errs.WriteHTTPError(ctx, w, errs.New(api.ErrLobbyNotFound, nil))
				return
			}

			ctx = context.WithValue(ctx, LobbyKey, snapshot)
			ctx = context.WithValue(ctx, LobbyIDKey, slog.String("lobby_id", snapshot.ID))
			ctx = context.WithValue(ctx, LobbyStateKey, slog.String("lobby_status", string(snapshot.Status)))

			h.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
