package handlers

import (
	"log/slog"
	"net/http"

	"sevenquiz-backend/internal/signaling"

	"github.com/coder/websocket"
	"github.com/lithammer/shortuuid/v3"
)

// Signaling upgrades the socket at ws://host/{token} and runs it through
// the Handshake state (spec.md §4.4 step 1): the path segment is the full
// JWT, validated via the token service before the socket is ever accepted.
// A pending-connection record is left in waiting_players for the session
// task to pick up once a peer handle is assigned.
func Signaling(deps Deps, acceptOpts websocket.AcceptOptions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		token := r.PathValue("token")
		subject, _, err := deps.Tokens.ValidateToken(token)
		if err != nil {
			slog.WarnContext(ctx, "websocket handshake rejected", slog.Any("error", err))
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		clientAddr := shortuuid.New()
		deps.Lobbies.EnterWaiting(clientAddr, subject)

		conn, err := websocket.Accept(w, r, &acceptOpts)
		if err != nil {
			slog.ErrorContext(ctx, "ws accept", slog.Any("error", err))
			return
		}
		conn.SetReadLimit(deps.Config.Websocket.ReadLimit)

		session := signaling.NewSession(deps.Lobbies, deps.Peers)
		session.Run(ctx, conn, clientAddr)
	}
}
