package middlewares

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"sevenquiz-backend/api"
	"sevenquiz-backend/internal/auth"
	errs "sevenquiz-backend/internal/errors"
)

// Identity is what BearerAuth attaches to the request context: the caller's
// public key (the stable Identity, spec.md §3) and the username it logged
// in with.
type Identity struct {
	PublicKeyB64 string
	Username     string
}

// BearerAuth validates the Authorization: Bearer <token> header issued by
// POST /auth/login and attaches the resulting Identity to the request
// context. Every lobby-mutating endpoint requires it (spec.md §4.2, §6).
func BearerAuth(tokens *auth.TokenService) func(http.Handler) http.Handler {
	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				errs.WriteHTTPError(ctx, w, errs.New(api.ErrInvalidToken, nil))
				return
			}

			subject, username, err := tokens.ValidateToken(token)
			if err != nil {
				errs.WriteHTTPError(ctx, w, errs.New(api.ErrInvalidToken, err))
				return
			}

			ctx = context.WithValue(ctx, IdentityKey, Identity{PublicKeyB64: subject, Username: username})
			ctx = context.WithValue(ctx, LobbyUsernameKey, slog.String("username", username))

			h.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// IdentityFromContext retrieves the Identity attached by BearerAuth. Callers
// downstream of that middleware can assume ok is always true.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(IdentityKey).(Identity)
	return id, ok
}

// OptionalBearerAuth behaves like BearerAuth but never rejects the
// request: a missing or invalid token simply leaves no Identity in
// context. Used by GET /lobbies, where discovery's visibility predicate
// depends on whether the caller is known (spec.md §4.3 discover, §6).
func OptionalBearerAuth(tokens *auth.TokenService) func(http.Handler) http.Handler {
	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				h.ServeHTTP(w, r)
				return
			}

			subject, username, err := tokens.ValidateToken(token)
			if err != nil {
				h.ServeHTTP(w, r)
				return
			}

			ctx := context.WithValue(r.Context(), IdentityKey, Identity{PublicKeyB64: subject, Username: username})
			h.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
