// Package handlers wires the HTTP and WebSocket surface (spec.md §6) onto
// the auth, lobby, and signaling components.
package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"sevenquiz-backend/api"
	"sevenquiz-backend/internal/auth"
	"sevenquiz-backend/internal/config"
	errs "sevenquiz-backend/internal/errors"
	"sevenquiz-backend/internal/lobby"
	"sevenquiz-backend/internal/middlewares"
	"sevenquiz-backend/internal/rate"
	"sevenquiz-backend/internal/signaling"
)

// Deps bundles every component a handler needs. Constructed once at
// startup and closed over by each handler func (spec.md §9: "no hidden
// singletons; initialization happens once at startup").
type Deps struct {
	Config     config.Config
	Challenges *auth.ChallengeStore
	Tokens     *auth.TokenService
	Lobbies    *lobby.Registry
	Peers      *signaling.Registry
	Limiter    *rate.Limiter
}

// Health reports liveness with a plain "OK" body. No auth (spec.md §6).
func Health(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("OK"))
}

// Challenge issues a fresh one-shot nonce (spec.md §4.1, §6).
func Challenge(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		challenge, err := deps.Challenges.Generate()
		if err != nil {
			errs.WriteHTTPError(ctx, w, errs.New(api.ErrInternalIssueFailed, err))
			return
		}

		writeJSON(ctx, w, http.StatusOK, api.ChallengeResponse{Challenge: challenge})
	}
}

// Login verifies a signed challenge and mints a bearer token (spec.md
// §4.1, §4.2, §6).
func Login(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req api.LoginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			errs.WriteHTTPError(ctx, w, errs.New(api.ErrInvalidChallenge, err))
			return
		}

		// The signature is checked first so that a failed verification
		// leaves the challenge in the store.
		if !deps.Tokens.VerifySignature(req.PublicKeyB64, req.Challenge, req.SignatureB64) {
			errs.WriteHTTPError(ctx, w, errs.New(api.ErrInvalidSignature, nil))
			return
		}

		if !deps.Challenges.Consume(req.Challenge) {
			errs.WriteHTTPError(ctx, w, errs.New(api.ErrInvalidChallenge, nil))
			return
		}

		token, err := deps.Tokens.IssueToken(req.PublicKeyB64, req.Username)
		if err != nil {
			errs.WriteHTTPError(ctx, w, errs.New(api.ErrInternalIssueFailed, err))
			return
		}

		writeJSON(ctx, w, http.StatusOK, api.LoginResponse{Token: token})
	}
}

// CreateLobby creates a lobby owned by the caller (spec.md §4.3 create,
// §6).
func CreateLobby(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		identity, ok := middlewares.IdentityFromContext(ctx)
		if !ok {
			errs.WriteHTTPError(ctx, w, errs.New(api.ErrInvalidToken, nil))
			return
		}

		var req api.CreateLobbyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err.Error() != "EOF" {
			errs.WriteHTTPError(ctx, w, errs.New(api.ErrInternalIssueFailed, err))
			return
		}

		created, err := deps.Lobbies.Create(identity.PublicKeyB64, req.IsPrivate, req.Whitelist)
		if err != nil {
			writeLobbyErr(ctx, w, err)
			return
		}

		writeJSON(ctx, w, http.StatusOK, created)
	}
}

// DiscoverLobbies lists the lobbies visible to the caller, authenticated or
// not (spec.md §4.3 discover, §6).
func DiscoverLobbies(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var viewer string
		if identity, ok := middlewares.IdentityFromContext(ctx); ok {
			viewer = identity.PublicKeyB64
		}

		writeJSON(ctx, w, http.StatusOK, deps.Lobbies.Discover(viewer))
	}
}

// JoinLobby adds the caller to a lobby (spec.md §4.3 join, §6).
func JoinLobby(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		identity, ok := middlewares.IdentityFromContext(ctx)
		if !ok {
			errs.WriteHTTPError(ctx, w, errs.New(api.ErrInvalidToken, nil))
			return
		}

		lobbyID := r.PathValue("id")
		if err := deps.Lobbies.Join(lobbyID, identity.PublicKeyB64); err != nil {
			writeLobbyErr(ctx, w, err)
			return
		}

		w.WriteHeader(http.StatusOK)
	}
}

// DeleteLobby deletes the lobby if the caller owns it, otherwise leaves it
// (spec.md §4.3 delete, §6).
func DeleteLobby(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		identity, ok := middlewares.IdentityFromContext(ctx)
		if !ok {
			errs.WriteHTTPError(ctx, w, errs.New(api.ErrInvalidToken, nil))
			return
		}

		lobbyID := r.PathValue("id")
		if err := deps.Lobbies.Delete(lobbyID, identity.PublicKeyB64); err != nil {
			writeLobbyErr(ctx, w, err)
			return
		}

		w.WriteHeader(http.StatusOK)
	}
}

// InviteToLobby unions identities into the lobby's whitelist (spec.md §4.3
// invite, §6).
func InviteToLobby(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		identity, ok := middlewares.IdentityFromContext(ctx)
		if !ok {
			errs.WriteHTTPError(ctx, w, errs.New(api.ErrInvalidToken, nil))
			return
		}

		var req api.InviteRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			errs.WriteHTTPError(ctx, w, errs.New(api.ErrInternalIssueFailed, err))
			return
		}

		lobbyID := r.PathValue("id")
		if err := deps.Lobbies.Invite(lobbyID, identity.PublicKeyB64, req.PlayerPublicKeys); err != nil {
			writeLobbyErr(ctx, w, err)
			return
		}

		writeJSON(ctx, w, http.StatusOK, api.InviteResponse{Success: true, Invited: req.PlayerPublicKeys})
	}
}

func writeLobbyErr(ctx context.Context, w http.ResponseWriter, err error) {
	if opErr, ok := err.(*lobby.OpError); ok {
		errs.WriteHTTPError(ctx, w, errs.New(opErr.Kind, nil))
		return
	}
	errs.WriteHTTPError(ctx, w, errs.New(api.ErrInternalIssueFailed, err))
}

func writeJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("response encoding failed", slog.Any("error", err))
	}
}
