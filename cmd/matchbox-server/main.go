package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"time"

	"sevenquiz-backend/internal/auth"
	"sevenquiz-backend/internal/config"
	"sevenquiz-backend/internal/handlers"
	"sevenquiz-backend/internal/lobby"
	mws "sevenquiz-backend/internal/middlewares"
	"sevenquiz-backend/internal/rate"
	"sevenquiz-backend/internal/signaling"

	"github.com/coder/websocket"
	"github.com/rs/cors"
	sloghttp "github.com/samber/slog-http"
)

func init() {
	logger := slog.New(handlers.ContextHandler{
		Handler: slog.NewJSONHandler(os.Stdout, nil),
		Keys: []any{
			mws.LobbyIDKey,
			mws.LobbyStateKey,
			mws.LobbyUsernameKey,
			mws.LobbyRequestKey,
		},
	})
	slog.SetDefault(logger)
}

func main() {
	addr := flag.String("addr", ":8080", "listen address")
	flag.Parse()

	cfg, err := config.LoadConfig("") // TODO: config flags
	if err != nil {
		log.Fatal(err)
	}

	var (
		challenges = auth.NewChallengeStore(cfg.Auth.ChallengeTTL)
		tokens     = auth.NewTokenService(cfg.JWTSecret, cfg.Auth.TokenTTL)
		lobbies    = lobby.NewRegistry()
		peers      = signaling.NewRegistry()

		acceptOpts = websocket.AcceptOptions{
			OriginPatterns: cfg.CORS.AllowedOrigins,
		}
		corsOpts = cors.Options{
			AllowedOrigins: cfg.CORS.AllowedOrigins,
		}
	)

	var limiter *rate.Limiter
	if cfg.RequestsRateLimit > 0 {
		limiter = rate.NewLimiter(time.Second, cfg.RequestsRateLimit)
	}

	deps := handlers.Deps{
		Config:     cfg,
		Challenges: challenges,
		Tokens:     tokens,
		Lobbies:    lobbies,
		Peers:      peers,
		Limiter:    limiter,
	}

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	go challenges.Run(sweepCtx, cfg.Auth.ChallengeSweep)

	defaultMws := []mws.Middleware{
		cors.New(corsOpts).Handler,
		sloghttp.NewWithConfig(slog.Default(), sloghttp.Config{
			WithUserAgent: true,
			WithRequestID: true,
		}),
		mws.RateLimit(limiter),
	}
	authedMws := append(defaultMws, mws.BearerAuth(tokens))
	optionalAuthedMws := append(defaultMws, mws.OptionalBearerAuth(tokens))
	lobbyScopedMws := append(authedMws, mws.NewLobby(lobbies))

	http.Handle("GET /health", mws.Chain(http.HandlerFunc(handlers.Health), defaultMws...))
	http.Handle("POST /auth/challenge", mws.Chain(handlers.Challenge(deps), defaultMws...))
	http.Handle("POST /auth/login", mws.Chain(handlers.Login(deps), defaultMws...))

	http.Handle("POST /lobbies", mws.Chain(handlers.CreateLobby(deps), authedMws...))
	http.Handle("GET /lobbies", mws.Chain(handlers.DiscoverLobbies(deps), optionalAuthedMws...))
	http.Handle("POST /lobbies/{id}/join", mws.Chain(handlers.JoinLobby(deps), lobbyScopedMws...))
	http.Handle("DELETE /lobbies/{id}", mws.Chain(handlers.DeleteLobby(deps), lobbyScopedMws...))
	http.Handle("POST /lobbies/{id}/invite", mws.Chain(handlers.InviteToLobby(deps), lobbyScopedMws...))

	http.Handle("GET /{token}", handlers.Signaling(deps, acceptOpts))

	srv := http.Server{
		Addr:         *addr,
		Handler:      http.DefaultServeMux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	slog.Info("starting server", slog.String("addr", srv.Addr))

	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		log.Fatal(err)
	}
}
