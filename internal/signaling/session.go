package signaling

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"sevenquiz-backend/api"
	"sevenquiz-backend/internal/lobby"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/lithammer/shortuuid/v3"
)

// pingInterval mirrors the teacher's connection-liveness probe: every
// session is pinged at this interval, whatever its traffic, and dropped if
// the ping fails.
const pingInterval = 15 * time.Second

// Session drives one socket through Handshake -> Correlated -> Enrolled ->
// Relaying -> Draining -> Closed (spec.md §4.4). Handshake itself happens
// in the HTTP handler, which authenticates the upgrade token and calls
// Run only once the socket is accepted.
type Session struct {
	registry *lobby.Registry
	peers    *Registry
}

func NewSession(registry *lobby.Registry, peers *Registry) *Session {
	return &Session{registry: registry, peers: peers}
}

// Run executes the full per-socket lifecycle for a connection already
// authenticated and accepted, with clientAddr the correlation key left in
// waiting_players by the handshake handler.
func (s *Session) Run(ctx context.Context, conn *websocket.Conn, clientAddr string) {
	defer conn.CloseNow()

	// Peer-handle assignment (spec.md §4.4 step 2). The handle is generated
	// and assigned synchronously here, in the same goroutine that is about
	// to read from the socket, so there is no window in which the session
	// task could observe the connection before the assignment callback has
	// run (spec.md §9's synchronization open question does not arise).
	handle := shortuuid.New()
	identity, ok := s.registry.AssignPeer(clientAddr, handle)
	if !ok {
		slog.ErrorContext(ctx, "no pending connection for client", slog.String("client_addr", clientAddr))
		return
	}

	// Correlated.
	lobbyID, ok := s.registry.LobbyOf(identity)
	if !ok {
		slog.WarnContext(ctx, "authenticated identity has no lobby membership",
			slog.String("pubkey", truncate(identity)))
		s.registry.RemovePeer(identity)
		return
	}

	s.enroll(ctx, conn, handle, identity, lobbyID)
}

func (s *Session) enroll(ctx context.Context, conn *websocket.Conn, handle, identity, lobbyID string) {
	if owner, ok := s.registry.OwnerOf(lobbyID); ok && owner == identity {
		if status, ok := s.registry.StatusOf(lobbyID); ok && status == lobby.StatusWaiting {
			if err := s.registry.Start(lobbyID, identity); err != nil {
				slog.ErrorContext(ctx, "start lobby on owner connect", slog.Any("error", err))
			}
		}
	}

	peer := s.peers.register(handle)
	writerCtx, stopWriter := context.WithCancel(ctx)
	defer stopWriter()
	go peer.run(writerCtx, func(ctx context.Context, v any) error {
		return wsjson.Write(ctx, conn, v)
	})
	go ping(writerCtx, conn, handle)

	peer.send(api.ServerMessage{IDAssigned: handle})

	others := excluding(s.registry.PeerHandlesInLobby(lobbyID), handle)
	s.peers.broadcast(ctx, others, api.ServerMessage{NewPeer: handle})

	slog.InfoContext(ctx, "peer enrolled",
		slog.String("lobby_id", lobbyID),
		slog.String("peer_handle", handle),
		slog.String("pubkey", truncate(identity)))

	s.relay(ctx, conn, handle, identity, lobbyID)
	s.drain(ctx, handle, identity, lobbyID)
}

// relay reads client frames until the transport closes or an unrecoverable
// error occurs (spec.md §4.4 Relaying).
func (s *Session) relay(ctx context.Context, conn *websocket.Conn, handle, identity, lobbyID string) {
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == -1 {
				slog.WarnContext(ctx, "unrecoverable transport error, draining",
					slog.String("peer_handle", handle), slog.Any("error", err))
			}
			return
		}
		if typ != websocket.MessageText {
			slog.WarnContext(ctx, "unsupported frame type skipped", slog.String("peer_handle", handle))
			continue
		}

		isKeepAlive, msg, err := decodeClientFrame(data)
		if err != nil {
			slog.WarnContext(ctx, "unparseable client frame skipped",
				slog.String("peer_handle", handle), slog.Any("error", err))
			continue
		}
		if isKeepAlive {
			continue
		}
		if msg.Signal == nil {
			slog.WarnContext(ctx, "unsupported client frame skipped", slog.String("peer_handle", handle))
			continue
		}

		s.forward(ctx, handle, *msg.Signal)
	}
}

// forward relays a client Signal to its addressed receiver, best-effort
// (spec.md §4.4 Relaying: "a send error is logged but does not terminate
// the session").
func (s *Session) forward(ctx context.Context, senderHandle string, signal api.SignalPayload) {
	peer, ok := s.peers.get(signal.Receiver)
	if !ok {
		slog.WarnContext(ctx, "signal addressed to unknown peer",
			slog.String("sender", senderHandle), slog.String("receiver", signal.Receiver))
		return
	}
	peer.send(api.ServerMessage{
		Signal: &api.SignalPayload{
			Sender: senderHandle,
			Data:   signal.Data,
		},
	})
}

// drain performs connection-only teardown: peer-registry removal ->
// players_to_peers removal -> end-lobby check -> PeerLeft broadcast, in
// that order, so no remaining peer can receive PeerLeft(X) followed by a
// late Signal{sender: X} (spec.md §4.4 Draining, ordering guarantees).
func (s *Session) drain(ctx context.Context, handle, identity, lobbyID string) {
	s.peers.unregister(handle)
	s.registry.RemovePeer(identity)

	if !s.registry.HasConnectedMember(lobbyID) {
		s.registry.End(lobbyID)
	}

	remaining := s.registry.PeerHandlesInLobby(lobbyID)
	s.peers.broadcast(ctx, remaining, api.ServerMessage{PeerLeft: handle})

	slog.InfoContext(ctx, "peer drained",
		slog.String("lobby_id", lobbyID),
		slog.String("peer_handle", handle),
		slog.String("pubkey", truncate(identity)))
}

// decodeClientFrame distinguishes the bare JSON string "KeepAlive" from a
// {"Signal": {...}} object (spec.md §6's client-to-server protocol mixes
// both shapes on the same frame stream).
func decodeClientFrame(data []byte) (isKeepAlive bool, msg api.ClientMessage, err error) {
	var literal string
	if err := json.Unmarshal(data, &literal); err == nil {
		return literal == "KeepAlive", api.ClientMessage{}, nil
	}

	if err := json.Unmarshal(data, &msg); err != nil {
		return false, api.ClientMessage{}, err
	}
	return false, msg, nil
}

func excluding(handles []string, self string) []string {
	out := make([]string, 0, len(handles))
	for _, h := range handles {
		if h != self {
			out = append(out, h)
		}
	}
	return out
}

// ping probes connection liveness on a fixed cadence; a failed ping closes
// the socket, which unblocks the relay loop's Read with a transport error
// and drives the session into Draining (grounded on the teacher's
// connection-timeout detection idiom).
func ping(ctx context.Context, conn *websocket.Conn, handle string) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			timeoutCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			err := conn.Ping(timeoutCtx)
			cancel()
			if err != nil {
				slog.WarnContext(ctx, "ping failed, closing peer", slog.String("peer_handle", handle), slog.Any("error", err))
				conn.CloseNow()
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func truncate(pubkey string) string {
	if len(pubkey) <= 8 {
		return pubkey
	}
	return pubkey[:8]
}
