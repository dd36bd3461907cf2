package lobby

import (
	"log/slog"
	"sync"

	"sevenquiz-backend/api"

	"github.com/lithammer/shortuuid/v3"
)

// Registry is the in-memory lobby table plus its cross-indexes
// (spec.md §3, §4.3, §5). The lobby table and playersInLobbies each have
// their own lock; waitingPlayers, playersToPeers and peersToPlayers share
// peerMu. Callers that need more than one lock acquire them in the fixed
// order lobbies -> playersInLobbies -> peer tables, which is
// also the order the signaling package follows, so no call path can
// deadlock against another.
type Registry struct {
	mu      sync.RWMutex
	lobbies map[string]*Lobby

	indexMu          sync.Mutex
	playersInLobbies map[string]string // identity -> lobby id

	peerMu         sync.Mutex
	waitingPlayers map[string]string // client address -> identity
	playersToPeers map[string]string // identity -> peer handle
	peersToPlayers map[string]string // peer handle -> identity (reverse index)
}

func NewRegistry() *Registry {
	return &Registry{
		lobbies:          make(map[string]*Lobby),
		playersInLobbies: make(map[string]string),
		waitingPlayers:   make(map[string]string),
		playersToPeers:   make(map[string]string),
		peersToPlayers:   make(map[string]string),
	}
}

// Kind re-exports the domain error kinds used by this package's operations,
// so handlers don't need to import both lobby and api for error mapping.
type Kind = api.ErrorCode

const (
	KindConflict  = api.ErrAlreadyInLobby
	KindNotFound  = api.ErrLobbyNotFound
	KindForbidden = api.ErrNotInWhitelist
	KindNotOwner  = api.ErrNotOwner
)

// OpError is returned by Registry operations; handlers map Kind to an HTTP
// status via internal/errors.
type OpError struct {
	Kind Kind
}

func (e *OpError) Error() string { return string(e.Kind) }

func newErr(kind Kind) *OpError { return &OpError{Kind: kind} }

// Create inserts a new Lobby owned by owner, already a member, status
// Waiting. Fails with KindConflict if owner is already in a lobby
// (spec.md §4.3 create, invariant 1).
func (r *Registry) Create(owner string, isPrivate bool, whitelist []string) (api.Lobby, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.indexMu.Lock()
	defer r.indexMu.Unlock()

	if _, ok := r.playersInLobbies[owner]; ok {
		return api.Lobby{}, newErr(KindConflict)
	}

	id := newLobbyID()
	l := &Lobby{
		id:        id,
		owner:     owner,
		players:   map[string]struct{}{owner: {}},
		status:    StatusWaiting,
		isPrivate: isPrivate,
	}
	if len(whitelist) > 0 {
		l.whitelist = make(map[string]struct{}, len(whitelist))
		for _, w := range whitelist {
			l.whitelist[w] = struct{}{}
		}
	}

	r.lobbies[id] = l
	r.playersInLobbies[owner] = id

	slog.Info("lobby created",
		slog.String("lobby_id", id),
		slog.String("pubkey", truncatePubkey(owner)),
		slog.Bool("is_private", isPrivate))

	return l.toAPI(), nil
}

// Discover returns the lobbies viewer is allowed to see (spec.md §4.3).
func (r *Registry) Discover(viewer string) []api.Lobby {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []api.Lobby{}
	for _, l := range r.lobbies {
		if r.visible(l, viewer) {
			out = append(out, l.toAPI())
		}
	}
	return out
}

func (r *Registry) visible(l *Lobby, viewer string) bool {
	if !l.isPrivate && l.status == StatusWaiting {
		return true
	}
	if viewer == "" {
		return false
	}
	if l.hasPlayer(viewer) {
		return true
	}
	return l.isPrivate && l.inWhitelist(viewer)
}

// Join adds identity to lobbyID's players, enforcing idempotent rejoin,
// one-lobby-per-player, the Waiting-only gate, and whitelist gating
// (spec.md §4.3 join).
func (r *Registry) Join(lobbyID, identity string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.indexMu.Lock()
	defer r.indexMu.Unlock()

	if current, ok := r.playersInLobbies[identity]; ok {
		if current == lobbyID {
			return nil // idempotent rejoin
		}
		return newErr(KindConflict)
	}

	l, ok := r.lobbies[lobbyID]
	if !ok || l.status != StatusWaiting {
		// The spec deliberately conflates "absent" and "started" here.
		return newErr(KindNotFound)
	}

	// A private lobby with no whitelist admits no one until the owner invites.
	if (l.whitelist != nil || l.isPrivate) && !l.inWhitelist(identity) {
		return newErr(KindForbidden)
	}

	l.players[identity] = struct{}{}
	r.playersInLobbies[identity] = lobbyID

	slog.Info("player joined lobby",
		slog.String("lobby_id", lobbyID),
		slog.String("pubkey", truncatePubkey(identity)))

	return nil
}

// Leave removes identity from lobbyID's players. No-op if absent.
func (r *Registry) Leave(lobbyID, identity string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.indexMu.Lock()
	defer r.indexMu.Unlock()

	r.leaveLocked(lobbyID, identity)
}

func (r *Registry) leaveLocked(lobbyID, identity string) {
	l, ok := r.lobbies[lobbyID]
	if !ok {
		return
	}
	if !l.hasPlayer(identity) {
		return
	}
	delete(l.players, identity)
	delete(r.playersInLobbies, identity)

	slog.Info("player left lobby",
		slog.String("lobby_id", lobbyID),
		slog.String("pubkey", truncatePubkey(identity)))
}

// Delete removes lobbyID if caller owns it; otherwise it behaves exactly
// like Leave(lobbyID, caller) — the DELETE endpoint is polymorphic on
// ownership (spec.md §4.3 delete).
func (r *Registry) Delete(lobbyID, caller string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.indexMu.Lock()
	defer r.indexMu.Unlock()

	l, ok := r.lobbies[lobbyID]
	if !ok {
		return newErr(KindNotFound)
	}

	if l.owner != caller {
		r.leaveLocked(lobbyID, caller)
		return nil
	}

	for player := range l.players {
		delete(r.playersInLobbies, player)
	}
	delete(r.lobbies, lobbyID)

	slog.Info("lobby deleted",
		slog.String("lobby_id", lobbyID),
		slog.String("pubkey", truncatePubkey(caller)))

	return nil
}

// Invite unions identities into lobbyID's whitelist, creating it if absent.
// Only the owner may invite (spec.md §4.3 invite).
func (r *Registry) Invite(lobbyID, caller string, identities []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.lobbies[lobbyID]
	if !ok {
		return newErr(KindNotFound)
	}
	if l.owner != caller {
		return newErr(KindNotOwner)
	}

	if l.whitelist == nil {
		l.whitelist = make(map[string]struct{}, len(identities))
	}
	for _, id := range identities {
		l.whitelist[id] = struct{}{}
	}

	slog.Info("lobby invite",
		slog.String("lobby_id", lobbyID),
		slog.String("pubkey", truncatePubkey(caller)),
		slog.Int("invited", len(identities)))

	return nil
}

// Start transitions lobbyID to InProgress if caller owns it and it is
// currently Waiting. No-op if already InProgress (spec.md §4.3 start).
func (r *Registry) Start(lobbyID, caller string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.lobbies[lobbyID]
	if !ok {
		return newErr(KindNotFound)
	}
	if l.owner != caller {
		return newErr(KindNotOwner)
	}
	if l.status == StatusWaiting {
		l.status = StatusInProgress
		slog.Info("lobby started", slog.String("lobby_id", lobbyID))
	}
	return nil
}

// End transitions lobbyID back to Waiting if it is InProgress. Idempotent;
// a missing lobby is silently ignored since End is driven by the signaling
// machine's teardown path, which has no caller to report an error to
// (spec.md §4.3 end, §4.4 Draining).
func (r *Registry) End(lobbyID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.lobbies[lobbyID]
	if !ok {
		return
	}
	if l.status == StatusInProgress {
		l.status = StatusWaiting
		slog.Info("lobby ended", slog.String("lobby_id", lobbyID))
	}
}

// Get returns the wire representation of lobbyID, if it exists.
func (r *Registry) Get(lobbyID string) (api.Lobby, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	l, ok := r.lobbies[lobbyID]
	if !ok {
		return api.Lobby{}, false
	}
	return l.toAPI(), true
}

// LobbyOf returns the lobby id identity currently belongs to, if any
// (spec.md §4.4 Correlated step: players_in_lobbies[identity]).
func (r *Registry) LobbyOf(identity string) (string, bool) {
	r.indexMu.Lock()
	defer r.indexMu.Unlock()

	id, ok := r.playersInLobbies[identity]
	return id, ok
}

// OwnerOf returns lobbyID's current owner, used by the signaling machine
// to decide whether a newly-enrolled peer should trigger Start.
func (r *Registry) OwnerOf(lobbyID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	l, ok := r.lobbies[lobbyID]
	if !ok {
		return "", false
	}
	return l.owner, true
}

// StatusOf returns lobbyID's current status.
func (r *Registry) StatusOf(lobbyID string) (Status, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	l, ok := r.lobbies[lobbyID]
	if !ok {
		return "", false
	}
	return l.status, true
}

// EnterWaiting records that a just-authorized socket from clientAddr
// belongs to identity, pending peer-handle assignment (spec.md §4.4
// Handshake).
func (r *Registry) EnterWaiting(clientAddr, identity string) {
	r.peerMu.Lock()
	defer r.peerMu.Unlock()
	r.waitingPlayers[clientAddr] = identity
	slog.Debug("handshake pending correlation",
		slog.String("pubkey", truncatePubkey(identity)),
		slog.Int("waiting_players_count", len(r.waitingPlayers)))
}

// AssignPeer moves clientAddr's pending entry into players_to_peers under
// peerHandle, returning the Identity it was waiting for. ok is false if no
// entry was found — spec.md §4.4 step 2 says to log and discard in that
// case; the socket is then dropped when correlation fails.
func (r *Registry) AssignPeer(clientAddr, peerHandle string) (identity string, ok bool) {
	r.peerMu.Lock()
	defer r.peerMu.Unlock()

	identity, ok = r.waitingPlayers[clientAddr]
	if !ok {
		return "", false
	}
	delete(r.waitingPlayers, clientAddr)
	r.playersToPeers[identity] = peerHandle
	r.peersToPlayers[peerHandle] = identity
	return identity, true
}

// IdentityByPeer reverse-looks-up players_to_peers by peer handle, the step
// the session task performs to recover its own Identity after assignment
// (spec.md §4.4 step 3, Correlated).
func (r *Registry) IdentityByPeer(peerHandle string) (string, bool) {
	r.peerMu.Lock()
	defer r.peerMu.Unlock()
	identity, ok := r.peersToPlayers[peerHandle]
	return identity, ok
}

// RemovePeer drops identity's players_to_peers entry, if any. It never
// touches players_in_lobbies: connection-only teardown must not evict
// lobby membership (spec.md §4.4 Draining).
func (r *Registry) RemovePeer(identity string) {
	r.peerMu.Lock()
	defer r.peerMu.Unlock()

	handle, ok := r.playersToPeers[identity]
	if !ok {
		return
	}
	delete(r.playersToPeers, identity)
	delete(r.peersToPlayers, handle)
}

// HasConnectedMember reports whether any player of lobbyID still has a live
// peer handle. Used by Draining to decide whether to end the lobby.
func (r *Registry) HasConnectedMember(lobbyID string) bool {
	return len(r.PeerHandlesInLobby(lobbyID)) > 0
}

// PeerHandlesInLobby returns the peer handles of lobbyID's members that
// currently have an active socket, for fan-out broadcasts.
func (r *Registry) PeerHandlesInLobby(lobbyID string) []string {
	r.mu.RLock()
	l, ok := r.lobbies[lobbyID]
	var players []string
	if ok {
		players = make([]string, 0, len(l.players))
		for p := range l.players {
			players = append(players, p)
		}
	}
	r.mu.RUnlock()

	if !ok {
		return nil
	}

	r.peerMu.Lock()
	defer r.peerMu.Unlock()
	handles := make([]string, 0, len(players))
	for _, p := range players {
		if h, ok := r.playersToPeers[p]; ok {
			handles = append(handles, h)
		}
	}
	return handles
}

func newLobbyID() string {
	return shortuuid.New()
}

func truncatePubkey(pubkey string) string {
	if len(pubkey) <= 8 {
		return pubkey
	}
	return pubkey[:8]
}
