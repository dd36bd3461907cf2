// Package signaling implements the per-socket session machine (C4,
// spec.md §4.4): handshake, correlation with a pre-registered Identity,
// enrollment into a lobby's broadcast set, and relay of opaque WebRTC
// signaling blobs between peers.
package signaling

import (
	"context"
	"log/slog"
	"sync"

	"sevenquiz-backend/api"

	"golang.org/x/sync/errgroup"
)

// outboxSize bounds each peer's send queue. A full queue drops the
// message rather than blocking the sender (spec.md §4.4 Relaying: "bounded
// send attempts ... non-blocking").
const outboxSize = 16

// Peer is the substrate's addressable unit: a socket plus its outbound
// queue, registered under its handle in a lobby's peer registry.
type Peer struct {
	handle string
	outbox chan api.ServerMessage
	done   chan struct{}
}

func newPeer(handle string) *Peer {
	return &Peer{
		handle: handle,
		outbox: make(chan api.ServerMessage, outboxSize),
		done:   make(chan struct{}),
	}
}

// Handle returns the peer's opaque addressable id.
func (p *Peer) Handle() string { return p.handle }

// send enqueues msg for delivery, dropping it if the peer's outbox is full
// or already closed.
func (p *Peer) send(msg api.ServerMessage) {
	select {
	case p.outbox <- msg:
	default:
		slog.Warn("peer outbox full, dropping message", slog.String("peer_handle", p.handle))
	case <-p.done:
	}
}

// run drains the outbox onto the wire until ctx is canceled or the peer is
// closed. One writer goroutine per peer avoids concurrent writes to the
// same websocket connection, which the transport does not allow.
func (p *Peer) run(ctx context.Context, write func(context.Context, any) error) {
	for {
		select {
		case msg := <-p.outbox:
			if err := write(ctx, msg); err != nil {
				slog.Warn("peer send failed", slog.String("peer_handle", p.handle), slog.Any("error", err))
			}
		case <-ctx.Done():
			return
		case <-p.done:
			return
		}
	}
}

func (p *Peer) close() {
	close(p.done)
}

// Registry is the per-process "peers" cross-index (spec.md §3): the set of
// currently addressable peer handles. It is the last table in the fixed
// acquisition order (lobbies -> players_in_lobbies -> players_to_peers ->
// waiting_players -> peers).
type Registry struct {
	mu    sync.Mutex
	peers map[string]*Peer
}

func NewRegistry() *Registry {
	return &Registry{peers: make(map[string]*Peer)}
}

func (r *Registry) register(handle string) *Peer {
	peer := newPeer(handle)
	r.mu.Lock()
	r.peers[handle] = peer
	r.mu.Unlock()
	return peer
}

func (r *Registry) unregister(handle string) {
	r.mu.Lock()
	peer, ok := r.peers[handle]
	delete(r.peers, handle)
	r.mu.Unlock()
	if ok {
		peer.close()
	}
}

func (r *Registry) get(handle string) (*Peer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	peer, ok := r.peers[handle]
	return peer, ok
}

// broadcast fans msg out to every handle in handles, skipping any that are
// no longer registered. Best-effort and non-blocking per peer (spec.md
// §4.4): a missing peer is skipped silently and a message dropped on a full
// outbox is logged by send; nothing is returned to the caller.
func (r *Registry) broadcast(ctx context.Context, handles []string, msg api.ServerMessage) {
	eg, _ := errgroup.WithContext(ctx)
	for _, handle := range handles {
		peer, ok := r.get(handle)
		if !ok {
			continue
		}
		eg.Go(func() error {
			peer.send(msg)
			return nil
		})
	}
	_ = eg.Wait()
}
