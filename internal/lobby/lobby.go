// Package lobby implements the lobby registry (C3, spec.md §4.3): an
// in-memory table of lobbies plus the cross-indexes that must stay
// consistent with it.
package lobby

import "sevenquiz-backend/api"

// Status mirrors api.LobbyStatus to keep this package independent of the
// wire layer; handlers translate at the boundary.
type Status string

const (
	StatusWaiting    Status = "Waiting"
	StatusInProgress Status = "InProgress"
)

func (s Status) wire() api.LobbyStatus {
	return api.LobbyStatus(s)
}

// Lobby is a set of Identities intending to play together, with an owner,
// a status, and visibility rules (spec.md §3). Fields are unexported: all
// mutation goes through Registry so the cross-indexes never drift out of
// sync with a Lobby's own state.
type Lobby struct {
	id        string
	owner     string
	players   map[string]struct{}
	status    Status
	isPrivate bool
	whitelist map[string]struct{} // nil means "no whitelist set"
}

func (l *Lobby) ID() string      { return l.id }
func (l *Lobby) Owner() string   { return l.owner }
func (l *Lobby) Status() Status  { return l.status }
func (l *Lobby) IsPrivate() bool { return l.isPrivate }

func (l *Lobby) hasPlayer(identity string) bool {
	_, ok := l.players[identity]
	return ok
}

func (l *Lobby) inWhitelist(identity string) bool {
	if l.whitelist == nil {
		return false
	}
	_, ok := l.whitelist[identity]
	return ok
}

// toAPI renders the lobby's current snapshot into its wire representation.
// Called under the registry's read lock, so the view is consistent.
func (l *Lobby) toAPI() api.Lobby {
	players := make([]string, 0, len(l.players))
	for p := range l.players {
		players = append(players, p)
	}

	out := api.Lobby{
		ID:        l.id,
		Owner:     l.owner,
		Players:   players,
		Status:    l.status.wire(),
		IsPrivate: l.isPrivate,
	}
	if l.whitelist != nil {
		whitelist := make([]string, 0, len(l.whitelist))
		for w := range l.whitelist {
			whitelist = append(whitelist, w)
		}
		out.Whitelist = whitelist
	}
	return out
}
