package main

import (
	"fmt"
	"math/rand"
	"time"
)

// Player is a participant's seat in a room. ID is the persistent identity
// the client holds across reconnects; ConnectionID is whichever transport
// connection currently carries them, and is cleared on disconnect.
type Player struct {
	ID           string `json:"id"`
	ConnectionID string `json:"connectionId"`
	Nickname     string `json:"nickname"`
	Avatar       string `json:"avatar"`
	IsHost       bool   `json:"isHost"`
	IsConnected  bool   `json:"isConnected"`
	JoinedAt     int64  `json:"joinedAt"`
}

var avatars = []string{
	"🦩", "🦜", "🦚", "🦢", "🐧", "🦆", "🦅", "🦉", "🐦", "🐤",
	"🦋", "🐝", "🌸", "🌺", "🌻", "🌼", "🍀", "🌈", "⭐", "🌙",
}

// roster tracks a room's players in join order, with two derived indexes:
// persistent ID -> player and connection ID -> player. Every mutation keeps
// the connection index consistent with Player.ConnectionID, so a stale
// connection can never resolve to a seat.
type roster struct {
	players []*Player
	byID    map[string]*Player
	byConn  map[string]*Player
}

func newRoster() *roster {
	return &roster{
		byID:   make(map[string]*Player),
		byConn: make(map[string]*Player),
	}
}

// resolve maps a live connection to its player, or nil.
func (r *roster) resolve(connID string) *Player {
	return r.byConn[connID]
}

func (r *roster) get(playerID string) *Player {
	return r.byID[playerID]
}

func (r *roster) size() int {
	return len(r.players)
}

// upsert creates a seat for playerID, or rebinds an existing seat to a new
// connection. Display fields only change when the caller supplies them.
func (r *roster) upsert(playerID, connID, nickname, avatar string) (player *Player, created bool) {
	if p := r.byID[playerID]; p != nil {
		if p.ConnectionID != "" && p.ConnectionID != connID {
			delete(r.byConn, p.ConnectionID)
		}
		p.ConnectionID = connID
		p.IsConnected = true
		if nickname != "" {
			p.Nickname = nickname
		}
		if avatar != "" {
			p.Avatar = avatar
		}
		r.byConn[connID] = p
		return p, false
	}

	if nickname == "" {
		nickname = fmt.Sprintf("Player %d", len(r.players)+1)
	}
	if avatar == "" {
		avatar = avatars[rand.Intn(len(avatars))]
	}

	p := &Player{
		ID:           playerID,
		ConnectionID: connID,
		Nickname:     nickname,
		Avatar:       avatar,
		IsConnected:  true,
		JoinedAt:     time.Now().UnixMilli(),
	}
	r.players = append(r.players, p)
	r.byID[playerID] = p
	r.byConn[connID] = p

	return p, true
}

// markDisconnected clears the connection binding for whichever player holds
// connID. Returns the player, or nil if the connection was already unbound
// (e.g. it was replaced by a reconnect before the close arrived).
func (r *roster) markDisconnected(connID string) *Player {
	p := r.byConn[connID]
	if p == nil {
		return nil
	}

	delete(r.byConn, connID)
	p.ConnectionID = ""
	p.IsConnected = false

	return p
}

// remove deletes the seat and both index entries.
func (r *roster) remove(playerID string) *Player {
	p := r.byID[playerID]
	if p == nil {
		return nil
	}

	delete(r.byID, playerID)
	if p.ConnectionID != "" {
		delete(r.byConn, p.ConnectionID)
	}

	dst := r.players[:0]
	for _, cur := range r.players {
		if cur.ID == playerID {
			continue
		}
		dst = append(dst, cur)
	}
	r.players = dst

	return p
}

// connected returns the connected players in join order.
func (r *roster) connected() []*Player {
	out := make([]*Player, 0, len(r.players))
	for _, p := range r.players {
		if p.IsConnected {
			out = append(out, p)
		}
	}
	return out
}

// ordered returns a copy of every seat in join order, for serialization.
func (r *roster) ordered() []Player {
	out := make([]Player, 0, len(r.players))
	for _, p := range r.players {
		out = append(out, *p)
	}
	return out
}

// electHost picks the next host: the first player in join order who is
// still connected. Returns "" when nobody is connected. Strict join-order
// tie-break keeps failover deterministic.
func electHost(players []*Player) string {
	for _, p := range players {
		if p.IsConnected {
			return p.ID
		}
	}
	return ""
}
