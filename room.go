// Partydeck Card Game
//
// A group of players shares a room identified by a short game code. The
// host picks a question pack, and the room steps through a shuffled deck
// of prompt cards together.
//
// Features:
// - WebSockets per game code: /cards/:gamecode and /cards/:gamecode/ws
// - Players carry a persistent ID, so a seat survives tab refreshes and
//   brief network loss; the first joiner becomes host
// - Host failover: when the host disconnects, the longest-seated connected
//   player is promoted
// - Host picks packs, changes settings, starts/ends games, kicks players
// - Card navigation open to everyone when host-only controls are off
// - Disconnected seats are held for a grace period before removal
// - Rooms auto-reaped after a configurable idle timeout
// - In-browser QR button to share the current game, backed by go-qrcode

package main

import (
	"encoding/json"
	"math/rand"
	"sync"
	"time"
)

// GameSettings is the room's rule set. TimerSeconds is nil when no
// countdown is configured. DiceCount only matters for dice-variant packs.
type GameSettings struct {
	TimerSeconds     *int `json:"timerSeconds"`
	ShuffleEnabled   bool `json:"shuffleEnabled"`
	AllowSkip        bool `json:"allowSkip"`
	HostOnlyControls bool `json:"hostOnlyControls"`
	DiceCount        int  `json:"diceCount"`
}

func defaultSettings() GameSettings {
	return GameSettings{
		ShuffleEnabled:   true,
		AllowSkip:        true,
		HostOnlyControls: true,
		DiceCount:        1,
	}
}

// SettingsPatch is a partial settings update; only non-nil fields merge.
type SettingsPatch struct {
	TimerSeconds     *int  `json:"timerSeconds,omitempty"`
	ShuffleEnabled   *bool `json:"shuffleEnabled,omitempty"`
	AllowSkip        *bool `json:"allowSkip,omitempty"`
	HostOnlyControls *bool `json:"hostOnlyControls,omitempty"`
	DiceCount        *int  `json:"diceCount,omitempty"`
}

func (s *GameSettings) apply(patch SettingsPatch) {
	if patch.TimerSeconds != nil {
		s.TimerSeconds = patch.TimerSeconds
	}
	if patch.ShuffleEnabled != nil {
		s.ShuffleEnabled = *patch.ShuffleEnabled
	}
	if patch.AllowSkip != nil {
		s.AllowSkip = *patch.AllowSkip
	}
	if patch.HostOnlyControls != nil {
		s.HostOnlyControls = *patch.HostOnlyControls
	}
	if patch.DiceCount != nil {
		s.DiceCount = *patch.DiceCount
	}
}

// roomEvent is the sealed set of messages a Room's loop processes. A single
// inbox keeps connect/command/disconnect ordering per connection, and makes
// every handler atomic with respect to the others.
type roomEvent interface{ isRoomEvent() }

type connectEvent struct{ client *client }

type disconnectEvent struct{ client *client }

type commandEvent struct {
	client *client
	data   []byte
}

// expiryEvent fires when a disconnected player's grace period elapses. The
// loop re-checks the connected flag before acting, so a reconnect within
// the grace period needs no timer cancellation.
type expiryEvent struct{ playerID string }

// queryEvent reflects internal state without data races; used by tests and
// as an ordering barrier.
type queryEvent struct{ reply chan RoomView }

func (connectEvent) isRoomEvent()    {}
func (disconnectEvent) isRoomEvent() {}
func (commandEvent) isRoomEvent()    {}
func (expiryEvent) isRoomEvent()     {}
func (queryEvent) isRoomEvent()      {}

// RoomView is a read-only reflection of room state for queryEvent.
type RoomView struct {
	Snapshot   GameSnapshot
	NumClients int
}

// Room owns all state for one game code. Its run loop is the only
// goroutine that touches that state, so handlers never lock; everything
// external talks to it through events.
type Room struct {
	cfg  *Config
	code string

	roster  *roster
	clients map[string]*client // connection ID -> transport

	packID    string
	packName  string
	questions []string
	cardIndex int
	settings  GameSettings
	status    phase
	hostID    string
	createdAt time.Time

	gracePeriod time.Duration

	events chan roomEvent
	stop   chan struct{}

	mu         sync.RWMutex // guards lastActive for the reaper
	lastActive time.Time
}

func newRoom(cfg *Config, code string) *Room {
	now := time.Now()
	return &Room{
		cfg:         cfg,
		code:        code,
		roster:      newRoster(),
		clients:     make(map[string]*client),
		settings:    defaultSettings(),
		status:      phaseLobby,
		createdAt:   now,
		gracePeriod: cfg.gracePeriod,
		events:      make(chan roomEvent, 64),
		stop:        make(chan struct{}),
		lastActive:  now,
	}
}

// post delivers an event to the loop unless the room has been stopped.
func (rm *Room) post(e roomEvent) {
	select {
	case rm.events <- e:
	case <-rm.stop:
	}
}

func (rm *Room) touch() {
	rm.mu.Lock()
	rm.lastActive = time.Now()
	rm.mu.Unlock()
}

func (rm *Room) idleSince() time.Time {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return rm.lastActive
}

func (rm *Room) run() {
	for {
		select {
		case <-rm.stop:
			for connID, c := range rm.clients {
				delete(rm.clients, connID)
				close(c.send)
			}
			return

		case e := <-rm.events:
			rm.touch()

			switch ev := e.(type) {
			case connectEvent:
				// Seat assignment waits for the join command.
				rm.clients[ev.client.connID] = ev.client

			case disconnectEvent:
				rm.handleDisconnect(ev.client)

			case commandEvent:
				rm.handleCommand(ev.client, ev.data)

			case expiryEvent:
				rm.handleExpiry(ev.playerID)

			case queryEvent:
				ev.reply <- RoomView{Snapshot: rm.snapshot(), NumClients: len(rm.clients)}
			}
		}
	}
}

// snapshot deep-copies the deck and player list: outbound messages are
// marshaled on writer goroutines after the loop has moved on, so they must
// not share backing arrays with live state.
func (rm *Room) snapshot() GameSnapshot {
	return GameSnapshot{
		GameCode:          rm.code,
		PackID:            rm.packID,
		PackName:          rm.packName,
		Players:           rm.roster.ordered(),
		CurrentCardIndex:  rm.cardIndex,
		ShuffledQuestions: append([]string(nil), rm.questions...),
		Settings:          rm.settings,
		Status:            rm.status,
		HostID:            rm.hostID,
		PlayerCount:       rm.roster.size(),
	}
}

func (rm *Room) stateSync(recipientID string) StateSyncMessage {
	return StateSyncMessage{Type: "state-sync", State: rm.snapshot(), YourPlayerID: recipientID}
}

// deliver sends to one player's transport. A full outbox means the client
// can't keep up; it is dropped, and the resulting close surfaces as a
// normal disconnect. A failed delivery never blocks the rest of a
// broadcast.
func (rm *Room) deliver(p *Player, msg any) {
	c := rm.clients[p.ConnectionID]
	if c == nil {
		return
	}

	select {
	case c.send <- msg:
	default:
		delete(rm.clients, p.ConnectionID)
		close(c.send)
	}
}

// reply answers the originating connection directly, whether or not it has
// a seat yet.
func (rm *Room) reply(c *client, msg any) {
	if cur, ok := rm.clients[c.connID]; !ok || cur != c {
		return
	}

	select {
	case c.send <- msg:
	default:
	}
}

func (rm *Room) broadcast(msg any) {
	rm.broadcastExcept(msg, "")
}

func (rm *Room) broadcastExcept(msg any, exceptID string) {
	for _, p := range rm.roster.players {
		if !p.IsConnected || p.ID == exceptID {
			continue
		}
		rm.deliver(p, msg)
	}
}

func (rm *Room) isHost(playerID string) bool {
	return rm.hostID == playerID && playerID != ""
}

// canControl reports whether playerID may navigate or shuffle cards: the
// host always can, everyone can when host-only controls are off.
func (rm *Room) canControl(playerID string) bool {
	if !rm.settings.HostOnlyControls {
		return true
	}
	return rm.isHost(playerID)
}

// reelectHost promotes the first connected player by join order, demoting
// everyone else in the same step. With nobody connected the room has no
// host until someone returns.
func (rm *Room) reelectHost() {
	rm.hostID = electHost(rm.roster.players)
	for _, p := range rm.roster.players {
		p.IsHost = p.ID == rm.hostID
	}
}

func shuffleQuestions(questions []string) {
	rand.Shuffle(len(questions), func(i, j int) {
		questions[i], questions[j] = questions[j], questions[i]
	})
}

func (rm *Room) handleCommand(c *client, data []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil || !knownCommand(msg.Type) {
		rm.reply(c, ErrorMessage{Type: "error", Message: "Invalid message format"})
		return
	}

	if msg.Type == msgJoin {
		rm.handleJoin(c, msg)
		return
	}

	// Every other command requires a seated, connected caller. Unresolved
	// connections and unauthorized or phase-illegal requests are dropped
	// without feedback.
	p := rm.roster.resolve(c.connID)
	if p == nil {
		return
	}

	switch msg.Type {
	case msgSelectPack:
		rm.handleSelectPack(p, msg)
	case msgUpdateSettings:
		rm.handleUpdateSettings(p, msg)
	case msgStartGame:
		rm.handleStartGame(p)
	case msgNextCard:
		rm.handleMoveCard(p, 1)
	case msgPrevCard:
		rm.handleMoveCard(p, -1)
	case msgShuffle:
		rm.handleShuffle(p)
	case msgEndGame:
		rm.handleEndGame(p)
	case msgKickPlayer:
		rm.handleKick(p, msg.PlayerID)
	case msgSyncRequest:
		rm.reply(c, rm.stateSync(p.ID))
	}
}

func (rm *Room) handleJoin(c *client, msg ClientMessage) {
	if msg.PlayerID == "" {
		return
	}

	p, created := rm.roster.upsert(msg.PlayerID, c.connID, msg.Nickname, msg.Avatar)

	if created && rm.roster.size() == 1 {
		p.IsHost = true
		rm.hostID = p.ID
	}

	// A rejoining host keeps the seat, but a returning non-host never
	// displaces whoever was promoted in their absence.
	if cur := rm.roster.get(rm.hostID); cur == nil || !cur.IsConnected {
		rm.reelectHost()
	}

	if created {
		logf(rm.cfg, "GAMES: Player %q joined %s (%d players)", p.Nickname, rm.code, rm.roster.size())
	} else {
		logf(rm.cfg, "GAMES: Player %q reconnected to %s", p.Nickname, rm.code)
	}

	rm.broadcastExcept(PlayerJoinedMessage{Type: "player-joined", Player: *p}, p.ID)
	rm.reply(c, rm.stateSync(p.ID))
}

func (rm *Room) handleSelectPack(p *Player, msg ClientMessage) {
	if !rm.isHost(p.ID) || !rm.status.canConfigure() {
		return
	}

	questions := append([]string(nil), msg.Questions...)
	if rm.settings.ShuffleEnabled {
		shuffleQuestions(questions)
	}

	rm.packID = msg.PackID
	rm.packName = msg.PackName
	rm.questions = questions
	rm.cardIndex = 0
	rm.status = phaseLobby

	logf(rm.cfg, "GAMES: Pack %q selected in %s (%d cards)", msg.PackName, rm.code, len(questions))

	rm.broadcast(rm.stateSync(""))
}

func (rm *Room) handleUpdateSettings(p *Player, msg ClientMessage) {
	if !rm.isHost(p.ID) || !rm.status.canConfigure() {
		return
	}

	if msg.Settings != nil {
		rm.settings.apply(*msg.Settings)
	}
	rm.status = phaseLobby

	rm.broadcast(rm.stateSync(""))
}

func (rm *Room) handleStartGame(p *Player) {
	if !rm.isHost(p.ID) || !rm.status.canConfigure() || rm.packID == "" {
		return
	}

	rm.status = phasePlaying
	rm.cardIndex = 0
	if rm.settings.ShuffleEnabled {
		shuffleQuestions(rm.questions)
	}

	logf(rm.cfg, "GAMES: Game started in %s", rm.code)

	rm.broadcast(GameStartedMessage{Type: "game-started"})
	rm.broadcast(rm.stateSync(""))
}

// handleMoveCard steps the cursor by delta, clamped to the deck: stepping
// past either end changes nothing and emits nothing.
func (rm *Room) handleMoveCard(p *Player, delta int) {
	if !rm.canControl(p.ID) || rm.status != phasePlaying {
		return
	}

	next := rm.cardIndex + delta
	if next < 0 || next >= len(rm.questions) {
		return
	}

	rm.cardIndex = next
	rm.broadcast(CardChangedMessage{Type: "card-changed", Index: rm.cardIndex})
}

func (rm *Room) handleShuffle(p *Player) {
	if !rm.canControl(p.ID) || rm.status != phasePlaying {
		return
	}

	shuffleQuestions(rm.questions)
	rm.cardIndex = 0

	rm.broadcast(rm.stateSync(""))
}

func (rm *Room) handleEndGame(p *Player) {
	if !rm.isHost(p.ID) || rm.status != phasePlaying {
		return
	}

	rm.status = phaseFinished

	logf(rm.cfg, "GAMES: Game ended in %s", rm.code)

	rm.broadcast(GameEndedMessage{Type: "game-ended"})
	rm.broadcast(rm.stateSync(""))
}

func (rm *Room) handleKick(caller *Player, targetID string) {
	if !rm.isHost(caller.ID) || targetID == caller.ID {
		return
	}

	target := rm.roster.get(targetID)
	if target == nil {
		return
	}

	if target.IsConnected {
		if c := rm.clients[target.ConnectionID]; c != nil {
			rm.reply(c, KickedMessage{Type: "you-were-kicked"})
			delete(rm.clients, target.ConnectionID)
			close(c.send)
		}
	}

	rm.roster.remove(targetID)

	logf(rm.cfg, "GAMES: Player %q kicked from %s", target.Nickname, rm.code)

	rm.broadcast(rm.stateSync(""))
}

// handleDisconnect marks the seat empty, notifies the remaining players,
// promotes a new host if needed, and arms the grace-period removal.
func (rm *Room) handleDisconnect(c *client) {
	if cur, ok := rm.clients[c.connID]; ok && cur == c {
		delete(rm.clients, c.connID)
		close(c.send)
	}

	p := rm.roster.markDisconnected(c.connID)
	if p == nil {
		return
	}

	logf(rm.cfg, "GAMES: Player %q disconnected from %s", p.Nickname, rm.code)

	rm.broadcast(PlayerLeftMessage{Type: "player-left", PlayerID: p.ID})

	if p.ID == rm.hostID {
		rm.reelectHost()
		rm.broadcast(rm.stateSync(""))
	}

	playerID := p.ID
	time.AfterFunc(rm.gracePeriod, func() {
		rm.post(expiryEvent{playerID: playerID})
	})
}

// handleExpiry permanently removes a seat whose grace period ran out. The
// disconnected flag is re-checked here: a reconnect in the meantime rebinds
// the seat, and the fired timer becomes a no-op.
func (rm *Room) handleExpiry(playerID string) {
	p := rm.roster.get(playerID)
	if p == nil || p.IsConnected {
		return
	}

	rm.roster.remove(playerID)
	if rm.hostID == playerID {
		rm.reelectHost()
	}

	logf(rm.cfg, "GAMES: Player %q timed out of %s", p.Nickname, rm.code)

	rm.broadcast(rm.stateSync(""))
}
