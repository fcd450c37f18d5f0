// Wire format for the card game.
//
// Clients send a single JSON object per message, discriminated by "type".
// The server replies with one struct per event type; any state-bearing
// event carries the full serialized room snapshot so every receiver can
// rebuild an identical view, no matter which point events it missed.

package main

// Commands accepted from clients.
const (
	msgJoin           = "join"
	msgSelectPack     = "select-pack"
	msgUpdateSettings = "update-settings"
	msgStartGame      = "start-game"
	msgNextCard       = "next-card"
	msgPrevCard       = "prev-card"
	msgShuffle        = "shuffle"
	msgEndGame        = "end-game"
	msgKickPlayer     = "kick-player"
	msgSyncRequest    = "sync-request"
)

// ClientMessage is the inbound envelope. Fields beyond Type are only
// meaningful for the commands that name them.
type ClientMessage struct {
	Type      string         `json:"type"`
	PlayerID  string         `json:"playerId,omitempty"` // join (self), kick-player (target)
	Nickname  string         `json:"nickname,omitempty"` // join
	Avatar    string         `json:"avatar,omitempty"`   // join
	PackID    string         `json:"packId,omitempty"`   // select-pack
	PackName  string         `json:"packName,omitempty"` // select-pack
	Questions []string       `json:"questions,omitempty"`
	Settings  *SettingsPatch `json:"settings,omitempty"` // update-settings
}

func knownCommand(t string) bool {
	switch t {
	case msgJoin, msgSelectPack, msgUpdateSettings, msgStartGame,
		msgNextCard, msgPrevCard, msgShuffle, msgEndGame,
		msgKickPlayer, msgSyncRequest:
		return true
	}
	return false
}

// GameSnapshot is the serialized room state. Players are an ordered
// sequence (join order), never a map, so all clients render the same list.
type GameSnapshot struct {
	GameCode          string       `json:"gameCode"`
	PackID            string       `json:"packId"`
	PackName          string       `json:"packName"`
	Players           []Player     `json:"players"`
	CurrentCardIndex  int          `json:"currentCardIndex"`
	ShuffledQuestions []string     `json:"shuffledQuestions"`
	Settings          GameSettings `json:"settings"`
	Status            phase        `json:"status"`
	HostID            string       `json:"hostId"`
	PlayerCount       int          `json:"playerCount"`
}

// StateSyncMessage carries the full snapshot. YourPlayerID is the
// recipient's persistent ID when addressed, or empty on broadcasts.
type StateSyncMessage struct {
	Type         string       `json:"type"` // "state-sync"
	State        GameSnapshot `json:"state"`
	YourPlayerID string       `json:"yourPlayerId"`
}

type PlayerJoinedMessage struct {
	Type   string `json:"type"` // "player-joined"
	Player Player `json:"player"`
}

type PlayerLeftMessage struct {
	Type     string `json:"type"` // "player-left"
	PlayerID string `json:"playerId"`
}

type GameStartedMessage struct {
	Type string `json:"type"` // "game-started"
}

type CardChangedMessage struct {
	Type  string `json:"type"` // "card-changed"
	Index int    `json:"index"`
}

type GameEndedMessage struct {
	Type string `json:"type"` // "game-ended"
}

type ErrorMessage struct {
	Type    string `json:"type"` // "error"
	Message string `json:"message"`
}

type KickedMessage struct {
	Type string `json:"type"` // "you-were-kicked"
}
