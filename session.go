package main

import (
	"crypto/rand"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"
)

// client is one live websocket connection. The room loop owns the send
// channel: it alone closes it, and writePump drains it until then.
type client struct {
	conn   *websocket.Conn
	send   chan any
	connID string
}

func (c *client) readPump(rm *Room) {
	defer func() {
		rm.post(disconnectEvent{client: c})
		_ = c.conn.Close()
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		rm.post(commandEvent{client: c, data: data})
	}
}

func (c *client) writePump() {
	defer c.conn.Close()

	for msg := range c.send {
		if err := c.conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// RoomManager holds the room for each active game code. Rooms are created
// lazily on first connection, under the lock, so near-simultaneous first
// connections for a new code always land in the same room. Connecting with
// an existing code joins that room; codes are not reserved.
type RoomManager struct {
	mu          sync.Mutex
	cfg         *Config
	rooms       map[string]*Room
	idleTimeout time.Duration
}

func newRoomManager(cfg *Config) *RoomManager {
	m := &RoomManager{
		cfg:         cfg,
		rooms:       make(map[string]*Room),
		idleTimeout: cfg.sessionTimeout,
	}
	if m.idleTimeout > 0 {
		go m.reaperLoop()
	}
	return m
}

func (m *RoomManager) room(code string) *Room {
	m.mu.Lock()
	defer m.mu.Unlock()

	if rm, ok := m.rooms[code]; ok {
		return rm
	}

	rm := newRoom(m.cfg, code)
	m.rooms[code] = rm
	go rm.run()
	return rm
}

const gameCodeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

const gameCodeLength = 6

// newGameCode generates a crypto-random game code and ensures it doesn't
// collide with a live room. The alphabet skips lookalike characters since
// codes get read out loud.
func (m *RoomManager) newGameCode() string {
	for {
		buf := make([]byte, gameCodeLength)
		if _, err := rand.Read(buf); err != nil {
			panic("crypto/rand failure: " + err.Error())
		}
		out := make([]byte, gameCodeLength)
		for i := range out {
			out[i] = gameCodeAlphabet[int(buf[i])%len(gameCodeAlphabet)]
		}
		code := string(out)

		m.mu.Lock()
		_, exists := m.rooms[code]
		m.mu.Unlock()

		if !exists {
			return code
		}
	}
}

// reaperLoop periodically removes rooms that have been idle longer than
// idleTimeout. Stopping a room closes every client it still holds.
func (m *RoomManager) reaperLoop() {
	ticker := time.NewTicker(m.idleTimeout / 2)
	for range ticker.C {
		cutoff := time.Now().Add(-m.idleTimeout)

		m.mu.Lock()
		for code, rm := range m.rooms {
			if rm.idleSince().Before(cutoff) {
				delete(m.rooms, code)
				close(rm.stop)
				logf(m.cfg, "GAMES: Reaped idle game %s", code)
			}
		}
		m.mu.Unlock()
	}
}

// serveGameSocket upgrades the connection, hands it a fresh transient
// connection ID, and runs the pumps. Seat assignment happens later, when
// the client sends its join command with its persistent player ID.
func serveGameSocket(cfg *Config, m *RoomManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		code := ps.ByName("gamecode")
		if code == "" {
			http.Error(w, "missing game code", http.StatusBadRequest)
			return
		}

		rm := m.room(code)

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Println("upgrade error:", err)
			return
		}

		c := &client{
			conn:   conn,
			send:   make(chan any, 8),
			connID: uuid.NewString(),
		}

		logf(cfg, "GAMES: Connection %s to %s from %s", c.connID, code, realIP(r))

		rm.post(connectEvent{client: c})

		go c.writePump()
		c.readPump(rm)
	}
}

func serveGamePage(cfg *Config) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		securityHeaders(cfg, w)

		_, _ = w.Write([]byte(newPage("partydeck", "Game "+ps.ByName("gamecode"))))
	}
}

// qrHandler generates a PNG QR code for the current game URL using go-qrcode.
func qrHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	gameCode := ps.ByName("gamecode")
	if gameCode == "" {
		http.Error(w, "missing game code", http.StatusBadRequest)
		return
	}

	// Derive scheme (respecting TLS and X-Forwarded-Proto if present).
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}

	// We are at /.../:gamecode/qr; strip trailing "/qr" to get the game URL.
	path := strings.TrimSuffix(r.URL.Path, "/qr")

	url := scheme + "://" + r.Host + path

	const qrSize = 320 // mobile-friendly size
	png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
	if err != nil {
		http.Error(w, "qr generation failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(png)
}

// redirectNewGame handles GET /path by generating a new random game code
// (with server-side collision detection) and redirecting to /path/:gamecode.
func redirectNewGame(cfg *Config, path string, m *RoomManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		code := m.newGameCode()
		logf(cfg, "GAMES: Created game %s/%s", path, code)
		http.Redirect(w, r, cfg.prefix+path+"/"+code, http.StatusTemporaryRedirect)
	}
}

// registerCardGame sets up routes so that:
//   - $path                    → redirects to a new random game code
//   - $path/:gamecode          → HTML landing page
//   - $path/:gamecode/ws       → WebSocket for that game
//   - $path/:gamecode/qr       → PNG QR code for that game URL
func registerCardGame(cfg *Config, path string, mux *httprouter.Router) {
	m := newRoomManager(cfg)

	mux.GET(cfg.prefix+path, redirectNewGame(cfg, path, m))

	mux.GET(cfg.prefix+path+"/:gamecode", serveGamePage(cfg))

	mux.GET(cfg.prefix+path+"/:gamecode/ws", serveGameSocket(cfg, m))

	mux.GET(cfg.prefix+path+"/:gamecode/qr", qrHandler)
}
