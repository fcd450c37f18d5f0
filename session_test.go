package main

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *RoomManager {
	t.Helper()

	// sessionTimeout of 0 keeps the reaper out of unit tests.
	cfg := &Config{gracePeriod: time.Minute, sessionTimeout: 0}
	m := newRoomManager(cfg)
	t.Cleanup(func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		for code, rm := range m.rooms {
			delete(m.rooms, code)
			close(rm.stop)
		}
	})

	return m
}

func TestManagerCreatesRoomLazilyOnce(t *testing.T) {
	m := newTestManager(t)

	a := m.room("ABC123")
	require.NotNil(t, a)
	b := m.room("ABC123")
	assert.Same(t, a, b)

	c := m.room("XYZ789")
	assert.NotSame(t, a, c)
	assert.Equal(t, "XYZ789", c.code)
}

func TestNewGameCodeShape(t *testing.T) {
	m := newTestManager(t)

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		code := m.newGameCode()
		assert.Len(t, code, gameCodeLength)
		for _, r := range code {
			assert.True(t, strings.ContainsRune(gameCodeAlphabet, r), "unexpected rune %q in %s", r, code)
		}
		seen[code] = true
	}

	// 50 draws from a 31^6 space colliding would mean a broken generator.
	assert.Greater(t, len(seen), 45)
}

func TestNewGameCodeAvoidsLiveRooms(t *testing.T) {
	m := newTestManager(t)

	taken := m.newGameCode()
	m.room(taken)

	for i := 0; i < 20; i++ {
		assert.NotEqual(t, taken, m.newGameCode())
	}
}

func TestReaperStopsIdleRooms(t *testing.T) {
	cfg := &Config{gracePeriod: time.Minute, sessionTimeout: 40 * time.Millisecond}
	m := newRoomManager(cfg)

	rm := m.room("ABC123")

	deadline := time.Now().Add(time.Second)
	for {
		m.mu.Lock()
		_, alive := m.rooms["ABC123"]
		m.mu.Unlock()
		if !alive {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("idle room was not reaped")
		}
		time.Sleep(10 * time.Millisecond)
	}

	select {
	case <-rm.stop:
	case <-time.After(time.Second):
		t.Fatal("reaped room was not stopped")
	}
}
