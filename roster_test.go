package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRosterUpsertCreatesThenRebinds(t *testing.T) {
	r := newRoster()

	p, created := r.upsert("alice", "conn-1", "Alice", "🦉")
	require.True(t, created)
	assert.Equal(t, "conn-1", p.ConnectionID)
	assert.True(t, p.IsConnected)

	// Same identity, new connection: the old index entry must not linger.
	p2, created := r.upsert("alice", "conn-2", "", "")
	require.False(t, created)
	assert.Same(t, p, p2)
	assert.Equal(t, "conn-2", p.ConnectionID)
	assert.Equal(t, "Alice", p.Nickname)
	assert.Nil(t, r.resolve("conn-1"))
	assert.Same(t, p, r.resolve("conn-2"))
	assert.Equal(t, 1, r.size())
}

func TestRosterDefaultsNicknameAndAvatar(t *testing.T) {
	r := newRoster()

	p, _ := r.upsert("alice", "conn-1", "", "")
	assert.Equal(t, "Player 1", p.Nickname)
	assert.Contains(t, avatars, p.Avatar)

	p2, _ := r.upsert("bob", "conn-2", "", "")
	assert.Equal(t, "Player 2", p2.Nickname)
}

func TestRosterMarkDisconnected(t *testing.T) {
	r := newRoster()
	r.upsert("alice", "conn-1", "Alice", "")

	p := r.markDisconnected("conn-1")
	require.NotNil(t, p)
	assert.False(t, p.IsConnected)
	assert.Equal(t, "", p.ConnectionID)
	assert.Nil(t, r.resolve("conn-1"))

	// A close for an already-replaced connection resolves to nobody.
	assert.Nil(t, r.markDisconnected("conn-1"))
}

func TestRosterRemoveCleansIndexes(t *testing.T) {
	r := newRoster()
	r.upsert("alice", "conn-1", "Alice", "")
	r.upsert("bob", "conn-2", "Bob", "")

	removed := r.remove("alice")
	require.NotNil(t, removed)
	assert.Nil(t, r.get("alice"))
	assert.Nil(t, r.resolve("conn-1"))
	assert.Equal(t, 1, r.size())

	assert.Nil(t, r.remove("alice"))
}

func TestRosterJoinOrderPreserved(t *testing.T) {
	r := newRoster()
	r.upsert("alice", "conn-1", "Alice", "")
	r.upsert("bob", "conn-2", "Bob", "")
	r.upsert("carol", "conn-3", "Carol", "")

	r.markDisconnected("conn-2")

	connected := r.connected()
	require.Len(t, connected, 2)
	assert.Equal(t, "alice", connected[0].ID)
	assert.Equal(t, "carol", connected[1].ID)

	ordered := r.ordered()
	require.Len(t, ordered, 3)
	assert.Equal(t, "alice", ordered[0].ID)
	assert.Equal(t, "bob", ordered[1].ID)
	assert.Equal(t, "carol", ordered[2].ID)
}

func TestElectHostFirstConnectedByJoinOrder(t *testing.T) {
	r := newRoster()
	r.upsert("alice", "conn-1", "Alice", "")
	r.upsert("bob", "conn-2", "Bob", "")
	r.upsert("carol", "conn-3", "Carol", "")

	assert.Equal(t, "alice", electHost(r.players))

	r.markDisconnected("conn-1")
	assert.Equal(t, "bob", electHost(r.players))

	r.markDisconnected("conn-2")
	r.markDisconnected("conn-3")
	assert.Equal(t, "", electHost(r.players))

	// Deterministic: repeated elections over the same membership agree.
	r.upsert("carol", "conn-4", "", "")
	for i := 0; i < 5; i++ {
		assert.Equal(t, "carol", electHost(r.players))
	}
}
