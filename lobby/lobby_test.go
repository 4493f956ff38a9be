package lobby

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wojtekolesinski/fleetduel/models"
	"github.com/wojtekolesinski/fleetduel/registry"
)

type fakeSession string

func (f fakeSession) ID() string { return string(f) }

func TestOpenAndJoin(t *testing.T) {
	l := New(registry.New(), rand.New(rand.NewSource(3)), 0)

	r, err := l.Open("alice", models.GameBattleship)
	require.NoError(t, err)
	assert.Len(t, l.Rooms(), 1)

	_, err = l.Open("alice", models.GameBattleship)
	assert.ErrorIs(t, err, ErrAlreadyHosting)

	_, err = l.Join(r.ID, "alice")
	assert.ErrorIs(t, err, ErrOwnRoom)

	m, err := l.Join(r.ID, "bob")
	require.NoError(t, err)
	assert.Equal(t, [2]string{"alice", "bob"}, m.Players)
	assert.Contains(t, []string{"alice", "bob"}, m.Starting)
	assert.Equal(t, models.GameBattleship, m.Game)

	_, err = l.Join(r.ID, "carol")
	assert.ErrorIs(t, err, ErrRoomNotFound, "a full lobby cannot be joined")
	assert.Empty(t, l.Rooms())
}

func TestOpenRejectsUnknownGame(t *testing.T) {
	l := New(registry.New(), nil, 0)
	_, err := l.Open("alice", "chess")
	assert.ErrorIs(t, err, ErrUnknownGame)
}

func TestBusyParticipantsAreRejected(t *testing.T) {
	reg := registry.New()
	require.NoError(t, reg.Bind("bob", fakeSession("g1")))
	l := New(reg, nil, 0)

	_, err := l.Open("bob", models.GameBattleship)
	assert.ErrorIs(t, err, registry.ErrAlreadyInSession)

	_, err = l.Create("alice", "bob")
	assert.ErrorIs(t, err, registry.ErrAlreadyInSession)
}

func TestRejectedJoinKeepsRoomOpen(t *testing.T) {
	reg := registry.New()
	l := New(reg, nil, 0)
	r, err := l.Open("host", models.GameBattleship)
	require.NoError(t, err)
	require.NoError(t, reg.Bind("busy", fakeSession("g1")))

	_, err = l.Join(r.ID, "busy")
	assert.ErrorIs(t, err, registry.ErrAlreadyInSession)
	require.Len(t, l.Rooms(), 1)
	assert.Equal(t, r.ID, l.Rooms()[0].ID)

	_, err = l.Open("host", models.GameBattleship)
	assert.ErrorIs(t, err, ErrAlreadyHosting, "host still owns the room")

	m, err := l.Join(r.ID, "guest")
	require.NoError(t, err)
	assert.Equal(t, [2]string{"host", "guest"}, m.Players)
}

func TestStartingPlayerIsRoughlyUniform(t *testing.T) {
	l := New(registry.New(), rand.New(rand.NewSource(11)), 0)
	counts := map[string]int{}
	for i := 0; i < 1000; i++ {
		p, err := l.Create("alice", "bob")
		require.NoError(t, err)
		counts[p]++
	}
	assert.InDelta(t, 500, counts["alice"], 100)
	assert.InDelta(t, 500, counts["bob"], 100)
}

func TestRoomsExpire(t *testing.T) {
	l := New(registry.New(), nil, time.Minute)
	now := time.Now()
	l.now = func() time.Time { return now }

	r, err := l.Open("alice", models.GameTicTacToe)
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, err = l.Join(r.ID, "bob")
	assert.ErrorIs(t, err, ErrRoomNotFound)

	_, err = l.Open("alice", models.GameTicTacToe)
	assert.NoError(t, err, "an expired lobby no longer blocks its host")
}
