package tictactoe

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wojtekolesinski/fleetduel/models"
	"github.com/wojtekolesinski/fleetduel/notify"
	"github.com/wojtekolesinski/fleetduel/registry"
)

func setup(t *testing.T, cfg Config) (*Session, *notify.Recorder, *registry.Registry, *[]models.GameEnded) {
	t.Helper()
	var ended []models.GameEnded
	cfg.OnEnd = func(e models.GameEnded) { ended = append(ended, e) }
	rec := notify.NewRecorder()
	reg := registry.New()
	s, err := New("t1", "alice", "bob", "bob", cfg, rec, reg)
	require.NoError(t, err)
	s.Start(context.Background())
	return s, rec, reg, &ended
}

func TestStartingPlayerIsX(t *testing.T) {
	s, rec, _, _ := setup(t, Config{})
	assert.Equal(t, "bob", s.Current())

	p, ok := rec.LastPrompt("bob")
	require.True(t, ok)
	assert.Equal(t, models.StepCell, p.Step)
	assert.Len(t, p.Choices, 9)
	assert.Equal(t, "Place your X", p.Text)
}

func TestTurnsAlternate(t *testing.T) {
	ctx := context.Background()
	s, rec, _, _ := setup(t, Config{})

	assert.ErrorIs(t, s.Play(ctx, "alice", 0, 0), ErrNotYourTurn)
	require.NoError(t, s.Play(ctx, "bob", 1, 1))
	assert.Equal(t, "alice", s.Current())
	assert.ErrorIs(t, s.Play(ctx, "alice", 1, 1), ErrCellTaken)
	assert.Equal(t, "alice", s.Current())
	assert.ErrorIs(t, s.Play(ctx, "alice", 3, 0), ErrOutOfRange)

	v, _ := rec.LastView("alice")
	assert.Equal(t, "X", v.Board[1][1])
	assert.True(t, v.YourTurn)
}

func TestWinOnDiagonal(t *testing.T) {
	ctx := context.Background()
	s, rec, reg, ended := setup(t, Config{})

	moves := []struct {
		who      string
		row, col int
	}{
		{"bob", 0, 0}, {"alice", 0, 1},
		{"bob", 1, 1}, {"alice", 0, 2},
		{"bob", 2, 2},
	}
	for _, m := range moves {
		require.NoError(t, s.Play(ctx, m.who, m.row, m.col))
	}

	require.Len(t, *ended, 1)
	assert.Equal(t, "bob", (*ended)[0].Winner)
	assert.Equal(t, models.GameTicTacToe, (*ended)[0].Game)
	assert.Equal(t, 0, reg.Len())
	assert.ErrorIs(t, s.Play(ctx, "alice", 2, 0), ErrGameOver)

	v, _ := rec.LastView("alice")
	assert.Equal(t, models.StatusLost, v.Status)
}

func TestTie(t *testing.T) {
	ctx := context.Background()
	s, _, _, ended := setup(t, Config{})

	// X O X / X O O / O X X
	order := [][2]int{{0, 0}, {0, 1}, {0, 2}, {1, 1}, {1, 0}, {1, 2}, {2, 1}, {2, 0}, {2, 2}}
	players := []string{"bob", "alice"}
	for i, c := range order {
		require.NoError(t, s.Play(ctx, players[i%2], c[0], c[1]))
	}
	require.Len(t, *ended, 1)
	assert.True(t, (*ended)[0].Tie)
}

func TestTurnTimeoutForfeits(t *testing.T) {
	s, _, reg, _ := setup(t, Config{TurnTimeout: 20 * time.Millisecond})
	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("session did not time out")
	}
	e, ok := s.Ended()
	require.True(t, ok)
	assert.Equal(t, "bob", e.ForfeitedBy)
	assert.Equal(t, models.ReasonTimeout, e.Reason)
	assert.Equal(t, 0, reg.Len())
}

func TestResign(t *testing.T) {
	s, _, _, ended := setup(t, Config{})
	require.NoError(t, s.Resign(context.Background(), "alice"))
	require.Len(t, *ended, 1)
	assert.Equal(t, "alice", (*ended)[0].ForfeitedBy)
	assert.ErrorIs(t, s.Resign(context.Background(), "alice"), ErrGameOver)
}

func TestResyncRepeatsViewAndPrompt(t *testing.T) {
	ctx := context.Background()
	s, rec, _, _ := setup(t, Config{})
	live, ok := rec.LastPrompt("bob")
	require.True(t, ok)
	views, prompts, _ := rec.Count("bob")

	require.NoError(t, s.Resync(ctx, "bob"))
	v2, p2, _ := rec.Count("bob")
	assert.Equal(t, views+1, v2)
	assert.Equal(t, prompts+1, p2)
	again, _ := rec.LastPrompt("bob")
	assert.Equal(t, live.ID, again.ID)

	_, aPrompts, _ := rec.Count("alice")
	require.NoError(t, s.Resync(ctx, "alice"))
	_, after, _ := rec.Count("alice")
	assert.Equal(t, aPrompts, after, "alice is waiting, no prompt")

	assert.ErrorIs(t, s.Resync(ctx, "carol"), ErrNotParticipant)
}

func TestAbandonForfeits(t *testing.T) {
	ctx := context.Background()
	s, _, reg, ended := setup(t, Config{})
	require.NoError(t, s.Abandon(ctx, "alice"))
	require.Len(t, *ended, 1)
	assert.Equal(t, "alice", (*ended)[0].ForfeitedBy)
	assert.Equal(t, models.ReasonUnavailable, (*ended)[0].Reason)
	assert.Equal(t, 0, reg.Len())
	assert.ErrorIs(t, s.Abandon(ctx, "alice"), ErrGameOver)
}
