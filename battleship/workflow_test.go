package battleship

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wojtekolesinski/fleetduel/board"
	"github.com/wojtekolesinski/fleetduel/models"
)

func TestWorkflowHappyPath(t *testing.T) {
	w := NewWorkflow("alice", board.Size)
	assert.Equal(t, ColumnPending, w.Step())

	out, err := w.Handle(ChooseColumn(3))
	require.NoError(t, err)
	assert.Equal(t, Advance, out)
	assert.Equal(t, RowPending, w.Step())

	out, err = w.Handle(ChooseRow(2))
	require.NoError(t, err)
	assert.Equal(t, Advance, out)
	assert.Equal(t, ConfirmPending, w.Step())

	out, err = w.Handle(ConfirmAttack())
	require.NoError(t, err)
	assert.Equal(t, Fire, out)
	assert.Equal(t, board.Coord{Col: 3, Row: 2}, w.Target())
}

func TestWorkflowRejectsOutOfOrderInput(t *testing.T) {
	w := NewWorkflow("alice", board.Size)

	_, err := w.Handle(ChooseRow(1))
	assert.ErrorIs(t, err, ErrUnexpectedStep)
	_, err = w.Handle(ConfirmAttack())
	assert.ErrorIs(t, err, ErrUnexpectedStep)
	assert.Equal(t, ColumnPending, w.Step())

	_, err = w.Handle(ChooseColumn(1))
	require.NoError(t, err)
	_, err = w.Handle(ChooseColumn(2))
	assert.ErrorIs(t, err, ErrUnexpectedStep)
	assert.Equal(t, 1, w.Pending().Column)
}

func TestWorkflowRejectsOutOfRange(t *testing.T) {
	w := NewWorkflow("alice", board.Size)
	_, err := w.Handle(ChooseColumn(board.Size))
	assert.ErrorIs(t, err, ErrOutOfRange)
	_, err = w.Handle(ChooseColumn(-1))
	assert.ErrorIs(t, err, ErrOutOfRange)
	assert.False(t, w.Pending().HasColumn)
}

func TestWorkflowCancel(t *testing.T) {
	w := NewWorkflow("alice", board.Size)
	_, _ = w.Handle(ChooseColumn(1))
	_, _ = w.Handle(ChooseRow(1))

	out, err := w.Handle(CancelAttack())
	require.NoError(t, err)
	assert.Equal(t, Restart, out)
	assert.True(t, w.Pending().Cancelled)
}

func TestEventFromAction(t *testing.T) {
	ev, err := EventFromAction(models.Action{Type: models.ActionRow, Value: 4})
	require.NoError(t, err)
	assert.Equal(t, ChooseRow(4), ev)

	ev, err = EventFromAction(models.Action{Type: models.ActionResign})
	require.NoError(t, err)
	assert.Equal(t, Resign, ev.Kind)

	_, err = EventFromAction(models.Action{Type: "dance"})
	assert.ErrorIs(t, err, ErrUnknownEvent)
}
