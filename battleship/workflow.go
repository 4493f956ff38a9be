package battleship

import (
	"fmt"

	"github.com/wojtekolesinski/fleetduel/board"
	"github.com/wojtekolesinski/fleetduel/models"
)

// Step is where the attack input workflow is waiting.
type Step int

const (
	ColumnPending Step = iota
	RowPending
	ConfirmPending
)

func (s Step) String() string {
	return string(s.Model())
}

func (s Step) Model() models.Step {
	switch s {
	case RowPending:
		return models.StepRow
	case ConfirmPending:
		return models.StepConfirm
	default:
		return models.StepColumn
	}
}

type EventKind int

const (
	ColumnChoice EventKind = iota + 1
	RowChoice
	Confirm
	Cancel
	Resign
)

func (k EventKind) String() string {
	switch k {
	case ColumnChoice:
		return "column"
	case RowChoice:
		return "row"
	case Confirm:
		return "confirm"
	case Cancel:
		return "cancel"
	case Resign:
		return "resign"
	}
	return fmt.Sprintf("event(%d)", int(k))
}

// Event is one participant input.
type Event struct {
	Kind  EventKind
	Value int
}

func ChooseColumn(col int) Event { return Event{Kind: ColumnChoice, Value: col} }
func ChooseRow(row int) Event    { return Event{Kind: RowChoice, Value: row} }
func ConfirmAttack() Event       { return Event{Kind: Confirm} }
func CancelAttack() Event        { return Event{Kind: Cancel} }
func ResignGame() Event          { return Event{Kind: Resign} }

func EventFromAction(a models.Action) (Event, error) {
	switch a.Type {
	case models.ActionColumn:
		return ChooseColumn(a.Value), nil
	case models.ActionRow:
		return ChooseRow(a.Value), nil
	case models.ActionConfirm:
		return ConfirmAttack(), nil
	case models.ActionCancel:
		return CancelAttack(), nil
	case models.ActionResign:
		return ResignGame(), nil
	}
	return Event{}, fmt.Errorf("battleship.EventFromAction %q: %w", a.Type, ErrUnknownEvent)
}

// PendingAttack is the selection in progress for the current turn.
type PendingAttack struct {
	Column    int
	Row       int
	HasColumn bool
	HasRow    bool
	Cancelled bool
}

// Outcome tells the session what to do after the workflow accepted an event.
type Outcome int

const (
	// Advance: prompt for the next step.
	Advance Outcome = iota
	// Restart: the attack was cancelled, start over at ColumnPending for the same attacker.
	Restart
	// Fire: the attack was confirmed.
	Fire
)

// Workflow is the column -> row -> confirm selection of one attacker.
type Workflow struct {
	attacker string
	size     int
	step     Step
	pending  PendingAttack
}

func NewWorkflow(attacker string, size int) *Workflow {
	return &Workflow{attacker: attacker, size: size}
}

func (w *Workflow) Attacker() string       { return w.attacker }
func (w *Workflow) Step() Step             { return w.step }
func (w *Workflow) Pending() PendingAttack { return w.pending }

func (w *Workflow) Target() board.Coord {
	return board.Coord{Col: w.pending.Column, Row: w.pending.Row}
}

// Handle applies ev. A rejected event leaves the workflow unchanged.
func (w *Workflow) Handle(ev Event) (Outcome, error) {
	switch ev.Kind {
	case Cancel:
		w.pending.Cancelled = true
		return Restart, nil
	case ColumnChoice:
		if w.step != ColumnPending {
			return 0, fmt.Errorf("%s at %s step: %w", ev.Kind, w.step, ErrUnexpectedStep)
		}
		if ev.Value < 0 || ev.Value >= w.size {
			return 0, fmt.Errorf("column %d: %w", ev.Value, ErrOutOfRange)
		}
		w.pending.Column, w.pending.HasColumn = ev.Value, true
		w.step = RowPending
		return Advance, nil
	case RowChoice:
		if w.step != RowPending {
			return 0, fmt.Errorf("%s at %s step: %w", ev.Kind, w.step, ErrUnexpectedStep)
		}
		if ev.Value < 0 || ev.Value >= w.size {
			return 0, fmt.Errorf("row %d: %w", ev.Value, ErrOutOfRange)
		}
		w.pending.Row, w.pending.HasRow = ev.Value, true
		w.step = ConfirmPending
		return Advance, nil
	case Confirm:
		if w.step != ConfirmPending {
			return 0, fmt.Errorf("%s at %s step: %w", ev.Kind, w.step, ErrUnexpectedStep)
		}
		return Fire, nil
	}
	return 0, fmt.Errorf("%s: %w", ev.Kind, ErrUnknownEvent)
}
