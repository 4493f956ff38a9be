package battleship

import (
	"errors"

	"github.com/wojtekolesinski/fleetduel/notify"
	"github.com/wojtekolesinski/fleetduel/registry"
)

var (
	ErrNotYourTurn         = errors.New("not your turn")
	ErrCellAlreadyAttacked = errors.New("cell already attacked")
	ErrGameOver            = errors.New("game is over")
	ErrNotParticipant      = errors.New("not a participant of this session")
	ErrSameParticipant     = errors.New("cannot play against yourself")
	ErrUnexpectedStep      = errors.New("input does not match the pending step")
	ErrOutOfRange          = errors.New("choice out of range")
	ErrUnknownEvent        = errors.New("unknown event")

	// Re-exported so callers of this package can match the whole taxonomy here.
	ErrAlreadyInSession        = registry.ErrAlreadyInSession
	ErrPresentationUnavailable = notify.ErrUnavailable
)
