package battleship

import (
	"math/rand"
	"time"

	"github.com/wojtekolesinski/fleetduel/board"
	"github.com/wojtekolesinski/fleetduel/models"
)

const (
	DefaultConfirmTimeout = 300 * time.Second
	DefaultLogLength      = 5
)

type Config struct {
	Size  int
	Fleet []board.ShipSpec

	// ConfirmTimeout bounds the confirmation step; expiry forfeits the game for the attacker.
	// Zero disables it.
	ConfirmTimeout time.Duration
	// SelectTimeout bounds the column and row steps with the same forfeit policy. Zero, the
	// default, leaves them unbounded.
	SelectTimeout time.Duration

	// LogLength is how many attack log entries a view carries.
	LogLength int

	// Rand drives board generation inside New only. A time-seeded source is used when nil.
	Rand *rand.Rand

	// OnEnd receives the single GameEnded event. It runs with the session locked and must not
	// call back into the session.
	OnEnd func(models.GameEnded)
}

func DefaultConfig() Config {
	return Config{
		Size:           board.Size,
		Fleet:          board.Fleet,
		ConfirmTimeout: DefaultConfirmTimeout,
		LogLength:      DefaultLogLength,
	}
}

func (c Config) withDefaults() Config {
	if c.Size == 0 {
		c.Size = board.Size
	}
	if len(c.Fleet) == 0 {
		c.Fleet = board.Fleet
	}
	if c.LogLength == 0 {
		c.LogLength = DefaultLogLength
	}
	if c.Rand == nil {
		c.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return c
}
